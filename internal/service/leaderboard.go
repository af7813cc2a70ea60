package service

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/schoolquest/internal/leaderboard"
	"github.com/sakif/schoolquest/internal/model"
	"github.com/sakif/schoolquest/internal/repository"
)

const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
)

// LeaderboardService ranks users. It reads the cache when one is configured
// and falls back to aggregating the repository when the cache fails.
type LeaderboardService struct {
	events repository.ProgressRepository
	board  leaderboard.Board
	logger *slog.Logger
}

func NewLeaderboardService(events repository.ProgressRepository, board leaderboard.Board, logger *slog.Logger) *LeaderboardService {
	return &LeaderboardService{events: events, board: board, logger: logger}
}

func (s *LeaderboardService) Top(ctx context.Context, limit int) ([]leaderboard.Entry, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		limit = MaxLeaderboardLimit
	}

	if s.board != nil {
		entries, err := s.board.Top(ctx, limit)
		if err == nil {
			return entries, nil
		}
		s.logger.Warn("leaderboard cache unavailable, aggregating", slog.String("error", err.Error()))
	}

	entries, err := s.aggregate(ctx)
	if err != nil {
		return nil, err
	}
	return leaderboard.Limit(entries, limit), nil
}

// Rebuild reloads the cache from the repository. Called on start so the
// cache survives Redis restarts and legacy imports.
func (s *LeaderboardService) Rebuild(ctx context.Context) error {
	if s.board == nil {
		return nil
	}
	entries, err := s.aggregate(ctx)
	if err != nil {
		return err
	}
	if err := s.board.Rebuild(ctx, entries); err != nil {
		return fmt.Errorf("service/leaderboard: rebuilding cache: %w", err)
	}
	s.logger.Info("leaderboard cache rebuilt", slog.Int("users", len(entries)))
	return nil
}

func (s *LeaderboardService) aggregate(ctx context.Context) ([]leaderboard.Entry, error) {
	rows, err := s.events.ScoreRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/leaderboard: loading scores: %w", err)
	}
	return leaderboard.Aggregate(rows), nil
}

// Dashboard is the data of the home page.
type Dashboard struct {
	Summary     model.Summary
	Leaderboard []leaderboard.Entry
	Recent      []model.ProgressEvent
}

// DashboardService assembles the home page. Reads run concurrently and each
// one degrades to its zero value with a warning instead of failing the page.
type DashboardService struct {
	progress *ProgressService
	board    *LeaderboardService
	logger   *slog.Logger
}

func NewDashboardService(progress *ProgressService, board *LeaderboardService, logger *slog.Logger) *DashboardService {
	return &DashboardService{progress: progress, board: board, logger: logger}
}

// Load never fails. user may be empty for an anonymous visitor, who only
// gets the leaderboard.
func (s *DashboardService) Load(ctx context.Context, user string) Dashboard {
	var d Dashboard
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		entries, err := s.board.Top(ctx, DefaultLeaderboardLimit)
		if err != nil {
			s.logger.Warn("dashboard leaderboard unavailable", slog.String("error", err.Error()))
			return nil
		}
		d.Leaderboard = entries
		return nil
	})

	if user != "" {
		g.Go(func() error {
			sum, err := s.progress.Summary(ctx, user)
			if err != nil {
				s.logger.Warn("dashboard summary unavailable", slog.String("error", err.Error()))
				return nil
			}
			d.Summary = sum
			return nil
		})
		g.Go(func() error {
			recent, err := s.progress.Events(ctx, user, 5)
			if err != nil {
				s.logger.Warn("dashboard activity unavailable", slog.String("error", err.Error()))
				return nil
			}
			d.Recent = recent
			return nil
		})
	}

	_ = g.Wait()
	return d
}
