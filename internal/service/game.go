package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/schoolquest/internal/apperror"
	"github.com/sakif/schoolquest/internal/model"
	"github.com/sakif/schoolquest/internal/runner"
)

// MaxRunnerFrames bounds a replay: one hour at 60 frames per second.
const MaxRunnerFrames = 60 * 60 * 60

// GameService records mini-game results. Runner scores are recomputed on the
// server from a replay; other games report a final score that is range checked.
type GameService struct {
	progress *ProgressService
	runner   runner.Config
	maxScore int
	logger   *slog.Logger
}

func NewGameService(progress *ProgressService, runnerCfg runner.Config, maxScore int, logger *slog.Logger) *GameService {
	return &GameService{progress: progress, runner: runnerCfg, maxScore: maxScore, logger: logger}
}

// RecordGame stores the final score of a game whose simulation runs only on
// the client.
func (s *GameService) RecordGame(ctx context.Context, user, game string, score int) (*model.Ack, error) {
	g, ok := model.ParseGame(game)
	if !ok {
		return nil, apperror.ValidationFailed("game", fmt.Sprintf("unknown game %q", game))
	}
	if g == model.GameRunner {
		return nil, apperror.ValidationFailed("game", "runner scores must be submitted as a replay")
	}
	if score < 0 || score > s.maxScore {
		return nil, apperror.ValidationFailed("score",
			fmt.Sprintf("score must be between 0 and %d", s.maxScore))
	}
	return s.recordResult(ctx, user, g, score)
}

// RunnerVerdict is the outcome of a verified runner session.
type RunnerVerdict struct {
	Ack    *model.Ack    `json:"ack"`
	Result runner.Result `json:"result"`
}

// VerifyRunner replays run and records the recomputed score. A nil claimed
// skips the comparison; a negative claim, or one that differs from the
// replay, is rejected.
func (s *GameService) VerifyRunner(ctx context.Context, user string, run runner.Run, claimed *int) (*RunnerVerdict, error) {
	if claimed != nil && *claimed < 0 {
		return nil, apperror.ValidationFailed("claimedScore", "claimed score must not be negative")
	}
	res, err := runner.Replay(s.runner, run, MaxRunnerFrames)
	if err != nil {
		if errors.Is(err, runner.ErrReplayMismatch) {
			s.logger.Warn("runner replay rejected",
				slog.String("user", user),
				slog.String("error", err.Error()),
			)
		}
		return nil, apperror.ValidationFailed("run", err.Error())
	}
	if claimed != nil && *claimed != res.Score {
		s.logger.Warn("runner score mismatch",
			slog.String("user", user),
			slog.Int("claimed", *claimed),
			slog.Int("replayed", res.Score),
		)
		return nil, apperror.ValidationFailed("claimedScore",
			fmt.Sprintf("claimed score %d does not match replayed score %d", *claimed, res.Score))
	}

	score := min(res.Score, s.maxScore)
	ack, err := s.recordResult(ctx, user, model.GameRunner, score)
	if err != nil {
		return nil, err
	}
	return &RunnerVerdict{Ack: ack, Result: res}, nil
}

func (s *GameService) recordResult(ctx context.Context, user string, g model.Game, score int) (*model.Ack, error) {
	if user == "" {
		return nil, apperror.Unauthorized("a signed-in user is required")
	}
	return s.progress.record(ctx, &model.ProgressEvent{
		User:      user,
		MissionID: g.MissionID(),
		Score:     score,
		Payload:   model.GameResult{Game: g, Score: score},
	})
}
