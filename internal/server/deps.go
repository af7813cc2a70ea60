package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/sakif/schoolquest/internal/config"
	"github.com/sakif/schoolquest/internal/leaderboard"
	"github.com/sakif/schoolquest/internal/mission"
	"github.com/sakif/schoolquest/internal/repository"
	"github.com/sakif/schoolquest/internal/repository/postgres"
	"github.com/sakif/schoolquest/internal/repository/sqlite"
	"github.com/sakif/schoolquest/internal/storage"
)

// OpenStore opens Postgres when DATABASE_URL is set and the SQLite file at
// DB_PATH otherwise. The legacy importer uses it too.
func OpenStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (repository.Store, error) {
	if cfg.DatabaseURL != "" {
		db, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		logger.Info("using postgres store")
		return db, nil
	}

	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	logger.Info("using sqlite store", slog.String("path", cfg.DBPath))
	return db, nil
}

// openBoard connects the Redis leaderboard cache. A nil Board (not a typed
// nil pointer) means the leaderboard is aggregated from the store.
func (s *Server) openBoard(ctx context.Context) leaderboard.Board {
	if s.config.RedisAddr == "" {
		return nil
	}
	board, err := leaderboard.NewRedisBoard(ctx, s.config.RedisAddr, s.config.RedisKey)
	if err != nil {
		s.logger.Warn("redis unavailable, leaderboard will be aggregated",
			slog.String("addr", s.config.RedisAddr),
			slog.String("error", err.Error()),
		)
		return nil
	}
	s.closers = append(s.closers, board.Close)
	return board
}

// openBlobs returns the evidence store: a GCS bucket when configured, else a
// local directory served under /evidence/.
func (s *Server) openBlobs(ctx context.Context) (storage.Store, error) {
	if s.config.GCSBucket != "" {
		gcs, err := storage.NewGCS(ctx, s.config.GCSBucket, "evidence/")
		if err != nil {
			return nil, fmt.Errorf("opening evidence bucket: %w", err)
		}
		s.closers = append(s.closers, gcs.Close)
		return gcs, nil
	}

	local, err := storage.NewLocal(s.config.EvidenceDir, "/evidence")
	if err != nil {
		return nil, err
	}
	s.router.Handle("/evidence/*", http.StripPrefix("/evidence/", local.Handler()))
	return local, nil
}

func (s *Server) scoreTable() mission.ScoreTable {
	return mission.ScoreTable{Points: s.config.MissionPoints, Multiplier: s.config.MissionMultiplier}
}
