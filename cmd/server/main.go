// Package main is the entry point for the SchoolQuest API server.
//
// MAIN PACKAGE IN GO:
// main stays minimal. It:
//  1. Reads configuration (internal/config, from env vars)
//  2. Creates the logger
//  3. Builds and starts the server (internal/server)
//
// All actual logic lives in imported packages.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/sakif/schoolquest/internal/config"
	"github.com/sakif/schoolquest/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	srv, err := server.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// newLogger builds the process logger. LOG_FORMAT=json is meant for hosted
// deployments where logs are collected; text is easier to read locally.
func newLogger(cfg config.Config) *slog.Logger {
	level, _ := config.ParseLevel(cfg.LogLevel) // validated by Load
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
