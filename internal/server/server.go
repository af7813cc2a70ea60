// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the composition root: it opens the store, the optional
// Redis cache and the evidence store, builds the services and handlers,
// and maps URLs to them.
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → OpenStore (sqlite | postgres)
//	              → openBoard (redis, optional)
//	              → openBlobs (GCS | local directory)
//	              → services → handlers → routes
//
// Each layer only receives what it needs. Services get repository
// interfaces and never the concrete DB; handlers get services.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/schoolquest/internal/auth"
	"github.com/sakif/schoolquest/internal/config"
	"github.com/sakif/schoolquest/internal/handler"
	"github.com/sakif/schoolquest/internal/middleware"
	"github.com/sakif/schoolquest/internal/repository"
	"github.com/sakif/schoolquest/internal/runner"
	"github.com/sakif/schoolquest/internal/service"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the store and any cache or bucket clients. They are
// closed in reverse order of opening when the server stops.
type Server struct {
	router  *chi.Mux
	config  config.Config
	logger  *slog.Logger
	store   repository.Store
	closers []func() error
}

// New wires every dependency and registers the routes. Startup work that
// touches the store (scenario seed, leaderboard rebuild) runs here so a
// misconfigured server fails before it listens.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	store, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		store:   store,
		closers: []func() error{store.Close},
	}

	if err := s.setupRoutes(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /                            → Dashboard page (HTML, optional auth)
//	GET    /healthz                     → Liveness probe
//	GET    /evidence/*                  → Local evidence files (no GCS bucket)
//	GET    /auth/google/login           → Start Google sign-in
//	GET    /auth/google/callback        → Finish Google sign-in
//	POST   /auth/logout                 → Clear session cookie
//	GET    /api/chapters                → Chapters with scenario counts
//	GET    /api/scenarios[?chapter=]    → Scenarios
//	GET    /api/scenarios/{id}          → One scenario
//	GET    /api/leaderboard[?limit=]    → Top users by XP
//	       --- authenticated ---
//	GET    /api/me, /api/token
//	POST   /api/missions/{id}/choice
//	POST   /api/games/runner/replay, /api/games/{game}/result
//	GET    /api/progress[?limit=], /api/progress/summary
//	POST   /api/progress/{reflection,checkin,heartbeat,evidence}
//	DELETE /api/progress/{id}
//
// MIDDLEWARE ORDER MATTERS:
// RequestID runs first so the Logger can print it; Recoverer is innermost
// so a panic still produces a logged 500.
func (s *Server) setupRoutes(ctx context.Context) error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	board := s.openBoard(ctx)
	blobs, err := s.openBlobs(ctx)
	if err != nil {
		return err
	}
	runnerCfg, err := runner.LoadConfig(s.config.RunnerConfigFile)
	if err != nil {
		return err
	}

	// === Services ===
	rewards := service.Rewards{
		Login:        s.config.XP.Login,
		Heartbeat:    s.config.XP.Heartbeat,
		CheckIn:      s.config.XP.CheckIn,
		Reflection:   s.config.XP.Reflection,
		Evidence:     s.config.XP.Evidence,
		MaxGameScore: s.config.XP.MaxGameScore,
	}
	policy := service.EvidencePolicy{MaxBytes: s.config.MaxUploadBytes, AllowedTypes: s.config.AllowedMIMETypes}

	progress := service.NewProgressService(s.store, blobs, board, rewards, policy, s.logger)
	scenarios := service.NewScenarioService(s.store, progress, s.scoreTable(), s.logger)
	games := service.NewGameService(progress, runnerCfg, rewards.MaxGameScore, s.logger)
	boards := service.NewLeaderboardService(s.store, board, s.logger)
	dashboard := service.NewDashboardService(progress, boards, s.logger)

	if s.config.ScenarioSeedFile != "" {
		if _, err := scenarios.LoadSeed(ctx, s.config.ScenarioSeedFile); err != nil {
			return err
		}
	}
	if err := boards.Rebuild(ctx); err != nil {
		// The cache is optional; reads fall back to the store.
		s.logger.Warn("leaderboard rebuild failed", slog.String("error", err.Error()))
	}

	// === Auth ===
	// Without JWT_SECRET the API is read-only: no token can be validated,
	// so the authenticated routes are not registered.
	var tokens *auth.TokenService
	if s.config.JWTSecret != "" {
		tokens, err = auth.NewTokenService(s.config.JWTSecret)
		if err != nil {
			return err
		}
	} else {
		s.logger.Warn("JWT_SECRET not set, authentication is disabled")
	}

	dashboardHandler, err := handler.NewDashboardHandler(dashboard, s.config.AuthEnabled(), s.logger)
	if err != nil {
		return fmt.Errorf("creating dashboard handler: %w", err)
	}
	scenarioHandler := handler.NewScenarioHandler(scenarios, s.logger)
	leaderboardHandler := handler.NewLeaderboardHandler(boards, s.logger)

	if tokens != nil {
		s.router.With(auth.OptionalAuth(tokens)).Get("/", dashboardHandler.HandleDashboard)
	} else {
		s.router.Get("/", dashboardHandler.HandleDashboard)
	}

	var authHandler *handler.AuthHandler
	if tokens != nil {
		authSvc := service.NewAuthService(s.store, tokens, progress, s.config.AllowedEmailDomain, s.logger)
		google := auth.NewGoogleProvider(s.config.GoogleClientID, s.config.GoogleClientSecret, s.config.CallbackURL())
		authHandler = handler.NewAuthHandler(google, authSvc, tokens, s.config.CookieSecure, s.logger)

		if s.config.AuthEnabled() {
			s.router.Get("/auth/google/login", authHandler.HandleGoogleLogin)
			s.router.Get("/auth/google/callback", authHandler.HandleGoogleCallback)
		} else {
			s.logger.Warn("Google OAuth not configured, browser sign-in is disabled")
		}
		s.router.Post("/auth/logout", authHandler.HandleLogout)
	}

	progressHandler := handler.NewProgressHandler(progress, s.config.MaxUploadBytes, s.logger)
	gameHandler := handler.NewGameHandler(games, s.logger)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/chapters", scenarioHandler.HandleChapters)
		r.Get("/scenarios", scenarioHandler.HandleList)
		r.Get("/scenarios/{id}", scenarioHandler.HandleGet)
		r.Get("/leaderboard", leaderboardHandler.HandleTop)

		if tokens == nil {
			return
		}
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))

			r.Get("/me", authHandler.HandleMe)
			r.Get("/token", authHandler.HandleToken)

			r.Post("/missions/{id}/choice", scenarioHandler.HandleChoice)

			r.Post("/games/runner/replay", gameHandler.HandleRunnerReplay)
			r.Post("/games/{game}/result", gameHandler.HandleResult)

			r.Get("/progress", progressHandler.HandleList)
			r.Get("/progress/summary", progressHandler.HandleSummary)
			r.Post("/progress/reflection", progressHandler.HandleReflection)
			r.Post("/progress/checkin", progressHandler.HandleCheckIn)
			r.Post("/progress/heartbeat", progressHandler.HandleHeartbeat)
			r.Post("/progress/evidence", progressHandler.HandleEvidence)
			r.Delete("/progress/{id}", progressHandler.HandleDelete)
		})
	})

	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the store and clients, newest first.
func (s *Server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Close the store and clients
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second, // uploads
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}
