// Package server exposes stored walk-forward runs over HTTP: run listing,
// step results, summaries, a health endpoint, and a websocket progress
// stream for runs in flight.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/volcast/internal/database"
	"github.com/aristath/volcast/internal/reliability"
	"github.com/aristath/volcast/internal/results"
)

// RunTrigger starts a new walk-forward run and returns its ID. The server
// never runs simulations itself; the command wires this in.
type RunTrigger func(ctx context.Context) (string, error)

// Config holds server configuration.
type Config struct {
	Log      zerolog.Logger
	Port     int
	DevMode  bool
	DB       *database.DB
	Store    *results.Store
	Progress *ProgressHub
	Trigger  RunTrigger
	Backups  *reliability.BackupService // Nil when backups are disabled
}

// Server is the HTTP server.
type Server struct {
	router   *chi.Mux
	server   *http.Server
	log      zerolog.Logger
	devMode  bool
	db       *database.DB
	store    *results.Store
	progress *ProgressHub
	trigger  RunTrigger
	backups  *reliability.BackupService
	started  time.Time
}

// New creates the server and mounts all routes.
func New(cfg Config) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		log:      cfg.Log.With().Str("component", "server").Logger(),
		devMode:  cfg.DevMode,
		db:       cfg.DB,
		store:    cfg.Store,
		progress: cfg.Progress,
		trigger:  cfg.Trigger,
		backups:  cfg.Backups,
		started:  time.Now(),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	corsOrigins := []string{"http://localhost:*"}
	if cfg.DevMode {
		corsOrigins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/runs", s.handleListRuns)
		r.Post("/runs", s.handleTriggerRun)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/runs/{id}/steps", s.handleGetSteps)
		r.Get("/runs/{id}/summary", s.handleGetSummary)
		r.Get("/backups", s.handleListBackups)
		r.Get("/ws/progress", s.handleProgressSocket)
	})

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Router returns the chi router, used by tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start runs the server until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
