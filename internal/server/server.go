// Package server exposes a read-only HTTP status API and dashboard for a
// running manager.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/keysweep/internal/scheduler"
	"github.com/me/keysweep/internal/store"
	"github.com/me/keysweep/internal/ui"
)

// SnapshotSource provides the live loop state.
type SnapshotSource interface {
	Snapshot() scheduler.Snapshot
}

// Server is the keysweep status API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	startTime time.Time
	source    SnapshotSource
	ledger    store.Ledger
	dashboard *ui.UI
}

// New creates a new Server with all routes registered. ledger may be nil, in
// which case the ledger endpoints return empty lists.
func New(source SnapshotSource, ledger store.Ledger, logger *slog.Logger) *Server {
	if ledger == nil {
		ledger = store.NopLedger{}
	}
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		startTime: time.Now(),
		source:    source,
		ledger:    ledger,
		dashboard: ui.New(source, ledger, logger, ui.Config{RefreshSeconds: 2}),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Get("/healthz", s.handleHealth)
	s.dashboard.RegisterRoutes(r)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Get("/workers", s.handleWorkers)
		r.Get("/chunks", s.handleListChunks)
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Get("/{id}", s.handleGetRun)
		})
	})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
