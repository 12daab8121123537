// Package ui renders a small HTML dashboard for a running manager.
package ui

import (
	"bytes"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/me/keysweep/internal/scheduler"
	"github.com/me/keysweep/internal/store"
)

// SnapshotSource provides the live loop state.
type SnapshotSource interface {
	Snapshot() scheduler.Snapshot
}

// UI handles the web dashboard.
type UI struct {
	source    SnapshotSource
	ledger    store.Ledger
	logger    *slog.Logger
	startTime time.Time
	refresh   int // seconds between page reloads, 0 disables
}

// Config holds UI configuration.
type Config struct {
	RefreshSeconds int
}

// New creates a new UI handler. ledger may be nil.
func New(source SnapshotSource, ledger store.Ledger, logger *slog.Logger, cfg Config) *UI {
	if ledger == nil {
		ledger = store.NopLedger{}
	}
	return &UI{
		source:    source,
		ledger:    ledger,
		logger:    logger.With("component", "ui"),
		startTime: time.Now(),
		refresh:   cfg.RefreshSeconds,
	}
}

// RegisterRoutes registers all UI routes on the given router.
func (ui *UI) RegisterRoutes(r chi.Router) {
	r.Get("/", ui.HandleDashboard)
	r.Get("/chunks", ui.HandleChunks)
}

func (ui *UI) render(w http.ResponseWriter, status int, name string, data map[string]any) {
	data["Refresh"] = ui.refresh

	var buf bytes.Buffer
	if err := renderTemplate(&buf, name, data); err != nil {
		ui.logger.Error("template render failed", "template", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func (ui *UI) renderError(w http.ResponseWriter, status int, message string) {
	ui.render(w, status, "error", map[string]any{
		"Title":   "Error - keysweep",
		"Message": message,
	})
}
