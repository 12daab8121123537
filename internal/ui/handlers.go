package ui

import (
	"net/http"
	"strconv"
	"time"

	"github.com/me/keysweep/pkg/model"
)

const chunksPerPage = 50

// HandleDashboard renders the live run overview.
func (ui *UI) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	snap := ui.source.Snapshot()

	var rate float64
	var scanned uint64
	for _, wi := range snap.Workers {
		rate += wi.Rate
		if wi.LastCounter > wi.Chunk.Start {
			scanned += wi.LastCounter - wi.Chunk.Start
		}
	}

	ledgerChunks, _, err := ui.ledger.ListChunks(r.Context(), model.ListOptions{Limit: 10, RunID: snap.RunID})
	if err != nil {
		ui.logger.Warn("list ledger chunks", "error", err)
	}

	ui.render(w, http.StatusOK, "dashboard", map[string]any{
		"Title":      "Dashboard - keysweep",
		"Snap":       snap,
		"KeysPerSec": rate,
		"InFlight":   scanned,
		"Ledger":     ledgerChunks,
		"Uptime":     time.Since(ui.startTime).Round(time.Second).String(),
	})
}

// HandleChunks renders the chunk ledger, optionally filtered to lost chunks.
func (ui *UI) HandleChunks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := model.ListOptions{Limit: chunksPerPage, RunID: q.Get("run")}

	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			ui.renderError(w, http.StatusBadRequest, "page must be a positive integer")
			return
		}
		opts.Offset = (page - 1) * chunksPerPage
	}
	if v := q.Get("lost"); v != "" {
		lost, err := strconv.ParseBool(v)
		if err != nil {
			ui.renderError(w, http.StatusBadRequest, "lost must be a boolean")
			return
		}
		opts.IncompleteOnly = lost
	}

	chunks, total, err := ui.ledger.ListChunks(r.Context(), opts)
	if err != nil {
		ui.logger.Error("list chunks", "error", err)
		ui.renderError(w, http.StatusInternalServerError, "could not read the chunk ledger")
		return
	}

	page := opts.Offset/chunksPerPage + 1
	ui.render(w, http.StatusOK, "chunks", map[string]any{
		"Title":    "Chunks - keysweep",
		"Chunks":   chunks,
		"Total":    total,
		"Page":     page,
		"HasPrev":  page > 1,
		"HasNext":  opts.Offset+len(chunks) < total,
		"LostOnly": opts.IncompleteOnly,
		"RunID":    opts.RunID,
	})
}
