package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/me/keysweep/pkg/model"
)

type statusResponse struct {
	RunID         string        `json:"run_id"`
	Phase         model.Phase   `json:"phase"`
	Outcome       model.Outcome `json:"outcome,omitempty"`
	Payload       string        `json:"payload,omitempty"`
	Cursor        uint64        `json:"cursor"`
	ChunkSize     uint64        `json:"chunk_size"`
	MaxWorkers    int           `json:"max_workers"`
	ActiveWorkers int           `json:"active_workers"`
	Dispatched    int           `json:"dispatched"`
	Lost          int           `json:"lost"`
	KeysPerSec    float64       `json:"keys_per_sec"`
	StartedAt     string        `json:"started_at"`
	UpdatedAt     string        `json:"updated_at"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	snap := s.source.Snapshot()

	var rate float64
	for _, wi := range snap.Workers {
		rate += wi.Rate
	}
	respondOK(w, reqID, statusResponse{
		RunID:         snap.RunID,
		Phase:         snap.Phase,
		Outcome:       snap.Outcome,
		Payload:       snap.Payload,
		Cursor:        snap.Cursor,
		ChunkSize:     snap.ChunkSize,
		MaxWorkers:    snap.MaxWorkers,
		ActiveWorkers: len(snap.Workers),
		Dispatched:    snap.Dispatched,
		Lost:          snap.Lost,
		KeysPerSec:    rate,
		StartedAt:     snap.StartedAt.Format(time.RFC3339),
		UpdatedAt:     snap.UpdatedAt.Format(time.RFC3339),
	})
}

func (s *Server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, s.source.Snapshot().Workers)
}

func (s *Server) handleListChunks(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	opts, apiErr := listOptions(r)
	if apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}
	if v := r.URL.Query().Get("lost"); v != "" {
		lost, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, reqID, http.StatusBadRequest,
				&model.APIError{Code: model.ErrCodeValidation, Message: "lost must be a boolean"})
			return
		}
		opts.IncompleteOnly = lost
	}

	chunks, total, err := s.ledger.ListChunks(r.Context(), opts)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrCodeInternal, Message: err.Error()})
		return
	}
	if chunks == nil {
		chunks = []*model.ChunkRecord{}
	}
	respondList(w, reqID, chunks, &model.Pagination{
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		HasMore: opts.Offset+opts.Limit < total,
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	opts, apiErr := listOptions(r)
	if apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}
	runs, err := s.ledger.ListRuns(r.Context(), opts)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrCodeInternal, Message: err.Error()})
		return
	}
	if runs == nil {
		runs = []*model.Run{}
	}
	respondOK(w, reqID, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	run, err := s.ledger.GetRun(r.Context(), id)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrCodeInternal, Message: err.Error()})
		return
	}
	if run == nil {
		respondError(w, reqID, http.StatusNotFound,
			&model.APIError{Code: model.ErrCodeNotFound, Message: "run " + id + " not found"})
		return
	}
	respondOK(w, reqID, run)
}
