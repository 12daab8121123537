package model

import "time"

// Run is the ledger record of one manager invocation.
type Run struct {
	ID          string     `json:"id"`
	Workers     int        `json:"workers"`
	ChunkSize   uint64     `json:"chunk_size"`
	StartCursor uint64     `json:"start_cursor"`
	FinalCursor *uint64    `json:"final_cursor,omitempty"`
	Outcome     Outcome    `json:"outcome,omitempty"`
	Payload     string     `json:"payload,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// ListOptions configures ledger list queries.
type ListOptions struct {
	Limit          int
	Offset         int
	RunID          string // Optional run filter
	IncompleteOnly bool
}

// DefaultListOptions returns sensible defaults.
func DefaultListOptions() ListOptions {
	return ListOptions{Limit: 20, Offset: 0}
}

// Clamp enforces limits (max 1000, min 1).
func (o *ListOptions) Clamp() {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}
