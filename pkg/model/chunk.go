package model

import (
	"fmt"
	"time"
)

// Chunk is a half-open range [Start, End) of the search space assigned to one worker.
type Chunk struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

// Len returns the number of counters in the chunk.
func (c Chunk) Len() uint64 {
	if c.End <= c.Start {
		return 0
	}
	return c.End - c.Start
}

// Contains reports whether counter falls inside the chunk.
func (c Chunk) Contains(counter uint64) bool {
	return counter >= c.Start && counter < c.End
}

// Overlaps reports whether the two chunks share at least one counter.
func (c Chunk) Overlaps(o Chunk) bool {
	return c.Start < o.End && o.Start < c.End
}

// Validate checks that the chunk is non-empty.
func (c Chunk) Validate() error {
	if c.Start >= c.End {
		return fmt.Errorf("%w: start %d must be less than end %d", ErrInvalidChunk, c.Start, c.End)
	}
	return nil
}

// String renders the chunk using the inclusive upper bound the operator log shows.
func (c Chunk) String() string {
	if c.End == 0 {
		return fmt.Sprintf("[%d, %d)", c.Start, c.End)
	}
	return fmt.Sprintf("%d to %d", c.Start, c.End-1)
}

// ChunkRecord is the ledger row for one dispatched chunk.
type ChunkRecord struct {
	ID           int64      `json:"id"`
	RunID        string     `json:"run_id"`
	Seq          int        `json:"seq"`
	Slot         int        `json:"slot"`
	Chunk        Chunk      `json:"chunk"`
	PID          int        `json:"pid"`
	State        ChunkState `json:"state"`
	ExitCode     *int       `json:"exit_code,omitempty"`
	LastCounter  *uint64    `json:"last_counter,omitempty"`
	DispatchedAt time.Time  `json:"dispatched_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}
