package model

import "time"

// WorkerInfo is the externally visible view of an active worker slot.
type WorkerInfo struct {
	Slot        int          `json:"slot"`
	Seq         int          `json:"seq"`
	PID         int          `json:"pid"`
	Chunk       Chunk        `json:"chunk"`
	Status      WorkerStatus `json:"status"`
	LastCounter uint64       `json:"last_counter,omitempty"`
	Rate        float64      `json:"rate,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
}
