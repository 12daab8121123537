package scheduler

import (
	"sync"
	"time"

	"github.com/me/keysweep/pkg/model"
)

// Snapshot is a point-in-time copy of the loop state for observers.
type Snapshot struct {
	RunID      string             `json:"run_id"`
	Phase      model.Phase        `json:"phase"`
	Outcome    model.Outcome      `json:"outcome,omitempty"`
	Payload    string             `json:"payload,omitempty"`
	Cursor     uint64             `json:"cursor"`
	ChunkSize  uint64             `json:"chunk_size"`
	MaxWorkers int                `json:"max_workers"`
	Dispatched int                `json:"dispatched"`
	Lost       int                `json:"lost"`
	Workers    []model.WorkerInfo `json:"workers"`
	StartedAt  time.Time          `json:"started_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// snapshotBox hands snapshots from the loop goroutine to readers.
type snapshotBox struct {
	mu   sync.RWMutex
	snap Snapshot
}

func (b *snapshotBox) store(s Snapshot) {
	b.mu.Lock()
	b.snap = s
	b.mu.Unlock()
}

func (b *snapshotBox) load() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := b.snap
	s.Workers = append([]model.WorkerInfo(nil), b.snap.Workers...)
	return s
}
