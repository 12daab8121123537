package store

import (
	"context"

	"github.com/me/keysweep/pkg/model"
)

// CursorStore is the durable single-value store for the next unassigned counter.
type CursorStore interface {
	// Load returns the persisted cursor, or 0 when nothing usable is stored.
	Load() uint64

	// Save overwrites the persisted cursor. A failure wraps model.ErrStatePersist.
	Save(cursor uint64) error
}

// Ledger records runs and dispatched chunks for auditing. It is never the
// source of truth for the cursor.
type Ledger interface {
	// Run lifecycle
	CreateRun(ctx context.Context, run *model.Run) error
	FinishRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, error)

	// Chunk lifecycle
	RecordDispatch(ctx context.Context, rec *model.ChunkRecord) error
	FinishChunk(ctx context.Context, rec *model.ChunkRecord) error
	ListChunks(ctx context.Context, opts model.ListOptions) ([]*model.ChunkRecord, int, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
