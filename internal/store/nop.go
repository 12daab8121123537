package store

import (
	"context"

	"github.com/me/keysweep/pkg/model"
)

// NopLedger discards every record. It is used when the ledger is disabled.
type NopLedger struct{}

func (NopLedger) CreateRun(context.Context, *model.Run) error { return nil }
func (NopLedger) FinishRun(context.Context, *model.Run) error { return nil }

func (NopLedger) GetRun(context.Context, string) (*model.Run, error) { return nil, nil }

func (NopLedger) ListRuns(context.Context, model.ListOptions) ([]*model.Run, error) {
	return nil, nil
}

func (NopLedger) RecordDispatch(context.Context, *model.ChunkRecord) error { return nil }
func (NopLedger) FinishChunk(context.Context, *model.ChunkRecord) error    { return nil }

func (NopLedger) ListChunks(context.Context, model.ListOptions) ([]*model.ChunkRecord, int, error) {
	return nil, 0, nil
}

func (NopLedger) Close() error                  { return nil }
func (NopLedger) Migrate(context.Context) error { return nil }
