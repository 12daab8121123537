package scheduler

import (
	"errors"
	"fmt"
	"math"

	"github.com/me/keysweep/internal/store"
	"github.com/me/keysweep/pkg/model"
)

// Allocator hands out consecutive, disjoint chunks starting at the persisted
// cursor. It is not safe for concurrent use; the dispatch loop owns it.
type Allocator struct {
	store  store.CursorStore
	cursor uint64
	size   uint64
	limit  uint64
}

// NewAllocator loads the cursor from st. limit is an exclusive upper bound on
// the keyspace; 0 means unbounded.
func NewAllocator(st store.CursorStore, size, limit uint64) (*Allocator, error) {
	if size == 0 {
		return nil, errors.New("chunk size must be at least 1")
	}
	return &Allocator{store: st, cursor: st.Load(), size: size, limit: limit}, nil
}

// Cursor returns the next unallocated counter.
func (a *Allocator) Cursor() uint64 { return a.cursor }

// Size returns the configured chunk size.
func (a *Allocator) Size() uint64 { return a.size }

// Exhausted reports whether no further chunk can be allocated.
func (a *Allocator) Exhausted() bool {
	if a.limit > 0 && a.cursor >= a.limit {
		return true
	}
	return a.cursor > math.MaxUint64-a.size
}

// Allocate returns [cursor, cursor+size) and persists the advanced cursor
// before handing the chunk out. A persist failure leaves the cursor unchanged.
func (a *Allocator) Allocate() (model.Chunk, error) {
	if a.Exhausted() {
		return model.Chunk{}, model.ErrKeyspaceExhausted
	}
	c := model.Chunk{Start: a.cursor, End: a.cursor + a.size}
	if a.limit > 0 && c.End > a.limit {
		c.End = a.limit
	}
	if err := a.store.Save(c.End); err != nil {
		return model.Chunk{}, fmt.Errorf("allocate %s: %w", c, err)
	}
	a.cursor = c.End
	return c, nil
}

// Persist writes the current cursor again.
func (a *Allocator) Persist() error {
	return a.store.Save(a.cursor)
}
