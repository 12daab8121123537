// Package notify fans run lifecycle events out to external observers.
package notify

import (
	"context"
	"time"

	"github.com/me/keysweep/pkg/model"
)

// EventType names a lifecycle event. It is also the subject suffix on the bus.
type EventType string

const (
	EventRunStarted      EventType = "run.started"
	EventRunFinished     EventType = "run.finished"
	EventChunkDispatched EventType = "chunk.dispatched"
	EventChunkFinished   EventType = "chunk.finished"
	EventChunkLost       EventType = "chunk.lost"
	EventSuccess         EventType = "run.success"
)

// Event is the JSON document published for every lifecycle event.
type Event struct {
	Type    EventType          `json:"type"`
	RunID   string             `json:"run_id"`
	Slot    *int               `json:"slot,omitempty"`
	Seq     int                `json:"seq,omitempty"`
	PID     int                `json:"pid,omitempty"`
	Chunk   *model.Chunk       `json:"chunk,omitempty"`
	Status  model.WorkerStatus `json:"status,omitempty"`
	Outcome model.Outcome      `json:"outcome,omitempty"`
	Payload string             `json:"payload,omitempty"`
	Cursor  uint64             `json:"cursor"`
	Time    time.Time          `json:"time"`
}

// Notifier publishes lifecycle events. Implementations must not block the
// dispatch loop for long; delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
	Close() error
}

// NopNotifier discards every event.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) error { return nil }
func (NopNotifier) Close() error                        { return nil }
