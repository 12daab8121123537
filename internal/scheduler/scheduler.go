// Package scheduler owns the dispatch loop: it hands out chunks of the
// keyspace, supervises the worker pool, multiplexes worker output, and
// coordinates shutdown.
package scheduler

import "context"

// Scheduler runs a keyspace search to completion.
type Scheduler interface {
	// Run drives the dispatch loop until a match, exhaustion, a fatal error,
	// or cancellation of ctx, then shuts the pool down.
	Run(ctx context.Context) (Report, error)

	// Tick runs a single dispatch iteration. Used for testing.
	Tick(ctx context.Context) error

	// Snapshot returns the most recently published loop state.
	Snapshot() Snapshot
}
