package scheduler

import (
	"sync"
	"time"

	"github.com/me/keysweep/pkg/model"
)

// Coordinator tracks the Active -> Draining -> Halted phases of a run. Only the
// first trigger decides the outcome; later triggers are reported as ignored.
type Coordinator struct {
	mu          sync.Mutex
	phase       model.Phase
	outcome     model.Outcome
	reason      string
	triggeredAt time.Time
}

// NewCoordinator returns a coordinator in the Active phase.
func NewCoordinator() *Coordinator {
	return &Coordinator{phase: model.PhaseActive}
}

// Trigger moves an active run to Draining with the given outcome. It returns
// false when shutdown was already under way.
func (c *Coordinator) Trigger(outcome model.Outcome, reason string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.phase.CanTransitionTo(model.PhaseDraining) {
		return false
	}
	c.phase = model.PhaseDraining
	c.outcome = outcome
	c.reason = reason
	c.triggeredAt = time.Now()
	return true
}

// Halt marks the end of draining.
func (c *Coordinator) Halt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase.CanTransitionTo(model.PhaseHalted) {
		c.phase = model.PhaseHalted
	}
}

// Promote replaces an interrupted outcome with outcome while the run is still
// draining. A match reported by a worker that finished during the drain wins
// over the interrupt that started it.
func (c *Coordinator) Promote(outcome model.Outcome, reason string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != model.PhaseDraining || c.outcome != model.OutcomeInterrupted {
		return false
	}
	c.outcome = outcome
	c.reason = reason
	return true
}

// Fail overrides the outcome with OutcomeFailed. Used when the shutdown
// sequence itself hits a fatal error after another trigger won.
func (c *Coordinator) Fail(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcome = model.OutcomeFailed
	c.reason = reason
}

func (c *Coordinator) Phase() model.Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Coordinator) Outcome() model.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome
}

func (c *Coordinator) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Accepting reports whether new workers may still be dispatched.
func (c *Coordinator) Accepting() bool {
	return c.Phase() == model.PhaseActive
}
