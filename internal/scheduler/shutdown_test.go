package scheduler

import (
	"testing"

	"github.com/me/keysweep/pkg/model"
)

func TestCoordinator_FirstTriggerWins(t *testing.T) {
	c := NewCoordinator()
	if !c.Accepting() || c.Phase() != model.PhaseActive {
		t.Fatalf("new coordinator phase = %s", c.Phase())
	}

	if !c.Trigger(model.OutcomeSuccess, "match reported") {
		t.Fatal("first trigger rejected")
	}
	if c.Trigger(model.OutcomeInterrupted, "interrupt received") {
		t.Error("second trigger accepted")
	}
	if c.Outcome() != model.OutcomeSuccess || c.Reason() != "match reported" {
		t.Errorf("outcome = %q reason = %q", c.Outcome(), c.Reason())
	}
	if c.Accepting() {
		t.Error("still accepting after trigger")
	}

	c.Halt()
	if c.Phase() != model.PhaseHalted {
		t.Errorf("phase = %s, want HALTED", c.Phase())
	}
	if c.Trigger(model.OutcomeFailed, "late") {
		t.Error("trigger accepted after halt")
	}
}

func TestCoordinator_HaltRequiresDraining(t *testing.T) {
	c := NewCoordinator()
	c.Halt()
	if c.Phase() != model.PhaseActive {
		t.Errorf("phase = %s, want ACTIVE", c.Phase())
	}
}

func TestCoordinator_Fail(t *testing.T) {
	c := NewCoordinator()
	c.Trigger(model.OutcomeInterrupted, "interrupt received")
	c.Fail("final state save failed")
	if c.Outcome() != model.OutcomeFailed {
		t.Errorf("outcome = %q, want failed", c.Outcome())
	}
}

func TestCoordinator_Promote(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(c *Coordinator)
		want    bool
		outcome model.Outcome
	}{
		{
			name:    "active",
			setup:   func(c *Coordinator) {},
			want:    false,
			outcome: model.OutcomeNone,
		},
		{
			name:    "draining after interrupt",
			setup:   func(c *Coordinator) { c.Trigger(model.OutcomeInterrupted, "interrupt received") },
			want:    true,
			outcome: model.OutcomeSuccess,
		},
		{
			name: "draining after failure",
			setup: func(c *Coordinator) {
				c.Trigger(model.OutcomeFailed, "state write failed")
			},
			want:    false,
			outcome: model.OutcomeFailed,
		},
		{
			name: "halted",
			setup: func(c *Coordinator) {
				c.Trigger(model.OutcomeInterrupted, "interrupt received")
				c.Halt()
			},
			want:    false,
			outcome: model.OutcomeInterrupted,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCoordinator()
			tt.setup(c)
			if got := c.Promote(model.OutcomeSuccess, "match reported during shutdown"); got != tt.want {
				t.Errorf("Promote = %v, want %v", got, tt.want)
			}
			if c.Outcome() != tt.outcome {
				t.Errorf("outcome = %q, want %q", c.Outcome(), tt.outcome)
			}
		})
	}
}
