// Package executor launches worker processes and exposes their output and exit
// status without ever blocking the caller.
package executor

import (
	"context"

	"github.com/me/keysweep/pkg/model"
)

// Spec describes one worker launch.
type Spec struct {
	Slot  int
	Seq   int
	Chunk model.Chunk
}

// Process is a launched worker as seen by the supervisor.
type Process interface {
	// PID returns the OS process id.
	PID() int

	// Lines delivers output lines in the order each stream wrote them.
	// It is closed once both stdout and stderr reached EOF.
	Lines() <-chan model.Line

	// Done is closed once the process has exited, all output has been
	// delivered to Lines, and the OS resources have been released.
	Done() <-chan struct{}

	// ExitCode is valid after Done is closed. It is -1 when the process
	// was killed by a signal.
	ExitCode() int

	// Terminate asks the process (and its process group) to stop.
	Terminate() error

	// Kill forcibly stops the process (and its process group).
	Kill() error
}

// Launcher starts worker processes.
type Launcher interface {
	Launch(ctx context.Context, spec Spec) (Process, error)
}
