// Package worker implements the single-process scan loop a worker runs over
// its assigned chunk. The loop talks to the manager only through the line
// protocol on its output stream and its exit code.
package worker

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/me/keysweep/internal/evaluator"
	"github.com/me/keysweep/internal/protocol"
	"github.com/me/keysweep/pkg/model"
)

// DefaultProgressEvery is the number of counters between progress lines.
const DefaultProgressEvery = 100_000

// ctxCheckEvery bounds how many counters are evaluated between cancellation checks.
const ctxCheckEvery = 4096

// Config holds worker configuration.
type Config struct {
	Chunk         model.Chunk
	ProgressEvery uint64
	Now           func() time.Time
}

// Result is the terminal state of a scan.
type Result struct {
	Status  model.WorkerStatus
	Counter uint64 // last counter evaluated (the match for StatusSuccess)
	Payload string
	Err     error
}

// ExitCode maps the result to the worker process exit code.
func (r Result) ExitCode() int {
	switch r.Status {
	case model.WorkerStatusSuccess, model.WorkerStatusExhausted:
		return model.ExitOK
	case model.WorkerStatusInterrupted:
		return model.ExitInterrupted
	default:
		return model.ExitError
	}
}

// Worker scans one chunk with one evaluator.
type Worker struct {
	ev     evaluator.Evaluator
	cfg    Config
	stdout io.Writer
	stderr io.Writer
}

// New creates a Worker. Progress, success and completion lines go to stdout;
// fatal errors go to stderr.
func New(ev evaluator.Evaluator, cfg Config, stdout, stderr io.Writer) (*Worker, error) {
	if err := cfg.Chunk.Validate(); err != nil {
		return nil, err
	}
	if cfg.ProgressEvery == 0 {
		cfg.ProgressEvery = DefaultProgressEvery
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Worker{ev: ev, cfg: cfg, stdout: stdout, stderr: stderr}, nil
}

// Run scans [Start, End) until a match, the end of the range, an evaluator
// failure, or cancellation of ctx. It always returns a terminal Result.
func (w *Worker) Run(ctx context.Context) Result {
	fmt.Fprintln(w.stdout, protocol.FormatStarted(w.cfg.Chunk))

	res := w.scan(ctx)

	switch res.Status {
	case model.WorkerStatusSuccess:
		fmt.Fprintln(w.stdout, protocol.FormatSuccess(res.Payload))
	case model.WorkerStatusExhausted:
		fmt.Fprintln(w.stdout, protocol.FormatExhausted(w.cfg.Chunk))
	case model.WorkerStatusInterrupted:
		fmt.Fprintf(w.stdout, "Interrupted at counter %d.\n", res.Counter)
	default:
		fmt.Fprintf(w.stderr, "An unexpected error occurred in worker at counter %d: %v\n", res.Counter, res.Err)
	}
	return res
}

func (w *Worker) scan(ctx context.Context) (res Result) {
	start, end := w.cfg.Chunk.Start, w.cfg.Chunk.End
	counter := start

	defer func() {
		if r := recover(); r != nil {
			res = Result{
				Status:  model.WorkerStatusError,
				Counter: counter,
				Err:     fmt.Errorf("evaluator panic: %v", r),
			}
		}
	}()

	lastTime := w.cfg.Now()
	lastCounter := start

	for ; counter < end; counter++ {
		done := counter - start
		if done%ctxCheckEvery == 0 && ctx.Err() != nil {
			return Result{Status: model.WorkerStatusInterrupted, Counter: counter}
		}

		matched, payload, err := w.ev.Evaluate(counter)
		if err != nil {
			return Result{Status: model.WorkerStatusError, Counter: counter, Err: err}
		}
		if matched {
			return Result{Status: model.WorkerStatusSuccess, Counter: counter, Payload: payload}
		}

		if done > 0 && done%w.cfg.ProgressEvery == 0 {
			now := w.cfg.Now()
			elapsed := now.Sub(lastTime).Seconds()
			var rate float64
			if elapsed > 0 {
				rate = float64(counter-lastCounter) / elapsed
			}
			fmt.Fprintln(w.stdout, protocol.FormatProgress(counter, rate))
			lastTime = now
			lastCounter = counter
		}
	}
	return Result{Status: model.WorkerStatusExhausted, Counter: end - 1}
}
