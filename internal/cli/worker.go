package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/me/keysweep/internal/config"
	"github.com/me/keysweep/internal/evaluator"
	"github.com/me/keysweep/internal/worker"
	"github.com/me/keysweep/pkg/model"
)

// RunWorker is the keysweep-worker entry point. It scans one chunk and returns
// the process exit code: 0 for success or exhaustion, 1 for an evaluator
// failure, 2 for bad usage, 130 when ctx is cancelled.
func RunWorker(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	wc := config.DefaultWorkerConfig()
	reg := evaluator.DefaultRegistry()

	fs := flag.NewFlagSet("keysweep-worker", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Uint64Var(&wc.Start, "start", 0, "First counter of the chunk (inclusive)")
	fs.Uint64Var(&wc.End, "end", 0, "End of the chunk (exclusive)")
	fs.Uint64Var(&wc.ProgressEvery, "progress-every", wc.ProgressEvery, "Counters between progress lines")
	fs.StringVar(&wc.Evaluator.Name, "evaluator", wc.Evaluator.Name, "Candidate evaluator ("+strings.Join(reg.Names(), ", ")+")")
	fs.StringVar(&wc.Evaluator.Target, "target", "", "Hex fingerprint prefix to search for")
	fs.StringVar(&wc.Evaluator.Seed, "seed", "", "Hex seed mixed into every candidate")
	fs.StringVar(&wc.Evaluator.Script, "script", "", "JavaScript evaluator source file")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return model.ExitOK
		}
		return model.ExitUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %v\n", fs.Args())
		return model.ExitUsage
	}
	if err := wc.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return model.ExitUsage
	}

	ev, err := reg.Build(evaluator.Config{
		Name:   wc.Evaluator.Name,
		Target: wc.Evaluator.Target,
		Seed:   wc.Evaluator.Seed,
		Script: wc.Evaluator.Script,
	})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return model.ExitUsage
	}

	w, err := worker.New(ev, worker.Config{
		Chunk:         model.Chunk{Start: wc.Start, End: wc.End},
		ProgressEvery: wc.ProgressEvery,
	}, stdout, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return model.ExitUsage
	}
	return w.Run(ctx).ExitCode()
}
