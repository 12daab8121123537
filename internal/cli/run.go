package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/keysweep/internal/config"
	"github.com/me/keysweep/internal/evaluator"
	"github.com/me/keysweep/internal/executor"
	"github.com/me/keysweep/internal/logging"
	"github.com/me/keysweep/internal/notify"
	"github.com/me/keysweep/internal/scheduler"
	"github.com/me/keysweep/internal/server"
	"github.com/me/keysweep/internal/store"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Search the keyspace until a match, exhaustion, or interrupt",
		Long: "Run dispatches chunks to keysweep-worker processes, resuming from the\n" +
			"cursor in the state file. Ctrl-C terminates all workers and exits cleanly.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runManager(cmd.Context(), cmd)
		},
	}

	// Flags only override the layered config when set; these defaults are for --help.
	d := config.DefaultManagerConfig()
	f := cmd.Flags()
	f.IntVarP(&flagWorkers, "workers", "w", d.Workers, "Concurrent worker processes")
	f.Uint64Var(&flagChunkSize, "chunk-size", d.ChunkSize, "Counters per chunk")
	f.Uint64Var(&flagLimit, "limit", d.Limit, "Exclusive keyspace bound (0 = unbounded)")
	f.Uint64Var(&flagProgressEvery, "progress-every", d.ProgressEvery, "Counters between worker progress lines")
	f.DurationVar(&flagTick, "tick", d.Tick, "Dispatch loop interval")
	f.DurationVar(&flagGrace, "grace-period", d.GracePeriod, "Time workers get to exit after SIGTERM before SIGKILL")
	f.StringVar(&flagLogFile, "log-file", d.LogFile, "Append-mode log file (empty disables)")
	f.StringVar(&flagWorkerBin, "worker-bin", d.WorkerBin, "Worker executable (default: keysweep-worker next to this binary or on PATH)")
	f.StringVar(&flagStatusAddr, "status-addr", d.StatusAddr, "Serve the status API and dashboard on this address (e.g. :8090)")
	f.StringVar(&flagNATSURL, "nats-url", d.NATSURL, "Publish lifecycle events to this NATS server")
	f.StringVar(&flagNATSSubject, "nats-subject", d.NATSSubject, "Subject prefix for lifecycle events")
	f.StringVar(&flagEvaluator, "evaluator", d.Evaluator.Name, "Candidate evaluator (sha256, js)")
	f.StringVar(&flagTarget, "target", d.Evaluator.Target, "Hex fingerprint prefix to search for")
	f.StringVar(&flagSeed, "seed", d.Evaluator.Seed, "Hex seed mixed into every candidate")
	f.StringVar(&flagScript, "script", d.Evaluator.Script, "JavaScript evaluator source (with --evaluator js)")
	return cmd
}

func runManager(ctx context.Context, cmd *cobra.Command) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	// Build the evaluator once so bad targets or scripts fail before any spawn.
	if _, err := evaluator.DefaultRegistry().Build(evaluator.Config{
		Name:   cfg.Evaluator.Name,
		Target: cfg.Evaluator.Target,
		Seed:   cfg.Evaluator.Seed,
		Script: cfg.Evaluator.Script,
	}); err != nil {
		return fmt.Errorf("evaluator: %w", err)
	}

	teeLogger, closeLog, err := logging.NewTeeLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()
	logger = teeLogger

	bin, err := executor.ResolveWorkerBin(cfg.WorkerBin)
	if err != nil {
		return err
	}

	ledger, err := openLedger(ctx, false)
	if err != nil {
		return err
	}
	defer ledger.Close()

	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.NATSURL != "" {
		n, err := notify.ConnectNATS(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			return err
		}
		notifier = n
	}
	defer notifier.Close()

	cursor := store.NewCursorFile(cfg.StateFile, logger)
	alloc, err := scheduler.NewAllocator(cursor, cfg.ChunkSize, cfg.Limit)
	if err != nil {
		return err
	}
	launcher := executor.NewLocalLauncher(bin, cfg.WorkerArgs(), logger)
	loop := scheduler.NewLoop(scheduler.Config{
		Workers:     cfg.Workers,
		Tick:        cfg.Tick,
		GracePeriod: cfg.GracePeriod,
	}, alloc, launcher, ledger, notifier, logger)

	logger.Info("configuration",
		"worker_bin", bin,
		"evaluator", cfg.Evaluator.Name,
		"state_file", cursor.Path(),
		"ledger", cfg.LedgerPath,
		"limit", cfg.Limit,
	)

	if cfg.StatusAddr != "" {
		srvCtx, stopSrv := context.WithCancel(context.WithoutCancel(ctx))
		defer stopSrv()
		srv := server.New(loop, ledger, logger)
		go func() {
			if err := srv.ListenAndServe(srvCtx, cfg.StatusAddr); err != nil {
				logger.Error("status api stopped", "error", err)
			}
		}()
	}

	report, err := loop.Run(ctx)
	if report.Matched {
		fmt.Fprintf(cmd.OutOrStdout(), "SUCCESS: %s\n", report.Payload)
	}
	if err != nil {
		return fmt.Errorf("run %s failed: %w", report.RunID, err)
	}
	return nil
}

// openLedger opens the configured ledger. With required set, a disabled ledger
// is an error instead of a no-op.
func openLedger(ctx context.Context, required bool) (store.Ledger, error) {
	if cfg.LedgerPath == "" {
		if required {
			return nil, fmt.Errorf("no ledger configured (set --ledger or KEYSWEEP_LEDGER)")
		}
		return store.NopLedger{}, nil
	}
	led, err := store.NewSQLiteLedger(cfg.LedgerPath, logger)
	if err != nil {
		return nil, err
	}
	if err := led.Migrate(ctx); err != nil {
		led.Close()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return led, nil
}
