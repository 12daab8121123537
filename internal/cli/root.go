package cli

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/keysweep/internal/config"
	"github.com/me/keysweep/internal/logging"
)

var (
	flagConfig    string
	flagEnvFile   string
	flagStateFile string
	flagLedger    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	// run flags
	flagWorkers       int
	flagChunkSize     uint64
	flagLimit         uint64
	flagProgressEvery uint64
	flagTick          time.Duration
	flagGrace         time.Duration
	flagLogFile       string
	flagWorkerBin     string
	flagStatusAddr    string
	flagNATSURL       string
	flagNATSSubject   string
	flagEvaluator     string
	flagTarget        string
	flagSeed          string
	flagScript        string

	cfg    config.ManagerConfig
	logger *slog.Logger
)

// NewRootCmd creates the root cobra command for the keysweep manager.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "keysweep",
		Short: "keysweep: parallel keyspace search manager",
		Long: "keysweep splits an ordered keyspace into chunks, runs a bounded pool of\n" +
			"keysweep-worker processes over them, and checkpoints progress so a restart\n" +
			"never skips keyspace.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLogger(logging.ParseLevel(flagLogLevel), flagLogFormat)
			return loadConfig(cmd)
		},
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "YAML config file")
	pf.StringVar(&flagEnvFile, "env-file", ".env", "dotenv file with KEYSWEEP_* defaults (missing file is ignored)")
	pf.StringVar(&flagStateFile, "state-file", "", "Cursor state file (default keysweep.state)")
	pf.StringVar(&flagLedger, "ledger", "", "SQLite chunk ledger path (default keysweep.db)")
	pf.BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	pf.StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newStateCmd(),
		newChunksCmd(),
		newRunsCmd(),
	)

	return root
}

// loadConfig layers defaults, the config file, the environment, and finally
// any flag the user set explicitly.
func loadConfig(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(flagEnvFile); err != nil {
		return err
	}
	cfg = config.DefaultManagerConfig()
	if flagConfig != "" {
		if err := config.LoadFile(flagConfig, &cfg); err != nil {
			return err
		}
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return err
	}

	f := cmd.Flags()
	set := func(name string, apply func()) {
		if f.Lookup(name) != nil && f.Changed(name) {
			apply()
		}
	}
	set("state-file", func() { cfg.StateFile = flagStateFile })
	set("ledger", func() { cfg.LedgerPath = flagLedger })
	set("log-level", func() { cfg.LogLevel = flagLogLevel })
	set("log-format", func() { cfg.LogFormat = flagLogFormat })
	if flagDebug {
		cfg.LogLevel = "debug"
	}
	set("workers", func() { cfg.Workers = flagWorkers })
	set("chunk-size", func() { cfg.ChunkSize = flagChunkSize })
	set("limit", func() { cfg.Limit = flagLimit })
	set("progress-every", func() { cfg.ProgressEvery = flagProgressEvery })
	set("tick", func() { cfg.Tick = flagTick })
	set("grace-period", func() { cfg.GracePeriod = flagGrace })
	set("log-file", func() { cfg.LogFile = flagLogFile })
	set("worker-bin", func() { cfg.WorkerBin = flagWorkerBin })
	set("status-addr", func() { cfg.StatusAddr = flagStatusAddr })
	set("nats-url", func() { cfg.NATSURL = flagNATSURL })
	set("nats-subject", func() { cfg.NATSSubject = flagNATSSubject })
	set("evaluator", func() { cfg.Evaluator.Name = flagEvaluator })
	set("target", func() { cfg.Evaluator.Target = flagTarget })
	set("seed", func() { cfg.Evaluator.Seed = flagSeed })
	set("script", func() { cfg.Evaluator.Script = flagScript })
	return nil
}
