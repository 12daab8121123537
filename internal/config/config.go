package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/me/keysweep/pkg/model"
)

// EvaluatorConfig selects the candidate evaluator workers run.
type EvaluatorConfig struct {
	Name   string `yaml:"name"`   // sha256, js
	Target string `yaml:"target"` // hex fingerprint prefix
	Seed   string `yaml:"seed"`   // hex seed
	Script string `yaml:"script"` // js evaluator source file
}

// ManagerConfig holds configuration for the keysweep manager.
type ManagerConfig struct {
	Workers       int             `yaml:"workers"`        // concurrent worker processes (default NumCPU)
	ChunkSize     uint64          `yaml:"chunk_size"`     // counters per chunk
	Limit         uint64          `yaml:"limit"`          // exclusive keyspace bound, 0 = unbounded
	ProgressEvery uint64          `yaml:"progress_every"` // counters between worker progress lines
	Tick          time.Duration   `yaml:"tick"`           // dispatch loop interval
	GracePeriod   time.Duration   `yaml:"grace_period"`   // SIGTERM to SIGKILL window on shutdown
	StateFile     string          `yaml:"state_file"`     // plain-text cursor file
	LedgerPath    string          `yaml:"ledger"`         // SQLite chunk ledger, "" disables
	LogFile       string          `yaml:"log_file"`       // append-mode operator log, "" disables
	LogLevel      string          `yaml:"log_level"`      // debug, info, warn, error
	LogFormat     string          `yaml:"log_format"`     // text, json
	WorkerBin     string          `yaml:"worker_bin"`     // worker executable, "" = auto-detect
	StatusAddr    string          `yaml:"status_addr"`    // status API listen address, "" disables
	NATSURL       string          `yaml:"nats_url"`       // lifecycle event sink, "" disables
	NATSSubject   string          `yaml:"nats_subject"`   // subject prefix for lifecycle events
	Evaluator     EvaluatorConfig `yaml:"evaluator"`
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Workers:       runtime.NumCPU(),
		ChunkSize:     10_000_000,
		ProgressEvery: 100_000,
		Tick:          50 * time.Millisecond,
		GracePeriod:   5 * time.Second,
		StateFile:     "keysweep.state",
		LedgerPath:    "keysweep.db",
		LogFile:       "keysweep.log",
		LogLevel:      "info",
		LogFormat:     "text",
		NATSSubject:   "keysweep.events",
		Evaluator:     EvaluatorConfig{Name: "sha256"},
	}
}

// LoadFile merges a YAML config file into cfg. Fields absent from the file keep
// their current values.
func LoadFile(path string, cfg *ManagerConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg fields from KEYSWEEP_* environment variables.
func ApplyEnv(cfg *ManagerConfig) error {
	var ce model.ConfigError
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *uint64) {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
			if err != nil {
				ce.Add(key, "must be a non-negative integer")
				return
			}
			*dst = n
		}
	}

	if v, ok := os.LookupEnv("KEYSWEEP_WORKERS"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			ce.Add("KEYSWEEP_WORKERS", "must be an integer")
		} else {
			cfg.Workers = n
		}
	}
	num("KEYSWEEP_CHUNK_SIZE", &cfg.ChunkSize)
	num("KEYSWEEP_LIMIT", &cfg.Limit)
	str("KEYSWEEP_STATE_FILE", &cfg.StateFile)
	str("KEYSWEEP_LEDGER", &cfg.LedgerPath)
	str("KEYSWEEP_LOG_FILE", &cfg.LogFile)
	str("KEYSWEEP_WORKER_BIN", &cfg.WorkerBin)
	str("KEYSWEEP_NATS_URL", &cfg.NATSURL)
	str("KEYSWEEP_TARGET", &cfg.Evaluator.Target)
	str("KEYSWEEP_SEED", &cfg.Evaluator.Seed)
	return ce.ErrOrNil()
}

// Validate reports every invalid field at once.
func (c ManagerConfig) Validate() error {
	var ce model.ConfigError
	if c.Workers < 1 {
		ce.Add("workers", "must be at least 1")
	}
	if c.ChunkSize < 1 {
		ce.Add("chunk_size", "must be at least 1")
	}
	if c.ProgressEvery < 1 {
		ce.Add("progress_every", "must be at least 1")
	}
	if c.Tick <= 0 {
		ce.Add("tick", "must be positive")
	}
	if c.GracePeriod < 0 {
		ce.Add("grace_period", "must not be negative")
	}
	if strings.TrimSpace(c.StateFile) == "" {
		ce.Add("state_file", "is required")
	}
	if strings.TrimSpace(c.Evaluator.Name) == "" {
		ce.Add("evaluator.name", "is required")
	}
	return ce.ErrOrNil()
}

// WorkerArgs returns the evaluator flags forwarded to every worker process.
func (c ManagerConfig) WorkerArgs() []string {
	args := []string{
		"--evaluator", c.Evaluator.Name,
		"--progress-every", strconv.FormatUint(c.ProgressEvery, 10),
	}
	if c.Evaluator.Target != "" {
		args = append(args, "--target", c.Evaluator.Target)
	}
	if c.Evaluator.Seed != "" {
		args = append(args, "--seed", c.Evaluator.Seed)
	}
	if c.Evaluator.Script != "" {
		args = append(args, "--script", c.Evaluator.Script)
	}
	return args
}

// WorkerConfig holds configuration for one keysweep-worker process.
type WorkerConfig struct {
	Start         uint64
	End           uint64
	ProgressEvery uint64
	Evaluator     EvaluatorConfig
}

// DefaultWorkerConfig returns sensible defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		ProgressEvery: 100_000,
		Evaluator:     EvaluatorConfig{Name: "sha256"},
	}
}

// Validate reports every invalid field at once.
func (c WorkerConfig) Validate() error {
	var ce model.ConfigError
	if c.Start >= c.End {
		ce.Add("start", fmt.Sprintf("must be less than end (start=%d end=%d)", c.Start, c.End))
	}
	if c.ProgressEvery < 1 {
		ce.Add("progress_every", "must be at least 1")
	}
	if strings.TrimSpace(c.Evaluator.Name) == "" {
		ce.Add("evaluator", "is required")
	}
	return ce.ErrOrNil()
}
