package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/me/keysweep/internal/store"
	"github.com/me/keysweep/pkg/model"
)

// execute runs the root command with args in a fresh temp workspace and
// returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// workspace returns the common flags pointing every file into a temp dir.
func workspace(t *testing.T) (dir string, flags []string) {
	t.Helper()
	dir = t.TempDir()
	return dir, []string{
		"--env-file", filepath.Join(dir, ".env"),
		"--state-file", filepath.Join(dir, "keysweep.state"),
		"--ledger", filepath.Join(dir, "keysweep.db"),
		"--log-level", "error",
	}
}

func TestStateSetAndShow(t *testing.T) {
	_, flags := workspace(t)

	out, err := execute(t, append(flags, "state", "set", "1234567")...)
	if err != nil {
		t.Fatalf("state set: %v", err)
	}
	if !strings.Contains(out, "Cursor 0 -> 1234567") {
		t.Errorf("state set output = %q", out)
	}

	out, err = execute(t, append(flags, "state", "show")...)
	if err != nil {
		t.Fatalf("state show: %v", err)
	}
	if !strings.Contains(out, "1234567 (1,234,567)") {
		t.Errorf("state show output = %q", out)
	}
}

func TestStateSet_Invalid(t *testing.T) {
	_, flags := workspace(t)
	if _, err := execute(t, append(flags, "state", "set", "-5")...); err == nil {
		t.Fatal("expected error for negative counter")
	}
}

func TestConfigLayering(t *testing.T) {
	dir, _ := workspace(t)
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("KEYSWEEP_STATE_FILE="+filepath.Join(dir, "from-env.state")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("KEYSWEEP_STATE_FILE") })

	out, err := execute(t, "--env-file", envFile, "state", "show")
	if err != nil {
		t.Fatalf("state show: %v", err)
	}
	if !strings.Contains(out, "from-env.state") {
		t.Errorf("dotenv value not applied: %q", out)
	}

	out, err = execute(t, "--env-file", envFile, "--state-file", filepath.Join(dir, "from-flag.state"), "state", "show")
	if err != nil {
		t.Fatalf("state show: %v", err)
	}
	if !strings.Contains(out, "from-flag.state") {
		t.Errorf("flag did not override env: %q", out)
	}

	cfgFile := filepath.Join(dir, "keysweep.yaml")
	if err := os.WriteFile(cfgFile, []byte("chunk_size: 250\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	os.Unsetenv("KEYSWEEP_STATE_FILE")
	if _, err := execute(t, "--env-file", filepath.Join(dir, "none.env"), "--config", cfgFile, "state", "show"); err != nil {
		t.Fatalf("state show: %v", err)
	}
	if cfg.ChunkSize != 250 {
		t.Errorf("ChunkSize = %d, want 250 from config file", cfg.ChunkSize)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	_, flags := workspace(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"zero workers", []string{"run", "--workers", "0", "--target", "ab"}, "workers"},
		{"unknown evaluator", []string{"run", "--evaluator", "nope"}, "nope"},
		{"missing target", []string{"run"}, "target"},
		{"missing worker binary", []string{"run", "--target", "ab", "--worker-bin", "/nonexistent/keysweep-worker", "--log-file", ""}, "worker binary"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, append(flags, tt.args...)...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestChunksAndRuns(t *testing.T) {
	dir, flags := workspace(t)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	led, err := store.NewSQLiteLedger(filepath.Join(dir, "keysweep.db"), logger)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := led.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	run := &model.Run{ID: "run-abc", Workers: 2, ChunkSize: 1000, StartedAt: time.Now().UTC()}
	if err := led.CreateRun(ctx, run); err != nil {
		t.Fatal(err)
	}
	for i, state := range []model.ChunkState{model.ChunkStateExhausted, model.ChunkStateLost} {
		rec := &model.ChunkRecord{
			RunID:        run.ID,
			Seq:          i + 1,
			Slot:         i,
			Chunk:        model.Chunk{Start: uint64(i) * 1000, End: uint64(i+1) * 1000},
			DispatchedAt: time.Now().UTC(),
		}
		if err := led.RecordDispatch(ctx, rec); err != nil {
			t.Fatal(err)
		}
		code := i
		rec.State = state
		rec.ExitCode = &code
		if err := led.FinishChunk(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	final := uint64(2000)
	run.FinalCursor = &final
	run.Outcome = model.OutcomeInterrupted
	now := time.Now().UTC()
	run.FinishedAt = &now
	if err := led.FinishRun(ctx, run); err != nil {
		t.Fatal(err)
	}
	led.Close()

	out, err := execute(t, append(flags, "chunks")...)
	if err != nil {
		t.Fatalf("chunks: %v", err)
	}
	if !strings.Contains(out, "EXHAUSTED") || !strings.Contains(out, "LOST") {
		t.Errorf("chunks output = %q", out)
	}

	out, err = execute(t, append(flags, "chunks", "--lost")...)
	if err != nil {
		t.Fatalf("chunks --lost: %v", err)
	}
	if strings.Contains(out, "EXHAUSTED") || !strings.Contains(out, "LOST") {
		t.Errorf("chunks --lost output = %q", out)
	}

	out, err = execute(t, append(flags, "runs")...)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if !strings.Contains(out, "run-abc") || !strings.Contains(out, "interrupted") || !strings.Contains(out, "2000") {
		t.Errorf("runs output = %q", out)
	}
}

func TestChunks_NoLedger(t *testing.T) {
	dir, _ := workspace(t)
	_, err := execute(t, "--env-file", filepath.Join(dir, ".env"), "--ledger", "", "chunks")
	if err == nil || !strings.Contains(err.Error(), "no ledger") {
		t.Errorf("err = %v, want no ledger error", err)
	}
}

func runArgs(dir string, flags []string, extra ...string) []string {
	args := append(flags, "run",
		"--workers", "2",
		"--chunk-size", "500",
		"--progress-every", "100",
		"--tick", "5ms",
		"--grace-period", "5s",
		"--seed", "abcd",
		"--worker-bin", os.Args[0],
		"--log-file", filepath.Join(dir, "keysweep.log"),
	)
	return append(args, extra...)
}

func TestRun_FindsMatch(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns worker processes")
	}
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	dir, flags := workspace(t)
	target, payload := fingerprintAt(t, "abcd", 1234)

	out, err := execute(t, runArgs(dir, flags, "--target", target, "--log-level", "info")...)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "SUCCESS: "+payload+"\n" {
		t.Errorf("stdout = %q, want the success payload", out)
	}

	logData, err := os.ReadFile(filepath.Join(dir, "keysweep.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(logData), "GLOBAL SUCCESS") {
		t.Error("log file has no success banner")
	}

	cursor := store.NewCursorFile(filepath.Join(dir, "keysweep.state"), slog.New(slog.NewTextHandler(io.Discard, nil))).Load()
	if cursor < 1500 {
		t.Errorf("cursor = %d, want >= 1500", cursor)
	}
}

func TestRun_BoundedKeyspaceExhausts(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns worker processes")
	}
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	dir, flags := workspace(t)
	target, _ := fingerprintAt(t, "abcd", 5000)

	out, err := execute(t, runArgs(dir, flags, "--target", target, "--limit", "1200")...)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "" {
		t.Errorf("stdout = %q, want nothing", out)
	}

	out, err = execute(t, append(flags, "state", "show")...)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Cursor:   1200 ") {
		t.Errorf("state show = %q, want cursor 1200", out)
	}

	out, err = execute(t, append(flags, "runs")...)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "exhausted") {
		t.Errorf("runs = %q, want an exhausted run", out)
	}
}
