//go:build !windows

package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/me/keysweep/pkg/model"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func launchFake(t *testing.T, mode string, chunk model.Chunk, extra ...string) Process {
	t.Helper()
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	t.Setenv("FAKE_WORKER_MODE", mode)

	l := NewLocalLauncher(os.Args[0], extra, newTestLogger())
	p, err := l.Launch(context.Background(), Spec{Slot: 0, Seq: 1, Chunk: chunk})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	t.Cleanup(func() {
		_ = p.Kill()
		for range p.Lines() {
		}
		<-p.Done()
	})
	return p
}

// collect reads Lines until closed, then waits for Done.
func collect(t *testing.T, p Process) []model.Line {
	t.Helper()
	var out []model.Line
	timeout := time.After(10 * time.Second)
	for {
		select {
		case l, ok := <-p.Lines():
			if !ok {
				select {
				case <-p.Done():
				case <-timeout:
					t.Fatal("process did not finish")
				}
				return out
			}
			out = append(out, l)
		case <-timeout:
			t.Fatal("timed out reading output")
		}
	}
}

func texts(lines []model.Line, stream model.Stream) []string {
	var out []string
	for _, l := range lines {
		if l.Stream == stream {
			out = append(out, l.Text)
		}
	}
	return out
}

func TestLocalLauncher_Args(t *testing.T) {
	l := NewLocalLauncher("keysweep-worker", []string{"--evaluator", "sha256"}, newTestLogger())
	got := l.Args(model.Chunk{Start: 1000, End: 2000})
	want := []string{"--start", "1000", "--end", "2000", "--evaluator", "sha256"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Args = %v, want %v", got, want)
	}
}

func TestLocalLauncher_InvalidChunk(t *testing.T) {
	l := NewLocalLauncher(os.Args[0], nil, newTestLogger())
	_, err := l.Launch(context.Background(), Spec{Chunk: model.Chunk{Start: 5, End: 5}})
	if err == nil {
		t.Fatal("expected error for empty chunk")
	}
}

func TestLocalLauncher_MissingBinary(t *testing.T) {
	l := NewLocalLauncher(filepath.Join(t.TempDir(), "nope"), nil, newTestLogger())
	_, err := l.Launch(context.Background(), Spec{Chunk: model.Chunk{Start: 0, End: 10}})
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
}

func TestLocalLauncher_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l := NewLocalLauncher(os.Args[0], nil, newTestLogger())
	if _, err := l.Launch(ctx, Spec{Chunk: model.Chunk{Start: 0, End: 10}}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestLocalProcess_Exhausted(t *testing.T) {
	p := launchFake(t, "exhaust", model.Chunk{Start: 0, End: 1000})
	lines := collect(t, p)

	stdout := texts(lines, model.StreamStdout)
	want := []string{
		"Starting search from 0 to 1000...",
		"Counter: 0 | Keys/sec: 10.00",
		"Finished search from 0 to 1000. Key not found in this range.",
	}
	if !reflect.DeepEqual(stdout, want) {
		t.Errorf("stdout = %q, want %q", stdout, want)
	}
	if p.ExitCode() != 0 {
		t.Errorf("ExitCode = %d, want 0", p.ExitCode())
	}
	if p.PID() <= 0 {
		t.Errorf("PID = %d", p.PID())
	}
}

func TestLocalProcess_Success(t *testing.T) {
	p := launchFake(t, "success", model.Chunk{Start: 1000, End: 2000})
	lines := collect(t, p)

	stdout := texts(lines, model.StreamStdout)
	if len(stdout) != 1 || stdout[0] != "SUCCESS: found-1000" {
		t.Errorf("stdout = %q", stdout)
	}
	if p.ExitCode() != 0 {
		t.Errorf("ExitCode = %d, want 0", p.ExitCode())
	}
}

func TestLocalProcess_Error(t *testing.T) {
	p := launchFake(t, "error", model.Chunk{Start: 0, End: 10})
	lines := collect(t, p)

	stderr := texts(lines, model.StreamStderr)
	if len(stderr) != 1 || stderr[0] != "evaluator exploded" {
		t.Errorf("stderr = %q", stderr)
	}
	if p.ExitCode() != 1 {
		t.Errorf("ExitCode = %d, want 1", p.ExitCode())
	}
}

func TestLocalProcess_ExtraArgs(t *testing.T) {
	p := launchFake(t, "args", model.Chunk{Start: 3, End: 9}, "--evaluator", "js")
	stdout := texts(collect(t, p), model.StreamStdout)
	want := []string{"--start", "3", "--end", "9", "--evaluator", "js"}
	if !reflect.DeepEqual(stdout, want) {
		t.Errorf("argv = %q, want %q", stdout, want)
	}
}

func TestLocalProcess_OutputExceedsBuffer(t *testing.T) {
	p := launchFake(t, "chatty", model.Chunk{Start: 0, End: 10})

	// Let the worker fill the channel before anyone reads.
	time.Sleep(100 * time.Millisecond)
	select {
	case <-p.Done():
		t.Fatal("process reaped before its output was drained")
	default:
	}

	stdout := texts(collect(t, p), model.StreamStdout)
	if len(stdout) != 2000 {
		t.Fatalf("got %d lines, want 2000", len(stdout))
	}
	for i, l := range stdout[:3] {
		if want := fmt.Sprintf("line %d", i); l != want {
			t.Errorf("line %d = %q, want %q", i, l, want)
		}
	}
}

func TestLocalProcess_Terminate(t *testing.T) {
	p := launchFake(t, "hang", model.Chunk{Start: 0, End: 10})

	select {
	case l := <-p.Lines():
		if l.Text != "ready" {
			t.Fatalf("first line = %q", l.Text)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("fake worker never became ready")
	}

	if err := p.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	collect(t, p)
	if p.ExitCode() != -1 {
		t.Errorf("ExitCode = %d, want -1 for a signalled process", p.ExitCode())
	}
	if err := p.Terminate(); err != nil {
		t.Errorf("Terminate after exit: %v", err)
	}
}

func TestLocalProcess_KillAfterIgnoredTerminate(t *testing.T) {
	p := launchFake(t, "ignore-term", model.Chunk{Start: 0, End: 10})

	select {
	case <-p.Lines():
	case <-time.After(10 * time.Second):
		t.Fatal("fake worker never became ready")
	}

	if err := p.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	select {
	case <-p.Done():
		t.Fatal("process exited despite ignoring SIGTERM")
	case <-time.After(200 * time.Millisecond):
	}

	if err := p.Kill(); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	collect(t, p)
	if p.ExitCode() != -1 {
		t.Errorf("ExitCode = %d, want -1", p.ExitCode())
	}
}

func TestResolveWorkerBin(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "my-worker")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := ResolveWorkerBin(bin)
	if err != nil {
		t.Fatalf("ResolveWorkerBin(%q): %v", bin, err)
	}
	if got != bin {
		t.Errorf("ResolveWorkerBin = %q, want %q", got, bin)
	}

	if _, err := ResolveWorkerBin(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing configured binary")
	}

	t.Setenv("PATH", dir)
	if _, err := ResolveWorkerBin(""); err == nil {
		t.Error("expected error when keysweep-worker is nowhere to be found")
	}

	named := filepath.Join(dir, WorkerBinName)
	if err := os.WriteFile(named, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	got, err = ResolveWorkerBin("")
	if err != nil {
		t.Fatalf("ResolveWorkerBin(\"\"): %v", err)
	}
	if got != named {
		t.Errorf("ResolveWorkerBin = %q, want %q", got, named)
	}
}
