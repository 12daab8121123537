package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/me/keysweep/pkg/model"
)

// WorkerBinName is the executable the manager looks for when none is configured.
const WorkerBinName = "keysweep-worker"

const (
	defaultLineBuffer = 256
	maxLineBytes      = 1 << 20
)

// LocalLauncher runs workers as local OS processes, each in its own process group.
type LocalLauncher struct {
	bin        string
	extraArgs  []string
	lineBuffer int
	logger     *slog.Logger
}

// NewLocalLauncher creates a LocalLauncher for the worker executable bin.
// extraArgs are appended after the chunk bounds on every launch.
func NewLocalLauncher(bin string, extraArgs []string, logger *slog.Logger) *LocalLauncher {
	return &LocalLauncher{
		bin:        bin,
		extraArgs:  extraArgs,
		lineBuffer: defaultLineBuffer,
		logger:     logger.With("component", "local-launcher"),
	}
}

// Args returns the argument vector (without the executable) for a chunk.
func (l *LocalLauncher) Args(c model.Chunk) []string {
	args := []string{
		"--start", strconv.FormatUint(c.Start, 10),
		"--end", strconv.FormatUint(c.End, 10),
	}
	return append(args, l.extraArgs...)
}

// Launch starts a worker for spec.Chunk. The context only bounds the start
// itself; stopping a running worker goes through Terminate and Kill.
func (l *LocalLauncher) Launch(ctx context.Context, spec Spec) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := spec.Chunk.Validate(); err != nil {
		return nil, err
	}

	cmd := exec.Command(l.bin, l.Args(spec.Chunk)...)
	cmd.Env = os.Environ()
	configureProcess(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker %d: stdout pipe: %w", spec.Seq, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("worker %d: stderr pipe: %w", spec.Seq, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("worker %d: start %s: %w", spec.Seq, l.bin, err)
	}

	p := &localProcess{
		cmd:   cmd,
		lines: make(chan model.Line, l.lineBuffer),
		done:  make(chan struct{}),
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go p.pump(stdout, model.StreamStdout, &wg)
	go p.pump(stderr, model.StreamStderr, &wg)
	go func() {
		// Wait must not run before the pipes are fully read.
		wg.Wait()
		close(p.lines)
		p.exitCode = exitCodeOf(cmd.Wait())
		close(p.done)
	}()

	l.logger.Debug("worker launched",
		"slot", spec.Slot,
		"seq", spec.Seq,
		"pid", cmd.Process.Pid,
		"command", append([]string{l.bin}, l.Args(spec.Chunk)...),
	)
	return p, nil
}

type localProcess struct {
	cmd      *exec.Cmd
	lines    chan model.Line
	done     chan struct{}
	exitCode int
}

func (p *localProcess) PID() int                 { return p.cmd.Process.Pid }
func (p *localProcess) Lines() <-chan model.Line { return p.lines }
func (p *localProcess) Done() <-chan struct{}    { return p.done }
func (p *localProcess) ExitCode() int            { return p.exitCode }

func (p *localProcess) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *localProcess) Terminate() error {
	if p.exited() {
		return nil
	}
	return terminateProcess(p.cmd)
}

func (p *localProcess) Kill() error {
	if p.exited() {
		return nil
	}
	return killProcess(p.cmd)
}

// pump forwards every line of r to the lines channel. The send blocks when the
// channel is full, which in turn blocks the worker's writes until the
// supervisor drains.
func (p *localProcess) pump(r io.Reader, stream model.Stream, wg *sync.WaitGroup) {
	defer wg.Done()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		p.lines <- model.Line{Stream: stream, Text: sc.Text(), At: time.Now()}
	}
	if err := sc.Err(); err != nil {
		p.lines <- model.Line{Stream: model.StreamStderr, Text: fmt.Sprintf("output %s unreadable: %v", stream, err), At: time.Now()}
		// Keep the pipe drained so the worker never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
	}
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// ResolveWorkerBin locates the worker executable. A configured value is looked
// up as given (a path or a name on PATH); otherwise the binary next to the
// running executable wins over one found on PATH.
func ResolveWorkerBin(configured string) (string, error) {
	if configured != "" {
		p, err := exec.LookPath(configured)
		if err != nil {
			return "", fmt.Errorf("worker binary %q: %w", configured, err)
		}
		return p, nil
	}

	name := WorkerBinName
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	if self, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), name)
		if info, err := os.Stat(sibling); err == nil && !info.IsDir() {
			return sibling, nil
		}
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("worker binary %s not found next to the manager or on PATH: %w", name, err)
	}
	return p, nil
}
