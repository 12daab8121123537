package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/me/keysweep/internal/executor"
	"github.com/me/keysweep/internal/notify"
	"github.com/me/keysweep/pkg/model"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memCursor is an in-memory CursorStore that records every save.
type memCursor struct {
	mu      sync.Mutex
	value   uint64
	saves   []uint64
	failAt  int // fail the n-th save (1-based), 0 = never
	failAll bool
}

func (m *memCursor) Load() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value
}

func (m *memCursor) Save(v uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll || (m.failAt > 0 && len(m.saves)+1 == m.failAt) {
		m.failAll = true
		return fmt.Errorf("%w: disk full", model.ErrStatePersist)
	}
	m.value = v
	m.saves = append(m.saves, v)
	return nil
}

func (m *memCursor) saved() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint64(nil), m.saves...)
}

// fakeProcess is a scripted worker. Terminate makes it exit with 130 unless
// ignoreTerm is set; Kill always makes it exit with -1.
type fakeProcess struct {
	pid        int
	spec       executor.Spec
	lines      chan model.Line
	done       chan struct{}
	ignoreTerm bool

	mu         sync.Mutex
	exitCode   int
	terminated bool
	killed     bool
	once       sync.Once
}

func newFakeProcess(pid int, spec executor.Spec) *fakeProcess {
	return &fakeProcess{
		pid:   pid,
		spec:  spec,
		lines: make(chan model.Line, 64),
		done:  make(chan struct{}),
	}
}

func (p *fakeProcess) PID() int                 { return p.pid }
func (p *fakeProcess) Lines() <-chan model.Line { return p.lines }
func (p *fakeProcess) Done() <-chan struct{}    { return p.done }

func (p *fakeProcess) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

func (p *fakeProcess) emit(text string) {
	p.lines <- model.Line{Stream: model.StreamStdout, Text: text, At: time.Now()}
}

func (p *fakeProcess) emitErr(text string) {
	p.lines <- model.Line{Stream: model.StreamStderr, Text: text, At: time.Now()}
}

func (p *fakeProcess) exit(code int) {
	p.once.Do(func() {
		p.mu.Lock()
		p.exitCode = code
		p.mu.Unlock()
		close(p.lines)
		close(p.done)
	})
}

func (p *fakeProcess) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *fakeProcess) Terminate() error {
	p.mu.Lock()
	p.terminated = true
	ignore := p.ignoreTerm
	p.mu.Unlock()
	if !ignore && !p.exited() {
		p.once.Do(func() {
			p.lines <- model.Line{Stream: model.StreamStdout, Text: "Interrupted at counter 7.", At: time.Now()}
			p.mu.Lock()
			p.exitCode = model.ExitInterrupted
			p.mu.Unlock()
			close(p.lines)
			close(p.done)
		})
	}
	return nil
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.exit(-1)
	return nil
}

func (p *fakeProcess) wasTerminated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated
}

func (p *fakeProcess) wasKilled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

// fakeLauncher hands out fakeProcesses and records every launch.
type fakeLauncher struct {
	mu         sync.Mutex
	procs      []*fakeProcess
	failNext   int
	ignoreTerm bool
	onLaunch   func(p *fakeProcess)
	nextPID    int
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{nextPID: 1000}
}

func (f *fakeLauncher) Launch(_ context.Context, spec executor.Spec) (executor.Process, error) {
	f.mu.Lock()
	if f.failNext > 0 {
		f.failNext--
		f.mu.Unlock()
		return nil, errors.New("exec format error")
	}
	f.nextPID++
	p := newFakeProcess(f.nextPID, spec)
	p.ignoreTerm = f.ignoreTerm
	f.procs = append(f.procs, p)
	hook := f.onLaunch
	f.mu.Unlock()
	if hook != nil {
		hook(p)
	}
	return p, nil
}

func (f *fakeLauncher) launched() []*fakeProcess {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeProcess(nil), f.procs...)
}

func (f *fakeLauncher) chunks() []model.Chunk {
	var out []model.Chunk
	for _, p := range f.launched() {
		out = append(out, p.spec.Chunk)
	}
	return out
}

// recordingNotifier keeps every event.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, ev notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingNotifier) Close() error { return nil }

func (r *recordingNotifier) count(t notify.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}
