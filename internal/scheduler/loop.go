package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/me/keysweep/internal/executor"
	"github.com/me/keysweep/internal/notify"
	"github.com/me/keysweep/internal/protocol"
	"github.com/me/keysweep/internal/store"
	"github.com/me/keysweep/pkg/model"
)

// maxLinesPerTick bounds how many lines one worker can feed the loop per tick
// so a chatty worker cannot starve the others.
const maxLinesPerTick = 1024

const successBanner = "!!!!!!!!!! GLOBAL SUCCESS !!!!!!!!!!"

// Config holds scheduler configuration.
type Config struct {
	Workers     int
	Tick        time.Duration
	GracePeriod time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:     runtime.NumCPU(),
		Tick:        50 * time.Millisecond,
		GracePeriod: 5 * time.Second,
	}
}

// Report summarizes a finished run.
type Report struct {
	RunID      string
	Outcome    model.Outcome
	Payload    string
	Matched    bool
	Cursor     uint64
	Dispatched int
	Lost       int
}

// handle is one occupied pool slot.
type handle struct {
	slot        int
	seq         int
	proc        executor.Process
	chunk       model.Chunk
	rec         *model.ChunkRecord
	startedAt   time.Time
	sawSuccess  bool
	lastCounter *uint64
	rate        float64
}

// Loop is the single-goroutine dispatch loop. Only Snapshot may be called
// from other goroutines.
type Loop struct {
	cfg      Config
	alloc    *Allocator
	launcher executor.Launcher
	ledger   store.Ledger
	notifier notify.Notifier
	coord    *Coordinator
	logger   *slog.Logger

	run       *model.Run
	pool      map[int]*handle
	seq       int
	lost      int
	exhausted bool
	matched   bool
	payload   string
	fatal     error
	started   bool
	snapshots snapshotBox
}

// NewLoop creates a dispatch loop. A nil ledger or notifier disables that sink.
func NewLoop(cfg Config, alloc *Allocator, launcher executor.Launcher, ledger store.Ledger, notifier notify.Notifier, logger *slog.Logger) *Loop {
	if ledger == nil {
		ledger = store.NopLedger{}
	}
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	l := &Loop{
		cfg:      cfg,
		alloc:    alloc,
		launcher: launcher,
		ledger:   ledger,
		notifier: notifier,
		coord:    NewCoordinator(),
		logger:   logger.With("component", "scheduler"),
		pool:     make(map[int]*handle),
		run: &model.Run{
			ID:          uuid.New().String(),
			Workers:     cfg.Workers,
			ChunkSize:   alloc.Size(),
			StartCursor: alloc.Cursor(),
			StartedAt:   time.Now().UTC(),
		},
	}
	l.publish()
	return l
}

// RunID returns the id recorded for this run in the ledger.
func (l *Loop) RunID() string { return l.run.ID }

// Phase returns the coordinator phase.
func (l *Loop) Phase() model.Phase { return l.coord.Phase() }

// Snapshot returns the most recently published loop state.
func (l *Loop) Snapshot() Snapshot { return l.snapshots.load() }

// Run drives the loop until shutdown is triggered, then drains the pool.
// The returned error is non-nil exactly when the outcome is OutcomeFailed.
func (l *Loop) Run(ctx context.Context) (Report, error) {
	l.begin(ctx)

	ticker := time.NewTicker(l.cfg.Tick)
	defer ticker.Stop()

	for l.coord.Accepting() {
		if ctx.Err() != nil {
			l.trigger(model.OutcomeInterrupted, "interrupt received")
			break
		}
		if err := l.safeTick(ctx); err != nil {
			l.fatal = err
			l.trigger(model.OutcomeFailed, err.Error())
			break
		}
		if !l.coord.Accepting() {
			break
		}
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}

	return l.Shutdown(ctx)
}

func (l *Loop) begin(ctx context.Context) {
	if l.started {
		return
	}
	l.started = true
	bg := context.WithoutCancel(ctx)
	if err := l.ledger.CreateRun(bg, l.run); err != nil {
		l.logger.Warn("ledger: record run", "run_id", l.run.ID, "error", err)
	}
	l.notifyEvent(bg, notify.Event{Type: notify.EventRunStarted})
	l.logger.Info("manager started",
		"run_id", l.run.ID,
		"workers", l.cfg.Workers,
		"chunk_size", humanize.Comma(int64(l.alloc.Size())),
		"cursor", l.alloc.Cursor(),
	)
}

// safeTick runs Tick and converts a panic into a fatal error.
func (l *Loop) safeTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch loop panic: %v", r)
		}
	}()
	return l.Tick(ctx)
}

// Tick runs one iteration: reap exited workers, fill free slots, drain
// output, and check for exhaustion. A returned error is fatal to the run.
func (l *Loop) Tick(ctx context.Context) error {
	l.begin(ctx)

	// Phase 1: reap exited workers and free their slots.
	l.reap(ctx)

	// Phase 2: fill free slots with fresh chunks.
	if err := l.fill(ctx); err != nil {
		return err
	}

	// Phase 3: classify whatever output the running workers produced.
	l.drain(ctx)

	// Phase 4: nothing left to hand out and nobody running.
	if l.exhausted && len(l.pool) == 0 {
		l.trigger(model.OutcomeExhausted, "keyspace exhausted")
	}

	l.publish()
	return nil
}

func (l *Loop) reap(ctx context.Context) {
	for _, h := range l.sortedHandles() {
		select {
		case <-h.proc.Done():
		default:
			continue
		}
		// Lines is closed before Done, so this flushes the remainder.
		for line := range h.proc.Lines() {
			l.handleLine(ctx, h, line)
		}
		l.finish(ctx, h)
	}
}

func (l *Loop) finish(ctx context.Context, h *handle) {
	code := h.proc.ExitCode()
	status := model.StatusFromExit(code, h.sawSuccess)
	if h.sawSuccess {
		status = model.WorkerStatusSuccess
	}
	// Only shutdown interrupts workers; a signal death while active is a failure.
	if status == model.WorkerStatusInterrupted && l.coord.Accepting() {
		status = model.WorkerStatusError
	}
	delete(l.pool, h.slot)

	logger := l.logger.With("slot", h.slot, "seq", h.seq, "pid", h.proc.PID(), "range", h.chunk.String())
	switch status {
	case model.WorkerStatusSuccess:
		logger.Info("worker exited after success", "exit_code", code)
	case model.WorkerStatusExhausted:
		logger.Info("worker finished chunk", "elapsed", time.Since(h.startedAt).Round(time.Millisecond))
	case model.WorkerStatusInterrupted:
		logger.Warn("worker interrupted, chunk incomplete", "exit_code", code)
	default:
		l.lost++
		logger.Error("worker failed, chunk lost", "exit_code", code)
	}

	now := time.Now().UTC()
	h.rec.State = model.ChunkStateFor(status)
	h.rec.ExitCode = &code
	h.rec.LastCounter = h.lastCounter
	h.rec.FinishedAt = &now
	bg := context.WithoutCancel(ctx)
	if err := l.ledger.FinishChunk(bg, h.rec); err != nil {
		logger.Warn("ledger: finish chunk", "error", err)
	}

	evType := notify.EventChunkFinished
	if status == model.WorkerStatusError {
		evType = notify.EventChunkLost
	}
	slot := h.slot
	l.notifyEvent(bg, notify.Event{
		Type: evType, Slot: &slot, Seq: h.seq, PID: h.proc.PID(),
		Chunk: &h.chunk, Status: status,
	})
}

func (l *Loop) fill(ctx context.Context) error {
	for l.coord.Accepting() && !l.exhausted && len(l.pool) < l.cfg.Workers {
		slot := l.freeSlot()

		chunk, err := l.alloc.Allocate()
		if errors.Is(err, model.ErrKeyspaceExhausted) {
			l.exhausted = true
			l.logger.Info("keyspace exhausted, no more chunks to dispatch", "cursor", l.alloc.Cursor())
			return nil
		}
		if err != nil {
			return err
		}

		l.seq++
		rec := &model.ChunkRecord{
			RunID:        l.run.ID,
			Seq:          l.seq,
			Slot:         slot,
			Chunk:        chunk,
			State:        model.ChunkStateDispatched,
			DispatchedAt: time.Now().UTC(),
		}
		bg := context.WithoutCancel(ctx)

		proc, err := l.launcher.Launch(ctx, executor.Spec{Slot: slot, Seq: l.seq, Chunk: chunk})
		if err != nil {
			l.lost++
			l.logger.Error("spawn failed, chunk lost",
				"slot", slot, "seq", l.seq, "range", chunk.String(), "error", err)
			rec.State = model.ChunkStateLost
			if lerr := l.ledger.RecordDispatch(bg, rec); lerr != nil {
				l.logger.Warn("ledger: record lost chunk", "seq", l.seq, "error", lerr)
			}
			l.notifyEvent(bg, notify.Event{Type: notify.EventChunkLost, Slot: &slot, Seq: l.seq, Chunk: &chunk})
			// Leave the slot empty until the next tick.
			return nil
		}

		rec.PID = proc.PID()
		if err := l.ledger.RecordDispatch(bg, rec); err != nil {
			l.logger.Warn("ledger: record dispatch", "seq", l.seq, "error", err)
		}
		l.pool[slot] = &handle{
			slot:      slot,
			seq:       l.seq,
			proc:      proc,
			chunk:     chunk,
			rec:       rec,
			startedAt: time.Now(),
		}
		l.logger.Info("dispatched worker",
			"slot", slot,
			"seq", l.seq,
			"pid", proc.PID(),
			"range", chunk.String(),
			"cursor", l.alloc.Cursor(),
		)
		l.notifyEvent(bg, notify.Event{
			Type: notify.EventChunkDispatched, Slot: &slot, Seq: l.seq, PID: proc.PID(), Chunk: &chunk,
		})
	}
	return nil
}

func (l *Loop) drain(ctx context.Context) {
	for _, h := range l.sortedHandles() {
	lines:
		for i := 0; i < maxLinesPerTick; i++ {
			select {
			case line, ok := <-h.proc.Lines():
				if !ok {
					break lines
				}
				l.handleLine(ctx, h, line)
			default:
				break lines
			}
		}
	}
}

func (l *Loop) handleLine(ctx context.Context, h *handle, line model.Line) {
	ev := protocol.Classify(line)
	logger := l.logger.With("slot", h.slot, "seq", h.seq, "pid", h.proc.PID())

	switch ev.Kind {
	case model.EventSuccess:
		h.sawSuccess = true
		if l.matched {
			logger.Warn("additional success ignored", "payload", ev.Payload, "range", h.chunk.String())
			return
		}
		l.matched = true
		l.payload = ev.Payload
		if !l.trigger(model.OutcomeSuccess, "match reported") {
			prev := l.coord.Reason()
			if l.coord.Promote(model.OutcomeSuccess, "match reported during shutdown") {
				logger.Warn("match reported during shutdown, outcome is now success", "previous_reason", prev)
			}
		}
		logger.Info(successBanner, "payload", ev.Payload, "range", h.chunk.String())
		slot := h.slot
		l.notifyEvent(context.WithoutCancel(ctx), notify.Event{
			Type: notify.EventSuccess, Slot: &slot, Seq: h.seq, PID: h.proc.PID(),
			Chunk: &h.chunk, Payload: ev.Payload,
		})
	case model.EventProgress:
		counter := ev.Counter
		h.lastCounter = &counter
		h.rate = ev.Rate
		logger.Info("worker progress",
			"counter", humanize.Comma(int64(ev.Counter)),
			"keys_per_sec", humanize.CommafWithDigits(ev.Rate, 2),
		)
	default:
		if ev.Stream == model.StreamStderr {
			logger.Error("worker_line", "stream", ev.Stream, "text", ev.Text)
			return
		}
		logger.Info("worker_line", "stream", ev.Stream, "text", ev.Text)
	}
}

// Shutdown stops dispatching, terminates every running worker, waits up to the
// grace period before killing stragglers, and persists the final cursor.
// Calling it on a still-active loop counts as an interrupt.
func (l *Loop) Shutdown(ctx context.Context) (Report, error) {
	l.begin(ctx)
	l.trigger(model.OutcomeInterrupted, "shutdown requested")
	bg := context.WithoutCancel(ctx)

	for _, h := range l.sortedHandles() {
		l.logger.Info("terminating worker", "slot", h.slot, "seq", h.seq, "pid", h.proc.PID())
		if err := h.proc.Terminate(); err != nil {
			l.logger.Warn("terminate worker", "slot", h.slot, "pid", h.proc.PID(), "error", err)
		}
	}

	grace := time.NewTimer(l.cfg.GracePeriod)
	defer grace.Stop()
	ticker := time.NewTicker(l.cfg.Tick)
	defer ticker.Stop()

	killed := false
	for {
		l.reap(bg)
		l.drain(bg)
		l.publish()
		if len(l.pool) == 0 {
			break
		}
		select {
		case <-grace.C:
			if !killed {
				killed = true
				for _, h := range l.sortedHandles() {
					l.logger.Warn("worker ignored terminate, killing", "slot", h.slot, "pid", h.proc.PID())
					if err := h.proc.Kill(); err != nil {
						l.logger.Error("kill worker", "slot", h.slot, "pid", h.proc.PID(), "error", err)
					}
				}
			}
		case <-ticker.C:
		}
	}

	cursor := l.alloc.Cursor()
	if err := l.alloc.Persist(); err != nil {
		l.logger.Error("final state save failed", "cursor", cursor, "error", err)
		if l.coord.Outcome() != model.OutcomeSuccess {
			l.fatal = errors.Join(l.fatal, err)
			l.coord.Fail(err.Error())
		}
	}
	l.coord.Halt()

	outcome := l.coord.Outcome()
	now := time.Now().UTC()
	l.run.FinalCursor = &cursor
	l.run.Outcome = outcome
	l.run.Payload = l.payload
	l.run.FinishedAt = &now
	if err := l.ledger.FinishRun(bg, l.run); err != nil {
		l.logger.Warn("ledger: finish run", "run_id", l.run.ID, "error", err)
	}
	l.notifyEvent(bg, notify.Event{Type: notify.EventRunFinished, Outcome: outcome, Payload: l.payload})
	l.publish()

	l.logger.Info("manager halted",
		"run_id", l.run.ID,
		"outcome", outcome,
		"reason", l.coord.Reason(),
		"cursor", cursor,
		"dispatched", l.seq,
		"lost", l.lost,
	)

	report := Report{
		RunID:      l.run.ID,
		Outcome:    outcome,
		Payload:    l.payload,
		Matched:    l.matched,
		Cursor:     cursor,
		Dispatched: l.seq,
		Lost:       l.lost,
	}
	if outcome == model.OutcomeFailed {
		if l.fatal == nil {
			l.fatal = errors.New(l.coord.Reason())
		}
		return report, l.fatal
	}
	return report, nil
}

// trigger starts shutdown; it reports whether this call decided the outcome.
func (l *Loop) trigger(outcome model.Outcome, reason string) bool {
	if !l.coord.Trigger(outcome, reason) {
		return false
	}
	level := slog.LevelInfo
	if outcome == model.OutcomeFailed {
		level = slog.LevelError
	}
	l.logger.Log(context.Background(), level, "shutdown triggered",
		"outcome", outcome, "reason", reason, "active_workers", len(l.pool))
	return true
}

func (l *Loop) notifyEvent(ctx context.Context, ev notify.Event) {
	ev.RunID = l.run.ID
	ev.Cursor = l.alloc.Cursor()
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	if err := l.notifier.Notify(ctx, ev); err != nil {
		l.logger.Warn("notify", "event", ev.Type, "error", err)
	}
}

// freeSlot returns the lowest slot id not in the pool.
func (l *Loop) freeSlot() int {
	for slot := 0; ; slot++ {
		if _, taken := l.pool[slot]; !taken {
			return slot
		}
	}
}

func (l *Loop) sortedHandles() []*handle {
	hs := make([]*handle, 0, len(l.pool))
	for _, h := range l.pool {
		hs = append(hs, h)
	}
	sort.Slice(hs, func(i, j int) bool { return hs[i].slot < hs[j].slot })
	return hs
}

func (l *Loop) publish() {
	workers := make([]model.WorkerInfo, 0, len(l.pool))
	for _, h := range l.sortedHandles() {
		info := model.WorkerInfo{
			Slot:      h.slot,
			Seq:       h.seq,
			PID:       h.proc.PID(),
			Chunk:     h.chunk,
			Status:    model.WorkerStatusRunning,
			Rate:      h.rate,
			StartedAt: h.startedAt,
		}
		if h.lastCounter != nil {
			info.LastCounter = *h.lastCounter
		}
		workers = append(workers, info)
	}
	l.snapshots.store(Snapshot{
		RunID:      l.run.ID,
		Phase:      l.coord.Phase(),
		Outcome:    l.coord.Outcome(),
		Payload:    l.payload,
		Cursor:     l.alloc.Cursor(),
		ChunkSize:  l.alloc.Size(),
		MaxWorkers: l.cfg.Workers,
		Dispatched: l.seq,
		Lost:       l.lost,
		Workers:    workers,
		StartedAt:  l.run.StartedAt,
		UpdatedAt:  time.Now().UTC(),
	})
}
