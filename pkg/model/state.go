package model

// WorkerStatus is the terminal verdict of a worker process.
type WorkerStatus string

const (
	WorkerStatusRunning     WorkerStatus = "running"
	WorkerStatusSuccess     WorkerStatus = "success"
	WorkerStatusExhausted   WorkerStatus = "exhausted"
	WorkerStatusError       WorkerStatus = "error"
	WorkerStatusInterrupted WorkerStatus = "interrupted"
)

// String returns the string representation of the worker status.
func (s WorkerStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the worker has stopped.
func (s WorkerStatus) IsTerminal() bool {
	return s != WorkerStatusRunning && s != ""
}

// Worker process exit codes.
const (
	ExitOK          = 0
	ExitError       = 1
	ExitUsage       = 2
	ExitInterrupted = 130
)

// StatusFromExit maps a worker exit code to its terminal status. A success line
// observed on stdout overrides the exit code mapping.
func StatusFromExit(code int, sawSuccess bool) WorkerStatus {
	switch {
	case sawSuccess && code == ExitOK:
		return WorkerStatusSuccess
	case code == ExitOK:
		return WorkerStatusExhausted
	case code == ExitInterrupted || code < 0:
		// Negative codes come from processes killed by a signal.
		return WorkerStatusInterrupted
	default:
		return WorkerStatusError
	}
}

// ChunkState represents the lifecycle state of a dispatched chunk in the ledger.
type ChunkState string

const (
	ChunkStateDispatched  ChunkState = "DISPATCHED"
	ChunkStateExhausted   ChunkState = "EXHAUSTED"
	ChunkStateMatched     ChunkState = "MATCHED"
	ChunkStateLost        ChunkState = "LOST"
	ChunkStateInterrupted ChunkState = "INTERRUPTED"
)

// String returns the string representation of the chunk state.
func (s ChunkState) String() string {
	return string(s)
}

// IsTerminal returns true if the chunk is in a final state.
func (s ChunkState) IsTerminal() bool {
	switch s {
	case ChunkStateExhausted, ChunkStateMatched, ChunkStateLost, ChunkStateInterrupted:
		return true
	}
	return false
}

// IsIncomplete reports whether the chunk may hold counters nobody scanned.
func (s ChunkState) IsIncomplete() bool {
	return s == ChunkStateLost || s == ChunkStateInterrupted
}

// ValidChunkTransitions defines the allowed state transitions for chunks.
var ValidChunkTransitions = map[ChunkState][]ChunkState{
	ChunkStateDispatched: {ChunkStateExhausted, ChunkStateMatched, ChunkStateLost, ChunkStateInterrupted},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s ChunkState) CanTransitionTo(next ChunkState) bool {
	for _, allowed := range ValidChunkTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ChunkStateFor maps a worker's terminal status to the ledger state of its chunk.
func ChunkStateFor(s WorkerStatus) ChunkState {
	switch s {
	case WorkerStatusSuccess:
		return ChunkStateMatched
	case WorkerStatusExhausted:
		return ChunkStateExhausted
	case WorkerStatusInterrupted:
		return ChunkStateInterrupted
	default:
		return ChunkStateLost
	}
}

// Phase is the shutdown coordinator state.
type Phase string

const (
	PhaseActive   Phase = "ACTIVE"
	PhaseDraining Phase = "DRAINING"
	PhaseHalted   Phase = "HALTED"
)

// ValidPhaseTransitions defines the allowed coordinator transitions.
var ValidPhaseTransitions = map[Phase][]Phase{
	PhaseActive:   {PhaseDraining},
	PhaseDraining: {PhaseHalted},
}

// CanTransitionTo returns true if moving from the current phase to next is valid.
func (p Phase) CanTransitionTo(next Phase) bool {
	for _, allowed := range ValidPhaseTransitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Outcome describes why a run ended.
type Outcome string

const (
	OutcomeNone        Outcome = ""
	OutcomeSuccess     Outcome = "success"
	OutcomeInterrupted Outcome = "interrupted"
	OutcomeExhausted   Outcome = "exhausted"
	OutcomeFailed      Outcome = "failed"
)

// ExitCode returns the manager process exit code for the outcome.
func (o Outcome) ExitCode() int {
	if o == OutcomeFailed {
		return 1
	}
	return 0
}
