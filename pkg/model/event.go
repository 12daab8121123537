package model

import "time"

// Stream identifies which worker output stream a line came from.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// Line is one raw line of worker output.
type Line struct {
	Stream Stream
	Text   string
	At     time.Time
}

// EventKind tags the variant held by an Event.
type EventKind string

const (
	EventProgress EventKind = "progress"
	EventSuccess  EventKind = "success"
	EventLog      EventKind = "log"
)

// Event is a classified line of worker output.
// Only the fields of the tagged kind are meaningful.
type Event struct {
	Kind    EventKind
	Stream  Stream
	Counter uint64  // EventProgress
	Rate    float64 // EventProgress
	Payload string  // EventSuccess
	Text    string  // EventLog, and the raw line for every kind
}
