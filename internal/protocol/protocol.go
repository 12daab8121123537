// Package protocol defines the line-oriented text protocol a worker speaks on
// its standard output, and the classifier the manager applies to each line.
//
// Three line shapes exist:
//
//	SUCCESS: <payload>                      a match; payload is opaque
//	Counter: <n> | Keys/sec: <float>        periodic progress
//	anything else                           informational log text
package protocol

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/me/keysweep/pkg/model"
)

const (
	// SuccessPrefix starts every success line.
	SuccessPrefix = "SUCCESS:"

	// CounterLabel and RateLabel are the labels a worker writes in progress lines.
	CounterLabel = "Counter"
	RateLabel    = "Keys/sec"
)

// progressRe matches "<label>: <counter> | <rate-label>: <float>".
var progressRe = regexp.MustCompile(`^\s*[^:|]+:\s*(\d+)\s*\|\s*[^:|]+:\s*([-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?)\s*$`)

// lineBreaks escapes CR and LF so a payload always fits on one line.
var lineBreaks = strings.NewReplacer("\r", `\r`, "\n", `\n`)

// FormatSuccess renders a success line. Line breaks in payload are written as
// the two-character escapes \r and \n.
func FormatSuccess(payload string) string {
	return SuccessPrefix + " " + lineBreaks.Replace(payload)
}

// FormatProgress renders a progress line.
func FormatProgress(counter uint64, rate float64) string {
	return fmt.Sprintf("%s: %d | %s: %.2f", CounterLabel, counter, RateLabel, rate)
}

// FormatStarted renders the first line a worker prints.
func FormatStarted(c model.Chunk) string {
	return fmt.Sprintf("Starting search from %d to %d...", c.Start, c.End)
}

// FormatExhausted renders the completion line of a worker that found nothing.
func FormatExhausted(c model.Chunk) string {
	return fmt.Sprintf("Finished search from %d to %d. Key not found in this range.", c.Start, c.End)
}

// Classify turns one line of worker output into an Event.
// Lines read from stderr are never promoted to success or progress.
func Classify(line model.Line) model.Event {
	text := strings.TrimRight(line.Text, "\r\n")
	ev := model.Event{Kind: model.EventLog, Stream: line.Stream, Text: text}
	if line.Stream == model.StreamStderr {
		return ev
	}

	if strings.HasPrefix(text, SuccessPrefix) {
		ev.Kind = model.EventSuccess
		ev.Payload = strings.TrimPrefix(text, SuccessPrefix)
		ev.Payload = strings.TrimPrefix(ev.Payload, " ")
		return ev
	}

	if m := progressRe.FindStringSubmatch(text); m != nil {
		counter, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			return ev
		}
		rate, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return ev
		}
		ev.Kind = model.EventProgress
		ev.Counter = counter
		ev.Rate = rate
	}
	return ev
}
