package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLoggerWithWriter(t *testing.T) {
	tests := []struct {
		name    string
		level   slog.Level
		format  string
		want    []string
		notWant []string
	}{
		{
			name:   "text",
			level:  slog.LevelInfo,
			format: "text",
			want:   []string{"msg=worker_line", "slot=1", `text="Counter: 5 | Keys/sec: 1.0"`},
		},
		{
			name:   "json",
			level:  slog.LevelInfo,
			format: "JSON",
			want:   []string{`"msg":"worker_line"`, `"slot":1`},
		},
		{
			name:    "filtered below warn",
			level:   slog.LevelWarn,
			format:  "text",
			want:    []string{"msg=\"shutdown triggered\""},
			notWant: []string{"worker_line"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLoggerWithWriter(tt.level, tt.format, &buf)

			logger.Info("worker_line", "slot", 1, "text", "Counter: 5 | Keys/sec: 1.0")
			logger.Warn("shutdown triggered", "outcome", "interrupted")

			output := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(output, w) {
					t.Errorf("missing %s in output:\n%s", w, output)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(output, w) {
					t.Errorf("unexpected %s in output:\n%s", w, output)
				}
			}
		})
	}
}

func TestNewLoggerWithWriter_ChildLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(slog.LevelDebug, "text", &buf)
	child := logger.With("component", "scheduler")

	child.Debug("tick", "slot", 3)

	output := buf.String()
	if !strings.Contains(output, "component=scheduler") {
		t.Errorf("expected component in output, got: %s", output)
	}
	if !strings.Contains(output, "slot=3") {
		t.Errorf("expected slot in output, got: %s", output)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewTeeLogger_AppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "keysweep.log")

	for i := 0; i < 2; i++ {
		logger, closeFn, err := NewTeeLogger(slog.LevelInfo, "text", path)
		if err != nil {
			t.Fatalf("NewTeeLogger: %v", err)
		}
		logger.Info("dispatch", "run", i)
		if err := closeFn(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if got := strings.Count(string(data), "msg=dispatch"); got != 2 {
		t.Errorf("expected 2 appended lines, got %d:\n%s", got, data)
	}
}

func TestNewTeeLogger_NoFile(t *testing.T) {
	logger, closeFn, err := NewTeeLogger(slog.LevelInfo, "json", "")
	if err != nil || logger == nil {
		t.Fatalf("NewTeeLogger: %v", err)
	}
	if err := closeFn(); err != nil {
		t.Errorf("close: %v", err)
	}
}
