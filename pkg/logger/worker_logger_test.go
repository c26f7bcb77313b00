package logger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"fatal", LevelFatal},
		{"nonsense", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &buf, Service: "test"})

	l.WithField("uid", 101).WithError(errors.New("boom")).Warn("[Sync] failed to store %s", "message")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "[Sync] failed to store message" {
		t.Errorf("unexpected message: %v", entry["message"])
	}
	if entry["level"] != "warn" {
		t.Errorf("expected level warn, got %v", entry["level"])
	}
	if entry["service"] != "test" {
		t.Errorf("expected service test, got %v", entry["service"])
	}
	if entry["error"] != "boom" {
		t.Errorf("expected error boom, got %v", entry["error"])
	}
	if entry["uid"] != float64(101) {
		t.Errorf("expected uid 101, got %v", entry["uid"])
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelWarn, Output: &buf})

	l.Info("hidden")
	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected no output below warn, got %q", buf.String())
	}

	l.Error("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("expected error entry, got %q", buf.String())
	}
}

func TestWithContextRunID(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &buf})

	ctx := context.WithValue(context.Background(), ContextKeyRunID, "run-1")
	l.WithContext(ctx).Info("started")

	if !strings.Contains(buf.String(), `"run_id":"run-1"`) {
		t.Errorf("expected run_id field, got %q", buf.String())
	}
}

func TestErrorRecordsCallSite(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &buf})

	prev := defaultLogger
	defaultLogger = l
	defer func() { defaultLogger = prev }()

	tests := []struct {
		name string
		emit func() int
	}{
		{"method", func() int {
			l.WithField("uid", 7).Error("failed")
			_, _, line, _ := runtime.Caller(0)
			return line - 1
		}},
		{"package", func() int {
			Error("failed")
			_, _, line, _ := runtime.Caller(0)
			return line - 1
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			want := fmt.Sprintf("worker_logger_test.go:%d", tt.emit())

			var entry map[string]any
			if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
				t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
			}
			caller, _ := entry["caller"].(string)
			if !strings.HasSuffix(caller, want) {
				t.Errorf("expected caller ending in %s, got %q", want, caller)
			}
		})
	}
}
