package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		format string
	}{
		{"debug text", "debug", "text"},
		{"info json", "info", "json"},
		{"warn text", "warn", "text"},
		{"error json", "error", "json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.level, tt.format)
			if logger == nil || logger.Logger == nil {
				t.Fatal("New() returned nil logger")
			}
		})
	}
}

func TestNewWithWriter_Format(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "info", "json").Info("model loaded", "labels", 3)

	out := buf.String()
	if !strings.Contains(out, `"msg":"model loaded"`) {
		t.Errorf("JSON output should contain msg field, got: %s", out)
	}
	if !strings.Contains(out, `"labels":3`) {
		t.Errorf("JSON output should contain attrs, got: %s", out)
	}

	buf.Reset()
	NewWithWriter(&buf, "warn", "text").Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at warn level, got: %s", buf.String())
	}
}

func TestLogger_WithContext(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "info", "text")

	if got := l.WithContext(context.Background()); got != l {
		t.Error("WithContext without request ID should return the same logger")
	}

	ctx := ContextWithRequestID(context.Background(), "req-123")
	l.WithContext(ctx).Info("handled")

	if !strings.Contains(buf.String(), "request_id=req-123") {
		t.Errorf("expected request_id attr, got: %s", buf.String())
	}
	if RequestIDFrom(ctx) != "req-123" {
		t.Errorf("RequestIDFrom() = %q", RequestIDFrom(ctx))
	}
}

func TestLogger_WithModelAndError(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "info", "text")

	l.WithModel("todo-category").WithError(errors.New("boom")).Warn("load failed")

	out := buf.String()
	if !strings.Contains(out, "model=todo-category") || !strings.Contains(out, "error=boom") {
		t.Errorf("missing attrs: %s", out)
	}
}

func TestNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "luserve.log")

	l, err := NewFile(path, "info", "json")
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}
	l.Info("to file")
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file missing entry: %s", data)
	}

	stdout, err := NewFile("", "info", "text")
	if err != nil || stdout.Close() != nil {
		t.Error("empty path should log to stdout with a no-op Close")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
