package bus

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/luserve/luserve/internal/config"
	"github.com/luserve/luserve/internal/pkg/logger"
)

func TestEventLogger(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "events.log")

	el, err := NewEventLogger(logPath, true)
	if err != nil {
		t.Fatalf("NewEventLogger() error = %v", err)
	}
	if !el.IsEnabled() {
		t.Error("Expected logger to be enabled")
	}

	before := time.Now().Add(-time.Second)
	for i, topic := range []string{TopicModelsLoaded, TopicRecognized, TopicRecognized} {
		ev := NewEvent(topic, "test", map[string]any{"n": i})
		if err := el.Log(topic, ev); err != nil {
			t.Fatalf("Log() error = %v", err)
		}
	}

	all, err := el.Events(before, "", 0)
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len(all) = %d, want 3", len(all))
	}

	recognized, _ := el.Events(before, TopicRecognized, 0)
	if len(recognized) != 2 {
		t.Errorf("filtered len = %d, want 2", len(recognized))
	}

	last, _ := el.Events(before, "", 1)
	if len(last) != 1 {
		t.Fatalf("limit 1 returned %d events", len(last))
	}
	if n, _ := Number(last[0].Event.PayloadMap(), "n"); n != 2 {
		t.Errorf("limit should keep the most recent event, got %+v", last)
	}

	future, _ := el.Events(time.Now().Add(time.Hour), "", 0)
	if len(future) != 0 {
		t.Errorf("since filter returned %d events", len(future))
	}

	if err := el.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := el.Log(TopicRecognized, Event{}); err == nil {
		t.Error("Log() after Close() should error")
	}
}

func TestEventLogger_Disabled(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "events.log")
	el, err := NewEventLogger(logPath, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := el.Log("t", Event{ID: "1"}); err != nil {
		t.Errorf("Log() on disabled logger error = %v", err)
	}
	if _, err := os.Stat(logPath); !os.IsNotExist(err) {
		t.Error("disabled logger created a file")
	}
	if _, err := el.Events(time.Time{}, "", 0); err == nil {
		t.Error("Events() on disabled logger should error")
	}
}

func TestReadEvents_SkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	content := `{"event":{"id":"a"},"topic":"t","timestamp":"2026-01-01T00:00:00Z"}
garbage
{"event":{"id":"b"},"topic":"t","timestamp":"2026-01-02T00:00:00Z"}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	events, err := ReadEvents(path, time.Time{}, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[1].Event.ID != "b" {
		t.Errorf("ReadEvents() = %+v", events)
	}

	missing, err := ReadEvents(filepath.Join(t.TempDir(), "none.log"), time.Time{}, "", 0)
	if err != nil || len(missing) != 0 {
		t.Errorf("missing file: %v %v", missing, err)
	}
}

func TestNewBus_WithEventLog(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "events.log")
	b, err := NewBus(config.BusConfig{Type: "memory", EventLog: logPath}, logger.Discard())
	if err != nil {
		t.Fatalf("NewBus() error = %v", err)
	}
	if _, ok := b.(*LoggedBus); !ok {
		t.Fatalf("NewBus() = %T, want *LoggedBus", b)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	b.Subscribe(context.Background(), TopicRecognized, func(ctx context.Context, e Event) error {
		wg.Done()
		return nil
	})
	if err := b.Publish(context.Background(), TopicRecognized, NewEvent(TopicRecognized, "test", nil)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, &wg, time.Second)

	if err := b.Close(); err != nil {
		t.Fatal(err)
	}

	events, err := ReadEvents(logPath, time.Time{}, TopicRecognized, 0)
	if err != nil || len(events) != 1 {
		t.Errorf("logged events = %v, %v", events, err)
	}
}

func TestNewBus_Types(t *testing.T) {
	b, err := NewBus(config.BusConfig{Type: "memory"}, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := b.(*MemoryBus); !ok {
		t.Errorf("NewBus(memory) = %T", b)
	}
	b.Close()

	if _, err := NewBus(config.BusConfig{Type: "kafka"}, logger.Discard()); err == nil {
		t.Error("kafka without brokers should fail")
	}
	if _, err := NewBus(config.BusConfig{Type: "nats"}, logger.Discard()); err == nil {
		t.Error("unknown bus type should fail")
	}
}
