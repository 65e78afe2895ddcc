package bus

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/luserve/luserve/internal/pkg/logger"
)

func waitFor(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("Timeout waiting for events")
	}
}

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryBus(logger.Discard())
	defer bus.Close()

	var received atomic.Int32
	var wg sync.WaitGroup

	err := bus.Subscribe(context.Background(), TopicRecognized, func(ctx context.Context, event Event) error {
		received.Add(1)
		wg.Done()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	wg.Add(3)
	for i := 0; i < 3; i++ {
		if err := bus.Publish(context.Background(), TopicRecognized, NewEvent(TopicRecognized, "test", nil)); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	waitFor(t, &wg, time.Second)

	if got := received.Load(); got != 3 {
		t.Errorf("Received %d events, want 3", got)
	}
}

func TestMemoryBus_MultipleSubscribers(t *testing.T) {
	bus := NewMemoryBus(logger.Discard())
	defer bus.Close()

	var count1, count2 atomic.Int32
	var wg sync.WaitGroup

	bus.Subscribe(context.Background(), "test.topic", func(ctx context.Context, event Event) error {
		count1.Add(1)
		wg.Done()
		return nil
	})
	bus.Subscribe(context.Background(), "test.topic", func(ctx context.Context, event Event) error {
		count2.Add(1)
		wg.Done()
		return errors.New("handler errors are logged, not returned")
	})

	wg.Add(2)
	if err := bus.Publish(context.Background(), "test.topic", Event{ID: "test", Type: "test"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	waitFor(t, &wg, time.Second)

	if count1.Load() != 1 || count2.Load() != 1 {
		t.Errorf("Expected both subscribers to receive 1 event, got %d and %d", count1.Load(), count2.Load())
	}
}

func TestMemoryBus_NoSubscribers(t *testing.T) {
	bus := NewMemoryBus(logger.Discard())
	defer bus.Close()

	if err := bus.Publish(context.Background(), "empty.topic", Event{ID: "test"}); err != nil {
		t.Errorf("Publish() to empty topic error = %v", err)
	}
}

func TestMemoryBus_HandlerOutlivesRequestContext(t *testing.T) {
	bus := NewMemoryBus(logger.Discard())
	defer bus.Close()

	var wg sync.WaitGroup
	var ctxErr atomic.Value

	wg.Add(1)
	bus.Subscribe(context.Background(), "t", func(ctx context.Context, event Event) error {
		time.Sleep(20 * time.Millisecond)
		ctxErr.Store(ctx.Err() == nil)
		wg.Done()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	bus.Publish(ctx, "t", Event{ID: "x"})
	cancel()
	waitFor(t, &wg, time.Second)

	if ok, _ := ctxErr.Load().(bool); !ok {
		t.Error("handler context was cancelled with the publisher's context")
	}
}

func TestMemoryBus_Close(t *testing.T) {
	bus := NewMemoryBus(logger.Discard())

	var finished atomic.Bool
	bus.Subscribe(context.Background(), "slow", func(ctx context.Context, event Event) error {
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
		return nil
	})
	bus.Publish(context.Background(), "slow", Event{ID: "1"})

	if err := bus.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !finished.Load() {
		t.Error("Close() returned before in-flight handler finished")
	}
	if bus.InFlightCount() != 0 {
		t.Errorf("InFlightCount() = %d after Close", bus.InFlightCount())
	}

	if err := bus.Publish(context.Background(), "test", Event{}); err == nil {
		t.Error("Publish() after Close() should error")
	}
	err := bus.Subscribe(context.Background(), "test", func(ctx context.Context, event Event) error {
		return nil
	})
	if err == nil {
		t.Error("Subscribe() after Close() should error")
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestMemoryBus_Concurrent(t *testing.T) {
	bus := NewMemoryBus(logger.Discard())
	defer bus.Close()

	var received atomic.Int32
	var wg sync.WaitGroup

	bus.Subscribe(context.Background(), "concurrent", func(ctx context.Context, event Event) error {
		received.Add(1)
		wg.Done()
		return nil
	})

	numPublishers := 10
	eventsPerPublisher := 100
	wg.Add(numPublishers * eventsPerPublisher)

	for p := 0; p < numPublishers; p++ {
		go func() {
			for i := 0; i < eventsPerPublisher; i++ {
				bus.Publish(context.Background(), "concurrent", Event{ID: "test"})
			}
		}()
	}
	waitFor(t, &wg, 5*time.Second)

	if got, want := received.Load(), int32(numPublishers*eventsPerPublisher); got != want {
		t.Errorf("Received %d events, want %d", got, want)
	}
}

func TestNewEvent(t *testing.T) {
	a := NewEvent(TopicModelsLoaded, "recognizer", map[string]any{"count": 2})
	b := NewEvent(TopicModelsLoaded, "recognizer", nil)

	if a.ID == b.ID || !strings.HasPrefix(a.ID, "evt_") {
		t.Errorf("IDs not unique or malformed: %s %s", a.ID, b.ID)
	}
	if a.Type != TopicModelsLoaded || a.Source != "recognizer" || a.Timestamp == 0 {
		t.Errorf("unexpected event: %+v", a)
	}
	if n, ok := Number(a.PayloadMap(), "count"); !ok || n != 2 {
		t.Errorf("Number(count) = %v, %v", n, ok)
	}
	if b.PayloadMap() != nil {
		t.Error("PayloadMap() of nil payload should be nil")
	}
}

func TestNumber(t *testing.T) {
	p := map[string]any{"i": 3, "i64": int64(4), "f": 5.5, "s": "x"}
	for key, want := range map[string]float64{"i": 3, "i64": 4, "f": 5.5} {
		if got, ok := Number(p, key); !ok || got != want {
			t.Errorf("Number(%s) = %v, %v", key, got, ok)
		}
	}
	if _, ok := Number(p, "s"); ok {
		t.Error("Number() accepted a string")
	}
	if String(p, "s") != "x" || String(p, "i") != "" {
		t.Error("String() mismatch")
	}
}
