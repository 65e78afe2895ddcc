package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/luserve/luserve/internal/pkg/logger"
)

type recorder struct {
	mu        sync.Mutex
	published map[string]int
	failed    chan string
}

func newRecorder() *recorder {
	return &recorder{published: make(map[string]int), failed: make(chan string, 4)}
}

func (r *recorder) RecordBusPublish(topic string, _ time.Duration, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published[topic]++
}

func (r *recorder) RecordBusHandlerError(topic string) {
	r.failed <- topic
}

func TestInstrumentedBus(t *testing.T) {
	rec := newRecorder()
	b := NewInstrumentedBus(NewMemoryBus(logger.Discard()), rec)
	defer b.Close()

	err := b.Subscribe(context.Background(), TopicConverted, func(context.Context, Event) error {
		return errors.New("boom")
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := b.Publish(context.Background(), TopicConverted, NewEvent(TopicConverted, "test", nil)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case topic := <-rec.failed:
		if topic != TopicConverted {
			t.Errorf("handler error topic = %s", topic)
		}
	case <-time.After(time.Second):
		t.Fatal("handler error was not recorded")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.published[TopicConverted] != 1 {
		t.Errorf("published = %v", rec.published)
	}
}

func TestInstrumentedBus_NilRecorder(t *testing.T) {
	b := NewInstrumentedBus(NewMemoryBus(logger.Discard()), nil)
	defer b.Close()

	done := make(chan struct{})
	if err := b.Subscribe(context.Background(), TopicRecognized, func(context.Context, Event) error {
		close(done)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if err := b.Publish(context.Background(), TopicRecognized, NewEvent(TopicRecognized, "test", nil)); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}
