package bus

import (
	"context"
	"time"

	"github.com/luserve/luserve/internal/pkg/logger"
)

// MetricsRecorder receives bus measurements. Defined here so the metrics
// package can depend on bus and not the other way round.
type MetricsRecorder interface {
	RecordBusPublish(topic string, latency time.Duration, err error)
	RecordBusHandlerError(topic string)
}

// InstrumentedBus records publish latency and handler failures.
type InstrumentedBus struct {
	Bus
	metrics MetricsRecorder
}

// NewInstrumentedBus wraps inner. A nil recorder disables recording.
func NewInstrumentedBus(inner Bus, metrics MetricsRecorder) *InstrumentedBus {
	return &InstrumentedBus{Bus: inner, metrics: metrics}
}

func (b *InstrumentedBus) Publish(ctx context.Context, topic string, event Event) error {
	start := time.Now()
	err := b.Bus.Publish(ctx, topic, event)
	if b.metrics != nil {
		b.metrics.RecordBusPublish(topic, time.Since(start), err)
	}
	return err
}

func (b *InstrumentedBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	if b.metrics == nil {
		return b.Bus.Subscribe(ctx, topic, handler)
	}
	return b.Bus.Subscribe(ctx, topic, func(ctx context.Context, event Event) error {
		err := handler(ctx, event)
		if err != nil {
			b.metrics.RecordBusHandlerError(topic)
		}
		return err
	})
}

// LoggedBus appends every published event to an EventLogger before the
// inner bus sees it. A failed append is logged and does not fail Publish.
type LoggedBus struct {
	Bus
	events *EventLogger
	log    *logger.Logger
}

// NewLoggedBus wraps inner.
func NewLoggedBus(inner Bus, events *EventLogger, log *logger.Logger) *LoggedBus {
	if log == nil {
		log = logger.Default()
	}
	return &LoggedBus{Bus: inner, events: events, log: log}
}

func (b *LoggedBus) Publish(ctx context.Context, topic string, event Event) error {
	if err := b.events.Log(topic, event); err != nil {
		b.log.Warn("Event log append failed", "topic", topic, "error", err)
	}
	return b.Bus.Publish(ctx, topic, event)
}

// Close closes the inner bus, then the event log.
func (b *LoggedBus) Close() error {
	err := b.Bus.Close()
	if logErr := b.events.Close(); logErr != nil {
		b.log.Warn("Event log close failed", "error", logErr)
	}
	return err
}
