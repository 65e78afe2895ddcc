package metrics

import (
	"context"
	"errors"

	"github.com/luserve/luserve/internal/bus"
)

// EventSubscriber subscribes to the event bus and updates metrics.
type EventSubscriber struct {
	metrics *Metrics
	bus     bus.Bus
}

// NewEventSubscriber creates a new event subscriber.
func NewEventSubscriber(metrics *Metrics, eventBus bus.Bus) *EventSubscriber {
	return &EventSubscriber{
		metrics: metrics,
		bus:     eventBus,
	}
}

// SubscribeToEvents subscribes to all relevant topics.
func (es *EventSubscriber) SubscribeToEvents(ctx context.Context) error {
	if err := es.bus.Subscribe(ctx, bus.TopicRecognized, es.handleRecognized); err != nil {
		return err
	}
	if err := es.bus.Subscribe(ctx, bus.TopicModelsLoaded, es.handleModelsLoaded); err != nil {
		return err
	}
	return es.bus.Subscribe(ctx, bus.TopicConverted, es.handleConverted)
}

func (es *EventSubscriber) handleRecognized(ctx context.Context, event bus.Event) error {
	p := event.PayloadMap()
	if p == nil {
		return nil
	}

	if code := bus.String(p, bus.KeyErrorCode); code != "" {
		es.metrics.RecordRecognizeError(code)
		return nil
	}

	latency, _ := bus.Number(p, bus.KeyLatencyMs)
	entities, _ := bus.Number(p, bus.KeyEntityCount)
	es.metrics.RecordRecognize(bus.String(p, bus.KeyIntent), int(entities), latency)

	if cacheType := bus.String(p, bus.KeyCacheType); cacheType != "" {
		if cached, _ := p[bus.KeyCached].(bool); cached {
			es.metrics.RecordCacheHit(cacheType)
		} else {
			es.metrics.RecordCacheMiss(cacheType)
		}
		if size, ok := bus.Number(p, bus.KeyCacheSize); ok {
			es.metrics.UpdateCacheSize(cacheType, int(size))
		}
	}
	return nil
}

func (es *EventSubscriber) handleModelsLoaded(ctx context.Context, event bus.Event) error {
	p := event.PayloadMap()
	if p == nil {
		return nil
	}

	latency, _ := bus.Number(p, bus.KeyLatencyMs)
	count, _ := bus.Number(p, bus.KeyModelCount)
	var err error
	if code := bus.String(p, bus.KeyErrorCode); code != "" {
		err = errors.New(code)
	}
	es.metrics.RecordModelLoad(int(count), latency, err)
	return nil
}

func (es *EventSubscriber) handleConverted(ctx context.Context, event bus.Event) error {
	p := event.PayloadMap()
	if p == nil {
		return nil
	}

	latency, _ := bus.Number(p, bus.KeyLatencyMs)
	var err error
	if code := bus.String(p, bus.KeyErrorCode); code != "" {
		err = errors.New(code)
	}
	es.metrics.RecordConversion(latency, err)
	return nil
}
