// Package bus carries service events between components: recognitions and
// model loads are published here and consumed by metrics and by external
// subscribers on Kafka.
package bus

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Bus defines the interface for event bus implementations.
type Bus interface {
	// Publish publishes an event to a topic.
	Publish(ctx context.Context, topic string, event Event) error

	// Subscribe subscribes to events on a topic.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close closes the bus and releases resources.
	Close() error
}

// Event represents a bus event.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`

	// Type is the event type, usually the topic name.
	Type string `json:"type"`

	// Source is the component that generated the event.
	Source string `json:"source"`

	// Timestamp is when the event was created, in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	// CorrelationID links related events, e.g. to an HTTP request ID.
	CorrelationID string `json:"correlation_id,omitempty"`

	// Payload contains the event data. Over Kafka it arrives as a decoded
	// JSON object, so subscribers should read it through PayloadMap.
	Payload any `json:"payload"`
}

// Topics.
const (
	// TopicRecognized is published after every recognition.
	TopicRecognized = "recognizer.recognized"

	// TopicModelsLoaded is published after models are loaded or reloaded.
	TopicModelsLoaded = "recognizer.models.loaded"

	// TopicConverted is published after a .lu file is converted.
	TopicConverted = "luconvert.converted"
)

// Payload keys shared by publishers and subscribers.
const (
	KeyQuery       = "query"
	KeyIntent      = "intent"
	KeyScore       = "score"
	KeyEntityCount = "entity_count"
	KeyLatencyMs   = "latency_ms"
	KeyCached      = "cached"
	KeyCacheType   = "cache_type"
	KeyCacheSize   = "cache_size"
	KeyErrorCode   = "error_code"
	KeyModelCount  = "model_count"
	KeyModels      = "models"
	KeyInput       = "input"
	KeyOutput      = "output"
)

// NewEvent creates an event with a fresh ID and the current timestamp.
func NewEvent(topic, source string, payload any) Event {
	return Event{
		ID:        newEventID(),
		Type:      topic,
		Source:    source,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
}

func newEventID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return "evt_" + hex.EncodeToString(b[:])
}

// PayloadMap returns the payload as a map, or nil if it is not one.
func (e Event) PayloadMap() map[string]any {
	m, _ := e.Payload.(map[string]any)
	return m
}

// Number reads a numeric payload field regardless of whether it was
// published in-process (int, int64) or decoded from JSON (float64).
func Number(payload map[string]any, key string) (float64, bool) {
	switch v := payload[key].(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case float32:
		return float64(v), true
	}
	return 0, false
}

// String reads a string payload field.
func String(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}
