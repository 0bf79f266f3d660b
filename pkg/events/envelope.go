// Package events provides the envelope and sink abstractions used to emit
// observations (call metrics, cost estimates) out of the provider pipeline.
// Emission is best effort: a failing or slow sink never fails the call that
// produced the observation.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the pipeline.
const (
	TypeCallCompleted   = "llm.call.completed"
	TypeStreamFirstByte = "llm.stream.first_token"
	TypeStreamCompleted = "llm.stream.completed"
	TypeCostEstimated   = "llm.cost.estimated"
	TypeActivityDone    = "llm.activity.completed"
)

// DefaultVersion is the payload schema version stamped on new envelopes.
const DefaultVersion = "1.0.0"

// Envelope wraps an observation with routing metadata.
type Envelope struct {
	// ID uniquely identifies this event instance.
	ID string `json:"id"`

	// Type identifies the event for routing, e.g. "llm.call.completed".
	Type string `json:"type"`

	// Source names the component that emitted the event.
	Source string `json:"source"`

	// Version enables payload schema evolution.
	Version string `json:"version"`

	// Timestamp records when the event was emitted.
	Timestamp time.Time `json:"timestamp"`

	// IdempotencyKey is stable across retries of the same unit of work.
	// Empty when the producer has no such notion.
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	// Payload contains the event data as JSON.
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload and stamps a fresh ID and timestamp.
func NewEnvelope(eventType, source string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Version:   DefaultVersion,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	}, nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// EventSink receives envelopes. Implementations should return quickly;
// callers log and drop Append errors.
type EventSink interface {
	Append(ctx context.Context, envelope Envelope) error
}

// NoOpEventSink discards every envelope.
type NoOpEventSink struct{}

// Append implements EventSink.
func (NoOpEventSink) Append(_ context.Context, _ Envelope) error {
	return nil
}

// NewNoOpEventSink creates a new no-op event sink.
func NewNoOpEventSink() EventSink {
	return NoOpEventSink{}
}
