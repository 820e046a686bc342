package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/noah-isme/toko-pricing/internal/events"

// Event is a persisted pricing event. TraceID links it to the request or
// task that produced it when tracing is on.
type Event struct {
	ID          string          `json:"id"`
	Topic       string          `json:"topic"`
	AggregateID string          `json:"aggregateId"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurredAt"`
	TraceID     string          `json:"traceId,omitempty"`
}

// EventStore persists events.
type EventStore interface {
	Append(ctx context.Context, event Event) (Event, error)
}

// Notifier is told about every stored event.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event Event) error

func (f NotifierFunc) Notify(ctx context.Context, event Event) error { return f(ctx, event) }

// Bus stores events, then fans them out to notifiers.
type Bus struct {
	Store     EventStore
	Notifiers []Notifier
	Now       func() time.Time
}

// Emit stores an event and hands it to every notifier. A store failure aborts
// before any notifier runs. Notifier failures do not stop the fan-out; they
// come back joined, next to the stored event.
func (b *Bus) Emit(ctx context.Context, topic, aggregateID string, payload any) (Event, error) {
	if b == nil || b.Store == nil {
		return Event{}, errors.New("events: store not configured")
	}
	ev, err := b.build(ctx, topic, aggregateID, payload)
	if err != nil {
		return Event{}, err
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "events.emit "+ev.Topic, trace.WithAttributes(
		attribute.String("event.topic", ev.Topic),
		attribute.String("event.aggregate_id", ev.AggregateID),
	))
	defer span.End()

	stored, err := b.Store.Append(ctx, ev)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist")
		return Event{}, fmt.Errorf("events: persist event: %w", err)
	}
	var failed error
	for _, n := range b.Notifiers {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, stored); err != nil {
			failed = errors.Join(failed, fmt.Errorf("events: notifier: %w", err))
		}
	}
	if failed != nil {
		span.RecordError(failed)
	}
	return stored, failed
}

func (b *Bus) build(ctx context.Context, topic, aggregateID string, payload any) (Event, error) {
	topic, aggregateID = strings.TrimSpace(topic), strings.TrimSpace(aggregateID)
	switch {
	case topic == "":
		return Event{}, errors.New("events: topic is required")
	case aggregateID == "":
		return Event{}, errors.New("events: aggregate id is required")
	}
	body, err := encodePayload(payload)
	if err != nil {
		return Event{}, fmt.Errorf("events: encode payload: %w", err)
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	ev := Event{
		ID:          uuid.NewString(),
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     body,
		OccurredAt:  now().UTC(),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		ev.TraceID = sc.TraceID().String()
	}
	return ev, nil
}

var emptyObject = json.RawMessage("{}")

// encodePayload marshals payload. Raw JSON inputs are validated and copied;
// nil and blank inputs become an empty object.
func encodePayload(payload any) (json.RawMessage, error) {
	var raw []byte
	switch v := payload.(type) {
	case nil:
		return emptyObject, nil
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	case string:
		raw = []byte(strings.TrimSpace(v))
	default:
		return json.Marshal(v)
	}
	if len(raw) == 0 {
		return emptyObject, nil
	}
	if !json.Valid(raw) {
		return nil, errors.New("payload is not valid json")
	}
	return append(json.RawMessage(nil), raw...), nil
}
