package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/toko-pricing/internal/events"
)

type captureNotifier struct {
	events []events.Event
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return c.err
}

func newStream(t *testing.T) events.RedisStream {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return events.RedisStream{R: client, Stream: "test:events", MaxLen: 100}
}

func TestEmitPersistsEvent(t *testing.T) {
	stream := newStream(t)
	notifier := &captureNotifier{}
	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	bus := events.Bus{Store: stream, Notifiers: []events.Notifier{notifier}, Now: func() time.Time { return at }}

	ctx := context.Background()
	event, err := bus.Emit(ctx, events.TopicOrderRecalculated, "o-1", map[string]any{"gross": 950})
	require.NoError(t, err)
	require.NotEmpty(t, event.ID)
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, notifier.events[0].ID)

	recent, err := stream.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, events.TopicOrderRecalculated, recent[0].Topic)
	require.Equal(t, "o-1", recent[0].AggregateID)
	require.True(t, at.Equal(recent[0].OccurredAt))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(recent[0].Payload, &decoded))
	require.Equal(t, float64(950), decoded["gross"])
}

func TestEmitValidation(t *testing.T) {
	bus := events.Bus{Store: newStream(t)}
	ctx := context.Background()

	_, err := bus.Emit(ctx, " ", "o-1", nil)
	require.Error(t, err)
	_, err = bus.Emit(ctx, events.TopicOrderFailed, "", nil)
	require.Error(t, err)
	_, err = bus.Emit(ctx, events.TopicOrderFailed, "o-1", "{not json")
	require.Error(t, err)

	var nilBus *events.Bus
	_, err = nilBus.Emit(ctx, events.TopicOrderFailed, "o-1", nil)
	require.Error(t, err)
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	failing := &captureNotifier{err: errors.New("boom")}
	ok := &captureNotifier{}
	bus := events.Bus{Store: newStream(t), Notifiers: []events.Notifier{failing, ok}}

	event, err := bus.Emit(context.Background(), events.TopicOrderFailed, "o-1", []byte(`{"code":"CALCULATION_FAILED"}`))
	require.ErrorContains(t, err, "boom")
	require.NotEmpty(t, event.ID, "the event is stored even when a notifier fails")
	require.Len(t, ok.events, 1)
}

func TestEmitCarriesTraceID(t *testing.T) {
	stream := newStream(t)
	var notified events.Event
	bus := events.Bus{Store: stream, Notifiers: []events.Notifier{
		events.NotifierFunc(func(_ context.Context, ev events.Event) error {
			notified = ev
			return nil
		}),
	}}

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
	}))

	ev, err := bus.Emit(ctx, events.TopicDiscountApplied, "o-1", json.RawMessage(`{"code":"HEMAT10"}`))
	require.NoError(t, err)
	require.Equal(t, traceID.String(), ev.TraceID)
	require.Equal(t, ev, notified)

	recent, err := stream.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, traceID.String(), recent[0].TraceID)

	untraced, err := bus.Emit(context.Background(), events.TopicDiscountRemoved, "o-1", "")
	require.NoError(t, err)
	require.Empty(t, untraced.TraceID)
	require.JSONEq(t, `{}`, string(untraced.Payload))
}
