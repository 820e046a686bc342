package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisStream stores events in a capped Redis stream.
type RedisStream struct {
	R      *redis.Client
	Stream string
	MaxLen int64
}

func (s RedisStream) stream() string {
	if s.Stream == "" {
		return "pricing:events"
	}
	return s.Stream
}

// Append adds event to the stream.
func (s RedisStream) Append(ctx context.Context, event Event) (Event, error) {
	if s.R == nil {
		return Event{}, errors.New("events: redis client not configured")
	}
	args := &redis.XAddArgs{
		Stream: s.stream(),
		Values: map[string]any{
			"id":          event.ID,
			"topic":       event.Topic,
			"aggregateId": event.AggregateID,
			"payload":     string(event.Payload),
			"occurredAt":  event.OccurredAt.Format(time.RFC3339Nano),
			"traceId":     event.TraceID,
		},
	}
	if s.MaxLen > 0 {
		args.MaxLen = s.MaxLen
		args.Approx = true
	}
	if err := s.R.XAdd(ctx, args).Err(); err != nil {
		return Event{}, err
	}
	return event, nil
}

// Recent returns up to count of the newest events, newest first.
func (s RedisStream) Recent(ctx context.Context, count int64) ([]Event, error) {
	if s.R == nil {
		return nil, errors.New("events: redis client not configured")
	}
	msgs, err := s.R.XRevRangeN(ctx, s.stream(), "+", "-", count).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(msgs))
	for _, msg := range msgs {
		ev := Event{
			ID:          fmt.Sprint(msg.Values["id"]),
			Topic:       fmt.Sprint(msg.Values["topic"]),
			AggregateID: fmt.Sprint(msg.Values["aggregateId"]),
			Payload:     json.RawMessage(fmt.Sprint(msg.Values["payload"])),
		}
		ev.TraceID, _ = msg.Values["traceId"].(string)
		if at, err := time.Parse(time.RFC3339Nano, fmt.Sprint(msg.Values["occurredAt"])); err == nil {
			ev.OccurredAt = at
		}
		out = append(out, ev)
	}
	return out, nil
}

// LogNotifier writes every event to a logger.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) Notify(_ context.Context, event Event) error {
	n.Logger.Info().
		Str("event_id", event.ID).
		Str("topic", event.Topic).
		Str("aggregate_id", event.AggregateID).
		RawJSON("payload", event.Payload).
		Msg("pricing event")
	return nil
}
