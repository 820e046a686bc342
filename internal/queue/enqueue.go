package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	defaultMaxAttempts = 10
	defaultDedupTTL    = 24 * time.Hour
)

var errNoRedis = errors.New("queue: redis client not configured")

// Task is a unit of background work. Attempt is filled in on delivery,
// starting at 1.
type Task struct {
	Kind           string
	Payload        []byte
	IdempotencyKey string
	MaxAttempts    int
	Delay          time.Duration
	Attempt        int
}

// Enqueuer schedules tasks into a per-kind sorted set scored by the time the
// task becomes due.
type Enqueuer struct {
	R           *redis.Client
	Prefix      string
	DedupTTL    time.Duration
	MaxAttempts int
}

// Enqueue schedules t. A task carrying an idempotency key is accepted once
// until it is acknowledged, dead-lettered or the dedup window runs out; later
// duplicates return nil without scheduling anything.
func (e Enqueuer) Enqueue(ctx context.Context, t Task) error {
	if e.R == nil {
		return errNoRedis
	}
	kind := sanitizeKind(t.Kind)
	if kind == "" {
		return errors.New("queue: task kind is required")
	}

	now := time.Now()
	msg := envelope{
		Kind:        kind,
		Key:         t.IdempotencyKey,
		Payload:     t.Payload,
		MaxAttempts: firstPositive(t.MaxAttempts, e.MaxAttempts, defaultMaxAttempts),
		EnqueuedAt:  now.UnixNano(),
		AvailableAt: now.Add(t.Delay).UnixNano(),
		Trace:       propagation.MapCarrier{},
	}
	otel.GetTextMapPropagator().Inject(ctx, msg.Trace)

	k := keys{prefix: e.Prefix}
	if msg.Key != "" {
		ttl := e.DedupTTL
		if ttl <= 0 {
			ttl = defaultDedupTTL
		}
		fresh, err := e.R.SetNX(ctx, k.dedup(kind, msg.Key), "1", ttl).Result()
		if err != nil {
			return err
		}
		if !fresh {
			return nil
		}
	}
	return schedule(ctx, e.R, k.queue(kind), msg)
}

// Depth reports how many tasks of kind are waiting, due or not.
func (e Enqueuer) Depth(ctx context.Context, kind string) (int64, error) {
	if e.R == nil {
		return 0, errNoRedis
	}
	return e.R.ZCard(ctx, keys{prefix: e.Prefix}.queue(sanitizeKind(kind))).Result()
}

// envelope is the stored form of a task. The whole JSON document is the sorted
// set member, so any field change produces a new member.
type envelope struct {
	Kind        string                 `json:"kind"`
	Key         string                 `json:"key,omitempty"`
	Payload     []byte                 `json:"payload"`
	Attempt     int                    `json:"attempt"`
	MaxAttempts int                    `json:"max_attempts"`
	AvailableAt int64                  `json:"available_at"`
	EnqueuedAt  int64                  `json:"enqueued_at"`
	Trace       propagation.MapCarrier `json:"trace,omitempty"`
}

func (m envelope) task() Task {
	return Task{Kind: m.Kind, Payload: m.Payload, IdempotencyKey: m.Key, MaxAttempts: m.MaxAttempts, Attempt: m.Attempt}
}

func (m envelope) encode() (string, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeEnvelope(raw string) (envelope, error) {
	var m envelope
	err := json.Unmarshal([]byte(raw), &m)
	return m, err
}

func schedule(ctx context.Context, r *redis.Client, queueKey string, m envelope) error {
	raw, err := m.encode()
	if err != nil {
		return err
	}
	return r.ZAdd(ctx, queueKey, redis.Z{Score: float64(m.AvailableAt), Member: raw}).Err()
}

// sanitizeKind returns kind when it only uses [a-z0-9:_-], otherwise "".
func sanitizeKind(kind string) string {
	for _, c := range kind {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_', c == ':':
		default:
			return ""
		}
	}
	return kind
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

type keys struct {
	prefix string
}

func (k keys) base() string {
	if k.prefix == "" {
		return "queue"
	}
	return k.prefix
}

func (k keys) queue(kind string) string {
	if k.prefix == "" {
		return "queue:" + kind
	}
	return k.prefix + ":queue:" + kind
}

func (k keys) processing(kind string) string { return k.base() + ":" + kind + ":processing" }
func (k keys) dlq(kind string) string        { return k.base() + ":" + kind + ":dlq" }
func (k keys) dlqIndex(kind string) string   { return k.base() + ":" + kind + ":dlq:index" }
func (k keys) dedup(kind, key string) string {
	return fmt.Sprintf("%s:dedup:%s:%s", k.base(), kind, key)
}
