package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrStoreUnavailable indicates the DLQ store dependency is not configured.
	ErrStoreUnavailable = errors.New("queue: store unavailable")
	// ErrDLQEntryNotFound is returned when a DLQ entry does not exist.
	ErrDLQEntryNotFound = errors.New("queue: dlq entry not found")
)

// Store provides dead letter queue operations.
type Store interface {
	InsertDLQ(ctx context.Context, entry DLQEntry) (string, error)
	DeleteDLQ(ctx context.Context, kind, id string) error
	GetDLQ(ctx context.Context, kind, id string) (DLQEntry, error)
	ListDLQ(ctx context.Context, kind string, limit, offset int) ([]DLQEntry, error)
	CountDLQ(ctx context.Context, kind string) (int64, error)
}

// DLQEntry is a task that exhausted its attempts.
type DLQEntry struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	IdempotencyKey string    `json:"idempotencyKey,omitempty"`
	Payload        []byte    `json:"payload"`
	Attempts       int       `json:"attempts"`
	LastError      string    `json:"lastError,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// RedisStore keeps DLQ entries of a kind in a hash, indexed by creation time
// in a sorted set.
type RedisStore struct {
	R      *redis.Client
	Prefix string
}

func (s RedisStore) InsertDLQ(ctx context.Context, entry DLQEntry) (string, error) {
	if s.R == nil {
		return "", ErrStoreUnavailable
	}
	kind := sanitizeKind(entry.Kind)
	if kind == "" {
		return "", errors.New("queue: dlq entry kind is required")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return "", err
	}
	k := keys{prefix: s.Prefix}
	_, err = s.R.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k.dlq(kind), entry.ID, data)
		pipe.ZAdd(ctx, k.dlqIndex(kind), redis.Z{Score: float64(entry.CreatedAt.UnixNano()), Member: entry.ID})
		return nil
	})
	if err != nil {
		return "", err
	}
	s.updateSize(ctx, kind)
	return entry.ID, nil
}

func (s RedisStore) DeleteDLQ(ctx context.Context, kind, id string) error {
	if s.R == nil {
		return ErrStoreUnavailable
	}
	k := keys{prefix: s.Prefix}
	var removed *redis.IntCmd
	_, err := s.R.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.HDel(ctx, k.dlq(kind), id)
		pipe.ZRem(ctx, k.dlqIndex(kind), id)
		return nil
	})
	if err != nil {
		return err
	}
	if removed.Val() == 0 {
		return fmt.Errorf("%w: %s", ErrDLQEntryNotFound, id)
	}
	s.updateSize(ctx, kind)
	return nil
}

func (s RedisStore) GetDLQ(ctx context.Context, kind, id string) (DLQEntry, error) {
	if s.R == nil {
		return DLQEntry{}, ErrStoreUnavailable
	}
	data, err := s.R.HGet(ctx, keys{prefix: s.Prefix}.dlq(kind), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return DLQEntry{}, fmt.Errorf("%w: %s", ErrDLQEntryNotFound, id)
	}
	if err != nil {
		return DLQEntry{}, err
	}
	var entry DLQEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return DLQEntry{}, err
	}
	return entry, nil
}

// ListDLQ returns entries of kind, newest first.
func (s RedisStore) ListDLQ(ctx context.Context, kind string, limit, offset int) ([]DLQEntry, error) {
	if s.R == nil {
		return nil, ErrStoreUnavailable
	}
	kind = strings.TrimSpace(kind)
	limit = min(max(limit, 1), 500)
	offset = max(offset, 0)
	k := keys{prefix: s.Prefix}
	ids, err := s.R.ZRevRange(ctx, k.dlqIndex(kind), int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []DLQEntry{}, nil
	}
	values, err := s.R.HMGet(ctx, k.dlq(kind), ids...).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]DLQEntry, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var entry DLQEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s RedisStore) CountDLQ(ctx context.Context, kind string) (int64, error) {
	if s.R == nil {
		return 0, ErrStoreUnavailable
	}
	return s.R.ZCard(ctx, keys{prefix: s.Prefix}.dlqIndex(strings.TrimSpace(kind))).Result()
}

func (s RedisStore) updateSize(ctx context.Context, kind string) {
	if QueueDLQSize == nil {
		return
	}
	if n, err := s.CountDLQ(ctx, kind); err == nil {
		QueueDLQSize.WithLabelValues(kind).Set(float64(n))
	}
}
