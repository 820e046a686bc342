package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/toko-pricing/internal/pricing/order"
)

// Redis stores orders as JSON strings and ledgers as JSON lists. Commit
// watches the order key so concurrent writers cannot interleave.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis constructs a Redis store. An empty prefix defaults to "pricing".
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "pricing"
	}
	return &Redis{client: client, prefix: prefix}
}

func (s *Redis) orderKey(id string) string  { return s.prefix + ":order:" + id }
func (s *Redis) ledgerKey(id string) string { return s.prefix + ":ledger:" + id }

func (s *Redis) Order(ctx context.Context, id string) (order.Order, error) {
	var o order.Order
	found, err := s.getJSON(ctx, s.client, s.orderKey(id), &o)
	if err != nil {
		return order.Order{}, err
	}
	if !found {
		return order.Order{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return o, nil
}

func (s *Redis) Commit(ctx context.Context, o order.Order, expectedVersion int64, entries []LedgerEntry) (order.Order, error) {
	if s.client == nil {
		return order.Order{}, errors.New("store: redis client not configured")
	}
	key := s.orderKey(o.ID)
	o.Version = expectedVersion + 1

	payload, err := json.Marshal(o)
	if err != nil {
		return order.Order{}, err
	}
	ledger := make([]any, 0, len(entries))
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return order.Order{}, err
		}
		ledger = append(ledger, data)
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		var current order.Order
		found, err := s.getJSON(ctx, tx, key, &current)
		if err != nil {
			return err
		}
		var version int64
		if found {
			version = current.Version
		}
		if version != expectedVersion {
			return fmt.Errorf("%w: %s at version %d, expected %d", ErrVersionConflict, o.ID, version, expectedVersion)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			if len(ledger) > 0 {
				pipe.RPush(ctx, s.ledgerKey(o.ID), ledger...)
			}
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return order.Order{}, fmt.Errorf("%w: %s changed during commit", ErrVersionConflict, o.ID)
	}
	if err != nil {
		return order.Order{}, err
	}
	return o, nil
}

func (s *Redis) Ledger(ctx context.Context, orderID string) ([]LedgerEntry, error) {
	raw, err := s.client.LRange(ctx, s.ledgerKey(orderID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]LedgerEntry, 0, len(raw))
	for _, item := range raw {
		var e LedgerEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("store: decode ledger entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// getJSON unmarshals the JSON payload at key into dst and reports whether the
// key existed.
func (s *Redis) getJSON(ctx context.Context, c redis.Cmdable, key string, dst any) (bool, error) {
	data, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}
