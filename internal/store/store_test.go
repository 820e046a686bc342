package store_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/pricing/order"
	"github.com/noah-isme/toko-pricing/internal/store"
)

func stores(t *testing.T) map[string]store.Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]store.Store{
		"memory": store.NewMemory(),
		"redis":  store.NewRedis(client, "test"),
	}
}

func sampleOrder() order.Order {
	return order.Order{
		ID:       "o-1",
		Currency: "CHF",
		Positions: []order.Position{{
			ID:        "p-1",
			ProductID: "tea",
			Quantity:  2,
			Calculation: []pricing.Row{
				{Category: "ITEM", Amount: 1000, IsTaxable: true, IsNetPrice: true, Currency: "CHF"},
			},
		}},
	}
}

func TestCommitAndLoad(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.Order(ctx, "o-1")
			require.ErrorIs(t, err, store.ErrNotFound)

			entry := store.LedgerEntry{
				Kind:     store.EntryCalculation,
				Entity:   "order",
				EntityID: "o-1",
				Currency: "CHF",
				Rows:     []pricing.Row{{Category: "ITEMS", Amount: 1000, Currency: "CHF"}},
				At:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			}
			saved, err := s.Commit(ctx, sampleOrder(), 0, []store.LedgerEntry{entry})
			require.NoError(t, err)
			require.Equal(t, int64(1), saved.Version)

			loaded, err := s.Order(ctx, "o-1")
			require.NoError(t, err)
			require.Equal(t, saved, loaded)

			ledger, err := s.Ledger(ctx, "o-1")
			require.NoError(t, err)
			require.Equal(t, []store.LedgerEntry{entry}, ledger)
		})
	}
}

func TestCommitVersionConflict(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.Commit(ctx, sampleOrder(), 0, nil)
			require.NoError(t, err)

			_, err = s.Commit(ctx, sampleOrder(), 0, []store.LedgerEntry{{Kind: store.EntryReset}})
			require.ErrorIs(t, err, store.ErrVersionConflict)

			ledger, err := s.Ledger(ctx, "o-1")
			require.NoError(t, err)
			require.Empty(t, ledger, "a rejected commit appends nothing")

			second, err := s.Commit(ctx, sampleOrder(), 1, nil)
			require.NoError(t, err)
			require.Equal(t, int64(2), second.Version)
		})
	}
}

func TestAsAppError(t *testing.T) {
	ctx := context.Background()
	_, err := store.NewMemory().Order(ctx, "missing")
	require.Contains(t, store.AsAppError(err).Error(), "not found")
	require.ErrorIs(t, store.AsAppError(err), store.ErrNotFound)
}
