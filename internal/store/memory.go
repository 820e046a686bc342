package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/noah-isme/toko-pricing/internal/pricing/order"
)

// Memory is an in-process Store for tests and local runs. Values are copied
// on the way in and out.
type Memory struct {
	mu      sync.RWMutex
	orders  map[string][]byte
	ledgers map[string][]LedgerEntry
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{orders: make(map[string][]byte), ledgers: make(map[string][]LedgerEntry)}
}

func (m *Memory) Order(_ context.Context, id string) (order.Order, error) {
	m.mu.RLock()
	data, ok := m.orders[id]
	m.mu.RUnlock()
	if !ok {
		return order.Order{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var o order.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return order.Order{}, err
	}
	return o, nil
}

func (m *Memory) Commit(_ context.Context, o order.Order, expectedVersion int64, entries []LedgerEntry) (order.Order, error) {
	o.Version = expectedVersion + 1
	data, err := json.Marshal(o)
	if err != nil {
		return order.Order{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var version int64
	if current, ok := m.orders[o.ID]; ok {
		var stored order.Order
		if err := json.Unmarshal(current, &stored); err != nil {
			return order.Order{}, err
		}
		version = stored.Version
	}
	if version != expectedVersion {
		return order.Order{}, fmt.Errorf("%w: %s at version %d, expected %d", ErrVersionConflict, o.ID, version, expectedVersion)
	}
	m.orders[o.ID] = data
	m.ledgers[o.ID] = append(m.ledgers[o.ID], entries...)
	return o, nil
}

func (m *Memory) Ledger(_ context.Context, orderID string) ([]LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]LedgerEntry(nil), m.ledgers[orderID]...), nil
}
