package store

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/noah-isme/toko-pricing/internal/common"
	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/pricing/order"
)

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("store: order not found")
	// ErrVersionConflict is returned when an order changed since it was read.
	ErrVersionConflict = errors.New("store: version conflict")
)

// Ledger entry kinds.
const (
	EntryReset       = "reset"
	EntryCalculation = "calculation"
)

// LedgerEntry is one append-only record of rows written for an entity of an
// order. A recalculation first appends the inverse of the previous rows as a
// reset entry, then the new rows as a calculation entry.
type LedgerEntry struct {
	Kind     string        `json:"kind"`
	Entity   string        `json:"entity"`
	EntityID string        `json:"entityId"`
	Currency string        `json:"currency"`
	Rows     []pricing.Row `json:"rows"`
	At       time.Time     `json:"at"`
}

// Store persists order documents together with their ledger.
type Store interface {
	// Order implements order.Repository.
	Order(ctx context.Context, id string) (order.Order, error)
	// Commit writes o and appends entries in one step when the stored version
	// still equals expectedVersion (0 for a new order). The stored order gets
	// version expectedVersion+1 and is returned.
	Commit(ctx context.Context, o order.Order, expectedVersion int64, entries []LedgerEntry) (order.Order, error)
	// Ledger returns the entries of an order in append order.
	Ledger(ctx context.Context, orderID string) ([]LedgerEntry, error)
}

// AsAppError maps store errors onto HTTP-aware application errors.
func AsAppError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return common.NewAppError("NOT_FOUND", err.Error(), http.StatusNotFound, err)
	case errors.Is(err, ErrVersionConflict):
		return common.NewAppError("VERSION_CONFLICT", err.Error(), http.StatusConflict, err)
	default:
		return err
	}
}
