package discount

import (
	"context"
	"errors"
	"time"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

var (
	// ErrCodeNotApplicable is returned when no registered adapter accepts a code.
	ErrCodeNotApplicable = errors.New("discount: code not applicable")
	// ErrRemovalNotAllowed is returned when an adapter refuses a manual removal.
	ErrRemovalNotAllowed = errors.New("discount: removal not allowed")
	// ErrAlreadyApplied is returned when a code is already attached to the order.
	ErrAlreadyApplied = errors.New("discount: already applied")
)

// Context is what discount adapters see of an order when deciding whether a
// discount applies to it.
type Context struct {
	OrderID    string
	Currency   string
	Country    string
	ItemsTotal int64
	ProductIDs []string
	Existing   []pricing.OrderDiscount
	Now        time.Time
}

// Facts exposes the context to predicates.
func (c Context) Facts() map[string]any {
	ids := make([]any, 0, len(c.ProductIDs))
	for _, id := range c.ProductIDs {
		ids = append(ids, id)
	}
	return map[string]any{
		"orderId":    c.OrderID,
		"currency":   c.Currency,
		"country":    c.Country,
		"itemsTotal": c.ItemsTotal,
		"productIds": ids,
	}
}

// Adapter decides when a discount becomes active on an order and how each
// pricing adapter should realise it.
type Adapter interface {
	Key() string
	Label() string
	Version() string
	OrderIndex() int

	// IsManualAdditionAllowed reports whether a user may attach the discount with code.
	IsManualAdditionAllowed(code string) bool
	// IsManualRemovalAllowed reports whether a user may detach the discount.
	IsManualRemovalAllowed() bool
	IsValidForSystemTriggering(ctx context.Context, c Context) (bool, error)
	IsValidForCodeTriggering(ctx context.Context, c Context, code string) (bool, error)

	// DiscountForPricingAdapterKey returns how the discount applies to the
	// pricing adapter named in q, or nil when it does not apply there.
	DiscountForPricingAdapterKey(ctx context.Context, q pricing.DiscountQuery) (pricing.DiscountConfiguration, error)

	// Reserve claims a one-time use of code for c.OrderID.
	Reserve(ctx context.Context, c Context, code string) error
	// Release undoes Reserve for a discount that is being removed.
	Release(ctx context.Context, c Context, d pricing.OrderDiscount) error
}

// entityOf returns the entity kind priced by the sheet the query was made for.
func entityOf(q pricing.DiscountQuery) string {
	if q.Sheet != nil && q.Sheet.Taxonomy().Entity != "" {
		return q.Sheet.Taxonomy().Entity
	}
	entity, _ := q.Facts["entity"].(string)
	return entity
}
