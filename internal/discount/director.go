package discount

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pricing/internal/obs"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// Director holds the discount adapters keyed by discount key and drives the
// discount lifecycle of an order. It also resolves order discounts for the
// pricing directors.
type Director struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	Logger   zerolog.Logger
	Now      func() time.Time
	NewID    func() string
}

// NewDirector returns a Director with no adapters.
func NewDirector(logger zerolog.Logger) *Director {
	return &Director{adapters: make(map[string]Adapter), Logger: logger}
}

// Register adds a, replacing any adapter with the same key.
func (d *Director) Register(a Adapter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.adapters == nil {
		d.adapters = make(map[string]Adapter)
	}
	d.adapters[a.Key()] = a
}

// Adapter returns the adapter registered under key.
func (d *Director) Adapter(key string) (Adapter, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.adapters[key]
	if !ok {
		return nil, pricing.NewError(pricing.CodeAdapterNotFound, key, nil)
	}
	return a, nil
}

// Adapters returns every adapter ordered by OrderIndex then key.
func (d *Director) Adapters() []Adapter {
	d.mu.RLock()
	out := make([]Adapter, 0, len(d.adapters))
	for _, a := range d.adapters {
		out = append(out, a)
	}
	d.mu.RUnlock()
	slices.SortFunc(out, func(a, b Adapter) int {
		if c := cmp.Compare(a.OrderIndex(), b.OrderIndex()); c != 0 {
			return c
		}
		return strings.Compare(a.Key(), b.Key())
	})
	return out
}

// SystemDiscounts returns c.Existing with system-triggered discounts brought
// up to date: user discounts are kept, system discounts that no longer apply
// are dropped and newly applicable ones are added.
func (d *Director) SystemDiscounts(ctx context.Context, c Context) ([]pricing.OrderDiscount, error) {
	c = d.withNow(c)
	out := make([]pricing.OrderDiscount, 0, len(c.Existing))
	current := make(map[string]pricing.OrderDiscount)
	for _, od := range c.Existing {
		if od.Trigger == pricing.TriggerSystem {
			current[od.DiscountKey] = od
			continue
		}
		out = append(out, od)
	}
	for _, a := range d.Adapters() {
		ok, err := a.IsValidForSystemTriggering(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("discount: system triggering %s: %w", a.Key(), err)
		}
		if !ok {
			continue
		}
		od, exists := current[a.Key()]
		if !exists {
			od = pricing.OrderDiscount{ID: d.newID(), DiscountKey: a.Key(), Trigger: pricing.TriggerSystem}
			d.Logger.Debug().Str("order_id", c.OrderID).Str("discount_key", a.Key()).Msg("system discount triggered")
		}
		out = append(out, od)
	}
	return out, nil
}

// ApplyCode attaches the first adapter, in order, that accepts code and
// reserves the code for the order.
func (d *Director) ApplyCode(ctx context.Context, c Context, code string) (pricing.OrderDiscount, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return pricing.OrderDiscount{}, fmt.Errorf("code is required: %w", ErrCodeNotApplicable)
	}
	for _, od := range c.Existing {
		if strings.EqualFold(od.Code, code) {
			return pricing.OrderDiscount{}, ErrAlreadyApplied
		}
	}
	c = d.withNow(c)
	for _, a := range d.Adapters() {
		if !a.IsManualAdditionAllowed(code) {
			continue
		}
		ok, err := a.IsValidForCodeTriggering(ctx, c, code)
		if err != nil {
			return pricing.OrderDiscount{}, err
		}
		if !ok {
			continue
		}
		if err := a.Reserve(ctx, c, code); err != nil {
			recordReservation(a.Key(), "rejected")
			return pricing.OrderDiscount{}, err
		}
		recordReservation(a.Key(), "reserved")
		od := pricing.OrderDiscount{ID: d.newID(), DiscountKey: a.Key(), Code: code, Trigger: pricing.TriggerUser}
		d.Logger.Info().Str("order_id", c.OrderID).Str("discount_key", a.Key()).Str("discount_id", od.ID).Msg("discount code applied")
		return od, nil
	}
	return pricing.OrderDiscount{}, ErrCodeNotApplicable
}

// Remove detaches od from the order and releases its reservation. System
// discounts and adapters that forbid manual removal are refused.
func (d *Director) Remove(ctx context.Context, c Context, od pricing.OrderDiscount) error {
	a, err := d.Adapter(od.DiscountKey)
	if err != nil {
		return err
	}
	if od.Trigger == pricing.TriggerSystem || !a.IsManualRemovalAllowed() {
		return ErrRemovalNotAllowed
	}
	if err := a.Release(ctx, d.withNow(c), od); err != nil {
		return err
	}
	recordReservation(a.Key(), "released")
	return nil
}

// DiscountForPricingAdapterKey implements pricing.DiscountResolver by asking
// the adapter named by the order discount.
func (d *Director) DiscountForPricingAdapterKey(ctx context.Context, q pricing.DiscountQuery) (pricing.DiscountConfiguration, error) {
	a, err := d.Adapter(q.Discount.DiscountKey)
	if err != nil {
		return nil, err
	}
	return a.DiscountForPricingAdapterKey(ctx, q)
}

func (d *Director) withNow(c Context) Context {
	if !c.Now.IsZero() {
		return c
	}
	if d.Now != nil {
		c.Now = d.Now()
	} else {
		c.Now = time.Now()
	}
	return c
}

func (d *Director) newID() string {
	if d.NewID != nil {
		return d.NewID()
	}
	return uuid.NewString()
}

func recordReservation(key, result string) {
	if obs.DiscountReservationsTotal != nil {
		obs.DiscountReservationsTotal.WithLabelValues(key, result).Inc()
	}
}
