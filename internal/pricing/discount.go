package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// DiscountConfiguration describes how a discount should be realised by the
// consuming sheet. It is a closed set: Percentage, Fixed and Custom.
type DiscountConfiguration interface {
	discountConfiguration()
}

// Percentage takes Rate (0.1 = 10%) off the discounted base.
type Percentage struct {
	Rate decimal.Decimal
}

// Fixed takes Amount minor units off the discounted base. An empty currency
// means the amount is valid in any currency.
type Fixed struct {
	Amount   int64
	Currency string
}

// Custom applies Then only when the predicate registered as PredicateID holds
// for the consuming sheet's facts.
type Custom struct {
	PredicateID string
	Then        DiscountConfiguration
}

func (Percentage) discountConfiguration() {}
func (Fixed) discountConfiguration()      {}
func (Custom) discountConfiguration()     {}

// Trigger records how a discount became active on an order.
type Trigger string

const (
	TriggerSystem Trigger = "SYSTEM"
	TriggerUser   Trigger = "USER"
)

// OrderDiscount is a discount attached to an order, handled by the discount
// adapter registered under DiscountKey.
type OrderDiscount struct {
	ID          string  `json:"id"`
	DiscountKey string  `json:"discountKey"`
	Code        string  `json:"code,omitempty"`
	Trigger     Trigger `json:"trigger"`
}

// Discount is an order discount resolved for one pricing adapter.
type Discount struct {
	DiscountID    string
	DiscountKey   string
	Configuration DiscountConfiguration
}

// DiscountQuery asks how an order discount applies to the pricing adapter
// identified by PricingAdapterKey, given the sheet built so far.
type DiscountQuery struct {
	Discount          OrderDiscount
	PricingAdapterKey string
	Sheet             *Sheet
	Facts             map[string]any
}

// DiscountResolver asks the discount adapter behind an order discount for its
// configuration. A nil configuration means the discount does not apply.
type DiscountResolver interface {
	DiscountForPricingAdapterKey(ctx context.Context, q DiscountQuery) (DiscountConfiguration, error)
}

// FactSource is implemented by contexts that expose facts to discount
// adapters and Custom predicates.
type FactSource interface {
	Facts() map[string]any
}

// PredicateEvaluator evaluates Custom predicates against sheet facts.
type PredicateEvaluator interface {
	Evaluate(ctx context.Context, predicateID string, facts map[string]any) (bool, error)
}

// Reduction returns the positive amount cfg takes off base, clamped to
// [0, base]. facts feed Custom predicates.
func Reduction(ctx context.Context, cfg DiscountConfiguration, base int64, currency string, predicates PredicateEvaluator, facts map[string]any) (int64, error) {
	if base <= 0 || cfg == nil {
		return 0, nil
	}
	var amount int64
	switch c := cfg.(type) {
	case Percentage:
		amount = ApplyRate(base, c.Rate)
	case Fixed:
		if c.Currency != "" && c.Currency != currency {
			return 0, fmt.Errorf("%w: fixed discount in %s applied to %s", ErrCurrencyMismatch, c.Currency, currency)
		}
		amount = c.Amount
	case Custom:
		if predicates == nil {
			return 0, NewError(CodeIncompleteConfiguration, c.PredicateID, errors.New("no predicate evaluator configured"))
		}
		ok, err := predicates.Evaluate(ctx, c.PredicateID, facts)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, nil
		}
		return Reduction(ctx, c.Then, base, currency, predicates, facts)
	default:
		return 0, fmt.Errorf("%w: discount configuration %T", ErrNotImplemented, cfg)
	}
	return clamp(amount, 0, base), nil
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
