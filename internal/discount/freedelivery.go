package discount

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// FreeDeliveryKey is the discount key of the free delivery promotion.
const FreeDeliveryKey = "free-delivery"

// FreeDelivery waives the delivery fee once the items of an order reach
// Threshold. It is triggered by the system and cannot be removed by users.
type FreeDelivery struct {
	pricing.Identity
	Threshold int64
	Currency  string
}

// NewFreeDelivery returns the promotion for orders of at least threshold in currency.
func NewFreeDelivery(threshold int64, currency string) *FreeDelivery {
	return &FreeDelivery{
		Identity:  pricing.NewIdentity(FreeDeliveryKey, "Free delivery", "1", 20),
		Threshold: threshold,
		Currency:  currency,
	}
}

func (f *FreeDelivery) IsManualAdditionAllowed(string) bool { return false }
func (f *FreeDelivery) IsManualRemovalAllowed() bool        { return false }

func (f *FreeDelivery) IsValidForSystemTriggering(_ context.Context, c Context) (bool, error) {
	if f.Threshold <= 0 {
		return false, nil
	}
	if f.Currency != "" && !strings.EqualFold(f.Currency, c.Currency) {
		return false, nil
	}
	return c.ItemsTotal >= f.Threshold, nil
}

func (f *FreeDelivery) IsValidForCodeTriggering(context.Context, Context, string) (bool, error) {
	return false, nil
}

func (f *FreeDelivery) DiscountForPricingAdapterKey(_ context.Context, q pricing.DiscountQuery) (pricing.DiscountConfiguration, error) {
	if entityOf(q) != "delivery" {
		return nil, nil
	}
	return pricing.Percentage{Rate: decimal.NewFromInt(1)}, nil
}

func (f *FreeDelivery) Reserve(context.Context, Context, string) error { return nil }

func (f *FreeDelivery) Release(context.Context, Context, pricing.OrderDiscount) error { return nil }
