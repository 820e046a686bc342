package delivery

import (
	"context"
	"errors"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// Keys of the default delivery adapters.
const (
	KeyFee      = "delivery-fee"
	KeyHandling = "delivery-handling"
	KeyDiscount = "delivery-discount"
	KeyTax      = "delivery-tax"
)

// Fee charges the provider's flat delivery fee.
type Fee struct {
	pricing.Identity
}

func NewFee() Fee {
	return Fee{Identity: pricing.NewIdentity(KeyFee, "Delivery fee", "1.0.0", 0)}
}

func (Fee) IsActivatedFor(c Context) bool { return c.Provider.Fee != 0 }

func (Fee) Calculate(_ context.Context, c Context, _ *pricing.Sheet, _ []pricing.Discount) ([]pricing.Row, error) {
	return []pricing.Row{FeeRow(FeeInput{
		Amount:     c.Provider.Fee,
		IsTaxable:  c.Provider.IsTaxable,
		IsNetPrice: c.Provider.IsNetPrice,
		Meta:       pricing.Meta{"providerId": c.Provider.ID},
	})}, nil
}

// Handling charges a per-item surcharge for shipped orders.
type Handling struct {
	pricing.Identity
}

func NewHandling() Handling {
	return Handling{Identity: pricing.NewIdentity(KeyHandling, "Handling surcharge", "1.0.0", 5)}
}

func (Handling) IsActivatedFor(c Context) bool {
	return c.Provider.Type == TypeShipping && c.Provider.PerItemFee > 0 && c.ItemCount > 0
}

func (Handling) Calculate(_ context.Context, c Context, _ *pricing.Sheet, _ []pricing.Discount) ([]pricing.Row, error) {
	return []pricing.Row{{
		Category:   CategoryItem,
		Amount:     c.Provider.PerItemFee * int64(c.ItemCount),
		IsTaxable:  c.Provider.IsTaxable,
		IsNetPrice: c.Provider.IsNetPrice,
		Meta:       pricing.Meta{"providerId": c.Provider.ID},
	}}, nil
}

// Discount realises resolved order discounts against the delivery fee.
type Discount struct {
	pricing.Identity
	Predicates pricing.PredicateEvaluator
}

func NewDiscount(predicates pricing.PredicateEvaluator) Discount {
	return Discount{Identity: pricing.NewIdentity(KeyDiscount, "Delivery discounts", "1.0.0", 10), Predicates: predicates}
}

func (Discount) IsActivatedFor(c Context) bool { return len(c.Discounts()) > 0 }

func (a Discount) Calculate(ctx context.Context, c Context, sheet *pricing.Sheet, discounts []pricing.Discount) ([]pricing.Row, error) {
	return pricing.DiscountRows(ctx, sheet, CategoryDelivery, discounts, a.Predicates, c.Facts())
}

// Tax derives tax rows for taxable delivery rows.
type Tax struct {
	pricing.Identity
	Rates pricing.TaxRateProvider
}

func NewTax(rates pricing.TaxRateProvider) Tax {
	return Tax{Identity: pricing.NewIdentity(KeyTax, "Delivery tax", "1.0.0", 20), Rates: rates}
}

func (Tax) IsActivatedFor(c Context) bool { return c.Provider.IsTaxable }

func (a Tax) ConfigurationError() error {
	if a.Rates == nil {
		return pricing.NewError(pricing.CodeIncompleteConfiguration, a.Key(), errors.New("no tax rate provider"))
	}
	return nil
}

func (a Tax) Calculate(ctx context.Context, c Context, sheet *pricing.Sheet, _ []pricing.Discount) ([]pricing.Row, error) {
	rate, err := a.Rates.RateFor(ctx, pricing.TaxQuery{Entity: Taxonomy.Entity, Country: c.Country, TaxClass: c.Provider.TaxClass})
	if err != nil {
		return nil, err
	}
	taxable := sheet.FilterBy(pricing.Filter{IsTaxable: pricing.Bool(true)})
	return pricing.TaxRows(taxable, CategoryTax, rate, pricing.Meta{"taxClass": c.Provider.TaxClass}), nil
}

// RegisterDefaults registers the fee, handling, discount and tax adapters.
func RegisterDefaults(d *Director, rates pricing.TaxRateProvider, predicates pricing.PredicateEvaluator) {
	d.Register(NewFee())
	d.Register(NewHandling())
	d.Register(NewDiscount(predicates))
	d.Register(NewTax(rates))
}
