package payment

import (
	"context"
	"errors"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// Keys of the default payment adapters.
const (
	KeyFee      = "payment-fee"
	KeyDiscount = "payment-discount"
	KeyTax      = "payment-tax"
)

// Fee charges the provider's fixed fee plus its rate on the items total.
type Fee struct {
	pricing.Identity
}

func NewFee() Fee {
	return Fee{Identity: pricing.NewIdentity(KeyFee, "Payment fee", "1.0.0", 0)}
}

func (Fee) IsActivatedFor(c Context) bool {
	return c.Provider.Fee != 0 || !c.Provider.Rate.IsZero()
}

func (Fee) Calculate(_ context.Context, c Context, _ *pricing.Sheet, _ []pricing.Discount) ([]pricing.Row, error) {
	amount := c.Provider.Fee + pricing.ApplyRate(c.ItemsTotal, c.Provider.Rate)
	if amount == 0 {
		return nil, nil
	}
	return []pricing.Row{FeeRow(FeeInput{
		Amount:     amount,
		IsTaxable:  c.Provider.IsTaxable,
		IsNetPrice: c.Provider.IsNetPrice,
		Meta:       pricing.Meta{"providerId": c.Provider.ID},
	})}, nil
}

// Discount realises resolved order discounts against the payment fee.
type Discount struct {
	pricing.Identity
	Predicates pricing.PredicateEvaluator
}

func NewDiscount(predicates pricing.PredicateEvaluator) Discount {
	return Discount{Identity: pricing.NewIdentity(KeyDiscount, "Payment discounts", "1.0.0", 10), Predicates: predicates}
}

func (Discount) IsActivatedFor(c Context) bool { return len(c.Discounts()) > 0 }

func (a Discount) Calculate(ctx context.Context, c Context, sheet *pricing.Sheet, discounts []pricing.Discount) ([]pricing.Row, error) {
	return pricing.DiscountRows(ctx, sheet, CategoryPayment, discounts, a.Predicates, c.Facts())
}

// Tax derives tax rows for taxable payment rows.
type Tax struct {
	pricing.Identity
	Rates pricing.TaxRateProvider
}

func NewTax(rates pricing.TaxRateProvider) Tax {
	return Tax{Identity: pricing.NewIdentity(KeyTax, "Payment tax", "1.0.0", 20), Rates: rates}
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

// RegisterDefaults registers the fee, discount and tax adapters.
func RegisterDefaults(d *Director, rates pricing.TaxRateProvider, predicates pricing.PredicateEvaluator) {
	d.Register(NewFee())
	d.Register(NewDiscount(predicates))
	d.Register(NewTax(rates))
}
