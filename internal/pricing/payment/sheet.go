// Package payment prices the payment method of an order.
package payment

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// Payment row categories.
const (
	CategoryPayment  pricing.Category = "PAYMENT"
	CategoryDiscount pricing.Category = "DISCOUNT"
	CategoryTax      pricing.Category = "TAX"
)

// Taxonomy describes payment sheets to the generic engine.
var Taxonomy = pricing.Taxonomy{Entity: "payment", Tax: CategoryTax, Discount: CategoryDiscount}

// Sheet is a payment pricing sheet. Verbs return a new sheet.
type Sheet struct {
	*pricing.Sheet
}

func NewSheet(currency string) *Sheet {
	return &Sheet{Sheet: pricing.NewSheet(Taxonomy, currency, 0)}
}

// FromCalculation rebuilds a sheet from a persisted calculation.
func FromCalculation(rows []pricing.Row, currency string) *Sheet {
	return &Sheet{Sheet: pricing.NewSheet(Taxonomy, currency, 0, rows...)}
}

// FeeInput describes a payment fee.
type FeeInput struct {
	Amount     int64
	IsTaxable  bool
	IsNetPrice bool
	Meta       pricing.Meta
}

// TaxInput describes a tax on the payment fee.
type TaxInput struct {
	Amount int64
	Rate   decimal.Decimal
	Meta   pricing.Meta
}

// DiscountInput describes a discount on the payment fee.
type DiscountInput struct {
	Amount     int64
	IsTaxable  bool
	IsNetPrice bool
	DiscountID string
	Meta       pricing.Meta
}

func FeeRow(in FeeInput) pricing.Row {
	return pricing.Row{
		Category:   CategoryPayment,
		Amount:     in.Amount,
		IsTaxable:  in.IsTaxable,
		IsNetPrice: in.IsNetPrice,
		Meta:       in.Meta,
	}
}

func (s *Sheet) AddFee(in FeeInput) *Sheet {
	return &Sheet{Sheet: s.Append(FeeRow(in))}
}

func (s *Sheet) AddTax(in TaxInput) *Sheet {
	rate := in.Rate
	return &Sheet{Sheet: s.Append(pricing.Row{
		Category:     CategoryTax,
		Amount:       in.Amount,
		BaseCategory: CategoryPayment,
		Rate:         &rate,
		Meta:         in.Meta,
	})}
}

func (s *Sheet) AddDiscount(in DiscountInput) *Sheet {
	amount := in.Amount
	if amount > 0 {
		amount = -amount
	}
	return &Sheet{Sheet: s.Append(pricing.Row{
		Category:     CategoryDiscount,
		Amount:       amount,
		BaseCategory: CategoryPayment,
		DiscountID:   in.DiscountID,
		IsTaxable:    in.IsTaxable,
		IsNetPrice:   in.IsNetPrice,
		Meta:         in.Meta,
	})}
}

// FeeSum returns the signed sum of PAYMENT rows.
func (s *Sheet) FeeSum() int64 {
	return s.Sum(pricing.Filter{Category: CategoryPayment})
}
