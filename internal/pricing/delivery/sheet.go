// Package delivery prices the delivery of an order.
package delivery

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// Delivery row categories. ITEM carries per-item handling surcharges.
const (
	CategoryDelivery pricing.Category = "DELIVERY"
	CategoryDiscount pricing.Category = "DISCOUNT"
	CategoryTax      pricing.Category = "TAX"
	CategoryItem     pricing.Category = "ITEM"
)

// Taxonomy describes delivery sheets to the generic engine.
var Taxonomy = pricing.Taxonomy{Entity: "delivery", Tax: CategoryTax, Discount: CategoryDiscount}

// Sheet is a delivery pricing sheet. Verbs return a new sheet.
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

// FeeInput describes a delivery fee.
type FeeInput struct {
	Amount     int64
	IsTaxable  bool
	IsNetPrice bool
	Meta       pricing.Meta
}

// TaxInput describes a tax on the delivery fee.
type TaxInput struct {
	Amount int64
	Rate   decimal.Decimal
	Meta   pricing.Meta
}

// DiscountInput describes a discount on the delivery fee.
type DiscountInput struct {
	Amount     int64
	IsTaxable  bool
	IsNetPrice bool
	DiscountID string
	Meta       pricing.Meta
}

func FeeRow(in FeeInput) pricing.Row {
	return pricing.Row{
		Category:   CategoryDelivery,
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
		BaseCategory: CategoryDelivery,
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
		BaseCategory: CategoryDelivery,
		DiscountID:   in.DiscountID,
		IsTaxable:    in.IsTaxable,
		IsNetPrice:   in.IsNetPrice,
		Meta:         in.Meta,
	})}
}

// FeeSum returns the signed sum of DELIVERY rows.
func (s *Sheet) FeeSum() int64 {
	return s.Sum(pricing.Filter{Category: CategoryDelivery})
}
