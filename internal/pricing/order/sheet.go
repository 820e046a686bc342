// Package order aggregates product, delivery and payment sheets into an
// order-level calculation and applies order-level discounts on top.
package order

import (
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// Order row categories.
const (
	CategoryItems     pricing.Category = "ITEMS"
	CategoryDiscounts pricing.Category = "DISCOUNTS"
	CategoryTaxes     pricing.Category = "TAXES"
	CategoryDelivery  pricing.Category = "DELIVERY"
	CategoryPayment   pricing.Category = "PAYMENT"
)

// Taxonomy describes order sheets to the generic engine.
var Taxonomy = pricing.Taxonomy{Entity: "order", Tax: CategoryTaxes, Discount: CategoryDiscounts}

// Sheet is an order pricing sheet. Verbs return a new sheet.
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

// AggregateInput is a net amount with the tax derived from it.
type AggregateInput struct {
	Amount    int64
	TaxAmount int64
	Meta      pricing.Meta
}

// DiscountInput is an order discount split into its net and tax parts.
// Both are stored negative. BaseCategory names what was discounted.
type DiscountInput struct {
	Amount       int64
	TaxAmount    int64
	DiscountID   string
	BaseCategory pricing.Category
	Meta         pricing.Meta
}

// AggregateRows returns the row for category plus its tax row when taxAmount is set.
func AggregateRows(category pricing.Category, in AggregateInput) []pricing.Row {
	rows := []pricing.Row{{Category: category, Amount: in.Amount, IsNetPrice: true, Meta: in.Meta}}
	if in.TaxAmount != 0 {
		rows = append(rows, pricing.Row{Category: CategoryTaxes, Amount: in.TaxAmount, BaseCategory: category})
	}
	return rows
}

// DiscountRows returns the DISCOUNTS row and its tax row for in.
func DiscountRows(in DiscountInput) []pricing.Row {
	rows := []pricing.Row{{
		Category:     CategoryDiscounts,
		Amount:       -abs(in.Amount),
		BaseCategory: in.BaseCategory,
		DiscountID:   in.DiscountID,
		IsNetPrice:   true,
		Meta:         in.Meta,
	}}
	if in.TaxAmount != 0 {
		rows = append(rows, pricing.Row{
			Category:     CategoryTaxes,
			Amount:       -abs(in.TaxAmount),
			BaseCategory: CategoryDiscounts,
			DiscountID:   in.DiscountID,
		})
	}
	return rows
}

func (s *Sheet) AddItems(in AggregateInput) *Sheet {
	return &Sheet{Sheet: s.Append(AggregateRows(CategoryItems, in)...)}
}

func (s *Sheet) AddDelivery(in AggregateInput) *Sheet {
	return &Sheet{Sheet: s.Append(AggregateRows(CategoryDelivery, in)...)}
}

func (s *Sheet) AddPayment(in AggregateInput) *Sheet {
	return &Sheet{Sheet: s.Append(AggregateRows(CategoryPayment, in)...)}
}

func (s *Sheet) AddDiscount(in DiscountInput) *Sheet {
	return &Sheet{Sheet: s.Append(DiscountRows(in)...)}
}

// ItemsSum returns the signed sum of ITEMS rows.
func (s *Sheet) ItemsSum() int64 {
	return s.Sum(pricing.Filter{Category: CategoryItems})
}

func (s *Sheet) ItemsRows() []pricing.Row {
	return s.FilterBy(pricing.Filter{Category: CategoryItems})
}

func (s *Sheet) DeliveryRows() []pricing.Row {
	return s.FilterBy(pricing.Filter{Category: CategoryDelivery})
}

func (s *Sheet) PaymentRows() []pricing.Row {
	return s.FilterBy(pricing.Filter{Category: CategoryPayment})
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
