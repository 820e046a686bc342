// Package product prices a quantity of one catalog product.
package product

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// Product row categories.
const (
	CategoryItem     pricing.Category = "ITEM"
	CategoryDiscount pricing.Category = "DISCOUNT"
	CategoryTax      pricing.Category = "TAX"
)

// Taxonomy describes product sheets to the generic engine.
var Taxonomy = pricing.Taxonomy{Entity: "product", Tax: CategoryTax, Discount: CategoryDiscount}

// Sheet is a product pricing sheet. Verbs return a new sheet.
type Sheet struct {
	*pricing.Sheet
}

// NewSheet returns an empty product sheet.
func NewSheet(currency string, quantity int) *Sheet {
	return &Sheet{Sheet: pricing.NewSheet(Taxonomy, currency, quantity)}
}

// FromCalculation rebuilds a sheet from a persisted calculation.
func FromCalculation(rows []pricing.Row, currency string, quantity int) *Sheet {
	return &Sheet{Sheet: pricing.NewSheet(Taxonomy, currency, quantity, rows...)}
}

// ItemInput describes the price of the priced quantity.
type ItemInput struct {
	Amount     int64
	IsTaxable  bool
	IsNetPrice bool
	Meta       pricing.Meta
}

// TaxInput describes a tax already computed by the caller.
type TaxInput struct {
	Amount int64
	Rate   decimal.Decimal
	Meta   pricing.Meta
}

// DiscountInput describes a discount on the item price.
type DiscountInput struct {
	Amount     int64
	IsTaxable  bool
	IsNetPrice bool
	DiscountID string
	Meta       pricing.Meta
}

// ItemRow builds an ITEM row.
func ItemRow(in ItemInput) pricing.Row {
	return pricing.Row{
		Category:   CategoryItem,
		Amount:     in.Amount,
		IsTaxable:  in.IsTaxable,
		IsNetPrice: in.IsNetPrice,
		Meta:       in.Meta,
	}
}

// TaxRow builds a TAX row derived from the item price.
func TaxRow(in TaxInput) pricing.Row {
	rate := in.Rate
	return pricing.Row{
		Category:     CategoryTax,
		Amount:       in.Amount,
		BaseCategory: CategoryItem,
		Rate:         &rate,
		Meta:         in.Meta,
	}
}

// DiscountRow builds a DISCOUNT row. The amount is stored negative.
func DiscountRow(in DiscountInput) pricing.Row {
	amount := in.Amount
	if amount > 0 {
		amount = -amount
	}
	return pricing.Row{
		Category:     CategoryDiscount,
		Amount:       amount,
		BaseCategory: CategoryItem,
		DiscountID:   in.DiscountID,
		IsTaxable:    in.IsTaxable,
		IsNetPrice:   in.IsNetPrice,
		Meta:         in.Meta,
	}
}

func (s *Sheet) AddItem(in ItemInput) *Sheet {
	return &Sheet{Sheet: s.Append(ItemRow(in))}
}

func (s *Sheet) AddTax(in TaxInput) *Sheet {
	return &Sheet{Sheet: s.Append(TaxRow(in))}
}

func (s *Sheet) AddDiscount(in DiscountInput) *Sheet {
	return &Sheet{Sheet: s.Append(DiscountRow(in))}
}

// ItemSum returns the signed sum of ITEM rows.
func (s *Sheet) ItemSum() int64 {
	return s.Sum(pricing.Filter{Category: CategoryItem})
}

// UnitPrice divides the sheet total by the priced quantity.
func (s *Sheet) UnitPrice(useNetPrice bool) pricing.Money {
	total := s.Total(pricing.TotalOptions{UseNetPrice: useNetPrice})
	quantity := s.Quantity()
	if quantity <= 1 {
		return total
	}
	return pricing.Money{Amount: pricing.Share(total.Amount, 1, int64(quantity)), Currency: total.Currency}
}
