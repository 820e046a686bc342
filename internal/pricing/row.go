package pricing

import (
	"maps"

	"github.com/shopspring/decimal"
)

// Category tags the monetary effect of a row. Each entity kind owns a closed
// set of categories (see the product, delivery, payment and order packages).
type Category string

// Meta carries opaque adapter metadata alongside a row.
type Meta map[string]any

// Row is the atomic, write-once unit of a calculation. Amounts are stored in
// minor currency units. Discount rows carry negative amounts.
type Row struct {
	Category     Category         `json:"category"`
	Amount       int64            `json:"amount"`
	Currency     string           `json:"currency,omitempty"`
	BaseCategory Category         `json:"baseCategory,omitempty"`
	DiscountID   string           `json:"discountId,omitempty"`
	IsTaxable    bool             `json:"isTaxable,omitempty"`
	IsNetPrice   bool             `json:"isNetPrice,omitempty"`
	Rate         *decimal.Decimal `json:"rate,omitempty"`
	Meta         Meta             `json:"meta,omitempty"`
}

// Inverse returns a copy of the row with the amount negated.
func (r Row) Inverse() Row {
	out := r.clone()
	out.Amount = -r.Amount
	return out
}

func (r Row) clone() Row {
	out := r
	if r.Meta != nil {
		out.Meta = maps.Clone(r.Meta)
	}
	if r.Rate != nil {
		rate := *r.Rate
		out.Rate = &rate
	}
	return out
}

// Money is an amount in minor units together with its currency.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Filter is a structural match against rows. Zero fields match anything.
type Filter struct {
	Category     Category
	BaseCategory Category
	DiscountID   string
	IsTaxable    *bool
	IsNetPrice   *bool
}

// Match reports whether the row satisfies every set field of the filter.
func (f Filter) Match(r Row) bool {
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	if f.BaseCategory != "" && r.BaseCategory != f.BaseCategory {
		return false
	}
	if f.DiscountID != "" && r.DiscountID != f.DiscountID {
		return false
	}
	if f.IsTaxable != nil && r.IsTaxable != *f.IsTaxable {
		return false
	}
	if f.IsNetPrice != nil && r.IsNetPrice != *f.IsNetPrice {
		return false
	}
	return true
}

// Bool returns a pointer to v, for use in filters.
func Bool(v bool) *bool {
	return &v
}

// Taxonomy names the categories of an entity kind that the generic sheet
// needs to answer tax and discount queries.
type Taxonomy struct {
	Entity   string
	Tax      Category
	Discount Category
}
