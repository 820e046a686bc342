package pricing

import (
	"context"
	"maps"
)

// DiscountRows realises discounts against what is left of the base category
// on sheet. Discounts are applied in order and each one takes at most the
// amount earlier ones left, so the discounted base never turns negative.
// Rows inherit the taxability and price basis of the first base row.
func DiscountRows(ctx context.Context, sheet *Sheet, base Category, discounts []Discount, predicates PredicateEvaluator, facts map[string]any) ([]Row, error) {
	if len(discounts) == 0 {
		return nil, nil
	}
	baseRows := sheet.FilterBy(Filter{Category: base})
	if len(baseRows) == 0 {
		return nil, nil
	}
	discountCategory := sheet.Taxonomy().Discount
	remaining := sheet.Sum(Filter{Category: base}) + sheet.Sum(Filter{Category: discountCategory, BaseCategory: base})
	template := baseRows[0]

	var out []Row
	for _, d := range discounts {
		f := maps.Clone(facts)
		if f == nil {
			f = map[string]any{}
		}
		f["baseAmount"] = remaining
		f["discountKey"] = d.DiscountKey

		amount, err := Reduction(ctx, d.Configuration, remaining, sheet.Currency(), predicates, f)
		if err != nil {
			return nil, err
		}
		if amount == 0 {
			continue
		}
		remaining -= amount
		out = append(out, Row{
			Category:     discountCategory,
			Amount:       -amount,
			BaseCategory: base,
			DiscountID:   d.DiscountID,
			IsTaxable:    template.IsTaxable,
			IsNetPrice:   template.IsNetPrice,
			Meta:         Meta{"discountKey": d.DiscountKey},
		})
	}
	return out, nil
}
