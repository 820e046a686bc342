package pricing_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

var propCategories = []pricing.Category{catItem, catDelivery, catDiscount, catTax}

func sheetFrom(amounts []int64, picks []uint8) *pricing.Sheet {
	s := pricing.NewSheet(testTaxonomy, "IDR", 1)
	for i, amount := range amounts {
		cat := propCategories[0]
		if i < len(picks) {
			cat = propCategories[int(picks[i])%len(propCategories)]
		}
		s = s.Append(pricing.Row{Category: cat, Amount: amount, BaseCategory: catItem})
	}
	return s
}

func TestSheetProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	amounts := gen.SliceOf(gen.Int64Range(-1_000_000, 1_000_000))
	picks := gen.SliceOf(gen.UInt8())

	properties.Property("net plus tax equals gross", prop.ForAll(
		func(items []int64, taxes []int64) bool {
			s := pricing.NewSheet(testTaxonomy, "IDR", 1)
			for _, a := range items {
				s = s.Append(pricing.Row{Category: catItem, Amount: a, IsTaxable: true})
			}
			for _, a := range taxes {
				s = s.Append(pricing.Row{Category: catTax, Amount: a, BaseCategory: catItem})
			}
			return s.Net()+s.TaxSum(pricing.Filter{}) == s.Gross()
		},
		amounts, amounts,
	))

	properties.Property("a sheet and its reset net to zero per category", prop.ForAll(
		func(amounts []int64, picks []uint8) bool {
			s := sheetFrom(amounts, picks)
			ledger := s.Append(s.ResetCalculation(s)...)
			for _, c := range propCategories {
				if ledger.Sum(pricing.Filter{Category: c}) != 0 {
					return false
				}
			}
			return ledger.Gross() == 0
		},
		amounts, picks,
	))

	properties.Property("discount prices equal the sum of added discounts", prop.ForAll(
		func(amounts []int64, picks []uint8) bool {
			ids := []string{"a", "b", "c"}
			s := pricing.NewSheet(testTaxonomy, "IDR", 1, pricing.Row{Category: catItem, Amount: 10_000})
			want := map[string]int64{}
			for i, amount := range amounts {
				id := ids[0]
				if i < len(picks) {
					id = ids[int(picks[i])%len(ids)]
				}
				s = s.WithDiscount(amount, id, nil)
				if amount < 0 {
					amount = -amount
				}
				want[id] -= amount
			}
			for _, p := range s.DiscountPrices("") {
				if want[p.DiscountID] != p.Amount {
					return false
				}
				delete(want, p.DiscountID)
			}
			return len(want) == 0
		},
		amounts, picks,
	))

	properties.Property("gross-priced tax rows keep the gross total", prop.ForAll(
		func(amounts []int64, bps uint16) bool {
			rate := decimal.New(int64(bps%5000), -4)
			var rows []pricing.Row
			for _, a := range amounts {
				rows = append(rows, pricing.Row{Category: catItem, Amount: a, IsTaxable: true})
			}
			s := pricing.NewSheet(testTaxonomy, "IDR", 1, rows...)
			taxed := s.Append(pricing.TaxRows(rows, catTax, rate, nil)...)
			return taxed.Gross() == s.Gross()
		},
		amounts, gen.UInt16(),
	))

	properties.TestingRun(t)
}

func TestAdapterDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	adapter := pricing.Func[testContext]{
		Identity: pricing.NewIdentity("discount", "Discount", "1.0", 10),
		Fn: func(ctx context.Context, c testContext, sheet *pricing.Sheet, discounts []pricing.Discount) ([]pricing.Row, error) {
			rows, err := pricing.DiscountRows(ctx, sheet, catItem, discounts, nil, pricing.FactsOf(c))
			if err != nil {
				return nil, err
			}
			taxable := sheet.Append(rows...).FilterBy(pricing.Filter{IsTaxable: pricing.Bool(true)})
			return append(rows, pricing.TaxRows(taxable, catTax, decimal.RequireFromString("0.077"), nil)...), nil
		},
	}

	properties.Property("calculate is deterministic for identical inputs", prop.ForAll(
		func(items []int64, bps uint16, fixed int64) bool {
			s := pricing.NewSheet(testTaxonomy, "IDR", 1)
			for _, a := range items {
				s = s.Append(pricing.Row{Category: catItem, Amount: a, IsTaxable: true})
			}
			discounts := []pricing.Discount{
				{DiscountID: "p", DiscountKey: "voucher", Configuration: pricing.Percentage{Rate: decimal.New(int64(bps%10000), -4)}},
				{DiscountID: "f", DiscountKey: "voucher", Configuration: pricing.Fixed{Amount: fixed}},
			}
			first, err1 := pricing.NewActions[testContext](adapter, newTestContext(), s, discounts).Calculate(context.Background())
			second, err2 := pricing.NewActions[testContext](adapter, newTestContext(), s, discounts).Calculate(context.Background())
			if err1 != nil || err2 != nil {
				return err1 != nil && err2 != nil
			}
			return reflect.DeepEqual(first, second)
		},
		gen.SliceOf(gen.Int64Range(0, 1_000_000)), gen.UInt16(), gen.Int64Range(0, 100_000),
	))

	properties.TestingRun(t)
}
