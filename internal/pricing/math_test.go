package pricing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

func TestApplyRateRoundsHalfAwayFromZero(t *testing.T) {
	rate := decimal.RequireFromString("0.05")
	require.Equal(t, int64(1), pricing.ApplyRate(10, rate))
	require.Equal(t, int64(-1), pricing.ApplyRate(-10, rate))
	require.Equal(t, int64(0), pricing.ApplyRate(9, rate))
}

func TestTaxPortion(t *testing.T) {
	rate := decimal.RequireFromString("0.077")
	require.Equal(t, int64(77), pricing.TaxPortion(1000, rate, true))
	require.Equal(t, int64(71), pricing.TaxPortion(1000, rate, false))
	require.Equal(t, int64(-8), pricing.TaxPortion(-100, rate, true))
	require.Zero(t, pricing.TaxPortion(1000, decimal.Zero, true))
}

func TestShare(t *testing.T) {
	require.Equal(t, int64(33), pricing.Share(100, 1, 3))
	require.Equal(t, int64(67), pricing.Share(100, 2, 3))
	require.Zero(t, pricing.Share(100, 1, 0))
}

func TestTaxRowsNetAndGross(t *testing.T) {
	rate := decimal.RequireFromString("0.1")
	rows := []pricing.Row{
		{Category: catItem, Amount: 1000, IsTaxable: true, IsNetPrice: true},
		{Category: catDelivery, Amount: 110, IsTaxable: true},
		{Category: catItem, Amount: 500},
	}
	out := pricing.TaxRows(rows, catTax, rate, pricing.Meta{"taxClass": "standard"})
	require.Len(t, out, 3)

	require.Equal(t, catTax, out[0].Category)
	require.Equal(t, int64(100), out[0].Amount)
	require.Equal(t, catItem, out[0].BaseCategory)
	require.True(t, out[0].Rate.Equal(rate))

	require.Equal(t, catDelivery, out[1].Category)
	require.Equal(t, int64(-10), out[1].Amount)
	require.True(t, out[1].IsNetPrice)
	require.Equal(t, true, out[1].Meta["taxCorrection"])
	require.Equal(t, catTax, out[2].Category)
	require.Equal(t, int64(10), out[2].Amount)
	require.Equal(t, catDelivery, out[2].BaseCategory)

	sheet := pricing.NewSheet(testTaxonomy, "IDR", 1, rows...).Append(out...)
	require.Equal(t, int64(1000+110+500+100), sheet.Gross())
	require.Equal(t, int64(110), sheet.Total(pricing.TotalOptions{Category: catDelivery}).Amount)
	require.Equal(t, int64(100), sheet.Total(pricing.TotalOptions{Category: catDelivery, UseNetPrice: true}).Amount)
}

type staticPredicates map[string]bool

func (p staticPredicates) Evaluate(_ context.Context, id string, facts map[string]any) (bool, error) {
	ok, known := p[id]
	if !known {
		return false, errors.New("unknown predicate " + id)
	}
	return ok, nil
}

func TestReduction(t *testing.T) {
	ctx := context.Background()
	ten := pricing.Percentage{Rate: decimal.RequireFromString("0.1")}

	amount, err := pricing.Reduction(ctx, ten, 1000, "IDR", nil, nil)
	require.NoError(t, err)
	require.Equal(t, int64(100), amount)

	amount, err = pricing.Reduction(ctx, pricing.Fixed{Amount: 5000, Currency: "IDR"}, 1000, "IDR", nil, nil)
	require.NoError(t, err)
	require.Equal(t, int64(1000), amount, "fixed discounts clamp to the base")

	amount, err = pricing.Reduction(ctx, pricing.Percentage{Rate: decimal.RequireFromString("1.5")}, 1000, "IDR", nil, nil)
	require.NoError(t, err)
	require.Equal(t, int64(1000), amount)

	amount, err = pricing.Reduction(ctx, ten, 0, "IDR", nil, nil)
	require.NoError(t, err)
	require.Zero(t, amount)

	_, err = pricing.Reduction(ctx, pricing.Fixed{Amount: 10, Currency: "EUR"}, 1000, "IDR", nil, nil)
	require.ErrorIs(t, err, pricing.ErrCurrencyMismatch)

	preds := staticPredicates{"big-basket": true, "weekend": false}
	amount, err = pricing.Reduction(ctx, pricing.Custom{PredicateID: "big-basket", Then: ten}, 1000, "IDR", preds, nil)
	require.NoError(t, err)
	require.Equal(t, int64(100), amount)

	amount, err = pricing.Reduction(ctx, pricing.Custom{PredicateID: "weekend", Then: ten}, 1000, "IDR", preds, nil)
	require.NoError(t, err)
	require.Zero(t, amount)

	_, err = pricing.Reduction(ctx, pricing.Custom{PredicateID: "big-basket", Then: ten}, 1000, "IDR", nil, nil)
	require.ErrorIs(t, err, pricing.ErrIncompleteConfiguration)
}

func TestDiscountRowsClampCumulatively(t *testing.T) {
	sheet := pricing.NewSheet(testTaxonomy, "IDR", 1,
		pricing.Row{Category: catItem, Amount: 1000, IsTaxable: true},
		pricing.Row{Category: catDelivery, Amount: 50},
	)
	discounts := []pricing.Discount{
		{DiscountID: "big", DiscountKey: "voucher", Configuration: pricing.Fixed{Amount: 800}},
		{DiscountID: "bigger", DiscountKey: "voucher", Configuration: pricing.Fixed{Amount: 800}},
		{DiscountID: "none", DiscountKey: "voucher", Configuration: pricing.Percentage{Rate: decimal.RequireFromString("0.5")}},
	}
	rows, err := pricing.DiscountRows(context.Background(), sheet, catItem, discounts, nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, int64(-800), rows[0].Amount)
	require.Equal(t, int64(-200), rows[1].Amount)
	require.True(t, rows[0].IsTaxable)
	require.Equal(t, catItem, rows[1].BaseCategory)

	discounted := sheet.Append(rows...)
	require.Zero(t, discounted.Sum(pricing.Filter{Category: catItem})+discounted.Sum(pricing.Filter{Category: catDiscount}))
	require.Equal(t, int64(50), discounted.Total(pricing.TotalOptions{Category: catDelivery}).Amount)
}
