package product_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/pricing/product"
)

type repo map[string]product.Product

func (r repo) Product(_ context.Context, id string) (product.Product, error) {
	p, ok := r[id]
	if !ok {
		return product.Product{}, errors.New("not found")
	}
	return p, nil
}

type flatRate string

func (r flatRate) RateFor(context.Context, pricing.TaxQuery) (decimal.Decimal, error) {
	return decimal.RequireFromString(string(r)), nil
}

type staticResolver map[string]pricing.DiscountConfiguration

func (r staticResolver) DiscountForPricingAdapterKey(_ context.Context, q pricing.DiscountQuery) (pricing.DiscountConfiguration, error) {
	return r[q.PricingAdapterKey], nil
}

var catalog = repo{
	"tea":  {ID: "tea", SKU: "TEA-1", Price: 500, Currency: "CHF", IsTaxable: true, IsNetPrice: true, TaxClass: "reduced"},
	"mug":  {ID: "mug", SKU: "MUG-1", Price: 1077, Currency: "CHF", IsTaxable: true, IsNetPrice: false, TaxClass: "standard"},
	"gift": {ID: "gift", SKU: "GIFT", Price: 2000, Currency: "CHF"},
}

func newDirector(resolver pricing.DiscountResolver) *product.Director {
	d := product.NewDirector(product.Config{Products: catalog, Discounts: resolver, DefaultCurrency: "CHF", DefaultCountry: "CH"})
	product.RegisterDefaults(d, flatRate("0.077"), nil)
	return d
}

func TestGrossPriceTaxCorrection(t *testing.T) {
	s := product.NewSheet("CHF", 1).
		AddItem(product.ItemInput{Amount: 1000, IsTaxable: true, IsNetPrice: false}).
		AddTax(product.TaxInput{Amount: 77, Rate: decimal.RequireFromString("0.077")})

	require.Equal(t, int64(1077), s.Gross())
	require.Equal(t, int64(1000), s.Net())
	require.Equal(t, int64(77), s.TaxSum(pricing.Filter{}))
	require.True(t, s.IsValid())
}

func TestSheetVerbs(t *testing.T) {
	s := product.NewSheet("CHF", 4).
		AddItem(product.ItemInput{Amount: 1000, IsTaxable: true, IsNetPrice: true}).
		AddDiscount(product.DiscountInput{Amount: 200, DiscountID: "spring"}).
		AddTax(product.TaxInput{Amount: 62, Rate: decimal.RequireFromString("0.077")})

	require.Equal(t, int64(1000), s.ItemSum())
	require.Equal(t, []pricing.DiscountPrice{{DiscountID: "spring", Amount: -200, Currency: "CHF"}}, s.DiscountPrices("spring"))
	require.Equal(t, pricing.Money{Amount: 216, Currency: "CHF"}, s.UnitPrice(false))
	require.Equal(t, pricing.Money{Amount: 200, Currency: "CHF"}, s.UnitPrice(true))

	restored := product.FromCalculation(s.Raw(), "CHF", 4)
	require.Equal(t, s.Gross(), restored.Gross())
}

func TestDirectorNetPricedProduct(t *testing.T) {
	sheet, err := product.Calculate(context.Background(), newDirector(nil), product.Input{ProductID: "tea", Quantity: 2})
	require.NoError(t, err)

	require.Equal(t, int64(1000), sheet.Net())
	require.Equal(t, int64(77), sheet.TaxSum(pricing.Filter{}))
	require.Equal(t, int64(1077), sheet.Gross())
	require.Equal(t, int64(539), sheet.UnitPrice(false).Amount)
}

func TestDirectorGrossPricedProductSplitsTax(t *testing.T) {
	sheet, err := product.Calculate(context.Background(), newDirector(nil), product.Input{ProductID: "mug"})
	require.NoError(t, err)

	require.Equal(t, int64(1077), sheet.Gross())
	require.Equal(t, int64(77), sheet.TaxSum(pricing.Filter{}))
	require.Equal(t, int64(1000), sheet.Net())
}

func TestDirectorAppliesDiscountBeforeTax(t *testing.T) {
	d := newDirector(staticResolver{product.KeyDiscount: pricing.Percentage{Rate: decimal.RequireFromString("0.1")}})
	in := product.Input{
		ProductID: "tea",
		Quantity:  2,
		Discounts: []pricing.OrderDiscount{{ID: "d-10", DiscountKey: "voucher", Trigger: pricing.TriggerUser}},
	}
	sheet, err := product.Calculate(context.Background(), d, in)
	require.NoError(t, err)

	require.Equal(t, []pricing.DiscountPrice{{DiscountID: "d-10", Amount: -100, Currency: "CHF"}}, sheet.DiscountPrices(""))
	require.Equal(t, int64(900), sheet.Net())
	require.Equal(t, int64(69), sheet.TaxSum(pricing.Filter{}))
	require.Equal(t, int64(-8), sheet.TaxSum(pricing.Filter{DiscountID: "d-10"}))
}

func TestDirectorClampsDiscounts(t *testing.T) {
	d := newDirector(staticResolver{product.KeyDiscount: pricing.Fixed{Amount: 5000, Currency: "CHF"}})
	in := product.Input{
		ProductID: "gift",
		Discounts: []pricing.OrderDiscount{
			{ID: "a", DiscountKey: "voucher", Trigger: pricing.TriggerUser},
			{ID: "b", DiscountKey: "voucher", Trigger: pricing.TriggerSystem},
		},
	}
	sheet, err := product.Calculate(context.Background(), d, in)
	require.NoError(t, err)

	require.Zero(t, sheet.Gross())
	require.GreaterOrEqual(t, sheet.ItemSum()+sheet.Sum(pricing.Filter{Category: product.CategoryDiscount}), int64(0))
	require.Len(t, sheet.DiscountPrices(""), 1)
}

func TestDirectorInputErrors(t *testing.T) {
	d := newDirector(nil)
	_, err := d.Calculate(context.Background(), product.Input{})
	require.ErrorIs(t, err, product.ErrProductRequired)

	_, err = d.Calculate(context.Background(), product.Input{ProductID: "missing"})
	require.ErrorContains(t, err, "not found")

	_, err = d.Calculate(context.Background(), product.Input{ProductID: "tea", Currency: "EUR"})
	require.ErrorIs(t, err, pricing.ErrCurrencyMismatch)
}

func TestTaxAdapterRequiresRates(t *testing.T) {
	d := product.NewDirector(product.Config{Products: catalog})
	product.RegisterDefaults(d, nil, nil)

	_, err := d.Calculate(context.Background(), product.Input{ProductID: "tea"})
	require.ErrorIs(t, err, pricing.ErrIncompleteConfiguration)

	sheet, err := d.Calculate(context.Background(), product.Input{ProductID: "gift"})
	require.NoError(t, err)
	require.Equal(t, int64(2000), sheet.Gross())
}
