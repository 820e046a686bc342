package payment_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/pricing/payment"
)

type providers map[string]payment.Provider

func (p providers) PaymentProvider(_ context.Context, id string) (payment.Provider, error) {
	v, ok := p[id]
	if !ok {
		return payment.Provider{}, errors.New("unknown provider")
	}
	return v, nil
}

type flatRate string

func (r flatRate) RateFor(context.Context, pricing.TaxQuery) (decimal.Decimal, error) {
	return decimal.RequireFromString(string(r)), nil
}

var registry = providers{
	"card":    {ID: "card", Type: "CARD", Fee: 30, Rate: decimal.RequireFromString("0.029"), Currency: "IDR", IsTaxable: true, IsNetPrice: true},
	"invoice": {ID: "invoice", Type: "INVOICE", Currency: "IDR"},
}

func newDirector() *payment.Director {
	d := payment.NewDirector(payment.Config{Providers: registry, DefaultCurrency: "IDR"})
	payment.RegisterDefaults(d, flatRate("0.11"), nil)
	return d
}

func TestSheetVerbs(t *testing.T) {
	s := payment.NewSheet("IDR").
		AddFee(payment.FeeInput{Amount: 100, IsTaxable: true, IsNetPrice: true}).
		AddTax(payment.TaxInput{Amount: 11, Rate: decimal.RequireFromString("0.11")}).
		AddDiscount(payment.DiscountInput{Amount: -40, DiscountID: "card-promo"})

	require.Equal(t, int64(100), s.FeeSum())
	require.Equal(t, int64(71), s.Gross())
	require.Equal(t, int64(11), s.Total(pricing.TotalOptions{Category: payment.CategoryTax}).Amount)
	require.Equal(t, int64(-40), s.DiscountPrices("")[0].Amount)
}

func TestDirectorPercentageFee(t *testing.T) {
	sheet, err := payment.Calculate(context.Background(), newDirector(), payment.Input{ProviderID: "card", ItemsTotal: 10_000})
	require.NoError(t, err)

	require.Equal(t, int64(320), sheet.FeeSum())
	require.Equal(t, int64(35), sheet.TaxSum(pricing.Filter{BaseCategory: payment.CategoryPayment}))
	require.Equal(t, int64(355), sheet.Gross())
}

func TestDirectorFreeProvider(t *testing.T) {
	sheet, err := payment.Calculate(context.Background(), newDirector(), payment.Input{ProviderID: "invoice", ItemsTotal: 10_000})
	require.NoError(t, err)
	require.Zero(t, sheet.Len())
}

func TestDirectorRequiresProvider(t *testing.T) {
	_, err := newDirector().Calculate(context.Background(), payment.Input{})
	require.ErrorIs(t, err, payment.ErrProviderRequired)
}
