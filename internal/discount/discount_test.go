package discount_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/discount"
	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/pricing/product"
)

type rules map[string]discount.Rule

func (r rules) VoucherRule(_ context.Context, code string) (discount.Rule, error) {
	rule, ok := r[strings.ToUpper(code)]
	if !ok {
		return discount.Rule{}, discount.ErrVoucherNotFound
	}
	return rule, nil
}

type products map[string]product.Product

func (p products) Product(_ context.Context, id string) (product.Product, error) {
	item, ok := p[id]
	if !ok {
		return product.Product{}, errors.New("not found")
	}
	return item, nil
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var voucherRules = rules{
	"TENOFF":   {Code: "TENOFF", Kind: "percent", PercentBps: 1000},
	"BIGSPEND": {Code: "BIGSPEND", Kind: "fixed", Value: 500, Currency: "CHF", MinSpend: 10_000},
	"ONCE":     {Code: "ONCE", Kind: "percent", PercentBps: 500, UsageLimit: 1},
	"GIFTONLY": {Code: "GIFTONLY", Kind: "percent", PercentBps: 2000, ProductIDs: []string{"gift"}},
	"OLD":      {Code: "OLD", Kind: "percent", PercentBps: 1000, ValidTo: ptrTime(now.Add(-time.Hour))},
	"BULK":     {Code: "BULK", Kind: "percent", PercentBps: 1000, Predicate: "bulk"},
}

func ptrTime(t time.Time) *time.Time { return &t }

func newReservations(t *testing.T) (discount.Reservations, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return discount.Reservations{R: client, Prefix: "test:discount"}, mr
}

func newDirector(t *testing.T) *discount.Director {
	t.Helper()
	reservations, _ := newReservations(t)
	d := discount.NewDirector(zerolog.Nop())
	d.Now = func() time.Time { return now }
	seq := 0
	d.NewID = func() string {
		seq++
		return "disc-" + string(rune('0'+seq))
	}
	d.Register(discount.NewVoucher(voucherRules, reservations))
	d.Register(discount.NewFreeDelivery(5_000, "CHF"))
	return d
}

func orderContext(id string, total int64, productIDs ...string) discount.Context {
	return discount.Context{OrderID: id, Currency: "CHF", Country: "CH", ItemsTotal: total, ProductIDs: productIDs}
}

func TestApplyCodeReservesVoucher(t *testing.T) {
	d := newDirector(t)
	od, err := d.ApplyCode(context.Background(), orderContext("o-1", 2_000, "tea"), " tenoff ")
	require.NoError(t, err)
	require.Equal(t, pricing.OrderDiscount{ID: "disc-1", DiscountKey: discount.VoucherKey, Code: "tenoff", Trigger: pricing.TriggerUser}, od)
}

func TestApplyCodeRejections(t *testing.T) {
	d := newDirector(t)
	ctx := context.Background()

	_, err := d.ApplyCode(ctx, orderContext("o-1", 2_000), "NOPE")
	require.ErrorIs(t, err, discount.ErrCodeNotApplicable)

	_, err = d.ApplyCode(ctx, orderContext("o-1", 2_000), "")
	require.ErrorIs(t, err, discount.ErrCodeNotApplicable)

	_, err = d.ApplyCode(ctx, orderContext("o-1", 2_000), "BIGSPEND")
	require.ErrorIs(t, err, discount.ErrMinimumSpendUnmet)

	_, err = d.ApplyCode(ctx, orderContext("o-1", 2_000), "OLD")
	require.ErrorIs(t, err, discount.ErrVoucherExpired)

	_, err = d.ApplyCode(ctx, orderContext("o-1", 2_000, "tea"), "GIFTONLY")
	require.ErrorIs(t, err, discount.ErrNotEligible)

	existing := orderContext("o-1", 2_000)
	existing.Existing = []pricing.OrderDiscount{{ID: "x", DiscountKey: discount.VoucherKey, Code: "TENOFF", Trigger: pricing.TriggerUser}}
	_, err = d.ApplyCode(ctx, existing, "tenoff")
	require.ErrorIs(t, err, discount.ErrAlreadyApplied)
}

func TestUsageLimitAndRelease(t *testing.T) {
	d := newDirector(t)
	ctx := context.Background()

	first, err := d.ApplyCode(ctx, orderContext("o-1", 2_000), "ONCE")
	require.NoError(t, err)

	// same order again is idempotent at the reservation level
	again := orderContext("o-1", 2_000)
	_, err = d.ApplyCode(ctx, again, "ONCE")
	require.NoError(t, err)

	_, err = d.ApplyCode(ctx, orderContext("o-2", 2_000), "ONCE")
	require.ErrorIs(t, err, discount.ErrUsageLimitReached)

	require.NoError(t, d.Remove(ctx, orderContext("o-1", 2_000), first))
	_, err = d.ApplyCode(ctx, orderContext("o-2", 2_000), "ONCE")
	require.NoError(t, err)
}

func TestReservationsCount(t *testing.T) {
	reservations, mr := newReservations(t)
	ctx := context.Background()

	require.NoError(t, reservations.Reserve(ctx, "voucher", "promo", "o-1", 2))
	require.NoError(t, reservations.Reserve(ctx, "voucher", "PROMO", "o-2", 2))
	require.ErrorIs(t, reservations.Reserve(ctx, "voucher", "promo", "o-3", 2), discount.ErrUsageLimitReached)

	n, err := reservations.Count(ctx, "voucher", "promo")
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
	require.True(t, mr.Exists("test:discount:voucher:PROMO"))

	require.NoError(t, reservations.Release(ctx, "voucher", "promo", "o-1"))
	n, err = reservations.Count(ctx, "voucher", "promo")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestSystemDiscounts(t *testing.T) {
	d := newDirector(t)
	ctx := context.Background()
	user := pricing.OrderDiscount{ID: "u-1", DiscountKey: discount.VoucherKey, Code: "TENOFF", Trigger: pricing.TriggerUser}

	c := orderContext("o-1", 6_000)
	c.Existing = []pricing.OrderDiscount{user}
	got, err := d.SystemDiscounts(ctx, c)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, user, got[0])
	require.Equal(t, discount.FreeDeliveryKey, got[1].DiscountKey)
	require.Equal(t, pricing.TriggerSystem, got[1].Trigger)

	// already present system discounts keep their id
	c.Existing = got
	again, err := d.SystemDiscounts(ctx, c)
	require.NoError(t, err)
	require.Equal(t, got, again)

	// dropping below the threshold removes it
	c.ItemsTotal = 4_000
	below, err := d.SystemDiscounts(ctx, c)
	require.NoError(t, err)
	require.Equal(t, []pricing.OrderDiscount{user}, below)

	require.ErrorIs(t, d.Remove(ctx, c, got[1]), discount.ErrRemovalNotAllowed)
}

func TestResolverConfigurations(t *testing.T) {
	d := newDirector(t)
	ctx := context.Background()
	productSheet := pricing.NewSheet(product.Taxonomy, "CHF", 1)
	deliveryFacts := map[string]any{"entity": "delivery"}

	cfg, err := d.DiscountForPricingAdapterKey(ctx, pricing.DiscountQuery{
		Discount:          pricing.OrderDiscount{DiscountKey: discount.VoucherKey, Code: "TENOFF"},
		PricingAdapterKey: product.KeyDiscount,
		Sheet:             productSheet,
		Facts:             map[string]any{"productId": "tea"},
	})
	require.NoError(t, err)
	require.Equal(t, pricing.Percentage{Rate: decimal.New(1000, -4)}, cfg)

	cfg, err = d.DiscountForPricingAdapterKey(ctx, pricing.DiscountQuery{
		Discount: pricing.OrderDiscount{DiscountKey: discount.VoucherKey, Code: "GIFTONLY"},
		Sheet:    productSheet,
		Facts:    map[string]any{"productId": "tea"},
	})
	require.NoError(t, err)
	require.Nil(t, cfg)

	cfg, err = d.DiscountForPricingAdapterKey(ctx, pricing.DiscountQuery{
		Discount: pricing.OrderDiscount{DiscountKey: discount.VoucherKey, Code: "BIGSPEND"},
		Sheet:    productSheet,
	})
	require.NoError(t, err)
	require.Nil(t, cfg, "fixed vouchers discount the order, not each product")

	cfg, err = d.DiscountForPricingAdapterKey(ctx, pricing.DiscountQuery{
		Discount: pricing.OrderDiscount{DiscountKey: discount.FreeDeliveryKey},
		Facts:    deliveryFacts,
	})
	require.NoError(t, err)
	require.Equal(t, pricing.Percentage{Rate: decimal.NewFromInt(1)}, cfg)

	_, err = d.DiscountForPricingAdapterKey(ctx, pricing.DiscountQuery{
		Discount: pricing.OrderDiscount{DiscountKey: "loyalty"},
	})
	require.Equal(t, pricing.CodeAdapterNotFound, pricing.CodeOf(err))
}

func TestPredicates(t *testing.T) {
	p := discount.NewPredicates()
	require.NoError(t, p.Register("bulk", []byte(`{">=": [{"var": "quantity"}, 3]}`)))
	require.ErrorIs(t, p.Register("broken", []byte(`{">=": [`)), discount.ErrInvalidRule)

	ctx := context.Background()
	ok, err := p.Evaluate(ctx, "bulk", map[string]any{"quantity": 3})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = p.Evaluate(ctx, "bulk", map[string]any{"quantity": 2})
	require.NoError(t, err)
	require.False(t, ok)

	_, err = p.Evaluate(ctx, "missing", nil)
	require.Equal(t, pricing.CodeIncompleteConfiguration, pricing.CodeOf(err))
}

func TestVoucherPricesProduct(t *testing.T) {
	d := newDirector(t)
	predicates := discount.NewPredicates()
	require.NoError(t, predicates.Register("bulk", []byte(`{">=": [{"var": "quantity"}, 3]}`)))

	catalog := products{"gift": {ID: "gift", SKU: "GIFT", Price: 2000, Currency: "CHF"}}
	pd := product.NewDirector(product.Config{Products: catalog, Discounts: d, DefaultCurrency: "CHF", DefaultCountry: "CH"})
	product.RegisterDefaults(pd, nil, predicates)

	ctx := context.Background()
	sheet, err := product.Calculate(ctx, pd, product.Input{
		ProductID: "gift",
		Quantity:  1,
		Discounts: []pricing.OrderDiscount{
			{ID: "d-1", DiscountKey: discount.VoucherKey, Code: "TENOFF", Trigger: pricing.TriggerUser},
			{ID: "d-2", DiscountKey: discount.VoucherKey, Code: "BULK", Trigger: pricing.TriggerUser},
		},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1800), sheet.Net())
	require.Equal(t, []pricing.DiscountPrice{{DiscountID: "d-1", Amount: -200, Currency: "CHF"}}, sheet.DiscountPrices(""))

	sheet, err = product.Calculate(ctx, pd, product.Input{
		ProductID: "gift",
		Quantity:  3,
		Discounts: []pricing.OrderDiscount{{ID: "d-2", DiscountKey: discount.VoucherKey, Code: "BULK", Trigger: pricing.TriggerUser}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(5400), sheet.Net())
}
