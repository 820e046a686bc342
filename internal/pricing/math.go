package pricing

import (
	"context"

	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// ApplyRate returns amount*rate rounded half away from zero.
func ApplyRate(amount int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(rate).Round(0).IntPart()
}

// TaxPortion returns the tax contained in (gross) or owed on top of (net) amount.
func TaxPortion(amount int64, rate decimal.Decimal, isNetPrice bool) int64 {
	if rate.IsZero() || amount == 0 {
		return 0
	}
	a := decimal.NewFromInt(amount)
	if isNetPrice {
		return a.Mul(rate).Round(0).IntPart()
	}
	net := a.Div(one.Add(rate))
	return a.Sub(net).Round(0).IntPart()
}

// Share returns amount*part/whole rounded half away from zero, or 0 when whole is 0.
func Share(amount, part, whole int64) int64 {
	if whole == 0 {
		return 0
	}
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(part)).
		Div(decimal.NewFromInt(whole)).
		Round(0).
		IntPart()
}

// TaxQuery identifies the rate a tax adapter needs.
type TaxQuery struct {
	Entity   string
	Country  string
	TaxClass string
}

// TaxRateProvider resolves tax rates. Implementations may call out to remote services.
type TaxRateProvider interface {
	RateFor(ctx context.Context, q TaxQuery) (decimal.Decimal, error)
}

// TaxRows derives tax rows for every taxable row in rows. Gross-priced rows
// additionally get an offsetting row in their own category so that the
// sheet's gross total is unchanged by taxation.
func TaxRows(rows []Row, taxCategory Category, rate decimal.Decimal, meta Meta) []Row {
	var out []Row
	for _, r := range rows {
		if !r.IsTaxable || r.Category == taxCategory {
			continue
		}
		tax := TaxPortion(r.Amount, rate, r.IsNetPrice)
		if tax == 0 {
			continue
		}
		if !r.IsNetPrice {
			out = append(out, Row{
				Category:     r.Category,
				Amount:       -tax,
				BaseCategory: r.BaseCategory,
				DiscountID:   r.DiscountID,
				IsNetPrice:   true,
				Meta:         Meta{"taxCorrection": true},
			})
		}
		rt := rate
		out = append(out, Row{
			Category:     taxCategory,
			Amount:       tax,
			BaseCategory: r.Category,
			DiscountID:   r.DiscountID,
			Rate:         &rt,
			Meta:         meta,
		})
	}
	return out
}
