package reprice

import (
	"context"
	"time"

	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/pricing/order"
	"github.com/noah-isme/toko-pricing/internal/pricing/product"
)

// Pricing is the read model of an order's persisted calculation.
type Pricing struct {
	OrderID   string                  `json:"orderId"`
	Currency  string                  `json:"currency"`
	Version   int64                   `json:"version"`
	PricedAt  *time.Time              `json:"pricedAt,omitempty"`
	Items     pricing.Money           `json:"items"`
	Delivery  pricing.Money           `json:"delivery"`
	Payment   pricing.Money           `json:"payment"`
	Discounts pricing.Money           `json:"discounts"`
	Taxes     pricing.Money           `json:"taxes"`
	Net       pricing.Money           `json:"net"`
	Gross     pricing.Money           `json:"gross"`
	Breakdown []pricing.DiscountPrice `json:"discountBreakdown"`
	Positions []PositionPricing       `json:"positions"`
	Rows      []pricing.Row           `json:"calculation"`
}

// PositionPricing summarises one position's product calculation.
type PositionPricing struct {
	ID        string        `json:"id"`
	ProductID string        `json:"productId"`
	Quantity  int           `json:"quantity"`
	UnitPrice pricing.Money `json:"unitPrice"`
	Net       pricing.Money `json:"net"`
	Gross     pricing.Money `json:"gross"`
	Tax       pricing.Money `json:"tax"`
}

// ProductPricing summarises a simulated product price.
type ProductPricing struct {
	ProductID string                  `json:"productId"`
	Quantity  int                     `json:"quantity"`
	UnitPrice pricing.Money           `json:"unitPrice"`
	Net       pricing.Money           `json:"net"`
	Gross     pricing.Money           `json:"gross"`
	Tax       pricing.Money           `json:"tax"`
	Discounts []pricing.DiscountPrice `json:"discountBreakdown"`
	Rows      []pricing.Row           `json:"calculation"`
}

// OrderPricing loads an order and summarises its persisted calculation.
func (s *Service) OrderPricing(ctx context.Context, orderID string) (Pricing, error) {
	o, err := s.Store.Order(ctx, orderID)
	if err != nil {
		return Pricing{}, err
	}
	return PricingOf(o), nil
}

// PricingOf summarises o from its stored rows only.
func PricingOf(o order.Order) Pricing {
	sheet := o.Sheet()
	money := func(amount int64) pricing.Money { return pricing.Money{Amount: amount, Currency: o.Currency} }
	p := Pricing{
		OrderID:   o.ID,
		Currency:  o.Currency,
		Version:   o.Version,
		PricedAt:  o.PricedAt,
		Items:     money(sheet.ItemsSum()),
		Delivery:  money(sheet.Sum(pricing.Filter{Category: order.CategoryDelivery})),
		Payment:   money(sheet.Sum(pricing.Filter{Category: order.CategoryPayment})),
		Discounts: money(sheet.Sum(pricing.Filter{Category: order.CategoryDiscounts})),
		Taxes:     money(sheet.TaxSum(pricing.Filter{})),
		Net:       money(sheet.Net()),
		Gross:     money(sheet.Gross()),
		Breakdown: discountBreakdown(sheet),
		Positions: make([]PositionPricing, 0, len(o.Positions)),
		Rows:      sheet.Raw(),
	}
	for _, pos := range o.Positions {
		ps := product.FromCalculation(pos.Calculation, o.Currency, pos.Quantity)
		p.Positions = append(p.Positions, PositionPricing{
			ID:        pos.ID,
			ProductID: pos.ProductID,
			Quantity:  pos.Quantity,
			UnitPrice: ps.UnitPrice(false),
			Net:       money(ps.Net()),
			Gross:     money(ps.Gross()),
			Tax:       money(ps.TaxSum(pricing.Filter{})),
		})
	}
	return p
}

// ProductPricingOf summarises a product sheet.
func ProductPricingOf(productID string, sheet *product.Sheet) ProductPricing {
	money := func(amount int64) pricing.Money { return pricing.Money{Amount: amount, Currency: sheet.Currency()} }
	return ProductPricing{
		ProductID: productID,
		Quantity:  sheet.Quantity(),
		UnitPrice: sheet.UnitPrice(false),
		Net:       money(sheet.Net()),
		Gross:     money(sheet.Gross()),
		Tax:       money(sheet.TaxSum(pricing.Filter{})),
		Discounts: sheet.DiscountPrices(""),
		Rows:      sheet.Raw(),
	}
}

// discountBreakdown totals every discount on the order sheet, gross of the
// tax it removed. Sub-sheet discounts are rolled up there with their ids.
func discountBreakdown(sheet *order.Sheet) []pricing.DiscountPrice {
	prices := sheet.DiscountPrices("")
	out := make([]pricing.DiscountPrice, 0, len(prices))
	for _, dp := range prices {
		dp.Amount = sheet.Total(pricing.TotalOptions{DiscountID: dp.DiscountID}).Amount
		out = append(out, dp)
	}
	return out
}
