package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/pricing/delivery"
	"github.com/noah-isme/toko-pricing/internal/pricing/payment"
	"github.com/noah-isme/toko-pricing/internal/pricing/product"
)

// ErrOrderRequired is returned when an input names no order.
var ErrOrderRequired = errors.New("order: order id required")

// Position is an order line with its persisted product calculation.
type Position struct {
	ID          string        `json:"id" validate:"required"`
	ProductID   string        `json:"productId" validate:"required"`
	Quantity    int           `json:"quantity" validate:"gte=1"`
	Calculation []pricing.Row `json:"calculation,omitempty"`
}

// Delivery is the order's delivery choice with its persisted calculation.
type Delivery struct {
	ProviderID  string        `json:"providerId" validate:"required"`
	Calculation []pricing.Row `json:"calculation,omitempty"`
}

// Payment is the order's payment choice with its persisted calculation.
type Payment struct {
	ProviderID  string        `json:"providerId" validate:"required"`
	Calculation []pricing.Row `json:"calculation,omitempty"`
}

// Order is the priced document. Calculation is replaced wholesale by every
// successful recalculation.
type Order struct {
	ID          string                  `json:"id" validate:"required"`
	Currency    string                  `json:"currency" validate:"required,len=3"`
	Country     string                  `json:"country,omitempty"`
	Positions   []Position              `json:"positions" validate:"dive"`
	Delivery    *Delivery               `json:"delivery,omitempty"`
	Payment     *Payment                `json:"payment,omitempty"`
	Discounts   []pricing.OrderDiscount `json:"discounts,omitempty"`
	Calculation []pricing.Row           `json:"calculation,omitempty"`
	Version     int64                   `json:"version"`
	PricedAt    *time.Time              `json:"pricedAt,omitempty"`
}

// Sheet rebuilds the order's persisted calculation.
func (o Order) Sheet() *Sheet {
	return FromCalculation(o.Calculation, o.Currency)
}

// Repository loads orders.
type Repository interface {
	Order(ctx context.Context, id string) (Order, error)
}

// Input asks for an order price. When Order is set it is priced as given,
// otherwise the order is loaded by OrderID.
type Input struct {
	OrderID string
	Order   *Order
}

// PositionSheet pairs a position with its product sheet.
type PositionSheet struct {
	Position Position
	Sheet    *product.Sheet
}

// Context is the resolved order pricing context.
type Context struct {
	pricing.Base
	Order     Order
	Positions []PositionSheet
	Delivery  *delivery.Sheet
	Payment   *payment.Sheet
}

// ItemsTotal returns the gross total of all position sheets.
func (c Context) ItemsTotal() int64 {
	var total int64
	for _, p := range c.Positions {
		total += p.Sheet.Gross()
	}
	return total
}

func (c Context) Facts() map[string]any {
	productIDs := make([]any, 0, len(c.Positions))
	for _, p := range c.Positions {
		productIDs = append(productIDs, p.Position.ProductID)
	}
	return map[string]any{
		"entity":        Taxonomy.Entity,
		"orderId":       c.Order.ID,
		"country":       c.Country,
		"currency":      c.CurrencyCode,
		"itemsTotal":    c.ItemsTotal(),
		"positionCount": len(c.Positions),
		"productIds":    productIDs,
	}
}

// Director prices orders.
type Director = pricing.Director[Input, Context]

// Config wires an order Director.
type Config struct {
	Orders          Repository
	Discounts       pricing.DiscountResolver
	DefaultCurrency string
	DefaultCountry  string
	Logger          *zerolog.Logger
}

func NewDirector(cfg Config) *Director {
	return pricing.NewDirector(pricing.DirectorConfig[Input, Context]{
		Taxonomy:  Taxonomy,
		Build:     ContextBuilder(cfg.Orders, cfg.DefaultCurrency, cfg.DefaultCountry),
		Discounts: cfg.Discounts,
		Logger:    cfg.Logger,
	})
}

// ContextBuilder resolves the order behind an Input and rebuilds the sheets
// of its positions, delivery and payment from their persisted calculations.
func ContextBuilder(repo Repository, defaultCurrency, defaultCountry string) pricing.ContextBuilder[Input, Context] {
	return func(ctx context.Context, in Input) (Context, error) {
		var o Order
		switch {
		case in.Order != nil:
			o = *in.Order
		case strings.TrimSpace(in.OrderID) == "":
			return Context{}, ErrOrderRequired
		case repo == nil:
			return Context{}, pricing.NewError(pricing.CodeIncompleteConfiguration, Taxonomy.Entity, errors.New("no order repository"))
		default:
			loaded, err := repo.Order(ctx, in.OrderID)
			if err != nil {
				return Context{}, fmt.Errorf("load order %s: %w", in.OrderID, err)
			}
			o = loaded
		}

		currency := firstNonEmpty(o.Currency, defaultCurrency)
		c := Context{
			Base: pricing.Base{
				CurrencyCode:   currency,
				Country:        firstNonEmpty(o.Country, defaultCountry),
				OrderDiscounts: o.Discounts,
			},
			Order: o,
		}
		for _, p := range o.Positions {
			sheet := product.FromCalculation(p.Calculation, currency, p.Quantity)
			if err := checkCurrency(sheet.Sheet, "position "+p.ID); err != nil {
				return Context{}, err
			}
			c.Positions = append(c.Positions, PositionSheet{Position: p, Sheet: sheet})
		}
		if o.Delivery != nil {
			c.Delivery = delivery.FromCalculation(o.Delivery.Calculation, currency)
			if err := checkCurrency(c.Delivery.Sheet, "delivery"); err != nil {
				return Context{}, err
			}
		}
		if o.Payment != nil {
			c.Payment = payment.FromCalculation(o.Payment.Calculation, currency)
			if err := checkCurrency(c.Payment.Sheet, "payment"); err != nil {
				return Context{}, err
			}
		}
		return c, nil
	}
}

// Calculate runs d for in and wraps the result as an order sheet.
func Calculate(ctx context.Context, d *Director, in Input) (*Sheet, error) {
	sheet, err := d.Calculate(ctx, in)
	if err != nil {
		return nil, err
	}
	return &Sheet{Sheet: sheet}, nil
}

func checkCurrency(s *pricing.Sheet, what string) error {
	if s.Len() > 0 && !s.IsValid() {
		return fmt.Errorf("%w: %s calculation is not in %s", pricing.ErrCurrencyMismatch, what, s.Currency())
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
