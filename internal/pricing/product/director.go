package product

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// ErrProductRequired is returned when an input names no product.
var ErrProductRequired = errors.New("product: product id required")

// Product is the catalog view the product adapters price from.
type Product struct {
	ID         string `json:"id"`
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	Price      int64  `json:"price"`
	Currency   string `json:"currency"`
	IsTaxable  bool   `json:"isTaxable"`
	IsNetPrice bool   `json:"isNetPrice"`
	TaxClass   string `json:"taxClass"`
}

// Repository loads products for pricing.
type Repository interface {
	Product(ctx context.Context, id string) (Product, error)
}

// Input is the thin call-time request for a product price.
type Input struct {
	ProductID  string                  `json:"productId" validate:"required"`
	Quantity   int                     `json:"quantity" validate:"gte=0"`
	Currency   string                  `json:"currency,omitempty"`
	Country    string                  `json:"country,omitempty"`
	OrderID    string                  `json:"orderId,omitempty"`
	PositionID string                  `json:"positionId,omitempty"`
	Discounts  []pricing.OrderDiscount `json:"discounts,omitempty"`
}

// Context is the resolved product pricing context.
type Context struct {
	pricing.Base
	Product    Product
	OrderID    string
	PositionID string
}

// Facts exposes the context to discount adapters and predicates.
func (c Context) Facts() map[string]any {
	return map[string]any{
		"entity":     Taxonomy.Entity,
		"productId":  c.Product.ID,
		"sku":        c.Product.SKU,
		"quantity":   c.Units,
		"country":    c.Country,
		"currency":   c.CurrencyCode,
		"orderId":    c.OrderID,
		"positionId": c.PositionID,
		"unitPrice":  c.Product.Price,
	}
}

// Director prices products.
type Director = pricing.Director[Input, Context]

// Config wires a product Director.
type Config struct {
	Products        Repository
	Discounts       pricing.DiscountResolver
	DefaultCurrency string
	DefaultCountry  string
	Logger          *zerolog.Logger
}

// NewDirector returns a product Director without adapters.
func NewDirector(cfg Config) *Director {
	return pricing.NewDirector(pricing.DirectorConfig[Input, Context]{
		Taxonomy:  Taxonomy,
		Build:     ContextBuilder(cfg.Products, cfg.DefaultCurrency, cfg.DefaultCountry),
		Discounts: cfg.Discounts,
		Logger:    cfg.Logger,
	})
}

// ContextBuilder resolves the product behind an Input. The requested
// currency must match the product's price currency.
func ContextBuilder(repo Repository, defaultCurrency, defaultCountry string) pricing.ContextBuilder[Input, Context] {
	return func(ctx context.Context, in Input) (Context, error) {
		id := strings.TrimSpace(in.ProductID)
		if id == "" {
			return Context{}, ErrProductRequired
		}
		if repo == nil {
			return Context{}, pricing.NewError(pricing.CodeIncompleteConfiguration, Taxonomy.Entity, errors.New("no product repository"))
		}
		p, err := repo.Product(ctx, id)
		if err != nil {
			return Context{}, fmt.Errorf("load product %s: %w", id, err)
		}
		currency := firstNonEmpty(in.Currency, defaultCurrency, p.Currency)
		if p.Currency != "" && p.Currency != currency {
			return Context{}, fmt.Errorf("%w: product %s is priced in %s, not %s", pricing.ErrCurrencyMismatch, id, p.Currency, currency)
		}
		quantity := in.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		return Context{
			Base: pricing.Base{
				CurrencyCode:   currency,
				Units:          quantity,
				Country:        firstNonEmpty(in.Country, defaultCountry),
				OrderDiscounts: in.Discounts,
			},
			Product:    p,
			OrderID:    in.OrderID,
			PositionID: in.PositionID,
		}, nil
	}
}

// Calculate runs d for in and wraps the result as a product sheet.
func Calculate(ctx context.Context, d *Director, in Input) (*Sheet, error) {
	sheet, err := d.Calculate(ctx, in)
	if err != nil {
		return nil, err
	}
	return &Sheet{Sheet: sheet}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
