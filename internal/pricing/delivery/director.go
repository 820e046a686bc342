package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// ErrProviderRequired is returned when an input names no delivery provider.
var ErrProviderRequired = errors.New("delivery: provider id required")

// Provider types.
const (
	TypeShipping = "SHIPPING"
	TypePickup   = "PICKUP"
)

// Provider is a configured delivery provider.
type Provider struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Name       string `json:"name"`
	Fee        int64  `json:"fee"`
	PerItemFee int64  `json:"perItemFee"`
	Currency   string `json:"currency"`
	IsTaxable  bool   `json:"isTaxable"`
	IsNetPrice bool   `json:"isNetPrice"`
	TaxClass   string `json:"taxClass"`
}

// ProviderRepository loads delivery providers.
type ProviderRepository interface {
	DeliveryProvider(ctx context.Context, id string) (Provider, error)
}

// Input is the thin call-time request for a delivery price.
type Input struct {
	ProviderID string
	OrderID    string
	Currency   string
	Country    string
	ItemsTotal int64
	ItemCount  int
	Discounts  []pricing.OrderDiscount
}

// Context is the resolved delivery pricing context.
type Context struct {
	pricing.Base
	Provider   Provider
	OrderID    string
	ItemsTotal int64
	ItemCount  int
}

func (c Context) Facts() map[string]any {
	return map[string]any{
		"entity":       Taxonomy.Entity,
		"providerId":   c.Provider.ID,
		"providerType": c.Provider.Type,
		"country":      c.Country,
		"currency":     c.CurrencyCode,
		"orderId":      c.OrderID,
		"itemsTotal":   c.ItemsTotal,
		"itemCount":    c.ItemCount,
	}
}

// Director prices deliveries.
type Director = pricing.Director[Input, Context]

// Config wires a delivery Director.
type Config struct {
	Providers       ProviderRepository
	Discounts       pricing.DiscountResolver
	DefaultCurrency string
	DefaultCountry  string
	Logger          *zerolog.Logger
}

func NewDirector(cfg Config) *Director {
	return pricing.NewDirector(pricing.DirectorConfig[Input, Context]{
		Taxonomy:  Taxonomy,
		Build:     ContextBuilder(cfg.Providers, cfg.DefaultCurrency, cfg.DefaultCountry),
		Discounts: cfg.Discounts,
		Logger:    cfg.Logger,
	})
}

// ContextBuilder resolves the provider behind an Input.
func ContextBuilder(repo ProviderRepository, defaultCurrency, defaultCountry string) pricing.ContextBuilder[Input, Context] {
	return func(ctx context.Context, in Input) (Context, error) {
		id := strings.TrimSpace(in.ProviderID)
		if id == "" {
			return Context{}, ErrProviderRequired
		}
		if repo == nil {
			return Context{}, pricing.NewError(pricing.CodeIncompleteConfiguration, Taxonomy.Entity, errors.New("no delivery provider repository"))
		}
		p, err := repo.DeliveryProvider(ctx, id)
		if err != nil {
			return Context{}, fmt.Errorf("load delivery provider %s: %w", id, err)
		}
		currency := firstNonEmpty(in.Currency, defaultCurrency, p.Currency)
		if p.Currency != "" && p.Currency != currency {
			return Context{}, fmt.Errorf("%w: delivery provider %s charges in %s, not %s", pricing.ErrCurrencyMismatch, id, p.Currency, currency)
		}
		return Context{
			Base: pricing.Base{
				CurrencyCode:   currency,
				Country:        firstNonEmpty(in.Country, defaultCountry),
				OrderDiscounts: in.Discounts,
			},
			Provider:   p,
			OrderID:    in.OrderID,
			ItemsTotal: in.ItemsTotal,
			ItemCount:  in.ItemCount,
		}, nil
	}
}

// Calculate runs d for in and wraps the result as a delivery sheet.
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
