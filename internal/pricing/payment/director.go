package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// ErrProviderRequired is returned when an input names no payment provider.
var ErrProviderRequired = errors.New("payment: provider id required")

// Provider is a configured payment provider. Its fee is Fee plus Rate of the
// order's items total.
type Provider struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Name       string          `json:"name"`
	Fee        int64           `json:"fee"`
	Rate       decimal.Decimal `json:"rate"`
	Currency   string          `json:"currency"`
	IsTaxable  bool            `json:"isTaxable"`
	IsNetPrice bool            `json:"isNetPrice"`
	TaxClass   string          `json:"taxClass"`
}

// ProviderRepository loads payment providers.
type ProviderRepository interface {
	PaymentProvider(ctx context.Context, id string) (Provider, error)
}

// Input is the thin call-time request for a payment price.
type Input struct {
	ProviderID string
	OrderID    string
	Currency   string
	Country    string
	ItemsTotal int64
	Discounts  []pricing.OrderDiscount
}

// Context is the resolved payment pricing context.
type Context struct {
	pricing.Base
	Provider   Provider
	OrderID    string
	ItemsTotal int64
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
	}
}

// Director prices payments.
type Director = pricing.Director[Input, Context]

// Config wires a payment Director.
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
			return Context{}, pricing.NewError(pricing.CodeIncompleteConfiguration, Taxonomy.Entity, errors.New("no payment provider repository"))
		}
		p, err := repo.PaymentProvider(ctx, id)
		if err != nil {
			return Context{}, fmt.Errorf("load payment provider %s: %w", id, err)
		}
		currency := firstNonEmpty(in.Currency, defaultCurrency, p.Currency)
		if p.Currency != "" && p.Currency != currency {
			return Context{}, fmt.Errorf("%w: payment provider %s charges in %s, not %s", pricing.ErrCurrencyMismatch, id, p.Currency, currency)
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
		}, nil
	}
}

// Calculate runs d for in and wraps the result as a payment sheet.
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
