package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/toko-pricing/internal/common"
	"github.com/noah-isme/toko-pricing/internal/discount"
	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/pricing/delivery"
	"github.com/noah-isme/toko-pricing/internal/pricing/payment"
	"github.com/noah-isme/toko-pricing/internal/pricing/product"
)

// ErrNotFound is returned when the catalog has no entry for an id.
var ErrNotFound = errors.New("catalog: not found")

// File is the YAML layout of a pricing catalog.
type File struct {
	Products          []ProductEntry  `yaml:"products"`
	DeliveryProviders []DeliveryEntry `yaml:"deliveryProviders"`
	PaymentProviders  []PaymentEntry  `yaml:"paymentProviders"`
	TaxRates          []TaxRateEntry  `yaml:"taxRates"`
	Vouchers          []discount.Rule `yaml:"vouchers"`
	Predicates        map[string]any  `yaml:"predicates"`
	FreeDelivery      struct {
		Threshold int64  `yaml:"threshold"`
		Currency  string `yaml:"currency"`
	} `yaml:"freeDelivery"`
}

type ProductEntry struct {
	ID       string `yaml:"id"`
	SKU      string `yaml:"sku"`
	Name     string `yaml:"name"`
	Price    int64  `yaml:"price"`
	Currency string `yaml:"currency"`
	Taxable  bool   `yaml:"taxable"`
	NetPrice bool   `yaml:"netPrice"`
	TaxClass string `yaml:"taxClass"`
}

type DeliveryEntry struct {
	ID         string `yaml:"id"`
	Type       string `yaml:"type"`
	Name       string `yaml:"name"`
	Fee        int64  `yaml:"fee"`
	PerItemFee int64  `yaml:"perItemFee"`
	Currency   string `yaml:"currency"`
	Taxable    bool   `yaml:"taxable"`
	NetPrice   bool   `yaml:"netPrice"`
	TaxClass   string `yaml:"taxClass"`
}

type PaymentEntry struct {
	ID       string `yaml:"id"`
	Type     string `yaml:"type"`
	Name     string `yaml:"name"`
	Fee      int64  `yaml:"fee"`
	Rate     string `yaml:"rate"`
	Currency string `yaml:"currency"`
	Taxable  bool   `yaml:"taxable"`
	NetPrice bool   `yaml:"netPrice"`
	TaxClass string `yaml:"taxClass"`
}

// TaxRateEntry is the rate for a tax class in a country. An empty Entity
// applies to every entity kind.
type TaxRateEntry struct {
	Country  string `yaml:"country"`
	TaxClass string `yaml:"taxClass"`
	Entity   string `yaml:"entity"`
	Rate     string `yaml:"rate"`
}

type taxKey struct {
	entity, country, taxClass string
}

// Catalog is a static, read-only pricing catalog. It serves products,
// providers, tax rates and voucher rules to the pricing directors.
type Catalog struct {
	products   map[string]product.Product
	deliveries map[string]delivery.Provider
	payments   map[string]payment.Provider
	rates      map[taxKey]decimal.Decimal
	vouchers   map[string]discount.Rule
	predicates map[string]json.RawMessage
	file       File
}

// Load reads and parses the catalog file at path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a catalog from YAML.
func Parse(data []byte) (*Catalog, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}
	return New(f)
}

// New indexes f. Duplicate ids and malformed rates are rejected.
func New(f File) (*Catalog, error) {
	c := &Catalog{
		products:   make(map[string]product.Product, len(f.Products)),
		deliveries: make(map[string]delivery.Provider, len(f.DeliveryProviders)),
		payments:   make(map[string]payment.Provider, len(f.PaymentProviders)),
		rates:      make(map[taxKey]decimal.Decimal, len(f.TaxRates)),
		vouchers:   make(map[string]discount.Rule, len(f.Vouchers)),
		predicates: make(map[string]json.RawMessage, len(f.Predicates)),
		file:       f,
	}
	for _, p := range f.Products {
		if _, dup := c.products[p.ID]; dup || p.ID == "" {
			return nil, fmt.Errorf("catalog: invalid or duplicate product %q", p.ID)
		}
		c.products[p.ID] = product.Product{
			ID:         p.ID,
			SKU:        p.SKU,
			Name:       p.Name,
			Price:      p.Price,
			Currency:   strings.ToUpper(p.Currency),
			IsTaxable:  p.Taxable,
			IsNetPrice: p.NetPrice,
			TaxClass:   p.TaxClass,
		}
	}
	for _, d := range f.DeliveryProviders {
		if _, dup := c.deliveries[d.ID]; dup || d.ID == "" {
			return nil, fmt.Errorf("catalog: invalid or duplicate delivery provider %q", d.ID)
		}
		typ := strings.ToUpper(d.Type)
		if typ == "" {
			typ = delivery.TypeShipping
		}
		c.deliveries[d.ID] = delivery.Provider{
			ID:         d.ID,
			Type:       typ,
			Name:       d.Name,
			Fee:        d.Fee,
			PerItemFee: d.PerItemFee,
			Currency:   strings.ToUpper(d.Currency),
			IsTaxable:  d.Taxable,
			IsNetPrice: d.NetPrice,
			TaxClass:   d.TaxClass,
		}
	}
	for _, p := range f.PaymentProviders {
		if _, dup := c.payments[p.ID]; dup || p.ID == "" {
			return nil, fmt.Errorf("catalog: invalid or duplicate payment provider %q", p.ID)
		}
		rate := decimal.Zero
		if p.Rate != "" {
			r, err := decimal.NewFromString(p.Rate)
			if err != nil {
				return nil, fmt.Errorf("catalog: payment provider %q rate: %w", p.ID, err)
			}
			rate = r
		}
		c.payments[p.ID] = payment.Provider{
			ID:         p.ID,
			Type:       strings.ToUpper(p.Type),
			Name:       p.Name,
			Fee:        p.Fee,
			Rate:       rate,
			Currency:   strings.ToUpper(p.Currency),
			IsTaxable:  p.Taxable,
			IsNetPrice: p.NetPrice,
			TaxClass:   p.TaxClass,
		}
	}
	for _, t := range f.TaxRates {
		rate, err := decimal.NewFromString(t.Rate)
		if err != nil {
			return nil, fmt.Errorf("catalog: tax rate %s/%s: %w", t.Country, t.TaxClass, err)
		}
		if rate.IsNegative() {
			return nil, fmt.Errorf("catalog: tax rate %s/%s is negative", t.Country, t.TaxClass)
		}
		c.rates[taxKey{entity: t.Entity, country: strings.ToUpper(t.Country), taxClass: t.TaxClass}] = rate
	}
	for _, v := range f.Vouchers {
		code := strings.ToUpper(strings.TrimSpace(v.Code))
		if _, dup := c.vouchers[code]; dup || code == "" {
			return nil, fmt.Errorf("catalog: invalid or duplicate voucher %q", v.Code)
		}
		v.Code = code
		c.vouchers[code] = v
	}
	for id, rule := range f.Predicates {
		raw, err := json.Marshal(rule)
		if err != nil {
			return nil, fmt.Errorf("catalog: predicate %q: %w", id, err)
		}
		c.predicates[id] = raw
	}
	return c, nil
}

func notFound(kind, id string) error {
	err := fmt.Errorf("%w: %s %q", ErrNotFound, kind, id)
	return common.NewAppError("NOT_FOUND", err.Error(), http.StatusNotFound, err)
}

// Product implements product.Repository.
func (c *Catalog) Product(_ context.Context, id string) (product.Product, error) {
	p, ok := c.products[id]
	if !ok {
		return product.Product{}, notFound("product", id)
	}
	return p, nil
}

// DeliveryProvider implements delivery.ProviderRepository.
func (c *Catalog) DeliveryProvider(_ context.Context, id string) (delivery.Provider, error) {
	p, ok := c.deliveries[id]
	if !ok {
		return delivery.Provider{}, notFound("delivery provider", id)
	}
	return p, nil
}

// PaymentProvider implements payment.ProviderRepository.
func (c *Catalog) PaymentProvider(_ context.Context, id string) (payment.Provider, error) {
	p, ok := c.payments[id]
	if !ok {
		return payment.Provider{}, notFound("payment provider", id)
	}
	return p, nil
}

// RateFor implements pricing.TaxRateProvider. A rate for the query's entity
// kind wins over a rate shared by all kinds.
func (c *Catalog) RateFor(_ context.Context, q pricing.TaxQuery) (decimal.Decimal, error) {
	country := strings.ToUpper(q.Country)
	if rate, ok := c.rates[taxKey{entity: q.Entity, country: country, taxClass: q.TaxClass}]; ok {
		return rate, nil
	}
	if rate, ok := c.rates[taxKey{country: country, taxClass: q.TaxClass}]; ok {
		return rate, nil
	}
	return decimal.Zero, pricing.NewError(pricing.CodeIncompleteConfiguration, "tax-rates",
		fmt.Errorf("no rate for %s tax class %q in %q", q.Entity, q.TaxClass, country))
}

// VoucherRule implements discount.RuleSource. Codes are case-insensitive.
func (c *Catalog) VoucherRule(_ context.Context, code string) (discount.Rule, error) {
	rule, ok := c.vouchers[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return discount.Rule{}, discount.ErrVoucherNotFound
	}
	return rule, nil
}

// RegisterPredicates adds the catalog's predicate rules to p.
func (c *Catalog) RegisterPredicates(p *discount.Predicates) error {
	ids := make([]string, 0, len(c.predicates))
	for id := range c.predicates {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if err := p.Register(id, c.predicates[id]); err != nil {
			return err
		}
	}
	return nil
}

// FreeDelivery returns the configured free delivery threshold and currency.
func (c *Catalog) FreeDelivery() (int64, string) {
	return c.file.FreeDelivery.Threshold, strings.ToUpper(c.file.FreeDelivery.Currency)
}

// Products returns every product ordered by id.
func (c *Catalog) Products() []product.Product {
	return sortedValues(c.products)
}

// DeliveryProviders returns every delivery provider ordered by id.
func (c *Catalog) DeliveryProviders() []delivery.Provider {
	return sortedValues(c.deliveries)
}

// PaymentProviders returns every payment provider ordered by id.
func (c *Catalog) PaymentProviders() []payment.Provider {
	return sortedValues(c.payments)
}

func sortedValues[V any](m map[string]V) []V {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]V, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}
