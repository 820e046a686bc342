package product

import (
	"context"
	"errors"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// Keys of the default product adapters.
const (
	KeyCatalogPrice = "product-catalog-price"
	KeyDiscount     = "product-discount"
	KeyTax          = "product-tax"
)

// CatalogPrice prices the quantity at the catalog unit price.
type CatalogPrice struct {
	pricing.Identity
}

func NewCatalogPrice() CatalogPrice {
	return CatalogPrice{Identity: pricing.NewIdentity(KeyCatalogPrice, "Catalog price", "1.0.0", 0)}
}

func (CatalogPrice) IsActivatedFor(Context) bool { return true }

func (a CatalogPrice) Calculate(_ context.Context, c Context, _ *pricing.Sheet, _ []pricing.Discount) ([]pricing.Row, error) {
	return []pricing.Row{ItemRow(ItemInput{
		Amount:     c.Product.Price * int64(c.Quantity()),
		IsTaxable:  c.Product.IsTaxable,
		IsNetPrice: c.Product.IsNetPrice,
		Meta:       pricing.Meta{"productId": c.Product.ID, "sku": c.Product.SKU},
	})}, nil
}

// Discount realises resolved order discounts against the item price.
type Discount struct {
	pricing.Identity
	Predicates pricing.PredicateEvaluator
}

func NewDiscount(predicates pricing.PredicateEvaluator) Discount {
	return Discount{Identity: pricing.NewIdentity(KeyDiscount, "Product discounts", "1.0.0", 10), Predicates: predicates}
}

func (Discount) IsActivatedFor(c Context) bool { return len(c.Discounts()) > 0 }

func (a Discount) Calculate(ctx context.Context, c Context, sheet *pricing.Sheet, discounts []pricing.Discount) ([]pricing.Row, error) {
	return pricing.DiscountRows(ctx, sheet, CategoryItem, discounts, a.Predicates, c.Facts())
}

// Tax derives tax rows for taxable item and discount rows.
type Tax struct {
	pricing.Identity
	Rates pricing.TaxRateProvider
}

func NewTax(rates pricing.TaxRateProvider) Tax {
	return Tax{Identity: pricing.NewIdentity(KeyTax, "Product tax", "1.0.0", 20), Rates: rates}
}

func (Tax) IsActivatedFor(c Context) bool { return c.Product.IsTaxable }

func (a Tax) ConfigurationError() error {
	if a.Rates == nil {
		return pricing.NewError(pricing.CodeIncompleteConfiguration, a.Key(), errors.New("no tax rate provider"))
	}
	return nil
}

func (a Tax) Calculate(ctx context.Context, c Context, sheet *pricing.Sheet, _ []pricing.Discount) ([]pricing.Row, error) {
	rate, err := a.Rates.RateFor(ctx, pricing.TaxQuery{Entity: Taxonomy.Entity, Country: c.Country, TaxClass: c.Product.TaxClass})
	if err != nil {
		return nil, err
	}
	taxable := sheet.FilterBy(pricing.Filter{IsTaxable: pricing.Bool(true)})
	return pricing.TaxRows(taxable, CategoryTax, rate, pricing.Meta{"taxClass": c.Product.TaxClass}), nil
}

// RegisterDefaults registers the catalog price, discount and tax adapters.
func RegisterDefaults(d *Director, rates pricing.TaxRateProvider, predicates pricing.PredicateEvaluator) {
	d.Register(NewCatalogPrice())
	d.Register(NewDiscount(predicates))
	d.Register(NewTax(rates))
}
