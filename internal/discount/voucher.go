package discount

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// VoucherKey is the discount key of code-triggered vouchers.
const VoucherKey = "voucher"

var (
	// ErrVoucherNotFound is returned by a RuleSource that has no voucher for a code.
	ErrVoucherNotFound = errors.New("voucher not found")
	// ErrNotEligible is returned when the voucher cannot be applied to the order.
	ErrNotEligible = errors.New("voucher not eligible")
	// ErrVoucherInactive is returned when attempting to use a voucher outside of its active window.
	ErrVoucherInactive = errors.New("voucher not active")
	// ErrVoucherExpired is returned when the voucher has already expired.
	ErrVoucherExpired = errors.New("voucher expired")
	// ErrMinimumSpendUnmet indicates the order total did not meet the voucher requirement.
	ErrMinimumSpendUnmet = errors.New("voucher minimum spend not met")
)

// Rule captures the constraints and effect of a voucher code.
type Rule struct {
	Code       string     `yaml:"code" json:"code"`
	Kind       string     `yaml:"kind" json:"kind"`
	Value      int64      `yaml:"value" json:"value,omitempty"`
	PercentBps int32      `yaml:"percentBps" json:"percentBps,omitempty"`
	Currency   string     `yaml:"currency" json:"currency,omitempty"`
	MinSpend   int64      `yaml:"minSpend" json:"minSpend,omitempty"`
	UsageLimit int        `yaml:"usageLimit" json:"usageLimit,omitempty"`
	ValidFrom  *time.Time `yaml:"validFrom" json:"validFrom,omitempty"`
	ValidTo    *time.Time `yaml:"validTo" json:"validTo,omitempty"`
	ProductIDs []string   `yaml:"productIds" json:"productIds,omitempty"`
	// Scope lists the entity kinds the voucher discounts. Percent vouchers
	// default to products, fixed vouchers to the order.
	Scope     []string `yaml:"scope" json:"scope,omitempty"`
	Predicate string   `yaml:"predicate" json:"predicate,omitempty"`
}

// Validate ensures the rule can be applied at the provided instant and order total.
func (r Rule) Validate(now time.Time, itemsTotal int64) error {
	if itemsTotal < r.MinSpend {
		return ErrMinimumSpendUnmet
	}
	if r.ValidFrom != nil && now.Before(*r.ValidFrom) {
		return ErrVoucherInactive
	}
	if r.ValidTo != nil && now.After(*r.ValidTo) {
		return ErrVoucherExpired
	}
	return nil
}

// Matches reports whether a scoped rule covers at least one of productIDs.
func (r Rule) Matches(productIDs []string) bool {
	if len(r.ProductIDs) == 0 {
		return true
	}
	for _, id := range productIDs {
		if slices.Contains(r.ProductIDs, id) {
			return true
		}
	}
	return false
}

// Scopes returns the entity kinds the voucher discounts.
func (r Rule) Scopes() []string {
	if len(r.Scope) > 0 {
		return r.Scope
	}
	if r.isPercent() {
		return []string{"product"}
	}
	return []string{"order"}
}

// Configuration returns the pricing effect of the rule, or nil when the rule
// has no effect.
func (r Rule) Configuration() pricing.DiscountConfiguration {
	var cfg pricing.DiscountConfiguration
	if r.isPercent() {
		if r.PercentBps <= 0 {
			return nil
		}
		cfg = pricing.Percentage{Rate: decimal.New(int64(r.PercentBps), -4)}
	} else {
		if r.Value <= 0 {
			return nil
		}
		cfg = pricing.Fixed{Amount: r.Value, Currency: r.Currency}
	}
	if r.Predicate != "" {
		cfg = pricing.Custom{PredicateID: r.Predicate, Then: cfg}
	}
	return cfg
}

func (r Rule) isPercent() bool {
	return strings.EqualFold(r.Kind, "percent")
}

// RuleSource looks up voucher rules by code.
type RuleSource interface {
	VoucherRule(ctx context.Context, code string) (Rule, error)
}

// Reserver claims and releases one-time uses of codes.
type Reserver interface {
	Reserve(ctx context.Context, discountKey, code, orderID string, limit int) error
	Release(ctx context.Context, discountKey, code, orderID string) error
}

// Voucher is the code-triggered discount adapter.
type Voucher struct {
	pricing.Identity
	Rules        RuleSource
	Reservations Reserver
}

// NewVoucher returns the voucher adapter.
func NewVoucher(rules RuleSource, reservations Reserver) *Voucher {
	return &Voucher{
		Identity:     pricing.NewIdentity(VoucherKey, "Voucher", "1", 10),
		Rules:        rules,
		Reservations: reservations,
	}
}

func (v *Voucher) IsManualAdditionAllowed(code string) bool { return strings.TrimSpace(code) != "" }
func (v *Voucher) IsManualRemovalAllowed() bool             { return true }

func (v *Voucher) IsValidForSystemTriggering(context.Context, Context) (bool, error) {
	return false, nil
}

// IsValidForCodeTriggering reports false for unknown codes and returns the
// reason when a known voucher cannot be applied to c.
func (v *Voucher) IsValidForCodeTriggering(ctx context.Context, c Context, code string) (bool, error) {
	rule, err := v.rule(ctx, code)
	if errors.Is(err, ErrVoucherNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rule.Validate(c.Now, c.ItemsTotal); err != nil {
		return false, err
	}
	if rule.Currency != "" && !strings.EqualFold(rule.Currency, c.Currency) {
		return false, ErrNotEligible
	}
	if !rule.Matches(c.ProductIDs) || rule.Configuration() == nil {
		return false, ErrNotEligible
	}
	return true, nil
}

// DiscountForPricingAdapterKey returns the rule's configuration for sheets of
// the entity kinds in its scope. Product-scoped rules only discount the
// products they list.
func (v *Voucher) DiscountForPricingAdapterKey(ctx context.Context, q pricing.DiscountQuery) (pricing.DiscountConfiguration, error) {
	rule, err := v.rule(ctx, q.Discount.Code)
	if errors.Is(err, ErrVoucherNotFound) {
		return nil, pricing.NewError(pricing.CodeIncompleteConfiguration, VoucherKey, err)
	}
	if err != nil {
		return nil, err
	}
	entity := entityOf(q)
	if !slices.Contains(rule.Scopes(), entity) {
		return nil, nil
	}
	if entity == "product" && len(rule.ProductIDs) > 0 {
		id, _ := q.Facts["productId"].(string)
		if !slices.Contains(rule.ProductIDs, id) {
			return nil, nil
		}
	}
	return rule.Configuration(), nil
}

func (v *Voucher) Reserve(ctx context.Context, c Context, code string) error {
	rule, err := v.rule(ctx, code)
	if err != nil {
		return err
	}
	if v.Reservations == nil {
		return nil
	}
	return v.Reservations.Reserve(ctx, VoucherKey, rule.Code, c.OrderID, rule.UsageLimit)
}

func (v *Voucher) Release(ctx context.Context, c Context, d pricing.OrderDiscount) error {
	if v.Reservations == nil {
		return nil
	}
	return v.Reservations.Release(ctx, VoucherKey, d.Code, c.OrderID)
}

func (v *Voucher) rule(ctx context.Context, code string) (Rule, error) {
	if v.Rules == nil {
		return Rule{}, pricing.NewError(pricing.CodeIncompleteConfiguration, VoucherKey, errors.New("no voucher rules configured"))
	}
	rule, err := v.Rules.VoucherRule(ctx, strings.TrimSpace(code))
	if err != nil {
		return Rule{}, err
	}
	if rule.Code == "" {
		rule.Code = strings.TrimSpace(code)
	}
	return rule, nil
}
