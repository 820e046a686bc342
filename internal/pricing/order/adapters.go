package order

import (
	"context"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// Keys of the default order adapters.
const (
	KeyItems    = "order-items"
	KeyDelivery = "order-delivery"
	KeyPayment  = "order-payment"
	KeyDiscount = "order-discount"
)

// rollup accumulates entity sheets into one net amount, its untagged tax,
// and per-discount net and tax amounts in first-seen order.
type rollup struct {
	net       int64
	tax       int64
	order     []string
	discounts map[string]*[2]int64
}

func (r *rollup) add(s *pricing.Sheet) {
	t := s.Taxonomy()
	for _, row := range s.Raw() {
		switch row.Category {
		case t.Tax:
			if row.DiscountID == "" {
				r.tax += row.Amount
				continue
			}
			r.discount(row.DiscountID)[1] += row.Amount
		case t.Discount:
			r.discount(row.DiscountID)[0] += row.Amount
		default:
			r.net += row.Amount
		}
	}
}

func (r *rollup) discount(id string) *[2]int64 {
	if r.discounts == nil {
		r.discounts = map[string]*[2]int64{}
	}
	d, ok := r.discounts[id]
	if !ok {
		d = &[2]int64{}
		r.discounts[id] = d
		r.order = append(r.order, id)
	}
	return d
}

func (r *rollup) rows(category pricing.Category, meta pricing.Meta) []pricing.Row {
	rows := AggregateRows(category, AggregateInput{Amount: r.net, TaxAmount: r.tax, Meta: meta})
	for _, id := range r.order {
		d := r.discounts[id]
		if d[0] == 0 && d[1] == 0 {
			continue
		}
		rows = append(rows, DiscountRows(DiscountInput{
			Amount:       d[0],
			TaxAmount:    d[1],
			DiscountID:   id,
			BaseCategory: category,
		})...)
	}
	return rows
}

// ItemsRollup rolls every position's product sheet into ITEMS rows.
type ItemsRollup struct {
	pricing.Identity
}

func NewItemsRollup() ItemsRollup {
	return ItemsRollup{Identity: pricing.NewIdentity(KeyItems, "Order items", "1.0.0", 0)}
}

func (ItemsRollup) IsActivatedFor(c Context) bool { return len(c.Positions) > 0 }

func (ItemsRollup) Calculate(_ context.Context, c Context, _ *pricing.Sheet, _ []pricing.Discount) ([]pricing.Row, error) {
	var r rollup
	for _, p := range c.Positions {
		r.add(p.Sheet.Sheet)
	}
	return r.rows(CategoryItems, nil), nil
}

// DeliveryRollup rolls the delivery sheet into DELIVERY rows.
type DeliveryRollup struct {
	pricing.Identity
}

func NewDeliveryRollup() DeliveryRollup {
	return DeliveryRollup{Identity: pricing.NewIdentity(KeyDelivery, "Order delivery", "1.0.0", 10)}
}

func (DeliveryRollup) IsActivatedFor(c Context) bool { return c.Delivery != nil && c.Delivery.Len() > 0 }

func (DeliveryRollup) Calculate(_ context.Context, c Context, _ *pricing.Sheet, _ []pricing.Discount) ([]pricing.Row, error) {
	var r rollup
	r.add(c.Delivery.Sheet)
	return r.rows(CategoryDelivery, pricing.Meta{"providerId": c.Order.Delivery.ProviderID}), nil
}

// PaymentRollup rolls the payment sheet into PAYMENT rows.
type PaymentRollup struct {
	pricing.Identity
}

func NewPaymentRollup() PaymentRollup {
	return PaymentRollup{Identity: pricing.NewIdentity(KeyPayment, "Order payment", "1.0.0", 20)}
}

func (PaymentRollup) IsActivatedFor(c Context) bool { return c.Payment != nil && c.Payment.Len() > 0 }

func (PaymentRollup) Calculate(_ context.Context, c Context, _ *pricing.Sheet, _ []pricing.Discount) ([]pricing.Row, error) {
	var r rollup
	r.add(c.Payment.Sheet)
	return r.rows(CategoryPayment, pricing.Meta{"providerId": c.Order.Payment.ProviderID}), nil
}

// Discount applies order-level discounts to the gross total accumulated so
// far. Each reduction is split into a net part and a tax part in proportion
// to the sheet's tax share.
type Discount struct {
	pricing.Identity
	Predicates pricing.PredicateEvaluator
}

func NewDiscount(predicates pricing.PredicateEvaluator) Discount {
	return Discount{Identity: pricing.NewIdentity(KeyDiscount, "Order discounts", "1.0.0", 30), Predicates: predicates}
}

func (Discount) IsActivatedFor(c Context) bool { return len(c.Discounts()) > 0 }

func (a Discount) Calculate(ctx context.Context, c Context, sheet *pricing.Sheet, discounts []pricing.Discount) ([]pricing.Row, error) {
	gross := sheet.Gross()
	tax := sheet.TaxSum(pricing.Filter{})
	facts := c.Facts()

	var rows []pricing.Row
	for _, d := range discounts {
		facts["baseAmount"] = gross
		facts["discountKey"] = d.DiscountKey
		amount, err := pricing.Reduction(ctx, d.Configuration, gross, sheet.Currency(), a.Predicates, facts)
		if err != nil {
			return nil, err
		}
		if amount == 0 {
			continue
		}
		taxShare := pricing.Share(amount, tax, gross)
		rows = append(rows, DiscountRows(DiscountInput{
			Amount:     amount - taxShare,
			TaxAmount:  taxShare,
			DiscountID: d.DiscountID,
			Meta:       pricing.Meta{"discountKey": d.DiscountKey},
		})...)
		gross -= amount
		tax -= taxShare
	}
	return rows, nil
}

// RegisterDefaults registers the aggregation and order discount adapters.
func RegisterDefaults(d *Director, predicates pricing.PredicateEvaluator) {
	d.Register(NewItemsRollup())
	d.Register(NewDeliveryRollup())
	d.Register(NewPaymentRollup())
	d.Register(NewDiscount(predicates))
}
