// Package reprice recalculates orders end to end: positions, delivery,
// payment and the order aggregate, persisted in one commit together with the
// ledger entries that record what changed.
package reprice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/toko-pricing/internal/discount"
	"github.com/noah-isme/toko-pricing/internal/events"
	"github.com/noah-isme/toko-pricing/internal/obs"
	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/pricing/delivery"
	"github.com/noah-isme/toko-pricing/internal/pricing/order"
	"github.com/noah-isme/toko-pricing/internal/pricing/payment"
	"github.com/noah-isme/toko-pricing/internal/pricing/product"
	"github.com/noah-isme/toko-pricing/internal/store"
)

// Recalculation triggers recorded in metrics and events.
const (
	TriggerAPI      = "api"
	TriggerQueue    = "queue"
	TriggerOrder    = "order-change"
	TriggerDiscount = "discount-change"
)

// ErrDiscountNotFound is returned when an order carries no discount with the given id.
var ErrDiscountNotFound = errors.New("reprice: discount not found on order")

// Locker serializes work on one key across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Directors bundles the entity directors a recalculation runs through.
type Directors struct {
	Products   *product.Director
	Deliveries *delivery.Director
	Payments   *payment.Director
	Orders     *order.Director
}

// Service recalculates and persists order pricing.
type Service struct {
	Store     store.Store
	Directors Directors
	Discounts *discount.Director
	Locker    Locker
	LockTTL   time.Duration
	Events    *events.Bus
	// Timeout bounds one whole recalculation including the lock wait. Zero
	// leaves the caller's context untouched.
	Timeout time.Duration
	Logger  zerolog.Logger
	Now     func() time.Time
}

var validate = validator.New()

// RecalculateOrder reprices the stored order and commits the new
// calculations. Nothing is written when any step fails.
func (s *Service) RecalculateOrder(ctx context.Context, orderID, trigger string) (order.Order, error) {
	var out order.Order
	err := s.withOrder(ctx, "RecalculateOrder", orderID, func(ctx context.Context) error {
		current, err := s.Store.Order(ctx, orderID)
		if err != nil {
			return err
		}
		out, err = s.commit(ctx, current, current)
		return err
	})
	s.finish(ctx, orderID, trigger, out, err)
	return out, err
}

// PutOrder creates or replaces the structure of an order and prices it.
// Discounts already attached to a stored order are kept.
func (s *Service) PutOrder(ctx context.Context, in order.Order) (order.Order, error) {
	if err := validate.Struct(in); err != nil {
		return order.Order{}, invalid(err)
	}
	if err := uniquePositions(in.Positions); err != nil {
		return order.Order{}, invalid(err)
	}
	var out order.Order
	err := s.withOrder(ctx, "PutOrder", in.ID, func(ctx context.Context) error {
		previous, err := s.Store.Order(ctx, in.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			previous = order.Order{ID: in.ID, Currency: in.Currency}
		case err != nil:
			return err
		}
		next := in
		next.Discounts = previous.Discounts
		next.Version = previous.Version
		next.Calculation = nil
		next.PricedAt = nil
		out, err = s.commit(ctx, previous, next)
		return err
	})
	s.finish(ctx, in.ID, TriggerOrder, out, err)
	return out, err
}

// ApplyCode attaches the discount behind code to the order and reprices it.
// The reservation is released again when the reprice cannot be committed.
func (s *Service) ApplyCode(ctx context.Context, orderID, code string) (order.Order, pricing.OrderDiscount, error) {
	if s.Discounts == nil {
		return order.Order{}, pricing.OrderDiscount{}, errors.New("reprice: discount director not configured")
	}
	var (
		out     order.Order
		applied pricing.OrderDiscount
	)
	err := s.withOrder(ctx, "ApplyCode", orderID, func(ctx context.Context) error {
		current, err := s.Store.Order(ctx, orderID)
		if err != nil {
			return err
		}
		dc, err := s.discountContext(ctx, current)
		if err != nil {
			return err
		}
		applied, err = s.Discounts.ApplyCode(ctx, dc, code)
		if err != nil {
			return err
		}
		next := current
		next.Discounts = append(append([]pricing.OrderDiscount(nil), current.Discounts...), applied)
		out, err = s.commit(ctx, current, next)
		if err != nil {
			if releaseErr := s.Discounts.Remove(context.WithoutCancel(ctx), dc, applied); releaseErr != nil {
				s.Logger.Error().Err(releaseErr).Str("order_id", orderID).Str("discount_id", applied.ID).Msg("release reservation after failed reprice")
			}
			return err
		}
		return nil
	})
	s.finish(ctx, orderID, TriggerDiscount, out, err)
	if err != nil {
		return order.Order{}, pricing.OrderDiscount{}, err
	}
	s.emit(ctx, events.TopicDiscountApplied, orderID, map[string]any{
		"orderId":     orderID,
		"discountId":  applied.ID,
		"discountKey": applied.DiscountKey,
		"code":        applied.Code,
	})
	return out, applied, nil
}

// RemoveDiscount detaches a user discount from the order and reprices it.
func (s *Service) RemoveDiscount(ctx context.Context, orderID, discountID string) (order.Order, error) {
	if s.Discounts == nil {
		return order.Order{}, errors.New("reprice: discount director not configured")
	}
	var (
		out     order.Order
		removed pricing.OrderDiscount
	)
	err := s.withOrder(ctx, "RemoveDiscount", orderID, func(ctx context.Context) error {
		current, err := s.Store.Order(ctx, orderID)
		if err != nil {
			return err
		}
		kept := make([]pricing.OrderDiscount, 0, len(current.Discounts))
		found := false
		for _, od := range current.Discounts {
			if od.ID == discountID {
				removed, found = od, true
				continue
			}
			kept = append(kept, od)
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrDiscountNotFound, discountID)
		}
		if err := s.checkRemovable(removed); err != nil {
			return err
		}
		dc, err := s.discountContext(ctx, current)
		if err != nil {
			return err
		}
		next := current
		next.Discounts = kept
		if out, err = s.commit(ctx, current, next); err != nil {
			return err
		}
		// the order no longer carries the discount, so a failed release only
		// leaks a reservation
		if err := s.Discounts.Remove(context.WithoutCancel(ctx), dc, removed); err != nil {
			s.Logger.Error().Err(err).Str("order_id", orderID).Str("discount_id", removed.ID).Msg("release discount reservation")
		}
		return nil
	})
	s.finish(ctx, orderID, TriggerDiscount, out, err)
	if err != nil {
		return order.Order{}, err
	}
	s.emit(ctx, events.TopicDiscountRemoved, orderID, map[string]any{
		"orderId":     orderID,
		"discountId":  removed.ID,
		"discountKey": removed.DiscountKey,
	})
	return out, nil
}

func (s *Service) checkRemovable(od pricing.OrderDiscount) error {
	a, err := s.Discounts.Adapter(od.DiscountKey)
	if err != nil {
		return err
	}
	if od.Trigger == pricing.TriggerSystem || !a.IsManualRemovalAllowed() {
		return discount.ErrRemovalNotAllowed
	}
	return nil
}

// SimulateProduct prices a product without touching any order.
func (s *Service) SimulateProduct(ctx context.Context, in product.Input) (*product.Sheet, error) {
	if err := validate.Struct(in); err != nil {
		return nil, invalid(err)
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	return product.Calculate(ctx, s.Directors.Products, in)
}

// Ledger returns the ledger entries recorded for an order.
func (s *Service) Ledger(ctx context.Context, orderID string) ([]store.LedgerEntry, error) {
	if _, err := s.Store.Order(ctx, orderID); err != nil {
		return nil, err
	}
	return s.Store.Ledger(ctx, orderID)
}

// commit prices next and writes it over previous. Every calculation stored on
// previous is reversed in the ledger before the new calculations are appended.
func (s *Service) commit(ctx context.Context, previous, next order.Order) (order.Order, error) {
	priced, err := s.price(ctx, next)
	if err != nil {
		return order.Order{}, err
	}
	at := s.now()
	priced.PricedAt = &at
	entries := append(resetEntries(previous, at), calculationEntries(priced, at)...)
	return s.Store.Commit(ctx, priced, previous.Version, entries)
}

// price runs every director over o and returns it with fresh calculations and
// up to date system discounts. Positions are priced first with user discounts
// only so that system discounts trigger on the items total a customer sees.
func (s *Service) price(ctx context.Context, o order.Order) (order.Order, error) {
	if s.Directors.Products == nil || s.Directors.Orders == nil {
		return order.Order{}, errors.New("reprice: directors not configured")
	}
	userDiscounts := make([]pricing.OrderDiscount, 0, len(o.Discounts))
	for _, od := range o.Discounts {
		if od.Trigger != pricing.TriggerSystem {
			userDiscounts = append(userDiscounts, od)
		}
	}

	positions, err := s.pricePositions(ctx, o, userDiscounts)
	if err != nil {
		return order.Order{}, err
	}
	discounts := userDiscounts
	if s.Discounts != nil {
		dc := s.newDiscountContext(o, positions)
		discounts, err = s.Discounts.SystemDiscounts(ctx, dc)
		if err != nil {
			return order.Order{}, err
		}
		if len(discounts) != len(userDiscounts) {
			if positions, err = s.pricePositions(ctx, o, discounts); err != nil {
				return order.Order{}, err
			}
		}
	}
	o.Positions = positions
	o.Discounts = discounts

	itemsTotal, itemCount := totals(o.Currency, positions)
	if o.Delivery != nil {
		if s.Directors.Deliveries == nil {
			return order.Order{}, errors.New("reprice: delivery director not configured")
		}
		sheet, err := delivery.Calculate(ctx, s.Directors.Deliveries, delivery.Input{
			ProviderID: o.Delivery.ProviderID,
			OrderID:    o.ID,
			Currency:   o.Currency,
			Country:    o.Country,
			ItemsTotal: itemsTotal,
			ItemCount:  itemCount,
			Discounts:  discounts,
		})
		if err != nil {
			return order.Order{}, fmt.Errorf("price delivery: %w", err)
		}
		o.Delivery = &order.Delivery{ProviderID: o.Delivery.ProviderID, Calculation: sheet.Raw()}
	}
	if o.Payment != nil {
		if s.Directors.Payments == nil {
			return order.Order{}, errors.New("reprice: payment director not configured")
		}
		sheet, err := payment.Calculate(ctx, s.Directors.Payments, payment.Input{
			ProviderID: o.Payment.ProviderID,
			OrderID:    o.ID,
			Currency:   o.Currency,
			Country:    o.Country,
			ItemsTotal: itemsTotal,
			Discounts:  discounts,
		})
		if err != nil {
			return order.Order{}, fmt.Errorf("price payment: %w", err)
		}
		o.Payment = &order.Payment{ProviderID: o.Payment.ProviderID, Calculation: sheet.Raw()}
	}

	o.Calculation = nil
	sheet, err := order.Calculate(ctx, s.Directors.Orders, order.Input{Order: &o})
	if err != nil {
		return order.Order{}, fmt.Errorf("price order: %w", err)
	}
	o.Calculation = sheet.Raw()
	return o, nil
}

func (s *Service) pricePositions(ctx context.Context, o order.Order, discounts []pricing.OrderDiscount) ([]order.Position, error) {
	out := make([]order.Position, 0, len(o.Positions))
	for _, p := range o.Positions {
		sheet, err := product.Calculate(ctx, s.Directors.Products, product.Input{
			ProductID:  p.ProductID,
			Quantity:   p.Quantity,
			Currency:   o.Currency,
			Country:    o.Country,
			OrderID:    o.ID,
			PositionID: p.ID,
			Discounts:  discounts,
		})
		if err != nil {
			return nil, fmt.Errorf("price position %s: %w", p.ID, err)
		}
		p.Calculation = sheet.Raw()
		out = append(out, p)
	}
	return out, nil
}

// discountContext describes the stored order to discount adapters, pricing
// its positions when they carry no calculation yet.
func (s *Service) discountContext(ctx context.Context, o order.Order) (discount.Context, error) {
	positions := o.Positions
	for _, p := range positions {
		if len(p.Calculation) == 0 {
			priced, err := s.pricePositions(ctx, o, o.Discounts)
			if err != nil {
				return discount.Context{}, err
			}
			positions = priced
			break
		}
	}
	return s.newDiscountContext(o, positions), nil
}

func (s *Service) newDiscountContext(o order.Order, positions []order.Position) discount.Context {
	itemsTotal, _ := totals(o.Currency, positions)
	ids := make([]string, 0, len(positions))
	for _, p := range positions {
		ids = append(ids, p.ProductID)
	}
	return discount.Context{
		OrderID:    o.ID,
		Currency:   o.Currency,
		Country:    o.Country,
		ItemsTotal: itemsTotal,
		ProductIDs: ids,
		Existing:   o.Discounts,
		Now:        s.now(),
	}
}

// withOrder runs fn under the order's lock and the service timeout.
func (s *Service) withOrder(ctx context.Context, op, orderID string, fn func(context.Context) error) (err error) {
	if s == nil || s.Store == nil {
		return errors.New("reprice: service not configured")
	}
	if orderID == "" {
		return invalid(order.ErrOrderRequired)
	}
	ctx, span := otel.Tracer("reprice.Service").Start(ctx, "Service."+op)
	span.SetAttributes(attribute.String("pricing.order_id", orderID))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	if s.Locker == nil {
		return fn(ctx)
	}
	ttl := s.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return s.Locker.WithLock(ctx, "order:"+orderID, ttl, fn)
}

func (s *Service) finish(ctx context.Context, orderID, trigger string, o order.Order, err error) {
	if trigger == "" {
		trigger = TriggerAPI
	}
	log := s.Logger.With().Str("order_id", orderID).Str("trigger", trigger).Logger()
	if err != nil {
		recordRecalculation(trigger, "error")
		log.Warn().Err(err).Str("code", pricing.CodeOf(err)).Msg("order recalculation failed")
		s.emit(ctx, events.TopicOrderFailed, orderID, map[string]any{
			"orderId": orderID,
			"trigger": trigger,
			"code":    pricing.CodeOf(err),
			"error":   err.Error(),
		})
		return
	}
	recordRecalculation(trigger, "success")
	sheet := o.Sheet()
	log.Info().Int64("version", o.Version).Int64("gross", sheet.Gross()).Msg("order recalculated")
	s.emit(ctx, events.TopicOrderRecalculated, orderID, map[string]any{
		"orderId":  orderID,
		"trigger":  trigger,
		"version":  o.Version,
		"currency": o.Currency,
		"net":      sheet.Net(),
		"gross":    sheet.Gross(),
	})
}

func (s *Service) emit(ctx context.Context, topic, orderID string, payload map[string]any) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(context.WithoutCancel(ctx), topic, orderID, payload); err != nil {
		s.Logger.Warn().Err(err).Str("topic", topic).Str("order_id", orderID).Msg("emit event")
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// totals returns the gross items total and unit count of priced positions.
func totals(currency string, positions []order.Position) (int64, int) {
	var (
		total int64
		count int
	)
	for _, p := range positions {
		total += product.FromCalculation(p.Calculation, currency, p.Quantity).Gross()
		count += p.Quantity
	}
	return total, count
}

func resetEntries(o order.Order, at time.Time) []store.LedgerEntry {
	var out []store.LedgerEntry
	for _, e := range entities(o) {
		if len(e.rows) == 0 {
			continue
		}
		prev := pricing.NewSheet(e.taxonomy, o.Currency, 0, e.rows...)
		out = append(out, store.LedgerEntry{
			Kind:     store.EntryReset,
			Entity:   e.taxonomy.Entity,
			EntityID: e.id,
			Currency: o.Currency,
			Rows:     prev.ResetCalculation(prev),
			At:       at,
		})
	}
	return out
}

func calculationEntries(o order.Order, at time.Time) []store.LedgerEntry {
	var out []store.LedgerEntry
	for _, e := range entities(o) {
		out = append(out, store.LedgerEntry{
			Kind:     store.EntryCalculation,
			Entity:   e.taxonomy.Entity,
			EntityID: e.id,
			Currency: o.Currency,
			Rows:     e.rows,
			At:       at,
		})
	}
	return out
}

type entityRows struct {
	taxonomy pricing.Taxonomy
	id       string
	rows     []pricing.Row
}

// entities lists the calculations carried by o in pricing order.
func entities(o order.Order) []entityRows {
	out := make([]entityRows, 0, len(o.Positions)+3)
	for _, p := range o.Positions {
		out = append(out, entityRows{taxonomy: product.Taxonomy, id: p.ID, rows: p.Calculation})
	}
	if o.Delivery != nil {
		out = append(out, entityRows{taxonomy: delivery.Taxonomy, id: o.Delivery.ProviderID, rows: o.Delivery.Calculation})
	}
	if o.Payment != nil {
		out = append(out, entityRows{taxonomy: payment.Taxonomy, id: o.Payment.ProviderID, rows: o.Payment.Calculation})
	}
	out = append(out, entityRows{taxonomy: order.Taxonomy, id: o.ID, rows: o.Calculation})
	return out
}

func uniquePositions(positions []order.Position) error {
	seen := make(map[string]struct{}, len(positions))
	for _, p := range positions {
		if _, ok := seen[p.ID]; ok {
			return fmt.Errorf("duplicate position id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}

func recordRecalculation(trigger, result string) {
	if obs.RecalculationsTotal != nil {
		obs.RecalculationsTotal.WithLabelValues(trigger, result).Inc()
	}
}
