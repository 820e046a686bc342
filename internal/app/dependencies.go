// Package app assembles the pricing components shared by the api and worker
// commands.
package app

import (
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pricing/internal/catalog"
	"github.com/noah-isme/toko-pricing/internal/config"
	"github.com/noah-isme/toko-pricing/internal/discount"
	"github.com/noah-isme/toko-pricing/internal/events"
	"github.com/noah-isme/toko-pricing/internal/lock"
	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/pricing/delivery"
	"github.com/noah-isme/toko-pricing/internal/pricing/order"
	"github.com/noah-isme/toko-pricing/internal/pricing/payment"
	"github.com/noah-isme/toko-pricing/internal/pricing/product"
	"github.com/noah-isme/toko-pricing/internal/reprice"
	"github.com/noah-isme/toko-pricing/internal/resilience"
	"github.com/noah-isme/toko-pricing/internal/store"
)

// Dependencies enumerates the clients and settings pricing is built from.
type Dependencies struct {
	Redis   *redis.Client
	Catalog *catalog.Catalog
	Config  *config.Config
	Logger  zerolog.Logger
	// Store overrides the Redis order store.
	Store store.Store
	// Notifiers receive every emitted event after it is stored.
	Notifiers []events.Notifier
	Now       func() time.Time
}

// Pricing is the assembled pricing stack.
type Pricing struct {
	Service    *reprice.Service
	Discounts  *discount.Director
	Predicates *discount.Predicates
	Stream     events.RedisStream
}

// Redis key prefixes.
const (
	StorePrefix       = "pricing"
	LockPrefix        = "pricing:lock"
	ReservationPrefix = "pricing:discount"
	EventStream       = "pricing:events"
)

// NewPricing wires directors, discounts, storage, locking and events around
// the catalog. Tax adapters run behind their own circuit breaker.
func NewPricing(deps Dependencies) (*Pricing, error) {
	if deps.Redis == nil {
		return nil, errors.New("app: redis client is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("app: catalog is required")
	}
	cfg := deps.Config
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	cat := deps.Catalog
	logger := deps.Logger

	predicates := discount.NewPredicates()
	if err := cat.RegisterPredicates(predicates); err != nil {
		return nil, fmt.Errorf("app: register predicates: %w", err)
	}

	discounts := discount.NewDirector(logger)
	discounts.Now = deps.Now
	discounts.Register(discount.NewVoucher(cat, discount.Reservations{R: deps.Redis, Prefix: ReservationPrefix}))
	if threshold, currency := cat.FreeDelivery(); threshold > 0 {
		discounts.Register(discount.NewFreeDelivery(threshold, currency))
	}

	orders := deps.Store
	if orders == nil {
		orders = store.NewRedis(deps.Redis, StorePrefix)
	}

	breaker := resilience.Settings{
		MinRequests:  cfg.Breaker.MinRequests,
		FailureRatio: cfg.Breaker.FailureRatio,
		OpenFor:      cfg.Breaker.OpenFor,
		Logger:       logger,
	}
	currency, country := cfg.Pricing.Currency, cfg.Pricing.Country

	products := product.NewDirector(product.Config{
		Products:        cat,
		Discounts:       discounts,
		DefaultCurrency: currency,
		DefaultCountry:  country,
		Logger:          &logger,
	})
	product.RegisterDefaults(products, cat, predicates)
	products.Register(pricing.Guard[product.Context](product.NewTax(cat), breaker))

	deliveries := delivery.NewDirector(delivery.Config{
		Providers:       cat,
		Discounts:       discounts,
		DefaultCurrency: currency,
		DefaultCountry:  country,
		Logger:          &logger,
	})
	delivery.RegisterDefaults(deliveries, cat, predicates)
	deliveries.Register(pricing.Guard[delivery.Context](delivery.NewTax(cat), breaker))

	payments := payment.NewDirector(payment.Config{
		Providers:       cat,
		Discounts:       discounts,
		DefaultCurrency: currency,
		DefaultCountry:  country,
		Logger:          &logger,
	})
	payment.RegisterDefaults(payments, cat, predicates)
	payments.Register(pricing.Guard[payment.Context](payment.NewTax(cat), breaker))

	ordersDirector := order.NewDirector(order.Config{
		Orders:          orders,
		Discounts:       discounts,
		DefaultCurrency: currency,
		DefaultCountry:  country,
		Logger:          &logger,
	})
	order.RegisterDefaults(ordersDirector, predicates)

	stream := events.RedisStream{R: deps.Redis, Stream: EventStream, MaxLen: 10000}
	notifiers := deps.Notifiers
	if notifiers == nil {
		notifiers = []events.Notifier{events.LogNotifier{Logger: logger}}
		if cfg.Events.WebhookURL != "" {
			hook, err := events.NewWebhookNotifier(cfg.Events.WebhookURL, cfg.Events.WebhookSecret, cfg.Events.WebhookTimeout, cfg.Events.WebhookTopics...)
			if err != nil {
				return nil, fmt.Errorf("event webhook: %w", err)
			}
			notifiers = append(notifiers, hook)
		}
	}

	svc := &reprice.Service{
		Store: orders,
		Directors: reprice.Directors{
			Products:   products,
			Deliveries: deliveries,
			Payments:   payments,
			Orders:     ordersDirector,
		},
		Discounts: discounts,
		Locker:    lock.Locker{R: deps.Redis, RetryBackoff: cfg.Lock.RetryBackoff, Prefix: LockPrefix},
		LockTTL:   cfg.Lock.TTL,
		Events:    &events.Bus{Store: stream, Notifiers: notifiers, Now: deps.Now},
		Timeout:   cfg.Pricing.RunTimeout,
		Logger:    logger.With().Str("component", "reprice").Logger(),
		Now:       deps.Now,
	}
	return &Pricing{Service: svc, Discounts: discounts, Predicates: predicates, Stream: stream}, nil
}
