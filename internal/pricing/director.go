package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/toko-pricing/internal/obs"
)

// Resolved is the contract of a fully resolved pricing context.
type Resolved interface {
	Currency() string
	Quantity() int
	Discounts() []OrderDiscount
}

// Base carries the resolved values every entity context shares. Entity
// contexts embed it to satisfy Resolved.
type Base struct {
	CurrencyCode   string
	Units          int
	Country        string
	OrderDiscounts []OrderDiscount
}

func (b Base) Currency() string           { return b.CurrencyCode }
func (b Base) Quantity() int              { return b.Units }
func (b Base) Discounts() []OrderDiscount { return b.OrderDiscounts }

// ContextBuilder turns a thin call-time input into a resolved context.
type ContextBuilder[In any, C Resolved] func(ctx context.Context, in In) (C, error)

// DirectorConfig wires a Director.
type DirectorConfig[In any, C Resolved] struct {
	Taxonomy  Taxonomy
	Build     ContextBuilder[In, C]
	Discounts DiscountResolver
	Logger    *zerolog.Logger
}

// Director owns the adapters of one entity kind and drives pricing runs.
type Director[In any, C Resolved] struct {
	*Registry[C]
	chain *chain[C]
	build ContextBuilder[In, C]
}

// NewDirector returns a Director with an empty registry.
func NewDirector[In any, C Resolved](cfg DirectorConfig[In, C]) *Director[In, C] {
	logger := cfg.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	registry := NewRegistry[C]()
	return &Director[In, C]{
		Registry: registry,
		chain: &chain[C]{
			registry:  registry,
			taxonomy:  cfg.Taxonomy,
			discounts: cfg.Discounts,
			logger:    logger.With().Str("entity", cfg.Taxonomy.Entity).Logger(),
		},
		build: cfg.Build,
	}
}

// Taxonomy returns the categories of the director's entity kind.
func (d *Director[In, C]) Taxonomy() Taxonomy {
	return d.chain.taxonomy
}

// BuildContext resolves in into a pricing context.
func (d *Director[In, C]) BuildContext(ctx context.Context, in In) (C, error) {
	if d.build == nil {
		var zero C
		return zero, NewError(CodeIncompleteConfiguration, d.chain.taxonomy.Entity, errors.New("no context builder"))
	}
	return d.build(ctx, in)
}

// ConfigurationError reports every registered adapter that is misconfigured.
func (d *Director[In, C]) ConfigurationError() error {
	var errs []error
	for _, a := range d.Adapters(nil) {
		if err := configurationError(a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Actions resolves the context for in, using override instead of the
// director's builder when given, and prepares a run.
func (d *Director[In, C]) Actions(ctx context.Context, in In, override ContextBuilder[In, C]) (*Run[C], error) {
	build := d.BuildContext
	if override != nil {
		build = override
	}
	c, err := build(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("pricing: build %s context: %w", d.chain.taxonomy.Entity, err)
	}
	return &Run[C]{chain: d.chain, context: c}, nil
}

// Calculate resolves in and runs every activated adapter.
func (d *Director[In, C]) Calculate(ctx context.Context, in In) (*Sheet, error) {
	run, err := d.Actions(ctx, in, nil)
	if err != nil {
		return nil, err
	}
	return run.Calculate(ctx)
}

// Run is a prepared calculation over one resolved context.
type Run[C Resolved] struct {
	chain   *chain[C]
	context C
	sheet   *Sheet
}

// Calculate executes the adapter chain. On failure no sheet is returned and
// the result of an earlier successful Calculate is kept.
func (r *Run[C]) Calculate(ctx context.Context) (*Sheet, error) {
	sheet, err := r.chain.run(ctx, r.context)
	if err != nil {
		return nil, err
	}
	r.sheet = sheet
	return sheet, nil
}

// CalculationSheet returns the last successful result, or an empty sheet.
func (r *Run[C]) CalculationSheet() *Sheet {
	if r.sheet == nil {
		return NewSheet(r.chain.taxonomy, r.context.Currency(), r.context.Quantity())
	}
	return r.sheet
}

// Calculation returns the rows of CalculationSheet.
func (r *Run[C]) Calculation() []Row {
	return r.CalculationSheet().Raw()
}

// Context returns the resolved context.
func (r *Run[C]) Context() C {
	return r.context
}

type chain[C Resolved] struct {
	registry  *Registry[C]
	taxonomy  Taxonomy
	discounts DiscountResolver
	logger    zerolog.Logger
}

func (ch *chain[C]) run(ctx context.Context, c C) (_ *Sheet, err error) {
	entity := ch.taxonomy.Entity
	ctx, span := otel.Tracer("pricing.Director").Start(ctx, "Director.Calculate")
	span.SetAttributes(attribute.String("pricing.entity", entity), attribute.String("pricing.currency", c.Currency()))
	defer func() {
		result := "success"
		if err != nil {
			result = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if obs.PricingRunsTotal != nil {
			obs.PricingRunsTotal.WithLabelValues(entity, result).Inc()
		}
		span.End()
	}()

	sheet := NewSheet(ch.taxonomy, c.Currency(), c.Quantity())
	adapters := ch.registry.Adapters(func(a Adapter[C]) bool { return a.IsActivatedFor(c) })
	for _, a := range adapters {
		if cfgErr := configurationError(a); cfgErr != nil {
			return nil, cfgErr
		}
	}

	for _, a := range adapters {
		discounts, err := ch.resolveDiscounts(ctx, c, a.Key(), sheet)
		if err != nil {
			return nil, err
		}
		rows, err := ch.invoke(ctx, a, c, sheet, discounts)
		if err != nil {
			ch.logger.Warn().Err(err).Str("adapter", a.Key()).Msg("pricing adapter failed")
			if obs.PricingAdapterFailures != nil {
				obs.PricingAdapterFailures.WithLabelValues(entity, a.Key(), CodeOf(err)).Inc()
			}
			return nil, err
		}
		sheet = sheet.Append(rows...)
	}
	return sheet, nil
}

func (ch *chain[C]) invoke(ctx context.Context, a Adapter[C], c C, sheet *Sheet, discounts []Discount) ([]Row, error) {
	ctx, span := otel.Tracer("pricing.Director").Start(ctx, "Adapter.Calculate")
	span.SetAttributes(attribute.String("pricing.adapter", a.Key()), attribute.Int("pricing.discounts", len(discounts)))
	defer span.End()

	start := time.Now()
	rows, err := NewActions(a, c, sheet, discounts).Calculate(ctx)
	elapsed := time.Since(start)
	if obs.PricingAdapterDuration != nil {
		obs.PricingAdapterDuration.WithLabelValues(ch.taxonomy.Entity, a.Key()).Observe(obs.DurationMillis(elapsed))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, asCalculationError(a.Key(), err)
	}
	for _, row := range rows {
		if row.Currency != "" && row.Currency != sheet.Currency() {
			err := fmt.Errorf("%w: row in %s on %s sheet", ErrCurrencyMismatch, row.Currency, sheet.Currency())
			return nil, asCalculationError(a.Key(), err)
		}
	}
	ch.logger.Debug().
		Str("adapter", a.Key()).
		Int("rows", len(rows)).
		Int64("duration_ms", elapsed.Milliseconds()).
		Msg("pricing adapter calculated")
	return rows, nil
}

func (ch *chain[C]) resolveDiscounts(ctx context.Context, c C, adapterKey string, sheet *Sheet) ([]Discount, error) {
	active := c.Discounts()
	if len(active) == 0 || ch.discounts == nil {
		return nil, nil
	}
	facts := FactsOf(c)
	out := make([]Discount, 0, len(active))
	for _, d := range active {
		cfg, err := ch.discounts.DiscountForPricingAdapterKey(ctx, DiscountQuery{
			Discount:          d,
			PricingAdapterKey: adapterKey,
			Sheet:             sheet,
			Facts:             facts,
		})
		if err != nil {
			return nil, err
		}
		if cfg == nil {
			continue
		}
		out = append(out, Discount{DiscountID: d.ID, DiscountKey: d.DiscountKey, Configuration: cfg})
	}
	return out, nil
}

// FactsOf returns the facts exposed by c, or an empty map.
func FactsOf(c any) map[string]any {
	if src, ok := c.(FactSource); ok {
		if facts := src.Facts(); facts != nil {
			return facts
		}
	}
	return map[string]any{}
}

func configurationError(a any) error {
	if c, ok := a.(Configurable); ok {
		return c.ConfigurationError()
	}
	return nil
}
