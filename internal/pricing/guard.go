package pricing

import (
	"context"

	"github.com/noah-isme/toko-pricing/internal/resilience"
)

// Guarded wraps an adapter whose Calculate depends on a remote collaborator
// with a circuit breaker. An open breaker fails the run immediately.
type Guarded[C any] struct {
	Adapter[C]
	breaker *resilience.Breaker
}

// Guard decorates a with a breaker of its own, labelled "pricing:<key>".
func Guard[C any](a Adapter[C], s resilience.Settings) *Guarded[C] {
	return &Guarded[C]{Adapter: a, breaker: resilience.NewBreaker("pricing:"+a.Key(), s)}
}

// Breaker exposes the breaker for health and debugging.
func (g *Guarded[C]) Breaker() *resilience.Breaker { return g.breaker }

// Calculate runs the wrapped adapter through the breaker. Configuration
// errors reach the caller but are reported to the breaker as successes: the
// collaborator answered, the settings were wrong.
func (g *Guarded[C]) Calculate(ctx context.Context, c C, sheet *Sheet, discounts []Discount) ([]Row, error) {
	var (
		rows      []Row
		configErr error
	)
	err := g.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		rows, err = g.Adapter.Calculate(ctx, c, sheet, discounts)
		if isConfigurationCode(CodeOf(err)) {
			configErr = err
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if configErr != nil {
		return nil, configErr
	}
	return rows, nil
}

func isConfigurationCode(code string) bool {
	switch code {
	case CodeIncompleteConfiguration, CodeAdapterNotFound, CodeNotImplemented:
		return true
	}
	return false
}

// ConfigurationError forwards to the wrapped adapter.
func (g *Guarded[C]) ConfigurationError() error {
	return configurationError(g.Adapter)
}
