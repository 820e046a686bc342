package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Breaker collectors are labelled by target, one per guarded pricing adapter.
var (
	// BreakerState is 0 closed, 1 open, 2 half-open.
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pricing",
		Subsystem: "breaker",
		Name:      "state",
		Help:      "Breaker state per guarded adapter (0 closed, 1 open, 2 half-open).",
	}, []string{"target"})
	BreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pricing",
		Subsystem: "breaker",
		Name:      "transitions_total",
		Help:      "Breaker state transitions per guarded adapter.",
	}, []string{"target", "from", "to"})
	BreakerOpenedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pricing",
		Subsystem: "breaker",
		Name:      "opened_total",
		Help:      "Times a guarded adapter's breaker opened.",
	}, []string{"target"})
)
