package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PricingRunsTotal counts director runs per entity kind and outcome.
	PricingRunsTotal *prometheus.CounterVec
	// PricingAdapterDuration records adapter calculate latency in milliseconds.
	PricingAdapterDuration *prometheus.HistogramVec
	// PricingAdapterFailures counts adapter failures by error code.
	PricingAdapterFailures *prometheus.CounterVec
	// RecalculationsTotal counts order recalculations by trigger and outcome.
	RecalculationsTotal *prometheus.CounterVec
	// DiscountReservationsTotal counts one-time discount reservation outcomes.
	DiscountReservationsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics builds the pricing collectors once per process
// and registers them on reg (the default registerer when nil).
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PricingRunsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_runs_total",
			Help:      "Count of pricing director runs by entity and result.",
		}, []string{"entity", "result"}))
		PricingAdapterDuration = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pricing_adapter_duration_ms",
			Help:      "Latency of pricing adapter calculations in milliseconds.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 25, 50, 100, 250, 1000},
		}, []string{"entity", "adapter"}))
		PricingAdapterFailures = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_adapter_failures_total",
			Help:      "Count of pricing adapter failures by error code.",
		}, []string{"entity", "adapter", "code"}))
		RecalculationsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_recalculations_total",
			Help:      "Count of order recalculations by trigger and result.",
		}, []string{"trigger", "result"}))
		DiscountReservationsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_reservations_total",
			Help:      "Count of discount reservation attempts by discount key and result.",
		}, []string{"discount_key", "result"}))
	})
}
