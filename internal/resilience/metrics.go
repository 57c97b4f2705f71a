package resilience

import "github.com/prometheus/client_golang/prometheus"

// Breaker collectors, labelled by target (gateway id or "kafka").
var (
	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "toko",
		Subsystem: "breaker",
		Name:      "state",
		Help:      "Breaker state: 0 closed, 1 open, 2 half-open.",
	}, []string{"target"})
	BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "toko",
		Subsystem: "breaker",
		Name:      "transitions_total",
		Help:      "Breaker state changes.",
	}, []string{"target", "from", "to"})
	BreakerOpenedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "toko",
		Subsystem: "breaker",
		Name:      "opened_total",
		Help:      "Times a breaker opened.",
	}, []string{"target"})
)

// Collectors returns the breaker collectors for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{BreakerState, BreakerTransitions, BreakerOpenedTotal}
}
