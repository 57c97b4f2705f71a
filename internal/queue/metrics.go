package queue

import "github.com/prometheus/client_golang/prometheus"

// Queue collectors. They are live without registration; Collectors exposes
// them to a registry.
var (
	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "toko",
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Ready tasks per kind.",
	}, []string{"kind"})
	QueueProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "toko",
		Subsystem: "queue",
		Name:      "processed_total",
		Help:      "Tasks handled per kind and outcome (success, retry, dlq).",
	}, []string{"kind", "status"})
	QueueDLQSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "toko",
		Subsystem: "queue",
		Name:      "dlq_size",
		Help:      "Dead-lettered tasks per kind.",
	}, []string{"kind"})
)

// Collectors returns the queue collectors for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{QueueDepth, QueueProcessedTotal, QueueDLQSize}
}
