package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector bundles every metric the service emits. Constructed once per
// process; tests pass their own registry.
type Collector struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	BookingsTotal  *prometheus.CounterVec
	EventsConsumed *prometheus.CounterVec
	OutboxRelayed  *prometheus.CounterVec
	StaleFailed    prometheus.Counter
}

func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hospital_booking",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path, and status code.",
		}, []string{"method", "path", "status"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hospital_booking",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "path", "status"}),

		BookingsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hospital_booking",
			Subsystem: "coordinator",
			Name:      "bookings_total",
			Help:      "Booking requests by outcome.",
		}, []string{"result"}),

		EventsConsumed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hospital_booking",
			Subsystem: "fulfillment",
			Name:      "events_consumed_total",
			Help:      "Consumed fulfillment events by operation and outcome.",
		}, []string{"operation", "result"}),

		OutboxRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hospital_booking",
			Subsystem: "outbox",
			Name:      "relayed_total",
			Help:      "Outbox entries relayed to Kafka by outcome.",
		}, []string{"result"}),

		StaleFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hospital_booking",
			Subsystem: "outbox",
			Name:      "stale_bookings_failed_total",
			Help:      "PENDING appointments marked FAILED after the pending TTL.",
		}),
	}
}
