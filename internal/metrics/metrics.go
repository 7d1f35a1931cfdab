package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingsEnqueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "possync",
			Name:      "bookings_enqueued_total",
			Help:      "Locally created bookings queued for push.",
		},
	)

	mutationsPushed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "possync",
			Name:      "mutations_pushed_total",
			Help:      "Outbox mutations confirmed by the booking service.",
		},
		[]string{"type"},
	)

	pushFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "possync",
			Name:      "push_failures_total",
			Help:      "Failed push attempts by error code.",
		},
		[]string{"code"},
	)

	outboxSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "possync",
			Name:      "outbox_size",
			Help:      "Mutations currently queued in the outbox.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "possync",
			Name:      "http_requests_total",
			Help:      "IPC requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(bookingsEnqueued, mutationsPushed, pushFailures, outboxSize, httpRequests)
	})
}

// IncEnqueued counts a locally created booking.
func IncEnqueued() { bookingsEnqueued.Inc() }

// IncPushed counts a confirmed push for a mutation type.
func IncPushed(mutationType string) { mutationsPushed.WithLabelValues(mutationType).Inc() }

// IncPushFailure counts a failed push attempt by error code.
func IncPushFailure(code string) { pushFailures.WithLabelValues(code).Inc() }

// SetOutboxSize records the current queue depth.
func SetOutboxSize(n int) { outboxSize.Set(float64(n)) }

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) { httpRequests.WithLabelValues(endpoint).Inc() }
