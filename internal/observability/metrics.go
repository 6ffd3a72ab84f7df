// Package observability exposes Prometheus metrics for the dispatcher.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects per-provider request counters and latencies.
type Metrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	fallbacks *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// New registers the metric set on the given registerer (nil uses the
// default registry).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chispart_requests_total",
			Help: "Dispatched requests by provider and operation.",
		}, []string{"provider", "operation"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chispart_errors_total",
			Help: "Failed requests by provider and error kind.",
		}, []string{"provider", "kind"}),
		fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chispart_fallbacks_total",
			Help: "One-shot fallback retries by original provider.",
		}, []string{"provider"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chispart_request_duration_seconds",
			Help:    "Upstream call latency by provider.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"provider"}),
	}
}

// ObserveRequest records one dispatched request.
func (m *Metrics) ObserveRequest(provider, operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(provider, operation).Inc()
	m.duration.WithLabelValues(provider).Observe(d.Seconds())
}

// ObserveError records one failed request.
func (m *Metrics) ObserveError(provider, kind string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(provider, kind).Inc()
}

// ObserveFallback records a fallback retry triggered by provider's failure.
func (m *Metrics) ObserveFallback(provider string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(provider).Inc()
}
