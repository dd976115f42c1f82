// Package telemetry exposes Prometheus metrics for the intake layer.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edge_http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)

	leadOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_lead_outcomes_total",
			Help: "Total lead submissions processed, labeled by pipeline outcome.",
		},
		[]string{"outcome"},
	)

	admissionDeniedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edge_admission_denied_total",
			Help: "Total write attempts denied by the admission controller.",
		},
	)

	localeRedirectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_locale_redirects_total",
			Help: "Total locale redirects issued, labeled by resolved locale.",
		},
		[]string{"locale"},
	)

	notifierFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_notifier_failures_total",
			Help: "Total notifier delivery failures, labeled by provider.",
		},
		[]string{"provider"},
	)

	relayDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_relay_dropped_total",
			Help: "Total telemetry events dropped by the relay, labeled by reason.",
		},
		[]string{"reason"},
	)
)

// ObserveHTTPRequest records one completed HTTP request.
func ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveLeadOutcome counts one pipeline submission outcome.
func ObserveLeadOutcome(outcome string) {
	leadOutcomesTotal.WithLabelValues(outcome).Inc()
}

// ObserveAdmissionDenied counts one rate-limited write attempt.
func ObserveAdmissionDenied() {
	admissionDeniedTotal.Inc()
}

// ObserveLocaleRedirect counts one locale redirect.
func ObserveLocaleRedirect(locale string) {
	localeRedirectsTotal.WithLabelValues(locale).Inc()
}

// ObserveNotifierFailure counts one failed notifier delivery.
func ObserveNotifierFailure(provider string) {
	notifierFailuresTotal.WithLabelValues(provider).Inc()
}

// ObserveRelayDropped counts one telemetry event the relay did not deliver.
func ObserveRelayDropped(reason string) {
	relayDroppedTotal.WithLabelValues(reason).Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
