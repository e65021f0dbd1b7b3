package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "soulart"

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path", "status"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being served",
		},
	)

	// Entitlement metrics
	entitlementDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entitlement",
			Name:      "decisions_total",
			Help:      "Entitlement decisions by feature, effective tier and outcome",
		},
		[]string{"feature", "tier", "outcome"},
	)

	usageRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entitlement",
			Name:      "usage_recorded_total",
			Help:      "Metered feature uses written to the ledger",
		},
		[]string{"feature", "period"},
	)

	usagePruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entitlement",
			Name:      "usage_rows_pruned_total",
			Help:      "Stale daily usage rows removed by the janitor",
		},
	)

	// Billing metrics
	billingEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "events_total",
			Help:      "Billing webhook events by type and processing outcome",
		},
		[]string{"type", "outcome"},
	)

	tierLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "tier_lookups_total",
			Help:      "Product tier lookups by outcome",
		},
		[]string{"outcome"},
	)

	guideCompletionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "guide",
			Name:      "completion_duration_seconds",
			Help:      "Duration of guide completion requests in seconds",
			Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"status"},
	)
)

// ObserveHTTP records one finished HTTP request.
func ObserveHTTP(method, route string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, code).Inc()
	httpRequestDuration.WithLabelValues(method, route, code).Observe(duration.Seconds())
}

// InFlight adjusts the in-flight request gauge by delta.
func InFlight(delta float64) {
	httpRequestsInFlight.Add(delta)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordDecision counts an entitlement decision. Outcome is one of
// allowed, denied or demo.
func RecordDecision(feature, tier, outcome string) {
	entitlementDecisions.WithLabelValues(feature, tier, outcome).Inc()
}

// RecordUsage counts a ledger increment.
func RecordUsage(feature, period string) {
	usageRecorded.WithLabelValues(feature, period).Inc()
}

// RecordPruned counts daily usage rows removed.
func RecordPruned(n int64) {
	usagePruned.Add(float64(n))
}

// RecordBillingEvent counts a processed webhook event.
func RecordBillingEvent(eventType, outcome string) {
	billingEvents.WithLabelValues(eventType, outcome).Inc()
}

// RecordTierLookup counts a product tier lookup.
func RecordTierLookup(outcome string) {
	tierLookups.WithLabelValues(outcome).Inc()
}

// ObserveGuideCompletion records how long a completion call took.
func ObserveGuideCompletion(status string, duration time.Duration) {
	guideCompletionDuration.WithLabelValues(status).Observe(duration.Seconds())
}
