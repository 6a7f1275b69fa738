// Package metrics exposes Prometheus counters for the search view.
//
// All Record methods are safe to call on a nil *Metrics, so components can
// take an optional metrics handle without guarding every call site.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vaultsearch"

// Metrics holds the search view counters.
type Metrics struct {
	registry prometheus.Gatherer

	SearchesTotal      *prometheus.CounterVec
	SearchDuration     *prometheus.HistogramVec
	StaleResultsTotal  prometheus.Counter
	EntityEventsTotal  *prometheus.CounterVec
	CoverageExtensions *prometheus.CounterVec
	DetailReloadsTotal *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec
	HTTPRequestsTotal  *prometheus.CounterVec
	RateLimitBlocks    prometheus.Counter
	SSEReconnectsTotal prometheus.Counter
	BackfillRunsTotal  *prometheus.CounterVec
}

// New registers the counters with reg. Passing a fresh prometheus.Registry
// keeps tests isolated from the default registry.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,

		SearchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "searches_total",
				Help:      "Total number of queries issued, by category and outcome",
			},
			[]string{"category", "outcome"},
		),
		SearchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_duration_seconds",
				Help:      "Query execution time in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"category"},
		),
		StaleResultsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stale_results_total",
				Help:      "Query responses discarded because a newer query was issued",
			},
		),
		EntityEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "entity_events_total",
				Help:      "Entity change events received, by type, operation and disposition",
			},
			[]string{"type", "operation", "disposition"},
		),
		CoverageExtensions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "coverage_extensions_total",
				Help:      "Index coverage extension attempts, by outcome",
			},
			[]string{"outcome"},
		),
		DetailReloadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "detail_reloads_total",
				Help:      "Detail pane reloads after update events, by outcome",
			},
			[]string{"outcome"},
		),
		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "User-visible notifications, by kind",
			},
			[]string{"kind"},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of API requests",
			},
			[]string{"method", "route", "status_code"},
		),
		RateLimitBlocks: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_blocks_total",
				Help:      "API requests rejected by the rate limiter",
			},
		),
		SSEReconnectsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sse_reconnects_total",
				Help:      "Reconnect attempts of the entity event stream client",
			},
		),
		BackfillRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backfill_runs_total",
				Help:      "Scheduled coverage backfill runs, by outcome",
			},
			[]string{"outcome"},
		),
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordSearch counts a completed query.
func (m *Metrics) RecordSearch(category string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.SearchesTotal.WithLabelValues(category, outcome(err)).Inc()
	m.SearchDuration.WithLabelValues(category).Observe(duration.Seconds())
}

// RecordStaleResult counts a discarded out-of-date query response.
func (m *Metrics) RecordStaleResult() {
	if m == nil {
		return
	}
	m.StaleResultsTotal.Inc()
}

// RecordEntityEvent counts an entity change event. disposition is one of
// "ignored", "applied", "stale" or "failed".
func (m *Metrics) RecordEntityEvent(typ, operation, disposition string) {
	if m == nil {
		return
	}
	m.EntityEventsTotal.WithLabelValues(typ, operation, disposition).Inc()
}

// RecordCoverageExtension counts an extension attempt. Declined prompts
// are recorded with outcome "declined".
func (m *Metrics) RecordCoverageExtension(outcomeLabel string) {
	if m == nil {
		return
	}
	m.CoverageExtensions.WithLabelValues(outcomeLabel).Inc()
}

// RecordDetailReload counts a detail pane reload.
func (m *Metrics) RecordDetailReload(err error) {
	if m == nil {
		return
	}
	m.DetailReloadsTotal.WithLabelValues(outcome(err)).Inc()
}

// RecordNotification counts a user-visible notification.
func (m *Metrics) RecordNotification(kind string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(kind).Inc()
}

// RecordHTTPRequest counts an API request.
func (m *Metrics) RecordHTTPRequest(method, route, statusCode string) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
}

// RecordRateLimitBlock counts a rate limited request.
func (m *Metrics) RecordRateLimitBlock() {
	if m == nil {
		return
	}
	m.RateLimitBlocks.Inc()
}

// RecordSSEReconnect counts an event stream reconnect.
func (m *Metrics) RecordSSEReconnect() {
	if m == nil {
		return
	}
	m.SSEReconnectsTotal.Inc()
}

// RecordBackfill counts a scheduled backfill run.
func (m *Metrics) RecordBackfill(err error) {
	if m == nil {
		return
	}
	m.BackfillRunsTotal.WithLabelValues(outcome(err)).Inc()
}

// HTTPHandler serves the registered metrics.
func (m *Metrics) HTTPHandler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
