// Package metrics provides Prometheus metrics for the attendance service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager holds the Prometheus collectors for the service.
type Manager struct {
	namespace string
	registry  *prometheus.Registry

	rosterFetches       *prometheus.CounterVec
	rosterFetchDuration prometheus.Histogram
	rosterMembers       prometheus.Gauge

	attendanceUpserts prometheus.Counter
	visitsCreated     prometheus.Counter
	idempotentReplays prometheus.Counter

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewManager creates a manager backed by its own registry, so the default
// Go runtime collectors stay out of the scrape output.
func NewManager() *Manager {
	m := &Manager{
		namespace: "asistencia",
		registry:  prometheus.NewRegistry(),
	}

	auto := promauto.With(m.registry)

	m.rosterFetches = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      "roster_fetches_total",
			Help:      "Roster CSV fetch attempts by outcome.",
		},
		[]string{"outcome"},
	)

	m.rosterFetchDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "roster_fetch_duration_seconds",
		Help:      "Duration of roster CSV fetch and parse.",
		Buckets:   prometheus.DefBuckets,
	})

	m.rosterMembers = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "roster_members",
		Help:      "Members in the last successfully loaded roster.",
	})

	m.attendanceUpserts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "attendance_upserts_total",
		Help:      "Attendance rows written, counting replaced rows.",
	})

	m.visitsCreated = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "visits_created_total",
		Help:      "One-off visit records created.",
	})

	m.idempotentReplays = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "idempotent_replays_total",
		Help:      "Requests answered from the idempotency store.",
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		},
		[]string{"route", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by route, method and status code.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method", "status_code"},
	)

	return m
}

func (m *Manager) RecordRosterFetch(outcome string, seconds float64) {
	m.rosterFetches.WithLabelValues(outcome).Inc()
	m.rosterFetchDuration.Observe(seconds)
}

func (m *Manager) SetRosterMembers(n int) { m.rosterMembers.Set(float64(n)) }

func (m *Manager) RecordAttendanceUpserts(n int) { m.attendanceUpserts.Add(float64(n)) }

func (m *Manager) RecordVisitCreated() { m.visitsCreated.Inc() }

func (m *Manager) RecordIdempotentReplay() { m.idempotentReplays.Inc() }

func (m *Manager) RecordHTTPRequest(route, method, statusCode string, seconds float64) {
	m.httpRequests.WithLabelValues(route, method, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(route, method, statusCode).Observe(seconds)
}

// Handler returns the scrape endpoint handler for this manager's registry.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the backing registry, mainly for tests.
func (m *Manager) Registry() *prometheus.Registry { return m.registry }
