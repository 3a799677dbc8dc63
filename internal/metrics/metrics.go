// Package metrics exposes the engine's Prometheus metrics on a private
// registry. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "energybudget"

// Metrics holds every collector the service records to.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	recalculationsTotal   *prometheus.CounterVec
	recalculationDuration *prometheus.HistogramVec

	capacityConflicts *prometheus.CounterVec
	integrityWarnings prometheus.Counter
	upstreamRequests  *prometheus.CounterVec
}

// New creates and registers all metrics, plus the Go runtime and process
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route and status code",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by method and route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		recalculationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recalculations_total",
				Help:      "Realization recalculations by trigger (single or batch) and outcome",
			},
			[]string{"kind", "outcome"},
		),
		recalculationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "recalculation_duration_seconds",
				Help:      "Time spent recomputing one budget's realization",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
			},
			[]string{"kind"},
		),

		capacityConflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "capacity_conflicts_total",
				Help:      "Budget writes rejected because a parent's capacity would be exceeded",
			},
			[]string{"reason"},
		),
		integrityWarnings: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "capacity_integrity_warnings_total",
				Help:      "Capacity reads that found children allocating more than their parent",
			},
		),
		upstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Calls to external analytics services by service and outcome",
			},
			[]string{"service", "outcome"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestsTotal,
		m.requestDuration,
		m.recalculationsTotal,
		m.recalculationDuration,
		m.capacityConflicts,
		m.integrityWarnings,
		m.upstreamRequests,
	)
	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// RecordRequest records one served HTTP request.
func (m *Metrics) RecordRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RecordRecalculation records one budget recalculation.
func (m *Metrics) RecordRecalculation(kind string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.recalculationsTotal.WithLabelValues(kind, outcome).Inc()
	m.recalculationDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// RecordConflict counts a write rejected for capacity reasons.
func (m *Metrics) RecordConflict(reason string) {
	if m == nil {
		return
	}
	m.capacityConflicts.WithLabelValues(reason).Inc()
}

// RecordIntegrityWarning counts a negative available capacity.
func (m *Metrics) RecordIntegrityWarning() {
	if m == nil {
		return
	}
	m.integrityWarnings.Inc()
}

// RecordUpstream counts a call to an external service.
func (m *Metrics) RecordUpstream(service string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.upstreamRequests.WithLabelValues(service, outcome).Inc()
}
