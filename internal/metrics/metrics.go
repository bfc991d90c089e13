// Package metrics provides Prometheus metrics for the backend.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the backend.
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	TransitionsTotal  *prometheus.CounterVec
	LedgerWritesTotal *prometheus.CounterVec
	ProviderErrors    *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_requests_total",
				Help: "Total HTTP requests by route and status.",
			},
			[]string{"route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backend_request_duration_seconds",
				Help:    "Request processing duration by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_status_transitions_total",
				Help: "Status transitions by entity and target status.",
			},
			[]string{"entity", "to"},
		),
		LedgerWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_ledger_writes_total",
				Help: "Credit ledger entries by operation type.",
			},
			[]string{"operation"},
		),
		ProviderErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_provider_errors_total",
				Help: "External provider call failures by provider.",
			},
			[]string{"provider"},
		),
		registry: reg,
	}

	reg.MustRegister(m.RequestsTotal)
	reg.MustRegister(m.RequestDuration)
	reg.MustRegister(m.TransitionsTotal)
	reg.MustRegister(m.LedgerWritesTotal)
	reg.MustRegister(m.ProviderErrors)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest increments the request counter.
func (m *Metrics) RecordRequest(route, status string) {
	m.RequestsTotal.WithLabelValues(route, status).Inc()
}

// RecordTransition increments the status-transition counter.
func (m *Metrics) RecordTransition(entity, to string) {
	m.TransitionsTotal.WithLabelValues(entity, to).Inc()
}

// RecordLedgerWrite increments the ledger-write counter.
func (m *Metrics) RecordLedgerWrite(operation string) {
	m.LedgerWritesTotal.WithLabelValues(operation).Inc()
}

// RecordProviderError increments the provider-error counter.
func (m *Metrics) RecordProviderError(provider string) {
	m.ProviderErrors.WithLabelValues(provider).Inc()
}
