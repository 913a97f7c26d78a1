package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the prometheus registry of the bridge
type Metrics struct {
	reg *prometheus.Registry

	Conversions  *prometheus.CounterVec
	StageLatency *prometheus.HistogramVec
	Retries      *prometheus.CounterVec
	Fallbacks    prometheus.Counter
	Requests     *prometheus.CounterVec
}

// NewMetrics creates a registry with every bridge collector registered
func NewMetrics() *Metrics {
	r := prometheus.NewRegistry()

	conversions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "facturx_conversions_total",
		Help: "Conversions by path (backend, local, degraded) and outcome.",
	}, []string{"path", "outcome"})
	stageLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "facturx_stage_duration_seconds",
		Help:    "Duration of each conversion stage.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "facturx_retries_total",
		Help: "Retried collaborator calls by operation.",
	}, []string{"operation"})
	fallbacks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "facturx_local_fallback_failures_total",
		Help: "Local assemblies that failed and returned the original PDF.",
	})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "facturx_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})

	r.MustRegister(conversions, stageLatency, retries, fallbacks, requests)
	return &Metrics{
		reg:          r,
		Conversions:  conversions,
		StageLatency: stageLatency,
		Retries:      retries,
		Fallbacks:    fallbacks,
		Requests:     requests,
	}
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// ObserveStage records how long a conversion stage took
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageLatency.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveConversion counts a finished conversion
func (m *Metrics) ObserveConversion(path, outcome string) {
	if m == nil {
		return
	}
	m.Conversions.WithLabelValues(path, outcome).Inc()
}

// ObserveRetry counts one retried attempt of operation
func (m *Metrics) ObserveRetry(operation string) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(operation).Inc()
}

// ObserveFallbackFailure counts a degraded local conversion
func (m *Metrics) ObserveFallbackFailure() {
	if m == nil {
		return
	}
	m.Fallbacks.Inc()
}

// ObserveRequest counts an HTTP request
func (m *Metrics) ObserveRequest(route string, status int) {
	if m == nil {
		return
	}
	if status == 0 {
		status = http.StatusOK
	}
	m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}
