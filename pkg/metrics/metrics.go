// Package metrics defines the Prometheus collectors used by the assistant and
// exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the assistant.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	AsksTotal            *prometheus.CounterVec
	AskLatency           *prometheus.HistogramVec
	AnswerConfidence     prometheus.Histogram
	RefreshDocuments     *prometheus.CounterVec
	RefreshDuration      prometheus.Histogram
	IndexDocuments       prometheus.Gauge
	ExternalFailures     *prometheus.CounterVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec
	BotMessagesTotal     *prometheus.CounterVec
}

// New creates metrics registered on the default Prometheus registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics registered on reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration panics.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		AsksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "knowledge_asks_total",
				Help: "Questions answered by outcome (answered, refused, apology, cached, error).",
			},
			[]string{"outcome"},
		),
		AskLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "knowledge_ask_latency_seconds",
				Help:    "End-to-end ask latency in seconds.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
			},
			[]string{"cache_status"},
		),
		AnswerConfidence: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "knowledge_answer_confidence",
				Help:    "Distribution of answer confidence scores.",
				Buckets: []float64{0, 0.3, 0.5, 0.7, 0.9},
			},
		),
		RefreshDocuments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "knowledge_refresh_documents_total",
				Help: "Documents seen by refresh, by status (indexed, failed).",
			},
			[]string{"status"},
		),
		RefreshDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "knowledge_refresh_duration_seconds",
				Help:    "Duration of full knowledge refreshes.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		IndexDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "knowledge_index_documents",
				Help: "Documents in the live similarity index.",
			},
		),
		ExternalFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "external_call_failures_total",
				Help: "Failed calls to external services by service and operation.",
			},
			[]string{"service", "operation"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "answer_cache_hits_total",
				Help: "Total number of answer cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "answer_cache_misses_total",
				Help: "Total number of answer cache misses.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		BotMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bot_messages_total",
				Help: "Chat bot messages handled by kind (start, help, update, question, limited).",
			},
			[]string{"kind"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.AsksTotal,
		m.AskLatency,
		m.AnswerConfidence,
		m.RefreshDocuments,
		m.RefreshDuration,
		m.IndexDocuments,
		m.ExternalFailures,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CircuitBreakerState,
		m.BotMessagesTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
