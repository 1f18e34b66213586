// Package metrics exposes Prometheus collectors for the portal.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"teamhub/internal/util"
)

// Metrics holds the portal collectors on a private registry, so several
// servers can live in one process (tests) without duplicate registration.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	TopicDrawsTotal      *prometheus.CounterVec
	DocumentsSubmitted   *prometheus.CounterVec
	DocumentUploadBytes  prometheus.Histogram
	DocumentReviewsTotal *prometheus.CounterVec
	SecurityAlertsTotal  *prometheus.CounterVec
}

// New creates the collectors under namespace.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		TopicDrawsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "topic_draws_total",
				Help:      "Topic draw attempts by outcome",
			},
			[]string{"outcome"},
		),
		DocumentsSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_submitted_total",
				Help:      "Document submissions by outcome",
			},
			[]string{"outcome"},
		),
		DocumentUploadBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "document_upload_bytes",
				Help:      "Size of accepted document uploads",
				Buckets:   prometheus.ExponentialBuckets(16*1024, 4, 7),
			},
		),
		DocumentReviewsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "document_reviews_total",
				Help:      "Document review decisions",
			},
			[]string{"decision"},
		),
		SecurityAlertsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "security_alerts_total",
				Help:      "Security alert thresholds reached",
			},
			[]string{"event", "outcome"},
		),
	}
}

// Middleware records request count, latency and in-flight requests.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		rec := &util.StatusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		path := NormalizePath(r.URL.Path)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.Code())).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordTopicDraw counts a draw attempt. outcome is "drawn" or an error code.
func (m *Metrics) RecordTopicDraw(outcome string) {
	m.TopicDrawsTotal.WithLabelValues(outcome).Inc()
}

// RecordSubmission counts a document submission; size is observed on success.
func (m *Metrics) RecordSubmission(outcome string, size int64) {
	m.DocumentsSubmitted.WithLabelValues(outcome).Inc()
	if outcome == "accepted" {
		m.DocumentUploadBytes.Observe(float64(size))
	}
}

// RecordReview counts a review decision.
func (m *Metrics) RecordReview(decision string) {
	m.DocumentReviewsTotal.WithLabelValues(decision).Inc()
}

// RecordAlert counts a triggered security alert.
func (m *Metrics) RecordAlert(event, outcome string) {
	m.SecurityAlertsTotal.WithLabelValues(event, outcome).Inc()
}

// NormalizePath replaces numeric path segments with {id} to keep label
// cardinality bounded, e.g. /api/teams/12/logo -> /api/teams/{id}/logo.
func NormalizePath(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if _, err := strconv.ParseInt(part, 10, 64); err == nil {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}
