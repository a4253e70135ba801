// Package metrics exposes Prometheus collectors for the render service.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	renderJobsTotal            *prometheus.CounterVec
	renderDurationSeconds      *prometheus.HistogramVec
	renderArtifactBytesTotal   *prometheus.CounterVec
	renderRejectionsTotal      *prometheus.CounterVec
	renderActiveWorkers        prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		renderJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "render_jobs_total",
				Help: "Total number of render jobs finished, labeled by status.",
			},
			[]string{"status"},
		)

		renderDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "render_duration_seconds",
				Help:    "Histogram of renderer wall time, labeled by output format.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 300, 900},
			},
			[]string{"format"},
		)

		renderArtifactBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "render_artifact_bytes_total",
				Help: "Total bytes of rendered artifacts, labeled by output format.",
			},
			[]string{"format"},
		)

		renderRejectionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "render_rejections_total",
				Help: "Render submissions rejected before queueing, labeled by error kind.",
			},
			[]string{"kind"},
		)

		renderActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "render_active_workers",
				Help: "Number of workers currently rendering.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120, 900},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SanitizeLabel lowercases v and maps empty values to "unknown".
func SanitizeLabel(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "unknown"
	}
	return v
}

// ObserveJob increments the job counter for the given terminal status.
func ObserveJob(status string) {
	renderJobsTotal.WithLabelValues(SanitizeLabel(status)).Inc()
}

// ObserveRender records one renderer invocation.
func ObserveRender(format string, bytes int, duration time.Duration) {
	label := SanitizeLabel(format)
	renderDurationSeconds.WithLabelValues(label).Observe(duration.Seconds())
	if bytes > 0 {
		renderArtifactBytesTotal.WithLabelValues(label).Add(float64(bytes))
	}
}

// ObserveRejection counts a submission refused with the given error kind.
func ObserveRejection(kind string) {
	renderRejectionsTotal.WithLabelValues(SanitizeLabel(kind)).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	renderActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	renderActiveWorkers.Dec()
}
