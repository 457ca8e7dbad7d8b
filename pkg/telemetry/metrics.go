package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus instruments for the client. The CLI does not
// expose them over HTTP; programs embedding the library can mount Handler
// on their own mux, and tests read the registry directly.
type Metrics struct {
	config MetricsConfig

	apiRequests  *prometheus.CounterVec
	apiDuration  *prometheus.HistogramVec
	busyRetries  *prometheus.CounterVec
	waitDuration *prometheus.HistogramVec
	waitTimeouts *prometheus.CounterVec

	launches       *prometheus.CounterVec
	sessionsActive prometheus.Gauge
	transferBytes  *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector. When cfg.Enabled is false every
// record method is a no-op and no registry exists.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		apiRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests",
			},
			[]string{"op", "code"},
		),
		apiDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "Duration of API requests in seconds",
				Buckets:   buckets,
			},
			[]string{"op"},
		),
		busyRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "busy_retries_total",
				Help:      "Total number of retries after a busy response",
			},
			[]string{"op"},
		),
		waitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "wait_duration_seconds",
				Help:      "Duration of bounded waits in seconds",
				Buckets:   buckets,
			},
			[]string{"target"},
		),
		waitTimeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "wait_timeouts_total",
				Help:      "Total number of bounded waits that exhausted their budget",
			},
			[]string{"target"},
		),
		launches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "instances_launched_total",
				Help:      "Total number of instances launched",
			},
			[]string{"type"},
		),
		sessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Current number of live remote sessions",
			},
		),
		transferBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "file_transfer_bytes_total",
				Help:      "Total bytes moved over the file-transfer channel",
			},
			[]string{"direction"},
		),
	}

	registry.MustRegister(
		m.apiRequests,
		m.apiDuration,
		m.busyRetries,
		m.waitDuration,
		m.waitTimeouts,
		m.launches,
		m.sessionsActive,
		m.transferBytes,
	)

	return m, nil
}

// RecordAPIRequest records one API request with its status code and
// duration. A zero status code means the request never reached the service.
func (m *Metrics) RecordAPIRequest(op string, statusCode int, duration time.Duration) {
	if m.apiRequests == nil {
		return
	}
	m.apiRequests.WithLabelValues(op, strconv.Itoa(statusCode)).Inc()
	m.apiDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordBusyRetry records one retry after a busy response.
func (m *Metrics) RecordBusyRetry(op string) {
	if m.busyRetries == nil {
		return
	}
	m.busyRetries.WithLabelValues(op).Inc()
}

// ObserveWait records a completed bounded wait and whether it timed out.
func (m *Metrics) ObserveWait(target string, duration time.Duration, timedOut bool) {
	if m.waitDuration == nil {
		return
	}
	m.waitDuration.WithLabelValues(target).Observe(duration.Seconds())
	if timedOut {
		m.waitTimeouts.WithLabelValues(target).Inc()
	}
}

// RecordLaunch records a launched instance by workspace type.
func (m *Metrics) RecordLaunch(workspaceType string) {
	if m.launches == nil {
		return
	}
	m.launches.WithLabelValues(workspaceType).Inc()
}

// SessionOpened increments the live-session gauge.
func (m *Metrics) SessionOpened() {
	if m.sessionsActive == nil {
		return
	}
	m.sessionsActive.Inc()
}

// SessionClosed decrements the live-session gauge.
func (m *Metrics) SessionClosed() {
	if m.sessionsActive == nil {
		return
	}
	m.sessionsActive.Dec()
}

// RecordFileTransfer records bytes moved in direction "upload" or
// "download".
func (m *Metrics) RecordFileTransfer(direction string, bytes int64) {
	if m.transferBytes == nil {
		return
	}
	m.transferBytes.WithLabelValues(direction).Add(float64(bytes))
}

// Registry returns the underlying registry, or nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint, for programs
// that embed the library in a service.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
