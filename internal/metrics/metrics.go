// Package metrics exposes Prometheus metrics for the HTTP surface and the
// wizard lifecycle.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "finner"

// Metrics owns a registry and the collectors registered on it.
type Metrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	transitionsTotal *prometheus.CounterVec
	tasksTotal       *prometheus.CounterVec
	taskDuration     prometheus.Histogram
	handoffWrites    *prometheus.CounterVec
	activeSessions   prometheus.Gauge
	backendCalls     *prometheus.CounterVec
}

// New creates the metrics for service.
func New(service string) *Metrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	m := &Metrics{
		registry: registry,
		service:  service,
		requestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests processed.",
			},
			[]string{"service", "method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "method", "path"},
		),
		requestInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "Number of in-flight HTTP requests.",
			ConstLabels: constLabels,
		}),
		transitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "wizard",
				Name:      "actions_total",
				Help:      "Wizard actions by outcome.",
			},
			[]string{"service", "action", "result"},
		),
		tasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "task",
				Name:      "runs_total",
				Help:      "Finished processing runs by outcome.",
			},
			[]string{"service", "outcome"},
		),
		taskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "task",
			Name:        "duration_seconds",
			Help:        "Processing run duration in seconds.",
			Buckets:     []float64{0.5, 1, 2, 3, 5, 10, 30, 60, 120},
			ConstLabels: constLabels,
		}),
		handoffWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "handoff",
				Name:      "writes_total",
				Help:      "Handoff record writes by status.",
			},
			[]string{"service", "status"},
		),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "session",
			Name:        "active",
			Help:        "Number of live wizard sessions.",
			ConstLabels: constLabels,
		}),
		backendCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "backend",
				Name:      "calls_total",
				Help:      "Proxied backend calls by endpoint and status.",
			},
			[]string{"service", "endpoint", "status"},
		),
	}

	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.requestInFlight,
		m.transitionsTotal,
		m.tasksTotal,
		m.taskDuration,
		m.handoffWrites,
		m.activeSessions,
		m.backendCalls,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency by route pattern.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			m.requestInFlight.Inc()
			defer m.requestInFlight.Dec()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			status := strconv.Itoa(c.Response().Status)
			m.requestTotal.WithLabelValues(m.service, c.Request().Method, path, status).Inc()
			m.requestDuration.WithLabelValues(m.service, c.Request().Method, path).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

// RecordAction counts a wizard action. result is "ok", "validation" or
// "conflict".
func (m *Metrics) RecordAction(action, result string) {
	m.transitionsTotal.WithLabelValues(m.service, action, result).Inc()
}

// RecordTask counts a finished processing run.
func (m *Metrics) RecordTask(outcome string, elapsed time.Duration) {
	m.tasksTotal.WithLabelValues(m.service, outcome).Inc()
	m.taskDuration.Observe(elapsed.Seconds())
}

// RecordHandoffWrite counts a handoff write.
func (m *Metrics) RecordHandoffWrite(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.handoffWrites.WithLabelValues(m.service, status).Inc()
}

// SetActiveSessions sets the live session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// RecordBackendCall counts a proxied backend call.
func (m *Metrics) RecordBackendCall(endpoint string, degraded bool) {
	status := "ok"
	if degraded {
		status = "degraded"
	}
	m.backendCalls.WithLabelValues(m.service, endpoint, status).Inc()
}
