package metrics

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics holds Prometheus metrics for HTTP request tracking.
type HTTPMetrics struct {
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
	InFlightGauge   prometheus.Gauge
}

// NewHTTPMetrics creates and registers HTTP metrics on the given registry.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	factory := promauto.With(reg)
	m := &HTTPMetrics{
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"listener", "method", "route", "status_code"}),
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"listener", "method", "route", "status_code"}),
		InFlightGauge: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of HTTP requests currently being processed.",
		}),
	}
	return m
}

// Middleware returns an Echo middleware that records HTTP metrics for one listener.
// Scrapes, probes and the long-lived /vote-room upgrade are not timed.
func (m *HTTPMetrics) Middleware(listener string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if route == "/metrics" || route == "/vote-room" || strings.HasPrefix(route, "/health/") {
				return next(c)
			}
			if route == "" {
				route = "unmatched"
			}

			m.InFlightGauge.Inc()
			defer m.InFlightGauge.Dec()

			timer := prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
				status := strconv.Itoa(c.Response().Status)
				method := c.Request().Method
				m.RequestDuration.WithLabelValues(listener, method, route, status).Observe(v)
				m.RequestsTotal.WithLabelValues(listener, method, route, status).Inc()
			}))

			err := next(c)
			timer.ObserveDuration()
			return err
		}
	}
}
