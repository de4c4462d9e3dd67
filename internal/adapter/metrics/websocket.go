package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ConnectionMetrics holds Prometheus metrics for the public upgrade endpoint.
type ConnectionMetrics struct {
	ActiveConnections prometheus.Gauge
	Rejected          *prometheus.CounterVec
}

// NewConnectionMetrics creates and registers upgrade endpoint metrics on the given registry.
func NewConnectionMetrics(reg prometheus.Registerer) *ConnectionMetrics {
	factory := promauto.With(reg)
	m := &ConnectionMetrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of upgraded WebSocket connections currently open.",
		}),
		Rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "rejected_total",
			Help:      "Total number of refused upgrade attempts, by reason.",
		}, []string{"reason"}),
	}
	return m
}
