package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ClientMetrics holds Prometheus metrics for the reconnecting room client.
type ClientMetrics struct {
	Connected         prometheus.Gauge
	ReconnectAttempts prometheus.Counter
	EventsReceived    *prometheus.CounterVec
}

// NewClientMetrics creates and registers client metrics on the given registry.
func NewClientMetrics(reg prometheus.Registerer) *ClientMetrics {
	factory := promauto.With(reg)
	m := &ClientMetrics{
		Connected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "connected",
			Help:      "1 while the client holds an open room connection.",
		}),
		ReconnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "reconnect_attempts_total",
			Help:      "Total number of dials started after a lost or failed connection.",
		}),
		EventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "events_received_total",
			Help:      "Total number of room payloads received, by result.",
		}, []string{"result"}),
	}
	return m
}
