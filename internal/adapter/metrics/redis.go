package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RedisMetrics holds Prometheus metrics for the Redis vote store client.
type RedisMetrics struct {
	OpsTotal            *prometheus.CounterVec
	OpDuration          *prometheus.HistogramVec
	ConnectionErrors    prometheus.Counter
	BreakerState        prometheus.Gauge
	BreakerStateChanges *prometheus.CounterVec
}

// NewRedisMetrics creates and registers Redis metrics on the given registry.
func NewRedisMetrics(reg prometheus.Registerer) *RedisMetrics {
	factory := promauto.With(reg)
	m := &RedisMetrics{
		OpsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "operations_total",
			Help:      "Total number of Redis commands, by command and status.",
		}, []string{"operation", "status"}),
		OpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "operation_duration_seconds",
			Help:      "Duration of Redis commands in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}, []string{"operation"}),
		ConnectionErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "connection_errors_total",
			Help:      "Total number of failed Redis dials.",
		}),
		BreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
		}),
		BreakerStateChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "circuit_breaker_state_changes_total",
			Help:      "Total number of circuit breaker transitions, by new state.",
		}, []string{"state"}),
	}
	return m
}
