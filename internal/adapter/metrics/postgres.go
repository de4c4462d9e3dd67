package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PostgresMetrics holds Prometheus metrics for the PostgreSQL vote store.
type PostgresMetrics struct {
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewPostgresMetrics creates and registers PostgreSQL metrics on the given registry.
func NewPostgresMetrics(reg prometheus.Registerer) *PostgresMetrics {
	factory := promauto.With(reg)
	m := &PostgresMetrics{
		QueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Duration of database queries in seconds, by statement kind.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"query"}),
		QueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_errors_total",
			Help:      "Total number of failed database queries, by statement kind.",
		}, []string{"query"}),
	}
	return m
}
