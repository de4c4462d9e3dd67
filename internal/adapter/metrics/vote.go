package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// VoteMetrics holds Prometheus metrics for the vote write path.
type VoteMetrics struct {
	VotesCast            *prometheus.CounterVec
	StoreDuration        *prometheus.HistogramVec
	BroadcastsDispatched *prometheus.CounterVec
	InflightBroadcasts   prometheus.Gauge
}

// NewVoteMetrics creates and registers vote metrics on the given registry.
func NewVoteMetrics(reg prometheus.Registerer) *VoteMetrics {
	factory := promauto.With(reg)
	m := &VoteMetrics{
		VotesCast: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_cast_total",
			Help:      "Total number of votes received, by ai_name and result.",
		}, []string{"ai_name", "result"}),
		StoreDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vote_store_duration_seconds",
			Help:      "Duration of vote store operations in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"operation"}),
		BroadcastsDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vote_broadcasts_dispatched_total",
			Help:      "Total number of asynchronous vote broadcasts, by result.",
		}, []string{"result"}),
		InflightBroadcasts: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vote_broadcasts_inflight",
			Help:      "Number of vote broadcasts handed off but not yet finished.",
		}),
	}
	return m
}
