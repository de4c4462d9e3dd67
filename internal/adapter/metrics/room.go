package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RoomMetrics holds Prometheus metrics for broadcast rooms.
type RoomMetrics struct {
	Members          *prometheus.GaugeVec
	Broadcasts       *prometheus.CounterVec
	SessionsPruned   *prometheus.CounterVec
	FanoutDuration   prometheus.Histogram
	CommandQueueSize *prometheus.GaugeVec
}

// NewRoomMetrics creates and registers room metrics on the given registry.
func NewRoomMetrics(reg prometheus.Registerer) *RoomMetrics {
	factory := promauto.With(reg)
	m := &RoomMetrics{
		Members: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "room",
			Name:      "members",
			Help:      "Number of sessions currently joined to a room.",
		}, []string{"room"}),
		Broadcasts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "room",
			Name:      "broadcasts_total",
			Help:      "Total number of events fanned out, by room.",
		}, []string{"room"}),
		SessionsPruned: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "room",
			Name:      "sessions_pruned_total",
			Help:      "Total number of sessions removed during fan-out, by reason.",
		}, []string{"reason"}),
		FanoutDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "room",
			Name:      "fanout_duration_seconds",
			Help:      "Time spent enqueuing one event to every member.",
			Buckets:   []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		CommandQueueSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "room",
			Name:      "command_queue_depth",
			Help:      "Pending commands in the room actor channel.",
		}, []string{"room"}),
	}
	return m
}
