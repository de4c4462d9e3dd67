package redis

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/adapter/metrics"
)

// MetricsHook records per-command counts and latencies.
type MetricsHook struct {
	metrics *metrics.RedisMetrics
	clock   clockwork.Clock
}

var _ goredis.Hook = (*MetricsHook)(nil)

func NewMetricsHook(m *metrics.RedisMetrics, clock clockwork.Clock) *MetricsHook {
	return &MetricsHook{metrics: m, clock: clock}
}

func (h *MetricsHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.metrics.ConnectionErrors.Inc()
		}
		return conn, err
	}
}

func (h *MetricsHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		start := h.clock.Now()
		err := next(ctx, cmd)
		h.observe(cmd.Name(), start, err)
		return err
	}
}

func (h *MetricsHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		start := h.clock.Now()
		err := next(ctx, cmds)
		h.observe("pipeline", start, err)
		return err
	}
}

func (h *MetricsHook) observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil && !errors.Is(err, goredis.Nil) {
		status = "error"
	}
	h.metrics.OpsTotal.WithLabelValues(operation, status).Inc()
	h.metrics.OpDuration.WithLabelValues(operation).Observe(h.clock.Since(start).Seconds())
}
