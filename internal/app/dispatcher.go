package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/adapter/metrics"
	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/platform/correlation"
)

// ErrDispatcherClosed is returned by Shutdown callers racing a second Shutdown
// and logged for tasks submitted after shutdown began.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// Dispatcher runs fire-and-forget tasks that must outlive the request that
// started them. At most limit tasks run at once; Go blocks while the limit is
// reached. Shutdown waits for every accepted task.
type Dispatcher struct {
	mu      sync.RWMutex
	group   errgroup.Group
	closed  bool
	metrics *metrics.VoteMetrics
}

func NewDispatcher(limit int, m *metrics.VoteMetrics) *Dispatcher {
	d := &Dispatcher{metrics: m}
	d.group.SetLimit(limit)
	return d
}

// Go schedules task with a context that carries ctx's correlation ID but not
// its cancellation. Task errors are logged, never propagated. Returns false if
// the dispatcher is shutting down.
func (d *Dispatcher) Go(ctx context.Context, task func(context.Context) error) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		slog.WarnContext(ctx, "Dropping task submitted after shutdown", "error", ErrDispatcherClosed)
		d.metrics.BroadcastsDispatched.WithLabelValues("dropped").Inc()
		return false
	}

	taskCtx := correlation.Detach(ctx)
	d.metrics.InflightBroadcasts.Inc()
	d.group.Go(func() error {
		defer d.metrics.InflightBroadcasts.Dec()
		if err := task(taskCtx); err != nil {
			slog.ErrorContext(taskCtx, "Dispatched task failed", "error", err)
			d.metrics.BroadcastsDispatched.WithLabelValues("error").Inc()
			return nil
		}
		d.metrics.BroadcastsDispatched.WithLabelValues("ok").Inc()
		return nil
	})
	return true
}

// Shutdown stops accepting tasks and waits for the running ones or ctx.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = d.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
