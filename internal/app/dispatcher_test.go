package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/adapter/metrics"
	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/platform/correlation"
)

func newTestDispatcher(limit int) (*Dispatcher, *metrics.VoteMetrics) {
	m := metrics.NewVoteMetrics(prometheus.NewRegistry())
	return NewDispatcher(limit, m), m
}

func TestDispatcher_TaskOutlivesRequestContext(t *testing.T) {
	d, _ := newTestDispatcher(1)

	reqCtx, cancel := context.WithCancel(correlation.WithID(context.Background(), "abcd1234"))
	var taskErr error
	var taskID string
	release := make(chan struct{})

	d.Go(reqCtx, func(ctx context.Context) error {
		<-release
		taskErr = ctx.Err()
		taskID, _ = correlation.ID(ctx)
		return nil
	})
	cancel()
	close(release)

	require.NoError(t, d.Shutdown(context.Background()))
	assert.NoError(t, taskErr)
	assert.Equal(t, "abcd1234", taskID)
}

func TestDispatcher_RespectsLimit(t *testing.T) {
	d, _ := newTestDispatcher(2)

	var running, peak atomic.Int32
	release := make(chan struct{})
	var submitted sync.WaitGroup

	for range 5 {
		submitted.Add(1)
		go func() {
			defer submitted.Done()
			d.Go(context.Background(), func(context.Context) error {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				<-release
				running.Add(-1)
				return nil
			})
		}()
	}

	require.Eventually(t, func() bool { return running.Load() == 2 }, time.Second, time.Millisecond)
	close(release)
	submitted.Wait()
	require.NoError(t, d.Shutdown(context.Background()))

	assert.Equal(t, int32(2), peak.Load())
}

func TestDispatcher_RecordsOutcomes(t *testing.T) {
	d, m := newTestDispatcher(4)

	d.Go(context.Background(), func(context.Context) error { return nil })
	d.Go(context.Background(), func(context.Context) error { return errors.New("boom") })
	require.NoError(t, d.Shutdown(context.Background()))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.BroadcastsDispatched.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BroadcastsDispatched.WithLabelValues("error")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.InflightBroadcasts))
}

func TestDispatcher_RejectsAfterShutdown(t *testing.T) {
	d, m := newTestDispatcher(1)
	require.NoError(t, d.Shutdown(context.Background()))

	ran := false
	accepted := d.Go(context.Background(), func(context.Context) error {
		ran = true
		return nil
	})

	assert.False(t, accepted)
	assert.False(t, ran)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BroadcastsDispatched.WithLabelValues("dropped")))
	assert.ErrorIs(t, d.Shutdown(context.Background()), ErrDispatcherClosed)
}

func TestDispatcher_ShutdownHonorsDeadline(t *testing.T) {
	d, _ := newTestDispatcher(1)
	release := make(chan struct{})
	defer close(release)

	d.Go(context.Background(), func(context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, d.Shutdown(ctx), context.DeadlineExceeded)
}
