package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/adapter/metrics"
)

func newTestHook(t *testing.T) (*CircuitBreakerHook, *metrics.RedisMetrics, *clockwork.FakeClock) {
	t.Helper()
	m := metrics.NewRedisMetrics(prometheus.NewRegistry())
	clock := clockwork.NewFakeClock()
	return NewCircuitBreakerHook(m, clock), m, clock
}

func failing(context.Context, goredis.Cmder) error { return errors.New("connection refused") }

func trip(t *testing.T, hook *CircuitBreakerHook) {
	t.Helper()
	ctx := context.Background()
	process := hook.ProcessHook(failing)
	for range breakerMinExecutions {
		_ = process(ctx, goredis.NewIntCmd(ctx, "hincrby", votesKey, "Claude", 1))
	}
	require.Equal(t, circuitbreaker.OpenState, hook.State())
}

func TestCircuitBreakerHook_StaysClosedOnSuccess(t *testing.T) {
	hook, _, _ := newTestHook(t)
	ctx := context.Background()

	process := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return nil })
	for range 10 {
		assert.NoError(t, process(ctx, goredis.NewIntCmd(ctx, "hincrby", votesKey, "Codex", 1)))
	}

	assert.Equal(t, circuitbreaker.ClosedState, hook.State())
}

func TestCircuitBreakerHook_NilIsNotAFailure(t *testing.T) {
	hook, _, _ := newTestHook(t)
	ctx := context.Background()

	process := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return goredis.Nil })
	for range 10 {
		err := process(ctx, goredis.NewStringCmd(ctx, "get", "missing"))
		assert.ErrorIs(t, err, goredis.Nil)
	}

	assert.Equal(t, circuitbreaker.ClosedState, hook.State())
}

func TestCircuitBreakerHook_OpensAfterSustainedFailures(t *testing.T) {
	hook, m, _ := newTestHook(t)
	trip(t, hook)

	ctx := context.Background()
	called := false
	process := hook.ProcessHook(func(context.Context, goredis.Cmder) error {
		called = true
		return nil
	})

	err := process(ctx, goredis.NewIntCmd(ctx, "hincrby", votesKey, "Claude", 1))
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.False(t, called)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.BreakerState))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BreakerStateChanges.WithLabelValues(circuitbreaker.OpenState.String())))
}

func TestCircuitBreakerHook_ServesCachedTallyWhileOpen(t *testing.T) {
	hook, _, _ := newTestHook(t)
	ctx := context.Background()

	read := hook.ProcessHook(func(_ context.Context, cmd goredis.Cmder) error {
		cmd.(*goredis.MapStringStringCmd).SetVal(map[string]string{"Claude": "7"})
		return nil
	})
	require.NoError(t, read(ctx, goredis.NewMapStringStringCmd(ctx, "hgetall", votesKey)))

	trip(t, hook)

	cmd := goredis.NewMapStringStringCmd(ctx, "hgetall", votesKey)
	require.NoError(t, hook.ProcessHook(failing)(ctx, cmd))
	assert.Equal(t, map[string]string{"Claude": "7"}, cmd.Val())
}

func TestCircuitBreakerHook_CachedTallyExpires(t *testing.T) {
	hook, _, clock := newTestHook(t)
	ctx := context.Background()

	read := hook.ProcessHook(func(_ context.Context, cmd goredis.Cmder) error {
		cmd.(*goredis.MapStringStringCmd).SetVal(map[string]string{"Gemini": "1"})
		return nil
	})
	require.NoError(t, read(ctx, goredis.NewMapStringStringCmd(ctx, "hgetall", votesKey)))

	trip(t, hook)
	clock.Advance(tallyCacheTTL + 1)

	err := hook.ProcessHook(failing)(ctx, goredis.NewMapStringStringCmd(ctx, "hgetall", votesKey))
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
}

func TestCircuitBreakerHook_PipelineRejectedWhileOpen(t *testing.T) {
	hook, _, _ := newTestHook(t)
	trip(t, hook)

	err := hook.ProcessPipelineHook(func(context.Context, []goredis.Cmder) error { return nil })(context.Background(), nil)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
}
