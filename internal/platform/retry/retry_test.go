package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/platform/retry"
)

var fastPolicy = retry.Policy{
	MaxAttempts:    3,
	InitialBackoff: time.Millisecond,
}

func TestDo_SuccessFirstAttempt(t *testing.T) {
	calls := 0
	val, err := retry.Do(context.Background(), fastPolicy, retry.Always, func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
	assert.Equal(t, 1, calls)
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	calls := 0
	val, err := retry.Do(context.Background(), fastPolicy, retry.Always, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, val)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentError(t *testing.T) {
	underlying := errors.New("permanent")
	calls := 0
	_, err := retry.Do(context.Background(), fastPolicy, alwaysStop, func(context.Context) (struct{}, error) {
		calls++
		return struct{}{}, underlying
	})
	require.ErrorIs(t, err, underlying)
	var permErr *retry.PermanentError
	assert.ErrorAs(t, err, &permErr)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustedRetries(t *testing.T) {
	underlying := errors.New("transient")
	calls := 0
	_, err := retry.Do(context.Background(), fastPolicy, retry.Always, func(context.Context) (struct{}, error) {
		calls++
		return struct{}{}, underlying
	})
	require.ErrorIs(t, err, underlying)
	assert.Equal(t, fastPolicy.MaxAttempts, calls)
}

func TestDo_BackoffDoublesUpToMax(t *testing.T) {
	var observed []time.Duration
	p := retry.Policy{
		MaxAttempts:    5,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     3 * time.Millisecond,
		OnRetry: func(_ int, _ error, backoff time.Duration) {
			observed = append(observed, backoff)
		},
	}

	_, _ = retry.Do(context.Background(), p, retry.Always, func(context.Context) (struct{}, error) {
		return struct{}{}, errors.New("fail")
	})

	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond, 3 * time.Millisecond}, observed)
}

func TestDo_WaitsOnInjectedClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p := retry.Policy{MaxAttempts: 2, InitialBackoff: time.Minute, Clock: clock}

	done := make(chan error, 1)
	calls := 0
	go func() {
		done <- retry.DoVoid(context.Background(), p, retry.Always, func(context.Context) error {
			calls++
			if calls == 1 {
				return errors.New("transient")
			}
			return nil
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Minute)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("retry did not resume after clock advance")
	}
	assert.Equal(t, 2, calls)
}

func TestDo_ContextCancellationDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := retry.Policy{MaxAttempts: 3, InitialBackoff: 10 * time.Second}

	calls := 0
	_, err := retry.Do(ctx, p, retry.Always, func(context.Context) (struct{}, error) {
		calls++
		cancel()
		return struct{}{}, errors.New("transient")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_OnRetryCallback(t *testing.T) {
	var recorded []int
	p := fastPolicy
	p.OnRetry = func(attempt int, _ error, _ time.Duration) {
		recorded = append(recorded, attempt)
	}

	_, _ = retry.Do(context.Background(), p, retry.Always, func(context.Context) (struct{}, error) {
		return struct{}{}, errors.New("fail")
	})

	// exhaustion on the last attempt does not trigger OnRetry
	assert.Equal(t, []int{1, 2}, recorded)
}

func TestDoVoid_PropagatesError(t *testing.T) {
	underlying := errors.New("fail")
	err := retry.DoVoid(context.Background(), fastPolicy, alwaysStop, func(context.Context) error {
		return underlying
	})
	require.ErrorIs(t, err, underlying)
}

func alwaysStop(error) retry.Action { return retry.Stop }
