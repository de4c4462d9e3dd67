package httpserver

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestConnectionLimits_Global(t *testing.T) {
	l := NewConnectionLimits(2, 10, 100, 100, clockwork.NewFakeClock())

	ok, _ := l.Acquire("1.1.1.1")
	assert.True(t, ok)
	ok, _ = l.Acquire("2.2.2.2")
	assert.True(t, ok)

	ok, reason := l.Acquire("3.3.3.3")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonGlobal, reason)

	l.Release("1.1.1.1")
	ok, _ = l.Acquire("3.3.3.3")
	assert.True(t, ok)
	assert.Equal(t, int64(2), l.Current())
}

func TestConnectionLimits_PerIPRollsBackGlobal(t *testing.T) {
	l := NewConnectionLimits(10, 1, 100, 100, clockwork.NewFakeClock())

	ok, _ := l.Acquire("1.1.1.1")
	assert.True(t, ok)

	ok, reason := l.Acquire("1.1.1.1")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonPerIP, reason)
	assert.Equal(t, int64(1), l.Current())
	assert.Equal(t, 1, l.CountForIP("1.1.1.1"))
}

func TestConnectionLimits_Rate(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := NewConnectionLimits(100, 100, 1, 2, clock)

	for range 2 {
		ok, _ := l.Acquire("1.1.1.1")
		assert.True(t, ok)
	}
	ok, reason := l.Acquire("1.1.1.1")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonRate, reason)

	// a different address has its own bucket
	ok, _ = l.Acquire("2.2.2.2")
	assert.True(t, ok)

	clock.Advance(time.Second)
	ok, _ = l.Acquire("1.1.1.1")
	assert.True(t, ok)
}

func TestConnectionLimits_ReleaseUnknownIPIsNoop(t *testing.T) {
	l := NewConnectionLimits(10, 10, 100, 100, clockwork.NewFakeClock())

	l.Release("9.9.9.9")

	assert.Equal(t, int64(0), l.Current())
	assert.Equal(t, 0, l.CountForIP("9.9.9.9"))
}

func TestConnectionLimits_IdleRateLimitersExpire(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := NewConnectionLimits(100, 100, 100, 100, clock)

	l.Acquire("1.1.1.1")
	l.Release("1.1.1.1")

	clock.Advance(rateLimiterIdleTimeout + rateLimiterCleanupInterval)
	l.Acquire("2.2.2.2")

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.limiters, "1.1.1.1")
	assert.Contains(t, l.limiters, "2.2.2.2")
}
