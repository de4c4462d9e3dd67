package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/adapter/metrics"
)

const (
	breakerFailureRate      = 0.6
	breakerMinExecutions    = 5
	breakerWindow           = 10 * time.Second
	breakerOpenDelay        = 30 * time.Second
	breakerSuccessThreshold = 1
	tallyCacheTTL           = 5 * time.Minute
)

// CircuitBreakerHook fails Redis commands fast while Redis is unhealthy.
// While open, tally reads (HGETALL) are answered from the last successful
// result if it is younger than tallyCacheTTL; writes always fail.
type CircuitBreakerHook struct {
	cb    circuitbreaker.CircuitBreaker[any]
	clock clockwork.Clock

	mu         sync.RWMutex
	lastTally  map[string]map[string]string
	lastTallyT map[string]time.Time
}

var _ goredis.Hook = (*CircuitBreakerHook)(nil)

// NewCircuitBreakerHook opens at a 60% failure rate over at least 5 commands
// in a 10s window, probes again after 30s and closes on the first success.
func NewCircuitBreakerHook(m *metrics.RedisMetrics, clock clockwork.Clock) *CircuitBreakerHook {
	cb := circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(breakerFailureRate, breakerMinExecutions, breakerWindow).
		WithDelay(breakerOpenDelay).
		WithSuccessThreshold(breakerSuccessThreshold).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "redis",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			m.BreakerStateChanges.WithLabelValues(e.NewState.String()).Inc()
			m.BreakerState.Set(stateToFloat(e.NewState))
		}).
		Build()

	return &CircuitBreakerHook{
		cb:         cb,
		clock:      clock,
		lastTally:  make(map[string]map[string]string),
		lastTallyT: make(map[string]time.Time),
	}
}

func stateToFloat(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}

func (h *CircuitBreakerHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if !h.cb.TryAcquirePermit() {
			return nil, fmt.Errorf("redis circuit breaker open: %w", circuitbreaker.ErrOpen)
		}
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.cb.RecordError(err)
			return nil, fmt.Errorf("circuit breaker dial failed: %w", err)
		}
		h.cb.RecordSuccess()
		return conn, nil
	}
}

func (h *CircuitBreakerHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			return h.fallback(cmd)
		}

		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, goredis.Nil) {
			h.cb.RecordError(err)
			return fmt.Errorf("circuit breaker process failed: %w", err)
		}
		h.cb.RecordSuccess()
		h.remember(cmd)
		return err
	}
}

func (h *CircuitBreakerHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			return fmt.Errorf("redis circuit breaker open: %w", circuitbreaker.ErrOpen)
		}

		err := next(ctx, cmds)
		if err != nil {
			h.cb.RecordError(err)
			return fmt.Errorf("circuit breaker pipeline failed: %w", err)
		}
		h.cb.RecordSuccess()
		return nil
	}
}

func (h *CircuitBreakerHook) fallback(cmd goredis.Cmder) error {
	if c, ok := cmd.(*goredis.MapStringStringCmd); ok && cmd.Name() == "hgetall" {
		if cached, ok := h.cached(hashKey(cmd)); ok {
			slog.Debug("Circuit breaker open, serving cached tally", "key", hashKey(cmd))
			c.SetVal(cached)
			return nil
		}
	}
	return fmt.Errorf("redis circuit breaker open: %w", circuitbreaker.ErrOpen)
}

func (h *CircuitBreakerHook) remember(cmd goredis.Cmder) {
	c, ok := cmd.(*goredis.MapStringStringCmd)
	if !ok || cmd.Name() != "hgetall" {
		return
	}
	val, err := c.Result()
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	key := hashKey(cmd)
	h.lastTally[key] = maps.Clone(val)
	h.lastTallyT[key] = h.clock.Now()
}

func (h *CircuitBreakerHook) cached(key string) (map[string]string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	val, ok := h.lastTally[key]
	if !ok || h.clock.Since(h.lastTallyT[key]) > tallyCacheTTL {
		return nil, false
	}
	return maps.Clone(val), true
}

func hashKey(cmd goredis.Cmder) string {
	args := cmd.Args()
	if len(args) < 2 {
		return ""
	}
	return fmt.Sprint(args[1])
}

// State returns the current breaker state.
func (h *CircuitBreakerHook) State() circuitbreaker.State {
	return h.cb.State()
}
