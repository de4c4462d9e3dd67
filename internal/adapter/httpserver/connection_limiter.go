package httpserver

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	rateLimiterCleanupInterval = 5 * time.Minute
	rateLimiterIdleTimeout     = 10 * time.Minute
)

// LimitReason describes why an upgrade was refused.
type LimitReason string

const (
	LimitReasonGlobal LimitReason = "global_limit"
	LimitReasonPerIP  LimitReason = "per_ip_limit"
	LimitReasonRate   LimitReason = "rate_limit"
)

// ConnectionLimits guards the upgrade endpoints with a global cap on open
// connections, a per-IP cap and a per-IP rate of new connections.
type ConnectionLimits struct {
	current   atomic.Int64
	globalMax int64

	mu     sync.Mutex
	perIP  map[string]int
	maxPer int

	clock     clockwork.Clock
	rate      rate.Limit
	burst     int
	limiters  map[string]*rateLimiterEntry
	cleanupAt time.Time
}

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewConnectionLimits(globalMax int64, perIPMax int, connectionsPerSecond float64, burst int, clock clockwork.Clock) *ConnectionLimits {
	return &ConnectionLimits{
		globalMax: globalMax,
		perIP:     make(map[string]int),
		maxPer:    perIPMax,
		clock:     clock,
		rate:      rate.Limit(connectionsPerSecond),
		burst:     burst,
		limiters:  make(map[string]*rateLimiterEntry),
		cleanupAt: clock.Now().Add(rateLimiterCleanupInterval),
	}
}

// Acquire reserves a slot for ip. On success the caller must Release it once
// the connection ends.
func (l *ConnectionLimits) Acquire(ip string) (bool, LimitReason) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// rate first: it is the only check that costs a token on refusal
	if !l.allowRate(ip) {
		return false, LimitReasonRate
	}

	if !l.acquireGlobal() {
		return false, LimitReasonGlobal
	}

	if l.perIP[ip] >= l.maxPer {
		l.current.Add(-1)
		return false, LimitReasonPerIP
	}
	l.perIP[ip]++
	return true, ""
}

func (l *ConnectionLimits) Release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if count := l.perIP[ip]; count > 0 {
		if count == 1 {
			delete(l.perIP, ip)
		} else {
			l.perIP[ip] = count - 1
		}
		l.current.Add(-1)
	}
}

// Current returns the number of held slots.
func (l *ConnectionLimits) Current() int64 {
	return l.current.Load()
}

// CountForIP returns the number of slots held by ip.
func (l *ConnectionLimits) CountForIP(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.perIP[ip]
}

func (l *ConnectionLimits) acquireGlobal() bool {
	for {
		current := l.current.Load()
		if current >= l.globalMax {
			return false
		}
		if l.current.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

// allowRate must be called with mu held.
func (l *ConnectionLimits) allowRate(ip string) bool {
	now := l.clock.Now()
	if now.After(l.cleanupAt) {
		cutoff := now.Add(-rateLimiterIdleTimeout)
		for key, entry := range l.limiters {
			if entry.lastSeen.Before(cutoff) {
				delete(l.limiters, key)
			}
		}
		l.cleanupAt = now.Add(rateLimiterCleanupInterval)
	}

	entry, ok := l.limiters[ip]
	if !ok {
		entry = &rateLimiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}
