// Package ratelimit holds the in-process adapter.RateLimiter used by
// single-instance deployments. Multi-instance deployments use the Redis
// fixed-window limiter instead.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"activation-platform/internal/domain/ports/adapter"
)

var _ adapter.RateLimiter = (*MemoryLimiter)(nil)

const (
	defaultSweepInterval = 5 * time.Minute
	idleEntryTTL         = 10 * time.Minute
)

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// MemoryLimiter is a token bucket per key. Buckets refill at requests/window
// and hold at most burst tokens.
type MemoryLimiter struct {
	limit    int
	burst    float64
	perSec   float64
	mu       sync.Mutex
	buckets  map[string]*bucket
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewMemoryLimiter(requests int, window time.Duration, burst int) *MemoryLimiter {
	if burst < 1 {
		burst = 1
	}
	l := &MemoryLimiter{
		limit:   burst,
		burst:   float64(burst),
		perSec:  float64(requests) / window.Seconds(),
		buckets: make(map[string]*bucket),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	go l.sweep(defaultSweepInterval)
	return l
}

func (l *MemoryLimiter) Name() string { return "memory" }

func (l *MemoryLimiter) Allow(_ context.Context, key string) (adapter.RateDecision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, lastUpdate: now}
		l.buckets[key] = b
	} else {
		elapsed := now.Sub(b.lastUpdate).Seconds()
		b.tokens = math.Min(l.burst, b.tokens+elapsed*l.perSec)
		b.lastUpdate = now
	}

	d := adapter.RateDecision{Limit: l.limit}
	if b.tokens >= 1 {
		b.tokens--
		d.Allowed = true
		d.Remaining = int(b.tokens)
	} else {
		d.RetryAfter = l.untilTokens(1 - b.tokens)
	}
	d.ResetAt = now.Add(l.untilTokens(l.burst - b.tokens))
	return d, nil
}

func (l *MemoryLimiter) untilTokens(n float64) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(n / l.perSec * float64(time.Second)))
}

// sweep drops buckets idle for longer than idleEntryTTL.
func (l *MemoryLimiter) sweep(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			l.evictIdle()
		case <-l.stopCh:
			return
		}
	}
}

func (l *MemoryLimiter) evictIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for k, b := range l.buckets {
		if now.Sub(b.lastUpdate) > idleEntryTTL {
			delete(l.buckets, k)
		}
	}
}

// Stop ends the sweep goroutine. Safe to call more than once.
func (l *MemoryLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}
