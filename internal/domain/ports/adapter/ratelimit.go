package adapter

import (
	"context"
	"time"
)

// RateDecision is the outcome of a single rate limit check.
type RateDecision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration // zero when allowed
	ResetAt    time.Time
}

// RateLimiter is the port for request throttling keyed by an opaque client key.
// Implementations must be safe for concurrent use.
type RateLimiter interface {
	Name() string
	Allow(ctx context.Context, key string) (RateDecision, error)
}
