package redis

import (
	"context"
	"fmt"
	"time"

	"activation-platform/internal/domain/ports/adapter"
)

var _ adapter.RateLimiter = (*RateLimiter)(nil)

// RateLimiter is a fixed-window counter shared by every instance using the
// same Redis. The first request in a window sets the key expiry.
type RateLimiter struct {
	client RedisClient
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

func NewRateLimiter(client RedisClient, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: "rate_limit",
		now:    time.Now,
	}
}

func (r *RateLimiter) Name() string { return "redis" }

func (r *RateLimiter) Allow(ctx context.Context, key string) (adapter.RateDecision, error) {
	k := RateLimitKey(r.prefix, key)
	count, err := r.client.Incr(ctx, k)
	if err != nil {
		return adapter.RateDecision{}, err
	}

	ttl := r.window
	if count == 1 {
		if err := r.client.Expire(ctx, k, r.window); err != nil {
			return adapter.RateDecision{}, err
		}
	} else if t, err := r.client.TTL(ctx, k); err == nil && t > 0 {
		ttl = t
	} else if err == nil && t < 0 {
		// key lost its expiry (e.g. Expire failed earlier); re-arm it
		_ = r.client.Expire(ctx, k, r.window)
	}

	d := adapter.RateDecision{
		Allowed: count <= int64(r.limit),
		Limit:   r.limit,
		ResetAt: r.now().Add(ttl),
	}
	if d.Allowed {
		d.Remaining = r.limit - int(count)
	} else {
		d.RetryAfter = ttl
	}
	return d, nil
}

func RateLimitKey(prefix, key string) string {
	return fmt.Sprintf("%s:%s", prefix, key)
}
