package redis

import (
	"context"
	"time"

	"activation-platform/internal/infra/cache"
)

var _ cache.Store = (*CacheStore)(nil)

// CacheStore adapts RedisClient to the byte cache used by repository decorators.
type CacheStore struct {
	client RedisClient
}

func NewCacheStore(client RedisClient) *CacheStore {
	return &CacheStore{client: client}
}

func (s *CacheStore) Name() string { return "redis" }

func (s *CacheStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.client.Get(ctx, key)
	if err != nil {
		if IsNil(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return []byte(v), true, nil
}

func (s *CacheStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, val, ttl)
}

func (s *CacheStore) Del(ctx context.Context, keys ...string) error {
	return s.client.Del(ctx, keys...)
}
