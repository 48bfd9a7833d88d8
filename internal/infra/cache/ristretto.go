package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

var _ Store = (*RistrettoStore)(nil)

// RistrettoStore is an in-process Store. Every entry costs 1, so MaxEntries
// bounds the number of cached keys.
type RistrettoStore struct {
	c *ristretto.Cache
}

func NewRistrettoStore(maxEntries int64) (*RistrettoStore, error) {
	if maxEntries <= 0 {
		maxEntries = 100_000
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	return &RistrettoStore{c: c}, nil
}

func (s *RistrettoStore) Name() string { return "memory" }

func (s *RistrettoStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	return b, ok, nil
}

// Set is applied asynchronously and may be rejected by the admission policy.
func (s *RistrettoStore) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	s.c.SetWithTTL(key, val, 1, ttl)
	return nil
}

func (s *RistrettoStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		s.c.Del(k)
	}
	return nil
}

// Wait blocks until pending writes are visible.
func (s *RistrettoStore) Wait() { s.c.Wait() }

func (s *RistrettoStore) Close() { s.c.Close() }
