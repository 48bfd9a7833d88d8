//go:build !integration

package redis

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// fakeClient is an in-memory RedisClient with a controllable clock.
type fakeClient struct {
	mu      sync.Mutex
	now     time.Time
	vals    map[string]string
	expires map[string]time.Time

	incrErr error
}

var _ RedisClient = (*fakeClient)(nil)

func newFakeClient() *fakeClient {
	return &fakeClient{
		now:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		vals:    map[string]string{},
		expires: map[string]time.Time{},
	}
}

func (f *fakeClient) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// evict must be called with mu held.
func (f *fakeClient) evict(key string) {
	if exp, ok := f.expires[key]; ok && !f.now.Before(exp) {
		delete(f.vals, key)
		delete(f.expires, key)
	}
}

func (f *fakeClient) Ping(ctx context.Context) error { return nil }

func (f *fakeClient) Set(ctx context.Context, key string, value interface{}, exp time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		f.vals[key] = string(v)
	case string:
		f.vals[key] = v
	}
	if exp > 0 {
		f.expires[key] = f.now.Add(exp)
	} else {
		delete(f.expires, key)
	}
	return nil
}

func (f *fakeClient) SetNX(ctx context.Context, key string, value interface{}, exp time.Duration) (bool, error) {
	f.mu.Lock()
	f.evict(key)
	_, exists := f.vals[key]
	f.mu.Unlock()
	if exists {
		return false, nil
	}
	return true, f.Set(ctx, key, value, exp)
}

func (f *fakeClient) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evict(key)
	v, ok := f.vals[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (f *fakeClient) Incr(ctx context.Context, key string) (int64, error) {
	if f.incrErr != nil {
		return 0, f.incrErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evict(key)
	n, _ := strconv.ParseInt(f.vals[key], 10, 64)
	n++
	f.vals[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (f *fakeClient) Expire(ctx context.Context, key string, exp time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.vals[key]; ok {
		f.expires[key] = f.now.Add(exp)
	}
	return nil
}

func (f *fakeClient) TTL(ctx context.Context, key string) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evict(key)
	if _, ok := f.vals[key]; !ok {
		return -2, nil
	}
	exp, ok := f.expires[key]
	if !ok {
		return -1, nil
	}
	return exp.Sub(f.now), nil
}

func (f *fakeClient) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.vals, k)
		delete(f.expires, k)
	}
	return nil
}

func (f *fakeClient) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evict(key)
	if f.vals[key] != value {
		return false, nil
	}
	delete(f.vals, key)
	delete(f.expires, key)
	return true, nil
}

func (f *fakeClient) Close() error { return nil }
