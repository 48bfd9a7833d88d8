package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"activation-platform/internal/domain"
	"activation-platform/internal/domain/model"
	"activation-platform/internal/domain/ports/repository"
	"activation-platform/internal/infra/metrics"
)

var _ repository.ActivationCodeRepository = (*ActivationCodeCache)(nil)

// ActivationCodeCache is a read-through decorator for lookups by code and id.
// The code key holds the row id, the id key holds the encoded row, so a
// single invalidation by id covers both lookups.
type ActivationCodeCache struct {
	inner repository.ActivationCodeRepository
	store Store
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewActivationCodeCache(inner repository.ActivationCodeRepository, store Store, ttl time.Duration, logger *zerolog.Logger) *ActivationCodeCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	l := logger.With().Str("component", "activation_code_cache").Str("store", store.Name()).Logger()
	return &ActivationCodeCache{inner: inner, store: store, ttl: ttl, log: &l}
}

type cachedCode struct {
	ID          string             `json:"id"`
	Code        string             `json:"code"`
	CreatedAt   time.Time          `json:"created_at"`
	ExpiresAt   time.Time          `json:"expires_at"`
	IsUsed      bool               `json:"is_used"`
	UsedAt      *time.Time         `json:"used_at,omitempty"`
	Metadata    map[string]any     `json:"metadata,omitempty"`
	ProductInfo *model.ProductInfo `json:"product_info,omitempty"`
}

func codeKey(code string) string { return "activation_code:code:" + code }
func idKey(id string) string     { return "activation_code:id:" + id }

func (c *ActivationCodeCache) Insert(ctx context.Context, ac *model.ActivationCode) error {
	return c.inner.Insert(ctx, ac)
}

func (c *ActivationCodeCache) FindByCode(ctx context.Context, code string) (*model.ActivationCode, error) {
	if id, ok := c.get(ctx, codeKey(code)); ok {
		if ac, ok := c.getRow(ctx, string(id)); ok && ac.Code == code {
			metrics.IncCacheRequest("code", c.store.Name(), "hit")
			return ac, nil
		}
	}
	metrics.IncCacheRequest("code", c.store.Name(), "miss")

	ac, err := c.inner.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	c.put(ctx, ac)
	return ac, nil
}

func (c *ActivationCodeCache) FindByID(ctx context.Context, id string) (*model.ActivationCode, error) {
	if ac, ok := c.getRow(ctx, id); ok {
		metrics.IncCacheRequest("id", c.store.Name(), "hit")
		return ac, nil
	}
	metrics.IncCacheRequest("id", c.store.Name(), "miss")

	ac, err := c.inner.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.put(ctx, ac)
	return ac, nil
}

// MarkUsed invalidates the id key whatever the outcome, so a lost race is
// classified from the store rather than from a stale entry.
func (c *ActivationCodeCache) MarkUsed(ctx context.Context, id string, usedAt time.Time) error {
	err := c.inner.MarkUsed(ctx, id, usedAt)
	c.del(ctx, idKey(id))
	return err
}

func (c *ActivationCodeCache) List(ctx context.Context, f repository.ListFilter) ([]*model.ActivationCode, int64, error) {
	return c.inner.List(ctx, f)
}

func (c *ActivationCodeCache) DeleteByID(ctx context.Context, id string) error {
	err := c.inner.DeleteByID(ctx, id)
	if err == nil || errors.Is(err, domain.ErrNotFound) {
		c.del(ctx, idKey(id))
	}
	return err
}

// DeleteStaleUnused drops the id key of every removed row; the matching code
// keys then miss on their id lookup and fall through to the store.
func (c *ActivationCodeCache) DeleteStaleUnused(ctx context.Context, olderThan time.Time) ([]string, error) {
	ids, err := c.inner.DeleteStaleUnused(ctx, olderThan)
	if len(ids) > 0 {
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = idKey(id)
		}
		c.del(ctx, keys...)
	}
	return ids, err
}

func (c *ActivationCodeCache) CountByStatus(ctx context.Context, now time.Time) (model.CodeCounts, error) {
	return c.inner.CountByStatus(ctx, now)
}

func (c *ActivationCodeCache) getRow(ctx context.Context, id string) (*model.ActivationCode, bool) {
	b, ok := c.get(ctx, idKey(id))
	if !ok {
		return nil, false
	}
	var cc cachedCode
	if err := json.Unmarshal(b, &cc); err != nil {
		c.log.Warn().Err(err).Str("id", id).Msg("discarding undecodable cache entry")
		c.del(ctx, idKey(id))
		return nil, false
	}
	return &model.ActivationCode{
		ID:          cc.ID,
		Code:        cc.Code,
		CreatedAt:   cc.CreatedAt,
		ExpiresAt:   cc.ExpiresAt,
		IsUsed:      cc.IsUsed,
		UsedAt:      cc.UsedAt,
		Metadata:    cc.Metadata,
		ProductInfo: cc.ProductInfo,
	}, true
}

func (c *ActivationCodeCache) put(ctx context.Context, ac *model.ActivationCode) {
	b, err := json.Marshal(cachedCode{
		ID:          ac.ID,
		Code:        ac.Code,
		CreatedAt:   ac.CreatedAt,
		ExpiresAt:   ac.ExpiresAt,
		IsUsed:      ac.IsUsed,
		UsedAt:      ac.UsedAt,
		Metadata:    ac.Metadata,
		ProductInfo: ac.ProductInfo,
	})
	if err != nil {
		c.log.Warn().Err(err).Str("id", ac.ID).Msg("encode cache entry")
		return
	}
	if err := c.store.Set(ctx, idKey(ac.ID), b, c.ttl); err != nil {
		c.log.Warn().Err(err).Msg("cache set failed")
		return
	}
	if err := c.store.Set(ctx, codeKey(ac.Code), []byte(ac.ID), c.ttl); err != nil {
		c.log.Warn().Err(err).Msg("cache set failed")
	}
}

func (c *ActivationCodeCache) get(ctx context.Context, key string) ([]byte, bool) {
	b, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.Warn().Err(err).Msg("cache get failed")
		return nil, false
	}
	return b, ok
}

func (c *ActivationCodeCache) del(ctx context.Context, keys ...string) {
	if err := c.store.Del(ctx, keys...); err != nil {
		c.log.Warn().Err(err).Strs("keys", keys).Msg("cache invalidation failed")
	}
}
