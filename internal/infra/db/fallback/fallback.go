// Package fallback serves activation codes from a secondary store when the
// primary store fails with a storage error.
package fallback

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"activation-platform/internal/domain"
	"activation-platform/internal/domain/model"
	"activation-platform/internal/domain/ports/repository"
	"activation-platform/internal/infra/metrics"
)

var _ repository.ActivationCodeRepository = (*Repo)(nil)

// Repo forwards every call to the primary store and retries it on the
// secondary only when the primary returns domain.ErrStorage. Domain errors
// (not found, duplicate, already used) are final.
//
// The two stores are not synchronised; codes created on the secondary while
// the primary was down are only visible through the secondary.
type Repo struct {
	primary   repository.ActivationCodeRepository
	secondary repository.ActivationCodeRepository
	log       *zerolog.Logger
}

func New(primary, secondary repository.ActivationCodeRepository, logger *zerolog.Logger) *Repo {
	l := logger.With().Str("component", "fallback_repo").Logger()
	return &Repo{primary: primary, secondary: secondary, log: &l}
}

func (r *Repo) degrade(op string, err error) bool {
	if !errors.Is(err, domain.ErrStorage) {
		return false
	}
	metrics.IncDBFallback(op)
	r.log.Warn().Err(err).Str("op", op).Msg("primary store failed, using secondary")
	return true
}

func (r *Repo) Insert(ctx context.Context, ac *model.ActivationCode) error {
	err := r.primary.Insert(ctx, ac)
	if r.degrade("insert", err) {
		return r.secondary.Insert(ctx, ac)
	}
	return err
}

func (r *Repo) FindByCode(ctx context.Context, code string) (*model.ActivationCode, error) {
	ac, err := r.primary.FindByCode(ctx, code)
	if r.degrade("find_by_code", err) {
		return r.secondary.FindByCode(ctx, code)
	}
	return ac, err
}

func (r *Repo) FindByID(ctx context.Context, id string) (*model.ActivationCode, error) {
	ac, err := r.primary.FindByID(ctx, id)
	if r.degrade("find_by_id", err) {
		return r.secondary.FindByID(ctx, id)
	}
	return ac, err
}

func (r *Repo) MarkUsed(ctx context.Context, id string, usedAt time.Time) error {
	err := r.primary.MarkUsed(ctx, id, usedAt)
	if r.degrade("mark_used", err) {
		return r.secondary.MarkUsed(ctx, id, usedAt)
	}
	return err
}

func (r *Repo) List(ctx context.Context, f repository.ListFilter) ([]*model.ActivationCode, int64, error) {
	items, total, err := r.primary.List(ctx, f)
	if r.degrade("list", err) {
		return r.secondary.List(ctx, f)
	}
	return items, total, err
}

func (r *Repo) DeleteByID(ctx context.Context, id string) error {
	err := r.primary.DeleteByID(ctx, id)
	if r.degrade("delete", err) {
		return r.secondary.DeleteByID(ctx, id)
	}
	return err
}

func (r *Repo) DeleteStaleUnused(ctx context.Context, olderThan time.Time) ([]string, error) {
	ids, err := r.primary.DeleteStaleUnused(ctx, olderThan)
	if r.degrade("cleanup", err) {
		return r.secondary.DeleteStaleUnused(ctx, olderThan)
	}
	return ids, err
}

func (r *Repo) CountByStatus(ctx context.Context, now time.Time) (model.CodeCounts, error) {
	c, err := r.primary.CountByStatus(ctx, now)
	if r.degrade("count", err) {
		return r.secondary.CountByStatus(ctx, now)
	}
	return c, err
}
