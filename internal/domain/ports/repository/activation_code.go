package repository

import (
	"context"
	"time"

	"activation-platform/internal/domain/model"
)

// ListFilter selects one page of codes. Now anchors the derived status.
type ListFilter struct {
	Status model.StatusFilter
	Page   int // 1-based
	Limit  int
	Now    time.Time
}

func (f ListFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// ActivationCodeRepository is the port for activation code storage.
// Implementations return domain.ErrNotFound, domain.ErrDuplicateCode,
// domain.ErrCodeAlreadyUsed or a *domain.StorageError.
type ActivationCodeRepository interface {
	Insert(ctx context.Context, code *model.ActivationCode) error
	FindByCode(ctx context.Context, code string) (*model.ActivationCode, error)
	FindByID(ctx context.Context, id string) (*model.ActivationCode, error)

	// MarkUsed flips is_used for an unused, unexpired row in one conditional
	// statement. It returns domain.ErrCodeAlreadyUsed when no row qualified.
	MarkUsed(ctx context.Context, id string, usedAt time.Time) error

	// List returns the requested page ordered newest first and the total
	// number of rows matching the filter.
	List(ctx context.Context, f ListFilter) ([]*model.ActivationCode, int64, error)
	DeleteByID(ctx context.Context, id string) error

	// DeleteStaleUnused removes unused codes created before olderThan and
	// returns the ids of the removed rows.
	DeleteStaleUnused(ctx context.Context, olderThan time.Time) ([]string, error)
	CountByStatus(ctx context.Context, now time.Time) (model.CodeCounts, error)
}
