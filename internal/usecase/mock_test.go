//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"activation-platform/internal/domain"
	"activation-platform/internal/domain/model"
	"activation-platform/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// fakeClock is a settable time source shared by a test and the use case.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// ---- MockActivationCodeRepo ----

// MockActivationCodeRepo is an in-memory store honouring the port contract,
// including the conditional update in MarkUsed.
type MockActivationCodeRepo struct {
	mu     sync.Mutex
	byID   map[string]*model.ActivationCode
	byCode map[string]string

	InsertFunc            func(ctx context.Context, c *model.ActivationCode) error
	MarkUsedFunc          func(ctx context.Context, id string, usedAt time.Time) error
	DeleteStaleUnusedFunc func(ctx context.Context, olderThan time.Time) ([]string, error)
	CountByStatusFunc     func(ctx context.Context, now time.Time) (model.CodeCounts, error)

	MarkUsedCalls int
}

var _ repository.ActivationCodeRepository = (*MockActivationCodeRepo)(nil)

func NewMockActivationCodeRepo() *MockActivationCodeRepo {
	return &MockActivationCodeRepo{
		byID:   make(map[string]*model.ActivationCode),
		byCode: make(map[string]string),
	}
}

func clone(c *model.ActivationCode) *model.ActivationCode {
	cp := *c
	if c.UsedAt != nil {
		t := *c.UsedAt
		cp.UsedAt = &t
	}
	return &cp
}

func (r *MockActivationCodeRepo) Insert(ctx context.Context, c *model.ActivationCode) error {
	if r.InsertFunc != nil {
		return r.InsertFunc(ctx, c)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byCode[c.Code]; ok {
		return domain.ErrDuplicateCode
	}
	r.byID[c.ID] = clone(c)
	r.byCode[c.Code] = c.ID
	return nil
}

func (r *MockActivationCodeRepo) FindByCode(ctx context.Context, code string) (*model.ActivationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byCode[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clone(r.byID[id]), nil
}

func (r *MockActivationCodeRepo) FindByID(ctx context.Context, id string) (*model.ActivationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clone(c), nil
}

func (r *MockActivationCodeRepo) MarkUsed(ctx context.Context, id string, usedAt time.Time) error {
	r.mu.Lock()
	r.MarkUsedCalls++
	r.mu.Unlock()
	if r.MarkUsedFunc != nil {
		return r.MarkUsedFunc(ctx, id, usedAt)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok || c.IsUsed || !usedAt.Before(c.ExpiresAt) {
		return domain.ErrCodeAlreadyUsed
	}
	c.IsUsed = true
	t := usedAt
	c.UsedAt = &t
	return nil
}

func (r *MockActivationCodeRepo) List(ctx context.Context, f repository.ListFilter) ([]*model.ActivationCode, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*model.ActivationCode
	for _, c := range r.byID {
		if f.Status.Matches(c, f.Now) {
			all = append(all, clone(c))
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	total := int64(len(all))
	off := f.Offset()
	if off >= len(all) {
		return []*model.ActivationCode{}, total, nil
	}
	end := off + f.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[off:end], total, nil
}

func (r *MockActivationCodeRepo) DeleteByID(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	delete(r.byCode, c.Code)
	delete(r.byID, id)
	return nil
}

func (r *MockActivationCodeRepo) DeleteStaleUnused(ctx context.Context, olderThan time.Time) ([]string, error) {
	if r.DeleteStaleUnusedFunc != nil {
		return r.DeleteStaleUnusedFunc(ctx, olderThan)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, c := range r.byID {
		if !c.IsUsed && c.CreatedAt.Before(olderThan) {
			delete(r.byCode, c.Code)
			delete(r.byID, id)
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *MockActivationCodeRepo) CountByStatus(ctx context.Context, now time.Time) (model.CodeCounts, error) {
	if r.CountByStatusFunc != nil {
		return r.CountByStatusFunc(ctx, now)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var cc model.CodeCounts
	for _, c := range r.byID {
		cc.Total++
		switch c.Status(now) {
		case model.CodeStatusUsed:
			cc.Used++
		case model.CodeStatusExpired:
			cc.Expired++
		default:
			cc.Active++
		}
	}
	return cc, nil
}

func (r *MockActivationCodeRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
