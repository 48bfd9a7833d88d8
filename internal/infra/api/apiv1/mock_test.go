//go:build !integration

package apiv1_test

import (
	"context"
	"time"

	"activation-platform/internal/domain/model"
	"activation-platform/internal/usecase"
)

// mockUC implements usecase.ActivationCodeUseCase with overridable funcs.
type mockUC struct {
	CreateFunc      func(ctx context.Context, in usecase.CreateCodeInput) (*model.ActivationCode, error)
	CreateBatchFunc func(ctx context.Context, in usecase.CreateCodeInput, count int) ([]*model.ActivationCode, error)
	VerifyFunc      func(ctx context.Context, code string) (*usecase.Redemption, error)
	GetFunc         func(ctx context.Context, id string) (*model.ActivationCode, error)
	DeleteFunc      func(ctx context.Context, id string) error
	ListFunc        func(ctx context.Context, in usecase.ListCodesInput) (*usecase.CodePage, error)
	StatsFunc       func(ctx context.Context) (model.CodeStats, error)
	CleanupFunc     func(ctx context.Context, maxAge time.Duration) (int64, error)

	lastCreate  usecase.CreateCodeInput
	lastList    usecase.ListCodesInput
	lastCleanup time.Duration
}

var _ usecase.ActivationCodeUseCase = (*mockUC)(nil)

func (m *mockUC) Create(ctx context.Context, in usecase.CreateCodeInput) (*model.ActivationCode, error) {
	m.lastCreate = in
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, in)
	}
	return sampleCode(in.TTL), nil
}

func (m *mockUC) CreateBatch(ctx context.Context, in usecase.CreateCodeInput, count int) ([]*model.ActivationCode, error) {
	m.lastCreate = in
	if m.CreateBatchFunc != nil {
		return m.CreateBatchFunc(ctx, in, count)
	}
	out := make([]*model.ActivationCode, count)
	for i := range out {
		out[i] = sampleCode(in.TTL)
	}
	return out, nil
}

func (m *mockUC) VerifyAndConsume(ctx context.Context, code string) (*usecase.Redemption, error) {
	return m.VerifyFunc(ctx, code)
}

func (m *mockUC) Get(ctx context.Context, id string) (*model.ActivationCode, error) {
	return m.GetFunc(ctx, id)
}

func (m *mockUC) Delete(ctx context.Context, id string) error {
	return m.DeleteFunc(ctx, id)
}

func (m *mockUC) List(ctx context.Context, in usecase.ListCodesInput) (*usecase.CodePage, error) {
	m.lastList = in
	return m.ListFunc(ctx, in)
}

func (m *mockUC) Stats(ctx context.Context) (model.CodeStats, error) {
	return m.StatsFunc(ctx)
}

func (m *mockUC) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	m.lastCleanup = maxAge
	if m.CleanupFunc != nil {
		return m.CleanupFunc(ctx, maxAge)
	}
	return 0, nil
}

var testNow = time.Now().UTC().Truncate(time.Second)

func sampleCode(ttl time.Duration) *model.ActivationCode {
	return &model.ActivationCode{
		ID:          "01HZY5Q3J8R6K7M2N4P5Q6R7S8",
		Code:        "LZ1ABC-Q8W2E4-9F3A1C7D",
		CreatedAt:   testNow,
		ExpiresAt:   testNow.Add(ttl),
		ProductInfo: &model.ProductInfo{Name: "Editor", Version: "2.0", Features: []string{"sync"}},
	}
}
