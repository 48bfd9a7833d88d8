package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"activation-platform/internal/domain"
	"activation-platform/internal/domain/model"
	"activation-platform/internal/domain/ports/repository"
	"activation-platform/internal/infra/logging"
	"activation-platform/internal/infra/metrics"
)

// Compile-time check
var _ ActivationCodeUseCase = (*activationCodeUC)(nil)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
	MaxBatchSize     = 100

	DefaultCleanupMaxAge = 5 * time.Minute
	maxTTL               = 100 * 365 * 24 * time.Hour
)

type ActivationCodeUseCase interface {
	Create(ctx context.Context, in CreateCodeInput) (*model.ActivationCode, error)
	// CreateBatch creates count codes sharing the same input. On failure it
	// returns the codes created so far together with the error.
	CreateBatch(ctx context.Context, in CreateCodeInput, count int) ([]*model.ActivationCode, error)
	// VerifyAndConsume redeems code exactly once.
	VerifyAndConsume(ctx context.Context, code string) (*Redemption, error)
	Get(ctx context.Context, id string) (*model.ActivationCode, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, in ListCodesInput) (*CodePage, error)
	Stats(ctx context.Context) (model.CodeStats, error)
	// Cleanup deletes unused codes created more than maxAge ago.
	Cleanup(ctx context.Context, maxAge time.Duration) (int64, error)
}

type CreateCodeInput struct {
	TTL         time.Duration
	Metadata    map[string]any
	ProductInfo *model.ProductInfo
}

type ListCodesInput struct {
	Status string
	Page   int
	Limit  int
}

type CodePage struct {
	Items      []*model.ActivationCode
	Page       int
	Limit      int
	Total      int64
	TotalPages int
}

// Redemption is returned to the client that successfully consumed a code.
type Redemption struct {
	ID          string
	Code        string
	ProductInfo *model.ProductInfo
	Metadata    map[string]any
	ActivatedAt time.Time
}

type ActivationCodeOptions struct {
	// CleanupOnCreate runs Cleanup(CleanupMaxAge) before every create.
	CleanupOnCreate bool
	CleanupMaxAge   time.Duration
	// Dev disables code redaction in logs.
	Dev bool
}

type activationCodeUC struct {
	repo repository.ActivationCodeRepository
	opts ActivationCodeOptions
	now  func() time.Time

	log *zerolog.Logger
}

func NewActivationCodeUseCase(repo repository.ActivationCodeRepository, opts ActivationCodeOptions, logger *zerolog.Logger) *activationCodeUC {
	if opts.CleanupMaxAge <= 0 {
		opts.CleanupMaxAge = DefaultCleanupMaxAge
	}
	l := logger.With().Str("component", "activation_code_uc").Logger()
	return &activationCodeUC{
		repo: repo,
		opts: opts,
		now:  time.Now,
		log:  &l,
	}
}

// WithClock replaces the time source. Intended for tests and tooling.
func (u *activationCodeUC) WithClock(now func() time.Time) *activationCodeUC {
	u.now = now
	return u
}

func (u *activationCodeUC) Create(ctx context.Context, in CreateCodeInput) (*model.ActivationCode, error) {
	start := time.Now()
	defer func() { metrics.ObserveOp("create", msSince(start)) }()
	log := logging.With(ctx, u.log)

	if in.TTL > maxTTL {
		return nil, domain.NewValidationError("ttl", "must not exceed 100 years")
	}

	if u.opts.CleanupOnCreate {
		if n, err := u.cleanup(ctx, u.opts.CleanupMaxAge, "create"); err != nil {
			log.Warn().Err(err).Msg("opportunistic cleanup failed")
		} else if n > 0 {
			log.Debug().Int64("deleted", n).Msg("opportunistic cleanup removed stale codes")
		}
	}

	return u.createOne(ctx, in, log)
}

func (u *activationCodeUC) CreateBatch(ctx context.Context, in CreateCodeInput, count int) ([]*model.ActivationCode, error) {
	if count < 1 || count > MaxBatchSize {
		return nil, domain.NewValidationError("count", fmt.Sprintf("must be between 1 and %d", MaxBatchSize))
	}
	// Cleanup runs once per batch, with the first code.
	first, err := u.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	out := make([]*model.ActivationCode, 0, count)
	out = append(out, first)

	log := logging.With(ctx, u.log)
	for len(out) < count {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		c, err := u.createOne(ctx, in, log)
		if err != nil {
			return out, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (u *activationCodeUC) createOne(ctx context.Context, in CreateCodeInput, log *zerolog.Logger) (*model.ActivationCode, error) {
	now := u.clock()
	code, err := generateActivationCode(now)
	if err != nil {
		return nil, fmt.Errorf("generate activation code: %w", err)
	}

	ac := &model.ActivationCode{
		ID:          ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Code:        code,
		CreatedAt:   now,
		ExpiresAt:   now.Add(in.TTL),
		Metadata:    in.Metadata,
		ProductInfo: in.ProductInfo,
	}
	if err := u.repo.Insert(ctx, ac); err != nil {
		log.Error().Err(err).Str("code", logging.Redact(code, u.opts.Dev)).Msg("insert activation code")
		return nil, err
	}

	metrics.IncCodesCreated(1)
	log.Info().
		Str("id", ac.ID).
		Str("code", logging.Redact(code, u.opts.Dev)).
		Time("expires_at", ac.ExpiresAt).
		Msg("activation code created")
	return ac, nil
}

func (u *activationCodeUC) VerifyAndConsume(ctx context.Context, raw string) (*Redemption, error) {
	start := time.Now()
	defer func() { metrics.ObserveOp("verify", msSince(start)) }()
	log := logging.With(ctx, u.log)

	code := normalizeCode(raw)
	if code == "" {
		metrics.IncVerification("invalid")
		return nil, domain.NewValidationError("code", "is required")
	}
	log = withCode(log, code, u.opts.Dev)

	ac, err := u.repo.FindByCode(ctx, code)
	if err != nil {
		u.recordVerification(log, err)
		return nil, err
	}

	now := u.clock()
	if err := rejectUnconsumable(ac, now); err != nil {
		u.recordVerification(log, err)
		return nil, err
	}

	if err := u.repo.MarkUsed(ctx, ac.ID, now); err != nil {
		if errors.Is(err, domain.ErrCodeAlreadyUsed) {
			// Lost the conditional update; report why from the current row.
			err = u.classifyRejected(ctx, ac.ID, now)
		}
		u.recordVerification(log, err)
		return nil, err
	}

	metrics.IncVerification("consumed")
	log.Info().Str("id", ac.ID).Msg("activation code consumed")
	return &Redemption{
		ID:          ac.ID,
		Code:        ac.Code,
		ProductInfo: ac.ProductInfo,
		Metadata:    ac.Metadata,
		ActivatedAt: now,
	}, nil
}

// rejectUnconsumable returns the typed error for a used or expired code.
func rejectUnconsumable(ac *model.ActivationCode, now time.Time) error {
	if ac.IsUsed {
		e := &domain.AlreadyUsedError{Code: ac.Code}
		if ac.UsedAt != nil {
			e.UsedAt = *ac.UsedAt
		}
		return e
	}
	if ac.IsExpired(now) {
		return &domain.ExpiredError{Code: ac.Code, ExpiresAt: ac.ExpiresAt}
	}
	return nil
}

func (u *activationCodeUC) classifyRejected(ctx context.Context, id string, now time.Time) error {
	cur, err := u.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := rejectUnconsumable(cur, now); err != nil {
		return err
	}
	return domain.ErrCodeAlreadyUsed
}

func (u *activationCodeUC) recordVerification(log *zerolog.Logger, err error) {
	var (
		used    *domain.AlreadyUsedError
		expired *domain.ExpiredError
	)
	switch {
	case errors.As(err, &used):
		metrics.IncVerification("already_used")
		log.Info().Time("used_at", used.UsedAt).Msg("activation code already used")
	case errors.Is(err, domain.ErrCodeAlreadyUsed):
		metrics.IncVerification("already_used")
		log.Info().Msg("activation code already used")
	case errors.As(err, &expired):
		metrics.IncVerification("expired")
		log.Info().Time("expires_at", expired.ExpiresAt).Msg("activation code expired")
	case errors.Is(err, domain.ErrNotFound):
		metrics.IncVerification("not_found")
		log.Info().Msg("activation code not found")
	default:
		metrics.IncVerification("error")
		log.Error().Err(err).Msg("verify activation code")
	}
}

func (u *activationCodeUC) Get(ctx context.Context, id string) (*model.ActivationCode, error) {
	if id == "" {
		return nil, domain.NewValidationError("id", "is required")
	}
	return u.repo.FindByID(ctx, id)
}

func (u *activationCodeUC) Delete(ctx context.Context, id string) error {
	if id == "" {
		return domain.NewValidationError("id", "is required")
	}
	if err := u.repo.DeleteByID(ctx, id); err != nil {
		return err
	}
	logging.With(ctx, u.log).Info().Str("id", id).Msg("activation code deleted")
	return nil
}

func (u *activationCodeUC) List(ctx context.Context, in ListCodesInput) (*CodePage, error) {
	status, err := model.ParseStatusFilter(in.Status)
	if err != nil {
		return nil, domain.NewValidationError("status", "must be one of all, used, unused, expired, active")
	}
	page, limit := in.Page, in.Limit
	if page == 0 {
		page = 1
	}
	if limit == 0 {
		limit = DefaultPageLimit
	}
	if page < 1 {
		return nil, domain.NewValidationError("page", "must be at least 1")
	}
	if limit < 1 || limit > MaxPageLimit {
		return nil, domain.NewValidationError("limit", fmt.Sprintf("must be between 1 and %d", MaxPageLimit))
	}

	items, total, err := u.repo.List(ctx, repository.ListFilter{
		Status: status,
		Page:   page,
		Limit:  limit,
		Now:    u.clock(),
	})
	if err != nil {
		return nil, err
	}
	return &CodePage{
		Items:      items,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: int((total + int64(limit) - 1) / int64(limit)),
	}, nil
}

func (u *activationCodeUC) Stats(ctx context.Context) (model.CodeStats, error) {
	counts, err := u.repo.CountByStatus(ctx, u.clock())
	if err != nil {
		return model.CodeStats{}, err
	}
	return model.NewCodeStats(counts), nil
}

func (u *activationCodeUC) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	defer logging.TraceDuration(u.log, "ActivationCodeUC.Cleanup")()
	if maxAge <= 0 {
		return 0, domain.NewValidationError("maxAge", "must be positive")
	}
	n, err := u.cleanup(ctx, maxAge, "manual")
	if err != nil {
		return 0, err
	}
	logging.With(ctx, u.log).Info().Dur("max_age", maxAge).Int64("deleted", n).Msg("cleanup completed")
	return n, nil
}

func (u *activationCodeUC) cleanup(ctx context.Context, maxAge time.Duration, trigger string) (int64, error) {
	ids, err := u.repo.DeleteStaleUnused(ctx, u.clock().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	n := int64(len(ids))
	metrics.AddCodesCleaned(trigger, n)
	return n, nil
}

// clock truncates to microseconds, the coarsest precision of the supported stores.
func (u *activationCodeUC) clock() time.Time {
	return u.now().UTC().Truncate(time.Microsecond)
}

func withCode(log *zerolog.Logger, code string, dev bool) *zerolog.Logger {
	l := log.With().Str("code", logging.Redact(code, dev)).Logger()
	return &l
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
