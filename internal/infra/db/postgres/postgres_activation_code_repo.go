package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"

	"activation-platform/internal/domain"
	"activation-platform/internal/domain/model"
	"activation-platform/internal/domain/ports/repository"
)

// Ensure implementation satisfies the interface.
var _ repository.ActivationCodeRepository = (*activationCodeRepo)(nil)

const pgUniqueViolation = "23505"

type activationCodeRepo struct {
	db executor
}

func NewActivationCodeRepo(db executor) *activationCodeRepo {
	return &activationCodeRepo{db: db}
}

const selectColumns = `id, code, created_at, expires_at, is_used, used_at, metadata, product_info`

func (r *activationCodeRepo) Insert(ctx context.Context, c *model.ActivationCode) error {
	meta, info, err := encodeJSON(c)
	if err != nil {
		return domain.NewValidationError("metadata", err.Error())
	}

	const q = `
INSERT INTO activation_codes (id, code, created_at, expires_at, is_used, used_at, metadata, product_info)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`
	_, err = r.db.Exec(ctx, q, c.ID, c.Code, c.CreatedAt, c.ExpiresAt, c.IsUsed, c.UsedAt, meta, info)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.ErrDuplicateCode
		}
		return domain.NewStorageError("insert activation code", err)
	}
	return nil
}

func (r *activationCodeRepo) FindByCode(ctx context.Context, code string) (*model.ActivationCode, error) {
	q := `SELECT ` + selectColumns + ` FROM activation_codes WHERE code = $1;`
	return r.findOne(ctx, "find activation code by code", q, code)
}

func (r *activationCodeRepo) FindByID(ctx context.Context, id string) (*model.ActivationCode, error) {
	q := `SELECT ` + selectColumns + ` FROM activation_codes WHERE id = $1;`
	return r.findOne(ctx, "find activation code by id", q, id)
}

func (r *activationCodeRepo) findOne(ctx context.Context, op, q string, arg string) (*model.ActivationCode, error) {
	c, err := scanCode(r.db.QueryRow(ctx, q, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.NewStorageError(op, err)
	}
	return c, nil
}

// MarkUsed is the single statement that flips is_used; row-level locking in
// Postgres makes concurrent callers for the same id serialize on it.
func (r *activationCodeRepo) MarkUsed(ctx context.Context, id string, usedAt time.Time) error {
	const q = `
UPDATE activation_codes
   SET is_used = TRUE, used_at = $2
 WHERE id = $1 AND is_used = FALSE AND expires_at > $2;
`
	tag, err := r.db.Exec(ctx, q, id, usedAt)
	if err != nil {
		return domain.NewStorageError("mark activation code used", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCodeAlreadyUsed
	}
	return nil
}

// statusPredicate returns a WHERE fragment whose first placeholder is $start.
func statusPredicate(f model.StatusFilter, now time.Time, start int) (string, []interface{}) {
	switch f {
	case model.FilterUsed:
		return "is_used = TRUE", nil
	case model.FilterUnused:
		return "is_used = FALSE", nil
	case model.FilterExpired:
		return fmt.Sprintf("is_used = FALSE AND expires_at <= $%d", start), []interface{}{now}
	case model.FilterActive:
		return fmt.Sprintf("is_used = FALSE AND expires_at > $%d", start), []interface{}{now}
	default:
		return "TRUE", nil
	}
}

func (r *activationCodeRepo) List(ctx context.Context, f repository.ListFilter) ([]*model.ActivationCode, int64, error) {
	where, args := statusPredicate(f.Status, f.Now, 1)

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM activation_codes WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, domain.NewStorageError("count activation codes", err)
	}

	n := len(args)
	q := fmt.Sprintf(`
SELECT %s
  FROM activation_codes
 WHERE %s
 ORDER BY created_at DESC, id DESC
 LIMIT $%d OFFSET $%d;
`, selectColumns, where, n+1, n+2)
	rows, err := r.db.Query(ctx, q, append(args, f.Limit, f.Offset())...)
	if err != nil {
		return nil, 0, domain.NewStorageError("list activation codes", err)
	}
	defer rows.Close()

	out := make([]*model.ActivationCode, 0, f.Limit)
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, 0, domain.NewStorageError("scan activation code", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, domain.NewStorageError("list activation codes", err)
	}
	return out, total, nil
}

func (r *activationCodeRepo) DeleteByID(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM activation_codes WHERE id = $1;`, id)
	if err != nil {
		return domain.NewStorageError("delete activation code", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *activationCodeRepo) DeleteStaleUnused(ctx context.Context, olderThan time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx, `DELETE FROM activation_codes WHERE is_used = FALSE AND created_at < $1 RETURNING id;`, olderThan)
	if err != nil {
		return nil, domain.NewStorageError("delete stale activation codes", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, domain.NewStorageError("delete stale activation codes", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("delete stale activation codes", err)
	}
	return ids, nil
}

func (r *activationCodeRepo) CountByStatus(ctx context.Context, now time.Time) (model.CodeCounts, error) {
	const q = `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE is_used),
       COUNT(*) FILTER (WHERE NOT is_used AND expires_at <= $1),
       COUNT(*) FILTER (WHERE NOT is_used AND expires_at > $1)
  FROM activation_codes;
`
	var c model.CodeCounts
	if err := r.db.QueryRow(ctx, q, now).Scan(&c.Total, &c.Used, &c.Expired, &c.Active); err != nil {
		return model.CodeCounts{}, domain.NewStorageError("count activation codes by status", err)
	}
	return c, nil
}

func scanCode(row pgx.Row) (*model.ActivationCode, error) {
	var (
		c          model.ActivationCode
		usedAt     *time.Time
		meta, info []byte
	)
	if err := row.Scan(&c.ID, &c.Code, &c.CreatedAt, &c.ExpiresAt, &c.IsUsed, &usedAt, &meta, &info); err != nil {
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.ExpiresAt = c.ExpiresAt.UTC()
	if usedAt != nil {
		t := usedAt.UTC()
		c.UsedAt = &t
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &c.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if len(info) > 0 {
		c.ProductInfo = &model.ProductInfo{}
		if err := json.Unmarshal(info, c.ProductInfo); err != nil {
			return nil, fmt.Errorf("decode product info: %w", err)
		}
	}
	return &c, nil
}

func encodeJSON(c *model.ActivationCode) (meta, info []byte, err error) {
	if c.Metadata != nil {
		if meta, err = json.Marshal(c.Metadata); err != nil {
			return nil, nil, err
		}
	}
	if c.ProductInfo != nil {
		if info, err = json.Marshal(c.ProductInfo); err != nil {
			return nil, nil, err
		}
	}
	return meta, info, nil
}
