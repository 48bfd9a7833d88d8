package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"activation-platform/internal/domain"
	"activation-platform/internal/domain/model"
	"activation-platform/internal/domain/ports/repository"
)

// Compile-time check
var _ repository.ActivationCodeRepository = (*ActivationCodeRepo)(nil)

// ActivationCodeRepo stores timestamps as unix microseconds so range
// predicates compare integers.
type ActivationCodeRepo struct {
	db *sql.DB
}

func NewActivationCodeRepo(db *sql.DB) *ActivationCodeRepo {
	return &ActivationCodeRepo{db: db}
}

const selectColumns = `id, code, created_at, expires_at, is_used, used_at, metadata, product_info`

func (r *ActivationCodeRepo) Insert(ctx context.Context, c *model.ActivationCode) error {
	meta, info, err := encodeJSON(c)
	if err != nil {
		return domain.NewValidationError("metadata", err.Error())
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO activation_codes (id, code, created_at, expires_at, is_used, used_at, metadata, product_info)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Code, toMicros(c.CreatedAt), toMicros(c.ExpiresAt), c.IsUsed, nullMicros(c.UsedAt), meta, info,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateCode
		}
		return domain.NewStorageError("insert activation code", err)
	}
	return nil
}

func (r *ActivationCodeRepo) FindByCode(ctx context.Context, code string) (*model.ActivationCode, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM activation_codes WHERE code = ?`, code)
	return scanOne(row, "find activation code by code")
}

func (r *ActivationCodeRepo) FindByID(ctx context.Context, id string) (*model.ActivationCode, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM activation_codes WHERE id = ?`, id)
	return scanOne(row, "find activation code by id")
}

func (r *ActivationCodeRepo) MarkUsed(ctx context.Context, id string, usedAt time.Time) error {
	at := toMicros(usedAt)
	res, err := r.db.ExecContext(ctx, `
		UPDATE activation_codes
		   SET is_used = 1, used_at = ?
		 WHERE id = ? AND is_used = 0 AND expires_at > ?`,
		at, id, at,
	)
	if err != nil {
		return domain.NewStorageError("mark activation code used", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.NewStorageError("mark activation code used", err)
	}
	if n == 0 {
		return domain.ErrCodeAlreadyUsed
	}
	return nil
}

func statusPredicate(f model.StatusFilter, now time.Time) (string, []any) {
	switch f {
	case model.FilterUsed:
		return "is_used = 1", nil
	case model.FilterUnused:
		return "is_used = 0", nil
	case model.FilterExpired:
		return "is_used = 0 AND expires_at <= ?", []any{toMicros(now)}
	case model.FilterActive:
		return "is_used = 0 AND expires_at > ?", []any{toMicros(now)}
	default:
		return "1 = 1", nil
	}
}

func (r *ActivationCodeRepo) List(ctx context.Context, f repository.ListFilter) ([]*model.ActivationCode, int64, error) {
	where, args := statusPredicate(f.Status, f.Now)

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activation_codes WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, domain.NewStorageError("count activation codes", err)
	}

	pageArgs := append(append([]any{}, args...), f.Limit, f.Offset())
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		  FROM activation_codes
		 WHERE `+where+`
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`, pageArgs...)
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

func (r *ActivationCodeRepo) DeleteByID(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM activation_codes WHERE id = ?`, id)
	if err != nil {
		return domain.NewStorageError("delete activation code", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.NewStorageError("delete activation code", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ActivationCodeRepo) DeleteStaleUnused(ctx context.Context, olderThan time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `DELETE FROM activation_codes WHERE is_used = 0 AND created_at < ? RETURNING id`, toMicros(olderThan))
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

func (r *ActivationCodeRepo) CountByStatus(ctx context.Context, now time.Time) (model.CodeCounts, error) {
	at := toMicros(now)
	var c model.CodeCounts
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN is_used = 1 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN is_used = 0 AND expires_at <= ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN is_used = 0 AND expires_at > ? THEN 1 ELSE 0 END), 0)
		  FROM activation_codes`, at, at,
	).Scan(&c.Total, &c.Used, &c.Expired, &c.Active)
	if err != nil {
		return model.CodeCounts{}, domain.NewStorageError("count activation codes by status", err)
	}
	return c, nil
}

// --- helpers ---

type scanner interface {
	Scan(dest ...any) error
}

func scanOne(row *sql.Row, op string) (*model.ActivationCode, error) {
	c, err := scanCode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.NewStorageError(op, err)
	}
	return c, nil
}

func scanCode(s scanner) (*model.ActivationCode, error) {
	var (
		c                 model.ActivationCode
		created, expires  int64
		usedAt            sql.NullInt64
		meta, productInfo sql.NullString
	)
	if err := s.Scan(&c.ID, &c.Code, &created, &expires, &c.IsUsed, &usedAt, &meta, &productInfo); err != nil {
		return nil, err
	}
	c.CreatedAt = fromMicros(created)
	c.ExpiresAt = fromMicros(expires)
	if usedAt.Valid {
		t := fromMicros(usedAt.Int64)
		c.UsedAt = &t
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &c.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if productInfo.Valid && productInfo.String != "" {
		c.ProductInfo = &model.ProductInfo{}
		if err := json.Unmarshal([]byte(productInfo.String), c.ProductInfo); err != nil {
			return nil, fmt.Errorf("decode product info: %w", err)
		}
	}
	return &c, nil
}

func encodeJSON(c *model.ActivationCode) (meta, info sql.NullString, err error) {
	if c.Metadata != nil {
		b, err := json.Marshal(c.Metadata)
		if err != nil {
			return meta, info, err
		}
		meta = sql.NullString{String: string(b), Valid: true}
	}
	if c.ProductInfo != nil {
		b, err := json.Marshal(c.ProductInfo)
		if err != nil {
			return meta, info, err
		}
		info = sql.NullString{String: string(b), Valid: true}
	}
	return meta, info, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
		// without extended result codes only the primary code is reported
		return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
	}
	return false
}

func toMicros(t time.Time) int64 { return t.UnixMicro() }

func fromMicros(us int64) time.Time { return time.UnixMicro(us).UTC() }

func nullMicros(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMicro(), Valid: true}
}
