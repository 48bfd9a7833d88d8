package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Activation code lifecycle errors
	ErrValidation      = errors.New("invalid argument")
	ErrNotFound        = errors.New("entity not found")
	ErrCodeAlreadyUsed = errors.New("activation code already used")
	ErrCodeExpired     = errors.New("activation code expired")
	ErrDuplicateCode   = errors.New("activation code already exists")
	ErrStorage         = errors.New("storage failure")
)

// ValidationError reports caller input that was rejected before touching storage.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// AlreadyUsedError carries the original redemption time of a consumed code.
type AlreadyUsedError struct {
	Code   string
	UsedAt time.Time
}

func (e *AlreadyUsedError) Error() string {
	return fmt.Sprintf("activation code already used at %s", e.UsedAt.UTC().Format(time.RFC3339))
}

func (e *AlreadyUsedError) Is(target error) bool { return target == ErrCodeAlreadyUsed }

// ExpiredError carries the expiry time of an unused code that can no longer be consumed.
type ExpiredError struct {
	Code      string
	ExpiresAt time.Time
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("activation code expired at %s", e.ExpiresAt.UTC().Format(time.RFC3339))
}

func (e *ExpiredError) Is(target error) bool { return target == ErrCodeExpired }

// StorageError wraps a failure reaching or using the persistence layer.
type StorageError struct {
	Op  string
	Err error
}

func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	if e.Err == nil {
		return "storage: " + e.Op
	}
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }
