// Package apperrors defines the error kinds surfaced by the lineage core.
// Callers classify failures with errors.Is against the Err* sentinels.
package apperrors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind sentinels. An *Error wraps exactly one of them.
var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidState       = errors.New("invalid state")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrIntegrityViolation = errors.New("integrity violation")
	ErrInvalidInput       = errors.New("invalid input")
)

// PostgreSQL error codes we translate into kinds.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Error carries a kind plus a human readable message for the endpoint layer.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return newError(ErrNotFound, format, args...)
}

func Conflict(format string, args ...any) error {
	return newError(ErrConflict, format, args...)
}

func InvalidState(format string, args ...any) error {
	return newError(ErrInvalidState, format, args...)
}

func PermissionDenied(format string, args ...any) error {
	return newError(ErrPermissionDenied, format, args...)
}

func IntegrityViolation(format string, args ...any) error {
	return newError(ErrIntegrityViolation, format, args...)
}

func InvalidInput(format string, args ...any) error {
	return newError(ErrInvalidInput, format, args...)
}

// KindOf returns the kind sentinel of err, or nil when err is unclassified.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrNotFound,
		ErrConflict,
		ErrInvalidState,
		ErrPermissionDenied,
		ErrIntegrityViolation,
		ErrInvalidInput,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// FromPG classifies constraint violations raised by PostgreSQL.
// Errors that are not constraint violations are returned unchanged.
func FromPG(err error, what string) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		return &Error{Kind: ErrConflict, Msg: what + " already exists", Err: err}
	case pgForeignKeyViolation:
		return &Error{Kind: ErrIntegrityViolation, Msg: what + " references an unknown row", Err: err}
	}
	return err
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
