// Package apperr defines the error kinds shared by the domain services and
// their mapping onto HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")

	// ErrConcurrentUpdate reports a lost compare-and-swap on a versioned row.
	// It is a conflict and the caller may retry the operation.
	ErrConcurrentUpdate = fmt.Errorf("%w: row was modified concurrently, retry", ErrConflict)
)

// Error carries a user-facing message together with its kind.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

func newf(kind error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) error {
	return newf(ErrNotFound, format, args...)
}

func Conflict(format string, args ...interface{}) error {
	return newf(ErrConflict, format, args...)
}

func Validation(format string, args ...interface{}) error {
	return newf(ErrValidation, format, args...)
}

func Forbidden(format string, args ...interface{}) error {
	return newf(ErrForbidden, format, args...)
}

// IsRetryable reports whether the operation failed on a concurrent update.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentUpdate)
}

// StatusCode maps an error onto an HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// ToHTTP converts a service error into an echo HTTP error. Internal errors
// are not echoed back to the client.
func ToHTTP(err error) error {
	code := StatusCode(err)
	if code == http.StatusInternalServerError {
		return echo.NewHTTPError(code, "internal server error").SetInternal(err)
	}
	return echo.NewHTTPError(code, err.Error())
}
