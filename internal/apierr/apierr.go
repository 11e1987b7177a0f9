// Package apierr carries the domain error taxonomy from services to the HTTP layer.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a domain failure with the HTTP status it maps to and a stable snake_case code.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Code + ": " + e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("api error (%d)", e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func NotFound(code string) *Error     { return New(http.StatusNotFound, code, nil) }
func Validation(code string) *Error   { return New(http.StatusBadRequest, code, nil) }
func Conflict(code string) *Error     { return New(http.StatusConflict, code, nil) }
func Unauthorized(code string) *Error { return New(http.StatusUnauthorized, code, nil) }
func Forbidden(code string) *Error    { return New(http.StatusForbidden, code, nil) }

// Upstream wraps an infrastructure failure (database, mail transport, PDF renderer).
func Upstream(code string, err error) *Error {
	return New(http.StatusBadGateway, code, err)
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	e, ok := As(err)
	return ok && e.Code == code
}
