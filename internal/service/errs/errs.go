// Package errs holds the domain error taxonomy surfaced to API callers.
package errs

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error code.
type Code string

const (
	CodeOrderNotFound       Code = "ORDER_NOT_FOUND"
	CodeInvalidOrderState   Code = "INVALID_ORDER_STATE"
	CodeValidationFailed    Code = "VALIDATION_FAILED"
	CodeUpstreamUnavailable Code = "UPSTREAM_UNAVAILABLE"
)

// Error is a typed domain error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrOrderNotFound       = &Error{Code: CodeOrderNotFound}
	ErrInvalidOrderState   = &Error{Code: CodeInvalidOrderState}
	ErrValidationFailed    = &Error{Code: CodeValidationFailed}
	ErrUpstreamUnavailable = &Error{Code: CodeUpstreamUnavailable}
)

func OrderNotFound(id string) error {
	return &Error{Code: CodeOrderNotFound, Message: fmt.Sprintf("order %s not found", id)}
}

// InvalidOrderState names both the current status and the attempted action.
func InvalidOrderState(current, action string) error {
	return &Error{
		Code:    CodeInvalidOrderState,
		Message: fmt.Sprintf("cannot %s order in status %s", action, current),
	}
}

func Validation(format string, args ...any) error {
	return &Error{Code: CodeValidationFailed, Message: fmt.Sprintf(format, args...)}
}

func UpstreamUnavailable(service string, err error) error {
	return &Error{Code: CodeUpstreamUnavailable, Message: service + " is unavailable", Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return ""
}

// IsDomain reports whether err is a permanent domain rejection that retrying
// cannot fix.
func IsDomain(err error) bool {
	switch CodeOf(err) {
	case CodeOrderNotFound, CodeInvalidOrderState, CodeValidationFailed:
		return true
	}

	return false
}
