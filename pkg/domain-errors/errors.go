// Package domainerrors carries the error codes services hand to their callers.
//
// Stores return sentinel errors (see pkg/platform/sentinel); services translate
// them into a coded *Error so callers can branch on the code without knowing
// which backing store failed.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code classifies a domain error.
type Code string

const (
	// CodeNotFound: the referenced record does not exist. Not retried.
	CodeNotFound Code = "not_found"
	// CodeConflict: an idempotency or lifecycle invariant would be violated.
	CodeConflict Code = "conflict"
	// CodeValidation: malformed input rejected before any store mutation
	// (bad RDF terms, disallowed graph queries).
	CodeValidation Code = "validation_error"
	// CodeInvalidInput: a required argument is missing or out of range.
	CodeInvalidInput Code = "invalid_input"
	// CodeTimeout: a graph query or a row lock wait exceeded its bound. Retryable.
	CodeTimeout Code = "timeout"
	// CodeInvariantViolation is raised by models when a state change is illegal.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeInternal: unexpected failure in a backing store.
	CodeInternal Code = "internal_error"
)

// Error is a coded domain error. Err keeps the underlying cause for logging
// and errors.Is checks.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to err. Wrapping nil returns nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the outermost domain error in the chain, or
// CodeInternal when err carries no code.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether the outermost domain error in err's chain has code.
func HasCode(err error, code Code) bool {
	var de *Error
	if !errors.As(err, &de) {
		return false
	}
	return de.Code == code
}

// Is reports whether err is a domain error of any code.
func Is(err error) bool {
	var de *Error
	return errors.As(err, &de)
}

// ToHTTPStatus maps a code to the status an HTTP caller should answer with.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeInvariantViolation:
		return http.StatusConflict
	case CodeValidation, CodeInvalidInput:
		return http.StatusBadRequest
	case CodeTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
