// Package apperr classifies the outcomes the engine can surface to
// callers. Expected, recoverable-by-caller failures carry a code and a
// human-readable message; anything else is internal.
package apperr

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

type Code string

const (
	CodeValidation Code = "validation"
	CodeNotFound   Code = "not_found"
	CodeForbidden  Code = "forbidden"
	CodeConflict   Code = "conflict"
	CodeSignature  Code = "signature"
	CodeInternal   Code = "internal"
)

type Error struct {
	Code    Code
	Reason  string // optional machine-readable conflict reason
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s (%s): %s", e.Code, e.Reason, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func Validation(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) *Error {
	return &Error{Code: CodeForbidden, Message: fmt.Sprintf(format, args...)}
}

func Conflict(reason, format string, args ...any) *Error {
	return &Error{Code: CodeConflict, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func Signature(format string, args ...any) *Error {
	return &Error{Code: CodeSignature, Message: fmt.Sprintf(format, args...)}
}

func Internal(cause error, format string, args ...any) *Error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...), cause: cause}
}

// Conflict reasons used across services.
const (
	ReasonBidTooLow         = "bid_too_low"
	ReasonInvalidTransition = "invalid_transition"
	ReasonAlreadyDisputed   = "already_disputed"
	ReasonAlreadyResolved   = "already_resolved"
	ReasonAlreadyFinished   = "already_finished"
	ReasonListingReserved   = "listing_reserved"
)

// From extracts the classification from err, treating unclassified
// errors as internal.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Code: CodeInternal, Message: "internal error", cause: err}
}

// IsCode reports whether err carries the given classification.
func IsCode(err error, code Code) bool {
	return From(err).Code == code
}

// HTTPStatus maps a classification to the status the API layer returns.
// The payment webhook handler deliberately bypasses this mapping: the
// gateway must never see a retryable status for terminal no-ops.
func HTTPStatus(err error) int {
	switch From(err).Code {
	case CodeValidation:
		return fiber.StatusBadRequest
	case CodeNotFound:
		return fiber.StatusNotFound
	case CodeForbidden:
		return fiber.StatusForbidden
	case CodeConflict:
		return fiber.StatusConflict
	case CodeSignature:
		return fiber.StatusUnauthorized
	default:
		return fiber.StatusInternalServerError
	}
}
