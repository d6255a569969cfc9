// Package errs defines the machine-readable error taxonomy shared by the
// governance core. Callers match with errors.Is against the exported
// sentinels; only ConcurrencyConflict is ever retried.
package errs

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeValidation                   Code = "VALIDATION_ERROR"
	CodeInsufficientFunds            Code = "INSUFFICIENT_FUNDS"
	CodeDuplicateSignature           Code = "DUPLICATE_SIGNATURE"
	CodeUnauthorizedSigner           Code = "UNAUTHORIZED_SIGNER"
	CodeRequestExpired               Code = "REQUEST_EXPIRED"
	CodeDistributionMismatch         Code = "DISTRIBUTION_MISMATCH"
	CodeConcurrencyConflict          Code = "CONCURRENCY_CONFLICT"
	CodeExternalConfirmationMismatch Code = "EXTERNAL_CONFIRMATION_MISMATCH"
	CodeInvalidTransition            Code = "INVALID_TRANSITION"
	CodeNotFound                     Code = "NOT_FOUND"
)

// Error carries a code plus context. It wraps the sentinel for its code so
// errors.Is(err, ErrInsufficientFunds) matches wrapped instances.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels, one per code.
var (
	ErrValidation                   = &Error{Code: CodeValidation}
	ErrInsufficientFunds            = &Error{Code: CodeInsufficientFunds}
	ErrDuplicateSignature           = &Error{Code: CodeDuplicateSignature}
	ErrUnauthorizedSigner           = &Error{Code: CodeUnauthorizedSigner}
	ErrRequestExpired               = &Error{Code: CodeRequestExpired}
	ErrDistributionMismatch         = &Error{Code: CodeDistributionMismatch}
	ErrConcurrencyConflict          = &Error{Code: CodeConcurrencyConflict}
	ErrExternalConfirmationMismatch = &Error{Code: CodeExternalConfirmationMismatch}
	ErrInvalidTransition            = &Error{Code: CodeInvalidTransition}
	ErrNotFound                     = &Error{Code: CodeNotFound}
)

// New builds an error with the given code and formatted message.
func New(code Code, format string, args ...any) error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the code from err; unknown errors report an empty code.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Retryable reports whether err should be retried with backoff.
func Retryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
