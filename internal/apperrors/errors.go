// Package apperrors defines the error taxonomy shared by every layer.
//
// Errors are classified two ways: by retry semantics (RetryableError vs
// FatalError, consumed by the JetStream ack policy) and by kind (sentinels
// below, consumed by the HTTP layer and callers using errors.Is).
package apperrors

import (
	"errors"
	"fmt"
)

// RetryableError marks a failure that may succeed on a later attempt.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable: %v", e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryable wraps err with a formatted message as a RetryableError.
func NewRetryable(err error, message string, args ...interface{}) error {
	return &RetryableError{Err: wrap(err, message, args...)}
}

// FatalError marks a failure that retrying will not fix.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %v", e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// NewFatal wraps err with a formatted message as a FatalError.
func NewFatal(err error, message string, args ...interface{}) error {
	return &FatalError{Err: wrap(err, message, args...)}
}

func wrap(err error, message string, args ...interface{}) error {
	all := make([]interface{}, 0, len(args)+1)
	all = append(all, args...)
	all = append(all, err)
	return fmt.Errorf(message+": %w", all...)
}

var (
	ErrNotFound     = errors.New("resource not found")
	ErrValidation   = errors.New("validation failed")
	ErrDatabase     = errors.New("database error")
	ErrNATS         = errors.New("nats communication error")
	ErrUnauthorized = errors.New("unauthorized access")
	ErrDuplicate    = errors.New("duplicate resource")
	ErrConflict     = errors.New("resource conflict")
	ErrBadRequest   = errors.New("bad request")
	ErrTimeout      = errors.New("operation timeout")
	ErrRateLimited  = errors.New("rate limited")

	// ErrConfiguration: a required credential or setting is missing.
	ErrConfiguration = errors.New("missing configuration")
	// ErrIntegration: an external provider failed or rejected the call.
	ErrIntegration = errors.New("integration failure")
	// ErrInvalidTransition: a status change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrQuotaExhausted: the tenant has no interactions left.
	ErrQuotaExhausted = errors.New("interaction quota exhausted")
)

// IsRetryable reports whether err is or wraps a RetryableError.
func IsRetryable(err error) bool {
	var target *RetryableError
	return errors.As(err, &target)
}

// IsFatal reports whether err is or wraps a FatalError.
func IsFatal(err error) bool {
	var target *FatalError
	return errors.As(err, &target)
}

func IsNotFoundError(err error) bool          { return errors.Is(err, ErrNotFound) }
func IsValidationError(err error) bool        { return errors.Is(err, ErrValidation) }
func IsDatabaseError(err error) bool          { return errors.Is(err, ErrDatabase) }
func IsNATSError(err error) bool              { return errors.Is(err, ErrNATS) }
func IsUnauthorizedError(err error) bool      { return errors.Is(err, ErrUnauthorized) }
func IsDuplicateError(err error) bool         { return errors.Is(err, ErrDuplicate) }
func IsConflictError(err error) bool          { return errors.Is(err, ErrConflict) }
func IsBadRequestError(err error) bool        { return errors.Is(err, ErrBadRequest) }
func IsTimeoutError(err error) bool           { return errors.Is(err, ErrTimeout) }
func IsRateLimitedError(err error) bool       { return errors.Is(err, ErrRateLimited) }
func IsConfigurationError(err error) bool     { return errors.Is(err, ErrConfiguration) }
func IsIntegrationError(err error) bool       { return errors.Is(err, ErrIntegration) }
func IsInvalidTransitionError(err error) bool { return errors.Is(err, ErrInvalidTransition) }
