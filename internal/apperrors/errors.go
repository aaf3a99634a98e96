package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// RetryableError marks a failure that may succeed on redelivery (store outage, broker hiccup).
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable: %v", e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryable wraps err as a RetryableError prefixed with a formatted message.
func NewRetryable(err error, message string, args ...interface{}) error {
	return &RetryableError{Err: wrapf(err, message, args...)}
}

// FatalError marks a failure that redelivery cannot fix, such as an invalid payload.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %v", e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// NewFatal wraps err as a FatalError prefixed with a formatted message.
func NewFatal(err error, message string, args ...interface{}) error {
	return &FatalError{Err: wrapf(err, message, args...)}
}

func wrapf(err error, message string, args ...interface{}) error {
	allArgs := append(append([]interface{}{}, args...), err)
	return fmt.Errorf(message+": %w", allArgs...)
}

// Sentinel errors shared by every layer. Storage, usecase and transport code
// wrap these with %w and callers check them with errors.Is.
var (
	// ErrNotFound indicates a requested resource was not found for the caller.
	ErrNotFound = errors.New("resource not found")
	// ErrValidation indicates input rejected by a schema rule.
	ErrValidation = errors.New("validation failed")
	// ErrDatabase indicates a store failure unrelated to the input.
	ErrDatabase = errors.New("database error")
	// ErrNATS indicates a NATS communication error.
	ErrNATS = errors.New("nats communication error")
	// ErrUnauthorized indicates a missing or unusable caller identity.
	ErrUnauthorized = errors.New("unauthorized access")
	// ErrDuplicate indicates a unique constraint conflict.
	ErrDuplicate = errors.New("duplicate resource")
	// ErrConflict indicates a general conflict state.
	ErrConflict = errors.New("resource conflict")
	// ErrBadRequest indicates a malformed request.
	ErrBadRequest = errors.New("bad request")
	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timeout")
	// ErrRateLimited indicates the caller exceeded a rate limit.
	ErrRateLimited = errors.New("rate limited")
)

// FieldError describes one rejected input field. It unwraps to ErrValidation.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrValidation.Error(), e.Field, e.Message)
}

func (e *FieldError) Unwrap() error {
	return ErrValidation
}

// NewFieldError builds a FieldError with a formatted message.
func NewFieldError(field, format string, args ...interface{}) error {
	return &FieldError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ValidationErrors collects several field errors from one request.
type ValidationErrors []*FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, fe := range v {
		parts = append(parts, fe.Field+" "+fe.Message)
	}
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), strings.Join(parts, "; "))
}

func (v ValidationErrors) Unwrap() error {
	return ErrValidation
}

// Fields returns the field messages keyed by field name.
func Fields(err error) map[string]string {
	out := map[string]string{}
	var many ValidationErrors
	if errors.As(err, &many) {
		for _, fe := range many {
			out[fe.Field] = fe.Message
		}
		return out
	}
	var one *FieldError
	if errors.As(err, &one) {
		out[one.Field] = one.Message
	}
	return out
}

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

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsDatabaseError(err error) bool {
	return errors.Is(err, ErrDatabase)
}

func IsNATSError(err error) bool {
	return errors.Is(err, ErrNATS)
}

func IsUnauthorizedError(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsBadRequestError(err error) bool {
	return errors.Is(err, ErrBadRequest)
}

func IsTimeoutError(err error) bool {
	return errors.Is(err, ErrTimeout)
}

func IsRateLimitedError(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
