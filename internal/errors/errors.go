// Package errors defines the structured error taxonomy shared by the job engine.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeValidation indicates malformed input, an unsupported format, or
	// an oversized file. Never retryable.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeProviderUnavailable indicates no eligible provider was found
	// (rate-limited, circuit open, disabled).
	ErrCodeProviderUnavailable ErrorCode = "provider_unavailable"
	// ErrCodeProviderError indicates a provider call completed but signaled
	// failure (timeout, 4xx/5xx, malformed response). Retryable.
	ErrCodeProviderError ErrorCode = "provider_error"
	// ErrCodeRetryExhausted is the terminal classification once the retry
	// budget is spent with no further eligible provider.
	ErrCodeRetryExhausted ErrorCode = "retry_exhausted"
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeInvalidCancellation indicates a cancel request against an
	// already-terminal job.
	ErrCodeInvalidCancellation ErrorCode = "invalid_cancellation"
	// ErrCodeConflict indicates a conflict with existing data (e.g., unique constraint violation).
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeInternal indicates an internal error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific field that caused the error (optional, for validation errors)
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message}
}

// Validationf creates a new Validation error with formatted message.
func Validationf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

// ProviderUnavailable creates a new ProviderUnavailable error.
func ProviderUnavailable(message string) *AppError {
	return &AppError{Code: ErrCodeProviderUnavailable, Message: message}
}

// ProviderUnavailablef creates a new ProviderUnavailable error with formatted message.
func ProviderUnavailablef(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeProviderUnavailable, Message: fmt.Sprintf(format, args...)}
}

// ProviderError creates a new ProviderError error.
func ProviderError(message string) *AppError {
	return &AppError{Code: ErrCodeProviderError, Message: message}
}

// ProviderErrorf creates a new ProviderError error with formatted message.
func ProviderErrorf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeProviderError, Message: fmt.Sprintf(format, args...)}
}

// RetryExhausted creates a new RetryExhausted error.
func RetryExhausted(message string) *AppError {
	return &AppError{Code: ErrCodeRetryExhausted, Message: message}
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: message}
}

// NotFoundf creates a new NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// InvalidCancellation creates a new InvalidCancellation error.
func InvalidCancellation(message string) *AppError {
	return &AppError{Code: ErrCodeInvalidCancellation, Message: message}
}

// Conflict creates a new Conflict error.
func Conflict(message string) *AppError {
	return &AppError{Code: ErrCodeConflict, Message: message}
}

// Internal creates a new Internal error.
func Internal(message string) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: message}
}

// Internalf creates a new Internal error with formatted message.
func Internalf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool {
	return isCode(err, ErrCodeValidation)
}

// IsProviderUnavailable checks if an error is a ProviderUnavailable error.
func IsProviderUnavailable(err error) bool {
	return isCode(err, ErrCodeProviderUnavailable)
}

// IsProviderError checks if an error is a ProviderError error.
func IsProviderError(err error) bool {
	return isCode(err, ErrCodeProviderError)
}

// IsRetryExhausted checks if an error is a RetryExhausted error.
func IsRetryExhausted(err error) bool {
	return isCode(err, ErrCodeRetryExhausted)
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool {
	return isCode(err, ErrCodeNotFound)
}

// IsInvalidCancellation checks if an error is an InvalidCancellation error.
func IsInvalidCancellation(err error) bool {
	return isCode(err, ErrCodeInvalidCancellation)
}

// IsConflict checks if an error is a Conflict error.
func IsConflict(err error) bool {
	return isCode(err, ErrCodeConflict)
}

// IsInternal checks if an error is an Internal error.
func IsInternal(err error) bool {
	return isCode(err, ErrCodeInternal)
}

// IsTimeout checks if an error is a Timeout error.
func IsTimeout(err error) bool {
	return isCode(err, ErrCodeTimeout)
}

// IsCanceled checks if an error is a Canceled error.
func IsCanceled(err error) bool {
	return isCode(err, ErrCodeCanceled)
}

// Retryable reports whether the orchestrator may retry after this error.
// Validation errors and invalid cancellations are permanent; provider errors,
// availability gaps, and timeouts may succeed on a later attempt.
func Retryable(err error) bool {
	switch GetCode(err) {
	case ErrCodeProviderError, ErrCodeProviderUnavailable, ErrCodeTimeout:
		return true
	default:
		return false
	}
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
