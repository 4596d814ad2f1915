package errors

import (
	"fmt"
)

// RelayError is the structured error type for searchrelay.
// It provides rich context for error handling, logging, and diagnostics.
type RelayError struct {
	// Code is the unique error code (e.g., "ERR_401_INVALID_INPUT").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Backend, Validation, Internal).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried
	// within the request deadline.
	Retryable bool
}

// Error implements the error interface.
func (e *RelayError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *RelayError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with RelayError.
func (e *RelayError) Is(target error) bool {
	if t, ok := target.(*RelayError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *RelayError) WithDetail(key, value string) *RelayError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new RelayError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *RelayError {
	return &RelayError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a RelayError from an existing error.
// The error's message becomes the RelayError message.
func Wrap(code string, err error) *RelayError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Validation creates a validation error. Validation errors are surfaced
// to the caller immediately with a specific message.
func Validation(message string) *RelayError {
	return New(ErrCodeInvalidInput, message, nil)
}

// BackendUnavailable creates a backend-unreachable error.
// The engine recovers from these by local degradation; they are never
// surfaced as user-facing errors, only reflected in diagnostics.
func BackendUnavailable(message string, cause error) *RelayError {
	return New(ErrCodeBackendUnavailable, message, cause)
}

// Timeout creates a deadline-exceeded error. A request that times out
// aborts cleanly and returns an empty-with-diagnostic result.
func Timeout(message string, cause error) *RelayError {
	return New(ErrCodeBackendTimeout, message, cause)
}

// Internal creates an internal error.
func Internal(message string, cause error) *RelayError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if re, ok := err.(*RelayError); ok {
		return re.Retryable
	}
	return false
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	if re, ok := err.(*RelayError); ok {
		return re.Category == CategoryValidation
	}
	return false
}

// GetCode extracts the error code from a RelayError.
// Returns empty string if not a RelayError.
func GetCode(err error) string {
	if re, ok := err.(*RelayError); ok {
		return re.Code
	}
	return ""
}

// GetCategory extracts the category from a RelayError.
// Returns empty string if not a RelayError.
func GetCategory(err error) Category {
	if re, ok := err.(*RelayError); ok {
		return re.Category
	}
	return ""
}
