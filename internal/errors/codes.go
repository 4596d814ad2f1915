// Package errors provides structured error handling for searchrelay.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 3XX: Backend errors (unreachable, timeout, unsupported capability)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryBackend indicates search backend errors.
	CategoryBackend Category = "BACKEND"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Backend errors (300-399)
	ErrCodeBackendUnavailable  = "ERR_301_BACKEND_UNAVAILABLE"
	ErrCodeBackendTimeout      = "ERR_302_BACKEND_TIMEOUT"
	ErrCodeExactUnsupported    = "ERR_303_EXACT_UNSUPPORTED"
	ErrCodeFeaturesUnavailable = "ERR_304_FEATURES_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidInput   = "ERR_401_INVALID_INPUT"
	ErrCodeQueryEmpty     = "ERR_402_QUERY_EMPTY"
	ErrCodeInvalidIntent  = "ERR_403_INVALID_INTENT"
	ErrCodeInvalidLimit   = "ERR_404_INVALID_LIMIT"
	ErrCodeInvalidDepMode = "ERR_405_INVALID_DEPENDENCY_MODE"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeSearchFailed = "ERR_502_SEARCH_FAILED"
	ErrCodeCacheFailed  = "ERR_503_CACHE_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '3':
		return CategoryBackend
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode derives severity from error code.
// Backend errors are warnings: the engine degrades locally rather than failing.
func severityFromCode(code string) Severity {
	switch categoryFromCode(code) {
	case CategoryBackend:
		return SeverityWarning
	case CategoryConfig:
		return SeverityFatal
	default:
		return SeverityError
	}
}

// isRetryableCode reports whether an operation failing with this code
// may be retried within the request deadline.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeBackendUnavailable, ErrCodeBackendTimeout:
		return true
	default:
		return false
	}
}
