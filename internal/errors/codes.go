// Package errors provides structured error handling for the sync pipeline.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (list store, source database)
//   - 3XX: Connectivity errors
//   - 4XX: Validation errors (jobs, payloads, queue names)
//   - 5XX: Pipeline errors (indexing, sync)
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates list store or source database errors.
	CategoryStorage Category = "STORAGE"
	// CategoryConnectivity indicates an unreachable dependency.
	CategoryConnectivity Category = "CONNECTIVITY"
	// CategoryValidation indicates invalid jobs, payloads or names.
	CategoryValidation Category = "VALIDATION"
	// CategoryPipeline indicates indexing and sync failures.
	CategoryPipeline Category = "PIPELINE"
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

	// Storage errors (200-299)
	ErrCodeStoreFailed  = "ERR_201_STORE_FAILED"
	ErrCodeSourceFailed = "ERR_202_SOURCE_FAILED"

	// Connectivity errors (300-399)
	ErrCodeNotConnected          = "ERR_301_NOT_CONNECTED"
	ErrCodeDependencyUnavailable = "ERR_302_DEPENDENCY_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidInput   = "ERR_401_INVALID_INPUT"
	ErrCodeUnknownEntity  = "ERR_402_UNKNOWN_ENTITY"
	ErrCodeUnknownQueue   = "ERR_403_UNKNOWN_QUEUE"
	ErrCodeInvalidPayload = "ERR_404_INVALID_PAYLOAD"

	// Pipeline errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeBulkIndexFailed = "ERR_502_BULK_INDEX_FAILED"
	ErrCodeAlreadySyncing  = "ERR_503_ALREADY_SYNCING"
	ErrCodeSearchFailed    = "ERR_504_SEARCH_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryPipeline
	}

	// "301" from "ERR_301_NOT_CONNECTED"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryConnectivity
	case '4':
		return CategoryValidation
	default:
		return CategoryPipeline
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeDependencyUnavailable, ErrCodeConfigInvalid:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNotConnected, ErrCodeAlreadySyncing, ErrCodeBulkIndexFailed:
		return true
	default:
		return false
	}
}

// isPermanentCode reports codes for which a job must never be retried.
func isPermanentCode(code string) bool {
	switch code {
	case ErrCodeUnknownEntity, ErrCodeInvalidPayload:
		return true
	default:
		return false
	}
}
