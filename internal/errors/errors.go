package errors

import (
	"errors"
	"fmt"
)

// SyncError is the structured error type used across the pipeline.
// It carries enough context to decide between retrying, failing a job
// permanently and surfacing the problem through health checks.
type SyncError struct {
	// Code is the unique error code (e.g., "ERR_301_NOT_CONNECTED").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable hint for the operator.
	Suggestion string
}

// Sentinel values for errors.Is checks. Matching is by code, so any
// SyncError carrying the same code satisfies errors.Is against these.
var (
	ErrNotConnected          = &SyncError{Code: ErrCodeNotConnected}
	ErrDependencyUnavailable = &SyncError{Code: ErrCodeDependencyUnavailable}
	ErrUnknownEntity         = &SyncError{Code: ErrCodeUnknownEntity}
	ErrUnknownQueue          = &SyncError{Code: ErrCodeUnknownQueue}
	ErrInvalidPayload        = &SyncError{Code: ErrCodeInvalidPayload}
	ErrInvalidInput          = &SyncError{Code: ErrCodeInvalidInput}
	ErrBulkIndexFailed       = &SyncError{Code: ErrCodeBulkIndexFailed}
	ErrAlreadySyncing        = &SyncError{Code: ErrCodeAlreadySyncing}
)

// Error implements the error interface.
func (e *SyncError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
func (e *SyncError) Is(target error) bool {
	if t, ok := target.(*SyncError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *SyncError) WithDetail(key, value string) *SyncError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the operator.
func (e *SyncError) WithSuggestion(suggestion string) *SyncError {
	e.Suggestion = suggestion
	return e
}

// New creates a new SyncError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *SyncError {
	return &SyncError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a SyncError from an existing error.
func Wrap(code string, err error) *SyncError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// NotConnected reports an unreachable list store or search engine.
func NotConnected(component string, cause error) *SyncError {
	return New(ErrCodeNotConnected, component+" is not connected", cause).
		WithDetail("component", component)
}

// DependencyUnavailable reports a failed startup precondition.
func DependencyUnavailable(component string, cause error) *SyncError {
	return New(ErrCodeDependencyUnavailable, component+" is unavailable", cause).
		WithDetail("component", component).
		WithSuggestion("check that " + component + " is reachable and retry start")
}

// UnknownEntity reports a job whose entity has no document transformer.
func UnknownEntity(entity string) *SyncError {
	return New(ErrCodeUnknownEntity, fmt.Sprintf("no transformer for entity %q", entity), nil).
		WithDetail("entity", entity)
}

// InvalidPayload reports a payload that cannot be mapped to a document.
func InvalidPayload(entity, reason string) *SyncError {
	return New(ErrCodeInvalidPayload, fmt.Sprintf("invalid %s payload: %s", entity, reason), nil).
		WithDetail("entity", entity)
}

// UnknownQueue reports a queue name outside pending/processing/completed/failed.
func UnknownQueue(name string) *SyncError {
	return New(ErrCodeUnknownQueue, fmt.Sprintf("unknown queue %q", name), nil).
		WithSuggestion("use one of pending, processing, completed, failed")
}

// AlreadySyncing reports that a sync cycle is in progress.
func AlreadySyncing() *SyncError {
	return New(ErrCodeAlreadySyncing, "a sync is already in progress", nil).
		WithSuggestion("wait for the running sync to finish and retry")
}

// BulkIndexFailure reports a batch rejected by the search engine.
func BulkIndexFailure(batchSize int, cause error) *SyncError {
	return New(ErrCodeBulkIndexFailed, "bulk indexing failed", cause).
		WithDetail("batch_size", fmt.Sprint(batchSize))
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *SyncError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *SyncError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *SyncError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// IsPermanent reports errors that must route a job straight to failed.
func IsPermanent(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return isPermanentCode(se.Code)
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a SyncError anywhere in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
