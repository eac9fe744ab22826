package errors

import (
	stderrors "errors"
	"fmt"
)

// DocError is the structured error type returned across package boundaries.
type DocError struct {
	// Code is the unique error code (e.g., "ERR_201_STORE_IO").
	Code string

	Message  string
	Category Category
	Severity Severity

	// Details carries extra context such as the filename or backend name.
	Details map[string]string

	Cause error

	// Retryable is set for transient backend failures.
	Retryable bool

	// Suggestion is an actionable hint shown by the CLI.
	Suggestion string
}

// Error implements the error interface.
func (e *DocError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DocError) Unwrap() error {
	return e.Cause
}

// Is matches another DocError by code so errors.Is works against sentinels.
func (e *DocError) Is(target error) bool {
	if t, ok := target.(*DocError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail and returns the error for chaining.
func (e *DocError) WithDetail(key, value string) *DocError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion sets the user-facing hint.
func (e *DocError) WithSuggestion(suggestion string) *DocError {
	e.Suggestion = suggestion
	return e
}

// New creates a DocError. Category, severity and retryability derive from the code.
func New(code string, message string, cause error) *DocError {
	return &DocError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a DocError from an existing error, reusing its message.
func Wrap(code string, err error) *DocError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError reports an invalid or unreadable configuration.
func ConfigError(message string, cause error) *DocError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IOError reports a failed read or write of the record table. Not retried.
func IOError(message string, cause error) *DocError {
	return New(ErrCodeStoreIO, message, cause)
}

// CorruptionError reports a malformed row. Callers skip the row and log it.
func CorruptionError(message string, cause error) *DocError {
	return New(ErrCodeRowCorrupt, message, cause)
}

// ValidationError reports bad caller input.
func ValidationError(message string, cause error) *DocError {
	return New(ErrCodeInvalidInput, message, cause)
}

// BackendUnavailable reports an unreachable or failing external backend.
func BackendUnavailable(backend string, cause error) *DocError {
	return New(ErrCodeBackendUnavailable, backend+" unavailable", cause).
		WithDetail("backend", backend)
}

// BackendTimeout reports a backend call that exceeded its deadline.
func BackendTimeout(backend string, cause error) *DocError {
	return New(ErrCodeBackendTimeout, backend+" timed out", cause).
		WithDetail("backend", backend)
}

// InternalError reports an unexpected condition.
func InternalError(message string, cause error) *DocError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable reports whether err (or anything it wraps) is a retryable DocError.
func IsRetryable(err error) bool {
	var de *DocError
	if stderrors.As(err, &de) {
		return de.Retryable
	}
	return false
}

// IsFatal reports whether err carries fatal severity.
func IsFatal(err error) bool {
	var de *DocError
	if stderrors.As(err, &de) {
		return de.Severity == SeverityFatal
	}
	return false
}

// HasCode reports whether err wraps a DocError with the given code.
func HasCode(err error, code string) bool {
	return GetCode(err) == code
}

// GetCode extracts the error code, or "" for foreign errors.
func GetCode(err error) string {
	var de *DocError
	if stderrors.As(err, &de) {
		return de.Code
	}
	return ""
}

// GetCategory extracts the category, or "" for foreign errors.
func GetCategory(err error) Category {
	var de *DocError
	if stderrors.As(err, &de) {
		return de.Category
	}
	return ""
}
