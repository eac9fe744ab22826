// Package errors provides structured error handling for thedocs.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Record store and filesystem errors
//   - 3XX: Backend errors (full-text index, enrichment service)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category groups error codes by the layer that raised them.
type Category string

const (
	CategoryConfig     Category = "CONFIG"
	CategoryIO         Category = "IO"
	CategoryBackend    Category = "BACKEND"
	CategoryValidation Category = "VALIDATION"
	CategoryInternal   Category = "INTERNAL"
)

// Severity tells callers whether the failed operation may be skipped.
type Severity string

const (
	// SeverityFatal aborts the operation; nothing was written.
	SeverityFatal Severity = "FATAL"
	// SeverityError fails the operation but the process continues.
	SeverityError Severity = "ERROR"
	// SeverityWarning is recovered locally (fallback, skipped row).
	SeverityWarning Severity = "WARNING"
)

const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Store and filesystem errors (200-299)
	ErrCodeStoreIO       = "ERR_201_STORE_IO"
	ErrCodeStoreLock     = "ERR_202_STORE_LOCK"
	ErrCodeRowCorrupt    = "ERR_203_ROW_CORRUPT"
	ErrCodeFileNotFound  = "ERR_204_FILE_NOT_FOUND"
	ErrCodeRecordMissing = "ERR_205_RECORD_NOT_FOUND"

	// Backend errors (300-399)
	ErrCodeBackendTimeout     = "ERR_301_BACKEND_TIMEOUT"
	ErrCodeBackendUnavailable = "ERR_302_BACKEND_UNAVAILABLE"
	ErrCodeBackendResponse    = "ERR_303_BACKEND_BAD_RESPONSE"

	// Validation errors (400-499)
	ErrCodeInvalidInput         = "ERR_401_INVALID_INPUT"
	ErrCodeUnsupportedExtension = "ERR_402_UNSUPPORTED_EXTENSION"
	ErrCodeInvalidFilename      = "ERR_403_INVALID_FILENAME"
	ErrCodePrivateDocument      = "ERR_404_PRIVATE_DOCUMENT"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeSearchFailed = "ERR_502_SEARCH_FAILED"
	ErrCodeEnrichFailed = "ERR_503_ENRICH_FAILED"
)

func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryBackend
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeStoreIO, ErrCodeStoreLock:
		return SeverityFatal
	case ErrCodeRowCorrupt:
		return SeverityWarning
	}
	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeBackendTimeout, ErrCodeBackendUnavailable:
		return true
	default:
		return false
	}
}
