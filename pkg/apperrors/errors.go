package apperrors

import "errors"

var (
	ErrNotConnected     = errors.New("database not connected")
	ErrTableNotFound    = errors.New("table not found")
	ErrUnsafeQuery      = errors.New("potentially dangerous SQL pattern detected")
	ErrNoSQLGenerated   = errors.New("no SQL query generated")
	ErrNoFallbackResult = errors.New("no fallback strategy produced results")
)

// Kind classifies how a request failed. It is surfaced to callers as
// error_type; the underlying error text is only logged.
type Kind string

const (
	KindNone              Kind = ""
	KindExtraction        Kind = "extraction_error"
	KindGeneration        Kind = "generation_failure"
	KindValidation        Kind = "validation_failure"
	KindExecution         Kind = "execution_failure"
	KindEmptyResults      Kind = "empty_results"
	KindSynthesis         Kind = "synthesis_failure"
	KindCredentialMissing Kind = "api_key_missing"
	KindInitialization    Kind = "initialization_error"
	KindPipeline          Kind = "pipeline_error"
)

// Surfaced reports whether a failure of this kind reaches the caller.
// Extraction and synthesis failures are always recovered internally and an
// empty result set is not an error.
func (k Kind) Surfaced() bool {
	switch k {
	case KindNone, KindExtraction, KindSynthesis, KindEmptyResults:
		return false
	default:
		return true
	}
}
