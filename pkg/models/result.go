package models

import (
	"github.com/hgovi/Basketball-RAG/pkg/apperrors"
)

// ProcessResult is the record returned to callers of the pipeline.
type ProcessResult struct {
	RequestID         string           `json:"request_id"`
	UserQuery         string           `json:"user_query"`
	ExtractedEntities *Intent          `json:"extracted_entities,omitempty"`
	SQLQuery          string           `json:"sql_query,omitempty"`
	QueryResults      []map[string]any `json:"query_results"`
	Response          string           `json:"response"`
	Success           bool             `json:"success"`
	ErrorType         apperrors.Kind   `json:"error_type,omitempty"`
	EmptyResults      bool             `json:"empty_results,omitempty"`
	FallbackUsed      bool             `json:"fallback_used,omitempty"`
	FallbackStrategy  string           `json:"fallback_strategy,omitempty"`
	Approximate       bool             `json:"approximate,omitempty"`
}
