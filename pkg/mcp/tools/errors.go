package tools

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hgovi/Basketball-RAG/pkg/apperrors"
)

// ErrorResponse represents a structured error in tool results.
// Returning it as a tool result keeps the details visible to the client
// instead of surfacing a protocol error.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for errors the caller can act on (bad SQL, empty input).
// System failures should still return Go errors.
//
// Example:
//
//	if question == "" {
//	    return NewErrorResult("invalid_input", "question cannot be empty"), nil
//	}
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// sqliteUserErrors maps SQLite error text to error codes.
var sqliteUserErrors = []struct {
	pattern string
	code    string
}{
	{"no such column", "undefined_column"},
	{"no such table", "undefined_table"},
	{"no such function", "undefined_function"},
	{"syntax error", "syntax_error"},
	{"ambiguous column", "ambiguous_column"},
	{"misuse of aggregate", "aggregate_misuse"},
	{"attempt to write a readonly database", "read_only"},
	{"invalid query", "invalid_query"},
}

// SQLUserErrorCode returns an error code when err was caused by the SQL the
// caller supplied, and "" for server errors.
//
// Example:
//
//	SQLUserErrorCode(errors.New("SQLite syntax error: no such column: Nme")) // "undefined_column"
//	SQLUserErrorCode(apperrors.ErrNotConnected)                            // ""
func SQLUserErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, apperrors.ErrUnsafeQuery) {
		return "unsafe_query"
	}
	if errors.Is(err, apperrors.ErrNotConnected) {
		return ""
	}

	msg := strings.ToLower(err.Error())
	for _, e := range sqliteUserErrors {
		if strings.Contains(msg, e.pattern) {
			return e.code
		}
	}
	return ""
}

// IsSQLUserError returns true if the error is a SQL user error rather than
// a server error.
func IsSQLUserError(err error) bool {
	return SQLUserErrorCode(err) != ""
}

// ExtractSQLErrorMessage strips wrapping prefixes from a SQL error.
func ExtractSQLErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	prefixes := []string{
		"SQLite syntax error: ",
		"query execution failed: ",
		"failed to execute query: ",
		"SQL logic error: ",
	}
	for _, prefix := range prefixes {
		msg = strings.TrimPrefix(msg, prefix)
	}
	return msg
}

// NewSQLErrorResult creates an error result from a SQL error if it's a user
// error. Returns nil otherwise; the caller should return a Go error instead.
//
// Example usage:
//
//	result, repaired, err := deps.Engine.Query(ctx, sql)
//	if err != nil {
//	    if errResult := NewSQLErrorResult(err); errResult != nil {
//	        return errResult, nil
//	    }
//	    return nil, fmt.Errorf("query execution failed: %w", err)
//	}
func NewSQLErrorResult(err error) *mcp.CallToolResult {
	code := SQLUserErrorCode(err)
	if code == "" {
		return nil
	}
	return NewErrorResult(code, ExtractSQLErrorMessage(err))
}

// inputErrorPatterns are substrings of errors caused by caller input.
var inputErrorPatterns = []string{
	"not found",
	"invalid query",
	"missing required",
	"cannot be empty",
}

// IsInputError returns true if the error appears to be caused by user input
// rather than a server failure. Input errors are logged at DEBUG.
func IsInputError(err error) bool {
	if err == nil {
		return false
	}
	if IsSQLUserError(err) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range inputErrorPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
