package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hgovi/Basketball-RAG/pkg/apperrors"
)

// getTextContent extracts the text string from the first text content item
func getTextContent(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return ""
	}
	jsonBytes, _ := json.Marshal(result.Content[0])
	var textContent struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	_ = json.Unmarshal(jsonBytes, &textContent)
	return textContent.Text
}

func decodeErrorResult(t *testing.T, result *mcp.CallToolResult) ErrorResponse {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(getTextContent(result)), &errResp))
	return errResp
}

func TestNewErrorResult(t *testing.T) {
	result := NewErrorResult("invalid_input", "question cannot be empty")

	assert.True(t, result.IsError)
	errResp := decodeErrorResult(t, result)
	assert.True(t, errResp.Error)
	assert.Equal(t, "invalid_input", errResp.Code)
	assert.Equal(t, "question cannot be empty", errResp.Message)
	assert.Nil(t, errResp.Details)
}

func TestNewErrorResultWithDetails(t *testing.T) {
	result := NewErrorResultWithDetails("invalid_input", "too many questions", map[string]any{"count": 21})

	errResp := decodeErrorResult(t, result)
	detailsMap, ok := errResp.Details.(map[string]any)
	require.True(t, ok, "details should be a map")
	assert.Equal(t, float64(21), detailsMap["count"])
}

func TestErrorResponse_JSONStructure(t *testing.T) {
	tests := []struct {
		name     string
		details  any
		wantJSON string
	}{
		{
			name:     "without details",
			wantJSON: `{"error":true,"code":"undefined_column","message":"no such column: Nme"}`,
		},
		{
			name:     "with string details",
			details:  "check the column list",
			wantJSON: `{"error":true,"code":"undefined_column","message":"no such column: Nme","details":"check the column list"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewErrorResultWithDetails("undefined_column", "no such column: Nme", tt.details)

			var got, want map[string]any
			require.NoError(t, json.Unmarshal([]byte(getTextContent(result)), &got))
			require.NoError(t, json.Unmarshal([]byte(tt.wantJSON), &want))
			assert.Equal(t, want, got)
		})
	}
}

func TestSQLUserErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"unknown column", errors.New("SQLite syntax error: SQL logic error: no such column: Nme (1)"), "undefined_column"},
		{"unknown table", errors.New("failed to execute query: no such table: games"), "undefined_table"},
		{"unknown function", errors.New("SQLite syntax error: no such function: STDDEV"), "undefined_function"},
		{"syntax", errors.New(`SQLite syntax error: near "FORM": syntax error`), "syntax_error"},
		{"ambiguous", errors.New("ambiguous column name: Name"), "ambiguous_column"},
		{"aggregate", errors.New("misuse of aggregate: AVG()"), "aggregate_misuse"},
		{"read only", errors.New("attempt to write a readonly database"), "read_only"},
		{"validation", errors.New("invalid query: GROUP BY contains aggregate function"), "invalid_query"},
		{"unsafe", fmt.Errorf("%w: DROP", apperrors.ErrUnsafeQuery), "unsafe_query"},
		{"prepare failure", errors.New("SQLite syntax error: incomplete input"), "syntax_error"},
		{"not connected", fmt.Errorf("%w: no such table", apperrors.ErrNotConnected), ""},
		{"server error", errors.New("context deadline exceeded"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SQLUserErrorCode(tt.err))
			assert.Equal(t, tt.want != "", IsSQLUserError(tt.err))
		})
	}
}

func TestExtractSQLErrorMessage(t *testing.T) {
	assert.Equal(t, "", ExtractSQLErrorMessage(nil))
	assert.Equal(t, "no such column: Nme (1)",
		ExtractSQLErrorMessage(errors.New("SQLite syntax error: SQL logic error: no such column: Nme (1)")))
	assert.Equal(t, "no such table: games",
		ExtractSQLErrorMessage(errors.New("failed to execute query: no such table: games")))
	assert.Equal(t, "plain", ExtractSQLErrorMessage(errors.New("plain")))
}

func TestNewSQLErrorResult(t *testing.T) {
	assert.Nil(t, NewSQLErrorResult(errors.New("connection reset")))

	result := NewSQLErrorResult(errors.New("failed to execute query: no such column: Nme"))
	errResp := decodeErrorResult(t, result)
	assert.Equal(t, "undefined_column", errResp.Code)
	assert.Equal(t, "no such column: Nme", errResp.Message)
}

func TestIsInputError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("stats table not found"), true},
		{errors.New("question cannot be empty"), true},
		{errors.New("missing required argument"), true},
		{errors.New("no such column: Nme"), true},
		{errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsInputError(tt.err))
		})
	}
}
