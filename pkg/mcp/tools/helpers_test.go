package tools

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestTrimString(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"   ", ""},
		{"  Kiki Rice", "Kiki Rice"},
		{"\tassists\n", "assists"},
		{"no whitespace", "no whitespace"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, trimString(tt.input), "input %q", tt.input)
	}
}

func TestGetOptionalFloat(t *testing.T) {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"limit": float64(25), "sql": "SELECT 1"}

	v, ok := getOptionalFloat(req, "limit")
	assert.True(t, ok)
	assert.Equal(t, float64(25), v)

	_, ok = getOptionalFloat(req, "sql")
	assert.False(t, ok)

	_, ok = getOptionalFloat(mcp.CallToolRequest{}, "limit")
	assert.False(t, ok)
}

func TestExtractArrayParam(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		want     []any
		errParts []string
	}{
		{"native array", []any{"a", "b"}, []any{"a", "b"}, nil},
		{"stringified array", `["a","b"]`, []any{"a", "b"}, nil},
		{"empty native array", []any{}, []any{}, nil},
		{"empty stringified array", `[]`, []any{}, nil},
		{"unparsable string", "not-an-array", nil, []string{`parameter "questions"`, "could not be parsed", "native JSON array"}},
		{"number", 123, nil, []string{`parameter "questions"`, "int"}},
		{"bool", true, nil, []string{"bool"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractArrayParam(map[string]any{"questions": tt.value}, "questions", nil)
			if tt.errParts != nil {
				require.Error(t, err)
				assert.Nil(t, got)
				for _, part := range tt.errParts {
					assert.Contains(t, err.Error(), part)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("absent key", func(t *testing.T) {
		got, err := extractArrayParam(map[string]any{}, "questions", nil)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestExtractArrayParam_LogsStringifiedJSON(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)

	_, err := extractArrayParam(map[string]any{"questions": []any{"a"}}, "questions", logger)
	require.NoError(t, err)
	assert.Equal(t, 0, logs.Len())

	_, err = extractArrayParam(map[string]any{"questions": `["a"]`}, "questions", logger)
	require.NoError(t, err)
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Contains(t, entry.Message, "stringified JSON")
	assert.Equal(t, "questions", entry.ContextMap()["param"])
}

func TestExtractStringSlice(t *testing.T) {
	got, err := extractStringSlice(map[string]any{"questions": `["Who leads in assists?","Top scorer?"]`}, "questions", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Who leads in assists?", "Top scorer?"}, got)

	got, err = extractStringSlice(map[string]any{"questions": []any{}}, "questions", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{}, got)

	got, err = extractStringSlice(map[string]any{}, "questions", nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = extractStringSlice(map[string]any{"questions": []any{"valid", 123}}, "questions", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "element 1")
	assert.Contains(t, err.Error(), "string")
}
