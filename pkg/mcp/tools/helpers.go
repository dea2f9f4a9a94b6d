package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

// trimString removes leading and trailing whitespace from a string.
// This is a common helper used across MCP tool parameter validation.
func trimString(s string) string {
	return strings.TrimSpace(s)
}

func arguments(req mcp.CallToolRequest) map[string]any {
	args, _ := req.Params.Arguments.(map[string]any)
	return args
}

// getOptionalFloat extracts an optional float argument from the request.
func getOptionalFloat(req mcp.CallToolRequest, key string) (float64, bool) {
	val, ok := arguments(req)[key].(float64)
	return val, ok
}

// extractArrayParam returns an array argument. Some clients send arrays as
// a JSON-encoded string; those are decoded with a warning. A missing key
// returns nil, nil.
func extractArrayParam(args map[string]any, key string, logger *zap.Logger) ([]any, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}

	switch v := raw.(type) {
	case []any:
		return v, nil
	case string:
		var arr []any
		if err := json.Unmarshal([]byte(v), &arr); err != nil {
			return nil, fmt.Errorf("parameter %q is a string that could not be parsed as an array; send a native JSON array", key)
		}
		if logger != nil {
			logger.Warn("Array parameter sent as stringified JSON", zap.String("param", key))
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("parameter %q must be an array, got %T", key, raw)
	}
}

// extractStringSlice is extractArrayParam for arrays of strings.
func extractStringSlice(args map[string]any, key string, logger *zap.Logger) ([]string, error) {
	items, err := extractArrayParam(args, key, logger)
	if err != nil || items == nil {
		return nil, err
	}

	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("parameter %q element %d must be a string, got %T", key, i, item)
		}
		out = append(out, s)
	}
	return out, nil
}

// jsonResult marshals v into a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
