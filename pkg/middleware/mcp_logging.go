package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/hgovi/Basketball-RAG/pkg/logging"
)

// maxLoggedArgLen caps logged string arguments.
const maxLoggedArgLen = 200

var sensitiveKeywords = []string{"password", "secret", "token", "key", "credential"}

// MCPToolLogger returns tool handler middleware that logs each tool call with
// its sanitized arguments, duration and outcome.
// Pass nil logger to disable logging.
func MCPToolLogger(logger *zap.Logger) server.ToolHandlerMiddleware {
	return func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		if logger == nil {
			return next
		}

		return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			tool := req.Params.Name
			args, _ := req.Params.Arguments.(map[string]any)
			logger.Debug("MCP tool call",
				zap.String("tool", tool),
				zap.Any("arguments", sanitizeArguments(args)),
			)

			start := time.Now()
			result, err := next(ctx, req)
			duration := time.Since(start)

			switch {
			case err != nil:
				logger.Error("MCP tool failed",
					zap.String("tool", tool),
					zap.String("error", logging.SanitizeError(err)),
					zap.Duration("duration", duration),
				)
			case result != nil && result.IsError:
				logger.Debug("MCP tool returned error result",
					zap.String("tool", tool),
					zap.Duration("duration", duration),
				)
			default:
				logger.Debug("MCP tool succeeded",
					zap.String("tool", tool),
					zap.Duration("duration", duration),
				)
			}
			return result, err
		}
	}
}

// sanitizeArguments redacts sensitive fields and truncates long values.
func sanitizeArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}

	result := make(map[string]any, len(args))
	for k, v := range args {
		if isSensitive(k) {
			result[k] = "[REDACTED]"
			continue
		}
		if str, ok := v.(string); ok && len(str) > maxLoggedArgLen {
			result[k] = str[:maxLoggedArgLen] + "..."
		} else {
			result[k] = v
		}
	}
	return result
}

func isSensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
