package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hgovi/Basketball-RAG/pkg/llm"
)

type healthResult struct {
	Status   string             `json:"status"`
	Version  string             `json:"version"`
	Model    string             `json:"model,omitempty"`
	Provider *llm.BreakerStatus `json:"provider,omitempty"`
	Stats    *healthCounts      `json:"stats,omitempty"`
}

type healthCounts struct {
	TotalQueries       int64   `json:"total_queries"`
	FailedQueries      int64   `json:"failed_queries"`
	AvgExecutionTimeMs float64 `json:"avg_execution_time_ms"`
	SuccessRate        float64 `json:"success_rate"`
}

// RegisterHealthTool adds a health check tool to the MCP server.
// The tool returns the server status, version, provider circuit state and
// query counters. Status is "degraded" while the provider circuit is not
// closed.
func RegisterHealthTool(s *server.MCPServer, version string, deps *StatsToolDeps) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status, version, text generation provider state and query statistics"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := healthResult{Status: "ok", Version: version}
		if deps != nil && deps.Provider != nil {
			status := deps.Provider.Status()
			result.Provider = &status
			if status.State != llm.CircuitClosed.String() {
				result.Status = "degraded"
			}
		}
		if deps != nil && deps.Engine != nil {
			result.Model = deps.Model
			snap := deps.Engine.Stats()
			result.Stats = &healthCounts{
				TotalQueries:       snap.TotalQueries,
				FailedQueries:      snap.FailedQueries,
				AvgExecutionTimeMs: float64(snap.AvgExecutionTime.Microseconds()) / 1000,
				SuccessRate:        snap.SuccessRate,
			}
		}
		return jsonResult(result)
	})
}
