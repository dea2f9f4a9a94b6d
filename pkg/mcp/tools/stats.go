package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/hgovi/Basketball-RAG/pkg/adapters/datasource/sqlite"
	"github.com/hgovi/Basketball-RAG/pkg/llm"
	"github.com/hgovi/Basketball-RAG/pkg/models"
)

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
	maxBatchQuestions = 20
)

// StatsEngine is the subset of the question engine the tools call.
type StatsEngine interface {
	Ask(ctx context.Context, question string) *models.ProcessResult
	AskAll(ctx context.Context, questions []string) ([]*models.ProcessResult, error)
	Query(ctx context.Context, sqlQuery string) (*models.QueryResult, string, error)
	Stats() sqlite.StatsSnapshot
}

// ProviderStatus reports the text generation provider's circuit breaker.
type ProviderStatus interface {
	Status() llm.BreakerStatus
}

// StatsToolDeps contains the dependencies for the statistics tools.
type StatsToolDeps struct {
	Engine StatsEngine
	Model  string
	// Provider is optional; health omits provider state without it.
	Provider ProviderStatus
	Logger   *zap.Logger
}

func (d *StatsToolDeps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// RegisterStatsTools registers the question answering and raw query tools.
func RegisterStatsTools(s *server.MCPServer, deps *StatsToolDeps) {
	registerAskTool(s, deps)
	registerQueryStatisticsTool(s, deps)
}

type batchAskResponse struct {
	Results []*models.ProcessResult `json:"results"`
	Count   int                     `json:"count"`
}

func registerAskTool(s *server.MCPServer, deps *StatsToolDeps) {
	tool := mcp.NewTool(
		"ask_basketball_stats",
		mcp.WithDescription(
			"Answer a natural-language question about UCLA women's basketball player statistics. "+
				"Returns the generated SQL, the result rows and a written answer. "+
				"Pass 'questions' to answer several independent questions in one call.",
		),
		mcp.WithString(
			"question",
			mcp.Required(),
			mcp.Description("Question about players, games or opponents, e.g. \"Who leads the team in rebounds?\""),
		),
		mcp.WithArray(
			"questions",
			mcp.Description(fmt.Sprintf("Optional additional questions answered concurrently (max %d)", maxBatchQuestions)),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		logger := deps.logger()

		question, err := req.RequireString("question")
		if err != nil {
			return NewErrorResult("invalid_input", err.Error()), nil
		}
		question = trimString(question)
		if question == "" {
			return NewErrorResult("invalid_input", "question cannot be empty"), nil
		}

		extra, err := extractStringSlice(arguments(req), "questions", logger)
		if err != nil {
			return NewErrorResult("invalid_input", err.Error()), nil
		}
		if extra == nil {
			return jsonResult(deps.Engine.Ask(ctx, question))
		}

		questions := []string{question}
		for _, q := range extra {
			if q = trimString(q); q != "" {
				questions = append(questions, q)
			}
		}
		if len(questions) > maxBatchQuestions {
			return NewErrorResultWithDetails("invalid_input",
				fmt.Sprintf("at most %d questions per call", maxBatchQuestions),
				map[string]int{"count": len(questions)}), nil
		}

		results, err := deps.Engine.AskAll(ctx, questions)
		if err != nil {
			return nil, fmt.Errorf("batch ask interrupted: %w", err)
		}
		logger.Debug("Answered question batch", zap.Int("count", len(results)))
		return jsonResult(batchAskResponse{Results: results, Count: len(results)})
	})
}

type queryStatisticsResponse struct {
	SQL       string           `json:"sql"`
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	RowCount  int              `json:"row_count"`
	Truncated bool             `json:"truncated"`
}

func registerQueryStatisticsTool(s *server.MCPServer, deps *StatsToolDeps) {
	tool := mcp.NewTool(
		"query_statistics",
		mcp.WithDescription(
			"Run a read-only SELECT against the player statistics table. "+
				"Column names starting with a digit are quoted automatically.",
		),
		mcp.WithString(
			"sql",
			mcp.Required(),
			mcp.Description("SQLite SELECT statement"),
		),
		mcp.WithNumber(
			"limit",
			mcp.Description(fmt.Sprintf("Maximum rows returned (default %d, max %d)", defaultQueryLimit, maxQueryLimit)),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		logger := deps.logger()

		sqlQuery, err := req.RequireString("sql")
		if err != nil {
			return NewErrorResult("invalid_input", err.Error()), nil
		}
		sqlQuery = trimString(sqlQuery)
		if sqlQuery == "" {
			return NewErrorResult("invalid_input", "sql cannot be empty"), nil
		}

		limit := defaultQueryLimit
		if v, ok := getOptionalFloat(req, "limit"); ok && v > 0 {
			limit = min(int(v), maxQueryLimit)
		}

		result, repaired, err := deps.Engine.Query(ctx, sqlQuery)
		if err != nil {
			if errResult := NewSQLErrorResult(err); errResult != nil {
				logger.Debug("Rejected caller query", zap.String("code", SQLUserErrorCode(err)))
				return errResult, nil
			}
			return nil, fmt.Errorf("query execution failed: %w", err)
		}

		rows := result.Head(limit)
		return jsonResult(queryStatisticsResponse{
			SQL:       repaired,
			Columns:   result.Columns,
			Rows:      rows,
			RowCount:  len(rows),
			Truncated: result.RowCount > len(rows),
		})
	})
}
