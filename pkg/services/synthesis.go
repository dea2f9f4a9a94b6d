package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hgovi/Basketball-RAG/pkg/llm"
	"github.com/hgovi/Basketball-RAG/pkg/logging"
	"github.com/hgovi/Basketball-RAG/pkg/models"
	"github.com/hgovi/Basketball-RAG/pkg/prompts"
)

// DefaultSynthesisRowLimit caps the rows shown to the model.
const DefaultSynthesisRowLimit = 10

// summaryRowLimit caps the rows quoted in a templated summary.
const summaryRowLimit = 3

// Synthesizer writes the natural-language answer for a result set.
type Synthesizer struct {
	gen      llm.TextGenerator
	rowLimit int
	logger   *zap.Logger
}

// NewSynthesizer returns a synthesizer; rowLimit <= 0 uses the default.
func NewSynthesizer(gen llm.TextGenerator, rowLimit int, logger *zap.Logger) *Synthesizer {
	if rowLimit <= 0 {
		rowLimit = DefaultSynthesisRowLimit
	}
	return &Synthesizer{gen: gen, rowLimit: rowLimit, logger: logger.Named("synthesis")}
}

// Synthesize asks the model for an answer over at most rowLimit rows. Any
// model failure or empty reply falls back to BasicSummary.
func (s *Synthesizer) Synthesize(ctx context.Context, question, sqlQuery string, result *models.QueryResult) string {
	if result == nil || result.RowCount == 0 {
		return "I couldn't find any data matching your request."
	}

	prompt := prompts.BuildResponseSynthesisPrompt(question, sqlQuery, result.Head(s.rowLimit))
	answer, err := s.gen.GenerateText(ctx, prompt)
	if err != nil {
		s.logger.Warn("Answer synthesis failed, using summary",
			zap.String("error_type", string(llm.GetErrorType(err))),
			zap.String("error", logging.SanitizeError(err)))
		return BasicSummary(result)
	}

	answer = strings.TrimSpace(llm.StripThinking(answer))
	if answer == "" {
		s.logger.Warn("Answer synthesis returned empty text, using summary")
		return BasicSummary(result)
	}
	return answer
}

// BasicSummary renders a result without a model, e.g.
// "Found 3 results; first few: Name=Rice, Kiki, avg_pts=15; ...".
func BasicSummary(result *models.QueryResult) string {
	if result == nil || result.RowCount == 0 {
		return "No data found."
	}

	rows := result.Head(summaryRowLimit)
	parts := make([]string, len(rows))
	for i, row := range rows {
		parts[i] = formatRow(result.Columns, row)
	}

	if result.RowCount == 1 {
		return fmt.Sprintf("Found 1 result: %s", parts[0])
	}
	return fmt.Sprintf("Found %d results; first few: %s", result.RowCount, strings.Join(parts, "; "))
}

func formatRow(columns []string, row map[string]any) string {
	fields := make([]string, 0, len(columns))
	for _, col := range columns {
		fields = append(fields, fmt.Sprintf("%s=%v", col, formatValue(row[col])))
	}
	return strings.Join(fields, ", ")
}

func formatValue(v any) string {
	switch tv := v.(type) {
	case nil:
		return "NULL"
	case float64:
		return fmt.Sprintf("%g", tv)
	default:
		return fmt.Sprint(tv)
	}
}
