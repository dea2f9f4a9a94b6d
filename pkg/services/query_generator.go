package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/hgovi/Basketball-RAG/pkg/adapters/datasource"
	"github.com/hgovi/Basketball-RAG/pkg/llm"
	"github.com/hgovi/Basketball-RAG/pkg/logging"
	"github.com/hgovi/Basketball-RAG/pkg/models"
	"github.com/hgovi/Basketball-RAG/pkg/prompts"
	sqlutil "github.com/hgovi/Basketball-RAG/pkg/sql"
)

// DefaultGenerationRetries is how many times invalid SQL is regenerated.
const DefaultGenerationRetries = 2

// QueryGenerator writes, repairs and validates SQL for a question.
type QueryGenerator interface {
	// Generate never returns nil. When the text generator fails before any
	// attempt produced SQL the result has empty SQL and Err set. A failure
	// on a later attempt returns the last invalid query instead.
	Generate(ctx context.Context, question string, intent models.Intent) *models.GeneratedQuery

	// Validate checks sqlQuery against the SQLite rules for the table.
	Validate(sqlQuery string) (bool, string)
}

// QueryGeneratorConfig configures NewQueryGenerator.
type QueryGeneratorConfig struct {
	Table   string
	Retries int
	// Vocabulary is required.
	Vocabulary *Vocabulary
}

type queryGenerator struct {
	gen     llm.TextGenerator
	vocab   *Vocabulary
	rules   *sqlutil.Rules
	table   string
	schema  *models.TableSchema
	retries int
	logger  *zap.Logger
}

// NewQueryGenerator loads the table schema from store. A schema that cannot
// be loaded is reported as unavailable in the prompt.
func NewQueryGenerator(ctx context.Context, store datasource.StatsStore, gen llm.TextGenerator, cfg QueryGeneratorConfig, logger *zap.Logger) QueryGenerator {
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	g := &queryGenerator{
		gen:     gen,
		vocab:   cfg.Vocabulary,
		rules:   sqlutil.NewRules(cfg.Table, cfg.Vocabulary.Special, cfg.Vocabulary.Simple),
		table:   cfg.Table,
		retries: cfg.Retries,
		logger:  logger.Named("generator"),
	}

	schema, err := store.GetTableSchema(ctx, cfg.Table)
	if err != nil {
		g.logger.Warn("Failed to load table schema",
			zap.String("table", cfg.Table),
			zap.String("error", logging.SanitizeError(err)))
	}
	g.schema = schema
	return g
}

func (g *queryGenerator) Validate(sqlQuery string) (bool, string) {
	return g.rules.Validate(sqlQuery)
}

func (g *queryGenerator) Generate(ctx context.Context, question string, intent models.Intent) *models.GeneratedQuery {
	if isCloseGamesQuestion(question, intent) {
		sqlQuery := closeGamesSQL(g.table, intent.PlayerNames, g.vocab.Sentinels)
		valid, reason := g.Validate(sqlQuery)
		g.logger.Info("Using close games template", zap.Int("players", len(intent.PlayerNames)))
		return &models.GeneratedQuery{
			SQL:    sqlQuery,
			Valid:  valid,
			Reason: reason,
			Source: models.QuerySourceTemplate,
		}
	}

	prompt := prompts.BuildSQLGenerationPrompt(prompts.SQLGenerationInput{
		Table:     g.table,
		Schema:    g.schema,
		Intent:    intent.String(),
		Question:  g.vocab.MapQuestion(question),
		Quoted:    g.vocab.Special,
		Sentinels: g.vocab.Sentinels,
	})

	var query *models.GeneratedQuery
	for attempt := 1; attempt <= g.retries+1; attempt++ {
		response, err := g.gen.GenerateText(ctx, prompt)
		if err != nil {
			g.logger.Error("SQL generation call failed",
				zap.Int("attempt", attempt),
				zap.String("error_type", string(llm.GetErrorType(err))),
				zap.String("error", logging.SanitizeError(err)))
			if query != nil {
				return query
			}
			return &models.GeneratedQuery{Attempts: attempt, Source: models.QuerySourceModel, Err: err}
		}

		sqlQuery := g.rules.Repair(ExtractSQL(response))
		valid, reason := g.Validate(sqlQuery)
		query = &models.GeneratedQuery{
			SQL:      sqlQuery,
			Valid:    valid,
			Reason:   reason,
			Attempts: attempt,
			Source:   models.QuerySourceModel,
		}
		if valid {
			g.logger.Debug("Generated SQL",
				zap.Int("attempt", attempt),
				zap.String("sql", logging.SanitizeQuery(sqlQuery)))
			return query
		}

		g.logger.Warn("Generated invalid SQL",
			zap.Int("attempt", attempt),
			zap.String("reason", reason),
			zap.String("sql", logging.SanitizeQuery(sqlQuery)))
	}
	return query
}

var (
	sqlFencePattern    = regexp.MustCompile("(?is)```(?:sqlite|sql)?\\s*(.*?)\\s*```")
	inlineCodePattern  = regexp.MustCompile("`([^`]+)`")
	statementPattern   = regexp.MustCompile(`(?is)\b((?:SELECT\b|WITH\s+\w+\s+AS\s*\().*?;?)\s*$`)
	statementStartWord = regexp.MustCompile(`(?i)^\s*(?:SELECT|WITH)\b`)
)

// ExtractSQL pulls the statement out of a model response: a fenced block,
// then inline code that holds a statement, then the trailing SELECT or WITH
// statement. Otherwise the response is returned trimmed.
func ExtractSQL(response string) string {
	response = strings.TrimSpace(llm.StripThinking(response))
	if response == "" {
		return ""
	}

	if m := sqlFencePattern.FindStringSubmatch(response); m != nil {
		return strings.TrimSpace(m[1])
	}
	for _, m := range inlineCodePattern.FindAllStringSubmatch(response, -1) {
		if statementStartWord.MatchString(m[1]) {
			return strings.TrimSpace(m[1])
		}
	}
	if m := statementPattern.FindStringSubmatch(response); m != nil {
		return strings.TrimSpace(m[1])
	}
	return response
}

// isCloseGamesQuestion detects "close games" comparisons between two or
// more resolved players.
func isCloseGamesQuestion(question string, intent models.Intent) bool {
	q := strings.ToLower(question)
	return strings.Contains(q, "close") && strings.Contains(q, "games") && len(intent.PlayerNames) >= 2
}

// closeGamesSQL compares the players' per-game production. "Close" has no
// column of its own, so the comparison covers all games.
func closeGamesSQL(table string, players, sentinels []string) string {
	return fmt.Sprintf(`SELECT Name, COUNT(*) AS games_played, ROUND(AVG(Pts), 1) AS avg_pts, ROUND(AVG(Ast), 1) AS avg_ast, `+
		`ROUND(AVG(Reb), 1) AS avg_reb, ROUND(AVG("TO"), 1) AS avg_to, `+
		`ROUND(CAST(SUM(FGM) AS REAL) / NULLIF(SUM(FGA), 0) * 100, 1) AS fg_pct, `+
		`ROUND(CAST(SUM("3PTM") AS REAL) / NULLIF(SUM("3PTA"), 0) * 100, 1) AS three_pt_pct `+
		`FROM %s WHERE Name IN (%s) AND %s GROUP BY Name ORDER BY avg_pts DESC`,
		table, literalList(players), prompts.SentinelClause(sentinels))
}

// literalList renders values as a comma separated list of SQL literals.
func literalList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = sqlutil.QuoteLiteral(v)
	}
	return strings.Join(quoted, ", ")
}

var _ QueryGenerator = (*queryGenerator)(nil)
