// Package prompts builds the text sent to the language model at each step of
// the question-answering pipeline.
package prompts

import (
	"fmt"
	"strings"

	"github.com/hgovi/Basketball-RAG/pkg/models"
	sqlutil "github.com/hgovi/Basketball-RAG/pkg/sql"
)

// SQLGenerationInput is everything the SQL prompt renders.
type SQLGenerationInput struct {
	Table  string
	Schema *models.TableSchema
	// Intent is the rendered extraction result, "None" when nothing was found.
	Intent string
	// Question is the user text with statistic terms mapped to columns.
	Question string
	// Quoted lists identifiers that must always be double quoted.
	Quoted []string
	// Sentinels are aggregate rows stored alongside players.
	Sentinels []string
}

// FormatSchema renders a table's columns one per line. An unavailable schema
// is stated as such so the model falls back to the column rules.
func FormatSchema(table string, schema *models.TableSchema) string {
	if !schema.Available() {
		return fmt.Sprintf("Table: %s (schema not available)", table)
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Table: %s\n", table))
	for _, col := range schema.Columns {
		b.WriteString(fmt.Sprintf("- %s (%s)\n", col.Name, col.Type))
	}
	return strings.TrimRight(b.String(), "\n")
}

// SentinelClause returns the exclusion predicate for aggregate rows,
// e.g. Name NOT IN ('Totals', 'TM', 'Team').
func SentinelClause(sentinels []string) string {
	quoted := make([]string, len(sentinels))
	for i, s := range sentinels {
		quoted[i] = sqlutil.QuoteLiteral(s)
	}
	return fmt.Sprintf("Name NOT IN (%s)", strings.Join(quoted, ", "))
}

// BuildSQLGenerationPrompt creates the prompt that asks for a single SQLite
// SELECT statement answering the question.
func BuildSQLGenerationPrompt(in SQLGenerationInput) string {
	var prompt strings.Builder

	quoted := make([]string, len(in.Quoted))
	for i, q := range in.Quoted {
		quoted[i] = sqlutil.QuoteIdentifier(q)
	}
	quotedList := strings.Join(quoted, ", ")
	exclusion := SentinelClause(in.Sentinels)

	prompt.WriteString("You are an expert SQLite query generator for UCLA women's basketball statistics.\n\n")

	prompt.WriteString("CRITICAL SQLITE REQUIREMENTS:\n")
	prompt.WriteString("1. You MUST use ONLY SQLite-compatible syntax - NO PostgreSQL features\n")
	prompt.WriteString("2. FORBIDDEN: EXTRACT, INTERVAL, DATE_TRUNC, STDDEV, VARIANCE, ILIKE, ::, SIMILAR TO, ARRAY, UNNEST, SPLIT_PART\n")
	prompt.WriteString("3. For dates: use strftime('%Y-%m-%d', date_column) instead of EXTRACT\n")
	prompt.WriteString("   strftime returns text: WHERE strftime('%Y', game_date) = '2024', or CAST(strftime('%Y', game_date) AS INTEGER) = 2024\n")
	prompt.WriteString("4. For standard deviation: compute it from AVG over a subquery\n")
	prompt.WriteString("5. For date arithmetic: use date(col, '+N days'), not INTERVAL\n")
	prompt.WriteString("6. Use CAST(col AS REAL) for type conversion, not ::\n")
	prompt.WriteString("7. Use LIKE instead of ILIKE for case-insensitive matching\n\n")

	prompt.WriteString("COLUMN NAMING RULES:\n")
	prompt.WriteString(fmt.Sprintf("- Always use double quotes for these columns: %s\n", quotedList))
	prompt.WriteString("- Column names are case-sensitive: use exact names from the schema\n")
	prompt.WriteString("- Do not quote ordinary columns such as Name, Pts, Reb, Ast, Opponent, game_date\n")
	prompt.WriteString("- For three-pointers made use \"3PTM\", for three-pointers attempted use \"3PTA\"\n")
	prompt.WriteString("- For turnovers use \"TO\" (must be quoted)\n\n")

	prompt.WriteString("Database schema:\n")
	prompt.WriteString(FormatSchema(in.Table, in.Schema))
	prompt.WriteString("\n\n")

	intent := in.Intent
	if intent == "" {
		intent = "None"
	}
	prompt.WriteString(fmt.Sprintf("Extracted entities: %s\n\n", intent))
	prompt.WriteString(fmt.Sprintf("User question: %s\n\n", in.Question))

	prompt.WriteString("IMPORTANT RULES:\n")
	prompt.WriteString(fmt.Sprintf("- Always exclude aggregate rows (use WHERE %s) unless the question asks for team totals\n", exclusion))
	prompt.WriteString(fmt.Sprintf("- Query only the %s table\n", in.Table))
	prompt.WriteString("- For comparisons between players, return data for all mentioned players\n")
	prompt.WriteString("- Use the player names exactly as given in the extracted entities\n")
	prompt.WriteString("- Use SQLite date functions: date(), datetime(), strftime()\n")
	prompt.WriteString("- For aggregations use SUM, AVG, COUNT, MIN, MAX (SQLite built-ins only)\n")
	prompt.WriteString("- Never put an aggregate function in GROUP BY\n")
	prompt.WriteString("- Handle NULL values with NULLIF() or COALESCE()\n")
	prompt.WriteString("- For player number queries, use the \"No\" column\n")
	prompt.WriteString("- For efficiency calculations, use CAST(made AS REAL) / NULLIF(attempted, 0)\n")
	prompt.WriteString("- AVOID CTEs (WITH clauses) - use simple subqueries in the FROM clause instead\n")
	prompt.WriteString("- Keep queries simple and avoid nested parentheses when possible\n\n")

	prompt.WriteString("Examples of CORRECT SQLite syntax:\n")
	prompt.WriteString(fmt.Sprintf("- Three-pointers: SELECT \"3PTM\" FROM %s WHERE \"3PTM\" > 0\n", in.Table))
	prompt.WriteString(fmt.Sprintf("- Turnovers: SELECT \"TO\" FROM %s WHERE \"TO\" < 5\n", in.Table))
	prompt.WriteString("- Date filtering: WHERE date(game_date) >= date('2024-01-01')\n")
	prompt.WriteString(fmt.Sprintf("- Standard deviation: SELECT SQRT(AVG(Pts * Pts) - AVG(Pts) * AVG(Pts)) FROM %s\n", in.Table))
	prompt.WriteString("- Type conversion: CAST(FGM AS REAL) / NULLIF(FGA, 0)\n")
	prompt.WriteString(fmt.Sprintf("- Player number: SELECT Name FROM %s WHERE \"No\" = '51'\n", in.Table))
	prompt.WriteString(fmt.Sprintf("- Per-player average: SELECT Name, ROUND(AVG(Pts), 1) AS avg_pts FROM %s WHERE %s GROUP BY Name ORDER BY avg_pts DESC\n\n", in.Table, exclusion))

	prompt.WriteString("Generate ONLY the SQL query with no explanations or comments.\n")

	return prompt.String()
}
