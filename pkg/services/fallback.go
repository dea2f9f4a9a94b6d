package services

import (
	"fmt"
	"strings"

	"github.com/hgovi/Basketball-RAG/pkg/models"
	"github.com/hgovi/Basketball-RAG/pkg/prompts"
	sqlutil "github.com/hgovi/Basketball-RAG/pkg/sql"
)

// Fallback strategy names, in ladder order.
const (
	FallbackSimplifiedAggregation = "simplified_aggregation"
	FallbackBasicRows             = "basic_rows"
	FallbackRoster                = "roster"
)

// FallbackNote is appended to answers produced by a fallback query.
const FallbackNote = "(Note: This answer uses a simplified query due to the complexity of your original request.)"

// FallbackStrategy builds a conservative query for a question the generated
// SQL could not answer. Build returns "" when the strategy does not apply.
type FallbackStrategy struct {
	Name  string
	Build func(question string, intent models.Intent) string
}

// FallbackLadder is the fixed, ordered list of fallback strategies.
type FallbackLadder struct {
	table      string
	vocab      *Vocabulary
	strategies []FallbackStrategy
}

// NewFallbackLadder returns the ladder for table.
func NewFallbackLadder(table string, vocab *Vocabulary) *FallbackLadder {
	l := &FallbackLadder{table: table, vocab: vocab}
	l.strategies = []FallbackStrategy{
		{Name: FallbackSimplifiedAggregation, Build: l.simplifiedAggregation},
		{Name: FallbackBasicRows, Build: l.basicRows},
		{Name: FallbackRoster, Build: l.roster},
	}
	return l
}

// Strategies returns the strategies in the order they are tried.
func (l *FallbackLadder) Strategies() []FallbackStrategy {
	return append([]FallbackStrategy(nil), l.strategies...)
}

func (l *FallbackLadder) exclusion() string {
	return prompts.SentinelClause(l.vocab.Sentinels)
}

// statistic returns the statistic of the intent, or the first one named in
// the question.
func (l *FallbackLadder) statistic(question string, intent models.Intent) (name, column string, ok bool) {
	name = intent.StatisticName()
	if name == "" {
		if name, ok = l.vocab.FindStatistic(question); !ok {
			return "", "", false
		}
	}
	column, ok = l.vocab.Column(name)
	return name, column, ok
}

func (l *FallbackLadder) playerFilter(intent models.Intent) string {
	if !intent.HasPlayers() {
		return ""
	}
	return fmt.Sprintf(" AND Name IN (%s)", literalList(intent.PlayerNames))
}

// simplifiedAggregation averages or totals one statistic per player. A team
// average reads the per-game totals row.
func (l *FallbackLadder) simplifiedAggregation(question string, intent models.Intent) string {
	q := strings.ToLower(question)
	stat, column, ok := l.statistic(question, intent)
	if !ok {
		return ""
	}
	alias := strings.NewReplacer(" ", "_", "-", "_").Replace(stat)

	switch {
	case strings.Contains(q, "average") || strings.Contains(q, "avg") || strings.Contains(q, "per game"):
		if strings.Contains(q, "team average") || strings.Contains(q, "ucla average") {
			return fmt.Sprintf("SELECT ROUND(AVG(%s), 2) AS team_avg_%s FROM %s WHERE Name = %s",
				column, alias, l.table, sqlutil.QuoteLiteral(l.vocab.TotalsRow()))
		}
		return fmt.Sprintf("SELECT Name, ROUND(AVG(%s), 2) AS avg_%s FROM %s WHERE %s%s GROUP BY Name ORDER BY avg_%s DESC LIMIT 10",
			column, alias, l.table, l.exclusion(), l.playerFilter(intent), alias)
	case strings.Contains(q, "total") || strings.Contains(q, "sum"):
		return fmt.Sprintf("SELECT Name, SUM(%s) AS total_%s FROM %s WHERE %s%s GROUP BY Name ORDER BY total_%s DESC LIMIT 10",
			column, alias, l.table, l.exclusion(), l.playerFilter(intent), alias)
	}
	return ""
}

// basicRows lists the resolved players' most recent games, or the top
// performers when the question asks for the best.
func (l *FallbackLadder) basicRows(question string, intent models.Intent) string {
	if intent.HasPlayers() {
		return fmt.Sprintf(`SELECT Name, Pts, Reb, Ast, "TO", Stl, Blk, Opponent, game_date FROM %s WHERE Name IN (%s) AND %s ORDER BY game_date DESC LIMIT 20`,
			l.table, literalList(intent.PlayerNames), l.exclusion())
	}

	q := strings.ToLower(question)
	if strings.Contains(q, "best") || strings.Contains(q, "top") || strings.Contains(q, "leader") {
		return fmt.Sprintf("SELECT Name, ROUND(AVG(Pts), 1) AS avg_points, ROUND(AVG(Reb), 1) AS avg_rebounds, ROUND(AVG(Ast), 1) AS avg_assists FROM %s WHERE %s GROUP BY Name ORDER BY avg_points DESC LIMIT 10",
			l.table, l.exclusion())
	}
	return ""
}

// roster lists every player with games played.
func (l *FallbackLadder) roster(question string, intent models.Intent) string {
	return fmt.Sprintf("SELECT Name, COUNT(*) AS games_played FROM %s WHERE %s GROUP BY Name ORDER BY games_played DESC LIMIT 15",
		l.table, l.exclusion())
}
