package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hgovi/Basketball-RAG/pkg/adapters/datasource"
	"github.com/hgovi/Basketball-RAG/pkg/adapters/datasource/sqlite"
	"github.com/hgovi/Basketball-RAG/pkg/apperrors"
	"github.com/hgovi/Basketball-RAG/pkg/llm"
	"github.com/hgovi/Basketball-RAG/pkg/models"
	"github.com/hgovi/Basketball-RAG/pkg/testhelpers"
)

func newTestPipeline(t *testing.T, store datasource.StatsStore, gen llm.TextGenerator) *Pipeline {
	t.Helper()
	vocab := testVocabulary(t)
	ctx := context.Background()
	logger := zap.NewNop()

	return NewPipeline(
		NewEntityExtractor(ctx, store, gen, EntityExtractorConfig{Table: testhelpers.StatsTable, Vocabulary: vocab}, logger),
		NewQueryGenerator(ctx, store, gen, QueryGeneratorConfig{Table: testhelpers.StatsTable, Retries: DefaultGenerationRetries, Vocabulary: vocab}, logger),
		store,
		NewFallbackLadder(testhelpers.StatsTable, vocab),
		NewSynthesizer(gen, DefaultSynthesisRowLimit, logger),
		logger,
	)
}

func TestPipeline_Success(t *testing.T) {
	gen := newScriptedGenerator(script{
		entities: `{"player_names": ["Lauren Betts"], "statistic": "points"}`,
		sql:      []string{"SELECT Name, AVG(Pts) AS avg_pts FROM ucla_player_stats WHERE Name = 'Betts, Lauren' GROUP BY Name;"},
		answer:   "Lauren Betts averages 22 points per game.",
	})
	p := newTestPipeline(t, newTestStore(t), gen)

	result := p.ProcessQuery(context.Background(), "What is Lauren Betts' average points?")

	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Empty(t, result.ErrorType)
	assert.NotEmpty(t, result.RequestID)
	assert.Equal(t, "What is Lauren Betts' average points?", result.UserQuery)
	assert.Equal(t, "Lauren Betts averages 22 points per game.", result.Response)
	assert.Equal(t, "SELECT Name, AVG(Pts) AS avg_pts FROM ucla_player_stats WHERE Name = 'Betts, Lauren' GROUP BY Name", result.SQLQuery)
	assert.False(t, result.FallbackUsed)

	require.NotNil(t, result.ExtractedEntities)
	assert.Equal(t, []string{testhelpers.PlayerBetts}, result.ExtractedEntities.PlayerNames)

	require.Len(t, result.QueryResults, 1)
	assert.InDelta(t, 22.0, result.QueryResults[0]["avg_pts"], 0.001)

	assert.Equal(t, 1, promptCount(gen, entityPromptMarker))
	assert.Equal(t, 1, promptCount(gen, sqlPromptMarker))
	assert.Equal(t, 1, promptCount(gen, synthesisPromptMarker))
}

func TestPipeline_RequestIDsAreUnique(t *testing.T) {
	gen := newScriptedGenerator(script{
		entities: `{}`,
		sql:      []string{"SELECT COUNT(*) AS n FROM ucla_player_stats"},
		answer:   "15 rows.",
	})
	p := newTestPipeline(t, newTestStore(t), gen)

	first := p.ProcessQuery(context.Background(), "how many rows")
	second := p.ProcessQuery(context.Background(), "how many rows")
	assert.NotEqual(t, first.RequestID, second.RequestID)
}

// An invalid query for an average question falls back to a per-player
// aggregation over the statistic, excluding sentinel rows.
func TestPipeline_ValidationFailureUsesAggregationFallback(t *testing.T) {
	gen := newScriptedGenerator(script{
		entities: `{"statistic": "points"}`,
		sql:      []string{"SELECT Name FROM ucla_player_stats GROUP BY AVG(Pts)"},
		answer:   "Betts leads the team.",
	})
	p := newTestPipeline(t, newTestStore(t), gen)

	result := p.ProcessQuery(context.Background(), "What is the average points per player?")

	require.True(t, result.Success, result.Response)
	assert.True(t, result.FallbackUsed)
	assert.Equal(t, FallbackSimplifiedAggregation, result.FallbackStrategy)
	assert.Equal(t, "Betts leads the team.\n\n"+FallbackNote, result.Response)
	assert.Contains(t, result.SQLQuery, "GROUP BY Name ORDER BY avg_points DESC")
	assert.Contains(t, result.SQLQuery, "Name NOT IN ('Totals', 'TM', 'Team')")

	require.Len(t, result.QueryResults, 3)
	assert.Equal(t, testhelpers.PlayerBetts, result.QueryResults[0]["Name"])
	for _, row := range result.QueryResults {
		assert.NotContains(t, []any{"Totals", "TM", "Team"}, row["Name"])
	}

	// Initial attempt plus two retries.
	assert.Equal(t, 3, promptCount(gen, sqlPromptMarker))
}

func TestPipeline_GeneratorErrorAfterInvalidSQLUsesFallback(t *testing.T) {
	gen := newScriptedGenerator(script{
		entities:   `{"statistic": "points"}`,
		sql:        []string{"SELECT Name FROM other_table"},
		sqlErr:     errors.New("502 bad gateway"),
		sqlErrFrom: 1,
		answer:     "Betts leads the team.",
	})
	p := newTestPipeline(t, newTestStore(t), gen)

	result := p.ProcessQuery(context.Background(), "What is the average points per player?")

	require.True(t, result.Success, result.Response)
	assert.Empty(t, result.ErrorType)
	assert.True(t, result.FallbackUsed)
	assert.Equal(t, FallbackSimplifiedAggregation, result.FallbackStrategy)
	assert.Contains(t, result.SQLQuery, "GROUP BY Name ORDER BY avg_points DESC")
	assert.Equal(t, 2, promptCount(gen, sqlPromptMarker))
}

func TestPipeline_ExecutionFailureUsesFallback(t *testing.T) {
	gen := newScriptedGenerator(script{
		entities: `{}`,
		sql:      []string{"SELECT Nme, Pts FROM ucla_player_stats ORDER BY Pts DESC"},
		answer:   "Here are the leaders.",
	})
	p := newTestPipeline(t, newTestStore(t), gen)

	result := p.ProcessQuery(context.Background(), "Who are the top players?")

	require.True(t, result.Success, result.Response)
	assert.True(t, result.FallbackUsed)
	assert.Equal(t, FallbackBasicRows, result.FallbackStrategy)
	assert.True(t, strings.HasSuffix(result.Response, FallbackNote))
	assert.Equal(t, testhelpers.PlayerBetts, result.QueryResults[0]["Name"])
}

func TestPipeline_RosterIsLastResort(t *testing.T) {
	gen := newScriptedGenerator(script{
		entities: `{}`,
		sql:      []string{"SELECT Nme FROM ucla_player_stats"},
		answer:   "Three players.",
	})
	p := newTestPipeline(t, newTestStore(t), gen)

	result := p.ProcessQuery(context.Background(), "Tell me about the season")

	require.True(t, result.Success, result.Response)
	assert.Equal(t, FallbackRoster, result.FallbackStrategy)
	assert.Len(t, result.QueryResults, 3)
	assert.Equal(t, int64(3), result.QueryResults[0]["games_played"])
}

func TestPipeline_FallbackExhausted(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		expected apperrors.Kind
		message  string
	}{
		{"validation", "SELECT Name FROM ucla_player_stats GROUP BY AVG(Pts)", apperrors.KindValidation, msgValidationFailed},
		{"execution", "SELECT Nme FROM ucla_player_stats", apperrors.KindExecution, msgExecutionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := sqlite.NewExecutor(testhelpers.NewEmptyDB(t), sqlite.WithReadOnly(true))
			t.Cleanup(func() { _ = store.Close() })

			gen := newScriptedGenerator(script{entities: `{}`, sql: []string{tt.sql}})
			result := newTestPipeline(t, store, gen).ProcessQuery(context.Background(), "average points")

			assert.False(t, result.Success)
			assert.Equal(t, tt.expected, result.ErrorType)
			assert.Equal(t, tt.message, result.Response)
			assert.Empty(t, result.SQLQuery)
			assert.Nil(t, result.QueryResults)
			assert.False(t, result.FallbackUsed)
		})
	}
}

// A player query with no rows is retried without the player filter and the
// rows found are returned as an approximate answer.
func TestPipeline_EmptyResultRepair(t *testing.T) {
	gen := newScriptedGenerator(script{
		entities: `{"player_names": ["Lauren Betts"], "statistic": "three pointers"}`,
		sql:      []string{`SELECT Name, "3PTM", Opponent FROM ucla_player_stats WHERE Name = 'Betts, Lauren' AND "3PTM" > 0 AND Name NOT IN ('Totals', 'TM', 'Team')`},
		answer:   "Rice and Jones made threes.",
	})
	p := newTestPipeline(t, newTestStore(t), gen)

	result := p.ProcessQuery(context.Background(), "Games where Lauren Betts made a three pointer")

	require.True(t, result.Success, result.Response)
	assert.True(t, result.Approximate)
	assert.True(t, result.FallbackUsed)
	assert.Equal(t, FallbackEmptyResultRepair, result.FallbackStrategy)
	assert.True(t, strings.HasPrefix(result.Response, msgApproximate))
	assert.Contains(t, result.Response, "Rice and Jones made threes.")
	assert.NotContains(t, result.SQLQuery, "Betts")
	assert.Contains(t, result.SQLQuery, "1 = 1")
	assert.Len(t, result.QueryResults, approximateRowLimit)
	assert.Empty(t, result.ErrorType)
}

func TestPipeline_EmptyResultsNotAnError(t *testing.T) {
	tests := []struct {
		name     string
		entities string
		sql      string
	}{
		{
			name:     "repair also empty",
			entities: `{"player_names": ["Lauren Betts"], "opponent": "UConn"}`,
			sql:      "SELECT Name, Pts FROM ucla_player_stats WHERE Name = 'Betts, Lauren' AND Opponent = 'UConn'",
		},
		{
			name:     "no player to drop",
			entities: `{"statistic": "points"}`,
			sql:      "SELECT Name, Pts FROM ucla_player_stats WHERE Pts > 100",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := newScriptedGenerator(script{entities: tt.entities, sql: []string{tt.sql}, answer: "unused"})
			result := newTestPipeline(t, newTestStore(t), gen).ProcessQuery(context.Background(), "question")

			assert.False(t, result.Success)
			assert.True(t, result.EmptyResults)
			assert.Empty(t, result.ErrorType)
			assert.Equal(t, msgEmptyResults, result.Response)
			assert.NotNil(t, result.QueryResults)
			assert.Empty(t, result.QueryResults)
			assert.False(t, result.Approximate)
			assert.Equal(t, 0, promptCount(gen, synthesisPromptMarker))
		})
	}
}

func TestPipeline_GeneratorUnavailable(t *testing.T) {
	tests := []struct {
		name     string
		gen      llm.TextGenerator
		expected apperrors.Kind
	}{
		{"missing credential", llm.NewUnavailable("m", llm.ErrMissingCredential), apperrors.KindCredentialMissing},
		{"initialization", llm.NewUnavailable("m", errors.New("dial tcp: connection refused")), apperrors.KindInitialization},
		{"generation", newScriptedGenerator(script{entities: `{}`, sqlErr: errors.New("rate limited")}), apperrors.KindGeneration},
		{"empty reply", newScriptedGenerator(script{entities: `{}`}), apperrors.KindGeneration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var result *models.ProcessResult
			require.NotPanics(t, func() {
				result = newTestPipeline(t, newTestStore(t), tt.gen).ProcessQuery(context.Background(), "Who leads in points?")
			})

			assert.False(t, result.Success)
			assert.Equal(t, tt.expected, result.ErrorType)
			assert.Equal(t, msgGenerationFailed, result.Response)
			assert.Empty(t, result.SQLQuery)
			assert.NotNil(t, result.ExtractedEntities)
		})
	}
}

type panickingExtractor struct{}

func (panickingExtractor) Extract(ctx context.Context, question string) models.Intent {
	panic("boom")
}

func TestPipeline_RecoversFromPanic(t *testing.T) {
	vocab := testVocabulary(t)
	store := newFakeStatsStore()
	gen := llm.NewMockTextGenerator()
	p := NewPipeline(
		panickingExtractor{},
		NewQueryGenerator(context.Background(), store, gen, QueryGeneratorConfig{Table: testhelpers.StatsTable, Vocabulary: vocab}, zap.NewNop()),
		store,
		NewFallbackLadder(testhelpers.StatsTable, vocab),
		NewSynthesizer(gen, 0, zap.NewNop()),
		zap.NewNop(),
	)

	var result *models.ProcessResult
	require.NotPanics(t, func() {
		result = p.ProcessQuery(context.Background(), "anything")
	})
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Equal(t, apperrors.KindPipeline, result.ErrorType)
	assert.Equal(t, msgUnexpected, result.Response)
	assert.NotEmpty(t, result.RequestID)
}

func TestStripPlayerFilter(t *testing.T) {
	players := []string{testhelpers.PlayerBetts, "O'Neil, Shay"}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "equality",
			input:    "SELECT * FROM t WHERE Name = 'Betts, Lauren' AND Pts > 10",
			expected: "SELECT * FROM t WHERE 1 = 1 AND Pts > 10",
		},
		{
			name:     "in list",
			input:    "SELECT * FROM t WHERE Name IN ('Rice, Kiki', 'Betts, Lauren') ORDER BY Pts",
			expected: "SELECT * FROM t WHERE 1 = 1 ORDER BY Pts",
		},
		{
			name:     "escaped quote",
			input:    "SELECT * FROM t WHERE name = 'O''Neil, Shay'",
			expected: "SELECT * FROM t WHERE 1 = 1",
		},
		{
			name:     "sentinel exclusion kept",
			input:    "SELECT * FROM t WHERE Name = 'Betts, Lauren' AND Name NOT IN ('Totals', 'TM')",
			expected: "SELECT * FROM t WHERE 1 = 1 AND Name NOT IN ('Totals', 'TM')",
		},
		{
			name:     "other player kept",
			input:    "SELECT * FROM t WHERE Name = 'Rice, Kiki'",
			expected: "SELECT * FROM t WHERE Name = 'Rice, Kiki'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, stripPlayerFilter(tt.input, players))
		})
	}
}

func TestGenerationKind(t *testing.T) {
	assert.Equal(t, apperrors.KindCredentialMissing, generationKind(llm.NewUnavailable("m", llm.ErrMissingCredential).Err()))
	assert.Equal(t, apperrors.KindInitialization, generationKind(llm.NewUnavailable("m", errors.New("x")).Err()))
	assert.Equal(t, apperrors.KindGeneration, generationKind(errors.New("x")))
	assert.Equal(t, apperrors.KindGeneration, generationKind(nil))
}
