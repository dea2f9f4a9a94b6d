package services

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hgovi/Basketball-RAG/pkg/adapters/datasource/sqlite"
	"github.com/hgovi/Basketball-RAG/pkg/llm"
	"github.com/hgovi/Basketball-RAG/pkg/models"
	"github.com/hgovi/Basketball-RAG/pkg/testhelpers"
)

// Markers identifying which prompt a generator call belongs to.
const (
	entityPromptMarker    = "Extract entities from"
	sqlPromptMarker       = "expert SQLite query generator"
	synthesisPromptMarker = "Based on the following"
)

// script is the canned model behavior for one test. SQL replies are used in
// order and the last one repeats. sqlErr applies from SQL call sqlErrFrom on.
type script struct {
	entities    string
	entitiesErr error
	sql         []string
	sqlErr      error
	sqlErrFrom  int
	answer      string
	answerErr   error
}

// newScriptedGenerator routes each prompt to the matching canned reply.
func newScriptedGenerator(s script) *llm.MockTextGenerator {
	m := llm.NewMockTextGenerator()
	sqlCalls := 0
	m.GenerateTextFunc = func(ctx context.Context, prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, entityPromptMarker):
			return s.entities, s.entitiesErr
		case strings.Contains(prompt, sqlPromptMarker):
			if s.sqlErr != nil && sqlCalls >= s.sqlErrFrom {
				sqlCalls++
				return "", s.sqlErr
			}
			if len(s.sql) == 0 {
				return "", nil
			}
			reply := s.sql[min(sqlCalls, len(s.sql)-1)]
			sqlCalls++
			return reply, nil
		case strings.Contains(prompt, synthesisPromptMarker):
			return s.answer, s.answerErr
		}
		return "", nil
	}
	return m
}

// promptCount counts recorded prompts containing marker.
func promptCount(m *llm.MockTextGenerator, marker string) int {
	n := 0
	for _, p := range m.Prompts {
		if strings.Contains(p, marker) {
			n++
		}
	}
	return n
}

func testVocabulary(t *testing.T) *Vocabulary {
	t.Helper()
	vocab, err := DefaultVocabulary()
	require.NoError(t, err)
	return vocab
}

// newTestStore opens the seeded fixture read-only.
func newTestStore(t *testing.T) *sqlite.Executor {
	t.Helper()
	store := sqlite.NewExecutor(testhelpers.NewStatsDB(t), sqlite.WithReadOnly(true), sqlite.WithLogger(zap.NewNop()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// fakeStatsStore serves canned known values and schema; Execute is
// optional.
type fakeStatsStore struct {
	values    map[string][]string
	valuesErr error
	schema    *models.TableSchema
	schemaErr error
	execute   func(ctx context.Context, sqlQuery string) (*models.QueryResult, error)

	mu       sync.Mutex
	executed []string
}

func newFakeStatsStore() *fakeStatsStore {
	return &fakeStatsStore{
		values: map[string][]string{
			nameColumn:     {testhelpers.PlayerBetts, testhelpers.PlayerJones, testhelpers.PlayerRice, "TM", "Totals"},
			numberColumn:   {"1", "13", "51"},
			opponentColumn: {"Cal State Fullerton", "Louisville", "USC"},
		},
		schema: &models.TableSchema{
			Table: testhelpers.StatsTable,
			Columns: []models.Column{
				{Name: "Name", Type: "TEXT"},
				{Name: "Pts", Type: "INTEGER"},
			},
		},
	}
}

func (f *fakeStatsStore) GetTableSchema(ctx context.Context, table string) (*models.TableSchema, error) {
	return f.schema, f.schemaErr
}

func (f *fakeStatsStore) GetDistinctValues(ctx context.Context, column, table string, limit int) ([]string, error) {
	if f.valuesErr != nil {
		return nil, f.valuesErr
	}
	return f.values[column], nil
}

func (f *fakeStatsStore) Execute(ctx context.Context, sqlQuery string, validateFirst bool) (*models.QueryResult, error) {
	f.mu.Lock()
	f.executed = append(f.executed, sqlQuery)
	f.mu.Unlock()
	if f.execute == nil {
		return &models.QueryResult{Rows: []map[string]any{}}, nil
	}
	return f.execute(ctx, sqlQuery)
}

func strPtr(s string) *string { return &s }

func floatPtr(v float64) *float64 { return &v }
