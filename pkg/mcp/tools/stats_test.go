package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hgovi/Basketball-RAG/pkg/adapters/datasource/sqlite"
	"github.com/hgovi/Basketball-RAG/pkg/llm"
	"github.com/hgovi/Basketball-RAG/pkg/models"
	"github.com/hgovi/Basketball-RAG/pkg/services"
	"github.com/hgovi/Basketball-RAG/pkg/testhelpers"
)

// fakeEngine records calls and answers every question successfully.
type fakeEngine struct {
	mu        sync.Mutex
	asked     []string
	batches   [][]string
	askAllErr error
	query     func(sql string) (*models.QueryResult, string, error)
	stats     sqlite.StatsSnapshot
}

func (f *fakeEngine) Ask(ctx context.Context, question string) *models.ProcessResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append(f.asked, question)
	return &models.ProcessResult{RequestID: "req-1", UserQuery: question, Response: "answer to " + question, Success: true}
}

func (f *fakeEngine) AskAll(ctx context.Context, questions []string) ([]*models.ProcessResult, error) {
	f.mu.Lock()
	f.batches = append(f.batches, questions)
	f.mu.Unlock()
	if f.askAllErr != nil {
		return nil, f.askAllErr
	}
	results := make([]*models.ProcessResult, len(questions))
	for i, q := range questions {
		results[i] = &models.ProcessResult{RequestID: fmt.Sprintf("req-%d", i), UserQuery: q, Success: true}
	}
	return results, nil
}

func (f *fakeEngine) Query(ctx context.Context, sql string) (*models.QueryResult, string, error) {
	return f.query(sql)
}

func (f *fakeEngine) Stats() sqlite.StatsSnapshot {
	return f.stats
}

type toolResponse struct {
	Result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newStatsTestServer(engine StatsEngine) *server.MCPServer {
	s := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	deps := &StatsToolDeps{Engine: engine, Model: "mock-model", Logger: zap.NewNop()}
	RegisterStatsTools(s, deps)
	RegisterHealthTool(s, "1.2.3", deps)
	return s
}

// callTool sends a tools/call request through the server.
func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) toolResponse {
	t.Helper()
	request, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	})
	require.NoError(t, err)

	raw, err := json.Marshal(s.HandleMessage(context.Background(), request))
	require.NoError(t, err)

	var resp toolResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

func (r toolResponse) text(t *testing.T) string {
	t.Helper()
	require.Nil(t, r.Error, "unexpected JSON-RPC error")
	require.Len(t, r.Result.Content, 1)
	return r.Result.Content[0].Text
}

func TestRegisterStatsTools_ListsTools(t *testing.T) {
	s := newStatsTestServer(&fakeEngine{})

	raw, err := json.Marshal(s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`)))
	require.NoError(t, err)

	var response struct {
		Result struct {
			Tools []struct {
				Name        string `json:"name"`
				Annotations struct {
					ReadOnlyHint *bool `json:"readOnlyHint"`
				} `json:"annotations"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &response))

	names := make(map[string]bool)
	for _, tool := range response.Result.Tools {
		names[tool.Name] = true
		require.NotNil(t, tool.Annotations.ReadOnlyHint, tool.Name)
		assert.True(t, *tool.Annotations.ReadOnlyHint, tool.Name)
	}
	assert.Equal(t, map[string]bool{"ask_basketball_stats": true, "query_statistics": true, "health": true}, names)
}

func TestAskTool_SingleQuestion(t *testing.T) {
	engine := &fakeEngine{}
	s := newStatsTestServer(engine)

	resp := callTool(t, s, "ask_basketball_stats", map[string]any{"question": "  Who scored the most points?  "})

	var result models.ProcessResult
	require.NoError(t, json.Unmarshal([]byte(resp.text(t)), &result))
	assert.False(t, resp.Result.IsError)
	assert.True(t, result.Success)
	assert.Equal(t, "answer to Who scored the most points?", result.Response)
	assert.Equal(t, []string{"Who scored the most points?"}, engine.asked)
	assert.Empty(t, engine.batches)
}

func TestAskTool_InvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		args     map[string]any
		contains string
	}{
		{"missing question", map[string]any{}, "question"},
		{"blank question", map[string]any{"question": "   "}, "cannot be empty"},
		{"questions not an array", map[string]any{"question": "a", "questions": 5}, "must be an array"},
		{"questions with a number", map[string]any{"question": "a", "questions": []any{"b", 2}}, "element 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{}
			resp := callTool(t, newStatsTestServer(engine), "ask_basketball_stats", tt.args)

			assert.True(t, resp.Result.IsError)
			var errResp ErrorResponse
			require.NoError(t, json.Unmarshal([]byte(resp.text(t)), &errResp))
			assert.Equal(t, "invalid_input", errResp.Code)
			assert.Contains(t, errResp.Message, tt.contains)
			assert.Empty(t, engine.asked)
		})
	}
}

func TestAskTool_Batch(t *testing.T) {
	engine := &fakeEngine{}
	s := newStatsTestServer(engine)

	resp := callTool(t, s, "ask_basketball_stats", map[string]any{
		"question":  "first",
		"questions": `["second", " ", "third"]`,
	})

	var batch struct {
		Results []models.ProcessResult `json:"results"`
		Count   int                    `json:"count"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp.text(t)), &batch))
	assert.Equal(t, 3, batch.Count)
	require.Len(t, batch.Results, 3)
	assert.Equal(t, "third", batch.Results[2].UserQuery)
	assert.Equal(t, [][]string{{"first", "second", "third"}}, engine.batches)
	assert.Empty(t, engine.asked)
}

func TestAskTool_BatchLimit(t *testing.T) {
	engine := &fakeEngine{}
	more := make([]any, maxBatchQuestions)
	for i := range more {
		more[i] = fmt.Sprintf("q%d", i)
	}

	resp := callTool(t, newStatsTestServer(engine), "ask_basketball_stats", map[string]any{"question": "first", "questions": more})

	assert.True(t, resp.Result.IsError)
	assert.Contains(t, resp.text(t), "at most")
	assert.Empty(t, engine.batches)
}

func TestAskTool_BatchInterrupted(t *testing.T) {
	engine := &fakeEngine{askAllErr: context.Canceled}

	resp := callTool(t, newStatsTestServer(engine), "ask_basketball_stats", map[string]any{"question": "a", "questions": []any{"b"}})

	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "batch ask interrupted")
}

func TestQueryStatisticsTool_Limit(t *testing.T) {
	rows := make([]map[string]any, 5)
	for i := range rows {
		rows[i] = map[string]any{"n": i}
	}
	engine := &fakeEngine{query: func(sql string) (*models.QueryResult, string, error) {
		return &models.QueryResult{Columns: []string{"n"}, Rows: rows, RowCount: len(rows)}, sql, nil
	}}

	tests := []struct {
		name      string
		limit     any
		wantRows  int
		truncated bool
	}{
		{"default", nil, 5, false},
		{"smaller", 2, 2, true},
		{"zero ignored", 0, 5, false},
		{"above max", 5000, 5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := map[string]any{"sql": "SELECT n FROM t"}
			if tt.limit != nil {
				args["limit"] = tt.limit
			}
			resp := callTool(t, newStatsTestServer(engine), "query_statistics", args)

			var out queryStatisticsResponse
			require.NoError(t, json.Unmarshal([]byte(resp.text(t)), &out))
			assert.Equal(t, tt.wantRows, out.RowCount)
			assert.Len(t, out.Rows, tt.wantRows)
			assert.Equal(t, tt.truncated, out.Truncated)
			assert.Equal(t, []string{"n"}, out.Columns)
		})
	}
}

func TestQueryStatisticsTool_ServerError(t *testing.T) {
	engine := &fakeEngine{query: func(sql string) (*models.QueryResult, string, error) {
		return nil, sql, errors.New("disk I/O failure")
	}}

	resp := callTool(t, newStatsTestServer(engine), "query_statistics", map[string]any{"sql": "SELECT 1"})

	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "query execution failed")
}

func newRealEngine(t *testing.T) *services.Engine {
	t.Helper()
	engine, err := services.NewEngine(services.EngineConfig{
		DBPath:   testhelpers.NewStatsDB(t),
		Table:    testhelpers.StatsTable,
		ReadOnly: true,
	}, llm.NewMockTextGenerator(), zap.NewNop())
	require.NoError(t, err)
	return engine
}

func TestQueryStatisticsTool_SQLite(t *testing.T) {
	s := newStatsTestServer(newRealEngine(t))

	resp := callTool(t, s, "query_statistics", map[string]any{
		"sql": "SELECT Name, SUM(3PTM) AS threes FROM ucla_player_stats WHERE Name NOT IN ('Totals', 'TM') GROUP BY Name ORDER BY threes DESC",
	})

	var out queryStatisticsResponse
	require.NoError(t, json.Unmarshal([]byte(resp.text(t)), &out))
	assert.Contains(t, out.SQL, `SUM("3PTM")`)
	assert.Equal(t, 3, out.RowCount)
	assert.False(t, out.Truncated)
	assert.Equal(t, testhelpers.PlayerJones, out.Rows[0]["Name"])
	assert.Equal(t, float64(8), out.Rows[0]["threes"])
}

func TestQueryStatisticsTool_UserErrors(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		code string
	}{
		{"unknown column", "SELECT Nme FROM ucla_player_stats", "undefined_column"},
		{"aggregate in group by", "SELECT Name FROM ucla_player_stats GROUP BY AVG(Pts)", "invalid_query"},
		{"blank", "  ", "invalid_input"},
	}

	s := newStatsTestServer(newRealEngine(t))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := callTool(t, s, "query_statistics", map[string]any{"sql": tt.sql})

			assert.True(t, resp.Result.IsError)
			var errResp ErrorResponse
			require.NoError(t, json.Unmarshal([]byte(resp.text(t)), &errResp))
			assert.Equal(t, tt.code, errResp.Code)
		})
	}
}

func TestAskTool_EndToEnd(t *testing.T) {
	gen := llm.NewMockTextGeneratorWithResponses(
		`{"player_names": ["Lauren Betts"], "statistic": "points"}`,
		"SELECT Name, AVG(Pts) AS avg_pts FROM ucla_player_stats WHERE Name = 'Betts, Lauren' GROUP BY Name",
		"Lauren Betts averages 22 points.",
	)
	engine, err := services.NewEngine(services.EngineConfig{
		DBPath:   testhelpers.NewStatsDB(t),
		Table:    testhelpers.StatsTable,
		ReadOnly: true,
	}, gen, zap.NewNop())
	require.NoError(t, err)
	s := newStatsTestServer(engine)

	resp := callTool(t, s, "ask_basketball_stats", map[string]any{"question": "What is Lauren Betts' scoring average?"})

	var result models.ProcessResult
	require.NoError(t, json.Unmarshal([]byte(resp.text(t)), &result))
	require.True(t, result.Success, result.Response)
	assert.Equal(t, "Lauren Betts averages 22 points.", result.Response)
	require.Len(t, result.QueryResults, 1)
	assert.Equal(t, float64(22), result.QueryResults[0]["avg_pts"])
	assert.Equal(t, 3, gen.CallCount())

	health := callTool(t, s, "health", nil)
	var h healthResult
	require.NoError(t, json.Unmarshal([]byte(health.text(t)), &h))
	require.NotNil(t, h.Stats)
	assert.Equal(t, int64(1), h.Stats.TotalQueries)
	assert.Equal(t, float64(1), h.Stats.SuccessRate)
	assert.GreaterOrEqual(t, h.Stats.AvgExecutionTimeMs, float64(0))
}

func TestHealthTool_StatsSnapshot(t *testing.T) {
	engine := &fakeEngine{stats: sqlite.StatsSnapshot{
		TotalQueries:     4,
		FailedQueries:    1,
		AvgExecutionTime: 1500 * time.Microsecond,
		SuccessRate:      0.75,
	}}

	resp := callTool(t, newStatsTestServer(engine), "health", nil)

	var h healthResult
	require.NoError(t, json.Unmarshal([]byte(resp.text(t)), &h))
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "1.2.3", h.Version)
	assert.Equal(t, "mock-model", h.Model)
	require.NotNil(t, h.Stats)
	assert.Equal(t, int64(4), h.Stats.TotalQueries)
	assert.Equal(t, int64(1), h.Stats.FailedQueries)
	assert.InDelta(t, 1.5, h.Stats.AvgExecutionTimeMs, 1e-9)
	assert.InDelta(t, 0.75, h.Stats.SuccessRate, 1e-9)
}
