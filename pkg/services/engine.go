package services

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hgovi/Basketball-RAG/pkg/adapters/datasource"
	"github.com/hgovi/Basketball-RAG/pkg/adapters/datasource/sqlite"
	"github.com/hgovi/Basketball-RAG/pkg/apperrors"
	"github.com/hgovi/Basketball-RAG/pkg/llm"
	"github.com/hgovi/Basketball-RAG/pkg/logging"
	"github.com/hgovi/Basketball-RAG/pkg/models"
	sqlutil "github.com/hgovi/Basketball-RAG/pkg/sql"
)

// DefaultConcurrency bounds AskAll when no limit is configured.
const DefaultConcurrency = 4

// EngineConfig configures an Engine.
type EngineConfig struct {
	DBPath            string
	Table             string
	ReadOnly          bool
	GenerationRetries int
	FuzzyThreshold    int
	DistinctLimit     int
	SynthesisRowLimit int
	Concurrency       int
}

// Engine answers questions. Every request gets its own connection and
// components; only the text generator and the query stats are shared.
// Safe for concurrent use.
type Engine struct {
	cfg    EngineConfig
	gen    llm.TextGenerator
	vocab  *Vocabulary
	rules  *sqlutil.Rules
	stats  *sqlite.QueryStats
	logger *zap.Logger
}

// NewEngine returns an engine over the statistics database in cfg.
func NewEngine(cfg EngineConfig, gen llm.TextGenerator, logger *zap.Logger) (*Engine, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.Table == "" {
		return nil, fmt.Errorf("stats table is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}

	vocab, err := DefaultVocabulary()
	if err != nil {
		return nil, fmt.Errorf("failed to load vocabulary: %w", err)
	}

	return &Engine{
		cfg:    cfg,
		gen:    gen,
		vocab:  vocab,
		rules:  sqlutil.NewRules(cfg.Table, vocab.Special, vocab.Simple),
		stats:  sqlite.NewQueryStats(),
		logger: logger,
	}, nil
}

// Stats returns the execution counters across all requests.
func (e *Engine) Stats() sqlite.StatsSnapshot {
	return e.stats.Snapshot()
}

// Vocabulary returns the statistic vocabulary in use.
func (e *Engine) Vocabulary() *Vocabulary {
	return e.vocab
}

func (e *Engine) open(ctx context.Context) (datasource.Store, error) {
	return datasource.New(ctx, sqlite.Type, datasource.Config{
		Path:     e.cfg.DBPath,
		ReadOnly: e.cfg.ReadOnly,
		Stats:    e.stats,
		Logger:   e.logger,
	})
}

// Ask answers a single question.
func (e *Engine) Ask(ctx context.Context, question string) *models.ProcessResult {
	store, err := e.open(ctx)
	if err != nil {
		e.logger.Error("Failed to open statistics store", zap.String("error", logging.SanitizeError(err)))
		return errorResult(question, apperrors.KindInitialization)
	}
	defer func() {
		if err := store.Close(); err != nil {
			e.logger.Warn("Failed to close statistics store", zap.Error(err))
		}
	}()

	return e.newPipeline(ctx, store).ProcessQuery(ctx, question)
}

func (e *Engine) newPipeline(ctx context.Context, store datasource.StatsStore) *Pipeline {
	extractor := NewEntityExtractor(ctx, store, e.gen, EntityExtractorConfig{
		Table:         e.cfg.Table,
		DistinctLimit: e.cfg.DistinctLimit,
		Vocabulary:    e.vocab,
		Matcher:       NewFuzzyMatcher(e.cfg.FuzzyThreshold),
	}, e.logger)
	generator := NewQueryGenerator(ctx, store, e.gen, QueryGeneratorConfig{
		Table:      e.cfg.Table,
		Retries:    e.cfg.GenerationRetries,
		Vocabulary: e.vocab,
	}, e.logger)

	return NewPipeline(
		extractor,
		generator,
		store,
		NewFallbackLadder(e.cfg.Table, e.vocab),
		NewSynthesizer(e.gen, e.cfg.SynthesisRowLimit, e.logger),
		e.logger,
	)
}

// AskAll answers independent questions concurrently, at most
// Concurrency at a time. Results are in question order. The error is
// non-nil only when ctx ends before every question was started.
func (e *Engine) AskAll(ctx context.Context, questions []string) ([]*models.ProcessResult, error) {
	results := make([]*models.ProcessResult, len(questions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i, q := range questions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.Ask(gctx, q)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Inspection describes the statistics database.
type Inspection struct {
	Tables   []string            `json:"tables"`
	Table    string              `json:"table"`
	RowCount int64               `json:"row_count"`
	Schema   *models.TableSchema `json:"schema"`
}

// Inspect lists the database tables and describes the stats table.
// Returns apperrors.ErrTableNotFound when the stats table is missing.
func (e *Engine) Inspect(ctx context.Context) (*Inspection, error) {
	store, err := e.open(ctx)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	tables, err := store.GetTableNames(ctx)
	if err != nil {
		return nil, err
	}
	info := &Inspection{Tables: tables, Table: e.cfg.Table}
	if !slices.Contains(tables, e.cfg.Table) {
		return info, fmt.Errorf("%w: %s", apperrors.ErrTableNotFound, e.cfg.Table)
	}

	if info.Schema, err = store.GetTableSchema(ctx, e.cfg.Table); err != nil {
		return info, err
	}
	if info.RowCount, err = store.GetRowCount(ctx, e.cfg.Table); err != nil {
		return info, err
	}
	return info, nil
}

// Query repairs, validates and runs caller-supplied SQL against the stats
// table. The repaired statement is returned alongside the result.
func (e *Engine) Query(ctx context.Context, sqlQuery string) (*models.QueryResult, string, error) {
	repaired := e.rules.Repair(sqlQuery)
	if valid, reason := e.rules.Validate(repaired); !valid {
		return nil, repaired, fmt.Errorf("invalid query: %s", reason)
	}

	store, err := e.open(ctx)
	if err != nil {
		return nil, repaired, err
	}
	defer store.Close()

	result, err := store.Execute(ctx, repaired, true)
	return result, repaired, err
}

// TestQuery runs the executor diagnostics for sqlQuery.
func (e *Engine) TestQuery(ctx context.Context, sqlQuery string) (*models.QueryTestResult, error) {
	store, err := e.open(ctx)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.TestQuery(ctx, sqlQuery), nil
}
