package services

import (
	"context"
	"errors"
	"regexp"
	"runtime/debug"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hgovi/Basketball-RAG/pkg/adapters/datasource"
	"github.com/hgovi/Basketball-RAG/pkg/apperrors"
	"github.com/hgovi/Basketball-RAG/pkg/llm"
	"github.com/hgovi/Basketball-RAG/pkg/logging"
	"github.com/hgovi/Basketball-RAG/pkg/models"
)

// PipelineState is a step of ProcessQuery.
type PipelineState string

const (
	StateStart             PipelineState = "START"
	StateEntitiesExtracted PipelineState = "ENTITIES_EXTRACTED"
	StateSQLGenerated      PipelineState = "SQL_GENERATED"
	StateSQLValidated      PipelineState = "SQL_VALIDATED"
	StateExecuted          PipelineState = "EXECUTED"
	StateFallback          PipelineState = "FALLBACK"
	StateResponseReady     PipelineState = "RESPONSE_READY"
	StateError             PipelineState = "ERROR"
)

// FallbackEmptyResultRepair names the empty-result retry without the player
// filter.
const FallbackEmptyResultRepair = "empty_result_repair"

// approximateRowLimit caps rows returned by the empty-result repair.
const approximateRowLimit = 5

// User-facing messages. Error details are logged, never returned.
const (
	msgGenerationFailed = "The system could not create a valid SQL query for your request."
	msgValidationFailed = "The system generated an incompatible query. Please try rephrasing your question."
	msgExecutionFailed  = "There was an error running your query. Please try a simpler version of your question."
	msgEmptyResults     = "I couldn't find any data matching your criteria. Please try rephrasing your question or asking about different players or statistics."
	msgApproximate      = "I couldn't find specific data for that player. Here's what I found instead:\n"
	msgUnexpected       = "I encountered an unexpected error while processing your request. Please try again or rephrase your question."
	msgUnavailable      = "The statistics database is unavailable. Please try again later."
)

// Pipeline answers one question: extract, generate, validate, execute,
// recover and synthesize. A Pipeline belongs to a single request.
type Pipeline struct {
	extractor EntityExtractor
	generator QueryGenerator
	store     datasource.StatsStore
	ladder    *FallbackLadder
	synth     *Synthesizer
	logger    *zap.Logger
}

// NewPipeline wires the per-request components.
func NewPipeline(
	extractor EntityExtractor,
	generator QueryGenerator,
	store datasource.StatsStore,
	ladder *FallbackLadder,
	synth *Synthesizer,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		generator: generator,
		store:     store,
		ladder:    ladder,
		synth:     synth,
		logger:    logger.Named("pipeline"),
	}
}

// run tracks one ProcessQuery call.
type run struct {
	p        *Pipeline
	logger   *zap.Logger
	state    PipelineState
	question string
	intent   models.Intent
	result   *models.ProcessResult
}

func (r *run) transition(to PipelineState) {
	r.logger.Debug("Pipeline transition",
		zap.String("from", string(r.state)),
		zap.String("to", string(to)))
	r.state = to
}

// fail moves to ERROR and fills the caller-facing failure.
func (r *run) fail(kind apperrors.Kind, message string) *models.ProcessResult {
	r.transition(StateError)
	r.result.Success = false
	r.result.ErrorType = kind
	r.result.Response = message
	r.result.SQLQuery = ""
	r.result.QueryResults = nil
	return r.result
}

// ProcessQuery answers question. It never returns nil and never panics;
// failures are reported through Success and ErrorType.
func (p *Pipeline) ProcessQuery(ctx context.Context, question string) (result *models.ProcessResult) {
	requestID := uuid.New().String()
	r := &run{
		p:        p,
		logger:   p.logger.With(zap.String("request_id", requestID)),
		question: question,
		result:   &models.ProcessResult{RequestID: requestID, UserQuery: question},
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Pipeline panicked",
				zap.Any("panic", rec),
				zap.String("stack", string(debug.Stack())))
			result = r.fail(apperrors.KindPipeline, msgUnexpected)
		}
	}()

	r.logger.Info("Processing question", zap.String("question", logging.TruncateString(question, 200)))
	r.transition(StateStart)
	return r.process(ctx)
}

func (r *run) process(ctx context.Context) *models.ProcessResult {
	p := r.p

	r.intent = p.extractor.Extract(ctx, r.question)
	r.result.ExtractedEntities = &r.intent
	r.transition(StateEntitiesExtracted)

	query := p.generator.Generate(ctx, r.question, r.intent)
	if query.Empty() {
		kind := generationKind(query.Err)
		r.logger.Error("No SQL generated",
			zap.String("error_type", string(kind)),
			zap.String("error", logging.SanitizeError(query.Err)))
		return r.fail(kind, msgGenerationFailed)
	}
	r.result.SQLQuery = query.SQL
	r.transition(StateSQLGenerated)

	if valid, reason := p.generator.Validate(query.SQL); !valid {
		r.logger.Error("SQL validation failed",
			zap.String("reason", reason),
			zap.String("sql", logging.SanitizeQuery(query.SQL)))
		if res := r.fallback(ctx); res != nil {
			return res
		}
		return r.fail(apperrors.KindValidation, msgValidationFailed)
	}
	r.transition(StateSQLValidated)

	rows, err := p.store.Execute(ctx, query.SQL, true)
	if err != nil {
		r.logger.Error("SQL execution failed",
			zap.String("error", logging.SanitizeError(err)),
			zap.String("sql", logging.SanitizeQuery(query.SQL)))
		if res := r.fallback(ctx); res != nil {
			return res
		}
		return r.fail(apperrors.KindExecution, msgExecutionFailed)
	}
	r.transition(StateExecuted)

	if rows.RowCount == 0 {
		r.logger.Warn("Query returned no rows")
		if res := r.repairEmpty(ctx, query.SQL); res != nil {
			return res
		}
		r.transition(StateResponseReady)
		r.result.Success = false
		r.result.EmptyResults = true
		r.result.QueryResults = []map[string]any{}
		r.result.Response = msgEmptyResults
		return r.result
	}

	r.result.QueryResults = rows.Rows
	r.result.Response = p.synth.Synthesize(ctx, r.question, query.SQL, rows)
	r.result.Success = true
	r.transition(StateResponseReady)

	r.logger.Info("Answered question", zap.Int("rows", rows.RowCount))
	return r.result
}

// fallback walks the ladder and returns the first strategy that validates,
// executes and returns rows. Returns nil when every strategy failed.
func (r *run) fallback(ctx context.Context) *models.ProcessResult {
	r.transition(StateFallback)
	p := r.p

	for i, strategy := range p.ladder.Strategies() {
		log := r.logger.With(zap.Int("step", i+1), zap.String("strategy", strategy.Name))

		sqlQuery := strategy.Build(r.question, r.intent)
		if sqlQuery == "" {
			log.Debug("Fallback strategy not applicable")
			continue
		}
		if valid, reason := p.generator.Validate(sqlQuery); !valid {
			log.Warn("Fallback strategy produced invalid SQL", zap.String("reason", reason))
			continue
		}
		rows, err := p.store.Execute(ctx, sqlQuery, true)
		if err != nil {
			log.Warn("Fallback strategy execution failed", zap.String("error", logging.SanitizeError(err)))
			continue
		}
		if rows.RowCount == 0 {
			log.Debug("Fallback strategy returned no rows")
			continue
		}

		log.Info("Fallback strategy succeeded", zap.Int("rows", rows.RowCount))
		answer := p.synth.Synthesize(ctx, r.question, sqlQuery, rows)
		r.result.SQLQuery = sqlQuery
		r.result.QueryResults = rows.Rows
		r.result.Response = answer + "\n\n" + FallbackNote
		r.result.Success = true
		r.result.FallbackUsed = true
		r.result.FallbackStrategy = strategy.Name
		r.transition(StateResponseReady)
		return r.result
	}

	r.logger.Warn("All fallback strategies failed", zap.Error(apperrors.ErrNoFallbackResult))
	return nil
}

// Player predicates: Name = '...' or Name IN ('...', ...).
var playerPredicatePattern = regexp.MustCompile(`(?i)\bName\s*(?:=\s*'(?:[^']|'')*'|IN\s*\(\s*'(?:[^']|'')*'(?:\s*,\s*'(?:[^']|'')*')*\s*\))`)

// stripPlayerFilter replaces predicates naming any of players with 1 = 1.
func stripPlayerFilter(sqlQuery string, players []string) string {
	return playerPredicatePattern.ReplaceAllStringFunc(sqlQuery, func(pred string) string {
		for _, name := range players {
			if strings.Contains(pred, strings.ReplaceAll(name, "'", "''")) {
				return "1 = 1"
			}
		}
		return pred
	})
}

// repairEmpty reruns an empty player query without the player filter and
// returns the first rows as an approximate answer.
func (r *run) repairEmpty(ctx context.Context, sqlQuery string) *models.ProcessResult {
	if !r.intent.HasPlayers() {
		return nil
	}
	modified := stripPlayerFilter(sqlQuery, r.intent.PlayerNames)
	if modified == sqlQuery {
		return nil
	}
	r.transition(StateFallback)

	if valid, reason := r.p.generator.Validate(modified); !valid {
		r.logger.Warn("Empty-result repair produced invalid SQL", zap.String("reason", reason))
		return nil
	}
	rows, err := r.p.store.Execute(ctx, modified, true)
	if err != nil || rows.RowCount == 0 {
		r.logger.Debug("Empty-result repair found nothing", zap.Error(err))
		return nil
	}

	top := rows.Truncate(approximateRowLimit)
	r.result.SQLQuery = modified
	r.result.QueryResults = top.Rows
	r.result.Response = msgApproximate + r.p.synth.Synthesize(ctx, r.question, modified, top)
	r.result.Success = true
	r.result.FallbackUsed = true
	r.result.FallbackStrategy = FallbackEmptyResultRepair
	r.result.Approximate = true
	r.transition(StateResponseReady)
	return r.result
}

// generationKind classifies why no SQL was produced.
func generationKind(err error) apperrors.Kind {
	switch {
	case errors.Is(err, llm.ErrMissingCredential):
		return apperrors.KindCredentialMissing
	case errors.Is(err, llm.ErrNotInitialized):
		return apperrors.KindInitialization
	default:
		return apperrors.KindGeneration
	}
}

// errorResult builds a failed result outside a pipeline run.
func errorResult(question string, kind apperrors.Kind) *models.ProcessResult {
	message := msgUnexpected
	if kind == apperrors.KindInitialization {
		message = msgUnavailable
	}
	return &models.ProcessResult{
		RequestID: uuid.New().String(),
		UserQuery: question,
		Response:  message,
		ErrorType: kind,
	}
}
