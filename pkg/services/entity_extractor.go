package services

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hgovi/Basketball-RAG/pkg/adapters/datasource"
	"github.com/hgovi/Basketball-RAG/pkg/jsonutil"
	"github.com/hgovi/Basketball-RAG/pkg/llm"
	"github.com/hgovi/Basketball-RAG/pkg/logging"
	"github.com/hgovi/Basketball-RAG/pkg/models"
	"github.com/hgovi/Basketball-RAG/pkg/prompts"
	sqlutil "github.com/hgovi/Basketball-RAG/pkg/sql"
)

// Columns holding the known values free text is resolved against.
const (
	nameColumn     = "Name"
	numberColumn   = "No"
	opponentColumn = "Opponent"
)

// EntityExtractor turns a question into a resolved Intent.
type EntityExtractor interface {
	// Extract never fails; unrecognized or unresolvable fields are left empty.
	Extract(ctx context.Context, question string) models.Intent
}

// EntityExtractorConfig configures NewEntityExtractor.
type EntityExtractorConfig struct {
	Table         string
	DistinctLimit int
	Vocabulary    *Vocabulary
	Matcher       *FuzzyMatcher
}

type entityExtractor struct {
	gen     llm.TextGenerator
	vocab   *Vocabulary
	matcher *FuzzyMatcher
	logger  *zap.Logger

	players   *OptionSet
	numbers   *OptionSet
	opponents *OptionSet
}

// NewEntityExtractor loads the known player names, jersey numbers and
// opponents from store. A store that cannot supply them leaves the sets
// empty and every free-text field unresolved.
func NewEntityExtractor(ctx context.Context, store datasource.StatsStore, gen llm.TextGenerator, cfg EntityExtractorConfig, logger *zap.Logger) EntityExtractor {
	if cfg.Matcher == nil {
		cfg.Matcher = NewFuzzyMatcher(DefaultFuzzyThreshold)
	}
	e := &entityExtractor{
		gen:     gen,
		vocab:   cfg.Vocabulary,
		matcher: cfg.Matcher,
		logger:  logger.Named("entities"),
	}

	load := func(column string) *OptionSet {
		values, err := store.GetDistinctValues(ctx, column, cfg.Table, cfg.DistinctLimit)
		if err != nil {
			e.logger.Warn("Failed to load known values",
				zap.String("column", column),
				zap.String("error", logging.SanitizeError(err)))
		}
		return NewOptionSet(values)
	}
	e.players = load(nameColumn)
	e.numbers = load(numberColumn)
	e.opponents = load(opponentColumn)

	e.logger.Debug("Loaded known values",
		zap.Int("players", e.players.Len()),
		zap.Int("numbers", e.numbers.Len()),
		zap.Int("opponents", e.opponents.Len()))
	return e
}

// rawEntities are unresolved values from the model or the pattern extractor.
type rawEntities struct {
	PlayerNames       []string
	PlayerNumber      string
	Opponent          string
	Statistic         string
	Comparison        string
	Value             *float64
	ExcludeTotals     *bool
	IsComparisonQuery *bool
}

func (e *entityExtractor) Extract(ctx context.Context, question string) models.Intent {
	raw, ok := e.extractWithModel(ctx, question)
	if !ok {
		raw = e.extractWithPatterns(question)
	}
	intent := e.resolve(raw)

	e.logger.Info("Extracted entities",
		zap.Bool("model", ok),
		zap.String("intent", intent.String()))
	return intent
}

func (e *entityExtractor) extractWithModel(ctx context.Context, question string) (rawEntities, bool) {
	response, err := e.gen.GenerateText(ctx, prompts.BuildEntityExtractionPrompt(question))
	if err != nil {
		e.logger.Warn("Entity extraction call failed, using pattern extraction",
			zap.String("error_type", string(llm.GetErrorType(err))),
			zap.String("error", logging.SanitizeError(err)))
		return rawEntities{}, false
	}

	jsonStr, err := llm.ExtractJSON(response)
	if err != nil {
		e.logger.Warn("No JSON in entity extraction response, using pattern extraction",
			zap.String("response", logging.TruncateString(response, 200)))
		return rawEntities{}, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(jsonStr), &fields); err != nil {
		e.logger.Warn("Invalid entity extraction JSON, using pattern extraction", zap.Error(err))
		return rawEntities{}, false
	}

	raw := rawEntities{
		PlayerNames:  jsonutil.FlexibleStringSlice(fields["player_names"]),
		PlayerNumber: jsonutil.FlexibleStringValue(fields["player_number"]),
		Opponent:     jsonutil.FlexibleStringValue(fields["opponent"]),
		Statistic:    jsonutil.FlexibleStringValue(fields["statistic"]),
		Comparison:   jsonutil.FlexibleStringValue(fields["comparison"]),
	}
	if len(raw.PlayerNames) == 0 {
		raw.PlayerNames = jsonutil.FlexibleStringSlice(fields["player_name"])
	}
	if v, ok := jsonutil.FlexibleFloat(fields["value"]); ok {
		raw.Value = &v
	}
	if b, ok := jsonutil.FlexibleBool(fields["exclude_totals"]); ok {
		raw.ExcludeTotals = &b
	}
	if b, ok := jsonutil.FlexibleBool(fields["is_comparison_query"]); ok {
		raw.IsComparisonQuery = &b
	}
	return raw, true
}

var (
	jerseyPattern     = regexp.MustCompile(`(?i)#\s*(\d+)|\bno\.\s*(\d+)|\bnumber\s+(\d+)`)
	comparisonPattern = regexp.MustCompile(`(?i)\b(more than|greater than|fewer than|less than|at least|at most|equal to)\b|(>=|<=|>|<|=)`)
	numberPattern     = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
	wordPattern       = regexp.MustCompile(`[\pL\pN']+`)
)

// extractWithPatterns recognizes jersey numbers, statistics, comparisons,
// numeric values and player names that appear verbatim in the question.
func (e *entityExtractor) extractWithPatterns(question string) rawEntities {
	var raw rawEntities

	rest := question
	if loc := jerseyPattern.FindStringSubmatchIndex(question); loc != nil {
		for g := 1; g < len(loc)/2; g++ {
			if loc[2*g] >= 0 {
				raw.PlayerNumber = question[loc[2*g]:loc[2*g+1]]
				break
			}
		}
		rest = question[:loc[0]] + " " + question[loc[1]:]
	}

	if e.vocab != nil {
		raw.Statistic, _ = e.vocab.FindStatistic(question)
	}

	if m := comparisonPattern.FindStringSubmatch(question); m != nil {
		raw.Comparison = m[1]
		if raw.Comparison == "" {
			raw.Comparison = m[2]
		}
	}

	if s := numberPattern.FindString(rest); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			raw.Value = &v
		}
	}

	raw.PlayerNames = e.mentionedPlayers(question)
	return raw
}

// mentionedPlayers returns known players whose first or last name appears
// as a word in question.
func (e *entityExtractor) mentionedPlayers(question string) []string {
	words := make(map[string]bool)
	for _, w := range wordPattern.FindAllString(strings.ToLower(question), -1) {
		words[w] = true
	}

	var names []string
	for _, player := range e.players.Values() {
		if e.vocab != nil && e.vocab.IsSentinel(player) {
			continue
		}
		for _, part := range wordPattern.FindAllString(strings.ToLower(player), -1) {
			if len(part) >= 3 && words[part] {
				names = append(names, player)
				break
			}
		}
	}
	return names
}

// resolve maps raw values onto known values and the vocabulary. Anything
// that cannot be resolved is dropped.
func (e *entityExtractor) resolve(raw rawEntities) models.Intent {
	var intent models.Intent

	seen := make(map[string]bool)
	for _, name := range raw.PlayerNames {
		if match, ok := e.resolveValue("player_names", name, e.players); ok && !seen[match] {
			seen[match] = true
			intent.PlayerNames = append(intent.PlayerNames, match)
		}
	}
	if match, ok := e.resolveValue("player_number", raw.PlayerNumber, e.numbers); ok {
		intent.PlayerNumber = &match
	}
	if match, ok := e.resolveValue("opponent", raw.Opponent, e.opponents); ok {
		intent.Opponent = &match
	}

	if raw.Statistic != "" && e.vocab != nil {
		if stat, ok := e.vocab.Canonical(raw.Statistic); ok {
			intent.Statistic = &stat
		} else {
			e.logger.Debug("Dropping unknown statistic", zap.String("statistic", raw.Statistic))
		}
	}
	if c, ok := models.ParseComparison(raw.Comparison); ok {
		intent.Comparison = &c
	}
	intent.Value = raw.Value
	intent.ExcludeTotals = raw.ExcludeTotals
	intent.IsComparisonQuery = raw.IsComparisonQuery
	return intent
}

// resolveValue fuzzy-matches text against options and screens the match.
func (e *entityExtractor) resolveValue(field, text string, options *OptionSet) (string, bool) {
	match, ok := e.matcher.Match(text, options)
	if !ok {
		if strings.TrimSpace(text) != "" {
			e.logger.Debug("No known value matched",
				zap.String("field", field),
				zap.String("text", logging.TruncateString(text, 100)))
		}
		return "", false
	}
	if hit := sqlutil.CheckValue(field, match); hit != nil {
		e.logger.Warn("Dropping resolved value flagged as SQL injection",
			zap.String("field", field),
			zap.String("fingerprint", hit.Fingerprint))
		return "", false
	}
	return match, true
}

var _ EntityExtractor = (*entityExtractor)(nil)
