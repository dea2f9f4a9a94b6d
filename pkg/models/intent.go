package models

import (
	"fmt"
	"strings"
)

// Comparison is a numeric comparison operator recognized in a question.
type Comparison string

const (
	ComparisonLess         Comparison = "<"
	ComparisonGreater      Comparison = ">"
	ComparisonLessEqual    Comparison = "<="
	ComparisonGreaterEqual Comparison = ">="
	ComparisonEqual        Comparison = "="
)

// comparisonPhrases maps spoken comparisons to operators.
var comparisonPhrases = map[string]Comparison{
	"more than":    ComparisonGreater,
	"greater than": ComparisonGreater,
	"over":         ComparisonGreater,
	"above":        ComparisonGreater,
	"less than":    ComparisonLess,
	"fewer than":   ComparisonLess,
	"under":        ComparisonLess,
	"below":        ComparisonLess,
	"at least":     ComparisonGreaterEqual,
	"at most":      ComparisonLessEqual,
	"equal to":     ComparisonEqual,
	"exactly":      ComparisonEqual,
	"==":           ComparisonEqual,
}

// ParseComparison normalizes an operator or comparison phrase.
// Returns false if the input is not a recognized comparison.
func ParseComparison(s string) (Comparison, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch Comparison(s) {
	case ComparisonLess, ComparisonGreater, ComparisonLessEqual, ComparisonGreaterEqual, ComparisonEqual:
		return Comparison(s), true
	}
	if c, ok := comparisonPhrases[s]; ok {
		return c, true
	}
	return "", false
}

// Intent is the structured interpretation of a question.
//
// Every field is optional. A nil pointer (or nil slice) means the field was
// not recognized or could not be resolved against the known values in the
// statistics table. Populated free-text fields always hold a value that came
// from the database, never a raw substring of the question.
type Intent struct {
	PlayerNames       []string    `json:"player_names,omitempty"`
	PlayerNumber      *string     `json:"player_number,omitempty"`
	Opponent          *string     `json:"opponent,omitempty"`
	Statistic         *string     `json:"statistic,omitempty"` // canonical stat name
	Comparison        *Comparison `json:"comparison,omitempty"`
	Value             *float64    `json:"value,omitempty"`
	ExcludeTotals     *bool       `json:"exclude_totals,omitempty"`
	IsComparisonQuery *bool       `json:"is_comparison_query,omitempty"`
}

// HasPlayers reports whether at least one player was resolved.
func (i Intent) HasPlayers() bool {
	return len(i.PlayerNames) > 0
}

// StatisticName returns the canonical statistic or "" when absent.
func (i Intent) StatisticName() string {
	if i.Statistic == nil {
		return ""
	}
	return *i.Statistic
}

// String renders the populated fields for prompts and logs.
func (i Intent) String() string {
	var parts []string
	if len(i.PlayerNames) > 0 {
		parts = append(parts, fmt.Sprintf("player_names=%q", i.PlayerNames))
	}
	if i.PlayerNumber != nil {
		parts = append(parts, fmt.Sprintf("player_number=%s", *i.PlayerNumber))
	}
	if i.Opponent != nil {
		parts = append(parts, fmt.Sprintf("opponent=%q", *i.Opponent))
	}
	if i.Statistic != nil {
		parts = append(parts, fmt.Sprintf("statistic=%s", *i.Statistic))
	}
	if i.Comparison != nil {
		parts = append(parts, fmt.Sprintf("comparison=%s", *i.Comparison))
	}
	if i.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%g", *i.Value))
	}
	if i.ExcludeTotals != nil {
		parts = append(parts, fmt.Sprintf("exclude_totals=%t", *i.ExcludeTotals))
	}
	if i.IsComparisonQuery != nil {
		parts = append(parts, fmt.Sprintf("is_comparison_query=%t", *i.IsComparisonQuery))
	}
	if len(parts) == 0 {
		return "None"
	}
	return strings.Join(parts, ", ")
}
