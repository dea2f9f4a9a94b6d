package services

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dlclark/regexp2"
	"github.com/jinzhu/inflection"
	"gopkg.in/yaml.v3"
)

//go:embed vocabulary.yaml
var defaultVocabularyYAML []byte

// Statistic is one canonical statistic and the SQL that computes it.
type Statistic struct {
	Name string `yaml:"name"`
	// Column is a column reference or expression, quoted as SQL needs it.
	Column  string   `yaml:"column"`
	Aliases []string `yaml:"aliases"`
}

// Vocabulary maps the words people use for basketball statistics to table
// columns. Immutable after loading; safe for concurrent use.
type Vocabulary struct {
	Sentinels  []string          `yaml:"sentinels"`
	Special    []string          `yaml:"special_identifiers"`
	Simple     []string          `yaml:"simple_identifiers"`
	Statistics []Statistic       `yaml:"statistics"`
	Terms      map[string]string `yaml:"terms"`

	// phrase (lowercase) -> canonical statistic
	canonical map[string]string
	// canonical statistic -> column
	columns map[string]string
	// phrase (lowercase) -> replacement in MapQuestion
	mapping map[string]string
	phrases *regexp2.Regexp
}

var (
	defaultVocabulary     *Vocabulary
	defaultVocabularyErr  error
	defaultVocabularyOnce sync.Once
)

// DefaultVocabulary returns the embedded vocabulary, parsed once.
func DefaultVocabulary() (*Vocabulary, error) {
	defaultVocabularyOnce.Do(func() {
		defaultVocabulary, defaultVocabularyErr = ParseVocabulary(defaultVocabularyYAML)
	})
	return defaultVocabulary, defaultVocabularyErr
}

// ParseVocabulary parses and indexes a vocabulary document.
func ParseVocabulary(data []byte) (*Vocabulary, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty vocabulary")
	}

	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parsing vocabulary: %w", err)
	}
	if len(v.Statistics) == 0 {
		return nil, fmt.Errorf("vocabulary defines no statistics")
	}
	if len(v.Sentinels) == 0 {
		return nil, fmt.Errorf("vocabulary defines no sentinel rows")
	}

	v.canonical = make(map[string]string)
	v.columns = make(map[string]string)
	v.mapping = make(map[string]string)

	for _, stat := range v.Statistics {
		name := normalizePhrase(stat.Name)
		if name == "" || strings.TrimSpace(stat.Column) == "" {
			return nil, fmt.Errorf("statistic %q needs a name and a column", stat.Name)
		}
		if _, dup := v.columns[name]; dup {
			return nil, fmt.Errorf("statistic %q defined twice", stat.Name)
		}
		v.columns[name] = stat.Column

		for _, phrase := range append([]string{stat.Name}, stat.Aliases...) {
			p := normalizePhrase(phrase)
			if p == "" {
				continue
			}
			v.addCanonical(p, name)
			v.addCanonical(inflection.Plural(p), name)
			v.addCanonical(inflection.Singular(p), name)
			v.mapping[p] = stat.Column
		}
	}
	for term, column := range v.Terms {
		if p := normalizePhrase(term); p != "" {
			v.mapping[p] = column
		}
	}

	v.phrases = phrasePattern(v.mapping)
	return &v, nil
}

// addCanonical keeps the first statistic a phrase was bound to.
func (v *Vocabulary) addCanonical(phrase, name string) {
	if _, ok := v.canonical[phrase]; !ok {
		v.canonical[phrase] = name
	}
}

// phrasePattern matches any mapped phrase as a whole word, longest first.
func phrasePattern(mapping map[string]string) *regexp2.Regexp {
	phrases := make([]string, 0, len(mapping))
	for p := range mapping {
		phrases = append(phrases, p)
	}
	sort.Slice(phrases, func(i, j int) bool {
		if len(phrases[i]) != len(phrases[j]) {
			return len(phrases[i]) > len(phrases[j])
		}
		return phrases[i] < phrases[j]
	})

	alts := make([]string, len(phrases))
	for i, p := range phrases {
		alts[i] = regexp2.Escape(p)
	}
	return regexp2.MustCompile(`(?<![\w%-])(?:`+strings.Join(alts, "|")+`)(?![\w%-])`, regexp2.None)
}

func normalizePhrase(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Canonical returns the canonical statistic for a user term, accepting
// singular and plural forms, synonyms and abbreviations.
func (v *Vocabulary) Canonical(term string) (string, bool) {
	p := normalizePhrase(term)
	if p == "" {
		return "", false
	}
	for _, candidate := range []string{p, inflection.Singular(p), inflection.Plural(p)} {
		if name, ok := v.canonical[candidate]; ok {
			return name, true
		}
	}
	return "", false
}

// Column returns the SQL for a canonical statistic.
func (v *Vocabulary) Column(stat string) (string, bool) {
	c, ok := v.columns[normalizePhrase(stat)]
	return c, ok
}

// FindStatistic returns the canonical statistic of the leftmost statistic
// phrase in text.
func (v *Vocabulary) FindStatistic(text string) (string, bool) {
	m, err := v.phrases.FindStringMatch(strings.ToLower(text))
	for err == nil && m != nil {
		if name, ok := v.canonical[m.String()]; ok {
			return name, true
		}
		m, err = v.phrases.FindNextMatch(m)
	}
	return "", false
}

// MapQuestion lowercases text and replaces every known statistic phrase and
// term with its column, longest phrase first.
func (v *Vocabulary) MapQuestion(text string) string {
	lowered := strings.ToLower(text)
	mapped, err := v.phrases.ReplaceFunc(lowered, func(m regexp2.Match) string {
		if column, ok := v.mapping[m.String()]; ok {
			return column
		}
		return m.String()
	}, -1, -1)
	if err != nil {
		return lowered
	}
	return mapped
}

// TotalsRow is the sentinel name of the per-game team totals row.
func (v *Vocabulary) TotalsRow() string {
	return v.Sentinels[0]
}

// IsSentinel reports whether name is an aggregate row rather than a player.
func (v *Vocabulary) IsSentinel(name string) bool {
	for _, s := range v.Sentinels {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}

// StatisticNames lists canonical statistics in vocabulary order.
func (v *Vocabulary) StatisticNames() []string {
	names := make([]string, len(v.Statistics))
	for i, s := range v.Statistics {
		names[i] = normalizePhrase(s.Name)
	}
	return names
}
