package services

import (
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// DefaultFuzzyThreshold is the minimum score (0-100) a candidate needs to be
// accepted as a match.
const DefaultFuzzyThreshold = 75

// OptionSet is an immutable list of known values with a fingerprint over the
// whole list.
type OptionSet struct {
	values      []string
	fingerprint uint64
}

// NewOptionSet copies values and fingerprints them.
func NewOptionSet(values []string) *OptionSet {
	h := fnv.New64a()
	for _, v := range values {
		_, _ = h.Write([]byte(v))
		_, _ = h.Write([]byte{0})
	}
	return &OptionSet{
		values:      append([]string(nil), values...),
		fingerprint: h.Sum64(),
	}
}

// Values returns the options in their original order.
func (o *OptionSet) Values() []string {
	if o == nil {
		return nil
	}
	return o.values
}

// Len returns the number of options.
func (o *OptionSet) Len() int {
	if o == nil {
		return 0
	}
	return len(o.values)
}

type matchKey struct {
	text        string
	fingerprint uint64
}

type matchResult struct {
	value string
	ok    bool
}

// FuzzyMatcher resolves free text against known values. Results, including
// misses, are cached per (text, option set). Safe for concurrent use.
type FuzzyMatcher struct {
	threshold int

	mu    sync.Mutex
	cache map[matchKey]matchResult
}

// NewFuzzyMatcher returns a matcher; a threshold <= 0 uses the default.
func NewFuzzyMatcher(threshold int) *FuzzyMatcher {
	if threshold <= 0 {
		threshold = DefaultFuzzyThreshold
	}
	return &FuzzyMatcher{
		threshold: threshold,
		cache:     make(map[matchKey]matchResult),
	}
}

// Match returns the highest scoring option at or above the threshold. Ties
// go to the earlier option.
func (m *FuzzyMatcher) Match(text string, options *OptionSet) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" || options.Len() == 0 {
		return "", false
	}

	key := matchKey{text: text, fingerprint: options.fingerprint}
	m.mu.Lock()
	if r, ok := m.cache[key]; ok {
		m.mu.Unlock()
		return r.value, r.ok
	}
	m.mu.Unlock()

	best, bestScore := "", -1
	for _, opt := range options.values {
		if s := Similarity(text, opt); s > bestScore {
			best, bestScore = opt, s
		}
	}
	r := matchResult{value: best, ok: bestScore >= m.threshold}
	if !r.ok {
		r.value = ""
	}

	m.mu.Lock()
	m.cache[key] = r
	m.mu.Unlock()
	return r.value, r.ok
}

// Similarity scores two strings from 0 to 100. Case, punctuation and word
// order are ignored; a short string contained in a much longer one scores
// high but below an exact match.
func Similarity(a, b string) int {
	a, b = normalizeForMatch(a), normalizeForMatch(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}

	shorter, longer := []rune(a), []rune(b)
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	lenRatio := float64(len(longer)) / float64(len(shorter))

	best := ratio(a, b)
	sortedA, sortedB := sortTokens(a), sortTokens(b)
	best = max(best, 0.95*ratio(sortedA, sortedB))

	if lenRatio >= 1.5 {
		scale := 0.9
		if lenRatio >= 8 {
			scale = 0.6
		}
		best = max(best, scale*partialRatio(a, b))
		best = max(best, 0.95*scale*partialRatio(sortedA, sortedB))
	}
	return int(best + 0.5)
}

// ratio is the Levenshtein similarity of a and b as a percentage of their
// combined length.
func ratio(a, b string) float64 {
	total := len([]rune(a)) + len([]rune(b))
	if total == 0 {
		return 0
	}
	d := fuzzy.LevenshteinDistance(a, b)
	return 100 * float64(total-d) / float64(total)
}

// partialRatio is the best ratio of the shorter string against every
// equally long window of the longer one.
func partialRatio(a, b string) float64 {
	shorter, longer := []rune(a), []rune(b)
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	s := string(shorter)
	best := 0.0
	for i := 0; i+len(shorter) <= len(longer); i++ {
		r := ratio(s, string(longer[i:i+len(shorter)]))
		if r > best {
			best = r
			if best == 100 {
				break
			}
		}
	}
	return best
}

func normalizeForMatch(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
