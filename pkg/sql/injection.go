package sql

import (
	"sort"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a value flagged by libinjection.
type InjectionCheckResult struct {
	Field       string // where the value came from (intent field or "literal")
	Value       string
	Fingerprint string // libinjection fingerprint of the detected pattern
}

// CheckValue runs libinjection over a single value that is about to be
// placed inside SQL. Returns nil when the value looks clean.
//
// Example:
//
//	CheckValue("opponent", "USC")                   // nil
//	CheckValue("player", "'; DROP TABLE users--")   // Fingerprint "s;T(c" or similar
func CheckValue(field, value string) *InjectionCheckResult {
	if value == "" {
		return nil
	}
	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{
		Field:       field,
		Value:       value,
		Fingerprint: string(fingerprint),
	}
}

// CheckValues runs CheckValue over every entry and returns the flagged ones
// ordered by field name.
func CheckValues(values map[string]string) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	for field, value := range values {
		if result := CheckValue(field, value); result != nil {
			results = append(results, result)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Field < results[j].Field })
	return results
}

// StringLiterals returns the unescaped contents of every complete
// single-quoted literal in sqlQuery.
func StringLiterals(sqlQuery string) []string {
	var out []string
	for _, seg := range splitQuoted(sqlQuery, "'") {
		if !seg.quoted || len(seg.text) < 2 || !strings.HasSuffix(seg.text, "'") {
			continue
		}
		out = append(out, strings.ReplaceAll(seg.text[1:len(seg.text)-1], "''", "'"))
	}
	return out
}
