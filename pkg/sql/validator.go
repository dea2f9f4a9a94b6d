// Package sql holds the text-level SQL rules of the query pipeline: the
// SQLite repair pass, the generator's validator and the executor's safety
// screen. Everything here is pure string processing.
package sql

import (
	"errors"
	"strings"
)

var (
	// ErrMultipleStatements indicates the query contains multiple SQL statements.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")
)

// ValidationResult contains the normalized SQL and any validation errors.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// ValidateAndNormalize checks SQL for multiple statements and strips the trailing semicolon.
//
// The validation order is:
// 1. Strip trailing semicolon and whitespace (normalize)
// 2. Check for multiple statements (any remaining semicolons outside string literals)
func ValidateAndNormalize(sqlQuery string) ValidationResult {
	sqlQuery = strings.TrimSpace(sqlQuery)
	if sqlQuery == "" {
		return ValidationResult{NormalizedSQL: sqlQuery}
	}

	normalized := StripTrailingSemicolon(sqlQuery)

	if hasSemicolonOutsideStrings(normalized) {
		return ValidationResult{Error: ErrMultipleStatements}
	}

	return ValidationResult{NormalizedSQL: normalized}
}

// hasSemicolonOutsideStrings returns true if the SQL contains any semicolon
// outside of string literals and quoted identifiers.
func hasSemicolonOutsideStrings(sqlQuery string) bool {
	return strings.ContainsRune(MaskQuoted(sqlQuery), ';')
}

// hasCommentOutsideStrings reports whether the SQL contains a line (--) or
// block (/*) comment outside of string literals and quoted identifiers.
func hasCommentOutsideStrings(sqlQuery string) bool {
	masked := MaskQuoted(sqlQuery)
	return strings.Contains(masked, "--") || strings.Contains(masked, "/*")
}

// MaskQuoted returns sqlQuery with the contents of single-quoted literals
// and double-quoted identifiers replaced by spaces. The quotes themselves
// and the byte length are preserved, so offsets in the result match the
// input. Doubled quotes ('' and "") stay inside their string.
func MaskQuoted(sqlQuery string) string {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
	)

	out := []byte(sqlQuery)
	state := stateNormal

	for i := 0; i < len(out); i++ {
		c := out[i]
		switch state {
		case stateNormal:
			switch c {
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			}
		case stateSingleQuote:
			if c == '\'' {
				if i+1 < len(out) && out[i+1] == '\'' {
					out[i], out[i+1] = ' ', ' '
					i++
					continue
				}
				state = stateNormal
				continue
			}
			out[i] = ' '
		case stateDoubleQuote:
			if c == '"' {
				if i+1 < len(out) && out[i+1] == '"' {
					out[i], out[i+1] = ' ', ' '
					i++
					continue
				}
				state = stateNormal
				continue
			}
			out[i] = ' '
		}
	}

	return string(out)
}

// splitQuoted splits sqlQuery into alternating code and quoted segments,
// where quotes lists the quote characters that open a segment. Quoted
// segments include their quotes and a doubled quote stays inside the
// segment. Concatenating the segments yields the input.
func splitQuoted(sqlQuery, quotes string) []segment {
	var segs []segment
	start := 0
	var open byte

	for i := 0; i < len(sqlQuery); i++ {
		c := sqlQuery[i]
		if open == 0 {
			if strings.IndexByte(quotes, c) < 0 {
				continue
			}
			if i > start {
				segs = append(segs, segment{text: sqlQuery[start:i]})
			}
			start = i
			open = c
			continue
		}
		if c != open {
			continue
		}
		if i+1 < len(sqlQuery) && sqlQuery[i+1] == open {
			i++
			continue
		}
		segs = append(segs, segment{text: sqlQuery[start : i+1], quoted: true})
		start = i + 1
		open = 0
	}

	if start < len(sqlQuery) {
		segs = append(segs, segment{text: sqlQuery[start:], quoted: open != 0})
	}
	return segs
}

type segment struct {
	text   string
	quoted bool
}

func mapSegments(segs []segment, fn func(string) string) string {
	var b strings.Builder
	for _, seg := range segs {
		if seg.quoted {
			b.WriteString(seg.text)
		} else {
			b.WriteString(fn(seg.text))
		}
	}
	return b.String()
}

// mapCode applies fn to every part of sqlQuery outside single-quoted literals.
func mapCode(sqlQuery string, fn func(string) string) string {
	return mapSegments(splitQuoted(sqlQuery, "'"), fn)
}

// mapUnquoted applies fn to every part of sqlQuery outside both string
// literals and quoted identifiers.
func mapUnquoted(sqlQuery string, fn func(string) string) string {
	return mapSegments(splitQuoted(sqlQuery, `'"`), fn)
}

// StripTrailingSemicolon removes trailing semicolons and surrounding whitespace.
func StripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	for strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimSuffix(sqlQuery, ";")
		sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	}
	return sqlQuery
}

// QuoteLiteral returns s as a single-quoted SQL string literal.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// QuoteIdentifier returns s as a double-quoted SQL identifier.
func QuoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
