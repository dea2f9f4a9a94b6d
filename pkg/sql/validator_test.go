package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAndNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		err      error
	}{
		{"plain", "SELECT 1", "SELECT 1", nil},
		{"trailing semicolon", "SELECT Pts FROM ucla_player_stats;  ", "SELECT Pts FROM ucla_player_stats", nil},
		{"repeated trailing semicolons", "SELECT 1;;", "SELECT 1", nil},
		{"semicolon in literal", "SELECT * FROM t WHERE Opponent = 'a;b';", "SELECT * FROM t WHERE Opponent = 'a;b'", nil},
		{"semicolon in quoted identifier", `SELECT "a;b" FROM t`, `SELECT "a;b" FROM t`, nil},
		{"doubled quote", "SELECT * FROM t WHERE Name = 'O''Brien'", "SELECT * FROM t WHERE Name = 'O''Brien'", nil},
		{"empty", "   ", "", nil},
		{"stacked select", "SELECT 1; SELECT 2", "", ErrMultipleStatements},
		{"stacked drop", "SELECT * FROM t; DROP TABLE t", "", ErrMultipleStatements},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateAndNormalize(tt.input)
			assert.Equal(t, tt.err, result.Error)
			assert.Equal(t, tt.expected, result.NormalizedSQL)
		})
	}
}

func TestHasSemicolonOutsideStrings(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"SELECT 1", false},
		{"SELECT 1; SELECT 2", true},
		{"SELECT 'a;b'", false},
		{`SELECT "a;b"`, false},
		{"SELECT 'a;b'; SELECT 1", true},
		{"SELECT 'it''s;here'", false},
		// backslash is not an escape character in SQLite
		{`SELECT 'test\';more'`, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, hasSemicolonOutsideStrings(tt.input), tt.input)
	}
}

func TestHasCommentOutsideStrings(t *testing.T) {
	assert.True(t, hasCommentOutsideStrings("SELECT * FROM t -- hidden"))
	assert.True(t, hasCommentOutsideStrings("SELECT /* x */ 1"))
	assert.False(t, hasCommentOutsideStrings("SELECT * FROM t WHERE Opponent = 'A--B'"))
	assert.False(t, hasCommentOutsideStrings(`SELECT "OR-DR" FROM t`))
}

func TestMaskQuoted(t *testing.T) {
	input := `SELECT "3PTM" FROM t WHERE Name = 'Betts, Lauren' AND x = 'it''s'`
	masked := MaskQuoted(input)

	assert.Len(t, masked, len(input))
	assert.Equal(t, `SELECT "    " FROM t WHERE Name = '             ' AND x = '     '`, masked)
}

func TestMapCode(t *testing.T) {
	input := "SELECT TO FROM t WHERE Opponent = 'TO' AND x = 'a''TO'"
	result := mapCode(input, func(s string) string {
		return replaceWord(s, "TO", "X")
	})
	assert.Equal(t, "SELECT X FROM t WHERE Opponent = 'TO' AND x = 'a''TO'", result)

	// an unterminated literal is left untouched
	assert.Equal(t, "X 'TO", mapCode("TO 'TO", func(s string) string { return replaceWord(s, "TO", "X") }))
}

func TestStripTrailingSemicolon(t *testing.T) {
	assert.Equal(t, "SELECT 1", StripTrailingSemicolon("SELECT 1 ;\n"))
	assert.Equal(t, "SELECT 1", StripTrailingSemicolon("SELECT 1"))
	assert.Equal(t, "", StripTrailingSemicolon(";"))
}

func TestQuoting(t *testing.T) {
	assert.Equal(t, "'Betts, Lauren'", QuoteLiteral("Betts, Lauren"))
	assert.Equal(t, "'O''Brien'", QuoteLiteral("O'Brien"))
	assert.Equal(t, `"OR-DR"`, QuoteIdentifier("OR-DR"))
	assert.Equal(t, `"a""b"`, QuoteIdentifier(`a"b`))
}

func replaceWord(s, old, repl string) string {
	out := ""
	for i := 0; i < len(s); {
		if i+len(old) <= len(s) && s[i:i+len(old)] == old &&
			(i == 0 || !isWordByte(s[i-1])) &&
			(i+len(old) == len(s) || !isWordByte(s[i+len(old)])) {
			out += repl
			i += len(old)
			continue
		}
		out += string(s[i])
		i++
	}
	return out
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func TestMapUnquoted(t *testing.T) {
	input := `SELECT TO, "TO" FROM t WHERE Opponent = 'TO'`
	result := mapUnquoted(input, func(s string) string { return replaceWord(s, "TO", "X") })
	assert.Equal(t, `SELECT X, "TO" FROM t WHERE Opponent = 'TO'`, result)
}
