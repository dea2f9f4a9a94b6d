package sql

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dlclark/regexp2"
)

// RewriteRule is one pure text transformation of the repair pass.
type RewriteRule struct {
	Name  string
	Apply func(string) string
}

// DefaultSpecialIdentifiers are the column names that are only valid SQLite
// identifiers when double-quoted.
var DefaultSpecialIdentifiers = []string{"TO", "3PTM", "3PTA", "3PT", "No", "OR-DR"}

// DefaultSimpleIdentifiers are column names that never need quoting.
var DefaultSimpleIdentifiers = []string{"Name", "Pts", "Reb", "Ast", "Stl", "Blk", "Min", "FG", "FT", "Opponent", "game_date"}

// Rules holds the SQLite repair and validation rules for one statistics table.
// A Rules value is immutable and safe for concurrent use.
type Rules struct {
	table   string
	tableRe *regexp.Regexp
	special []specialIdentifier
	simple  []string
	repairs []RewriteRule
}

type specialIdentifier struct {
	name    string
	pattern *regexp2.Regexp
}

// NewRules builds the rule set for table. Empty identifier lists fall back
// to the defaults.
func NewRules(table string, special, simple []string) *Rules {
	if len(special) == 0 {
		special = DefaultSpecialIdentifiers
	}
	if len(simple) == 0 {
		simple = DefaultSimpleIdentifiers
	}

	r := &Rules{table: table, simple: simple}
	if table != "" {
		r.tableRe = tablePattern(table)
	}
	for _, name := range special {
		r.special = append(r.special, specialIdentifier{
			name:    name,
			pattern: regexp2.MustCompile(`(?<![\w"'-])`+regexp2.Escape(name)+`(?![\w"'(-])`, regexp2.None),
		})
	}
	r.repairs = r.buildRepairs()
	return r
}

// DefaultRules returns the rule set for table with the default identifier lists.
func DefaultRules(table string) *Rules {
	return NewRules(table, nil, nil)
}

// Table returns the table the rules validate against.
func (r *Rules) Table() string {
	return r.table
}

// RepairRules returns the ordered repair rules.
func (r *Rules) RepairRules() []RewriteRule {
	return append([]RewriteRule(nil), r.repairs...)
}

// Repair applies every rewrite rule once, in order.
func (r *Rules) Repair(sqlQuery string) string {
	if strings.TrimSpace(sqlQuery) == "" {
		return sqlQuery
	}
	for _, rule := range r.repairs {
		sqlQuery = rule.Apply(sqlQuery)
	}
	return strings.TrimSpace(sqlQuery)
}

func (r *Rules) buildRepairs() []RewriteRule {
	return []RewriteRule{
		{Name: "extract_date_part", Apply: rewriteExtract},
		{Name: "date_trunc", Apply: rewriteDateTrunc},
		{Name: "interval_arithmetic", Apply: rewriteInterval},
		{Name: "type_cast", Apply: rewriteCasts},
		{Name: "case_insensitive_like", Apply: rewriteLike},
		{Name: "stddev_variance", Apply: rewriteStddev},
		{Name: "cte_in_where", Apply: rewriteCTEInWhere},
		{Name: "empty_where", Apply: rewriteEmptyWhere},
		{Name: "empty_parentheses", Apply: rewriteEmptyParens},
		{Name: "double_quoted_quotes", Apply: rewriteDoubledQuotes},
		{Name: "subquery_without_with", Apply: rewriteBareSubquery},
		{Name: "orphaned_select", Apply: rewriteOrphanedSelect},
		{Name: "trailing_semicolon", Apply: StripTrailingSemicolon},
		{Name: "paren_balance", Apply: balanceParens},
		{Name: "unquote_simple_identifiers", Apply: r.unquoteSimple},
		{Name: "quote_special_identifiers", Apply: r.quoteSpecial},
	}
}

var (
	extractPattern   = regexp.MustCompile(`(?i)\bEXTRACT\s*\(\s*(YEAR|MONTH|DAY)\s+FROM\s+([^)]+?)\s*\)`)
	dateTruncPattern = regexp.MustCompile(`(?i)\bDATE_TRUNC\s*\(\s*'(year|month|day)'\s*,\s*([^)]+?)\s*\)`)
	intervalPattern  = regexp.MustCompile(`(?i)(CURRENT_DATE|NOW\(\)|'[^']*'|"[^"]+"|[A-Za-z_][\w.]*)\s*([+-])\s*INTERVAL\s+(?:'(\d+)\s*(day|month|year)s?'|'(\d+)'\s*(day|month|year)s?\b|(\d+)\s*(day|month|year)s?\b)`)
	castPattern      = regexp.MustCompile(`(?i)("[^"]+"|'[^']*'|\([^()]*\)|[\w.]+)\s*::\s*(double\s+precision|[a-z]+)(?:\s*\(\s*\d+(?:\s*,\s*\d+)?\s*\))?`)
	ilikePattern     = regexp.MustCompile(`(?i)\bILIKE\b`)
	similarPattern   = regexp.MustCompile(`(?i)\bSIMILAR\s+TO\b`)
	stddevPattern    = regexp.MustCompile(`(?i)\b(STDDEV|VARIANCE)(?:_POP|_SAMP)?\s*\(\s*([^()]+?)\s*\)`)

	cteInWherePattern = regexp.MustCompile(`(?is)(\bWHERE\b.*?)\bWITH\s+\w+\s+AS\s*\(`)

	whereCloseParen   = regexp.MustCompile(`(?i)\bWHERE\s*\)`)
	whereAtEnd        = regexp.MustCompile(`(?i)\s*\bWHERE\s*$`)
	whereBeforeClause = regexp.MustCompile(`(?i)\bWHERE\s+(GROUP\s+BY|ORDER\s+BY|LIMIT)\b`)
	whereConjunction  = regexp2.MustCompile(`\bWHERE\s+(?:AND|OR)\b(?!-)\s*`, regexp2.IgnoreCase)
	emptyParens       = regexp2.MustCompile(`(?<![\w"])\(\s*\)`, regexp2.None)

	doubledQuotes   = regexp.MustCompile(`""([^"]+)""`)
	leadingSubquery = regexp.MustCompile(`(?i)^\s*\(\s*SELECT\b`)
	withKeyword     = regexp.MustCompile(`(?i)\bWITH\b`)
	closeThenSelect = regexp.MustCompile(`(?i)\)\s*SELECT\b`)
	trailingParen   = regexp.MustCompile(`\)\s*$`)
)

// replaceSubmatch is ReplaceAllStringFunc with access to the submatches.
func replaceSubmatch(re *regexp.Regexp, s string, fn func(m []string) string) string {
	return re.ReplaceAllStringFunc(s, func(match string) string {
		return fn(re.FindStringSubmatch(match))
	})
}

// replace2 applies a regexp2 replacement; a match timeout leaves s unchanged.
func replace2(re *regexp2.Regexp, s, replacement string) string {
	out, err := re.Replace(s, replacement, -1, -1)
	if err != nil {
		return s
	}
	return out
}

func match2(re *regexp2.Regexp, s string) bool {
	ok, err := re.MatchString(s)
	return err == nil && ok
}

var strftimeParts = map[string]string{"YEAR": "%Y", "MONTH": "%m", "DAY": "%d"}

// rewriteExtract keeps EXTRACT numeric: strftime returns TEXT, which never
// equals an integer literal such as 2024.
func rewriteExtract(s string) string {
	return replaceSubmatch(extractPattern, s, func(m []string) string {
		return fmt.Sprintf("CAST(strftime('%s', %s) AS INTEGER)", strftimeParts[strings.ToUpper(m[1])], m[2])
	})
}

func rewriteDateTrunc(s string) string {
	return replaceSubmatch(dateTruncPattern, s, func(m []string) string {
		switch strings.ToLower(m[1]) {
		case "year":
			return fmt.Sprintf("strftime('%%Y-01-01', %s)", m[2])
		case "month":
			return fmt.Sprintf("strftime('%%Y-%%m-01', %s)", m[2])
		default:
			return fmt.Sprintf("date(%s)", m[2])
		}
	})
}

func rewriteInterval(s string) string {
	return replaceSubmatch(intervalPattern, s, func(m []string) string {
		operand := m[1]
		switch strings.ToUpper(operand) {
		case "CURRENT_DATE", "NOW()":
			operand = "'now'"
		}

		n, unit := m[3], m[4]
		if n == "" {
			n, unit = m[5], m[6]
		}
		if n == "" {
			n, unit = m[7], m[8]
		}
		return fmt.Sprintf("date(%s, '%s%s %ss')", operand, m[2], n, strings.ToLower(unit))
	})
}

func rewriteCasts(s string) string {
	return replaceSubmatch(castPattern, s, func(m []string) string {
		operand := m[1]
		switch strings.ToLower(strings.Join(strings.Fields(m[2]), " ")) {
		case "float", "real", "numeric", "decimal", "double", "double precision":
			return fmt.Sprintf("CAST(%s AS REAL)", operand)
		case "int", "integer", "bigint", "smallint":
			return fmt.Sprintf("CAST(%s AS INTEGER)", operand)
		case "text", "varchar", "char":
			return fmt.Sprintf("CAST(%s AS TEXT)", operand)
		default:
			return operand
		}
	})
}

func rewriteLike(s string) string {
	return mapCode(s, func(code string) string {
		code = ilikePattern.ReplaceAllString(code, "LIKE")
		return similarPattern.ReplaceAllString(code, "LIKE")
	})
}

func rewriteStddev(s string) string {
	return mapCode(s, func(code string) string {
		return replaceSubmatch(stddevPattern, code, func(m []string) string {
			x := m[2]
			variance := fmt.Sprintf("AVG((%s) * (%s)) - AVG(%s) * AVG(%s)", x, x, x, x)
			if strings.EqualFold(m[1], "STDDEV") {
				return "SQRT(" + variance + ")"
			}
			return "(" + variance + ")"
		})
	})
}

func rewriteCTEInWhere(s string) string {
	for {
		next := cteInWherePattern.ReplaceAllString(s, "${1}(")
		if next == s {
			return s
		}
		s = next
	}
}

func rewriteEmptyWhere(s string) string {
	s = whereCloseParen.ReplaceAllString(s, ")")
	s = whereBeforeClause.ReplaceAllString(s, "$1")
	s = replace2(whereConjunction, s, "WHERE ")
	return whereAtEnd.ReplaceAllString(s, "")
}

func rewriteEmptyParens(s string) string {
	return replace2(emptyParens, s, "(SELECT 1)")
}

func rewriteDoubledQuotes(s string) string {
	return doubledQuotes.ReplaceAllString(s, `"$1"`)
}

// rewriteBareSubquery handles a statement that opens with a parenthesized
// SELECT. A fully wrapped statement is unwrapped; a leading subquery followed
// by a SELECT is turned into a CTE.
func rewriteBareSubquery(s string) string {
	if !leadingSubquery.MatchString(s) || withKeyword.MatchString(s) {
		return s
	}

	trimmed := StripTrailingSemicolon(strings.TrimSpace(s))
	if end := matchingParen(trimmed, 0); end == len(trimmed)-1 {
		return strings.TrimSpace(trimmed[1:end])
	}
	if closeThenSelect.MatchString(s) {
		return "WITH temp_table AS " + strings.TrimLeft(s, " \t\r\n")
	}
	return s
}

// matchingParen returns the index of the parenthesis closing the one at
// open, or -1. Quoted text is ignored.
func matchingParen(s string, open int) int {
	masked := MaskQuoted(s)
	depth := 0
	for i := open; i < len(masked); i++ {
		switch masked[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func rewriteOrphanedSelect(s string) string {
	return closeThenSelect.ReplaceAllString(s, ") SELECT")
}

// parenCounts counts parentheses outside quoted text.
func parenCounts(s string) (open, closed int) {
	masked := MaskQuoted(s)
	return strings.Count(masked, "("), strings.Count(masked, ")")
}

func balanceParens(s string) string {
	open, closed := parenCounts(s)
	if open > closed {
		return s + strings.Repeat(")", open-closed)
	}
	for extra := closed - open; extra > 0; extra-- {
		next := trailingParen.ReplaceAllString(s, "")
		if next == s {
			break
		}
		s = next
	}
	return s
}

func (r *Rules) unquoteSimple(s string) string {
	return mapCode(s, func(code string) string {
		for _, name := range r.simple {
			code = strings.ReplaceAll(code, QuoteIdentifier(name), name)
		}
		return code
	})
}

func (r *Rules) quoteSpecial(s string) string {
	return mapUnquoted(s, func(code string) string {
		for _, id := range r.special {
			code = replace2(id.pattern, code, QuoteIdentifier(id.name))
		}
		return code
	})
}
