package sql

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dlclark/regexp2"
)

var (
	groupByPattern   = regexp.MustCompile(`(?i)\bGROUP\s+BY\b`)
	aggregatePattern = regexp.MustCompile(`(?i)\b(AVG|SUM|COUNT|MIN|MAX|TOTAL|GROUP_CONCAT)\s*\(`)
	selectPattern    = regexp.MustCompile(`(?i)\bSELECT\b`)

	whereLeadingAnd = regexp.MustCompile(`(?i)\bWHERE\s+AND\b`)
	whereLeadingOr  = regexp2.MustCompile(`\bWHERE\s+OR\b(?!-)`, regexp2.IgnoreCase)
)

// forbiddenConstructs are the non-SQLite constructs the validator rejects,
// checked in order against the raw statement.
var forbiddenConstructs = []struct {
	pattern *regexp.Regexp
	reason  string
}{
	{regexp.MustCompile(`(?i)\bEXTRACT\b`), "EXTRACT function not supported in SQLite"},
	{regexp.MustCompile(`(?i)\bINTERVAL\b`), "INTERVAL syntax not supported in SQLite"},
	{regexp.MustCompile(`(?i)\bDATE_TRUNC\b`), "DATE_TRUNC function not supported in SQLite"},
	{regexp.MustCompile(`(?i)\bSTDDEV(?:_POP|_SAMP)?\s*\(`), "STDDEV function not supported in SQLite"},
	{regexp.MustCompile(`(?i)\bVARIANCE(?:_POP|_SAMP)?\s*\(`), "VARIANCE function not supported in SQLite"},
	{regexp.MustCompile(`(?i)\bILIKE\b`), "ILIKE operator not supported in SQLite"},
	{regexp.MustCompile(`::`), "type casting with :: not supported in SQLite"},
	{regexp.MustCompile(`(?i)\bSIMILAR\s+TO\b`), "SIMILAR TO operator not supported in SQLite"},
	{regexp.MustCompile(`(?i)\bARRAY\b`), "ARRAY type not supported in SQLite"},
	{regexp.MustCompile(`(?i)\bUNNEST\b`), "UNNEST function not supported in SQLite"},
	{regexp.MustCompile(`(?i)\bSPLIT_PART\b`), "SPLIT_PART function not supported in SQLite"},
}

// Validate reports whether sqlQuery is acceptable SQLite for the rules'
// table. On failure it returns the reason of the first failing check.
// Validate has no side effects, so calling it twice gives the same answer.
func (r *Rules) Validate(sqlQuery string) (bool, string) {
	if strings.TrimSpace(sqlQuery) == "" {
		return false, "Empty SQL query"
	}

	masked := MaskQuoted(sqlQuery)

	if aggregateInGroupBy(masked) {
		return false, "aggregate functions are not allowed in the GROUP BY clause"
	}
	if cteInWherePattern.MatchString(masked) {
		return false, "CTE (WITH clause) cannot be used inside a WHERE clause"
	}

	for _, fc := range forbiddenConstructs {
		if fc.pattern.MatchString(sqlQuery) {
			return false, fc.reason
		}
	}

	for _, id := range r.special {
		if match2(id.pattern, masked) {
			return false, fmt.Sprintf("column %s must be quoted as %s", id.name, QuoteIdentifier(id.name))
		}
	}

	if reason := structuralIssue(masked); reason != "" {
		return false, "syntax error: " + reason
	}

	if r.tableRe != nil && !r.tableRe.MatchString(sqlQuery) {
		return false, fmt.Sprintf("query must reference table '%s'", r.table)
	}
	if !selectPattern.MatchString(masked) {
		return false, "query must contain a SELECT statement"
	}

	return true, ""
}

func structuralIssue(masked string) string {
	switch {
	case whereCloseParen.MatchString(masked):
		return "empty WHERE clause"
	case whereAtEnd.MatchString(masked), whereBeforeClause.MatchString(masked):
		return "empty WHERE clause"
	case whereLeadingAnd.MatchString(masked):
		return "WHERE clause starts with AND"
	case match2(whereLeadingOr, masked):
		return "WHERE clause starts with OR"
	case match2(emptyParens, masked):
		return "empty parentheses"
	}

	open, closed := parenCounts(masked)
	if open != closed {
		return fmt.Sprintf("unbalanced parentheses (%d open, %d close)", open, closed)
	}
	return ""
}

func tablePattern(table string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(^|[^\w])` + regexp.QuoteMeta(table) + `($|[^\w])`)
}

// groupByTerminators end a GROUP BY clause at paren depth zero.
var groupByTerminators = []string{"HAVING", "ORDER", "LIMIT", "UNION", "EXCEPT", "INTERSECT", "WINDOW"}

// aggregateInGroupBy reports whether any GROUP BY clause in masked contains
// an aggregate call. The clause ends at a closing parenthesis of its own
// level or at the next clause keyword.
func aggregateInGroupBy(masked string) bool {
	for _, loc := range groupByPattern.FindAllStringIndex(masked, -1) {
		clause := groupByClause(masked[loc[1]:])
		if aggregatePattern.MatchString(clause) {
			return true
		}
	}
	return false
}

func groupByClause(rest string) string {
	depth := 0
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case '(':
			depth++
			continue
		case ')':
			if depth == 0 {
				return rest[:i]
			}
			depth--
			continue
		}
		if depth > 0 || (i > 0 && isIdentByte(rest[i-1])) {
			continue
		}
		for _, kw := range groupByTerminators {
			end := i + len(kw)
			if end <= len(rest) && strings.EqualFold(rest[i:end], kw) && (end == len(rest) || !isIdentByte(rest[end])) {
				return rest[:i]
			}
		}
	}
	return rest
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
