package sql

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hgovi/Basketball-RAG/pkg/apperrors"
)

var (
	writeKeyword = regexp.MustCompile(`(?i)\b(DROP|DELETE|UPDATE|INSERT|ALTER|CREATE|ATTACH|DETACH|PRAGMA|VACUUM|REINDEX|REPLACE\s+INTO)\b`)
	unionProbe   = regexp.MustCompile(`(?i)\bUNION\s+(?:ALL\s+)?SELECT\s+(?:NULL|\d+)\s*(?:,|$|\bFROM\b)`)
	schemaTable  = regexp.MustCompile(`(?i)\bsqlite_(?:master|schema|temp_master|temp_schema)\b`)
)

// CheckSafety screens a statement before it reaches the database. It
// returns the statement with trailing semicolons removed, or an error
// wrapping apperrors.ErrUnsafeQuery naming the first problem found.
//
// The screen rejects stacked statements, write or schema statements,
// comments, UNION probes, references to the schema tables and string
// literals that libinjection flags.
func CheckSafety(sqlQuery string) (string, error) {
	res := ValidateAndNormalize(sqlQuery)
	if res.Error != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrUnsafeQuery, res.Error)
	}
	normalized := res.NormalizedSQL
	masked := MaskQuoted(normalized)

	if m := writeKeyword.FindString(masked); m != "" {
		return "", fmt.Errorf("%w: %s statements are not allowed", apperrors.ErrUnsafeQuery, strings.ToUpper(strings.Fields(m)[0]))
	}
	if hasCommentOutsideStrings(normalized) {
		return "", fmt.Errorf("%w: comments are not allowed", apperrors.ErrUnsafeQuery)
	}
	if unionProbe.MatchString(masked) {
		return "", fmt.Errorf("%w: UNION probe", apperrors.ErrUnsafeQuery)
	}
	if schemaTable.MatchString(masked) {
		return "", fmt.Errorf("%w: schema tables are not queryable", apperrors.ErrUnsafeQuery)
	}
	for _, lit := range StringLiterals(normalized) {
		if r := CheckValue("literal", lit); r != nil {
			return "", fmt.Errorf("%w: literal matches injection fingerprint %s", apperrors.ErrUnsafeQuery, r.Fingerprint)
		}
	}

	return normalized, nil
}
