package models

import (
	"time"
)

// QuerySource records where a generated query came from.
type QuerySource string

const (
	QuerySourceModel    QuerySource = "model"
	QuerySourceTemplate QuerySource = "template"
)

// GeneratedQuery is the output of SQL generation for one request.
// It is consumed once by the executor and never reused.
type GeneratedQuery struct {
	SQL      string      `json:"sql"`
	Valid    bool        `json:"valid"`
	Reason   string      `json:"reason,omitempty"` // first failing validation rule
	Attempts int         `json:"attempts"`
	Source   QuerySource `json:"source"`
	// Err is set when the text generator failed and no SQL was produced.
	Err error `json:"-"`
}

// Empty reports whether no SQL was produced.
func (q *GeneratedQuery) Empty() bool {
	return q == nil || q.SQL == ""
}

// QueryResult holds the rows returned by one execution.
type QueryResult struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
	Elapsed  time.Duration    `json:"elapsed"`
}

// Head returns at most n rows.
func (r *QueryResult) Head(n int) []map[string]any {
	if r == nil {
		return nil
	}
	if n < 0 || len(r.Rows) <= n {
		return r.Rows
	}
	return r.Rows[:n]
}

// Truncate returns a copy of the result holding at most n rows.
func (r *QueryResult) Truncate(n int) *QueryResult {
	if r == nil {
		return nil
	}
	rows := r.Head(n)
	return &QueryResult{
		Columns:  r.Columns,
		Rows:     rows,
		RowCount: len(rows),
		Elapsed:  r.Elapsed,
	}
}

// QueryTestResult is the diagnostic report produced by a test execution.
type QueryTestResult struct {
	Query               string           `json:"query"`
	SyntaxValid         bool             `json:"syntax_valid"`
	ExecutionSuccessful bool             `json:"execution_successful"`
	ResultCount         int              `json:"result_count"`
	ExecutionTime       time.Duration    `json:"execution_time"`
	ErrorMessage        string           `json:"error_message,omitempty"`
	ResultSample        []map[string]any `json:"result_sample,omitempty"`
}
