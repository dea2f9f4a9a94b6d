// Package sqlite is the SQLite implementation of datasource.Store backed by
// modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver (pure Go)

	"github.com/hgovi/Basketball-RAG/pkg/adapters/datasource"
	"github.com/hgovi/Basketball-RAG/pkg/apperrors"
	"github.com/hgovi/Basketball-RAG/pkg/logging"
	"github.com/hgovi/Basketball-RAG/pkg/models"
	sqlutil "github.com/hgovi/Basketball-RAG/pkg/sql"
)

// sampleSize is the number of rows TestQuery keeps.
const sampleSize = 3

var selectKeyword = regexp.MustCompile(`(?i)\bSELECT\b`)

// Executor runs queries against one SQLite file. The connection is opened
// on first use and held until Close; an Executor never reconnects while a
// call is in flight. Executors are meant to live for a single request.
type Executor struct {
	path     string
	readOnly bool
	logger   *zap.Logger
	stats    datasource.StatsRecorder

	mu sync.Mutex
	db *sql.DB
}

// Option configures an Executor.
type Option func(*Executor)

// WithStats makes the executor report to a shared recorder.
func WithStats(stats datasource.StatsRecorder) Option {
	return func(e *Executor) {
		if stats != nil {
			e.stats = stats
		}
	}
}

// WithLogger sets the logger; the executor logs under the "executor" name.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger.Named("executor")
		}
	}
}

// WithReadOnly opens the database with mode=ro and the query_only pragma.
func WithReadOnly(readOnly bool) Option {
	return func(e *Executor) {
		e.readOnly = readOnly
	}
}

// withDB injects an already open handle.
func withDB(db *sql.DB) Option {
	return func(e *Executor) {
		e.db = db
	}
}

// NewExecutor returns an executor for the database at path. Nothing is
// opened until the first call.
func NewExecutor(path string, opts ...Option) *Executor {
	e := &Executor{
		path:   path,
		logger: zap.NewNop(),
		stats:  NewQueryStats(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Stats returns the recorder the executor reports to.
func (e *Executor) Stats() datasource.StatsRecorder {
	return e.stats
}

func (e *Executor) dsn() string {
	params := url.Values{}
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "temp_store(memory)")
	params.Add("_pragma", "cache_size(-2000)")
	if e.readOnly {
		params.Set("mode", "ro")
		params.Add("_pragma", "query_only(1)")
	}
	return "file:" + e.path + "?" + params.Encode()
}

// conn returns the open handle, opening it if needed.
func (e *Executor) conn(ctx context.Context) (*sql.DB, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.db != nil {
		return e.db, nil
	}

	db, err := sql.Open("sqlite", e.dsn())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrNotConnected, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: open %s: %v", apperrors.ErrNotConnected, e.path, err)
	}

	e.logger.Debug("Opened statistics database",
		zap.String("path", e.path),
		zap.Bool("read_only", e.readOnly))
	e.db = db
	return db, nil
}

// Execute runs sqlQuery and returns all of its rows. With validateFirst the
// statement passes the safety screen, must contain SELECT and must compile
// under EXPLAIN before it runs. Every call is counted in the stats.
func (e *Executor) Execute(ctx context.Context, sqlQuery string, validateFirst bool) (result *models.QueryResult, err error) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("query execution panicked: %v", r)
		}
		if err != nil {
			e.stats.RecordFailure()
			e.logger.Warn("Query failed",
				zap.String("sql", logging.SanitizeQuery(sqlQuery)),
				zap.String("error", logging.SanitizeError(err)))
			return
		}
		result.Elapsed = time.Since(start)
		e.stats.RecordSuccess(result.Elapsed)
		e.logger.Debug("Query executed",
			zap.Int("rows", result.RowCount),
			zap.Duration("elapsed", result.Elapsed))
	}()

	return e.execute(ctx, sqlQuery, validateFirst)
}

func (e *Executor) execute(ctx context.Context, sqlQuery string, validateFirst bool) (*models.QueryResult, error) {
	if strings.TrimSpace(sqlQuery) == "" {
		return nil, errors.New("empty SQL query")
	}

	db, err := e.conn(ctx)
	if err != nil {
		return nil, err
	}

	query := sqlutil.StripTrailingSemicolon(strings.TrimSpace(sqlQuery))
	if validateFirst {
		if query, err = e.validate(ctx, db, sqlQuery); err != nil {
			return nil, err
		}
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columns, resultRows, err := scanRows(rows)
	if err != nil {
		return nil, err
	}

	return &models.QueryResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

// validate screens and compiles sqlQuery, returning the normalized statement.
func (e *Executor) validate(ctx context.Context, db *sql.DB, sqlQuery string) (string, error) {
	query, err := sqlutil.CheckSafety(sqlQuery)
	if err != nil {
		return "", err
	}
	if !selectKeyword.MatchString(sqlutil.MaskQuoted(query)) {
		return "", errors.New("query must contain SELECT statement")
	}

	rows, err := db.QueryContext(ctx, "EXPLAIN "+query)
	if err != nil {
		return "", fmt.Errorf("SQLite syntax error: %w", err)
	}
	err = rows.Err()
	_ = rows.Close()
	if err != nil {
		return "", fmt.Errorf("SQLite syntax error: %w", err)
	}
	return query, nil
}

// scanRows reads every row into a column-name map. BLOB values are
// returned as strings.
func scanRows(rows *sql.Rows) ([]string, []map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read columns: %w", err)
	}

	resultRows := make([]map[string]any, 0)
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("failed to read row values: %w", err)
		}
		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				rowMap[col] = string(b)
			} else {
				rowMap[col] = values[i]
			}
		}
		resultRows = append(resultRows, rowMap)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return columns, resultRows, nil
}

// TestQuery executes sqlQuery and reports syntax validity, execution
// success, row count, timing and up to three sample rows.
func (e *Executor) TestQuery(ctx context.Context, sqlQuery string) *models.QueryTestResult {
	report := &models.QueryTestResult{Query: sqlQuery}

	db, err := e.conn(ctx)
	if err != nil {
		report.ErrorMessage = err.Error()
		return report
	}
	normalized, err := e.validate(ctx, db, sqlQuery)
	if err != nil {
		report.ErrorMessage = err.Error()
		return report
	}
	report.SyntaxValid = true

	result, err := e.Execute(ctx, normalized, false)
	if err != nil {
		report.ErrorMessage = err.Error()
		return report
	}

	report.ExecutionSuccessful = true
	report.ResultCount = result.RowCount
	report.ExecutionTime = result.Elapsed
	report.ResultSample = result.Head(sampleSize)
	return report
}

// GetTableSchema returns the columns of table in declaration order.
// A missing table yields an empty schema.
func (e *Executor) GetTableSchema(ctx context.Context, table string) (*models.TableSchema, error) {
	schema := &models.TableSchema{Table: table}

	db, err := e.conn(ctx)
	if err != nil {
		return schema, err
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", sqlutil.QuoteIdentifier(table)))
	if err != nil {
		e.logger.Warn("Failed to read table schema", zap.String("table", table), zap.Error(err))
		return schema, nil
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			col       models.Column
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &col.Name, &col.Type, &notNull, &dfltValue, &pk); err != nil {
			return schema, fmt.Errorf("failed to scan column info: %w", err)
		}
		col.NotNull = notNull != 0
		col.PrimaryKey = pk != 0
		schema.Columns = append(schema.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return schema, fmt.Errorf("error iterating column info: %w", err)
	}
	return schema, nil
}

// GetDistinctValues returns up to limit distinct non-null values of column,
// sorted, as strings. A missing table or column yields no values.
func (e *Executor) GetDistinctValues(ctx context.Context, column, table string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = datasource.DefaultDistinctLimit
	}

	db, err := e.conn(ctx)
	if err != nil {
		return nil, err
	}

	col := sqlutil.QuoteIdentifier(column)
	query := fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL ORDER BY 1 LIMIT %d",
		col, sqlutil.QuoteIdentifier(table), col, limit)

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		e.logger.Warn("Failed to load distinct values",
			zap.String("table", table),
			zap.String("column", column),
			zap.Error(err))
		return nil, nil
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan distinct value: %w", err)
		}
		switch tv := v.(type) {
		case []byte:
			values = append(values, string(tv))
		case string:
			values = append(values, tv)
		default:
			values = append(values, fmt.Sprint(tv))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating distinct values: %w", err)
	}
	return values, nil
}

// GetTableNames lists user tables.
func (e *Executor) GetTableNames(ctx context.Context) ([]string, error) {
	db, err := e.conn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// GetRowCount returns the number of rows in table, or zero when the table
// cannot be read.
func (e *Executor) GetRowCount(ctx context.Context, table string) (int64, error) {
	db, err := e.conn(ctx)
	if err != nil {
		return 0, err
	}

	var count int64
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+sqlutil.QuoteIdentifier(table)).Scan(&count)
	if err != nil {
		e.logger.Warn("Failed to count rows", zap.String("table", table), zap.Error(err))
		return 0, nil
	}
	return count, nil
}

// Close releases the connection. Closing an unopened executor is a no-op.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.db == nil {
		return nil
	}
	err := e.db.Close()
	e.db = nil
	return err
}

var _ datasource.Store = (*Executor)(nil)
