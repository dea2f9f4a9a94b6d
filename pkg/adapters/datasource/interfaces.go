package datasource

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hgovi/Basketball-RAG/pkg/models"
)

// DefaultDistinctLimit caps GetDistinctValues when the caller passes no limit.
const DefaultDistinctLimit = 1000

// StatsStore is what the query pipeline needs from the statistics database.
// Implementations tolerate a store that is not connected yet: schema and
// value lookups return empty results instead of failing.
type StatsStore interface {
	// GetTableSchema returns the ordered columns of table. A missing table
	// yields an empty schema and no error.
	GetTableSchema(ctx context.Context, table string) (*models.TableSchema, error)

	// GetDistinctValues returns up to limit distinct non-null values of
	// column as strings. limit <= 0 uses DefaultDistinctLimit.
	GetDistinctValues(ctx context.Context, column, table string, limit int) ([]string, error)

	// Execute runs a read-only query and returns every row. With
	// validateFirst the statement is screened and compiled before it runs.
	Execute(ctx context.Context, sqlQuery string, validateFirst bool) (*models.QueryResult, error)
}

// Store is a StatsStore that also supports the diagnostics used by the CLI
// and MCP surfaces. Each Store owns its connection and must be closed.
type Store interface {
	StatsStore

	// GetTableNames lists user tables.
	GetTableNames(ctx context.Context) ([]string, error)

	// GetRowCount returns the number of rows in table.
	GetRowCount(ctx context.Context, table string) (int64, error)

	// TestQuery executes sqlQuery and reports validity, timing and a
	// small sample of rows. It never returns an error.
	TestQuery(ctx context.Context, sqlQuery string) *models.QueryTestResult

	// Close releases the connection.
	Close() error
}

// StatsRecorder receives one observation per executed query.
type StatsRecorder interface {
	RecordSuccess(elapsed time.Duration)
	RecordFailure()
}

// Config is passed to an adapter factory.
type Config struct {
	Path     string
	ReadOnly bool
	// Stats, when set, receives execution observations instead of a
	// store-local recorder.
	Stats  StatsRecorder
	Logger *zap.Logger
}
