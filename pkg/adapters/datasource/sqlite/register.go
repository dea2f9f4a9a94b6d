package sqlite

import (
	"context"

	"github.com/hgovi/Basketball-RAG/pkg/adapters/datasource"
)

// Type is the registry key of this adapter.
const Type = "sqlite"

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        Type,
			DisplayName: "SQLite",
			Description: "Single-file SQLite statistics database",
		},
		Factory: func(ctx context.Context, cfg datasource.Config) (datasource.Store, error) {
			return NewExecutor(cfg.Path,
				WithReadOnly(cfg.ReadOnly),
				WithStats(cfg.Stats),
				WithLogger(cfg.Logger),
			), nil
		},
	})
}
