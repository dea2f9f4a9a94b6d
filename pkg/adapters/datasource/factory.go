package datasource

import (
	"context"
	"fmt"
)

// New creates a Store of the given registered type.
func New(ctx context.Context, dsType string, cfg Config) (Store, error) {
	factory := GetFactory(dsType)
	if factory == nil {
		return nil, fmt.Errorf("unsupported datasource type: %s (not compiled in)", dsType)
	}
	return factory(ctx, cfg)
}
