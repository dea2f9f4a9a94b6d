package datasource

import (
	"context"
	"sort"
	"sync"
)

// AdapterInfo describes a registered adapter.
type AdapterInfo struct {
	Type        string `json:"type"`         // "sqlite"
	DisplayName string `json:"display_name"` // "SQLite"
	Description string `json:"description"`
}

// AdapterRegistration contains info and the factory for one adapter type.
type AdapterRegistration struct {
	Info    AdapterInfo
	Factory func(ctx context.Context, cfg Config) (Store, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]AdapterRegistration)
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg AdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredAdapters returns info for all registered adapters, ordered by type.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// GetFactory returns the factory for a datasource type.
// Returns nil if type is not registered.
func GetFactory(dsType string) func(ctx context.Context, cfg Config) (Store, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[dsType]; ok {
		return reg.Factory
	}
	return nil
}

// IsRegistered checks if an adapter type is available.
func IsRegistered(dsType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[dsType]
	return ok
}
