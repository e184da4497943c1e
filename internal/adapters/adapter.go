// internal/adapters/adapter.go
// Package adapters defines the source adapter contract and the registry that
// builds per-source adapters from configured capabilities.
package adapters

import (
	"context"

	"menuranker/internal/common/config"
	stderrors "menuranker/internal/common/errors"
	"menuranker/internal/models"
)

// Adapter fetches one source's raw menu. Implementations must honor ctx
// cancellation; the aggregator enforces the per-source timeout through it.
type Adapter interface {
	// SourceID identifies the source this adapter instance was built for.
	SourceID() string
	Fetch(ctx context.Context) ([]models.RawItem, error)
}

// Factory builds an adapter bound to one configured source.
type Factory func(src config.SourceConfig) (Adapter, error)

// Registry maps capability names to factories. It is populated at startup
// and read-only afterwards.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(capability string, f Factory) {
	r.factories[capability] = f
}

// Build constructs the adapter for src, or returns ADAPTER_NOT_FOUND when its
// capability is not registered.
func (r *Registry) Build(src config.SourceConfig) (Adapter, error) {
	f, ok := r.factories[src.Adapter]
	if !ok {
		return nil, stderrors.NewAdapterNotFoundError(src.Adapter)
	}
	return f(src)
}
