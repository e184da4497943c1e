// internal/adapters/adapter_test.go
package adapters

import (
	"context"
	"testing"

	"menuranker/internal/common/config"
	stderrors "menuranker/internal/common/errors"
	"menuranker/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct{ sourceID string }

func (s *stubAdapter) SourceID() string { return s.sourceID }
func (s *stubAdapter) Fetch(context.Context) ([]models.RawItem, error) {
	return nil, nil
}

func TestRegistryBuildsBoundAdapter(t *testing.T) {
	reg := NewRegistry()
	reg.Register("stub", func(src config.SourceConfig) (Adapter, error) {
		return &stubAdapter{sourceID: src.ID}, nil
	})

	a, err := reg.Build(config.SourceConfig{ID: "chain_a", Adapter: "stub"})
	require.NoError(t, err)
	assert.Equal(t, "chain_a", a.SourceID())
}

func TestRegistryUnknownCapability(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Build(config.SourceConfig{ID: "chain_a", Adapter: "telepathy"})
	require.Error(t, err)
	assert.Equal(t, stderrors.ErrCodeAdapterNotFound, stderrors.CodeOf(err))
}
