// internal/common/config/loader_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
redis:
  address: localhost:6379
scorer:
  base_url: http://scoring.local
sources:
  - id: chain_a
    display_name: Chain A
    adapter: menujson
    menu_url: http://chain-a.local/menu
`

func TestLoadFromFileAppliesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 6*time.Hour, cfg.Refresh.Interval)
	assert.Equal(t, 10*time.Minute, cfg.Refresh.CycleTimeout)
	assert.Equal(t, 30*time.Second, cfg.Refresh.AdapterTimeout)
	assert.Equal(t, 20, cfg.Scorer.MaxBatchSize)
	assert.Equal(t, 50, cfg.Scorer.RatePerMinute)
	assert.Equal(t, 800, cfg.Ranking.TypicalMealCalories)
	assert.InDelta(t, 0.4, cfg.Ranking.SatietyWeight, 0.001)
	assert.InDelta(t, 0.6, cfg.Ranking.PriceWeight, 0.001)
	assert.Equal(t, ":8080", cfg.API.ListenAddress)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFileExplicitValuesWin(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig+`
refresh:
  interval: 2h
  run_on_start: true
scorer_extra: ignored
`))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, cfg.Refresh.Interval)
	assert.True(t, cfg.Refresh.RunOnStart)
}

func TestLoadFromFileRejectsMissingRedis(t *testing.T) {
	_, err := LoadFromFile(writeConfig(t, `
scorer:
  base_url: http://scoring.local
sources:
  - id: chain_a
    adapter: menujson
`))
	assert.ErrorContains(t, err, "redis.address")
}

func TestLoadFromFileRejectsDuplicateSources(t *testing.T) {
	_, err := LoadFromFile(writeConfig(t, `
redis:
  address: localhost:6379
scorer:
  base_url: http://scoring.local
sources:
  - id: chain_a
    adapter: menujson
  - id: chain_a
    adapter: menujson
`))
	assert.ErrorContains(t, err, "duplicate source")
}

func TestAPIKeyFallsBackToEnvironment(t *testing.T) {
	t.Setenv("SCORER_API_KEY", "from-env")
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Scorer.APIKey)
}
