// internal/common/config/config.go
package config

import "time"

// Config is the main application configuration struct.
type Config struct {
	App     AppConfig      `mapstructure:"app"`
	Redis   RedisConfig    `mapstructure:"redis"`
	Refresh RefreshConfig  `mapstructure:"refresh"`
	Scorer  ScorerConfig   `mapstructure:"scorer"`
	Ranking RankingConfig  `mapstructure:"ranking"`
	Sources []SourceConfig `mapstructure:"sources"`
	API     APIConfig      `mapstructure:"api"`
	Logging LoggingConfig  `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RefreshConfig drives the scheduler and the aggregator's cycle budget.
type RefreshConfig struct {
	Interval       time.Duration `mapstructure:"interval"`        // default 6h
	CycleTimeout   time.Duration `mapstructure:"cycle_timeout"`   // overall cycle deadline
	AdapterTimeout time.Duration `mapstructure:"adapter_timeout"` // per-source fetch budget
	MaxConcurrent  int           `mapstructure:"max_concurrent"`  // parallel source fetches
	RunOnStart     bool          `mapstructure:"run_on_start"`
}

// ScorerConfig bounds the external scoring service integration. The service's
// real batch size, rate limits, and retry bounds are deployment facts, so all
// of them are tunable here rather than fixed in code.
type ScorerConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	MaxBatchSize   int           `mapstructure:"max_batch_size"`
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxConcurrent  int           `mapstructure:"max_concurrent"`   // parallel chunks
	RatePerMinute  int           `mapstructure:"rate_per_minute"`  // shared token bucket
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`        // score cache entry lifetime
	SnapshotTTL    time.Duration `mapstructure:"snapshot_ttl"`     // persisted snapshot lifetime
}

// RankingConfig holds the feature-payload anchors and weights sent alongside
// each scoring request.
type RankingConfig struct {
	TypicalMealCalories int     `mapstructure:"typical_meal_calories"`
	TypicalMealProtein  float64 `mapstructure:"typical_meal_protein"`
	TypicalMealPrice    float64 `mapstructure:"typical_meal_price"` // dollars
	SatietyWeight       float64 `mapstructure:"satiety_weight"`
	PriceWeight         float64 `mapstructure:"price_weight"`
}

// SourceConfig declares one fast-food chain and the adapter that scrapes it.
type SourceConfig struct {
	ID          string `mapstructure:"id"`
	DisplayName string `mapstructure:"display_name"`
	Adapter     string `mapstructure:"adapter"`
	MenuURL     string `mapstructure:"menu_url"`
}

type APIConfig struct {
	ListenAddress string `mapstructure:"listen_address"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
