// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml plus the environment-specific overlay and
// applies environment-variable overrides.
func Load() (*Config, error) {
	loadEnvFile()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = viper.MergeInConfig() // overlay is optional

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	for _, path := range []string{".env", "../.env", "../../.env"} {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func overrideEmptyConfig(cfg *Config) {
	if cfg.Scorer.APIKey == "" {
		if val := os.Getenv("SCORER_API_KEY"); val != "" {
			cfg.Scorer.APIKey = val
		}
	}
	if cfg.Redis.Password == "" {
		if val := os.Getenv("REDIS_PASSWORD"); val != "" {
			cfg.Redis.Password = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Refresh.Interval == 0 {
		cfg.Refresh.Interval = 6 * time.Hour
	}
	if cfg.Refresh.CycleTimeout == 0 {
		cfg.Refresh.CycleTimeout = 10 * time.Minute
	}
	if cfg.Refresh.AdapterTimeout == 0 {
		cfg.Refresh.AdapterTimeout = 30 * time.Second
	}
	if cfg.Refresh.MaxConcurrent == 0 {
		cfg.Refresh.MaxConcurrent = 4
	}

	if cfg.Scorer.MaxBatchSize == 0 {
		cfg.Scorer.MaxBatchSize = 20
	}
	if cfg.Scorer.MaxRetries == 0 {
		cfg.Scorer.MaxRetries = 3
	}
	if cfg.Scorer.InitialBackoff == 0 {
		cfg.Scorer.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.Scorer.RequestTimeout == 0 {
		cfg.Scorer.RequestTimeout = 30 * time.Second
	}
	if cfg.Scorer.MaxConcurrent == 0 {
		cfg.Scorer.MaxConcurrent = 2
	}
	if cfg.Scorer.RatePerMinute == 0 {
		cfg.Scorer.RatePerMinute = 50
	}
	if cfg.Scorer.CacheTTL == 0 {
		cfg.Scorer.CacheTTL = 7 * 24 * time.Hour
	}
	if cfg.Scorer.SnapshotTTL == 0 {
		cfg.Scorer.SnapshotTTL = 48 * time.Hour
	}

	if cfg.Ranking.TypicalMealCalories == 0 {
		cfg.Ranking.TypicalMealCalories = 800
	}
	if cfg.Ranking.TypicalMealProtein == 0 {
		cfg.Ranking.TypicalMealProtein = 30
	}
	if cfg.Ranking.TypicalMealPrice == 0 {
		cfg.Ranking.TypicalMealPrice = 9.0
	}
	if cfg.Ranking.SatietyWeight == 0 {
		cfg.Ranking.SatietyWeight = 0.4
	}
	if cfg.Ranking.PriceWeight == 0 {
		cfg.Ranking.PriceWeight = 0.6
	}

	if cfg.API.ListenAddress == "" {
		cfg.API.ListenAddress = ":8080"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// validateConfig validates critical configuration fields.
func validateConfig(cfg *Config) error {
	if cfg.Redis.Address == "" {
		return fmt.Errorf("redis.address is required")
	}
	if cfg.Scorer.BaseURL == "" {
		return fmt.Errorf("scorer.base_url is required")
	}
	if len(cfg.Sources) == 0 {
		return fmt.Errorf("at least one source must be configured")
	}
	seen := map[string]bool{}
	for _, src := range cfg.Sources {
		if src.ID == "" || src.Adapter == "" {
			return fmt.Errorf("every source needs an id and an adapter")
		}
		if seen[src.ID] {
			return fmt.Errorf("duplicate source id %q", src.ID)
		}
		seen[src.ID] = true
	}
	return nil
}
