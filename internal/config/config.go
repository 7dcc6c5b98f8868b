package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
//
// Values are resolved lowest-precedence first: hardcoded defaults, then an
// optional YAML file, then environment variables. Command-line flags applied
// by the caller win over everything.
type Config struct {
	// File paths
	DBPath string `yaml:"db_path"`

	// Polling settings
	Hours      int `yaml:"hours"`
	FetchLimit int `yaml:"fetch_limit"`

	// Display and filter settings
	MinScore    int `yaml:"min_score"`
	MinComments int `yaml:"min_comments"`
	ShowLimit   int `yaml:"show_limit"`
	HNWeight    int `yaml:"hn_weight"` // percent, 0-100

	// Classification settings
	AnthropicAPIKey string `yaml:"-"`
	ClassifierModel string `yaml:"classifier_model"`
	ScoreBatchSize  int    `yaml:"score_batch_size"`

	// Pacing between upstream calls, environment-only.
	ScoreThrottle   time.Duration `yaml:"-"`
	ScoreBatchPause time.Duration `yaml:"-"`
	FetchDelay      time.Duration `yaml:"-"`

	// Sync settings
	ReadwiseToken string `yaml:"-"`
	MinRelevance  int    `yaml:"min_relevance"`

	// Log settings
	LogLevel zerolog.Level `yaml:"-"`
}

// DefaultConfig returns an initial configuration with hardcoded defaults
// and secrets pulled from the environment.
func DefaultConfig() *Config {
	return &Config{
		DBPath:          GetEnvString("HNPOLLER_DB_PATH", DefaultDBPath),
		Hours:           GetEnvInt("HNPOLLER_HOURS", DefaultHours),
		FetchLimit:      GetEnvInt("HNPOLLER_FETCH_LIMIT", DefaultFetchLimit),
		MinScore:        GetEnvInt("HNPOLLER_MIN_SCORE", DefaultMinScore),
		MinComments:     GetEnvInt("HNPOLLER_MIN_COMMENTS", DefaultMinComments),
		ShowLimit:       GetEnvInt("HNPOLLER_SHOW_LIMIT", DefaultShowLimit),
		HNWeight:        GetEnvInt("HNPOLLER_HN_WEIGHT", DefaultHNWeight),
		AnthropicAPIKey: GetEnvString("ANTHROPIC_API_KEY", ""),
		ClassifierModel: GetEnvString("HNPOLLER_CLASSIFIER_MODEL", ""),
		ScoreBatchSize:  GetEnvInt("HNPOLLER_SCORE_BATCH_SIZE", DefaultScoreBatchSize),
		ScoreThrottle:   GetEnvDuration("HNPOLLER_SCORE_THROTTLE", DefaultScoreThrottle),
		ScoreBatchPause: GetEnvDuration("HNPOLLER_SCORE_BATCH_PAUSE", DefaultScoreBatchPause),
		FetchDelay:      GetEnvDuration("HNPOLLER_FETCH_DELAY", DefaultFetchDelay),
		ReadwiseToken:   GetEnvString("READWISE_TOKEN", ""),
		MinRelevance:    GetEnvInt("HNPOLLER_MIN_RELEVANCE", DefaultSyncRelevance),
		LogLevel:        GetEnvLogLevel("HNPOLLER_LOG_LEVEL", zerolog.InfoLevel),
	}
}

// Load builds the effective configuration. When HNPOLLER_CONFIG points at a
// YAML file, its values are applied before environment overrides; a missing
// or empty variable skips the file layer entirely.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("HNPOLLER_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}

		// Environment variables win over the file.
		applyEnvOverrides(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.DBPath = GetEnvString("HNPOLLER_DB_PATH", cfg.DBPath)
	cfg.Hours = GetEnvInt("HNPOLLER_HOURS", cfg.Hours)
	cfg.FetchLimit = GetEnvInt("HNPOLLER_FETCH_LIMIT", cfg.FetchLimit)
	cfg.MinScore = GetEnvInt("HNPOLLER_MIN_SCORE", cfg.MinScore)
	cfg.MinComments = GetEnvInt("HNPOLLER_MIN_COMMENTS", cfg.MinComments)
	cfg.ShowLimit = GetEnvInt("HNPOLLER_SHOW_LIMIT", cfg.ShowLimit)
	cfg.HNWeight = GetEnvInt("HNPOLLER_HN_WEIGHT", cfg.HNWeight)
	cfg.ClassifierModel = GetEnvString("HNPOLLER_CLASSIFIER_MODEL", cfg.ClassifierModel)
	cfg.ScoreBatchSize = GetEnvInt("HNPOLLER_SCORE_BATCH_SIZE", cfg.ScoreBatchSize)
	cfg.MinRelevance = GetEnvInt("HNPOLLER_MIN_RELEVANCE", cfg.MinRelevance)
}

// Validate rejects values that would silently misbehave downstream.
func (c *Config) Validate() error {
	if c.Hours <= 0 {
		return fmt.Errorf("hours must be positive, got %d", c.Hours)
	}
	if c.HNWeight < 0 || c.HNWeight > 100 {
		return fmt.Errorf("hn_weight must be 0-100, got %d", c.HNWeight)
	}
	if c.ScoreBatchSize <= 0 {
		return fmt.Errorf("score_batch_size must be positive, got %d", c.ScoreBatchSize)
	}
	return nil
}
