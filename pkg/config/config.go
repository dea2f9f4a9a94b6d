// Package config loads process configuration from config.yaml, .env and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// DefaultConfigPath is read when present; without it configuration comes
// from the environment alone.
const DefaultConfigPath = "config.yaml"

// Config holds all configuration for basketball-rag.
// Environment variables always override YAML values for fields that support both.
// Secrets (API keys) must only come from environment variables.
type Config struct {
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:""`
	Version  string `yaml:"-"` // Set at load time, not from config

	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// DatabaseConfig holds the statistics database configuration.
type DatabaseConfig struct {
	// Path is the SQLite database file.
	Path string `yaml:"path" env:"DB_PATH" env-default:"data/ucla_wbb.db"`
	// Table is the single statistics table queries run against.
	Table string `yaml:"table" env:"STATS_TABLE" env-default:"ucla_player_stats"`
	// ReadOnly opens request connections with the query_only pragma.
	ReadOnly bool `yaml:"read_only" env:"DB_READ_ONLY" env-default:"true"`
}

// LLMConfig holds text-generation provider configuration.
type LLMConfig struct {
	Provider       string  `yaml:"provider" env:"LLM_PROVIDER" env-default:"anthropic"`
	Model          string  `yaml:"model" env:"LLM_MODEL" env-default:"claude-3-5-sonnet-20241022"`
	BaseURL        string  `yaml:"base_url" env:"LLM_BASE_URL" env-default:""`
	Temperature    float64 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0.7"`
	MaxTokens      int     `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"1000"`
	TimeoutSeconds int     `yaml:"timeout_seconds" env:"LLM_TIMEOUT_SECONDS" env-default:"60"`
	MaxRetries     int     `yaml:"max_retries" env:"LLM_MAX_RETRIES" env-default:"2"`

	AnthropicAPIKey string `yaml:"-" env:"ANTHROPIC_API_KEY"` // Secret - not in YAML
	OpenAIAPIKey    string `yaml:"-" env:"OPENAI_API_KEY"`    // Secret - not in YAML
}

// APIKey returns the key for the configured provider.
func (c LLMConfig) APIKey() string {
	if strings.EqualFold(c.Provider, "openai") {
		return c.OpenAIAPIKey
	}
	return c.AnthropicAPIKey
}

// Timeout returns the per-call timeout.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PipelineConfig tunes the query pipeline.
type PipelineConfig struct {
	// GenerationRetries is how many times invalid SQL is regenerated.
	GenerationRetries int `yaml:"generation_retries" env:"GENERATION_RETRIES" env-default:"2"`
	// FuzzyThreshold is the minimum similarity (0-100) for name resolution.
	FuzzyThreshold int `yaml:"fuzzy_threshold" env:"FUZZY_THRESHOLD" env-default:"75"`
	// DistinctValueLimit caps known values loaded per column.
	DistinctValueLimit int `yaml:"distinct_value_limit" env:"DISTINCT_VALUE_LIMIT" env-default:"1000"`
	// SynthesisRowLimit caps rows handed to answer synthesis.
	SynthesisRowLimit int `yaml:"synthesis_row_limit" env:"SYNTHESIS_ROW_LIMIT" env-default:"10"`
	// Concurrency bounds parallel requests in batch mode.
	Concurrency int `yaml:"concurrency" env:"CONCURRENCY" env-default:"4"`
}

// Load reads .env (if present), then config.yaml (if present) with
// environment overrides, then validates the result.
func Load(version string) (*Config, error) {
	return LoadFrom(DefaultConfigPath, version)
}

// LoadFrom is Load with an explicit YAML path.
func LoadFrom(path, version string) (*Config, error) {
	// .env is optional; variables already set in the environment win
	_ = godotenv.Load()

	cfg := &Config{Version: version}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	cfg.LLM.BaseURL = ResolveURLForDocker(cfg.LLM.BaseURL)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks value ranges. A missing API key is not an error here; it
// is reported per request so the process can still run migrations and
// inspection.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.Path == "" {
		errs = append(errs, errors.New("database path is required"))
	}
	if c.Database.Table == "" {
		errs = append(errs, errors.New("stats table is required"))
	}
	switch strings.ToLower(c.LLM.Provider) {
	case "anthropic", "openai":
	default:
		errs = append(errs, fmt.Errorf("unsupported LLM provider %q", c.LLM.Provider))
	}
	if c.LLM.TimeoutSeconds < 0 {
		errs = append(errs, errors.New("LLM timeout must not be negative"))
	}
	if c.LLM.MaxRetries < 0 {
		errs = append(errs, errors.New("LLM max retries must not be negative"))
	}
	if c.Pipeline.GenerationRetries < 0 {
		errs = append(errs, errors.New("generation retries must not be negative"))
	}
	if c.Pipeline.FuzzyThreshold < 0 || c.Pipeline.FuzzyThreshold > 100 {
		errs = append(errs, fmt.Errorf("fuzzy threshold %d out of range 0-100", c.Pipeline.FuzzyThreshold))
	}
	if c.Pipeline.DistinctValueLimit <= 0 {
		errs = append(errs, errors.New("distinct value limit must be positive"))
	}
	if c.Pipeline.SynthesisRowLimit <= 0 {
		errs = append(errs, errors.New("synthesis row limit must be positive"))
	}
	if c.Pipeline.Concurrency <= 0 {
		errs = append(errs, errors.New("concurrency must be positive"))
	}

	return errors.Join(errs...)
}
