package annotator

import (
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Config holds configuration parameters shared by the annotation backends.
// Configuration is loaded from environment variables with fallback to defaults.
type Config struct {
	// Model is the API model identifier to use for annotation calls.
	Model string

	// MaxTokens is the maximum number of tokens for an API response.
	MaxTokens int

	// Timeout is the maximum duration for a single annotation API call.
	Timeout time.Duration
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", c.MaxTokens)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	return nil
}

// LoadConfig loads annotator configuration from environment variables,
// falling back to the given default model.
//
// Environment variables:
//   - ANNOTATOR_MODEL: API model identifier
//   - ANNOTATOR_TIMEOUT: per-call timeout (Go duration, default 60s)
func LoadConfig(defaultModel string) Config {
	cfg := Config{
		Model:     defaultModel,
		MaxTokens: 2048,
		Timeout:   60 * time.Second,
	}

	if model := os.Getenv("ANNOTATOR_MODEL"); model != "" {
		cfg.Model = model
	}

	if timeout := os.Getenv("ANNOTATOR_TIMEOUT"); timeout != "" {
		parsed, err := time.ParseDuration(timeout)
		if err != nil || parsed <= 0 {
			slog.Warn("Invalid ANNOTATOR_TIMEOUT, using default",
				slog.String("value", timeout),
				slog.Duration("default", cfg.Timeout))
		} else {
			cfg.Timeout = parsed
		}
	}

	return cfg
}
