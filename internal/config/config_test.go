package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashcard-pipeline/internal/cache"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "claude", cfg.Provider)
	assert.Equal(t, 5, cfg.Parallelism)

	_, err := cfg.Cache.ToCache()
	assert.NoError(t, err)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
provider: openai
parallelism: 8
rate_limit:
  rate_per_second: 2.5
  burst: 120
cache:
  eviction: lfu
  ttl: 30m
orchestrator:
  call_timeout: 90s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, 8, cfg.Parallelism)
	assert.Equal(t, 2.5, cfg.RateLimit.RatePerSecond)
	assert.Equal(t, 120, cfg.RateLimit.Burst)
	assert.Equal(t, "lfu", cfg.Cache.Eviction)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL.Std())
	assert.Equal(t, 90*time.Second, cfg.Orchestrator.CallTimeout.Std())

	// Untouched sections keep defaults.
	assert.Equal(t, Default().Retry, cfg.Retry)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "provider: openai\n")
	t.Setenv("ANNOTATION_PROVIDER", "noop")
	t.Setenv("DATABASE_URL", "postgres://pipeline@localhost/flashcards")
	t.Setenv("PIPELINE_PARALLELISM", "3")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "noop", cfg.Provider)
	assert.Equal(t, "postgres://pipeline@localhost/flashcards", cfg.DatabaseURL)
	assert.Equal(t, 3, cfg.Parallelism)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown provider", "provider: gemini\n"},
		{"zero parallelism", "parallelism: 0\n"},
		{"bad duration", "orchestrator:\n  call_timeout: soon\n"},
		{"bad metrics port", "metrics_port: 80\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestCacheEvictionMapping(t *testing.T) {
	tests := []struct {
		in   string
		want cache.EvictionPolicy
	}{
		{"lru", cache.EvictLRU},
		{"lfu", cache.EvictLFU},
		{"ttl", cache.EvictTTL},
	}
	for _, tt := range tests {
		cfg := Default().Cache
		cfg.Eviction = tt.in
		out, err := cfg.ToCache()
		require.NoError(t, err)
		assert.Equal(t, tt.want, out.Eviction)
	}

	cfg := Default().Cache
	cfg.Eviction = "fifo"
	_, err := cfg.ToCache()
	assert.Error(t, err)
}

func TestSectionConversions(t *testing.T) {
	cfg := Default()

	lim := cfg.RateLimit.ToLimiter()
	assert.Equal(t, 1.0, lim.RatePerSecond)
	assert.Equal(t, 60, lim.Burst)

	br := cfg.Breaker.ToBreaker("annotation")
	assert.Equal(t, "annotation", br.Name)
	assert.Equal(t, 0.5, br.FailureThreshold)

	rt := cfg.Retry.ToRetry()
	assert.Equal(t, 3, rt.MaxAttempts)
	assert.Equal(t, 2*time.Second, rt.InitialDelay)

	orch := cfg.Orchestrator.ToOrchestrator("analyze")
	assert.Equal(t, "analyze", orch.Name)
	assert.Equal(t, 60*time.Second, orch.CallTimeout)

	pipe := cfg.ToPipeline()
	assert.Equal(t, 5, pipe.Parallelism)
}
