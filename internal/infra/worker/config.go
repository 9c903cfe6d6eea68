// Package worker hosts the scheduled quarantine-reprocessing job: its
// configuration, Prometheus metrics, and the health endpoints the scheduler
// binary exposes.
package worker

import (
	"fmt"
	"log/slog"
	"time"

	"flashcard-pipeline/internal/pkg/config"
)

// WorkerConfig controls the quarantine reprocessing schedule and the
// operational surface of the worker binary.
//
// Configuration loading is fail-open: LoadConfigFromEnv never returns an
// error, it validates each value and falls back to the default with a
// warning and a metrics increment, so a typo in one variable cannot keep
// quarantined items stuck forever.
type WorkerConfig struct {
	// CronSchedule is the five-field cron expression for reprocessing runs.
	// Default: "0 */6 * * *" (every six hours).
	CronSchedule string

	// Timezone is the IANA timezone the schedule is evaluated in.
	// Default: "UTC".
	Timezone string

	// ReprocessTimeout bounds one full reprocessing run. Runs that exceed it
	// are cancelled and retried at the next scheduled slot.
	// Default: 30 minutes.
	ReprocessTimeout time.Duration

	// HealthPort is the port for the liveness/readiness HTTP server.
	// Range 1024-65535, default 9091.
	HealthPort int
}

// DefaultConfig returns production-ready worker defaults.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		CronSchedule:     "0 */6 * * *",
		Timezone:         "UTC",
		ReprocessTimeout: 30 * time.Minute,
		HealthPort:       9091,
	}
}

// Validate checks every field and aggregates all failures into one error.
func (c *WorkerConfig) Validate() error {
	var errs []error

	if err := config.ValidateCronSchedule(c.CronSchedule); err != nil {
		errs = append(errs, fmt.Errorf("cron schedule: %w", err))
	}
	if err := config.ValidateTimezone(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if err := config.ValidatePositiveDuration(c.ReprocessTimeout); err != nil {
		errs = append(errs, fmt.Errorf("reprocess timeout: %w", err))
	}
	if err := config.ValidateIntRange(c.HealthPort, 1024, 65535); err != nil {
		errs = append(errs, fmt.Errorf("health port: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %v", errs)
	}
	return nil
}

// LoadConfigFromEnv loads the worker configuration from environment
// variables with per-field validation and fail-open fallback to defaults.
//
// Environment variables:
//   - REPROCESS_CRON_SCHEDULE: cron expression (default "0 */6 * * *")
//   - WORKER_TIMEZONE: IANA timezone name (default "UTC")
//   - REPROCESS_TIMEOUT: duration string, 1m-4h (default "30m")
//   - WORKER_HEALTH_PORT: integer 1024-65535 (default 9091)
//
// The returned config is always valid; the error is always nil and exists
// for call-site symmetry with stricter loaders.
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) (*WorkerConfig, error) {
	cfg := DefaultConfig()
	fallbackApplied := false

	warnFallback := func(field string, result config.ConfigLoadResult) {
		fallbackApplied = true
		metrics.RecordValidationError(field)
		metrics.RecordFallback(field, "default")
		for _, warning := range result.Warnings {
			logger.Warn("Configuration fallback applied",
				slog.String("field", field),
				slog.String("warning", warning))
		}
	}

	result := config.LoadEnvWithFallback("REPROCESS_CRON_SCHEDULE", cfg.CronSchedule, config.ValidateCronSchedule)
	cfg.CronSchedule = result.Value.(string)
	if result.FallbackApplied {
		warnFallback("cron_schedule", result)
	}

	result = config.LoadEnvWithFallback("WORKER_TIMEZONE", cfg.Timezone, config.ValidateTimezone)
	cfg.Timezone = result.Value.(string)
	if result.FallbackApplied {
		warnFallback("timezone", result)
	}

	result = config.LoadEnvDuration("REPROCESS_TIMEOUT", cfg.ReprocessTimeout, func(d time.Duration) error {
		return config.ValidateDuration(d, 1*time.Minute, 4*time.Hour)
	})
	cfg.ReprocessTimeout = result.Value.(time.Duration)
	if result.FallbackApplied {
		warnFallback("reprocess_timeout", result)
	}

	result = config.LoadEnvInt("WORKER_HEALTH_PORT", cfg.HealthPort, func(v int) error {
		return config.ValidateIntRange(v, 1024, 65535)
	})
	cfg.HealthPort = result.Value.(int)
	if result.FallbackApplied {
		warnFallback("health_port", result)
	}

	metrics.SetFallbackActive("", fallbackApplied)
	metrics.RecordLoadTimestamp()

	return &cfg, nil
}
