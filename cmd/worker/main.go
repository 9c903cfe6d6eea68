// Command worker runs the scheduled quarantine-reprocessing job. On each
// cron tick it replays quarantined vocabulary items through the annotation
// pipeline and releases the ones that now succeed.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"flashcard-pipeline/internal/cache"
	appconfig "flashcard-pipeline/internal/config"
	"flashcard-pipeline/internal/infra/adapter/persistence/postgres"
	"flashcard-pipeline/internal/infra/adapter/persistence/sqlite"
	"flashcard-pipeline/internal/infra/annotator"
	"flashcard-pipeline/internal/infra/db"
	workerPkg "flashcard-pipeline/internal/infra/worker"
	"flashcard-pipeline/internal/observability/logging"
	"flashcard-pipeline/internal/repository"
	"flashcard-pipeline/internal/resilience/circuitbreaker"
	"flashcard-pipeline/internal/resilience/retry"
	"flashcard-pipeline/internal/usecase/orchestrate"
	"flashcard-pipeline/internal/usecase/pipeline"
	"flashcard-pipeline/pkg/ratelimit"
)

func main() {
	configPath := flag.String("config", os.Getenv("PIPELINE_CONFIG"), "path to the YAML configuration file")
	flag.Parse()

	logger := logging.NewLogger()
	slog.SetDefault(logger)

	workerMetrics := workerPkg.NewWorkerMetrics()
	workerConfig, err := workerPkg.LoadConfigFromEnv(logger, workerMetrics)
	if err != nil {
		logger.Error("failed to load worker configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker configuration loaded",
		slog.String("cron_schedule", workerConfig.CronSchedule),
		slog.String("timezone", workerConfig.Timezone),
		slog.Duration("reprocess_timeout", workerConfig.ReprocessTimeout),
		slog.Int("health_port", workerConfig.HealthPort))

	cfg, err := appconfig.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, dialect, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	if err := db.MigrateUp(database, dialect); err != nil {
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	svc, err := buildService(logger, cfg, database, dialect)
	if err != nil {
		logger.Error("failed to build pipeline service", slog.Any("error", err))
		os.Exit(1)
	}

	startMetricsServer(ctx, logger, cfg.MetricsPort)

	healthAddr := fmt.Sprintf(":%d", workerConfig.HealthPort)
	healthServer := workerPkg.NewHealthServer(healthAddr, logger)
	go func() {
		if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()

	if err := runScheduler(ctx, logger, svc, workerConfig, workerMetrics, healthServer); err != nil {
		logger.Error("scheduler failed", slog.Any("error", err))
		os.Exit(1)
	}
}

// buildService wires the pipeline service the reprocessing job drives. The
// wiring matches the pipeline binary so a replayed item goes through the
// same cache, limiter, and breaker as a first-pass item.
func buildService(logger *slog.Logger, cfg *appconfig.AppConfig, database *sql.DB, dialect db.Dialect) (*pipeline.Service, error) {
	querier := circuitbreaker.NewDBCircuitBreaker(database)

	var (
		cacheStore      repository.CacheStore
		resultStore     repository.ResultStore
		quarantineStore repository.QuarantineStore
	)
	if dialect == db.DialectPostgres {
		cacheStore = postgres.NewCacheRepo(querier)
		resultStore = postgres.NewResultRepo(querier)
		quarantineStore = postgres.NewQuarantineRepo(querier)
	} else {
		cacheStore = sqlite.NewCacheRepo(querier)
		resultStore = sqlite.NewResultRepo(querier)
		quarantineStore = sqlite.NewQuarantineRepo(querier)
	}

	cacheCfg, err := cfg.Cache.ToCache()
	if err != nil {
		return nil, err
	}
	cacheCfg.Logger = logger
	tiered, err := cache.New(cacheCfg, cacheStore)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}

	limCfg := cfg.RateLimit.ToLimiter()
	limCfg.Metrics = ratelimit.NewPrometheusMetrics(prometheus.DefaultRegisterer)
	limiter, err := ratelimit.New(limCfg)
	if err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	breaker, err := circuitbreaker.New(cfg.Breaker.ToBreaker("annotation"))
	if err != nil {
		return nil, fmt.Errorf("circuit breaker: %w", err)
	}

	policy, err := retry.NewPolicy(cfg.Retry.ToRetry())
	if err != nil {
		return nil, fmt.Errorf("retry policy: %w", err)
	}

	orch, err := orchestrate.New(cfg.Orchestrator.ToOrchestrator("annotation"), tiered, breaker, limiter, policy)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	var ann annotator.Annotator
	switch cfg.Provider {
	case "claude":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required when provider=claude")
		}
		ann = annotator.NewClaude(apiKey)
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when provider=openai")
		}
		ann = annotator.NewOpenAI(apiKey)
	case "noop":
		logger.Warn("using noop annotator; output is placeholder data")
		ann = annotator.NewNoOp()
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}

	return pipeline.NewService(orch, ann, resultStore, quarantineStore, cfg.ToPipeline())
}

// runScheduler runs the cron loop until the context is cancelled.
func runScheduler(ctx context.Context, logger *slog.Logger, svc *pipeline.Service, cfg *workerPkg.WorkerConfig, metrics *workerPkg.WorkerMetrics, healthServer *workerPkg.HealthServer) error {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("invalid timezone, using UTC",
			slog.String("timezone", cfg.Timezone),
			slog.Any("error", err))
		loc = time.UTC
	}

	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(cfg.CronSchedule, func() {
		runReprocessJob(ctx, logger, svc, cfg, metrics)
	}); err != nil {
		return fmt.Errorf("add cron job: %w", err)
	}
	c.Start()

	healthServer.SetReady(true)
	logger.Info("worker started",
		slog.String("schedule", cfg.CronSchedule),
		slog.String("timezone", cfg.Timezone))

	<-ctx.Done()
	healthServer.SetReady(false)

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(cfg.ReprocessTimeout):
		logger.Warn("timed out waiting for running job during shutdown")
	}
	logger.Info("worker stopped")
	return nil
}

// runReprocessJob executes one reprocessing pass with a timeout.
func runReprocessJob(ctx context.Context, logger *slog.Logger, svc *pipeline.Service, cfg *workerPkg.WorkerConfig, metrics *workerPkg.WorkerMetrics) {
	start := time.Now()
	logger.Info("quarantine reprocessing started")

	jobCtx, cancel := context.WithTimeout(ctx, cfg.ReprocessTimeout)
	defer cancel()

	stats, err := svc.ReprocessQuarantine(jobCtx)
	metrics.RecordRunDuration(time.Since(start).Seconds())
	if err != nil {
		logger.Error("quarantine reprocessing failed", slog.Any("error", err))
		metrics.RecordRun("failure")
		return
	}

	metrics.RecordRun("success")
	metrics.RecordRecovered(stats.Recovered)
	metrics.RecordLastSuccess()

	logger.Info("quarantine reprocessing finished",
		slog.Int("listed", stats.Listed),
		slog.Int64("recovered", stats.Recovered),
		slog.Int("remaining", stats.Remaining),
		slog.Duration("duration", stats.Duration))
}
