// Command pipeline annotates a CSV vocabulary batch through the two-stage
// AI pipeline and persists the resulting flashcards.
//
// Usage:
//
//	pipeline -input vocab.csv [-config pipeline.yaml]
//
// The database DSN, annotation provider, and API keys come from the
// configuration file and environment (see internal/config).
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"flashcard-pipeline/internal/cache"
	appconfig "flashcard-pipeline/internal/config"
	"flashcard-pipeline/internal/infra/annotator"
	"flashcard-pipeline/internal/infra/db"
	"flashcard-pipeline/internal/infra/ingest"
	"flashcard-pipeline/internal/observability/logging"
	"flashcard-pipeline/internal/observability/metrics"
	"flashcard-pipeline/internal/resilience/circuitbreaker"
	"flashcard-pipeline/internal/resilience/retry"
	"flashcard-pipeline/internal/usecase/orchestrate"
	"flashcard-pipeline/internal/usecase/pipeline"
	"flashcard-pipeline/pkg/ratelimit"
)

func main() {
	inputPath := flag.String("input", "", "path to the vocabulary CSV file")
	configPath := flag.String("config", os.Getenv("PIPELINE_CONFIG"), "path to the YAML configuration file")
	flag.Parse()

	logger := logging.NewLogger()
	if os.Getenv("LOG_FORMAT") == "text" {
		logger = logging.NewTextLogger()
	}
	slog.SetDefault(logger)

	if *inputPath == "" {
		logger.Error("missing required -input flag")
		flag.Usage()
		os.Exit(2)
	}

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

	svc, breaker, err := buildPipeline(logger, cfg, database, dialect)
	if err != nil {
		logger.Error("failed to build pipeline", slog.Any("error", err))
		os.Exit(1)
	}

	startMetricsServer(ctx, logger, cfg.MetricsPort)

	items, err := ingest.ReadFile(*inputPath)
	if err != nil {
		logger.Error("failed to read input batch", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("batch loaded",
		slog.String("input", *inputPath),
		slog.Int("items", len(items)),
		slog.String("provider", cfg.Provider))

	stats, err := svc.ProcessBatch(ctx, items)
	metrics.UpdateBreakerState("annotation", breaker.State().String())
	if err != nil {
		logger.Error("batch failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("pipeline finished",
		slog.Int("items", stats.Items),
		slog.Int64("succeeded", stats.Succeeded),
		slog.Int64("quarantined", stats.Quarantined),
		slog.Int64("cached_hits", stats.CachedHits),
		slog.Duration("duration", stats.Duration))

	if stats.Quarantined > 0 {
		logger.Warn("some items were quarantined; run the worker or reprocess manually",
			slog.Int64("quarantined", stats.Quarantined))
	}
}

// buildPipeline wires the cache, resilience stack, annotator, and stores into
// a ready pipeline service. The annotation breaker is returned separately so
// main can export its terminal state.
func buildPipeline(logger *slog.Logger, cfg *appconfig.AppConfig, database *sql.DB, dialect db.Dialect) (*pipeline.Service, *circuitbreaker.Breaker, error) {
	// Store reads and writes run behind their own breaker so a dead database
	// degrades to cache misses instead of hanging every item.
	querier := circuitbreaker.NewDBCircuitBreaker(database)
	stores := newStores(querier, dialect)

	cacheCfg, err := cfg.Cache.ToCache()
	if err != nil {
		return nil, nil, err
	}
	cacheCfg.Logger = logger
	tiered, err := cache.New(cacheCfg, stores.cache)
	if err != nil {
		return nil, nil, fmt.Errorf("cache: %w", err)
	}

	limCfg := cfg.RateLimit.ToLimiter()
	limCfg.Metrics = ratelimit.NewPrometheusMetrics(prometheus.DefaultRegisterer)
	limiter, err := ratelimit.New(limCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("rate limiter: %w", err)
	}

	breaker, err := circuitbreaker.New(cfg.Breaker.ToBreaker("annotation"))
	if err != nil {
		return nil, nil, fmt.Errorf("circuit breaker: %w", err)
	}

	policy, err := retry.NewPolicy(cfg.Retry.ToRetry())
	if err != nil {
		return nil, nil, fmt.Errorf("retry policy: %w", err)
	}

	orch, err := orchestrate.New(cfg.Orchestrator.ToOrchestrator("annotation"), tiered, breaker, limiter, policy)
	if err != nil {
		return nil, nil, fmt.Errorf("orchestrator: %w", err)
	}

	ann, err := buildAnnotator(logger, cfg.Provider)
	if err != nil {
		return nil, nil, err
	}

	svc, err := pipeline.NewService(orch, ann, stores.results, stores.quarantine, cfg.ToPipeline())
	if err != nil {
		return nil, nil, err
	}
	return svc, breaker, nil
}

// buildAnnotator selects the annotation backend and checks its API key.
func buildAnnotator(logger *slog.Logger, provider string) (annotator.Annotator, error) {
	switch provider {
	case "claude":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required when provider=claude")
		}
		logger.Info("using Claude for annotation")
		return annotator.NewClaude(apiKey), nil
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when provider=openai")
		}
		logger.Info("using OpenAI for annotation")
		return annotator.NewOpenAI(apiKey), nil
	case "noop":
		logger.Warn("using noop annotator; output is placeholder data")
		return annotator.NewNoOp(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}
