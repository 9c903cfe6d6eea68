// Package pipeline drives the two-stage annotation of vocabulary batches:
// semantic analysis, then card generation, with results persisted and
// exhausted items routed to quarantine instead of aborting the batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"flashcard-pipeline/internal/cache"
	"flashcard-pipeline/internal/domain/entity"
	"flashcard-pipeline/internal/infra/annotator"
	"flashcard-pipeline/internal/observability/logging"
	"flashcard-pipeline/internal/observability/metrics"
	"flashcard-pipeline/internal/repository"
	"flashcard-pipeline/internal/usecase/orchestrate"
)

const defaultParallelism = 5

// Runner executes one orchestrated, cached call. Satisfied by
// orchestrate.Orchestrator; an interface here keeps the service testable.
type Runner interface {
	Do(ctx context.Context, key cache.Key, limitKey string, call orchestrate.CallFunc) ([]byte, bool, error)
}

// Config holds pipeline service settings.
type Config struct {
	// Parallelism is the maximum number of items processed concurrently.
	Parallelism int
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Parallelism < 1 {
		return fmt.Errorf("Parallelism must be >= 1, got %d", c.Parallelism)
	}
	return nil
}

// DefaultConfig returns production pipeline settings.
func DefaultConfig() Config {
	return Config{Parallelism: defaultParallelism}
}

// Service provides the batch annotation use case.
type Service struct {
	Orchestrator Runner
	Annotator    annotator.Annotator
	Results      repository.ResultStore
	Quarantine   repository.QuarantineStore

	cfg Config
}

// NewService creates a pipeline service with the provided dependencies.
func NewService(runner Runner, ann annotator.Annotator, results repository.ResultStore, quarantine repository.QuarantineStore, cfg Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline config: %w", err)
	}
	return &Service{
		Orchestrator: runner,
		Annotator:    ann,
		Results:      results,
		Quarantine:   quarantine,
		cfg:          cfg,
	}, nil
}

// BatchStats contains statistics about one batch run.
type BatchStats struct {
	Items       int
	Succeeded   int64
	Quarantined int64
	CachedHits  int64 // annotation stages served from cache
	Duration    time.Duration
}

// ProcessBatch annotates all items concurrently, bounded by the configured
// parallelism. Per-item terminal failures are quarantined and the batch
// continues; only persistence failures and context cancellation abort it.
func (s *Service) ProcessBatch(ctx context.Context, items []entity.WorkItem) (*BatchStats, error) {
	logger := slog.Default()
	start := time.Now()
	stats := &BatchStats{Items: len(items)}

	sem := make(chan struct{}, s.cfg.Parallelism)
	eg, egCtx := errgroup.WithContext(ctx)

	for _, workItem := range items {
		item := workItem
		eg.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()
			return s.processItem(egCtx, item, stats)
		})
	}

	if err := eg.Wait(); err != nil {
		return stats, err
	}

	stats.Duration = time.Since(start)
	metrics.RecordBatchDuration(stats.Duration)
	if n, err := s.Results.CountResults(ctx); err == nil {
		metrics.UpdateFlashcardsTotal(n)
	}

	logger.Info("batch completed",
		slog.Int("items", stats.Items),
		slog.Int64("succeeded", atomic.LoadInt64(&stats.Succeeded)),
		slog.Int64("quarantined", atomic.LoadInt64(&stats.Quarantined)),
		slog.Int64("cached_hits", atomic.LoadInt64(&stats.CachedHits)),
		slog.Duration("duration", stats.Duration),
	)

	return stats, nil
}

// processItem runs both annotation stages for one item. Terminal annotation
// failures quarantine the item and return nil so the batch continues.
func (s *Service) processItem(ctx context.Context, item entity.WorkItem, stats *BatchStats) error {
	analysis, cached, err := s.analyze(ctx, item)
	if err != nil {
		return s.handleItemFailure(ctx, item, err, stats)
	}
	if cached {
		atomic.AddInt64(&stats.CachedHits, 1)
	}

	card, cached, err := s.generateCard(ctx, item, analysis)
	if err != nil {
		return s.handleItemFailure(ctx, item, err, stats)
	}
	if cached {
		atomic.AddInt64(&stats.CachedHits, 1)
	}

	processed := &entity.ProcessedItem{
		Item:        item,
		Analysis:    analysis,
		Flashcard:   card,
		ProcessedAt: time.Now(),
	}
	if err := s.Results.SaveResult(ctx, processed); err != nil {
		metrics.RecordItemProcessed("failed")
		return fmt.Errorf("save result for %s: %w", item.ID(), err)
	}

	atomic.AddInt64(&stats.Succeeded, 1)
	metrics.RecordItemProcessed("success")
	return nil
}

// analyze runs stage 1 through the orchestrator and decodes the cached or
// fresh canonical bytes.
func (s *Service) analyze(ctx context.Context, item entity.WorkItem) (*entity.Analysis, bool, error) {
	start := time.Now()
	raw, cached, err := s.Orchestrator.Do(ctx, cache.AnalysisKey(item), item.ID(), func(ctx context.Context) ([]byte, error) {
		analysis, err := s.Annotator.Analyze(ctx, item)
		if err != nil {
			return nil, err
		}
		return analysis.MarshalCanonical()
	})
	metrics.RecordStageDuration("analyze", time.Since(start))
	if err != nil {
		return nil, false, err
	}

	analysis, err := entity.UnmarshalAnalysis(raw)
	if err != nil {
		return nil, false, fmt.Errorf("decode analysis for %s: %w", item.ID(), err)
	}
	return analysis, cached, nil
}

// generateCard runs stage 2. The cache key covers the stage-1 output, so a
// changed analysis invalidates the card automatically.
func (s *Service) generateCard(ctx context.Context, item entity.WorkItem, analysis *entity.Analysis) (*entity.Flashcard, bool, error) {
	key, err := cache.CardKey(item, analysis)
	if err != nil {
		return nil, false, err
	}

	start := time.Now()
	raw, cached, err := s.Orchestrator.Do(ctx, key, item.ID(), func(ctx context.Context) ([]byte, error) {
		card, err := s.Annotator.GenerateCard(ctx, item, analysis)
		if err != nil {
			return nil, err
		}
		return card.MarshalCanonical()
	})
	metrics.RecordStageDuration("generate_card", time.Since(start))
	if err != nil {
		return nil, false, err
	}

	card, err := entity.UnmarshalFlashcard(raw)
	if err != nil {
		return nil, false, fmt.Errorf("decode flashcard for %s: %w", item.ID(), err)
	}
	return card, cached, nil
}

// handleItemFailure quarantines a terminally failed item. Context
// cancellation propagates and aborts the batch; everything else is recorded
// and skipped.
func (s *Service) handleItemFailure(ctx context.Context, item entity.WorkItem, failure error, stats *BatchStats) error {
	if errors.Is(failure, context.Canceled) || errors.Is(failure, context.DeadlineExceeded) {
		return failure
	}

	rec := buildQuarantineRecord(item, failure, time.Now())
	// Quarantine writes survive batch cancellation.
	safeCtx := context.WithoutCancel(ctx)
	if err := s.Quarantine.Record(safeCtx, rec); err != nil {
		metrics.RecordItemProcessed("failed")
		return fmt.Errorf("quarantine %s: %w", item.ID(), err)
	}

	atomic.AddInt64(&stats.Quarantined, 1)
	metrics.RecordItemProcessed("quarantined")
	logging.WithItem(slog.Default(), item.ID()).Warn("item quarantined",
		slog.Int("attempts", rec.Attempts),
		slog.String("error", rec.LastError))
	return nil
}

// buildQuarantineRecord converts a terminal failure into a quarantine entry,
// preserving the per-attempt history when the error carries one.
func buildQuarantineRecord(item entity.WorkItem, failure error, now time.Time) *repository.QuarantineRecord {
	rec := &repository.QuarantineRecord{
		ItemID:        item.ID(),
		Term:          item.Term,
		Type:          item.Type,
		LastError:     failure.Error(),
		Attempts:      1,
		QuarantinedAt: now,
	}

	var exhausted *entity.RetriesExhaustedError
	if errors.As(failure, &exhausted) {
		rec.Attempts = len(exhausted.Attempts)
		rec.LastError = exhausted.LastErr.Error()
		rec.AttemptHistory = make([]string, 0, len(exhausted.Attempts))
		for _, a := range exhausted.Attempts {
			rec.AttemptHistory = append(rec.AttemptHistory, a.String())
		}
	}
	return rec
}

// ReprocessStats contains statistics about one quarantine reprocessing run.
type ReprocessStats struct {
	Listed    int
	Recovered int64
	Remaining int
	Duration  time.Duration
}

// ReprocessQuarantine retries every quarantined item through the normal
// pipeline. Recovered items leave quarantine; items that fail again keep
// their entry (updated with the fresh attempt history).
func (s *Service) ReprocessQuarantine(ctx context.Context) (*ReprocessStats, error) {
	start := time.Now()

	records, err := s.Quarantine.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list quarantine: %w", err)
	}
	stats := &ReprocessStats{Listed: len(records)}

	for position, rec := range records {
		item, err := entity.NewWorkItem(position+1, rec.Term, rec.Type)
		if err != nil {
			slog.Warn("skipping malformed quarantine entry",
				slog.String("item", rec.ItemID),
				slog.Any("error", err))
			continue
		}

		batch := &BatchStats{Items: 1}
		if err := s.processItem(ctx, item, batch); err != nil {
			return stats, err
		}
		if atomic.LoadInt64(&batch.Succeeded) == 1 {
			if err := s.Quarantine.Delete(ctx, rec.ItemID); err != nil {
				return stats, fmt.Errorf("release %s from quarantine: %w", rec.ItemID, err)
			}
			stats.Recovered++
		}
	}

	remaining, err := s.Quarantine.List(ctx)
	if err == nil {
		stats.Remaining = len(remaining)
		metrics.UpdateQuarantineSize(stats.Remaining)
	}

	stats.Duration = time.Since(start)
	slog.Info("quarantine reprocessing completed",
		slog.Int("listed", stats.Listed),
		slog.Int64("recovered", stats.Recovered),
		slog.Int("remaining", stats.Remaining),
		slog.Duration("duration", stats.Duration))

	return stats, nil
}
