// Package annotator provides the AI annotation backends for the two-stage
// flashcard pipeline: semantic analysis of a vocabulary term, then card
// generation from that analysis. Adapters exist for Claude (Anthropic) and
// OpenAI with structured logging and Prometheus metrics.
//
// Annotator implementations perform exactly one API call per method. Retry,
// circuit breaking, and rate limiting are applied by the orchestration layer
// around these calls, so errors returned here carry a classification (see
// entity.ClassifiedError) and nothing else.
package annotator

import (
	"context"

	"flashcard-pipeline/internal/domain/entity"
)

// Annotator is the two-stage annotation contract.
type Annotator interface {
	// Analyze performs stage 1: semantic analysis of the vocabulary term.
	Analyze(ctx context.Context, item entity.WorkItem) (*entity.Analysis, error)

	// GenerateCard performs stage 2: flashcard generation from the item and
	// its stage-1 analysis.
	GenerateCard(ctx context.Context, item entity.WorkItem, analysis *entity.Analysis) (*entity.Flashcard, error)
}

// Stage labels used in logs and metrics.
const (
	stageAnalyze      = "analyze"
	stageGenerateCard = "generate_card"
)
