package annotator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"

	"flashcard-pipeline/internal/domain/entity"
)

// Claude implements Annotator using Anthropic's Claude API.
type Claude struct {
	client          anthropic.Client
	config          Config
	metricsRecorder AnnotationMetricsRecorder
}

// NewClaude creates a Claude annotator with the given API key.
func NewClaude(apiKey string) *Claude {
	config := LoadConfig("claude-sonnet-4-5-20250929")

	slog.Info("Initialized Claude annotator",
		slog.String("model", config.Model),
		slog.Int("max_tokens", config.MaxTokens),
		slog.Duration("timeout", config.Timeout))

	return &Claude{
		client:          anthropic.NewClient(option.WithAPIKey(apiKey)),
		config:          config,
		metricsRecorder: NewPrometheusAnnotationMetrics(),
	}
}

// Analyze implements Annotator.
func (c *Claude) Analyze(ctx context.Context, item entity.WorkItem) (*entity.Analysis, error) {
	raw, err := c.complete(ctx, stageAnalyze, item.ID(), buildAnalysisPrompt(item))
	if err != nil {
		return nil, err
	}

	analysis, err := entity.UnmarshalAnalysis([]byte(extractJSON(raw)))
	if err != nil {
		return nil, entity.NewPermanent(fmt.Errorf("claude analyze %s: %w", item.ID(), err))
	}
	return analysis, nil
}

// GenerateCard implements Annotator.
func (c *Claude) GenerateCard(ctx context.Context, item entity.WorkItem, analysis *entity.Analysis) (*entity.Flashcard, error) {
	raw, err := c.complete(ctx, stageGenerateCard, item.ID(), buildCardPrompt(item, analysis))
	if err != nil {
		return nil, err
	}

	card, err := entity.UnmarshalFlashcard([]byte(extractJSON(raw)))
	if err != nil {
		return nil, entity.NewPermanent(fmt.Errorf("claude generate card %s: %w", item.ID(), err))
	}
	return card, nil
}

// complete performs one Claude API call and returns the text of the first
// content block. All failures come back classified.
func (c *Claude) complete(ctx context.Context, stage, itemID, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	requestID := uuid.New().String()
	slog.InfoContext(ctx, "Starting annotation call",
		slog.String("request_id", requestID),
		slog.String("stage", stage),
		slog.String("item", itemID))

	start := time.Now()
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.config.Model),
		MaxTokens: int64(c.config.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(prompt),
			),
		},
	})
	duration := time.Since(start)
	c.metricsRecorder.RecordDuration(stage, duration)

	if err != nil {
		c.metricsRecorder.RecordFailure(stage)
		slog.ErrorContext(ctx, "Annotation call failed",
			slog.String("request_id", requestID),
			slog.String("stage", stage),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return "", classifyError(fmt.Errorf("claude api error: %w", err))
	}

	if len(message.Content) == 0 {
		c.metricsRecorder.RecordFailure(stage)
		return "", entity.NewTransient(fmt.Errorf("claude api returned empty response"))
	}

	textBlock, ok := message.Content[0].AsAny().(anthropic.TextBlock)
	if !ok {
		c.metricsRecorder.RecordFailure(stage)
		return "", entity.NewPermanent(fmt.Errorf("claude api returned unexpected response type"))
	}

	c.metricsRecorder.RecordSuccess(stage)
	slog.InfoContext(ctx, "Annotation call completed",
		slog.String("request_id", requestID),
		slog.String("stage", stage),
		slog.Duration("duration", duration))

	return textBlock.Text, nil
}
