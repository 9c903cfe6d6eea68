package annotator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"flashcard-pipeline/internal/domain/entity"
)

// OpenAI implements Annotator using OpenAI's chat completion API.
type OpenAI struct {
	client          *openai.Client
	config          Config
	metricsRecorder AnnotationMetricsRecorder
}

// NewOpenAI creates an OpenAI annotator with the given API key.
func NewOpenAI(apiKey string) *OpenAI {
	config := LoadConfig(openai.GPT4oMini)

	slog.Info("Initialized OpenAI annotator",
		slog.String("model", config.Model),
		slog.Int("max_tokens", config.MaxTokens),
		slog.Duration("timeout", config.Timeout))

	return &OpenAI{
		client:          openai.NewClient(apiKey),
		config:          config,
		metricsRecorder: NewPrometheusAnnotationMetrics(),
	}
}

// Analyze implements Annotator.
func (o *OpenAI) Analyze(ctx context.Context, item entity.WorkItem) (*entity.Analysis, error) {
	raw, err := o.complete(ctx, stageAnalyze, item.ID(), buildAnalysisPrompt(item))
	if err != nil {
		return nil, err
	}

	analysis, err := entity.UnmarshalAnalysis([]byte(extractJSON(raw)))
	if err != nil {
		return nil, entity.NewPermanent(fmt.Errorf("openai analyze %s: %w", item.ID(), err))
	}
	return analysis, nil
}

// GenerateCard implements Annotator.
func (o *OpenAI) GenerateCard(ctx context.Context, item entity.WorkItem, analysis *entity.Analysis) (*entity.Flashcard, error) {
	raw, err := o.complete(ctx, stageGenerateCard, item.ID(), buildCardPrompt(item, analysis))
	if err != nil {
		return nil, err
	}

	card, err := entity.UnmarshalFlashcard([]byte(extractJSON(raw)))
	if err != nil {
		return nil, entity.NewPermanent(fmt.Errorf("openai generate card %s: %w", item.ID(), err))
	}
	return card, nil
}

// complete performs one chat completion call and returns the first choice.
func (o *OpenAI) complete(ctx context.Context, stage, itemID, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()

	requestID := uuid.New().String()
	slog.InfoContext(ctx, "Starting annotation call",
		slog.String("request_id", requestID),
		slog.String("stage", stage),
		slog.String("item", itemID))

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     o.config.Model,
		MaxTokens: o.config.MaxTokens,
		Messages: []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleUser,
			Content: prompt,
		}},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	duration := time.Since(start)
	o.metricsRecorder.RecordDuration(stage, duration)

	if err != nil {
		o.metricsRecorder.RecordFailure(stage)
		slog.ErrorContext(ctx, "Annotation call failed",
			slog.String("request_id", requestID),
			slog.String("stage", stage),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return "", classifyError(fmt.Errorf("openai api error: %w", err))
	}

	if len(resp.Choices) == 0 {
		o.metricsRecorder.RecordFailure(stage)
		return "", entity.NewTransient(fmt.Errorf("openai api returned empty response"))
	}

	o.metricsRecorder.RecordSuccess(stage)
	slog.InfoContext(ctx, "Annotation call completed",
		slog.String("request_id", requestID),
		slog.String("stage", stage),
		slog.Duration("duration", duration))

	return resp.Choices[0].Message.Content, nil
}
