package annotator

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"

	"flashcard-pipeline/internal/domain/entity"
)

// classifyError maps a raw API call error onto the pipeline's error
// taxonomy. The orchestration layer keys retry and circuit-breaker decisions
// off the resulting class, so every error leaving an annotator passes
// through here.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	// Caller cancellation is not retryable; a per-call deadline is.
	if errors.Is(err, context.Canceled) {
		return entity.NewPermanent(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return entity.NewTransient(err)
	}

	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return classifyStatus(err, anthropicErr.StatusCode, retryAfterHeader(anthropicErr.Response))
	}

	var openaiErr *openai.APIError
	if errors.As(err, &openaiErr) {
		return classifyStatus(err, openaiErr.HTTPStatusCode, 0)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return entity.NewTransient(err)
		}
		return entity.NewUnavailable(err)
	}

	// Unknown errors are terminal: retrying an unclassified failure risks
	// hammering a broken dependency.
	return entity.NewPermanent(err)
}

// classifyStatus maps an HTTP status code to an error class.
func classifyStatus(err error, status int, retryAfter time.Duration) error {
	switch {
	case status == http.StatusTooManyRequests:
		return entity.NewRateLimited(err, retryAfter)
	case status == http.StatusServiceUnavailable || status == 529:
		// 529 is Anthropic's overloaded_error.
		return entity.NewUnavailable(err)
	case status >= 500:
		return entity.NewTransient(err)
	case status == http.StatusRequestTimeout:
		return entity.NewTransient(err)
	case status >= 400:
		return entity.NewPermanent(err)
	default:
		return entity.NewPermanent(err)
	}
}

// retryAfterHeader extracts the Retry-After hint from a 429 response.
// Both delta-seconds and HTTP-date forms are accepted; zero means no hint.
func retryAfterHeader(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	value := resp.Header.Get("Retry-After")
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
