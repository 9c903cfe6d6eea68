package entity

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"transient", NewTransient(base), ClassTransient},
		{"rate limited", NewRateLimited(base, time.Second), ClassRateLimited},
		{"unavailable", NewUnavailable(base), ClassUnavailable},
		{"permanent", NewPermanent(base), ClassPermanent},
		{"wrapped transient", fmt.Errorf("stage 1: %w", NewTransient(base)), ClassTransient},
		{"unclassified defaults to permanent", base, ClassPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetryAfterHint(t *testing.T) {
	err := NewRateLimited(errors.New("429"), 30*time.Second)
	if got := RetryAfterHint(err); got != 30*time.Second {
		t.Errorf("RetryAfterHint() = %v, want 30s", got)
	}
	if got := RetryAfterHint(errors.New("plain")); got != 0 {
		t.Errorf("RetryAfterHint() = %v, want 0", got)
	}
}

func TestClassifiedError_Unwrap(t *testing.T) {
	base := errors.New("boom")
	err := NewTransient(base)
	if !errors.Is(err, base) {
		t.Error("expected errors.Is to find the wrapped error")
	}
}

func TestRetriesExhaustedError(t *testing.T) {
	last := NewTransient(errors.New("timeout"))
	err := &RetriesExhaustedError{
		Attempts: []AttemptRecord{
			{Attempt: 0, Err: last},
			{Attempt: 1, Delay: time.Second, Err: last},
		},
		LastErr: last,
	}

	if !errors.Is(err, last) {
		t.Error("expected errors.Is to find the last causal error")
	}

	var exhausted *RetriesExhaustedError
	if !errors.As(fmt.Errorf("item failed: %w", err), &exhausted) {
		t.Fatal("expected errors.As to extract RetriesExhaustedError")
	}
	if len(exhausted.Attempts) != 2 {
		t.Errorf("expected 2 attempts in history, got %d", len(exhausted.Attempts))
	}
}

func TestNewWorkItem(t *testing.T) {
	item, err := NewWorkItem(1, "안녕하세요", "Interjection")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Type != "interjection" {
		t.Errorf("expected normalized type 'interjection', got %q", item.Type)
	}
	if item.ID() != "안녕하세요:interjection" {
		t.Errorf("unexpected id %q", item.ID())
	}

	if _, err := NewWorkItem(1, "  ", "noun"); err == nil {
		t.Error("expected error for empty term")
	}

	item, err = NewWorkItem(2, "가다", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Type != "unknown" {
		t.Errorf("expected fallback type 'unknown', got %q", item.Type)
	}
}
