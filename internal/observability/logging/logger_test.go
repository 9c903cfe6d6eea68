package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWithLoggerRoundTrip(t *testing.T) {
	base := slog.Default()
	ctx := WithLogger(context.Background(), base)

	if got := FromContext(ctx); got != base {
		t.Error("FromContext must return the logger stored with WithLogger")
	}
	if got := FromContext(context.Background()); got == nil {
		t.Error("FromContext without a stored logger must fall back to default")
	}
}

func TestWithItem(t *testing.T) {
	logger := WithItem(slog.Default(), "먹다:verb")
	if logger == nil {
		t.Fatal("WithItem returned nil")
	}
}
