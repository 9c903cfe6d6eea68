// Package entity defines the core domain types for the flashcard pipeline.
// It includes work items, annotation results, and the error taxonomy shared
// by the orchestration and pipeline layers.
package entity

import (
	"fmt"
	"strings"
	"time"
)

// WorkItem identifies one unit of vocabulary input flowing through the pipeline.
// It is immutable once created: the pipeline reads it but never mutates it.
type WorkItem struct {
	// Position is the 1-based position of the item within its batch.
	Position int

	// Term is the vocabulary term to annotate (e.g. "안녕하세요").
	Term string

	// Type is the grammatical type of the term (e.g. "noun", "verb", "interjection").
	// Unknown types are normalized to "unknown".
	Type string
}

// NewWorkItem creates a validated WorkItem. The term must be non-empty;
// a missing type falls back to "unknown".
func NewWorkItem(position int, term, itemType string) (WorkItem, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return WorkItem{}, &ValidationError{Field: "term", Message: "must not be empty"}
	}

	itemType = strings.TrimSpace(strings.ToLower(itemType))
	if itemType == "" {
		itemType = "unknown"
	}

	return WorkItem{
		Position: position,
		Term:     term,
		Type:     itemType,
	}, nil
}

// ID returns a stable identifier for the item, independent of batch position.
func (w WorkItem) ID() string {
	return fmt.Sprintf("%s:%s", w.Term, w.Type)
}

// String returns a human-readable representation for logging.
func (w WorkItem) String() string {
	return fmt.Sprintf("WorkItem{#%d %s (%s)}", w.Position, w.Term, w.Type)
}

// AttemptRecord captures one orchestrated call attempt against the external API.
// Records exist only for the duration of a single orchestrated call and are
// carried into RetriesExhaustedError and quarantine entries for diagnostics.
type AttemptRecord struct {
	// Attempt is the 0-based attempt index.
	Attempt int

	// Delay is the backoff delay that was applied before this attempt.
	Delay time.Duration

	// Err is the classified error that caused the attempt to fail, nil on success.
	Err error
}

// String returns a compact representation suitable for quarantine storage.
func (a AttemptRecord) String() string {
	if a.Err == nil {
		return fmt.Sprintf("attempt %d: ok (after %s)", a.Attempt, a.Delay)
	}
	return fmt.Sprintf("attempt %d: %v (after %s)", a.Attempt, a.Err, a.Delay)
}
