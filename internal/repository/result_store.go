package repository

import (
	"context"
	"time"

	"flashcard-pipeline/internal/domain/entity"
)

// ResultStore persists fully annotated flashcards.
type ResultStore interface {
	// SaveResult stores the final two-stage outcome for a work item.
	// Saving the same item twice replaces the previous row.
	SaveResult(ctx context.Context, item *entity.ProcessedItem) error

	// CountResults returns the number of stored flashcards.
	CountResults(ctx context.Context) (int64, error)
}

// QuarantineRecord holds a work item whose retries were exhausted, with
// enough detail to support manual reprocessing without redoing cached work.
type QuarantineRecord struct {
	// ItemID is the stable work item identifier ("term:type").
	ItemID string

	// Term and Type reconstruct the WorkItem for reprocessing.
	Term string
	Type string

	// LastError is the terminal error message.
	LastError string

	// AttemptHistory is the per-attempt record, one line per attempt.
	AttemptHistory []string

	// Attempts is the number of call attempts made before quarantine.
	Attempts int

	// QuarantinedAt is when the item was quarantined.
	QuarantinedAt time.Time
}

// QuarantineStore routes exhausted work items to a holding area for later
// reprocessing instead of aborting the batch.
type QuarantineStore interface {
	// Record stores or replaces the quarantine entry for rec.ItemID.
	Record(ctx context.Context, rec *QuarantineRecord) error

	// List returns all quarantined items, oldest first.
	List(ctx context.Context) ([]*QuarantineRecord, error)

	// Delete removes a quarantine entry after successful reprocessing.
	Delete(ctx context.Context, itemID string) error
}
