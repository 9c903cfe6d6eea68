package postgres

import (
	"context"
	"fmt"

	"flashcard-pipeline/internal/domain/entity"
	"flashcard-pipeline/internal/repository"
)

type ResultRepo struct{ db repository.Querier }

func NewResultRepo(db repository.Querier) repository.ResultStore {
	return &ResultRepo{db: db}
}

func (repo *ResultRepo) SaveResult(ctx context.Context, item *entity.ProcessedItem) error {
	analysisJSON, err := item.Analysis.MarshalCanonical()
	if err != nil {
		return fmt.Errorf("SaveResult: %w", err)
	}

	const query = `
INSERT INTO flashcards
(item_id, term, type, front, back, tags, honorific, analysis, processed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (item_id) DO UPDATE SET
    front        = EXCLUDED.front,
    back         = EXCLUDED.back,
    tags         = EXCLUDED.tags,
    honorific    = EXCLUDED.honorific,
    analysis     = EXCLUDED.analysis,
    processed_at = EXCLUDED.processed_at`

	_, err = repo.db.ExecContext(ctx, query,
		item.Item.ID(), item.Item.Term, item.Item.Type,
		item.Flashcard.Front, item.Flashcard.Back,
		item.Flashcard.Tags, item.Flashcard.Honorific,
		analysisJSON, item.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("SaveResult: ExecContext: %w", err)
	}
	return nil
}

func (repo *ResultRepo) CountResults(ctx context.Context) (int64, error) {
	const query = `SELECT COUNT(*) FROM flashcards`
	var n int64
	if err := repo.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("CountResults: %w", err)
	}
	return n, nil
}
