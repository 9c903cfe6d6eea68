package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"flashcard-pipeline/internal/repository"
)

type QuarantineRepo struct{ db repository.Querier }

func NewQuarantineRepo(db repository.Querier) repository.QuarantineStore {
	return &QuarantineRepo{db: db}
}

func (repo *QuarantineRepo) Record(ctx context.Context, rec *repository.QuarantineRecord) error {
	history, err := json.Marshal(rec.AttemptHistory)
	if err != nil {
		return fmt.Errorf("Record: marshal history: %w", err)
	}

	const query = `
INSERT INTO quarantine
(item_id, term, type, last_error, attempt_history, attempts, quarantined_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (item_id) DO UPDATE SET
    last_error      = EXCLUDED.last_error,
    attempt_history = EXCLUDED.attempt_history,
    attempts        = EXCLUDED.attempts,
    quarantined_at  = EXCLUDED.quarantined_at`

	_, err = repo.db.ExecContext(ctx, query,
		rec.ItemID, rec.Term, rec.Type,
		rec.LastError, history, rec.Attempts, rec.QuarantinedAt,
	)
	if err != nil {
		return fmt.Errorf("Record: ExecContext: %w", err)
	}
	return nil
}

func (repo *QuarantineRepo) List(ctx context.Context) ([]*repository.QuarantineRecord, error) {
	const query = `
SELECT item_id, term, type, last_error, attempt_history, attempts, quarantined_at
FROM quarantine
ORDER BY quarantined_at ASC`

	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("List: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]*repository.QuarantineRecord, 0, 16)
	for rows.Next() {
		var rec repository.QuarantineRecord
		var history []byte
		if err := rows.Scan(&rec.ItemID, &rec.Term, &rec.Type,
			&rec.LastError, &history, &rec.Attempts, &rec.QuarantinedAt); err != nil {
			return nil, fmt.Errorf("List: Scan: %w", err)
		}
		if err := json.Unmarshal(history, &rec.AttemptHistory); err != nil {
			return nil, fmt.Errorf("List: unmarshal history for %s: %w", rec.ItemID, err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List: rows.Err: %w", err)
	}
	return records, nil
}

func (repo *QuarantineRepo) Delete(ctx context.Context, itemID string) error {
	const query = `DELETE FROM quarantine WHERE item_id = $1`

	res, err := repo.db.ExecContext(ctx, query, itemID)
	if err != nil {
		return fmt.Errorf("Delete: ExecContext: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Delete: RowsAffected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("Delete: no rows affected")
	}
	return nil
}
