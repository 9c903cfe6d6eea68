package db

import (
	"database/sql"
	"fmt"
)

// MigrateUp creates the pipeline schema if it does not exist. Statements are
// dialect specific only where the type systems differ.
func MigrateUp(db *sql.DB, dialect Dialect) error {
	for _, stmt := range schemaStatements(dialect) {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
	}
	return nil
}

// MigrateDown drops the pipeline tables. Use with caution: this deletes all
// cached annotations, flashcards, and quarantine entries.
func MigrateDown(db *sql.DB) error {
	drops := []string{
		`DROP TABLE IF EXISTS quarantine`,
		`DROP TABLE IF EXISTS flashcards`,
		`DROP TABLE IF EXISTS cache_entries`,
	}
	for _, stmt := range drops {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
	}
	return nil
}

func schemaStatements(dialect Dialect) []string {
	blob := "BLOB"
	timestamp := "TIMESTAMP"
	if dialect == DialectPostgres {
		blob = "BYTEA"
		timestamp = "TIMESTAMPTZ"
	}

	return []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS cache_entries (
    key        TEXT PRIMARY KEY,
    value      %s NOT NULL,
    compressed BOOLEAN NOT NULL DEFAULT FALSE,
    created_at %s NOT NULL
)`, blob, timestamp),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS flashcards (
    item_id      TEXT PRIMARY KEY,
    term         TEXT NOT NULL,
    type         TEXT NOT NULL,
    front        TEXT NOT NULL,
    back         TEXT NOT NULL,
    tags         TEXT NOT NULL DEFAULT '',
    honorific    TEXT NOT NULL DEFAULT '',
    analysis     %s NOT NULL,
    processed_at %s NOT NULL
)`, blob, timestamp),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS quarantine (
    item_id         TEXT PRIMARY KEY,
    term            TEXT NOT NULL,
    type            TEXT NOT NULL,
    last_error      TEXT NOT NULL,
    attempt_history %s NOT NULL,
    attempts        INTEGER NOT NULL,
    quarantined_at  %s NOT NULL
)`, blob, timestamp),
		`CREATE INDEX IF NOT EXISTS idx_flashcards_term ON flashcards(term)`,
		`CREATE INDEX IF NOT EXISTS idx_quarantine_quarantined_at ON quarantine(quarantined_at)`,
	}
}
