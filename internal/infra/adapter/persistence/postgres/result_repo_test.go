package postgres_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"flashcard-pipeline/internal/domain/entity"
	"flashcard-pipeline/internal/infra/adapter/persistence/postgres"
)

func TestResultRepo_SaveResult(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	item, err := entity.NewWorkItem(1, "먹다", "verb")
	if err != nil {
		t.Fatal(err)
	}
	analysis := &entity.Analysis{
		Term: "먹다", Type: "verb", PartOfSpeech: "verb",
		Romanization: "meokda", Definitions: []string{"to eat"},
	}
	analysisJSON, err := analysis.MarshalCanonical()
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO flashcards`)).
		WithArgs("먹다:verb", "먹다", "verb",
			"먹다 (verb)", "to eat", "food,verbs", "",
			analysisJSON, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	repo := postgres.NewResultRepo(db)
	err = repo.SaveResult(context.Background(), &entity.ProcessedItem{
		Item:     item,
		Analysis: analysis,
		Flashcard: &entity.Flashcard{
			Term: "먹다", Type: "verb",
			Front: "먹다 (verb)", Back: "to eat", Tags: "food,verbs",
		},
		ProcessedAt: now,
	})
	if err != nil {
		t.Fatalf("SaveResult err=%v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestResultRepo_CountResults(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM flashcards`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	repo := postgres.NewResultRepo(db)
	n, err := repo.CountResults(context.Background())
	if err != nil {
		t.Fatalf("CountResults err=%v", err)
	}
	if n != 42 {
		t.Fatalf("CountResults=%d, want 42", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
