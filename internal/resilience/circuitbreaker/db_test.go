package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sony/gobreaker"
)

func TestDBCircuitBreaker_QueryContext(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT value FROM cache_entries").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte("cached")))

	dcb := NewDBCircuitBreaker(db)

	rows, err := dcb.QueryContext(context.Background(), "SELECT value FROM cache_entries WHERE key = $1", "k")
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	defer func() { _ = rows.Close() }()

	if dcb.State() != gobreaker.StateClosed {
		t.Errorf("expected closed state after success, got %v", dcb.State())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDBCircuitBreaker_TripsOnConsecutiveFailures(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	queryErr := errors.New("connection refused")
	for i := 0; i < 5; i++ {
		mock.ExpectExec("INSERT INTO cache_entries").WillReturnError(queryErr)
	}

	cfg := DBConfig{
		Name:             "test-db",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 1.0,
		MinRequests:      5,
	}
	dcb := NewDBCircuitBreakerWithConfig(db, cfg)

	for i := 0; i < 5; i++ {
		if _, err := dcb.ExecContext(context.Background(), "INSERT INTO cache_entries VALUES ($1)", i); err == nil {
			t.Fatalf("exec %d: expected error", i)
		}
	}

	if !dcb.IsOpen() {
		t.Fatalf("expected open circuit after 5 consecutive failures, got %v", dcb.State())
	}

	// Open circuit rejects without reaching the database.
	if _, err := dcb.ExecContext(context.Background(), "INSERT INTO cache_entries VALUES (99)"); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected ErrOpenState, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
