package events

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
)

func newMockProcessed(t *testing.T) (*ProcessedStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return newProcessedStoreWithPool(mock), mock
}

func TestAlreadyProcessed(t *testing.T) {
	store, mock := newMockProcessed(t)

	mock.ExpectQuery("SELECT 1 FROM processed_events").
		WithArgs("fulfillment", "APPOINTMENT_COMPLETE:a-1").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))

	done, err := store.AlreadyProcessed(context.Background(), "fulfillment", "APPOINTMENT_COMPLETE:a-1")
	if err != nil {
		t.Fatalf("already processed: %v", err)
	}
	if !done {
		t.Fatal("expected seen=true")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAlreadyProcessedUnseen(t *testing.T) {
	store, mock := newMockProcessed(t)

	mock.ExpectQuery("SELECT 1 FROM processed_events").
		WithArgs("fulfillment", "APPOINTMENT_COMPLETE:a-2").
		WillReturnError(pgx.ErrNoRows)

	done, err := store.AlreadyProcessed(context.Background(), "fulfillment", "APPOINTMENT_COMPLETE:a-2")
	if err != nil {
		t.Fatalf("already processed: %v", err)
	}
	if done {
		t.Fatal("expected seen=false")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMarkProcessedFirstAndDuplicate(t *testing.T) {
	store, mock := newMockProcessed(t)

	mock.ExpectExec("INSERT INTO processed_events").
		WithArgs("fulfillment", "e-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO processed_events").
		WithArgs("fulfillment", "e-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	first, err := store.MarkProcessed(context.Background(), "fulfillment", "e-1")
	if err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	if !first {
		t.Fatal("expected first insert to report true")
	}

	second, err := store.MarkProcessed(context.Background(), "fulfillment", "e-1")
	if err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	if second {
		t.Fatal("expected duplicate insert to report false")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
