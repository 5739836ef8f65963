package events

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
)

func newMockOutbox(t *testing.T) (*OutboxStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return newOutboxStoreWithPool(mock), mock
}

func TestFetchPendingReturnsUndelivered(t *testing.T) {
	store, mock := newMockOutbox(t)

	id := uuid.New()
	created := time.Now()
	mock.ExpectQuery("SELECT id, event_type, payload, created_at").
		WithArgs(int32(10)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "event_type", "payload", "created_at"}).
			AddRow(id, "APPOINTMENT_BOOK", []byte(`{"operation":"APPOINTMENT_BOOK"}`), created))

	entries, err := store.FetchPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("fetch pending: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].ID != id || entries[0].EventType != "APPOINTMENT_BOOK" {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMarkDelivered(t *testing.T) {
	store, mock := newMockOutbox(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE outbox").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := store.MarkDelivered(context.Background(), id)
	if err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	if !ok {
		t.Fatal("expected row to settle")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMarkDeliveredIdempotent(t *testing.T) {
	store, mock := newMockOutbox(t)
	id := uuid.New()

	// Row already settled by a previous pass.
	mock.ExpectExec("UPDATE outbox").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := store.MarkDelivered(context.Background(), id)
	if err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	if ok {
		t.Fatal("expected no-op for already delivered row")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
