package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/hackgods/hospital-booking/internal/metrics"
)

type fakePublisher struct {
	published []publishedMessage
	failOn    map[string]error
}

type publishedMessage struct {
	topic   string
	key     string
	payload []byte
}

func (f *fakePublisher) Publish(_ context.Context, topic, key string, payload []byte) error {
	if err, ok := f.failOn[key]; ok {
		return err
	}
	f.published = append(f.published, publishedMessage{topic: topic, key: key, payload: payload})
	return nil
}

func TestDrainPublishesAndSettles(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock pool: %v", err)
	}
	t.Cleanup(mock.Close)

	id := uuid.New()
	payload := []byte(`{"operation":"APPOINTMENT_BOOK","data":{}}`)
	mock.ExpectQuery("SELECT id, event_type, payload, created_at").
		WithArgs(int32(50)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "event_type", "payload", "created_at"}).
			AddRow(id, "APPOINTMENT_BOOK", payload, time.Now()))
	mock.ExpectExec("UPDATE outbox").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	pub := &fakePublisher{}
	collector := metrics.NewCollector(prometheus.NewRegistry())
	relay := NewRelay(newOutboxStoreWithPool(mock), pub, "user-events", collector, zerolog.Nop())

	relay.Drain(context.Background())

	if len(pub.published) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(pub.published))
	}
	msg := pub.published[0]
	if msg.topic != "user-events" || msg.key != id.String() {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDrainKeepsRowOnPublishFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock pool: %v", err)
	}
	t.Cleanup(mock.Close)

	id := uuid.New()
	mock.ExpectQuery("SELECT id, event_type, payload, created_at").
		WithArgs(int32(50)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "event_type", "payload", "created_at"}).
			AddRow(id, "APPOINTMENT_BOOK", []byte(`{}`), time.Now()))
	// No UPDATE expected: the row stays pending for the next pass.

	pub := &fakePublisher{failOn: map[string]error{id.String(): errors.New("broker down")}}
	collector := metrics.NewCollector(prometheus.NewRegistry())
	relay := NewRelay(newOutboxStoreWithPool(mock), pub, "user-events", collector, zerolog.Nop())

	relay.Drain(context.Background())

	if len(pub.published) != 0 {
		t.Fatalf("expected no successful publishes, got %d", len(pub.published))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRelayBatchSizeOption(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock pool: %v", err)
	}
	t.Cleanup(mock.Close)

	mock.ExpectQuery("SELECT id, event_type, payload, created_at").
		WithArgs(int32(5)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "event_type", "payload", "created_at"}))

	collector := metrics.NewCollector(prometheus.NewRegistry())
	relay := NewRelay(newOutboxStoreWithPool(mock), &fakePublisher{}, "user-events", collector, zerolog.Nop()).
		WithBatchSize(5)

	relay.Drain(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
