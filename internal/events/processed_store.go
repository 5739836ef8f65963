package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProcessedStore records fulfillment events that were already handled, so
// redelivered messages can be skipped.
type ProcessedStore struct {
	pool rowQuerier
}

func NewProcessedStore(pool *pgxpool.Pool) *ProcessedStore {
	return &ProcessedStore{pool: pool}
}

func newProcessedStoreWithPool(pool rowQuerier) *ProcessedStore {
	return &ProcessedStore{pool: pool}
}

// AlreadyProcessed checks whether this event id has been seen for the source.
func (s *ProcessedStore) AlreadyProcessed(ctx context.Context, source, eventID string) (bool, error) {
	var exists int
	err := s.pool.QueryRow(ctx, `
		SELECT 1 FROM processed_events WHERE source = $1 AND event_id = $2
	`, source, eventID).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check processed event: %w", err)
	}
	return true, nil
}

// MarkProcessed inserts the event id, returning false if it already existed.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, source, eventID string) (bool, error) {
	ct, err := s.pool.Exec(ctx, `
		INSERT INTO processed_events (source, event_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, source, eventID)
	if err != nil {
		return false, fmt.Errorf("mark event processed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
