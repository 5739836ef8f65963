package events

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/hospital-booking/internal/metrics"
)

type publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// Relay drains the outbox to Kafka on a ticker. Rows stay pending until a
// publish succeeds, so delivery survives broker outages at the cost of
// possible duplicates downstream.
type Relay struct {
	store     *OutboxStore
	publisher publisher
	topic     string
	collector *metrics.Collector
	logger    zerolog.Logger
	batchSize int32
	interval  time.Duration
}

func NewRelay(store *OutboxStore, pub publisher, topic string, collector *metrics.Collector, logger zerolog.Logger) *Relay {
	return &Relay{
		store:     store,
		publisher: pub,
		topic:     topic,
		collector: collector,
		logger:    logger.With().Str("component", "outbox-relay").Logger(),
		batchSize: 50,
		interval:  2 * time.Second,
	}
}

func (r *Relay) WithBatchSize(size int32) *Relay {
	if size > 0 {
		r.batchSize = size
	}
	return r
}

func (r *Relay) WithInterval(interval time.Duration) *Relay {
	if interval > 0 {
		r.interval = interval
	}
	return r
}

// Start blocks until the context is cancelled.
func (r *Relay) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Drain(ctx)
		}
	}
}

// Drain relays one batch of pending entries.
func (r *Relay) Drain(ctx context.Context) {
	entries, err := r.store.FetchPending(ctx, r.batchSize)
	if err != nil {
		r.logger.Error().Err(err).Msg("outbox fetch failed")
		return
	}

	for _, entry := range entries {
		if err := r.publisher.Publish(ctx, r.topic, entry.ID.String(), entry.Payload); err != nil {
			r.collector.OutboxRelayed.WithLabelValues("error").Inc()
			r.logger.Error().
				Err(err).
				Str("event_id", entry.ID.String()).
				Str("event_type", entry.EventType).
				Msg("outbox publish failed")
			continue
		}

		ok, err := r.store.MarkDelivered(ctx, entry.ID)
		if err != nil {
			r.logger.Error().Err(err).Str("event_id", entry.ID.String()).Msg("failed to mark outbox delivered")
			continue
		}
		if ok {
			r.collector.OutboxRelayed.WithLabelValues("ok").Inc()
			r.logger.Debug().
				Str("event_id", entry.ID.String()).
				Str("event_type", entry.EventType).
				Msg("outbox entry delivered")
		}
	}
}
