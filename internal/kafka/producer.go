package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// Publisher is what the outbox relay needs from the transport.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// Producer publishes envelopes through a sarama sync producer. A circuit
// breaker keeps a dead broker from stalling every relay tick on full
// publish timeouts.
type Producer struct {
	producer sarama.SyncProducer
	breaker  *gobreaker.CircuitBreaker[any]
	logger   zerolog.Logger
}

func NewProducer(brokers []string, logger zerolog.Logger) (*Producer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	cfg.Producer.Timeout = 5 * time.Second

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    "kafka-publish",
		Timeout: 15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("publish breaker state changed")
		},
	})

	return &Producer{
		producer: producer,
		breaker:  breaker,
		logger:   logger.With().Str("component", "kafka-producer").Logger(),
	}, nil
}

func (p *Producer) Publish(_ context.Context, topic, key string, payload []byte) error {
	_, err := p.breaker.Execute(func() (any, error) {
		partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
			Topic: topic,
			Key:   sarama.StringEncoder(key),
			Value: sarama.ByteEncoder(payload),
		})
		if err != nil {
			return nil, err
		}
		p.logger.Debug().
			Str("topic", topic).
			Int32("partition", partition).
			Int64("offset", offset).
			Msg("published")
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.producer.Close()
}
