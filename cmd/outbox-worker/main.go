package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hackgods/hospital-booking/internal/booking"
	"github.com/hackgods/hospital-booking/internal/config"
	"github.com/hackgods/hospital-booking/internal/db"
	"github.com/hackgods/hospital-booking/internal/events"
	"github.com/hackgods/hospital-booking/internal/kafka"
	"github.com/hackgods/hospital-booking/internal/logging"
	"github.com/hackgods/hospital-booking/internal/metrics"
)

// The outbox worker owns the delivery side of the booking workflow: it relays
// committed booking-intent events to Kafka and fails PENDING appointments
// whose fulfillment never arrived within the pending TTL.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger := logging.New(cfg.Env, cfg.LogLevel, "outbox-worker")
	logger.Info().
		Str("env", cfg.Env).
		Dur("relay_interval", cfg.RelayInterval).
		Dur("pending_ttl", cfg.PendingTTL).
		Msg("outbox-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, "hospital-booking-outbox")
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("kafka producer error")
	}
	defer func() {
		if err := producer.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing kafka producer")
		}
	}()
	logger.Info().Strs("brokers", cfg.KafkaBrokers).Msg("connected to Kafka")

	collector := metrics.NewCollector(prometheus.DefaultRegisterer)
	serveMetrics(cfg.MetricsPort, logger)

	store := events.NewOutboxStore(pgPool)
	relay := events.NewRelay(store, producer, cfg.UserTopic, collector, logger).
		WithInterval(cfg.RelayInterval).
		WithBatchSize(cfg.RelayBatchSize)

	repo := booking.NewPgRepository(pgPool)

	go staleLoop(rootCtx, repo, cfg.PendingTTL, cfg.StaleInterval, collector, logger)

	relay.Start(rootCtx)

	logger.Info().Msg("shutdown signal received, stopping outbox-worker")
}

// staleLoop periodically fails bookings that sat in PENDING past the TTL.
func staleLoop(ctx context.Context, repo booking.Repository, ttl, interval time.Duration, collector *metrics.Collector, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
			ids, err := repo.FailStalePending(runCtx, time.Now().Add(-ttl))
			cancel()
			if err != nil {
				logger.Error().Err(err).Msg("stale booking pass failed")
				continue
			}
			if len(ids) > 0 {
				collector.StaleFailed.Add(float64(len(ids)))
				logger.Warn().Int("count", len(ids)).Msg("failed stale pending bookings")
			}
		}
	}
}

func serveMetrics(port string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(":"+port, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics listener error")
		}
	}()
}
