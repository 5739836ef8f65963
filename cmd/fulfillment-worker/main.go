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

// The fulfillment worker consumes confirmation and post-appointment events
// from the appointment topic and reconciles them into appointment records and
// doctor rating aggregates.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger := logging.New(cfg.Env, cfg.LogLevel, "fulfillment-worker")
	logger.Info().
		Str("env", cfg.Env).
		Str("topic", cfg.AppointmentTopic).
		Str("group", cfg.ConsumerGroup).
		Msg("fulfillment-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, "hospital-booking-fulfillment")
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	collector := metrics.NewCollector(prometheus.DefaultRegisterer)
	serveMetrics(cfg.MetricsPort, logger)

	repo := booking.NewPgRepository(pgPool)
	processed := events.NewProcessedStore(pgPool)
	reconciler := booking.NewReconciler(repo, processed, collector, logger)

	consumer, err := kafka.NewConsumer(
		cfg.KafkaBrokers,
		cfg.ConsumerGroup,
		[]string{cfg.AppointmentTopic},
		reconciler.HandleMessage,
		logger,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("kafka consumer error")
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing kafka consumer")
		}
	}()
	logger.Info().Strs("brokers", cfg.KafkaBrokers).Msg("connected to Kafka")

	if err := consumer.Run(rootCtx); err != nil {
		logger.Error().Err(err).Msg("consumer stopped with error")
	}

	logger.Info().Msg("shutdown signal received, stopping fulfillment-worker")
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
