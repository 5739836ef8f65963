package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/hospital-booking/internal/events"
	"github.com/hackgods/hospital-booking/internal/metrics"
)

// dedupeSource tags processed-event rows written by the reconciler.
const dedupeSource = "fulfillment"

// processedStore is satisfied by events.ProcessedStore.
type processedStore interface {
	AlreadyProcessed(ctx context.Context, source, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, source, eventID string) (bool, error)
}

// Reconciler consumes fulfillment events and applies their mutations. It is
// the only writer of doctor rating aggregates. Delivery is at-least-once: the
// processed-event table short-circuits redeliveries, and the status guards in
// the repository make a racing duplicate harmless anyway.
type Reconciler struct {
	repo      Repository
	processed processedStore
	collector *metrics.Collector
	logger    zerolog.Logger
}

func NewReconciler(repo Repository, processed processedStore, collector *metrics.Collector, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		repo:      repo,
		processed: processed,
		collector: collector,
		logger:    logger.With().Str("component", "reconciler").Logger(),
	}
}

// HandleMessage decodes one delivered envelope and routes it by operation tag.
// Unknown operations are skipped, not failed: the appointment topic is shared
// with consumers this service does not know about.
func (r *Reconciler) HandleMessage(ctx context.Context, raw []byte) error {
	env, err := events.DecodeEnvelope(raw)
	if err != nil {
		r.collector.EventsConsumed.WithLabelValues("unknown", "malformed").Inc()
		return err
	}

	switch env.Operation {
	case events.OpAppointmentConfirm:
		err = r.handleConfirm(ctx, env.Data)
	case events.OpAppointmentComplete:
		err = r.handlePostAppointment(ctx, env.Data)
	default:
		r.logger.Debug().Str("operation", env.Operation).Msg("skipping unhandled operation")
		r.collector.EventsConsumed.WithLabelValues(env.Operation, "skipped").Inc()
		return nil
	}

	result := "ok"
	if err != nil {
		result = "error"
	}
	r.collector.EventsConsumed.WithLabelValues(env.Operation, result).Inc()
	return err
}

// seen reports whether the event was fully handled before. Marking happens
// only after the mutation commits, so a crash in between redelivers the event
// instead of dropping it.
func (r *Reconciler) seen(ctx context.Context, eventID string) (bool, error) {
	done, err := r.processed.AlreadyProcessed(ctx, dedupeSource, eventID)
	if err != nil {
		return false, fmt.Errorf("check processed: %w", err)
	}
	return done, nil
}

func (r *Reconciler) markSeen(ctx context.Context, eventID string) {
	if _, err := r.processed.MarkProcessed(ctx, dedupeSource, eventID); err != nil {
		// Non-fatal: redelivery hits the status guards instead.
		r.logger.Warn().Err(err).Str("event_id", eventID).Msg("failed to record processed event")
	}
}

func (r *Reconciler) handleConfirm(ctx context.Context, data json.RawMessage) error {
	var payload events.Confirmation
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("decode confirmation: %w", err)
	}

	id, err := uuid.Parse(payload.AppointmentID)
	if err != nil {
		return fmt.Errorf("confirmation appointment id: %w", err)
	}

	eventID := events.OpAppointmentConfirm + ":" + payload.AppointmentID
	if done, err := r.seen(ctx, eventID); err != nil {
		return err
	} else if done {
		r.logger.Debug().Str("appointment_id", payload.AppointmentID).Msg("confirmation already processed")
		return nil
	}

	appt, err := r.repo.ConfirmAppointment(ctx, id)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			// Late or duplicate confirmation; nothing to do.
			r.logger.Warn().Str("appointment_id", payload.AppointmentID).Msg("confirmation for non-pending appointment")
			r.markSeen(ctx, eventID)
			return nil
		}
		return fmt.Errorf("confirm appointment: %w", err)
	}

	r.markSeen(ctx, eventID)
	r.logger.Info().Str("appointment_id", appt.ID.String()).Msg("appointment confirmed")
	return nil
}

// handlePostAppointment finalizes the appointment and folds the rating sample
// into the doctor's mean. Both writes happen in one storage transaction, so a
// missing doctor rolls back the appointment mutation as well.
func (r *Reconciler) handlePostAppointment(ctx context.Context, data json.RawMessage) error {
	var payload events.PostAppointment
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("decode post-appointment: %w", err)
	}

	appointmentID, err := uuid.Parse(payload.AppointmentID)
	if err != nil {
		return fmt.Errorf("post-appointment appointment id: %w", err)
	}
	doctorID, err := uuid.Parse(payload.DoctorID)
	if err != nil {
		return fmt.Errorf("post-appointment doctor id: %w", err)
	}

	eventID := events.OpAppointmentComplete + ":" + payload.AppointmentID
	if done, err := r.seen(ctx, eventID); err != nil {
		return err
	} else if done {
		r.logger.Debug().Str("appointment_id", payload.AppointmentID).Msg("post-appointment already processed")
		return nil
	}

	alreadyDone, err := r.repo.FinalizeFulfillment(ctx, appointmentID, doctorID, payload.Rating)
	if err != nil {
		return fmt.Errorf("finalize fulfillment: %w", err)
	}

	r.markSeen(ctx, eventID)

	if alreadyDone {
		r.logger.Warn().Str("appointment_id", payload.AppointmentID).Msg("appointment was already finalized")
		return nil
	}

	r.logger.Info().
		Str("appointment_id", payload.AppointmentID).
		Str("doctor_id", payload.DoctorID).
		Float64("rating", payload.Rating).
		Msg("appointment rated and doctor aggregate updated")
	return nil
}
