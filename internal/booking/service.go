package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/hospital-booking/internal/events"
	redisclient "github.com/hackgods/hospital-booking/internal/redis"
)

var (
	ErrSlotBeingBooked = errors.New("slot is currently being booked, please retry")
)

// BookingRequest carries the patient identity fields and the slot reference
// from a booking call.
type BookingRequest struct {
	Name            string
	Age             int
	Contact         string
	Email           string
	City            string
	HospitalID      uuid.UUID
	DoctorID        uuid.UUID
	AppointmentDate time.Time
	Slot            string
}

// BookingAck is the immediate acknowledgment returned to the caller. The
// booking is eventually confirmed by the fulfillment pipeline, never
// synchronously.
type BookingAck struct {
	AppointmentID uuid.UUID
	Status        string
	Message       string
}

const ackMessage = "Your appointment is currently under process. You will be notified once it is successfully booked or if there is an issue."

// Service is the booking coordinator. It validates a request against live
// doctor/hospital state, dedupes the patient by email, reserves the slot and
// records the booking-intent event for asynchronous delivery.
type Service struct {
	repo   Repository
	locker redisclient.Locker
	logger zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		logger: logger.With().Str("component", "booking").Logger(),
	}
}

// BookAppointment reserves a slot for a patient. A Redis lock per slot tuple
// keeps concurrent requests for the same slot from interleaving between the
// conflict check and the insert; the unique index on the tuple backs it up at
// the storage layer.
func (s *Service) BookAppointment(ctx context.Context, req BookingRequest) (*BookingAck, error) {
	doctor, err := s.repo.GetDoctorByID(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	hospital, err := s.repo.GetHospitalByID(ctx, req.HospitalID)
	if err != nil {
		if errors.Is(err, ErrHospitalNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load hospital: %w", err)
	}

	var ack *BookingAck

	lockKey := SlotKey(req.DoctorID, req.HospitalID, req.AppointmentDate, req.Slot)
	err = s.locker.WithKeyLock(ctx, lockKey, func(lockCtx context.Context) error {
		patient, err := s.repo.UpsertPatient(lockCtx, UpsertPatientParams{
			Name:    req.Name,
			Age:     req.Age,
			Contact: req.Contact,
			Email:   req.Email,
			City:    req.City,
		})
		if err != nil {
			return fmt.Errorf("resolve patient: %w", err)
		}

		appt := Appointment{
			ID:              uuid.New(),
			PatientID:       patient.ID,
			DoctorID:        req.DoctorID,
			HospitalID:      req.HospitalID,
			AppointmentDate: req.AppointmentDate,
			Slot:            req.Slot,
			Status:          StatusPending,
		}

		payload, err := intentPayload(appt, patient, doctor, hospital)
		if err != nil {
			return err
		}

		created, err := s.repo.CreateAppointmentWithIntent(lockCtx, appt, events.OpAppointmentBook, payload)
		if err != nil {
			return err
		}

		s.logger.Info().
			Str("appointment_id", created.ID.String()).
			Str("doctor_id", req.DoctorID.String()).
			Str("slot", req.Slot).
			Msg("appointment pending")

		ack = &BookingAck{
			AppointmentID: created.ID,
			Status:        "processing",
			Message:       ackMessage,
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	return ack, nil
}

func intentPayload(appt Appointment, patient *Patient, doctor *Doctor, hospital *Hospital) ([]byte, error) {
	env, err := events.NewEnvelope(events.OpAppointmentBook, events.BookingIntent{
		SlotID:          appt.Slot,
		PatientID:       patient.ID.String(),
		AppointmentID:   appt.ID.String(),
		DoctorID:        doctor.ID.String(),
		PatientName:     patient.Name,
		DoctorName:      doctor.Name,
		HospitalName:    hospital.Name,
		PatientEmail:    patient.Email,
		PatientContact:  patient.Contact,
		HospitalAddress: hospital.Address(),
	})
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal booking intent: %w", err)
	}
	return raw, nil
}

// GetAppointment retrieves a fully hydrated appointment by ID.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	detail, err := s.repo.GetAppointmentDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// GetDoctor exposes the doctor record, including the rating aggregate.
func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.repo.GetDoctorByID(ctx, id)
}

// ListAppointmentsByPatient retrieves appointments for a patient email.
func (s *Service) ListAppointmentsByPatient(ctx context.Context, email string, limit, offset int) ([]AppointmentDetail, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	appointments, err := s.repo.ListAppointmentsByPatientEmail(ctx, email, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appointments, nil
}
