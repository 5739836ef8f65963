package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrHospitalNotFound    = errors.New("hospital not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrSlotTaken means another patient already holds the slot tuple,
	// ErrDuplicateBooking means the same patient booked it already.
	ErrSlotTaken        = errors.New("slot already booked")
	ErrDuplicateBooking = errors.New("appointment already exists for this time slot")

	ErrInvalidTransition = errors.New("invalid appointment status transition")
)

// UpsertPatientParams carries the identity fields from a booking request.
// Email is the dedup key; the remaining fields are written on first sight only.
type UpsertPatientParams struct {
	Name    string
	Age     int
	Contact string
	Email   string
	City    string
}

// Repository contains all storage interactions needed by the coordinator and
// the reconciler.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetHospitalByID(ctx context.Context, id uuid.UUID) (*Hospital, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// UpsertPatient resolves or creates the patient by email in one statement.
	UpsertPatient(ctx context.Context, p UpsertPatientParams) (*Patient, error)

	// CreateAppointmentWithIntent inserts the PENDING appointment and its
	// booking-intent outbox row in a single transaction. The appointment id
	// must be pre-generated so the intent payload can reference it.
	// Returns ErrSlotTaken or ErrDuplicateBooking on a slot collision.
	CreateAppointmentWithIntent(ctx context.Context, appt Appointment, eventType string, payload []byte) (*Appointment, error)

	// ConfirmAppointment moves PENDING to CONFIRMED.
	ConfirmAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// FinalizeFulfillment marks the appointment DONE with the given rating and
	// folds the sample into the doctor's running mean, all in one transaction.
	// Reports alreadyDone=true without touching the doctor when the
	// appointment was finalized before.
	FinalizeFulfillment(ctx context.Context, appointmentID, doctorID uuid.UUID, rating float64) (alreadyDone bool, err error)

	// FailStalePending flips PENDING appointments created before the cutoff to
	// FAILED and returns the affected ids.
	FailStalePending(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)

	// Read surface
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	ListAppointmentsByPatientEmail(ctx context.Context, email string, limit, offset int) ([]AppointmentDetail, error)
}
