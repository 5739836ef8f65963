package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxQuerier is the subset of pgxpool.Pool the repository needs. It is also
// satisfied by pgxmock pools in tests.
type pgxQuerier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool pgxQuerier
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func newPgRepositoryWithPool(pool pgxQuerier) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Age,
		&p.Contact,
		&p.Email,
		&p.City,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var specialty *string

	err := row.Scan(
		&d.ID,
		&d.HospitalID,
		&d.Name,
		&specialty,
		&d.Rating,
		&d.PatientServed,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.Specialty = specialty
	return &d, nil
}

func scanHospital(row pgx.Row) (*Hospital, error) {
	var h Hospital

	err := row.Scan(
		&h.ID,
		&h.Name,
		&h.City,
		&h.State,
		&h.ZipCode,
		&h.CreatedAt,
		&h.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrHospitalNotFound
		}
		return nil, err
	}

	return &h, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var rating *float64

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.HospitalID,
		&a.AppointmentDate,
		&a.Slot,
		&a.Status,
		&rating,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Rating = rating
	return &a, nil
}

const appointmentColumns = `id, patient_id, doctor_id, hospital_id, appointment_date, slot, status, rating, created_at, updated_at`

// Interface methods

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, hospital_id, name, specialty, rating, patient_served, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetHospitalByID(ctx context.Context, id uuid.UUID) (*Hospital, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, city, state, zip_code, created_at, updated_at
		FROM hospitals
		WHERE id = $1
	`, id)
	return scanHospital(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

// UpsertPatient resolves or creates a patient by email in a single statement,
// so two concurrent first bookings for the same email cannot both insert.
// Existing rows keep their attributes; only updated_at moves.
func (r *PgRepository) UpsertPatient(ctx context.Context, p UpsertPatientParams) (*Patient, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO patients (id, name, age, contact, email, city, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (email) DO UPDATE SET updated_at = now()
		RETURNING id, name, age, contact, email, city, created_at, updated_at
	`, id, p.Name, p.Age, p.Contact, p.Email, p.City)

	return scanPatient(row)
}

func (r *PgRepository) CreateAppointmentWithIntent(ctx context.Context, appt Appointment, eventType string, payload []byte) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin booking tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, hospital_id, appointment_date, slot, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'PENDING', now(), now())
		ON CONFLICT (doctor_id, hospital_id, appointment_date, slot) DO NOTHING
		RETURNING `+appointmentColumns+`
	`, appt.ID, appt.PatientID, appt.DoctorID, appt.HospitalID, appt.AppointmentDate, appt.Slot)

	created, err := scanAppointment(row)
	if err != nil {
		if !errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("insert appointment: %w", err)
		}
		// The slot tuple is taken. Report whether it was this patient.
		var holder uuid.UUID
		lookupErr := tx.QueryRow(ctx, `
			SELECT patient_id
			FROM appointments
			WHERE doctor_id = $1 AND hospital_id = $2 AND appointment_date = $3 AND slot = $4
		`, appt.DoctorID, appt.HospitalID, appt.AppointmentDate, appt.Slot).Scan(&holder)
		if lookupErr != nil && !errors.Is(lookupErr, pgx.ErrNoRows) {
			return nil, fmt.Errorf("inspect slot conflict: %w", lookupErr)
		}
		if holder == appt.PatientID {
			return nil, ErrDuplicateBooking
		}
		return nil, ErrSlotTaken
	}

	outboxID := uuid.New()
	if _, err := tx.Exec(ctx, `
		INSERT INTO outbox (id, event_type, payload, created_at)
		VALUES ($1, $2, $3, now())
	`, outboxID, eventType, payload); err != nil {
		return nil, fmt.Errorf("insert booking intent: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit booking tx: %w", err)
	}

	return created, nil
}

func (r *PgRepository) ConfirmAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'CONFIRMED',
		    updated_at = now()
		WHERE id = $1
		  AND status = 'PENDING'
		RETURNING `+appointmentColumns+`
	`, id)

	appt, err := scanAppointment(row)
	if err != nil {
		if !errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		// Distinguish a missing appointment from one in the wrong state.
		if _, lookupErr := r.GetAppointmentByID(ctx, id); lookupErr != nil {
			return nil, lookupErr
		}
		return nil, ErrInvalidTransition
	}

	return appt, nil
}

// FinalizeFulfillment runs both post-appointment mutations in one transaction:
// the appointment is marked DONE with its rating and the doctor's running mean
// absorbs the sample. The doctor row is locked for the read-modify-write, so
// concurrent reconciliations for the same doctor cannot lose updates.
func (r *PgRepository) FinalizeFulfillment(ctx context.Context, appointmentID, doctorID uuid.UUID, rating float64) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin fulfillment tx: %w", err)
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'DONE',
		    rating = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status <> 'DONE'
	`, appointmentID, rating)
	if err != nil {
		return false, fmt.Errorf("finalize appointment: %w", err)
	}

	if ct.RowsAffected() == 0 {
		var status AppointmentStatus
		err := tx.QueryRow(ctx, `
			SELECT status FROM appointments WHERE id = $1
		`, appointmentID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrAppointmentNotFound
		}
		if err != nil {
			return false, fmt.Errorf("load appointment status: %w", err)
		}
		// Already DONE: the event was processed before, leave the doctor alone.
		return true, nil
	}

	var currentRating float64
	var served int
	err = tx.QueryRow(ctx, `
		SELECT rating, patient_served
		FROM doctors
		WHERE id = $1
		FOR UPDATE
	`, doctorID).Scan(&currentRating, &served)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrDoctorNotFound
	}
	if err != nil {
		return false, fmt.Errorf("lock doctor row: %w", err)
	}

	newServed := served + 1
	newRating := (currentRating*float64(served) + rating) / float64(newServed)

	if _, err := tx.Exec(ctx, `
		UPDATE doctors
		SET rating = $2,
		    patient_served = $3,
		    updated_at = now()
		WHERE id = $1
	`, doctorID, newRating, newServed); err != nil {
		return false, fmt.Errorf("update doctor aggregate: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit fulfillment tx: %w", err)
	}

	return false, nil
}

func (r *PgRepository) FailStalePending(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE appointments
		SET status = 'FAILED',
		    updated_at = now()
		WHERE status = 'PENDING'
		  AND created_at < $1
		RETURNING id
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("fail stale pending: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	appt, err := r.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := AppointmentDetail{Appointment: *appt}

	if p, err := scanPatient(r.pool.QueryRow(ctx, `
		SELECT id, name, age, contact, email, city, created_at, updated_at
		FROM patients WHERE id = $1
	`, appt.PatientID)); err == nil {
		detail.Patient = p
	}
	if d, err := r.GetDoctorByID(ctx, appt.DoctorID); err == nil {
		detail.Doctor = d
	}
	if h, err := r.GetHospitalByID(ctx, appt.HospitalID); err == nil {
		detail.Hospital = h
	}

	return &detail, nil
}

func (r *PgRepository) ListAppointmentsByPatientEmail(ctx context.Context, email string, limit, offset int) ([]AppointmentDetail, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+qualifiedAppointmentColumns+`
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		WHERE p.email = $1
		ORDER BY a.appointment_date DESC, a.slot
		LIMIT $2 OFFSET $3
	`, email, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, AppointmentDetail{Appointment: *a})
	}

	return result, rows.Err()
}

const qualifiedAppointmentColumns = `a.id, a.patient_id, a.doctor_id, a.hospital_id, a.appointment_date, a.slot, a.status, a.rating, a.created_at, a.updated_at`
