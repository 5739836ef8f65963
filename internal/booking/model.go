package booking

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "PENDING"
	StatusConfirmed AppointmentStatus = "CONFIRMED"
	StatusDone      AppointmentStatus = "DONE"
	StatusFailed    AppointmentStatus = "FAILED"
)

type Patient struct {
	ID        uuid.UUID
	Name      string
	Age       int
	Contact   string
	Email     string
	City      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Doctor struct {
	ID            uuid.UUID
	HospitalID    uuid.UUID
	Name          string
	Specialty     *string
	Rating        float64
	PatientServed int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Hospital struct {
	ID        uuid.UUID
	Name      string
	City      string
	State     string
	ZipCode   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Address composes the display address used in booking-intent notifications.
func (h Hospital) Address() string {
	return fmt.Sprintf("%s, %s - %s", h.City, h.State, h.ZipCode)
}

type Appointment struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	DoctorID        uuid.UUID
	HospitalID      uuid.UUID
	AppointmentDate time.Time
	Slot            string
	Status          AppointmentStatus
	Rating          *float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SlotKey identifies the bookable unit. It is both the Redis lock key and the
// logical key behind the appointments unique index.
func (a Appointment) SlotKey() string {
	return SlotKey(a.DoctorID, a.HospitalID, a.AppointmentDate, a.Slot)
}

func SlotKey(doctorID, hospitalID uuid.UUID, date time.Time, slot string) string {
	return fmt.Sprintf("%s:%s:%s:%s", doctorID, hospitalID, date.Format("2006-01-02"), slot)
}

type AppointmentDetail struct {
	Appointment
	Patient  *Patient
	Doctor   *Doctor
	Hospital *Hospital
}
