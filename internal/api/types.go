package api

import (
	"time"

	"github.com/google/uuid"
)

type BookAppointmentRequest struct {
	Name            string `json:"name"`
	Age             int    `json:"age"`
	Contact         string `json:"contact"`
	Email           string `json:"email"`
	City            string `json:"city"`
	HospitalID      string `json:"hospital_id"`
	DoctorID        string `json:"doctor_id"`
	AppointmentDate string `json:"appointment_date"`
	Slot            string `json:"slot"`
}

type BookAppointmentResponse struct {
	Status        string    `json:"status"`
	Message       string    `json:"message"`
	AppointmentID uuid.UUID `json:"appointment_id"`
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	PatientID       uuid.UUID `json:"patient_id"`
	DoctorID        uuid.UUID `json:"doctor_id"`
	HospitalID      uuid.UUID `json:"hospital_id"`
	AppointmentDate string    `json:"appointment_date"`
	Slot            string    `json:"slot"`
	Status          string    `json:"status"`
	Rating          *float64  `json:"rating,omitempty"`
	PatientName     string    `json:"patient_name,omitempty"`
	DoctorName      string    `json:"doctor_name,omitempty"`
	HospitalName    string    `json:"hospital_name,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type DoctorResponse struct {
	ID            uuid.UUID `json:"id"`
	HospitalID    uuid.UUID `json:"hospital_id"`
	Name          string    `json:"name"`
	Specialty     *string   `json:"specialty,omitempty"`
	Rating        float64   `json:"rating"`
	PatientServed int       `json:"patient_served"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
