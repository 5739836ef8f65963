package events

import (
	"encoding/json"
	"fmt"
)

// Operation tags carried in the envelope. APPOINTMENT_BOOK goes out on the
// user topic; the rest arrive on the appointment topic.
const (
	OpAppointmentBook     = "APPOINTMENT_BOOK"
	OpAppointmentConfirm  = "APPOINTMENT_CONFIRM"
	OpAppointmentComplete = "APPOINTMENT_COMPLETE"
)

// Envelope is the wire format shared with the fulfillment service:
// {"operation": "...", "data": {...}}.
type Envelope struct {
	Operation string          `json:"operation"`
	Data      json.RawMessage `json:"data"`
}

func NewEnvelope(operation string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal envelope data: %w", err)
	}
	return Envelope{Operation: operation, Data: raw}, nil
}

func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Operation == "" {
		return Envelope{}, fmt.Errorf("envelope missing operation tag")
	}
	return env, nil
}

// BookingIntent is the denormalized payload published after a booking request
// is locally committed. Display fields are copied at publish time; a doctor
// renamed later will not retroactively update delivered notifications.
type BookingIntent struct {
	SlotID         string `json:"slotId"`
	PatientID      string `json:"patientId"`
	AppointmentID  string `json:"appointmentId"`
	DoctorID       string `json:"doctorId"`
	PatientName    string `json:"patientName"`
	DoctorName     string `json:"doctorName"`
	HospitalName   string `json:"hospitalName"`
	PatientEmail   string `json:"patientEmail"`
	PatientContact string `json:"patientContact"`
	HospitalAddress string `json:"hospitalAddress"`
}

// PostAppointment is consumed after an appointment actually occurred.
type PostAppointment struct {
	DoctorID      string  `json:"doctorId"`
	PatientID     string  `json:"patientId"`
	AppointmentID string  `json:"appointmentId"`
	Rating        float64 `json:"rating"`
}

// Confirmation moves a pending appointment to confirmed.
type Confirmation struct {
	AppointmentID string `json:"appointmentId"`
}
