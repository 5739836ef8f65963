package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/hospital-booking/internal/booking"
	"github.com/hackgods/hospital-booking/internal/metrics"
	redisclient "github.com/hackgods/hospital-booking/internal/redis"
)

// BookingService is what the handlers need from the coordinator.
type BookingService interface {
	BookAppointment(ctx context.Context, req booking.BookingRequest) (*booking.BookingAck, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*booking.AppointmentDetail, error)
	GetDoctor(ctx context.Context, id uuid.UUID) (*booking.Doctor, error)
	ListAppointmentsByPatient(ctx context.Context, email string, limit, offset int) ([]booking.AppointmentDetail, error)
}

const dateLayout = "2006-01-02"

func bookAppointmentHandler(svc BookingService, collector *metrics.Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Name) == "" {
			writeError(w, http.StatusBadRequest, "missing_patient_identity", "name and email are required")
			return
		}
		if strings.TrimSpace(req.Slot) == "" {
			writeError(w, http.StatusBadRequest, "missing_slot", "slot is required")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		hospitalID, err := uuid.Parse(req.HospitalID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_hospital_id", "hospital_id must be a valid UUID")
			return
		}

		date, err := time.Parse(dateLayout, req.AppointmentDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_date", "appointment_date must be YYYY-MM-DD")
			return
		}

		ack, err := svc.BookAppointment(r.Context(), booking.BookingRequest{
			Name:            req.Name,
			Age:             req.Age,
			Contact:         req.Contact,
			Email:           req.Email,
			City:            req.City,
			HospitalID:      hospitalID,
			DoctorID:        doctorID,
			AppointmentDate: date,
			Slot:            req.Slot,
		})
		if err != nil {
			if collector != nil {
				collector.BookingsTotal.WithLabelValues(bookingResult(err)).Inc()
			}
			handleBookingError(w, err)
			return
		}

		if collector != nil {
			collector.BookingsTotal.WithLabelValues("processing").Inc()
		}

		// The booking is eventually confirmed, never synchronously.
		writeJSON(w, http.StatusAccepted, BookAppointmentResponse{
			Status:        ack.Status,
			Message:       ack.Message,
			AppointmentID: ack.AppointmentID,
		})
	}
}

func getAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		detail, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			if errors.Is(err, booking.ErrAppointmentNotFound) {
				writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*detail))
	}
}

func listAppointmentsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := r.URL.Query().Get("patient_email")
		if email == "" {
			writeError(w, http.StatusBadRequest, "missing_patient_email", "patient_email query parameter is required")
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		details, err := svc.ListAppointmentsByPatient(r.Context(), email, limit, offset)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]AppointmentResponse, 0, len(details))
		for _, d := range details {
			resp = append(resp, toAppointmentResponse(d))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getDoctorHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		doctor, err := svc.GetDoctor(r.Context(), id)
		if err != nil {
			if errors.Is(err, booking.ErrDoctorNotFound) {
				writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, DoctorResponse{
			ID:            doctor.ID,
			HospitalID:    doctor.HospitalID,
			Name:          doctor.Name,
			Specialty:     doctor.Specialty,
			Rating:        doctor.Rating,
			PatientServed: doctor.PatientServed,
		})
	}
}

func handleBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, booking.ErrHospitalNotFound):
		writeError(w, http.StatusNotFound, "hospital_not_found", err.Error())
	case errors.Is(err, booking.ErrDuplicateBooking):
		writeError(w, http.StatusConflict, "duplicate_booking", err.Error())
	case errors.Is(err, booking.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_already_booked", err.Error())
	case errors.Is(err, booking.ErrSlotBeingBooked),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func bookingResult(err error) string {
	switch {
	case errors.Is(err, booking.ErrDoctorNotFound), errors.Is(err, booking.ErrHospitalNotFound):
		return "not_found"
	case errors.Is(err, booking.ErrDuplicateBooking),
		errors.Is(err, booking.ErrSlotTaken),
		errors.Is(err, booking.ErrSlotBeingBooked):
		return "conflict"
	default:
		return "error"
	}
}

func toAppointmentResponse(d booking.AppointmentDetail) AppointmentResponse {
	resp := AppointmentResponse{
		ID:              d.ID,
		PatientID:       d.PatientID,
		DoctorID:        d.DoctorID,
		HospitalID:      d.HospitalID,
		AppointmentDate: d.AppointmentDate.Format(dateLayout),
		Slot:            d.Slot,
		Status:          string(d.Status),
		Rating:          d.Rating,
		CreatedAt:       d.CreatedAt,
	}
	if d.Patient != nil {
		resp.PatientName = d.Patient.Name
	}
	if d.Doctor != nil {
		resp.DoctorName = d.Doctor.Name
	}
	if d.Hospital != nil {
		resp.HospitalName = d.Hospital.Name
	}
	return resp
}
