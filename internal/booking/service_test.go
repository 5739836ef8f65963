package booking

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/hospital-booking/internal/events"
	redisclient "github.com/hackgods/hospital-booking/internal/redis"
)

// fakeRepo implements Repository in memory with the same uniqueness semantics
// the Postgres schema enforces.
type fakeRepo struct {
	doctors   map[uuid.UUID]*Doctor
	hospitals map[uuid.UUID]*Hospital

	patientsByEmail map[string]*Patient
	appointments    map[uuid.UUID]*Appointment
	bySlotKey       map[string]*Appointment

	outbox [][]byte

	failFinalize error
	finalized    []uuid.UUID
	confirmed    []uuid.UUID
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		doctors:         make(map[uuid.UUID]*Doctor),
		hospitals:       make(map[uuid.UUID]*Hospital),
		patientsByEmail: make(map[string]*Patient),
		appointments:    make(map[uuid.UUID]*Appointment),
		bySlotKey:       make(map[string]*Appointment),
	}
}

func (f *fakeRepo) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	if d, ok := f.doctors[id]; ok {
		return d, nil
	}
	return nil, ErrDoctorNotFound
}

func (f *fakeRepo) GetHospitalByID(_ context.Context, id uuid.UUID) (*Hospital, error) {
	if h, ok := f.hospitals[id]; ok {
		return h, nil
	}
	return nil, ErrHospitalNotFound
}

func (f *fakeRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	if a, ok := f.appointments[id]; ok {
		return a, nil
	}
	return nil, ErrAppointmentNotFound
}

func (f *fakeRepo) UpsertPatient(_ context.Context, p UpsertPatientParams) (*Patient, error) {
	if existing, ok := f.patientsByEmail[p.Email]; ok {
		return existing, nil
	}
	patient := &Patient{
		ID:      uuid.New(),
		Name:    p.Name,
		Age:     p.Age,
		Contact: p.Contact,
		Email:   p.Email,
		City:    p.City,
	}
	f.patientsByEmail[p.Email] = patient
	return patient, nil
}

func (f *fakeRepo) CreateAppointmentWithIntent(_ context.Context, appt Appointment, _ string, payload []byte) (*Appointment, error) {
	key := appt.SlotKey()
	if existing, ok := f.bySlotKey[key]; ok {
		if existing.PatientID == appt.PatientID {
			return nil, ErrDuplicateBooking
		}
		return nil, ErrSlotTaken
	}
	stored := appt
	stored.Status = StatusPending
	f.appointments[appt.ID] = &stored
	f.bySlotKey[key] = &stored
	f.outbox = append(f.outbox, payload)
	return &stored, nil
}

func (f *fakeRepo) ConfirmAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := f.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != StatusPending {
		return nil, ErrInvalidTransition
	}
	a.Status = StatusConfirmed
	f.confirmed = append(f.confirmed, id)
	return a, nil
}

func (f *fakeRepo) FinalizeFulfillment(_ context.Context, appointmentID, doctorID uuid.UUID, rating float64) (bool, error) {
	if f.failFinalize != nil {
		return false, f.failFinalize
	}
	a, ok := f.appointments[appointmentID]
	if !ok {
		return false, ErrAppointmentNotFound
	}
	if a.Status == StatusDone {
		return true, nil
	}
	d, ok := f.doctors[doctorID]
	if !ok {
		return false, ErrDoctorNotFound
	}
	a.Status = StatusDone
	a.Rating = &rating
	newServed := d.PatientServed + 1
	d.Rating = (d.Rating*float64(d.PatientServed) + rating) / float64(newServed)
	d.PatientServed = newServed
	f.finalized = append(f.finalized, appointmentID)
	return false, nil
}

func (f *fakeRepo) FailStalePending(_ context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, a := range f.appointments {
		if a.Status == StatusPending && a.CreatedAt.Before(cutoff) {
			a.Status = StatusFailed
			ids = append(ids, a.ID)
		}
	}
	return ids, nil
}

func (f *fakeRepo) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	a, err := f.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &AppointmentDetail{Appointment: *a}, nil
}

func (f *fakeRepo) ListAppointmentsByPatientEmail(_ context.Context, email string, limit, offset int) ([]AppointmentDetail, error) {
	p, ok := f.patientsByEmail[email]
	if !ok {
		return nil, nil
	}
	var result []AppointmentDetail
	for _, a := range f.appointments {
		if a.PatientID == p.ID {
			result = append(result, AppointmentDetail{Appointment: *a})
		}
	}
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

// passthroughLocker runs the critical section without any locking.
type passthroughLocker struct{}

func (passthroughLocker) WithKeyLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// deniedLocker simulates lock contention.
type deniedLocker struct{}

func (deniedLocker) WithKeyLock(context.Context, string, func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

func seedDirectory(repo *fakeRepo) (doctorID, hospitalID uuid.UUID) {
	hospitalID = uuid.New()
	doctorID = uuid.New()
	repo.hospitals[hospitalID] = &Hospital{
		ID:      hospitalID,
		Name:    "City General",
		City:    "Springfield",
		State:   "IL",
		ZipCode: "62701",
	}
	repo.doctors[doctorID] = &Doctor{
		ID:         doctorID,
		HospitalID: hospitalID,
		Name:       "Dr. Strange",
	}
	return doctorID, hospitalID
}

func baseRequest(doctorID, hospitalID uuid.UUID) BookingRequest {
	return BookingRequest{
		Name:            "Jane Roe",
		Age:             34,
		Contact:         "+1-555-0101",
		Email:           "jane@example.com",
		City:            "Springfield",
		HospitalID:      hospitalID,
		DoctorID:        doctorID,
		AppointmentDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Slot:            "10:00",
	}
}

func TestBookAppointmentReturnsProcessingAck(t *testing.T) {
	repo := newFakeRepo()
	doctorID, hospitalID := seedDirectory(repo)
	svc := NewService(repo, passthroughLocker{}, zerolog.Nop())

	ack, err := svc.BookAppointment(context.Background(), baseRequest(doctorID, hospitalID))
	require.NoError(t, err)
	require.NotNil(t, ack)

	assert.Equal(t, "processing", ack.Status)
	assert.NotEmpty(t, ack.Message)
	assert.NotEqual(t, uuid.Nil, ack.AppointmentID)

	appt, err := repo.GetAppointmentByID(context.Background(), ack.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, appt.Status)
}

func TestBookAppointmentWritesBookingIntent(t *testing.T) {
	repo := newFakeRepo()
	doctorID, hospitalID := seedDirectory(repo)
	svc := NewService(repo, passthroughLocker{}, zerolog.Nop())

	ack, err := svc.BookAppointment(context.Background(), baseRequest(doctorID, hospitalID))
	require.NoError(t, err)
	require.Len(t, repo.outbox, 1)

	env, err := events.DecodeEnvelope(repo.outbox[0])
	require.NoError(t, err)
	assert.Equal(t, events.OpAppointmentBook, env.Operation)

	var intent events.BookingIntent
	require.NoError(t, json.Unmarshal(env.Data, &intent))

	patient := repo.patientsByEmail["jane@example.com"]
	require.NotNil(t, patient)

	assert.Equal(t, "10:00", intent.SlotID)
	assert.Equal(t, patient.ID.String(), intent.PatientID)
	assert.Equal(t, ack.AppointmentID.String(), intent.AppointmentID)
	assert.Equal(t, doctorID.String(), intent.DoctorID)
	assert.Equal(t, "Jane Roe", intent.PatientName)
	assert.Equal(t, "Dr. Strange", intent.DoctorName)
	assert.Equal(t, "City General", intent.HospitalName)
	assert.Equal(t, "jane@example.com", intent.PatientEmail)
	assert.Equal(t, "+1-555-0101", intent.PatientContact)
	assert.Equal(t, "Springfield, IL - 62701", intent.HospitalAddress)
}

func TestBookAppointmentDedupesPatientByEmail(t *testing.T) {
	repo := newFakeRepo()
	doctorID, hospitalID := seedDirectory(repo)
	svc := NewService(repo, passthroughLocker{}, zerolog.Nop())

	first := baseRequest(doctorID, hospitalID)
	_, err := svc.BookAppointment(context.Background(), first)
	require.NoError(t, err)

	// Same email, different slot: must reuse the patient record.
	second := baseRequest(doctorID, hospitalID)
	second.Name = "Jane R. Roe"
	second.Slot = "11:00"
	_, err = svc.BookAppointment(context.Background(), second)
	require.NoError(t, err)

	assert.Len(t, repo.patientsByEmail, 1)
	assert.Equal(t, "Jane Roe", repo.patientsByEmail["jane@example.com"].Name)
}

func TestBookAppointmentDuplicateSlotConflicts(t *testing.T) {
	repo := newFakeRepo()
	doctorID, hospitalID := seedDirectory(repo)
	svc := NewService(repo, passthroughLocker{}, zerolog.Nop())

	req := baseRequest(doctorID, hospitalID)
	_, err := svc.BookAppointment(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.BookAppointment(context.Background(), req)
	assert.ErrorIs(t, err, ErrDuplicateBooking)
}

func TestBookAppointmentSlotTakenByOtherPatient(t *testing.T) {
	repo := newFakeRepo()
	doctorID, hospitalID := seedDirectory(repo)
	svc := NewService(repo, passthroughLocker{}, zerolog.Nop())

	_, err := svc.BookAppointment(context.Background(), baseRequest(doctorID, hospitalID))
	require.NoError(t, err)

	other := baseRequest(doctorID, hospitalID)
	other.Email = "john@example.com"
	other.Name = "John Doe"
	_, err = svc.BookAppointment(context.Background(), other)
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestBookAppointmentMissingDoctorCreatesNothing(t *testing.T) {
	repo := newFakeRepo()
	_, hospitalID := seedDirectory(repo)
	svc := NewService(repo, passthroughLocker{}, zerolog.Nop())

	req := baseRequest(uuid.New(), hospitalID)
	_, err := svc.BookAppointment(context.Background(), req)
	assert.ErrorIs(t, err, ErrDoctorNotFound)

	assert.Empty(t, repo.patientsByEmail)
	assert.Empty(t, repo.appointments)
	assert.Empty(t, repo.outbox)
}

func TestBookAppointmentMissingHospitalCreatesNothing(t *testing.T) {
	repo := newFakeRepo()
	doctorID, _ := seedDirectory(repo)
	svc := NewService(repo, passthroughLocker{}, zerolog.Nop())

	req := baseRequest(doctorID, uuid.New())
	_, err := svc.BookAppointment(context.Background(), req)
	assert.ErrorIs(t, err, ErrHospitalNotFound)

	assert.Empty(t, repo.patientsByEmail)
	assert.Empty(t, repo.appointments)
}

func TestBookAppointmentLockContention(t *testing.T) {
	repo := newFakeRepo()
	doctorID, hospitalID := seedDirectory(repo)
	svc := NewService(repo, deniedLocker{}, zerolog.Nop())

	_, err := svc.BookAppointment(context.Background(), baseRequest(doctorID, hospitalID))
	assert.ErrorIs(t, err, ErrSlotBeingBooked)
	assert.Empty(t, repo.appointments)
}

func TestListAppointmentsClampsLimits(t *testing.T) {
	repo := newFakeRepo()
	doctorID, hospitalID := seedDirectory(repo)
	svc := NewService(repo, passthroughLocker{}, zerolog.Nop())

	req := baseRequest(doctorID, hospitalID)
	_, err := svc.BookAppointment(context.Background(), req)
	require.NoError(t, err)

	// Negative offset and zero limit fall back to sane values.
	result, err := svc.ListAppointmentsByPatient(context.Background(), req.Email, 0, -5)
	require.NoError(t, err)
	assert.Len(t, result, 1)
}

func TestSlotKeyFormat(t *testing.T) {
	doctorID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	hospitalID := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	date := time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC)

	key := SlotKey(doctorID, hospitalID, date, "10:00")
	want := "11111111-1111-1111-1111-111111111111:22222222-2222-2222-2222-222222222222:2025-01-02:10:00"
	assert.Equal(t, want, key)

	// The time-of-day component of the date must not leak into the key.
	assert.Equal(t, key, SlotKey(doctorID, hospitalID, date.Add(3*time.Hour), "10:00"))
}

func TestHospitalAddress(t *testing.T) {
	h := Hospital{City: "Springfield", State: "IL", ZipCode: "62701"}
	assert.Equal(t, "Springfield, IL - 62701", h.Address())
}
