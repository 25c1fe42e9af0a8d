package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartmed/scheduling/internal/booking"
	"github.com/smartmed/scheduling/internal/identity"
	"github.com/smartmed/scheduling/internal/schedule"
)

const testSecret = "handlers-test-secret"

// stubStore serves canned schedule data; weekly materialization is a
// no-op because no weekly window ever resolves.
type stubStore struct {
	mu       sync.Mutex
	staffID  uuid.UUID
	windows  []schedule.AvailabilityWindow
	slots    []schedule.TimeSlot
	replaced int
}

func (s *stubStore) StaffExists(_ context.Context, staffID uuid.UUID) (bool, error) {
	return staffID == s.staffID, nil
}

func (s *stubStore) ListWindows(_ context.Context, _ uuid.UUID) ([]schedule.AvailabilityWindow, error) {
	return s.windows, nil
}

func (s *stubStore) GetDateWindow(_ context.Context, _ uuid.UUID, _ time.Time) (*schedule.AvailabilityWindow, error) {
	return nil, schedule.ErrWindowNotFound
}

func (s *stubStore) GetWeeklyWindow(_ context.Context, _ uuid.UUID, _ time.Weekday) (*schedule.AvailabilityWindow, error) {
	return nil, schedule.ErrWindowNotFound
}

func (s *stubStore) ReplaceWindows(_ context.Context, _ uuid.UUID, windows []schedule.AvailabilityWindow, _ []schedule.TimeSlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows = windows
	s.replaced++
	return nil
}

func (s *stubStore) InsertSlots(_ context.Context, _ []schedule.TimeSlot) error { return nil }

func (s *stubStore) HasSlotsForWindow(_ context.Context, _ uuid.UUID, _, _ time.Time) (bool, error) {
	return false, nil
}

func (s *stubStore) ListAvailableSlots(_ context.Context, _ uuid.UUID, _, _ time.Time) ([]schedule.TimeSlot, error) {
	return s.slots, nil
}

func (s *stubStore) ListWeeklyStaff(_ context.Context) ([]uuid.UUID, error) { return nil, nil }

// stubRepo backs the booking service with a single patient, staff
// member, and slot.
type stubRepo struct {
	mu      sync.Mutex
	patient booking.Patient
	staff   booking.Staff
	slot    schedule.TimeSlot
	appts   map[uuid.UUID]*booking.Appointment
}

func (r *stubRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*booking.Patient, error) {
	if id != r.patient.ID {
		return nil, booking.ErrPatientNotFound
	}
	p := r.patient
	return &p, nil
}

func (r *stubRepo) GetStaffByID(_ context.Context, id uuid.UUID) (*booking.Staff, error) {
	if id != r.staff.ID {
		return nil, booking.ErrStaffNotFound
	}
	s := r.staff
	return &s, nil
}

func (r *stubRepo) GetSlotByID(_ context.Context, id uuid.UUID) (*schedule.TimeSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id != r.slot.ID {
		return nil, booking.ErrSlotNotFound
	}
	s := r.slot
	return &s, nil
}

func (r *stubRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*booking.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, booking.ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *stubRepo) BookSlot(_ context.Context, slotID, patientID, staffID uuid.UUID, status booking.AppointmentStatus) (*booking.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slotID != r.slot.ID {
		return nil, booking.ErrSlotNotFound
	}
	if r.slot.Status != schedule.SlotAvailable {
		return nil, booking.ErrSlotNotAvailable
	}
	r.slot.Status = schedule.SlotBooked
	a := &booking.Appointment{
		ID:         uuid.New(),
		PatientID:  patientID,
		StaffID:    staffID,
		TimeSlotID: slotID,
		Status:     status,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	r.appts[a.ID] = a
	cp := *a
	return &cp, nil
}

func (r *stubRepo) CancelAppointment(_ context.Context, id uuid.UUID) (*booking.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || a.Status == booking.StatusCancelled {
		return nil, booking.ErrAppointmentNotFound
	}
	a.Status = booking.StatusCancelled
	if !r.slot.Exception {
		r.slot.Status = schedule.SlotAvailable
	}
	cp := *a
	return &cp, nil
}

func (r *stubRepo) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to booking.AppointmentStatus) (*booking.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, booking.ErrAppointmentNotFound
	}
	if a.Status != from {
		return nil, booking.ErrAppointmentNotFound
	}
	a.Status = to
	cp := *a
	return &cp, nil
}

func (r *stubRepo) ListByPatient(_ context.Context, _ uuid.UUID) ([]booking.AppointmentDetail, error) {
	return nil, nil
}

func (r *stubRepo) ListByStaff(_ context.Context, _ uuid.UUID) ([]booking.AppointmentDetail, error) {
	return nil, nil
}

func (r *stubRepo) InsertEvent(_ context.Context, _ booking.EventLog) error { return nil }

// passLocker runs the callback without distributed locking.
type passLocker struct{}

func (passLocker) WithSlotLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type apiFixture struct {
	router    http.Handler
	store     *stubStore
	repo      *stubRepo
	patientID uuid.UUID
	staffID   uuid.UUID
	slotID    uuid.UUID
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	patientID := uuid.New()
	staffID := uuid.New()
	slotID := uuid.New()

	slotStart := time.Now().Add(48 * time.Hour).Truncate(time.Minute)
	store := &stubStore{
		staffID: staffID,
		slots: []schedule.TimeSlot{
			{
				ID:        slotID,
				StaffID:   staffID,
				StartTime: slotStart,
				EndTime:   slotStart.Add(30 * time.Minute),
				Status:    schedule.SlotAvailable,
			},
		},
	}

	repo := &stubRepo{
		patient: booking.Patient{ID: patientID, Name: "Ada Moreno"},
		staff:   booking.Staff{ID: staffID, Name: "Dr. Leah Kim"},
		slot:    store.slots[0],
		appts:   make(map[uuid.UUID]*booking.Appointment),
	}

	router := NewRouter(RouterConfig{
		Schedule:  schedule.NewService(store, 30),
		Booking:   booking.NewService(repo, passLocker{}),
		JWTSecret: testSecret,
		Env:       "test",
		Version:   "test",
	})

	return &apiFixture{
		router:    router,
		store:     store,
		repo:      repo,
		patientID: patientID,
		staffID:   staffID,
		slotID:    slotID,
	}
}

func (f *apiFixture) tokenFor(t *testing.T, userID uuid.UUID, role identity.Role) string {
	t.Helper()
	tok, err := identity.IssueToken(testSecret, identity.Session{UserID: userID, Role: role}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e
}

func TestRouterRejectsMissingToken(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/appointments?filter=pending", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouterRejectsGarbageToken(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/appointments?filter=pending", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListSlots(t *testing.T) {
	f := newAPIFixture(t)
	token := f.tokenFor(t, f.patientID, identity.RolePatient)

	date := time.Now().Add(48 * time.Hour).Format("2006-01-02")
	rec := f.do(t, http.MethodGet, "/staff/"+f.staffID.String()+"/slots?date="+date, token, nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var slots []SlotResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &slots))
	require.Len(t, slots, 1)
	assert.Equal(t, f.slotID, slots[0].ID)
	assert.Equal(t, f.staffID, slots[0].StaffID)
}

func TestListSlotsBadDate(t *testing.T) {
	f := newAPIFixture(t)
	token := f.tokenFor(t, f.patientID, identity.RolePatient)

	rec := f.do(t, http.MethodGet, "/staff/"+f.staffID.String()+"/slots?date=next-tuesday", token, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_date", decodeError(t, rec).Error)
}

func TestListSlotsUnknownStaff(t *testing.T) {
	f := newAPIFixture(t)
	token := f.tokenFor(t, f.patientID, identity.RolePatient)

	date := time.Now().Format("2006-01-02")
	rec := f.do(t, http.MethodGet, "/staff/"+uuid.NewString()+"/slots?date="+date, token, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBookAppointment(t *testing.T) {
	f := newAPIFixture(t)
	token := f.tokenFor(t, f.patientID, identity.RolePatient)

	body := BookAppointmentRequest{
		PatientID:  f.patientID.String(),
		StaffID:    f.staffID.String(),
		TimeSlotID: f.slotID.String(),
	}

	rec := f.do(t, http.MethodPost, "/appointments", token, body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var appt AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &appt))
	assert.Equal(t, string(booking.StatusPending), appt.Status)
	assert.Equal(t, f.slotID, appt.TimeSlotID)

	// Same slot again conflicts.
	rec = f.do(t, http.MethodPost, "/appointments", token, body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_not_available", decodeError(t, rec).Error)
}

func TestBookAppointmentForOtherPatientForbidden(t *testing.T) {
	f := newAPIFixture(t)
	token := f.tokenFor(t, uuid.New(), identity.RolePatient)

	body := BookAppointmentRequest{
		PatientID:  f.patientID.String(),
		StaffID:    f.staffID.String(),
		TimeSlotID: f.slotID.String(),
	}

	rec := f.do(t, http.MethodPost, "/appointments", token, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestConfirmRequiresStaff(t *testing.T) {
	f := newAPIFixture(t)
	patientToken := f.tokenFor(t, f.patientID, identity.RolePatient)

	body := BookAppointmentRequest{
		PatientID:  f.patientID.String(),
		StaffID:    f.staffID.String(),
		TimeSlotID: f.slotID.String(),
	}
	rec := f.do(t, http.MethodPost, "/appointments", patientToken, body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var appt AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &appt))

	rec = f.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/confirm", patientToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	staffToken := f.tokenFor(t, f.staffID, identity.RoleStaff)
	rec = f.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/confirm", staffToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var confirmed AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &confirmed))
	assert.Equal(t, string(booking.StatusConfirmed), confirmed.Status)
}

func TestSaveAvailabilityOwnerOnly(t *testing.T) {
	f := newAPIFixture(t)

	body := SaveAvailabilityRequest{
		Windows: []WindowPayload{
			{
				Kind:                "weekly",
				DayOfWeek:           "Monday",
				Ranges:              []RangePayload{{Start: "09:00", End: "12:00"}},
				SlotDurationMinutes: 30,
			},
		},
	}

	path := "/staff/" + f.staffID.String() + "/availability"

	patientToken := f.tokenFor(t, f.patientID, identity.RolePatient)
	rec := f.do(t, http.MethodPut, path, patientToken, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	otherStaffToken := f.tokenFor(t, uuid.New(), identity.RoleStaff)
	rec = f.do(t, http.MethodPut, path, otherStaffToken, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	ownerToken := f.tokenFor(t, f.staffID, identity.RoleStaff)
	rec = f.do(t, http.MethodPut, path, ownerToken, body)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, f.store.replaced)
}

func TestSaveAvailabilityRejectsBadWindow(t *testing.T) {
	f := newAPIFixture(t)
	ownerToken := f.tokenFor(t, f.staffID, identity.RoleStaff)

	body := SaveAvailabilityRequest{
		Windows: []WindowPayload{
			{
				Kind:                "weekly",
				DayOfWeek:           "Monday",
				Ranges:              []RangePayload{{Start: "12:00", End: "09:00"}},
				SlotDurationMinutes: 30,
			},
		},
	}

	rec := f.do(t, http.MethodPut, "/staff/"+f.staffID.String()+"/availability", ownerToken, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_availability", decodeError(t, rec).Error)
}

func TestListAppointmentsRejectsUnknownFilter(t *testing.T) {
	f := newAPIFixture(t)
	token := f.tokenFor(t, f.patientID, identity.RolePatient)

	rec := f.do(t, http.MethodGet, "/appointments?filter=soonish", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_filter", decodeError(t, rec).Error)
}
