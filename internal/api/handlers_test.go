package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/bulk"
)

type stubScheduler struct {
	mu        sync.Mutex
	appts     map[uuid.UUID]appointment.Appointment
	order     []uuid.UUID
	slots     []appointment.TimeSlot
	commitErr error
	listErr   error
	lastReq   appointment.BookingRequest

	specialties []appointment.Specialty
	doctors     []appointment.Doctor
	schedules   map[uuid.UUID][]appointment.ScheduleEntry
}

func newStubScheduler() *stubScheduler {
	return &stubScheduler{
		appts:     map[uuid.UUID]appointment.Appointment{},
		schedules: map[uuid.UUID][]appointment.ScheduleEntry{},
	}
}

func (s *stubScheduler) add(status appointment.Status) appointment.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := appointment.Appointment{
		ID:              uuid.New(),
		DoctorID:        uuid.New(),
		PatientID:       uuid.New(),
		AppointmentDate: "2025-06-01",
		AppointmentTime: "09:00",
		Status:          status,
	}
	s.appts[a.ID] = a
	s.order = append(s.order, a.ID)
	return a
}

func (s *stubScheduler) ResolveSlots(_ context.Context, _ uuid.UUID, date string) ([]appointment.TimeSlot, error) {
	if _, err := appointment.ParseDate(date); err != nil {
		return nil, err
	}
	return s.slots, nil
}

func (s *stubScheduler) CommitBooking(_ context.Context, req appointment.BookingRequest) (*appointment.Appointment, error) {
	s.lastReq = req
	if s.commitErr != nil {
		return nil, s.commitErr
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &appointment.Appointment{
		ID:              uuid.New(),
		DoctorID:        req.DoctorID,
		PatientID:       req.PatientID,
		AppointmentDate: req.AppointmentDate,
		AppointmentTime: "09:00",
		Status:          appointment.StatusPending,
		Symptoms:        req.Symptoms,
	}, nil
}

func (s *stubScheduler) Transition(_ context.Context, id uuid.UUID, action appointment.Action, reason string) (*appointment.Appointment, error) {
	if err := appointment.ValidateTransitionInput(action, reason); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	next, err := appointment.Apply(a, action, reason, time.Now())
	if err != nil {
		return nil, err
	}
	s.appts[id] = next
	return &next, nil
}

func (s *stubScheduler) GetAppointment(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return &a, nil
}

func (s *stubScheduler) ListAppointments(_ context.Context, f appointment.Filter) ([]appointment.Appointment, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []appointment.Appointment{}
	for _, id := range s.order {
		a := s.appts[id]
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *stubScheduler) Conflicts(ctx context.Context, f appointment.Filter) ([]appointment.ConflictPair, error) {
	appts, err := s.ListAppointments(ctx, f)
	if err != nil {
		return nil, err
	}
	return appointment.ConflictPairs(appts), nil
}

func (s *stubScheduler) ListSpecialties(context.Context) ([]appointment.Specialty, error) {
	return s.specialties, nil
}

func (s *stubScheduler) ListDoctors(_ context.Context, specialtyID uuid.UUID) ([]appointment.Doctor, error) {
	out := []appointment.Doctor{}
	for _, d := range s.doctors {
		if specialtyID == uuid.Nil || (d.SpecialtyID != nil && *d.SpecialtyID == specialtyID) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *stubScheduler) GetSchedule(_ context.Context, doctorID uuid.UUID) ([]appointment.ScheduleEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.schedules[doctorID]
	if !ok {
		return nil, appointment.ErrDoctorNotFound
	}
	return entries, nil
}

func (s *stubScheduler) ReplaceSchedule(_ context.Context, doctorID uuid.UUID, entries []appointment.ScheduleEntry) ([]appointment.ScheduleEntry, error) {
	normalized, err := appointment.NormalizeSchedule(doctorID, entries)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[doctorID]; !ok {
		return nil, appointment.ErrDoctorNotFound
	}
	s.schedules[doctorID] = normalized
	return normalized, nil
}

func newTestRouter(svc Scheduler) http.Handler {
	reg := prometheus.NewRegistry()
	return NewRouter(RouterConfig{
		Service:  svc,
		Postgres: PingFunc(func(context.Context) error { return nil }),
		Redis:    PingFunc(func(context.Context) error { return nil }),
		Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:   zerolog.Nop(),
		Env:      "test",
		Version:  "v0.0.0",
	})
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{appointment.ErrValidation, http.StatusBadRequest, "validation_error"},
		{appointment.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
		{appointment.ErrAppointmentNotFound, http.StatusNotFound, "appointment_not_found"},
		{appointment.ErrDoctorNotFound, http.StatusNotFound, "doctor_not_found"},
		{appointment.ErrPatientNotFound, http.StatusNotFound, "patient_not_found"},
		{appointment.ErrSpecialtyNotFound, http.StatusNotFound, "specialty_not_found"},
		{appointment.ErrSlotNotFound, http.StatusNotFound, "slot_not_found"},
		{appointment.ErrSlotUnavailable, http.StatusConflict, "slot_unavailable"},
		{appointment.ErrSlotTaken, http.StatusConflict, "slot_taken"},
		{appointment.ErrSlotBeingBooked, http.StatusConflict, "slot_being_booked"},
		{appointment.ErrUnavailable, http.StatusServiceUnavailable, "backend_unavailable"},
		{errors.New("pool exhausted"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		status, code := errorStatus(tt.err)
		assert.Equal(t, tt.status, status, tt.code)
		assert.Equal(t, tt.code, code)
	}
}

func TestCreateAppointment(t *testing.T) {
	svc := newStubScheduler()
	h := newTestRouter(svc)

	body := CreateAppointmentRequest{
		PatientID:       uuid.NewString(),
		DoctorID:        uuid.NewString(),
		TimeSlotID:      uuid.NewString(),
		AppointmentDate: "2025-06-02",
		Symptoms:        "headache",
	}
	rec := do(t, h, http.MethodPost, "/appointments", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var appt appointment.Appointment
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&appt))
	assert.Equal(t, appointment.StatusPending, appt.Status)
	assert.Equal(t, "headache", svc.lastReq.Symptoms)
	assert.Nil(t, svc.lastReq.SpecialtyID)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCreateAppointmentValidation(t *testing.T) {
	h := newTestRouter(newStubScheduler())

	tests := map[string]any{
		"bad json":      "not an object",
		"missing slot":  CreateAppointmentRequest{PatientID: uuid.NewString(), DoctorID: uuid.NewString(), AppointmentDate: "2025-06-02", Symptoms: "x"},
		"bad date":      CreateAppointmentRequest{PatientID: uuid.NewString(), DoctorID: uuid.NewString(), TimeSlotID: uuid.NewString(), AppointmentDate: "02/06/2025", Symptoms: "x"},
		"no symptoms":   CreateAppointmentRequest{PatientID: uuid.NewString(), DoctorID: uuid.NewString(), TimeSlotID: uuid.NewString(), AppointmentDate: "2025-06-02"},
		"bad doctor id": CreateAppointmentRequest{PatientID: uuid.NewString(), DoctorID: "dr-who", TimeSlotID: uuid.NewString(), AppointmentDate: "2025-06-02", Symptoms: "x"},
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/appointments", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "validation_error", decodeError(t, rec).Error)
		})
	}
}

func TestCreateAppointmentSlotTaken(t *testing.T) {
	svc := newStubScheduler()
	svc.commitErr = appointment.ErrSlotTaken
	h := newTestRouter(svc)

	rec := do(t, h, http.MethodPost, "/appointments", CreateAppointmentRequest{
		PatientID:       uuid.NewString(),
		DoctorID:        uuid.NewString(),
		TimeSlotID:      uuid.NewString(),
		AppointmentDate: "2025-06-02",
		Symptoms:        "x",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_taken", decodeError(t, rec).Error)
}

func TestInternalErrorsHideDetails(t *testing.T) {
	svc := newStubScheduler()
	svc.listErr = errors.New("pq: password authentication failed")
	h := newTestRouter(svc)

	rec := do(t, h, http.MethodGet, "/appointments", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "internal_error", resp.Error)
	assert.NotContains(t, resp.Details, "password")
}

func TestResolveSlots(t *testing.T) {
	svc := newStubScheduler()
	svc.slots = []appointment.TimeSlot{{ID: uuid.New(), StartTime: "09:00", EndTime: "09:30", IsAvailable: true}}
	h := newTestRouter(svc)
	doctor := uuid.New()

	rec := do(t, h, http.MethodGet, "/doctors/"+doctor.String()+"/slots?date=2025-06-02", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp SlotsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, doctor, resp.DoctorID)
	assert.Len(t, resp.Slots, 1)

	rec = do(t, h, http.MethodGet, "/doctors/"+doctor.String()+"/slots", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/doctors/nope/slots?date=2025-06-02", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSpecialtiesAndDoctorsEndpoints(t *testing.T) {
	svc := newStubScheduler()
	neuro, cardio := uuid.New(), uuid.New()
	svc.specialties = []appointment.Specialty{{ID: cardio, Name: "Cardiology"}, {ID: neuro, Name: "Neurology"}}
	svc.doctors = []appointment.Doctor{
		{ID: uuid.New(), Name: "Dr. Ada Lovelace", SpecialtyID: &neuro},
		{ID: uuid.New(), Name: "Dr. Barbara Liskov", SpecialtyID: &cardio},
	}
	h := newTestRouter(svc)

	rec := do(t, h, http.MethodGet, "/specialties", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var specialties SpecialtiesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&specialties))
	assert.Len(t, specialties.Specialties, 2)

	rec = do(t, h, http.MethodGet, "/doctors?specialty_id="+neuro.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var doctors DoctorsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&doctors))
	require.Len(t, doctors.Doctors, 1)
	assert.Equal(t, "Dr. Ada Lovelace", doctors.Doctors[0].Name)

	rec = do(t, h, http.MethodGet, "/doctors", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&doctors))
	assert.Len(t, doctors.Doctors, 2)

	rec = do(t, h, http.MethodGet, "/doctors?specialty_id=cardio", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScheduleEndpoints(t *testing.T) {
	svc := newStubScheduler()
	doctor := uuid.New()
	svc.schedules[doctor] = []appointment.ScheduleEntry{}
	h := newTestRouter(svc)

	closed := false
	body := ReplaceScheduleRequest{Schedules: []ScheduleEntryRequest{
		{DayOfWeek: 1, TimeSlots: []TimeSlotRequest{
			{StartTime: "09:30", EndTime: "10:00"},
			{StartTime: "09:00", EndTime: "09:30", IsAvailable: &closed},
		}},
		{SpecificDate: "2025-06-04", IsAvailable: &closed, Notes: "training day"},
	}}
	rec := do(t, h, http.MethodPut, "/doctors/"+doctor.String()+"/schedule", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ScheduleResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, doctor, resp.DoctorID)
	require.Len(t, resp.Schedules, 2)
	weekly := resp.Schedules[0]
	assert.True(t, weekly.IsAvailable, "availability defaults to true")
	require.Len(t, weekly.TimeSlots, 2)
	assert.Equal(t, "09:00", weekly.TimeSlots[0].StartTime)
	assert.False(t, weekly.TimeSlots[0].IsAvailable)
	assert.True(t, weekly.TimeSlots[1].IsAvailable)
	assert.Equal(t, 1, weekly.TimeSlots[1].MaxPatients)
	dated := resp.Schedules[1]
	assert.False(t, dated.IsAvailable)
	assert.Equal(t, 3, dated.DayOfWeek)
	require.NotNil(t, dated.Notes)
	assert.Equal(t, "training day", *dated.Notes)

	rec = do(t, h, http.MethodGet, "/doctors/"+doctor.String()+"/schedule", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got ScheduleResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Len(t, got.Schedules, 2)

	bad := ReplaceScheduleRequest{Schedules: []ScheduleEntryRequest{{DayOfWeek: 9}}}
	rec = do(t, h, http.MethodPut, "/doctors/"+doctor.String()+"/schedule", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Details, "day_of_week")

	overlap := ReplaceScheduleRequest{Schedules: []ScheduleEntryRequest{{DayOfWeek: 1, TimeSlots: []TimeSlotRequest{
		{StartTime: "09:00", EndTime: "10:00"},
		{StartTime: "09:30", EndTime: "10:30"},
	}}}}
	rec = do(t, h, http.MethodPut, "/doctors/"+doctor.String()+"/schedule", overlap)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/doctors/"+doctor.String()+"/schedule", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "schedules list is required")

	rec = do(t, h, http.MethodGet, "/doctors/"+uuid.NewString()+"/schedule", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "doctor_not_found", decodeError(t, rec).Error)
}

func TestTransitionEndpoint(t *testing.T) {
	svc := newStubScheduler()
	a := svc.add(appointment.StatusPending)
	h := newTestRouter(svc)
	path := "/appointments/" + a.ID.String() + "/transitions"

	rec := do(t, h, http.MethodPost, path, TransitionRequest{Action: "CANCEL", Reason: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, path, TransitionRequest{Action: "CONFIRMED"})
	require.Equal(t, http.StatusOK, rec.Code)
	var got appointment.Appointment
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, appointment.StatusConfirmed, got.Status)

	rec = do(t, h, http.MethodPost, path, TransitionRequest{Action: "CONFIRMED"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decodeError(t, rec).Error)

	rec = do(t, h, http.MethodPost, "/appointments/"+uuid.NewString()+"/transitions", TransitionRequest{Action: "CONFIRMED"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAndListAppointments(t *testing.T) {
	svc := newStubScheduler()
	a := svc.add(appointment.StatusPending)
	svc.add(appointment.StatusCancelled)
	h := newTestRouter(svc)

	rec := do(t, h, http.MethodGet, "/appointments/"+a.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/appointments?status=PENDING", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list ListAppointmentsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Equal(t, 1, list.Count)

	rec = do(t, h, http.MethodGet, "/appointments?status=LATER", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/appointments?doctor_id=123", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConflictsEndpoint(t *testing.T) {
	svc := newStubScheduler()
	a := svc.add(appointment.StatusPending)
	b := svc.add(appointment.StatusConfirmed)
	svc.mu.Lock()
	b.DoctorID = a.DoctorID
	svc.appts[b.ID] = b
	svc.mu.Unlock()
	h := newTestRouter(svc)

	rec := do(t, h, http.MethodGet, "/appointments/conflicts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ConflictsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Pairs, 1)
	assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, resp.AppointmentIDs)
}

func TestBulkEndpoint(t *testing.T) {
	svc := newStubScheduler()
	p := svc.add(appointment.StatusPending)
	done := svc.add(appointment.StatusCompleted)
	h := newTestRouter(svc)

	rec := do(t, h, http.MethodPost, "/appointments/bulk", BulkRequest{
		IDs:    []string{p.ID.String(), done.ID.String(), uuid.NewString()},
		Action: "CANCEL",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res bulk.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 2, res.Failed)
	assert.Len(t, res.Failures, 2)

	cancelled, _ := svc.GetAppointment(context.Background(), p.ID)
	require.NotNil(t, cancelled.CancelledReason)
	assert.Equal(t, bulk.CancelReason, *cancelled.CancelledReason)

	rec = do(t, h, http.MethodPost, "/appointments/bulk", BulkRequest{IDs: []string{p.ID.String()}, Action: "NO_SHOW"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/appointments/bulk", BulkRequest{IDs: []string{"x"}, Action: "CANCEL"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/appointments/bulk", BulkRequest{Action: "CANCEL"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestRouter(newStubScheduler()), http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	down := PingFunc(func(context.Context) error { return errors.New("down") })
	up := PingFunc(func(context.Context) error { return nil })

	tests := []struct {
		name     string
		pg, rd   Pinger
		status   string
		httpCode int
	}{
		{"all up", up, up, "ok", http.StatusOK},
		{"redis down", up, down, "degraded", http.StatusOK},
		{"postgres down", down, up, "error", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.pg, tt.rd, "test", "v1")
			rec := httptest.NewRecorder()
			h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			assert.Equal(t, tt.httpCode, rec.Code)
			var resp ReadinessResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.status, resp.Status)
		})
	}
}

func TestMetricsEndpointAndRecoverer(t *testing.T) {
	h := newTestRouter(newStubScheduler())
	rec := do(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	r := NewRouter(RouterConfig{Service: panicScheduler{}, Logger: zerolog.Nop()})
	rec = do(t, r, http.MethodGet, "/appointments/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type panicScheduler struct{ Scheduler }

func (panicScheduler) GetAppointment(context.Context, uuid.UUID) (*appointment.Appointment, error) {
	panic("boom")
}
