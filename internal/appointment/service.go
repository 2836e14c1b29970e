package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentNoShow    = "APPOINTMENT_NO_SHOW"
)

var tracer = otel.Tracer("clinic.internal.appointment")

type Service struct {
	repo    Repository
	locker  redisclient.Locker
	cache   redisclient.SlotCache
	cfg     config.Config
	logger  zerolog.Logger
	metrics *metrics.SchedulingMetrics
	now     func() time.Time
}

type Option func(*Service)

// WithSlotCache serves slot resolution from cache when set.
func WithSlotCache(c redisclient.SlotCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithMetrics(m *metrics.SchedulingMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveSlots lists every slot of the doctor on date with its availability.
func (s *Service) ResolveSlots(ctx context.Context, doctorID uuid.UUID, date string) ([]TimeSlot, error) {
	ctx, span := tracer.Start(ctx, "appointment.resolve_slots")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.doctor_id", doctorID.String()), attribute.String("clinic.date", date))

	day, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	date = day.Format(DateLayout)

	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	key := slotCacheKey(doctorID, date)
	if cached, ok := s.cachedSlots(ctx, key); ok {
		return cached, nil
	}

	slots, err := s.loadSlots(ctx, doctorID, day)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve slots")
		return nil, err
	}

	s.storeSlots(ctx, key, slots)
	return slots, nil
}

func (s *Service) loadSlots(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]TimeSlot, error) {
	date := day.Format(DateLayout)

	slots, err := s.repo.ListSlotsForDate(ctx, doctorID, day)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}

	booked, err := s.repo.ListBookedTimes(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("list booked times: %w", err)
	}

	taken := make(map[string]struct{}, len(booked))
	for _, t := range booked {
		taken[t] = struct{}{}
	}
	markBooked(slots, taken)
	SortSlots(slots)

	if slots == nil {
		slots = []TimeSlot{}
	}
	return slots, nil
}

// CommitBooking reserves a slot and creates a PENDING appointment.
// A Redis lock per doctor/date/time makes the active-appointment check and
// the insert one critical section across api-server replicas.
func (s *Service) CommitBooking(ctx context.Context, req BookingRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.commit_booking")
	defer span.End()

	appt, err := s.commitBooking(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit booking")
		s.metrics.ObserveBooking(resultLabel(err))
		return nil, err
	}

	span.SetAttributes(attribute.String("clinic.appointment_id", appt.ID.String()))
	s.metrics.ObserveBooking("success")
	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("doctor_id", appt.DoctorID.String()).
		Str("date", appt.AppointmentDate).
		Str("time", appt.AppointmentTime).
		Msg("appointment booked")
	return appt, nil
}

func (s *Service) commitBooking(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	day, _ := ParseDate(req.AppointmentDate)
	date := day.Format(DateLayout)

	if _, err := s.repo.GetPatientByID(ctx, req.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	doctor, err := s.repo.GetDoctorByID(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	specialtyID, err := s.bookingSpecialty(ctx, req.SpecialtyID, doctor)
	if err != nil {
		return nil, err
	}

	slots, err := s.repo.ListSlotsForDate(ctx, req.DoctorID, day)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}

	var slot *TimeSlot
	for i := range slots {
		if slots[i].ID == req.TimeSlotID {
			slot = &slots[i]
			break
		}
	}
	if slot == nil {
		return nil, ErrSlotNotFound
	}
	if !slot.IsAvailable {
		return nil, ErrSlotUnavailable
	}
	if req.AppointmentTime != "" {
		clock, _ := NormalizeClock(req.AppointmentTime)
		if clock != slot.StartTime {
			return nil, fmt.Errorf("%w: appointment_time %s does not match slot start %s", ErrValidation, clock, slot.StartTime)
		}
	}

	slotID := slot.ID

	var created *Appointment
	lockKey := redisclient.SlotKey{DoctorID: req.DoctorID, Date: date, Time: slot.StartTime}

	err = s.locker.WithSlotLock(ctx, lockKey, func(lockCtx context.Context) error {
		// Inside the critical section re-check for an active appointment at this time
		existing, err := s.repo.FindActiveAppointment(lockCtx, req.DoctorID, date, slot.StartTime)
		if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			return fmt.Errorf("check active appointment: %w", err)
		}
		if existing != nil {
			return ErrSlotTaken
		}

		appt, err := s.repo.CreateAppointment(lockCtx, Appointment{
			DoctorID:        req.DoctorID,
			PatientID:       req.PatientID,
			SpecialtyID:     specialtyID,
			TimeSlotID:      &slotID,
			AppointmentDate: date,
			AppointmentTime: slot.StartTime,
			Status:          StatusPending,
			Symptoms:        req.Symptoms,
			Notes:           req.Notes,
		})
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}

		created = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentCreated, map[string]any{
			"doctor_id":    req.DoctorID.String(),
			"patient_id":   req.PatientID.String(),
			"time_slot_id": slotID.String(),
			"date":         date,
			"time":         slot.StartTime,
		})

		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.invalidateSlots(ctx, req.DoctorID, date)
	return created, nil
}

// bookingSpecialty picks the specialty stored on a new appointment. Without a
// known requested specialty the doctor's own is used. A known specialty the
// doctor does not practise is rejected.
func (s *Service) bookingSpecialty(ctx context.Context, requested *uuid.UUID, doctor *Doctor) (*uuid.UUID, error) {
	if requested == nil || *requested == uuid.Nil {
		return doctor.SpecialtyID, nil
	}

	if _, err := s.repo.GetSpecialtyByID(ctx, *requested); err != nil {
		if errors.Is(err, ErrSpecialtyNotFound) {
			s.logger.Warn().
				Str("specialty_id", requested.String()).
				Str("doctor_id", doctor.ID.String()).
				Msg("unknown specialty on booking, using the doctor's")
			return doctor.SpecialtyID, nil
		}
		return nil, fmt.Errorf("load specialty: %w", err)
	}

	if doctor.SpecialtyID != nil && *doctor.SpecialtyID != *requested {
		return nil, fmt.Errorf("%w: doctor %s does not practise specialty %s", ErrValidation, doctor.ID, *requested)
	}
	return requested, nil
}

// Transition applies one lifecycle action to an appointment.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, action Action, reason string) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.transition")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.appointment_id", id.String()), attribute.String("clinic.action", string(action)))

	updated, err := s.transition(ctx, id, action, reason)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transition")
		s.metrics.ObserveTransition(string(action), resultLabel(err))
		return nil, err
	}

	s.metrics.ObserveTransition(string(action), "success")
	s.logger.Info().
		Str("appointment_id", id.String()).
		Str("action", string(action)).
		Str("status", string(updated.Status)).
		Msg("appointment transitioned")
	return updated, nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, action Action, reason string) (*Appointment, error) {
	if err := ValidateTransitionInput(action, reason); err != nil {
		return nil, err
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	next, err := Apply(*appt, action, reason, s.now())
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateAppointmentTransition(ctx, next, appt.Status)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return nil, err
		}
		return nil, fmt.Errorf("update appointment: %w", err)
	}

	payload := map[string]any{
		"from":   string(appt.Status),
		"to":     string(updated.Status),
		"action": string(action),
	}
	if updated.CancelledReason != nil {
		payload["reason"] = *updated.CancelledReason
	}
	s.logEvent(ctx, updated.ID, eventTypeFor(updated.Status), payload)

	s.invalidateSlots(ctx, updated.DoctorID, updated.AppointmentDate)
	return updated, nil
}

// GetAppointment retrieves one appointment by ID
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// ListAppointments returns the filtered appointment collection, fully loaded.
func (s *Service) ListAppointments(ctx context.Context, f Filter) ([]Appointment, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	appts, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	if appts == nil {
		appts = []Appointment{}
	}
	return appts, nil
}

// Conflicts runs conflict detection over one complete listing.
func (s *Service) Conflicts(ctx context.Context, f Filter) ([]ConflictPair, error) {
	appts, err := s.ListAppointments(ctx, f)
	if err != nil {
		return nil, err
	}
	pairs := ConflictPairs(appts)
	s.metrics.SetConflicted(len(DetectConflicts(appts)))
	return pairs, nil
}

func (s *Service) ListSpecialties(ctx context.Context) ([]Specialty, error) {
	specialties, err := s.repo.ListSpecialties(ctx)
	if err != nil {
		return nil, fmt.Errorf("list specialties: %w", err)
	}
	if specialties == nil {
		specialties = []Specialty{}
	}
	return specialties, nil
}

// ListDoctors returns the doctors practising specialtyID, or every doctor for uuid.Nil.
func (s *Service) ListDoctors(ctx context.Context, specialtyID uuid.UUID) ([]Doctor, error) {
	doctors, err := s.repo.ListDoctors(ctx, specialtyID)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	if doctors == nil {
		doctors = []Doctor{}
	}
	return doctors, nil
}

func (s *Service) GetSchedule(ctx context.Context, doctorID uuid.UUID) ([]ScheduleEntry, error) {
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	entries, err := s.repo.GetSchedule(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	if entries == nil {
		entries = []ScheduleEntry{}
	}
	return entries, nil
}

// ReplaceSchedule swaps the doctor's working schedules and slots for entries,
// then drops every cached slot listing of the doctor. Existing appointments are
// kept; they lose their slot reference only.
func (s *Service) ReplaceSchedule(ctx context.Context, doctorID uuid.UUID, entries []ScheduleEntry) ([]ScheduleEntry, error) {
	ctx, span := tracer.Start(ctx, "appointment.replace_schedule")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.doctor_id", doctorID.String()), attribute.Int("clinic.schedules", len(entries)))

	normalized, err := NormalizeSchedule(doctorID, entries)
	if err != nil {
		return nil, err
	}

	saved, err := s.repo.ReplaceSchedule(ctx, doctorID, normalized)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "replace schedule")
		return nil, fmt.Errorf("replace schedule: %w", err)
	}

	s.invalidateDoctorSlots(ctx, doctorID)
	s.logger.Info().
		Str("doctor_id", doctorID.String()).
		Int("schedules", len(saved)).
		Msg("doctor schedule replaced")
	return saved, nil
}

// SweepNoShows marks active appointments whose start plus the configured grace
// has passed as NO_SHOW. Each appointment is handled independently.
func (s *Service) SweepNoShows(ctx context.Context) (marked, failed int, err error) {
	loc := s.cfg.Location()
	now := s.now().In(loc)

	candidates, err := s.repo.FindActiveBefore(ctx, now.Format(DateLayout))
	if err != nil {
		return 0, 0, fmt.Errorf("find active appointments: %w", err)
	}

	for _, appt := range candidates {
		at, err := appt.ScheduledAt(loc)
		if err != nil {
			s.logger.Warn().Err(err).Str("appointment_id", appt.ID.String()).Msg("unparsable schedule, skipping")
			continue
		}
		if at.Add(s.cfg.NoShowGrace).After(now) {
			continue
		}

		if _, err := s.Transition(ctx, appt.ID, ActionNoShow, ""); err != nil {
			failed++
			s.logger.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to mark no-show")
			continue
		}
		marked++
	}

	s.metrics.ObserveNoShowSweep(marked, failed)
	return marked, failed, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}

func (s *Service) cachedSlots(ctx context.Context, key string) ([]TimeSlot, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("slot cache read failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var slots []TimeSlot
	if err := json.Unmarshal(raw, &slots); err != nil {
		return nil, false
	}
	return slots, true
}

func (s *Service) storeSlots(ctx context.Context, key string, slots []TimeSlot) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(slots)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("slot cache write failed")
	}
}

func (s *Service) invalidateSlots(ctx context.Context, doctorID uuid.UUID, date string) {
	if s.cache == nil {
		return
	}
	key := slotCacheKey(doctorID, date)
	if err := s.cache.Invalidate(context.WithoutCancel(ctx), key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("slot cache invalidation failed")
	}
}

func (s *Service) invalidateDoctorSlots(ctx context.Context, doctorID uuid.UUID) {
	if s.cache == nil {
		return
	}
	prefix := doctorID.String() + ":"
	if err := s.cache.InvalidatePrefix(context.WithoutCancel(ctx), prefix); err != nil {
		s.logger.Warn().Err(err).Str("doctor_id", doctorID.String()).Msg("slot cache invalidation failed")
	}
}

func slotCacheKey(doctorID uuid.UUID, date string) string {
	return doctorID.String() + ":" + date
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrAppointmentNotFound),
		errors.Is(err, ErrDoctorNotFound),
		errors.Is(err, ErrSpecialtyNotFound),
		errors.Is(err, ErrPatientNotFound),
		errors.Is(err, ErrSlotNotFound):
		return "not_found"
	case errors.Is(err, ErrSlotTaken),
		errors.Is(err, ErrSlotUnavailable),
		errors.Is(err, ErrSlotBeingBooked):
		return "slot_conflict"
	default:
		return "error"
	}
}
