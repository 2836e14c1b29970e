// Package booking holds the patient booking wizard: an ordered
// specialty, doctor, slot, confirm flow accumulating into one Draft.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

var (
	ErrStepOrder = errors.New("booking: previous step not completed")
	ErrClosed    = errors.New("booking: wizard is closed")
)

type Step int

const (
	StepStart Step = iota
	StepSpecialtySelected
	StepDoctorSelected
	StepSlotSelected
	StepConfirmed
)

func (s Step) String() string {
	switch s {
	case StepStart:
		return "start"
	case StepSpecialtySelected:
		return "specialty_selected"
	case StepDoctorSelected:
		return "doctor_selected"
	case StepSlotSelected:
		return "slot_selected"
	case StepConfirmed:
		return "confirmed"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Backend is the scheduling collaborator the wizard talks to.
type Backend interface {
	ListSpecialties(ctx context.Context) ([]appointment.Specialty, error)
	ListDoctors(ctx context.Context, specialtyID uuid.UUID) ([]appointment.Doctor, error)
	ResolveSlots(ctx context.Context, doctorID uuid.UUID, date string) ([]appointment.TimeSlot, error)
	CommitBooking(ctx context.Context, req appointment.BookingRequest) (*appointment.Appointment, error)
}

// Draft is the unpersisted accumulation of booking choices.
type Draft struct {
	PatientID   uuid.UUID
	SpecialtyID uuid.UUID
	DoctorID    uuid.UUID
	Date        string
	SlotID      uuid.UUID
	Time        string
	Symptoms    string
	Notes       string
}

// Request converts the draft into the committed booking form.
func (d Draft) Request() appointment.BookingRequest {
	req := appointment.BookingRequest{
		PatientID:       d.PatientID,
		DoctorID:        d.DoctorID,
		TimeSlotID:      d.SlotID,
		AppointmentDate: d.Date,
		AppointmentTime: d.Time,
		Symptoms:        strings.TrimSpace(d.Symptoms),
		Notes:           strings.TrimSpace(d.Notes),
	}
	if d.SpecialtyID != uuid.Nil {
		id := d.SpecialtyID
		req.SpecialtyID = &id
	}
	return req
}

// Validate reports the first missing piece of the draft as appointment.ErrValidation.
func (d Draft) Validate() error {
	if d.SpecialtyID == uuid.Nil {
		return fmt.Errorf("%w: specialty is required", appointment.ErrValidation)
	}
	if strings.TrimSpace(d.Time) == "" {
		return fmt.Errorf("%w: appointment time is required", appointment.ErrValidation)
	}
	return d.Request().Validate()
}

type SlotGroups struct {
	Morning   []appointment.TimeSlot `json:"morning"`
	Afternoon []appointment.TimeSlot `json:"afternoon"`
}

// Empty means there is nothing to offer for the day. Callers render a "no slots" state.
func (g SlotGroups) Empty() bool {
	return len(g.Morning) == 0 && len(g.Afternoon) == 0
}

type slotKey struct {
	doctorID uuid.UUID
	date     string
}

type Wizard struct {
	backend Backend
	logger  zerolog.Logger

	step        Step
	draft       Draft
	specialties []appointment.Specialty
	doctors     map[uuid.UUID][]appointment.Doctor
	slots       map[slotKey][]appointment.TimeSlot
	result      *appointment.Appointment
	closed      bool
}

type Option func(*Wizard)

func WithLogger(l zerolog.Logger) Option {
	return func(w *Wizard) { w.logger = l }
}

// NewWizard starts a fresh booking for patientID. Every booking gets its own wizard.
func NewWizard(backend Backend, patientID uuid.UUID, opts ...Option) *Wizard {
	w := &Wizard{
		backend: backend,
		logger:  zerolog.Nop(),
		draft:   Draft{PatientID: patientID},
		doctors: make(map[uuid.UUID][]appointment.Doctor),
		slots:   make(map[slotKey][]appointment.TimeSlot),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Wizard) Step() Step { return w.step }

// Draft returns a copy of the current draft.
func (w *Wizard) Draft() Draft { return w.draft }

// Result is the appointment created by a successful commit.
func (w *Wizard) Result() *appointment.Appointment { return w.result }

// Specialties lists what the clinic offers. The first successful listing is reused.
func (w *Wizard) Specialties(ctx context.Context) ([]appointment.Specialty, error) {
	if err := w.open(); err != nil {
		return nil, err
	}
	if w.specialties != nil {
		return w.specialties, nil
	}
	specialties, err := w.backend.ListSpecialties(ctx)
	if err != nil {
		return nil, fmt.Errorf("list specialties: %w", err)
	}
	if specialties == nil {
		specialties = []appointment.Specialty{}
	}
	w.specialties = specialties
	return specialties, nil
}

// SelectSpecialty picks one of the listed specialties. A different specialty drops
// the chosen doctor and slot.
func (w *Wizard) SelectSpecialty(ctx context.Context, id uuid.UUID) error {
	if err := w.open(); err != nil {
		return err
	}
	if id == uuid.Nil {
		return fmt.Errorf("%w: specialty is required", appointment.ErrValidation)
	}
	specialties, err := w.Specialties(ctx)
	if err != nil {
		return err
	}
	if !containsSpecialty(specialties, id) {
		return appointment.ErrSpecialtyNotFound
	}

	if id != w.draft.SpecialtyID {
		w.draft.SpecialtyID = id
		w.clearDoctor()
	}
	w.step = StepSpecialtySelected
	return nil
}

// Doctors lists the doctors practising the selected specialty.
func (w *Wizard) Doctors(ctx context.Context) ([]appointment.Doctor, error) {
	if err := w.open(); err != nil {
		return nil, err
	}
	if w.step < StepSpecialtySelected {
		return nil, fmt.Errorf("%w: choose a specialty first", ErrStepOrder)
	}
	specialtyID := w.draft.SpecialtyID
	if doctors, ok := w.doctors[specialtyID]; ok {
		return doctors, nil
	}
	doctors, err := w.backend.ListDoctors(ctx, specialtyID)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	if doctors == nil {
		doctors = []appointment.Doctor{}
	}
	w.doctors[specialtyID] = doctors
	return doctors, nil
}

// SelectDoctor picks a doctor of the selected specialty. A different doctor drops
// any chosen slot. Reselecting the same doctor keeps the slot, and returns to the
// slot step while that slot is still offered.
func (w *Wizard) SelectDoctor(ctx context.Context, id uuid.UUID) error {
	if err := w.open(); err != nil {
		return err
	}
	if w.step < StepSpecialtySelected {
		return fmt.Errorf("%w: choose a specialty first", ErrStepOrder)
	}
	if id == uuid.Nil {
		return fmt.Errorf("%w: doctor is required", appointment.ErrValidation)
	}
	doctors, err := w.Doctors(ctx)
	if err != nil {
		return err
	}
	if !containsDoctor(doctors, id) {
		return fmt.Errorf("%w: doctor %s does not practise the chosen specialty", appointment.ErrValidation, id)
	}

	if id != w.draft.DoctorID {
		w.draft.DoctorID = id
		w.clearSlot()
	}
	w.step = StepDoctorSelected
	if w.draft.SlotID == uuid.Nil {
		return nil
	}
	if w.slotStillOffered() {
		w.step = StepSlotSelected
	} else {
		w.clearSlot()
	}
	return nil
}

// Slots resolves the selected doctor's slots on date, split at noon.
// Lookup failures yield empty groups. Results are reused per doctor and date.
func (w *Wizard) Slots(ctx context.Context, date string) (SlotGroups, error) {
	if err := w.open(); err != nil {
		return SlotGroups{}, err
	}
	if w.step < StepDoctorSelected {
		return SlotGroups{}, fmt.Errorf("%w: choose a doctor first", ErrStepOrder)
	}
	day, err := appointment.ParseDate(date)
	if err != nil {
		return SlotGroups{}, err
	}
	key := slotKey{doctorID: w.draft.DoctorID, date: day.Format(appointment.DateLayout)}

	slots, ok := w.slots[key]
	if !ok {
		slots, err = w.backend.ResolveSlots(ctx, key.doctorID, key.date)
		if err != nil {
			w.logger.Warn().Err(err).
				Str("doctor_id", key.doctorID.String()).
				Str("date", key.date).
				Msg("slot lookup failed")
			return SlotGroups{Morning: []appointment.TimeSlot{}, Afternoon: []appointment.TimeSlot{}}, nil
		}
		w.slots[key] = slots
	}

	morning, afternoon := appointment.PartitionSlots(slots)
	return SlotGroups{Morning: morning, Afternoon: afternoon}, nil
}

// RefreshSlots drops cached slot listings so the next Slots call refetches.
func (w *Wizard) RefreshSlots() {
	w.slots = make(map[slotKey][]appointment.TimeSlot)
}

// SelectSlot picks one of the slots previously resolved for the doctor on date.
func (w *Wizard) SelectSlot(date string, slotID uuid.UUID) error {
	if err := w.open(); err != nil {
		return err
	}
	if w.step < StepDoctorSelected {
		return fmt.Errorf("%w: choose a doctor first", ErrStepOrder)
	}
	day, err := appointment.ParseDate(date)
	if err != nil {
		return err
	}
	date = day.Format(appointment.DateLayout)

	slots, ok := w.slots[slotKey{doctorID: w.draft.DoctorID, date: date}]
	if !ok {
		return fmt.Errorf("%w: load slots for %s first", ErrStepOrder, date)
	}

	for _, s := range slots {
		if s.ID != slotID {
			continue
		}
		if !s.IsAvailable {
			return appointment.ErrSlotUnavailable
		}
		w.draft.Date = date
		w.draft.SlotID = s.ID
		w.draft.Time = s.StartTime
		w.step = StepSlotSelected
		return nil
	}
	return appointment.ErrSlotNotFound
}

func (w *Wizard) SetDetails(symptoms, notes string) error {
	if err := w.open(); err != nil {
		return err
	}
	w.draft.Symptoms = symptoms
	w.draft.Notes = notes
	return nil
}

// Back re-enters the previous step. The draft is kept so the same choice can be made again.
func (w *Wizard) Back() error {
	if err := w.open(); err != nil {
		return err
	}
	if w.step > StepStart {
		w.step--
	}
	return nil
}

// Commit sends the draft as one booking request. On failure the draft is kept for a retry;
// on success the wizard is terminal.
func (w *Wizard) Commit(ctx context.Context) (*appointment.Appointment, error) {
	if err := w.open(); err != nil {
		return nil, err
	}
	if err := w.draft.Validate(); err != nil {
		return nil, err
	}
	if w.step < StepSlotSelected {
		return nil, fmt.Errorf("%w: choose a slot first", ErrStepOrder)
	}

	appt, err := w.backend.CommitBooking(ctx, w.draft.Request())
	if err != nil {
		w.logger.Warn().Err(err).Str("doctor_id", w.draft.DoctorID.String()).Msg("booking commit failed")
		if errors.Is(err, appointment.ErrSlotTaken) || errors.Is(err, appointment.ErrSlotUnavailable) {
			delete(w.slots, slotKey{doctorID: w.draft.DoctorID, date: w.draft.Date})
		}
		return nil, err
	}

	w.result = appt
	w.draft = Draft{}
	w.doctors = nil
	w.slots = nil
	w.step = StepConfirmed
	w.closed = true
	return appt, nil
}

// Cancel abandons the booking. Nothing has been persisted before Commit, so nothing is undone.
func (w *Wizard) Cancel() {
	if w.step == StepConfirmed {
		return
	}
	w.draft = Draft{}
	w.doctors = nil
	w.slots = nil
	w.step = StepStart
	w.closed = true
}

func (w *Wizard) open() error {
	if w.closed {
		return ErrClosed
	}
	return nil
}

// slotStillOffered reports whether the drafted slot is available in the latest
// listing held for its doctor and date.
func (w *Wizard) slotStillOffered() bool {
	slots, ok := w.slots[slotKey{doctorID: w.draft.DoctorID, date: w.draft.Date}]
	if !ok {
		return false
	}
	for _, s := range slots {
		if s.ID == w.draft.SlotID {
			return s.IsAvailable
		}
	}
	return false
}

func containsSpecialty(specialties []appointment.Specialty, id uuid.UUID) bool {
	for _, sp := range specialties {
		if sp.ID == id {
			return true
		}
	}
	return false
}

func containsDoctor(doctors []appointment.Doctor, id uuid.UUID) bool {
	for _, d := range doctors {
		if d.ID == id {
			return true
		}
	}
	return false
}

func (w *Wizard) clearDoctor() {
	w.draft.DoctorID = uuid.Nil
	w.clearSlot()
}

func (w *Wizard) clearSlot() {
	w.draft.Date = ""
	w.draft.SlotID = uuid.Nil
	w.draft.Time = ""
}
