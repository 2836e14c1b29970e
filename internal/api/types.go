package api

import (
	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

type CreateAppointmentRequest struct {
	PatientID       string `json:"patient_id" validate:"required,uuid"`
	DoctorID        string `json:"doctor_id" validate:"required,uuid"`
	SpecialtyID     string `json:"specialty_id,omitempty" validate:"omitempty,uuid"`
	TimeSlotID      string `json:"time_slot_id" validate:"required,uuid"`
	AppointmentDate string `json:"appointment_date" validate:"required,datetime=2006-01-02"`
	AppointmentTime string `json:"appointment_time,omitempty"`
	Symptoms        string `json:"symptoms" validate:"required"`
	Notes           string `json:"notes,omitempty" validate:"max=2000"`
}

// BookingRequest converts the validated body. IDs are known to parse.
func (r CreateAppointmentRequest) BookingRequest() appointment.BookingRequest {
	req := appointment.BookingRequest{
		PatientID:       uuid.MustParse(r.PatientID),
		DoctorID:        uuid.MustParse(r.DoctorID),
		TimeSlotID:      uuid.MustParse(r.TimeSlotID),
		AppointmentDate: r.AppointmentDate,
		AppointmentTime: r.AppointmentTime,
		Symptoms:        r.Symptoms,
		Notes:           r.Notes,
	}
	if r.SpecialtyID != "" {
		id := uuid.MustParse(r.SpecialtyID)
		req.SpecialtyID = &id
	}
	return req
}

type TransitionRequest struct {
	Action string `json:"action" validate:"required"`
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

type BulkRequest struct {
	IDs    []string `json:"ids" validate:"required,min=1,max=500,dive,uuid"`
	Action string   `json:"action" validate:"required"`
}

func (r BulkRequest) ParsedIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(r.IDs))
	for _, s := range r.IDs {
		ids = append(ids, uuid.MustParse(s))
	}
	return ids
}

type TimeSlotRequest struct {
	StartTime   string `json:"start_time" validate:"required"`
	EndTime     string `json:"end_time" validate:"required"`
	MaxPatients int    `json:"max_patients,omitempty" validate:"gte=0,lte=100"`
	IsAvailable *bool  `json:"is_available,omitempty"`
}

// ScheduleEntryRequest is one working schedule. SpecificDate, when set, makes
// the entry a one-day override. Availability defaults to true.
type ScheduleEntryRequest struct {
	DayOfWeek    int               `json:"day_of_week" validate:"gte=0,lte=6"`
	SpecificDate string            `json:"specific_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	IsAvailable  *bool             `json:"is_available,omitempty"`
	Notes        string            `json:"notes,omitempty" validate:"max=500"`
	TimeSlots    []TimeSlotRequest `json:"time_slots" validate:"dive"`
}

// ReplaceScheduleRequest carries the doctor's complete new schedule. An empty
// list clears it.
type ReplaceScheduleRequest struct {
	Schedules []ScheduleEntryRequest `json:"schedules" validate:"required,max=400,dive"`
}

func (r ReplaceScheduleRequest) Entries() []appointment.ScheduleEntry {
	entries := make([]appointment.ScheduleEntry, 0, len(r.Schedules))
	for _, s := range r.Schedules {
		e := appointment.ScheduleEntry{
			WorkingSchedule: appointment.WorkingSchedule{
				DayOfWeek:   s.DayOfWeek,
				IsAvailable: boolOr(s.IsAvailable, true),
			},
			TimeSlots: make([]appointment.TimeSlot, 0, len(s.TimeSlots)),
		}
		if s.SpecificDate != "" {
			date := s.SpecificDate
			e.SpecificDate = &date
		}
		if s.Notes != "" {
			notes := s.Notes
			e.Notes = &notes
		}
		for _, ts := range s.TimeSlots {
			e.TimeSlots = append(e.TimeSlots, appointment.TimeSlot{
				StartTime:   ts.StartTime,
				EndTime:     ts.EndTime,
				MaxPatients: ts.MaxPatients,
				IsAvailable: boolOr(ts.IsAvailable, true),
			})
		}
		entries = append(entries, e)
	}
	return entries
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

type SpecialtiesResponse struct {
	Specialties []appointment.Specialty `json:"specialties"`
}

type DoctorsResponse struct {
	Doctors []appointment.Doctor `json:"doctors"`
}

type ScheduleResponse struct {
	DoctorID  uuid.UUID                   `json:"doctor_id"`
	Schedules []appointment.ScheduleEntry `json:"schedules"`
}

type SlotsResponse struct {
	DoctorID uuid.UUID              `json:"doctor_id"`
	Date     string                 `json:"date"`
	Slots    []appointment.TimeSlot `json:"slots"`
}

type ListAppointmentsResponse struct {
	Appointments []appointment.Appointment `json:"appointments"`
	Count        int                       `json:"count"`
}

type ConflictsResponse struct {
	Pairs          []appointment.ConflictPair `json:"pairs"`
	AppointmentIDs []uuid.UUID                `json:"appointment_ids"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
