package appointment

import (
	"time"

	"github.com/google/uuid"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusNoShow    Status = "NO_SHOW"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Active reports whether the appointment still holds its slot and can conflict.
func (s Status) Active() bool {
	switch s {
	case StatusPending, StatusConfirmed:
		return true
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return false
	}
	return false
}

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	case StatusPending, StatusConfirmed:
		return false
	}
	return false
}

// Label is the human readable status name shown to staff and patients.
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "Pending confirmation"
	case StatusConfirmed:
		return "Confirmed"
	case StatusCompleted:
		return "Completed"
	case StatusCancelled:
		return "Cancelled"
	case StatusNoShow:
		return "No show"
	}
	return "Unknown"
}

// Variant is the badge style for the status.
func (s Status) Variant() string {
	switch s {
	case StatusPending:
		return "warning"
	case StatusConfirmed:
		return "info"
	case StatusCompleted:
		return "success"
	case StatusCancelled:
		return "error"
	case StatusNoShow:
		return "neutral"
	}
	return "neutral"
}

// Action is a lifecycle event requested against an appointment.
type Action string

const (
	ActionConfirm  Action = "CONFIRMED"
	ActionComplete Action = "COMPLETED"
	ActionCancel   Action = "CANCEL"
	ActionNoShow   Action = "NO_SHOW"
)

func (a Action) Valid() bool {
	switch a {
	case ActionConfirm, ActionComplete, ActionCancel, ActionNoShow:
		return true
	}
	return false
}

type Specialty struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type Doctor struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	SpecialtyID *uuid.UUID `json:"specialty_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type Patient struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     *string   `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WorkingSchedule applies weekly on DayOfWeek (0=Sunday) unless SpecificDate is set.
type WorkingSchedule struct {
	ID           uuid.UUID `json:"id"`
	DoctorID     uuid.UUID `json:"doctor_id"`
	DayOfWeek    int       `json:"day_of_week"`
	SpecificDate *string   `json:"specific_date,omitempty"`
	IsAvailable  bool      `json:"is_available"`
	Notes        *string   `json:"notes,omitempty"`
}

// TimeSlot is one bookable unit of a doctor's calendar for one date.
type TimeSlot struct {
	ID          uuid.UUID `json:"id"`
	StartTime   string    `json:"start_time"`
	EndTime     string    `json:"end_time"`
	MaxPatients int       `json:"max_patients"`
	IsAvailable bool      `json:"is_available"`
}

// ScheduleEntry is one working schedule of a doctor with the slots it opens.
type ScheduleEntry struct {
	WorkingSchedule
	TimeSlots []TimeSlot `json:"time_slots"`
}

type Appointment struct {
	ID              uuid.UUID  `json:"id"`
	DoctorID        uuid.UUID  `json:"doctor_id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	SpecialtyID     *uuid.UUID `json:"specialty_id,omitempty"`
	TimeSlotID      *uuid.UUID `json:"time_slot_id,omitempty"`
	AppointmentDate string     `json:"appointment_date"`
	AppointmentTime string     `json:"appointment_time"`
	Status          Status     `json:"status"`
	Symptoms        string     `json:"symptoms"`
	Notes           string     `json:"notes,omitempty"`
	CancelledReason *string    `json:"cancelled_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	ConfirmedAt     *time.Time `json:"confirmed_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// ScheduledAt combines the appointment date and time in loc.
func (a Appointment) ScheduledAt(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(DateLayout+" "+ClockLayout, a.AppointmentDate+" "+a.AppointmentTime, loc)
}

// BookingRequest is the committed form of a booking draft.
type BookingRequest struct {
	PatientID       uuid.UUID  `json:"patient_id"`
	DoctorID        uuid.UUID  `json:"doctor_id"`
	SpecialtyID     *uuid.UUID `json:"specialty_id,omitempty"`
	TimeSlotID      uuid.UUID  `json:"time_slot_id"`
	AppointmentDate string     `json:"appointment_date"`
	AppointmentTime string     `json:"appointment_time,omitempty"`
	Symptoms        string     `json:"symptoms"`
	Notes           string     `json:"notes,omitempty"`
}

// Filter narrows appointment listings. Zero fields are ignored.
type Filter struct {
	Status    Status
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	DateFrom  string
	DateTo    string
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
