package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetSpecialtyByID(ctx context.Context, id uuid.UUID) (*Specialty, error)

	// Catalogue for the booking wizard. uuid.Nil lists every doctor.
	ListSpecialties(ctx context.Context) ([]Specialty, error)
	ListDoctors(ctx context.Context, specialtyID uuid.UUID) ([]Doctor, error)

	// Working schedules with their slots. ReplaceSchedule swaps the whole set
	// atomically and returns it with assigned IDs.
	GetSchedule(ctx context.Context, doctorID uuid.UUID) ([]ScheduleEntry, error)
	ReplaceSchedule(ctx context.Context, doctorID uuid.UUID, entries []ScheduleEntry) ([]ScheduleEntry, error)

	// Slots of every working schedule of the doctor that applies on date,
	// sorted by start time. IsAvailable already folds in the schedule flag.
	ListSlotsForDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]TimeSlot, error)

	// Start times held by non-cancelled appointments of the doctor on date
	ListBookedTimes(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error)

	// For conflict checks
	FindActiveAppointment(ctx context.Context, doctorID uuid.UUID, date, clock string) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, f Filter) ([]Appointment, error)

	// Creation and updates
	CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	UpdateAppointmentTransition(ctx context.Context, a Appointment, from Status) (*Appointment, error)

	// No-show sweeper
	FindActiveBefore(ctx context.Context, date string) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
