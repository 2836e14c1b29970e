package appointment

import "errors"

var (
	ErrValidation          = errors.New("validation error")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrSpecialtyNotFound   = errors.New("specialty not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrSlotUnavailable     = errors.New("slot is not available on this date")
	ErrSlotTaken           = errors.New("slot already has an active appointment")
	ErrSlotBeingBooked     = errors.New("slot is currently being booked, please retry")

	// ErrUnavailable means the scheduling backend could not be reached at all.
	ErrUnavailable = errors.New("scheduling backend unavailable")
)
