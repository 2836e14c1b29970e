package appointment

import (
	"fmt"
	"strings"
	"time"
)

// State transitions:
//
//	PENDING   --confirm-->  CONFIRMED --complete--> COMPLETED
//	PENDING   --cancel--->  CANCELLED
//	CONFIRMED --cancel--->  CANCELLED
//	PENDING|CONFIRMED --no-show--> NO_SHOW
//
// COMPLETED, CANCELLED and NO_SHOW are terminal.
func NextStatus(from Status, action Action) (Status, error) {
	switch from {
	case StatusPending:
		switch action {
		case ActionConfirm:
			return StatusConfirmed, nil
		case ActionCancel:
			return StatusCancelled, nil
		case ActionNoShow:
			return StatusNoShow, nil
		}
	case StatusConfirmed:
		switch action {
		case ActionComplete:
			return StatusCompleted, nil
		case ActionCancel:
			return StatusCancelled, nil
		case ActionNoShow:
			return StatusNoShow, nil
		}
	case StatusCompleted, StatusCancelled, StatusNoShow:
	}
	return "", fmt.Errorf("%w: %s cannot %s", ErrInvalidTransition, from, action)
}

// ValidateTransitionInput checks caller input before anything is sent or loaded.
func ValidateTransitionInput(action Action, reason string) error {
	if !action.Valid() {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, action)
	}
	if action == ActionCancel && strings.TrimSpace(reason) == "" {
		return fmt.Errorf("%w: cancel reason is required", ErrValidation)
	}
	return nil
}

// Apply returns a copy of a with the transition applied. a itself is never modified.
func Apply(a Appointment, action Action, reason string, now time.Time) (Appointment, error) {
	if err := ValidateTransitionInput(action, reason); err != nil {
		return a, err
	}
	next, err := NextStatus(a.Status, action)
	if err != nil {
		return a, err
	}

	out := a
	out.Status = next
	out.UpdatedAt = now

	switch next {
	case StatusConfirmed:
		out.ConfirmedAt = &now
	case StatusCompleted:
		out.CompletedAt = &now
	case StatusCancelled:
		r := strings.TrimSpace(reason)
		out.CancelledReason = &r
	case StatusPending, StatusNoShow:
	}

	return out, nil
}

func eventTypeFor(s Status) string {
	switch s {
	case StatusPending:
		return EventAppointmentCreated
	case StatusConfirmed:
		return EventAppointmentConfirmed
	case StatusCompleted:
		return EventAppointmentCompleted
	case StatusCancelled:
		return EventAppointmentCancelled
	case StatusNoShow:
		return EventAppointmentNoShow
	}
	return "APPOINTMENT_UPDATED"
}
