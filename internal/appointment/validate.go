package appointment

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Validate checks that the request carries everything needed to reserve a slot.
func (r BookingRequest) Validate() error {
	if r.PatientID == uuid.Nil {
		return fmt.Errorf("%w: patient_id is required", ErrValidation)
	}
	if r.DoctorID == uuid.Nil {
		return fmt.Errorf("%w: doctor_id is required", ErrValidation)
	}
	if strings.TrimSpace(r.AppointmentDate) == "" {
		return fmt.Errorf("%w: appointment_date is required", ErrValidation)
	}
	if _, err := ParseDate(r.AppointmentDate); err != nil {
		return err
	}
	if r.TimeSlotID == uuid.Nil {
		return fmt.Errorf("%w: time_slot_id is required", ErrValidation)
	}
	if r.AppointmentTime != "" {
		if _, err := ParseClock(r.AppointmentTime); err != nil {
			return err
		}
	}
	if strings.TrimSpace(r.Symptoms) == "" {
		return fmt.Errorf("%w: symptoms are required", ErrValidation)
	}
	return nil
}

func (f Filter) Validate() error {
	if f.Status != "" && !f.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, f.Status)
	}
	if f.DateFrom != "" {
		if _, err := ParseDate(f.DateFrom); err != nil {
			return err
		}
	}
	if f.DateTo != "" {
		if _, err := ParseDate(f.DateTo); err != nil {
			return err
		}
	}
	return nil
}
