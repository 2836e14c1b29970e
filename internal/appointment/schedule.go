package appointment

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NormalizeSchedule checks a doctor's full set of working schedules and returns
// a copy with dates as YYYY-MM-DD and clocks as HH:MM. A dated entry takes its
// weekday from the date. MaxPatients defaults to 1.
func NormalizeSchedule(doctorID uuid.UUID, entries []ScheduleEntry) ([]ScheduleEntry, error) {
	out := make([]ScheduleEntry, 0, len(entries))
	seenDates := make(map[string]struct{})

	for i, e := range entries {
		e.DoctorID = doctorID

		if e.SpecificDate != nil && strings.TrimSpace(*e.SpecificDate) != "" {
			day, err := ParseDate(*e.SpecificDate)
			if err != nil {
				return nil, fmt.Errorf("schedule %d: %w", i, err)
			}
			date := day.Format(DateLayout)
			if _, dup := seenDates[date]; dup {
				return nil, fmt.Errorf("%w: schedule %d: %s is listed twice", ErrValidation, i, date)
			}
			seenDates[date] = struct{}{}
			e.SpecificDate = &date
			e.DayOfWeek = int(day.Weekday())
		} else {
			e.SpecificDate = nil
			if e.DayOfWeek < 0 || e.DayOfWeek > 6 {
				return nil, fmt.Errorf("%w: schedule %d: day_of_week must be 0-6", ErrValidation, i)
			}
		}

		if e.Notes != nil && strings.TrimSpace(*e.Notes) == "" {
			e.Notes = nil
		}

		slots, err := normalizeSlots(e.TimeSlots)
		if err != nil {
			return nil, fmt.Errorf("schedule %d: %w", i, err)
		}
		e.TimeSlots = slots
		out = append(out, e)
	}
	return out, nil
}

func normalizeSlots(in []TimeSlot) ([]TimeSlot, error) {
	slots := make([]TimeSlot, 0, len(in))
	for _, s := range in {
		start, err := NormalizeClock(s.StartTime)
		if err != nil {
			return nil, err
		}
		end, err := NormalizeClock(s.EndTime)
		if err != nil {
			return nil, err
		}
		if clockMinutes(end) <= clockMinutes(start) {
			return nil, fmt.Errorf("%w: slot %s must end after it starts", ErrValidation, start)
		}
		if s.MaxPatients < 0 {
			return nil, fmt.Errorf("%w: slot %s: max_patients must be positive", ErrValidation, start)
		}
		if s.MaxPatients == 0 {
			s.MaxPatients = 1
		}
		s.StartTime, s.EndTime = start, end
		slots = append(slots, s)
	}

	SortSlots(slots)
	for i := 1; i < len(slots); i++ {
		if clockMinutes(slots[i].StartTime) < clockMinutes(slots[i-1].EndTime) {
			return nil, fmt.Errorf("%w: slots %s and %s overlap", ErrValidation, slots[i-1].StartTime, slots[i].StartTime)
		}
	}
	return slots, nil
}
