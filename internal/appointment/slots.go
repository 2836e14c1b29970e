package appointment

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ParseDate validates a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrValidation)
	}
	return d, nil
}

// ParseClock validates an HH:MM wall-clock time. Seconds are accepted and dropped.
func ParseClock(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(ClockLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("15:04:05", s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: time must be HH:MM", ErrValidation)
}

// NormalizeClock rewrites a parsable time as HH:MM.
func NormalizeClock(s string) (string, error) {
	t, err := ParseClock(s)
	if err != nil {
		return "", err
	}
	return t.Format(ClockLayout), nil
}

// SortSlots orders slots by start time ascending, in place.
func SortSlots(slots []TimeSlot) {
	sort.SliceStable(slots, func(i, j int) bool {
		return clockMinutes(slots[i].StartTime) < clockMinutes(slots[j].StartTime)
	})
}

// PartitionSlots splits slots into morning (hour < 12) and afternoon groups,
// each in ascending start time. Slots with an unparsable start are dropped.
func PartitionSlots(slots []TimeSlot) (morning, afternoon []TimeSlot) {
	sorted := make([]TimeSlot, 0, len(slots))
	for _, s := range slots {
		if clockMinutes(s.StartTime) < 0 {
			continue
		}
		sorted = append(sorted, s)
	}
	SortSlots(sorted)

	for _, s := range sorted {
		if clockMinutes(s.StartTime) < 12*60 {
			morning = append(morning, s)
		} else {
			afternoon = append(afternoon, s)
		}
	}
	return morning, afternoon
}

// markBooked flips availability off for slots whose start is in booked.
func markBooked(slots []TimeSlot, booked map[string]struct{}) {
	for i := range slots {
		if _, ok := booked[slots[i].StartTime]; ok {
			slots[i].IsAvailable = false
		}
	}
}

func clockMinutes(s string) int {
	t, err := ParseClock(s)
	if err != nil {
		return -1
	}
	return t.Hour()*60 + t.Minute()
}
