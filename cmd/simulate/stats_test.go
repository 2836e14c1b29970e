package main

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, outcomeSuccess, classify(nil))
	assert.Equal(t, outcomeConflict, classify(fmt.Errorf("commit: %w", appointment.ErrSlotTaken)))
	assert.Equal(t, outcomeConflict, classify(appointment.ErrSlotBeingBooked))
	assert.Equal(t, outcomeConflict, classify(appointment.ErrInvalidTransition))
	assert.Equal(t, outcomeError, classify(appointment.ErrUnavailable))
	assert.Equal(t, outcomeError, classify(errors.New("boom")))
}

func TestOperationStats(t *testing.T) {
	var o OperationStats
	for i := 1; i <= 20; i++ {
		o.Record(time.Duration(i)*time.Millisecond, nil)
	}
	o.Record(time.Millisecond, appointment.ErrSlotTaken)
	o.Record(time.Millisecond, errors.New("reset"))

	assert.EqualValues(t, 22, o.Total)
	assert.EqualValues(t, 20, o.Success)
	assert.EqualValues(t, 1, o.Conflict)
	assert.EqualValues(t, 1, o.Error)

	_, p50, p95, max := o.Latencies()
	assert.Equal(t, 10*time.Millisecond, p50)
	assert.Equal(t, 19*time.Millisecond, p95)
	assert.Equal(t, 20*time.Millisecond, max)
}

func TestReportSkipsIdleOperations(t *testing.T) {
	var r Report
	r.Booking.Record(time.Millisecond, nil)

	var buf bytes.Buffer
	r.Write(&buf, time.Second, 2)

	assert.Contains(t, buf.String(), "Booking wizard")
	assert.NotContains(t, buf.String(), "Bulk requests")
}

func TestNextWeekday(t *testing.T) {
	friday := time.Date(2025, 6, 6, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Monday, nextWeekday(friday, 1).Weekday())
	assert.Equal(t, "2025-06-10", nextWeekday(friday, 2).Format(appointment.DateLayout))
}
