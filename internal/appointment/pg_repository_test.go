package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var appointmentRowColumns = []string{
	"id", "doctor_id", "patient_id", "specialty_id", "time_slot_id",
	"appointment_date", "appointment_time",
	"status", "symptoms", "notes", "cancelled_reason",
	"created_at", "updated_at", "confirmed_at", "completed_at",
}

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *PgRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, newPgRepositoryWithDB(mock)
}

func TestPgGetAppointmentByID(t *testing.T) {
	mock, repo := newMockRepo(t)
	id, doctor, patient := uuid.New(), uuid.New(), uuid.New()
	created := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM appointments\s+WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(appointmentRowColumns).AddRow(
			id, doctor, patient, nil, nil,
			"2025-06-02", "09:00",
			StatusPending, "cough", nil, nil,
			created, created, nil, nil,
		))

	got, err := repo.GetAppointmentByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, "09:00", got.AppointmentTime)
	assert.Empty(t, got.Notes)
	assert.Nil(t, got.ConfirmedAt)

	missing := uuid.New()
	mock.ExpectQuery(`FROM appointments\s+WHERE id = \$1`).
		WithArgs(missing).
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.GetAppointmentByID(context.Background(), missing)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgGetDoctorNotFound(t *testing.T) {
	mock, repo := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery(`FROM doctors`).WithArgs(id).WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetDoctorByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrDoctorNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgListSlotsForDate(t *testing.T) {
	mock, repo := newMockRepo(t)
	doctor := uuid.New()
	day := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC) // Monday

	s1, s2 := uuid.New(), uuid.New()
	mock.ExpectQuery(`FROM time_slots ts\s+JOIN working_schedules ws`).
		WithArgs(doctor, "2025-06-02", 1).
		WillReturnRows(pgxmock.NewRows([]string{"id", "start_time", "end_time", "max_patients", "is_available"}).
			AddRow(s1, "09:00", "09:30", 1, true).
			AddRow(s2, "14:00", "14:30", 1, false))

	slots, err := repo.ListSlotsForDate(context.Background(), doctor, day)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, s1, slots[0].ID)
	assert.False(t, slots[1].IsAvailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgListAppointmentsBuildsFilter(t *testing.T) {
	mock, repo := newMockRepo(t)
	doctor := uuid.New()

	mock.ExpectQuery(`WHERE status = \$1 AND doctor_id = \$2 AND appointment_date >= \$3::text::date ORDER BY appointment_date`).
		WithArgs("CONFIRMED", doctor, "2025-06-01").
		WillReturnRows(pgxmock.NewRows(appointmentRowColumns))

	got, err := repo.ListAppointments(context.Background(), Filter{
		Status:   StatusConfirmed,
		DoctorID: doctor,
		DateFrom: "2025-06-01",
	})
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUpdateTransitionLostRace(t *testing.T) {
	mock, repo := newMockRepo(t)
	a := Appointment{ID: uuid.New(), Status: StatusConfirmed}

	mock.ExpectQuery(`UPDATE appointments`).
		WithArgs(a.ID, "CONFIRMED", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "PENDING").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.UpdateAppointmentTransition(context.Background(), a, StatusPending)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgCreateAppointmentAssignsID(t *testing.T) {
	mock, repo := newMockRepo(t)
	doctor, patient := uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO appointments`).
		WithArgs(
			pgxmock.AnyArg(), doctor, patient, pgxmock.AnyArg(), pgxmock.AnyArg(),
			"2025-06-02", "09:00", "PENDING", "cough", pgxmock.AnyArg(),
		).
		WillReturnRows(pgxmock.NewRows(appointmentRowColumns).AddRow(
			uuid.New(), doctor, patient, nil, nil,
			"2025-06-02", "09:00",
			StatusPending, "cough", nil, nil,
			now, now, nil, nil,
		))

	got, err := repo.CreateAppointment(context.Background(), Appointment{
		DoctorID:        doctor,
		PatientID:       patient,
		AppointmentDate: "2025-06-02",
		AppointmentTime: "09:00",
		Symptoms:        "cough",
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, got.ID)
	assert.Equal(t, StatusPending, got.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgInsertEvent(t *testing.T) {
	mock, repo := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec(`INSERT INTO event_logs`).
		WithArgs(EventAppointmentCreated, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.InsertEvent(context.Background(), EventLog{
		EventType:     EventAppointmentCreated,
		AppointmentID: &id,
		Payload:       []byte(`{}`),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgGetSpecialtyByID(t *testing.T) {
	mock, repo := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery(`FROM specialties\s+WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name"}).AddRow(id, "Neurology"))
	sp, err := repo.GetSpecialtyByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Neurology", sp.Name)

	mock.ExpectQuery(`FROM specialties`).WithArgs(id).WillReturnError(pgx.ErrNoRows)
	_, err = repo.GetSpecialtyByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrSpecialtyNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgListDoctorsBySpecialty(t *testing.T) {
	mock, repo := newMockRepo(t)
	specialty := uuid.New()
	now := time.Now()
	cols := []string{"id", "name", "specialty_id", "created_at", "updated_at"}

	mock.ExpectQuery(`FROM doctors WHERE specialty_id = \$1 ORDER BY name`).
		WithArgs(specialty).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(uuid.New(), "Dr. Ada Lovelace", &specialty, now, now))
	doctors, err := repo.ListDoctors(context.Background(), specialty)
	require.NoError(t, err)
	require.Len(t, doctors, 1)
	require.NotNil(t, doctors[0].SpecialtyID)
	assert.Equal(t, specialty, *doctors[0].SpecialtyID)

	mock.ExpectQuery(`FROM doctors ORDER BY name`).
		WillReturnRows(pgxmock.NewRows(cols))
	all, err := repo.ListDoctors(context.Background(), uuid.Nil)
	require.NoError(t, err)
	assert.Empty(t, all)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgGetScheduleGroupsSlots(t *testing.T) {
	mock, repo := newMockRepo(t)
	doctor := uuid.New()
	weekly, dated := uuid.New(), uuid.New()
	s1, s2 := uuid.New(), uuid.New()
	date := "2025-06-03"
	notes := "conference"

	mock.ExpectQuery(`FROM working_schedules ws\s+LEFT JOIN time_slots ts`).
		WithArgs(doctor).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "day_of_week", "specific_date", "is_available", "notes",
			"slot_id", "start_time", "end_time", "max_patients", "slot_available",
		}).
			AddRow(weekly, 1, nil, true, nil, &s1, ptr("09:00"), ptr("09:30"), ptr(1), ptr(true)).
			AddRow(weekly, 1, nil, true, nil, &s2, ptr("09:30"), ptr("10:00"), ptr(1), ptr(false)).
			AddRow(dated, 2, &date, false, &notes, nil, nil, nil, nil, nil))

	entries, err := repo.GetSchedule(context.Background(), doctor)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, weekly, entries[0].ID)
	require.Len(t, entries[0].TimeSlots, 2)
	assert.Equal(t, "09:30", entries[0].TimeSlots[1].StartTime)
	assert.False(t, entries[0].TimeSlots[1].IsAvailable)

	assert.Equal(t, dated, entries[1].ID)
	assert.Equal(t, doctor, entries[1].DoctorID)
	require.NotNil(t, entries[1].SpecificDate)
	assert.Equal(t, date, *entries[1].SpecificDate)
	assert.NotNil(t, entries[1].TimeSlots)
	assert.Empty(t, entries[1].TimeSlots)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgReplaceScheduleInOneTransaction(t *testing.T) {
	mock, repo := newMockRepo(t)
	doctor := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM doctors WHERE id = \$1 FOR UPDATE`).
		WithArgs(doctor).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(doctor))
	mock.ExpectExec(`DELETE FROM working_schedules WHERE doctor_id = \$1`).
		WithArgs(doctor).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec(`INSERT INTO working_schedules`).
		WithArgs(pgxmock.AnyArg(), doctor, 1, pgxmock.AnyArg(), true, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO time_slots`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "09:00", "09:30", 1, true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO time_slots`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "09:30", "10:00", 1, true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	saved, err := repo.ReplaceSchedule(context.Background(), doctor, []ScheduleEntry{{
		WorkingSchedule: WorkingSchedule{DayOfWeek: 1, IsAvailable: true},
		TimeSlots: []TimeSlot{
			{StartTime: "09:00", EndTime: "09:30", MaxPatients: 1, IsAvailable: true},
			{StartTime: "09:30", EndTime: "10:00", MaxPatients: 1, IsAvailable: true},
		},
	}})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.NotEqual(t, uuid.Nil, saved[0].ID)
	assert.NotEqual(t, saved[0].TimeSlots[0].ID, saved[0].TimeSlots[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgReplaceScheduleRollsBack(t *testing.T) {
	mock, repo := newMockRepo(t)
	doctor := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(doctor).WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.ReplaceSchedule(context.Background(), doctor, nil)
	assert.ErrorIs(t, err, ErrDoctorNotFound)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(doctor).WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(doctor))
	mock.ExpectExec(`DELETE FROM working_schedules`).WithArgs(doctor).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`INSERT INTO working_schedules`).
		WithArgs(pgxmock.AnyArg(), doctor, 3, pgxmock.AnyArg(), true, pgxmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err = repo.ReplaceSchedule(context.Background(), doctor, []ScheduleEntry{{
		WorkingSchedule: WorkingSchedule{DayOfWeek: 3, IsAvailable: true},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert schedule")
	require.NoError(t, mock.ExpectationsWereMet())
}

func ptr[T any](v T) *T { return &v }
