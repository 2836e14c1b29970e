package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// dbtx is the subset of pgxpool.Pool used by the repository.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PgRepository struct {
	pool dbtx
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	if pool == nil {
		panic("appointment: pgx pool required")
	}
	return &PgRepository{pool: pool}
}

func newPgRepositoryWithDB(db dbtx) *PgRepository {
	return &PgRepository{pool: db}
}

const appointmentColumns = `
	id, doctor_id, patient_id, specialty_id, time_slot_id,
	to_char(appointment_date, 'YYYY-MM-DD'), to_char(appointment_time, 'HH24:MI'),
	status, symptoms, notes, cancelled_reason,
	created_at, updated_at, confirmed_at, completed_at`

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var specialtyID *uuid.UUID

	err := row.Scan(
		&d.ID,
		&d.Name,
		&specialtyID,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.SpecialtyID = specialtyID
	return &d, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var notes *string

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.SpecialtyID,
		&a.TimeSlotID,
		&a.AppointmentDate,
		&a.AppointmentTime,
		&a.Status,
		&a.Symptoms,
		&notes,
		&a.CancelledReason,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.ConfirmedAt,
		&a.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if notes != nil {
		a.Notes = *notes
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty_id, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetSpecialtyByID(ctx context.Context, id uuid.UUID) (*Specialty, error) {
	var sp Specialty
	err := r.pool.QueryRow(ctx, `
		SELECT id, name
		FROM specialties
		WHERE id = $1
	`, id).Scan(&sp.ID, &sp.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSpecialtyNotFound
		}
		return nil, err
	}
	return &sp, nil
}

func (r *PgRepository) ListSpecialties(ctx context.Context) ([]Specialty, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name
		FROM specialties
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("query specialties: %w", err)
	}
	defer rows.Close()

	var out []Specialty
	for rows.Next() {
		var sp Specialty
		if err := rows.Scan(&sp.ID, &sp.Name); err != nil {
			return nil, err
		}
		out = append(out, sp)
	}

	return out, rows.Err()
}

func (r *PgRepository) ListDoctors(ctx context.Context, specialtyID uuid.UUID) ([]Doctor, error) {
	query := `SELECT id, name, specialty_id, created_at, updated_at FROM doctors`
	var args []any
	if specialtyID != uuid.Nil {
		query += ` WHERE specialty_id = $1`
		args = append(args, specialtyID)
	}
	query += ` ORDER BY name`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query doctors: %w", err)
	}
	defer rows.Close()

	var out []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}

	return out, rows.Err()
}

// GetSchedule lists the doctor's weekly schedules first, then dated overrides,
// each with its slots by start time.
func (r *PgRepository) GetSchedule(ctx context.Context, doctorID uuid.UUID) ([]ScheduleEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ws.id, ws.day_of_week, to_char(ws.specific_date, 'YYYY-MM-DD'), ws.is_available, ws.notes,
		       ts.id, to_char(ts.start_time, 'HH24:MI'), to_char(ts.end_time, 'HH24:MI'),
		       ts.max_patients, ts.is_available
		FROM working_schedules ws
		LEFT JOIN time_slots ts ON ts.schedule_id = ws.id
		WHERE ws.doctor_id = $1
		ORDER BY ws.specific_date NULLS FIRST, ws.day_of_week, ws.id, ts.start_time
	`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("query schedule: %w", err)
	}
	defer rows.Close()

	var out []ScheduleEntry
	for rows.Next() {
		var (
			ws        WorkingSchedule
			slotID    *uuid.UUID
			start     *string
			end       *string
			maxPat    *int
			slotAvail *bool
		)
		if err := rows.Scan(
			&ws.ID, &ws.DayOfWeek, &ws.SpecificDate, &ws.IsAvailable, &ws.Notes,
			&slotID, &start, &end, &maxPat, &slotAvail,
		); err != nil {
			return nil, err
		}
		ws.DoctorID = doctorID

		if n := len(out); n == 0 || out[n-1].ID != ws.ID {
			out = append(out, ScheduleEntry{WorkingSchedule: ws, TimeSlots: []TimeSlot{}})
		}
		if slotID == nil {
			continue
		}
		cur := &out[len(out)-1]
		cur.TimeSlots = append(cur.TimeSlots, TimeSlot{
			ID:          *slotID,
			StartTime:   derefString(start),
			EndTime:     derefString(end),
			MaxPatients: derefInt(maxPat),
			IsAvailable: slotAvail != nil && *slotAvail,
		})
	}

	return out, rows.Err()
}

// ReplaceSchedule deletes every working schedule of the doctor (their slots go
// with ON DELETE CASCADE) and inserts entries, all in one transaction.
func (r *PgRepository) ReplaceSchedule(ctx context.Context, doctorID uuid.UUID, entries []ScheduleEntry) ([]ScheduleEntry, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var locked uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM doctors WHERE id = $1 FOR UPDATE`, doctorID).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, fmt.Errorf("lock doctor: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM working_schedules WHERE doctor_id = $1`, doctorID); err != nil {
		return nil, fmt.Errorf("delete schedules: %w", err)
	}

	saved := make([]ScheduleEntry, 0, len(entries))
	for _, e := range entries {
		e.ID = uuid.New()
		e.DoctorID = doctorID

		_, err := tx.Exec(ctx, `
			INSERT INTO working_schedules (id, doctor_id, day_of_week, specific_date, is_available, notes)
			VALUES ($1, $2, $3, $4::text::date, $5, $6)
		`, e.ID, doctorID, e.DayOfWeek, e.SpecificDate, e.IsAvailable, e.Notes)
		if err != nil {
			return nil, fmt.Errorf("insert schedule: %w", err)
		}

		slots := make([]TimeSlot, 0, len(e.TimeSlots))
		for _, s := range e.TimeSlots {
			s.ID = uuid.New()
			_, err := tx.Exec(ctx, `
				INSERT INTO time_slots (id, schedule_id, start_time, end_time, max_patients, is_available)
				VALUES ($1, $2, $3::text::time, $4::text::time, $5, $6)
			`, s.ID, e.ID, s.StartTime, s.EndTime, s.MaxPatients, s.IsAvailable)
			if err != nil {
				return nil, fmt.Errorf("insert time slot: %w", err)
			}
			slots = append(slots, s)
		}
		e.TimeSlots = slots
		saved = append(saved, e)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit schedule: %w", err)
	}
	return saved, nil
}

func (r *PgRepository) ListSlotsForDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]TimeSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ts.id,
		       to_char(ts.start_time, 'HH24:MI'),
		       to_char(ts.end_time, 'HH24:MI'),
		       ts.max_patients,
		       (ts.is_available AND ws.is_available)
		FROM time_slots ts
		JOIN working_schedules ws ON ws.id = ts.schedule_id
		WHERE ws.doctor_id = $1
		  AND (ws.specific_date = $2::text::date
		       OR (ws.specific_date IS NULL AND ws.day_of_week = $3))
		ORDER BY ts.start_time
	`, doctorID, date.Format(DateLayout), int(date.Weekday()))
	if err != nil {
		return nil, fmt.Errorf("query slots: %w", err)
	}
	defer rows.Close()

	var slots []TimeSlot
	for rows.Next() {
		var s TimeSlot
		if err := rows.Scan(&s.ID, &s.StartTime, &s.EndTime, &s.MaxPatients, &s.IsAvailable); err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return slots, nil
}

func (r *PgRepository) ListBookedTimes(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT to_char(appointment_time, 'HH24:MI')
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date = $2::text::date
		  AND status <> 'CANCELLED'
	`, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("query booked times: %w", err)
	}
	defer rows.Close()

	var times []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		times = append(times, t)
	}

	return times, rows.Err()
}

func (r *PgRepository) FindActiveAppointment(ctx context.Context, doctorID uuid.UUID, date, clock string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date = $2::text::date
		  AND appointment_time = $3::text::time
		  AND status <> 'CANCELLED'
		ORDER BY created_at
		LIMIT 1
	`, doctorID, date, clock)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f Filter) ([]Appointment, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.DoctorID != uuid.Nil {
		add("doctor_id = $%d", f.DoctorID)
	}
	if f.PatientID != uuid.Nil {
		add("patient_id = $%d", f.PatientID)
	}
	if f.DateFrom != "" {
		add("appointment_date >= $%d::text::date", f.DateFrom)
	}
	if f.DateTo != "" {
		add("appointment_date <= $%d::text::date", f.DateTo)
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY appointment_date, appointment_time, created_at"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (
			id, doctor_id, patient_id, specialty_id, time_slot_id,
			appointment_date, appointment_time, status, symptoms, notes,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6::text::date, $7::text::time, $8, $9, $10, now(), now())
		RETURNING `+appointmentColumns,
		a.ID, a.DoctorID, a.PatientID, a.SpecialtyID, a.TimeSlotID,
		a.AppointmentDate, a.AppointmentTime, string(StatusPending), a.Symptoms, nullableString(a.Notes),
	)

	return scanAppointment(row)
}

// UpdateAppointmentTransition writes the fields a transition may set, but only
// while the row still has status from.
func (r *PgRepository) UpdateAppointmentTransition(ctx context.Context, a Appointment, from Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    cancelled_reason = $3,
		    confirmed_at = $4,
		    completed_at = $5,
		    updated_at = now()
		WHERE id = $1
		  AND status = $6
		RETURNING `+appointmentColumns,
		a.ID, string(a.Status), a.CancelledReason, a.ConfirmedAt, a.CompletedAt, string(from),
	)

	updated, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, fmt.Errorf("%w: appointment %s is no longer %s", ErrInvalidTransition, a.ID, from)
	}
	return updated, err
}

func (r *PgRepository) FindActiveBefore(ctx context.Context, through string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status IN ('PENDING', 'CONFIRMED')
		  AND appointment_date <= $1::text::date
		ORDER BY appointment_date, appointment_time
	`, through)
	if err != nil {
		return nil, fmt.Errorf("query active appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(n *int) int {
	if n == nil {
		return 0
	}
	return *n
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
