package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/booking"
	"github.com/hackgods/clinic-scheduling/internal/client"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/console"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
)

type SimConfig struct {
	APIBaseURL      string
	Duration        time.Duration
	Workers         int
	BookingRatio    float64
	TransitionRatio float64
	AdminRatio      float64
	PatientLimit    int
	DoctorLimit     int
	DaysAhead       int
	PostgresDSN     string
}

type doctorRef struct {
	ID          uuid.UUID
	SpecialtyID uuid.UUID
}

type DataPool struct {
	Patients []uuid.UUID
	Doctors  []doctorRef

	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type Simulator struct {
	config SimConfig
	pool   *DataPool
	api    *client.Client
	logger zerolog.Logger
	report Report
}

func main() {
	cfg := loadConfig()
	logger := logging.New("dev", getEnv("LOG_LEVEL", "info")).With().Str("component", "simulate").Logger()

	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("transition", cfg.TransitionRatio).
		Float64("admin", cfg.AdminRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.WithMaxConns(2))
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	pgPool.Close()
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}

	logger.Info().
		Int("patients", len(dataPool.Patients)).
		Int("doctors", len(dataPool.Doctors)).
		Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		api:    client.New(cfg.APIBaseURL, client.WithLogger(logger)),
		logger: logger,
	}

	sim.Run()
	sim.report.Write(os.Stdout, cfg.Duration, cfg.Workers)
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load base config: %v\n", err)
		os.Exit(1)
	}

	cfg := SimConfig{
		APIBaseURL:      getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:        getDuration("SIM_DURATION", 30*time.Second),
		Workers:         getInt("SIM_WORKERS", 10),
		BookingRatio:    getFloat("SIM_BOOKING_RATIO", 0.5),
		TransitionRatio: getFloat("SIM_TRANSITION_RATIO", 0.2),
		AdminRatio:      getFloat("SIM_ADMIN_RATIO", 0.05),
		PatientLimit:    getInt("SIM_PATIENT_LIMIT", 2000),
		DoctorLimit:     getInt("SIM_DOCTOR_LIMIT", 20),
		DaysAhead:       getInt("SIM_DAYS_AHEAD", 5),
		PostgresDSN:     baseCfg.PostgresDSN,
	}

	total := cfg.BookingRatio + cfg.TransitionRatio + cfg.AdminRatio
	if total > 1 {
		cfg.BookingRatio /= total
		cfg.TransitionRatio /= total
		cfg.AdminRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return errors.New("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return errors.New("SIM_DURATION must be > 0")
	}
	if cfg.DaysAhead <= 0 {
		return errors.New("SIM_DAYS_AHEAD must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = pool.Query(ctx, `
		SELECT id, specialty_id
		FROM doctors
		WHERE specialty_id IS NOT NULL
		LIMIT $1
	`, cfg.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	for rows.Next() {
		var d doctorRef
		if err := rows.Scan(&d.ID, &d.SpecialtyID); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Doctors = append(dataPool.Doctors, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dataPool.Patients) == 0 {
		return nil, errors.New("no patients loaded")
	}
	if len(dataPool.Doctors) == 0 {
		return nil, errors.New("no doctors loaded")
	}
	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info().Msg("simulation running")

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.config.Workers; i++ {
		workerID := i
		g.Go(func() error {
			s.worker(gctx, workerID)
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.TransitionRatio:
			s.doTransition(ctx, rng)
		case r < s.config.BookingRatio+s.config.TransitionRatio+s.config.AdminRatio:
			s.doAdminPass(ctx, rng)
		default:
			s.doRead(ctx, rng)
		}
	}
}

// doBooking walks the whole wizard for a random patient and doctor.
func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	doctor := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	date := nextWeekday(time.Now(), 1+rng.Intn(s.config.DaysAhead)).Format(appointment.DateLayout)

	start := time.Now()
	w := booking.NewWizard(s.api, patient, booking.WithLogger(s.logger))
	if err := w.SelectSpecialty(ctx, doctor.SpecialtyID); err != nil {
		s.report.Booking.Record(time.Since(start), err)
		return
	}
	if err := w.SelectDoctor(ctx, doctor.ID); err != nil {
		s.report.Booking.Record(time.Since(start), err)
		return
	}

	groups, err := w.Slots(ctx, date)
	if err != nil {
		s.report.Booking.Record(time.Since(start), err)
		return
	}
	open := make([]appointment.TimeSlot, 0, len(groups.Morning)+len(groups.Afternoon))
	for _, part := range [][]appointment.TimeSlot{groups.Morning, groups.Afternoon} {
		for _, slot := range part {
			if slot.IsAvailable {
				open = append(open, slot)
			}
		}
	}
	if len(open) == 0 {
		w.Cancel()
		return
	}

	if err := w.SelectSlot(date, open[rng.Intn(len(open))].ID); err != nil {
		s.report.Booking.Record(time.Since(start), err)
		return
	}
	if err := w.SetDetails("simulated visit", ""); err != nil {
		s.report.Booking.Record(time.Since(start), err)
		return
	}

	appt, err := w.Commit(ctx)
	if ctx.Err() != nil {
		return
	}
	s.report.Booking.Record(time.Since(start), err)
	if err == nil {
		s.pool.AddAppointment(appt.ID)
	}
}

var simulatedActions = []appointment.Action{
	appointment.ActionConfirm,
	appointment.ActionConfirm,
	appointment.ActionComplete,
	appointment.ActionCancel,
}

func (s *Simulator) doTransition(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	action := simulatedActions[rng.Intn(len(simulatedActions))]
	reason := ""
	if action == appointment.ActionCancel {
		reason = "Patient rescheduled"
	}

	start := time.Now()
	_, err := s.api.Transition(ctx, id, action, reason)
	if ctx.Err() != nil {
		return
	}
	s.report.Transition.Record(time.Since(start), err)
}

func (s *Simulator) doRead(ctx context.Context, rng *rand.Rand) {
	start := time.Now()
	var err error
	if id, ok := s.pool.RandomAppointment(rng); ok && rng.Intn(2) == 0 {
		_, err = s.api.GetAppointment(ctx, id)
	} else {
		patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
		_, err = s.api.ListAppointments(ctx, appointment.Filter{PatientID: patient})
	}
	if ctx.Err() != nil {
		return
	}
	s.report.Read.Record(time.Since(start), err)
}

// doAdminPass loads one doctor's active schedule in the console and bulk-confirms
// the pending part of it.
func (s *Simulator) doAdminPass(ctx context.Context, rng *rand.Rand) {
	doctor := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]

	start := time.Now()
	view := console.NewView(s.api,
		console.WithLogger(s.logger),
		console.WithFilter(appointment.Filter{DoctorID: doctor.ID, Status: appointment.StatusPending}),
	)
	err := view.Refresh(ctx)
	if ctx.Err() != nil {
		return
	}
	s.report.Conflicts.Record(time.Since(start), err)
	if err != nil {
		return
	}

	view.SelectAll()
	if len(view.Selected()) == 0 {
		return
	}

	start = time.Now()
	res, err := view.ApplyBulk(ctx, appointment.ActionConfirm)
	if ctx.Err() != nil {
		return
	}
	s.report.Bulk.Record(time.Since(start), err)
	atomic.AddInt64(&s.report.BulkItems.Succeeded, int64(res.Succeeded))
	atomic.AddInt64(&s.report.BulkItems.Failed, int64(res.Failed))
}

// nextWeekday returns the date n weekdays after from.
func nextWeekday(from time.Time, n int) time.Time {
	d := from
	for n > 0 {
		d = d.AddDate(0, 0, 1)
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			n--
		}
	}
	return d
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
