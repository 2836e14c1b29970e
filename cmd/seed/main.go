package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

// Half-hour slots inside each session, Monday to Friday.
var sessions = [][2]string{{"09:00", "12:00"}, {"13:00", "17:00"}}

const slotLength = 30 * time.Minute

func main() {
	_ = godotenv.Load()
	logger := logging.New(os.Getenv("APP_ENV"), "info").With().Str("component", "seed").Logger()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	doctors := envInt("SEED_DOCTORS", 40)
	patients := envInt("SEED_PATIENTS", 2000)

	specialtyIDs, err := seedSpecialties(context.Background(), pool, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed specialties")
	}
	if err := seedDoctors(context.Background(), pool, logger, specialtyIDs, doctors); err != nil {
		logger.Fatal().Err(err).Msg("seed doctors")
	}
	if err := seedPatients(context.Background(), pool, logger, patients); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}

	logger.Info().Msg("seed complete")
}

func seedSpecialties(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(specialties))
	for _, name := range specialties {
		var id uuid.UUID
		err := pool.QueryRow(ctx, `
			INSERT INTO specialties (id, name, created_at)
			VALUES ($1, $2, now())
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id
		`, uuid.New(), name).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("insert specialty %q: %w", name, err)
		}
		ids = append(ids, id)
	}
	logger.Info().Int("count", len(ids)).Msg("specialties seeded")
	return ids, nil
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger, specialtyIDs []uuid.UUID, count int) error {
	logger.Info().Int("count", count).Msg("seeding doctors")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var slotRows [][]any
	for i := 0; i < count; i++ {
		doctorID := uuid.New()
		specialtyID := specialtyIDs[gofakeit.Number(0, len(specialtyIDs)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty_id, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, doctorID, "Dr. "+gofakeit.Name(), specialtyID)
		if err != nil {
			return err
		}

		for day := 1; day <= 5; day++ {
			scheduleID := uuid.New()
			// Roughly one doctor-day in ten is blocked off.
			available := gofakeit.Number(1, 10) > 1
			_, err := tx.Exec(ctx, `
				INSERT INTO working_schedules (id, doctor_id, day_of_week, is_available)
				VALUES ($1, $2, $3, $4)
			`, scheduleID, doctorID, day, available)
			if err != nil {
				return err
			}
			rows, err := slotRowsFor(scheduleID)
			if err != nil {
				return err
			}
			slotRows = append(slotRows, rows...)
		}
	}

	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{"time_slots"},
		[]string{"id", "schedule_id", "start_time", "end_time", "max_patients", "is_available"},
		pgx.CopyFromRows(slotRows),
	)
	if err != nil {
		return fmt.Errorf("copy time slots: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Info().Int("doctors", count).Int64("slots", n).Msg("doctors seeded")
	return nil
}

func slotRowsFor(scheduleID uuid.UUID) ([][]any, error) {
	var rows [][]any
	for _, s := range sessions {
		start, err := time.Parse("15:04", s[0])
		if err != nil {
			return nil, err
		}
		end, err := time.Parse("15:04", s[1])
		if err != nil {
			return nil, err
		}
		for t := start; t.Before(end); t = t.Add(slotLength) {
			rows = append(rows, []any{
				uuid.New(),
				scheduleID,
				pgTime(t),
				pgTime(t.Add(slotLength)),
				int32(1),
				gofakeit.Number(1, 20) > 1,
			})
		}
	}
	return rows, nil
}

func pgTime(t time.Time) pgtype.Time {
	since := time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
	return pgtype.Time{Microseconds: since.Microseconds(), Valid: true}
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger, count int) error {
	logger.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		batch := &pgx.Batch{}
		for i := offset; i < end; i++ {
			batch.Queue(`
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, uuid.New(), gofakeit.Name(), gofakeit.Email())
		}

		if err := pool.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}

		logger.Info().Int("done", end).Int("total", count).Msg("patients seeded")
	}

	return nil
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
