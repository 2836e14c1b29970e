package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/bulk"
)

type RouterConfig struct {
	Service  Scheduler
	Bulk     *bulk.Executor
	Postgres Pinger
	Redis    Pinger
	Metrics  http.Handler
	Logger   zerolog.Logger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	executor := cfg.Bulk
	if executor == nil {
		executor = bulk.NewExecutor(cfg.Service, bulk.WithLogger(cfg.Logger))
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Get("/specialties", listSpecialtiesHandler(cfg.Service, cfg.Logger))

	r.Route("/doctors", func(r chi.Router) {
		r.Get("/", listDoctorsHandler(cfg.Service, cfg.Logger))
		r.Get("/{id}/slots", resolveSlotsHandler(cfg.Service, cfg.Logger))
		r.Get("/{id}/schedule", getScheduleHandler(cfg.Service, cfg.Logger))
		r.Put("/{id}/schedule", replaceScheduleHandler(cfg.Service, cfg.Logger))
	})

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", createAppointmentHandler(cfg.Service, cfg.Logger))
		r.Get("/", listAppointmentsHandler(cfg.Service, cfg.Logger))
		r.Get("/conflicts", conflictsHandler(cfg.Service, cfg.Logger))
		r.Post("/bulk", bulkHandler(executor, cfg.Logger))
		r.Get("/{id}", getAppointmentHandler(cfg.Service, cfg.Logger))
		r.Post("/{id}/transitions", transitionHandler(cfg.Service, cfg.Logger))
	})

	return r
}
