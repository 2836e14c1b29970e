package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/bulk"
)

// Scheduler is the appointment service as seen by the HTTP layer.
type Scheduler interface {
	ResolveSlots(ctx context.Context, doctorID uuid.UUID, date string) ([]appointment.TimeSlot, error)
	CommitBooking(ctx context.Context, req appointment.BookingRequest) (*appointment.Appointment, error)
	Transition(ctx context.Context, id uuid.UUID, action appointment.Action, reason string) (*appointment.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	ListAppointments(ctx context.Context, f appointment.Filter) ([]appointment.Appointment, error)
	Conflicts(ctx context.Context, f appointment.Filter) ([]appointment.ConflictPair, error)

	ListSpecialties(ctx context.Context) ([]appointment.Specialty, error)
	ListDoctors(ctx context.Context, specialtyID uuid.UUID) ([]appointment.Doctor, error)
	GetSchedule(ctx context.Context, doctorID uuid.UUID) ([]appointment.ScheduleEntry, error)
	ReplaceSchedule(ctx context.Context, doctorID uuid.UUID, entries []appointment.ScheduleEntry) ([]appointment.ScheduleEntry, error)
}

func listSpecialtiesHandler(svc Scheduler, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		specialties, err := svc.ListSpecialties(r.Context())
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, SpecialtiesResponse{Specialties: specialties})
	}
}

// listDoctorsHandler serves GET /doctors, optionally narrowed by ?specialty_id=.
func listDoctorsHandler(svc Scheduler, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		specialtyID := uuid.Nil
		if v := r.URL.Query().Get("specialty_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "validation_error", "specialty_id must be a valid UUID")
				return
			}
			specialtyID = id
		}

		doctors, err := svc.ListDoctors(r.Context(), specialtyID)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, DoctorsResponse{Doctors: doctors})
	}
}

func getScheduleHandler(svc Scheduler, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuidParam(r, "id")
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		entries, err := svc.GetSchedule(r.Context(), doctorID)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, ScheduleResponse{DoctorID: doctorID, Schedules: entries})
	}
}

func replaceScheduleHandler(svc Scheduler, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuidParam(r, "id")
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		var req ReplaceScheduleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		entries, err := svc.ReplaceSchedule(r.Context(), doctorID, req.Entries())
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, ScheduleResponse{DoctorID: doctorID, Schedules: entries})
	}
}

func resolveSlotsHandler(svc Scheduler, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuidParam(r, "id")
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		date := r.URL.Query().Get("date")
		if date == "" {
			writeError(w, http.StatusBadRequest, "validation_error", "date query parameter is required")
			return
		}

		slots, err := svc.ResolveSlots(r.Context(), doctorID, date)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, SlotsResponse{DoctorID: doctorID, Date: date, Slots: slots})
	}
}

func createAppointmentHandler(svc Scheduler, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		appt, err := svc.CommitBooking(r.Context(), req.BookingRequest())
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusCreated, appt)
	}
}

func getAppointmentHandler(svc Scheduler, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, appt)
	}
}

func listAppointmentsHandler(svc Scheduler, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := filterFromQuery(r)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		appts, err := svc.ListAppointments(r.Context(), f)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, ListAppointmentsResponse{Appointments: appts, Count: len(appts)})
	}
}

func conflictsHandler(svc Scheduler, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := filterFromQuery(r)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		pairs, err := svc.Conflicts(r.Context(), f)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		seen := make(map[uuid.UUID]struct{}, len(pairs)*2)
		ids := []uuid.UUID{}
		for _, p := range pairs {
			for _, id := range []uuid.UUID{p.A, p.B} {
				if _, ok := seen[id]; !ok {
					seen[id] = struct{}{}
					ids = append(ids, id)
				}
			}
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
		if pairs == nil {
			pairs = []appointment.ConflictPair{}
		}

		writeJSON(w, http.StatusOK, ConflictsResponse{Pairs: pairs, AppointmentIDs: ids})
	}
}

func transitionHandler(svc Scheduler, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		var req TransitionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		appt, err := svc.Transition(r.Context(), id, appointment.Action(req.Action), req.Reason)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, appt)
	}
}

func bulkHandler(executor *bulk.Executor, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BulkRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		res, err := executor.Apply(r.Context(), req.ParsedIDs(), appointment.Action(req.Action))
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, res)
	}
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s must be a valid UUID", appointment.ErrValidation, name)
	}
	return id, nil
}

func filterFromQuery(r *http.Request) (appointment.Filter, error) {
	q := r.URL.Query()
	f := appointment.Filter{
		Status:   appointment.Status(q.Get("status")),
		DateFrom: q.Get("from"),
		DateTo:   q.Get("to"),
	}

	if v := q.Get("doctor_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, fmt.Errorf("%w: doctor_id must be a valid UUID", appointment.ErrValidation)
		}
		f.DoctorID = id
	}
	if v := q.Get("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, fmt.Errorf("%w: patient_id must be a valid UUID", appointment.ErrValidation)
		}
		f.PatientID = id
	}

	return f, f.Validate()
}
