// Package client talks to the scheduling API over HTTP and backs the booking
// wizard and admin console.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/bulk"
)

const defaultTimeout = 10 * time.Second

var codeErrors = map[string]error{
	"validation_error":      appointment.ErrValidation,
	"invalid_transition":    appointment.ErrInvalidTransition,
	"appointment_not_found": appointment.ErrAppointmentNotFound,
	"doctor_not_found":      appointment.ErrDoctorNotFound,
	"patient_not_found":     appointment.ErrPatientNotFound,
	"specialty_not_found":   appointment.ErrSpecialtyNotFound,
	"slot_not_found":        appointment.ErrSlotNotFound,
	"slot_unavailable":      appointment.ErrSlotUnavailable,
	"slot_taken":            appointment.ErrSlotTaken,
	"slot_being_booked":     appointment.ErrSlotBeingBooked,
	"backend_unavailable":   appointment.ErrUnavailable,
}

// APIError is a non-2xx response. It unwraps to the matching appointment sentinel.
type APIError struct {
	Status  int
	Code    string
	Details string
	err     error
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Details)
	}
	return fmt.Sprintf("%s (%d)", e.Code, e.Status)
}

func (e *APIError) Unwrap() error { return e.err }

type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout on a copy of the HTTP client, so a
// client passed through WithHTTPClient is left untouched.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			hc := *c.http
			hc.Timeout = d
			c.http = &hc
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ListSpecialties(ctx context.Context) ([]appointment.Specialty, error) {
	var resp api.SpecialtiesResponse
	if err := c.do(ctx, http.MethodGet, "/specialties", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Specialties, nil
}

// ListDoctors lists the doctors of one specialty, or all of them for uuid.Nil.
func (c *Client) ListDoctors(ctx context.Context, specialtyID uuid.UUID) ([]appointment.Doctor, error) {
	q := url.Values{}
	if specialtyID != uuid.Nil {
		q.Set("specialty_id", specialtyID.String())
	}
	var resp api.DoctorsResponse
	if err := c.do(ctx, http.MethodGet, "/doctors", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Doctors, nil
}

func (c *Client) GetSchedule(ctx context.Context, doctorID uuid.UUID) ([]appointment.ScheduleEntry, error) {
	var resp api.ScheduleResponse
	if err := c.do(ctx, http.MethodGet, "/doctors/"+doctorID.String()+"/schedule", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Schedules, nil
}

// ReplaceSchedule sends the doctor's complete schedule; entries not listed are removed.
func (c *Client) ReplaceSchedule(ctx context.Context, doctorID uuid.UUID, entries []appointment.ScheduleEntry) ([]appointment.ScheduleEntry, error) {
	body := api.ReplaceScheduleRequest{Schedules: make([]api.ScheduleEntryRequest, 0, len(entries))}
	for _, e := range entries {
		available := e.IsAvailable
		req := api.ScheduleEntryRequest{
			DayOfWeek:   e.DayOfWeek,
			IsAvailable: &available,
			TimeSlots:   make([]api.TimeSlotRequest, 0, len(e.TimeSlots)),
		}
		if e.SpecificDate != nil {
			req.SpecificDate = *e.SpecificDate
		}
		if e.Notes != nil {
			req.Notes = *e.Notes
		}
		for _, ts := range e.TimeSlots {
			open := ts.IsAvailable
			req.TimeSlots = append(req.TimeSlots, api.TimeSlotRequest{
				StartTime:   ts.StartTime,
				EndTime:     ts.EndTime,
				MaxPatients: ts.MaxPatients,
				IsAvailable: &open,
			})
		}
		body.Schedules = append(body.Schedules, req)
	}

	var resp api.ScheduleResponse
	if err := c.do(ctx, http.MethodPut, "/doctors/"+doctorID.String()+"/schedule", nil, body, &resp); err != nil {
		return nil, err
	}
	return resp.Schedules, nil
}

func (c *Client) ResolveSlots(ctx context.Context, doctorID uuid.UUID, date string) ([]appointment.TimeSlot, error) {
	q := url.Values{"date": {date}}
	var resp api.SlotsResponse
	if err := c.do(ctx, http.MethodGet, "/doctors/"+doctorID.String()+"/slots", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Slots, nil
}

func (c *Client) CommitBooking(ctx context.Context, req appointment.BookingRequest) (*appointment.Appointment, error) {
	body := api.CreateAppointmentRequest{
		PatientID:       req.PatientID.String(),
		DoctorID:        req.DoctorID.String(),
		TimeSlotID:      req.TimeSlotID.String(),
		AppointmentDate: req.AppointmentDate,
		AppointmentTime: req.AppointmentTime,
		Symptoms:        req.Symptoms,
		Notes:           req.Notes,
	}
	if req.SpecialtyID != nil {
		body.SpecialtyID = req.SpecialtyID.String()
	}

	var appt appointment.Appointment
	if err := c.do(ctx, http.MethodPost, "/appointments", nil, body, &appt); err != nil {
		return nil, err
	}
	return &appt, nil
}

func (c *Client) Transition(ctx context.Context, id uuid.UUID, action appointment.Action, reason string) (*appointment.Appointment, error) {
	body := api.TransitionRequest{Action: string(action), Reason: reason}
	var appt appointment.Appointment
	if err := c.do(ctx, http.MethodPost, "/appointments/"+id.String()+"/transitions", nil, body, &appt); err != nil {
		return nil, err
	}
	return &appt, nil
}

func (c *Client) GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	var appt appointment.Appointment
	if err := c.do(ctx, http.MethodGet, "/appointments/"+id.String(), nil, nil, &appt); err != nil {
		return nil, err
	}
	return &appt, nil
}

func (c *Client) ListAppointments(ctx context.Context, f appointment.Filter) ([]appointment.Appointment, error) {
	var resp api.ListAppointmentsResponse
	if err := c.do(ctx, http.MethodGet, "/appointments", filterQuery(f), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Appointments, nil
}

func (c *Client) Conflicts(ctx context.Context, f appointment.Filter) ([]appointment.ConflictPair, error) {
	var resp api.ConflictsResponse
	if err := c.do(ctx, http.MethodGet, "/appointments/conflicts", filterQuery(f), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Pairs, nil
}

// Bulk runs a server-side bulk transition in one request.
func (c *Client) Bulk(ctx context.Context, ids []uuid.UUID, action appointment.Action) (bulk.Result, error) {
	body := api.BulkRequest{IDs: make([]string, 0, len(ids)), Action: string(action)}
	for _, id := range ids {
		body.IDs = append(body.IDs, id.String())
	}
	var res bulk.Result
	if err := c.do(ctx, http.MethodPost, "/appointments/bulk", nil, body, &res); err != nil {
		return bulk.Result{}, err
	}
	return res, nil
}

func filterQuery(f appointment.Filter) url.Values {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.DoctorID != uuid.Nil {
		q.Set("doctor_id", f.DoctorID.String())
	}
	if f.PatientID != uuid.Nil {
		q.Set("patient_id", f.PatientID.String())
	}
	if f.DateFrom != "" {
		q.Set("from", f.DateFrom)
	}
	if f.DateTo != "" {
		q.Set("to", f.DateTo)
	}
	return q
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s %s: %v", appointment.ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Str("request_id", resp.Header.Get("X-Request-ID")).
		Msg("api call")

	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	var body api.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
		apiErr.Code = body.Error
		apiErr.Details = body.Details
	}
	if apiErr.Code == "" {
		apiErr.Code = strings.ToLower(strings.ReplaceAll(http.StatusText(resp.StatusCode), " ", "_"))
	}

	if sentinel, ok := codeErrors[apiErr.Code]; ok {
		apiErr.err = sentinel
	} else if resp.StatusCode >= http.StatusInternalServerError {
		apiErr.err = appointment.ErrUnavailable
	}
	return apiErr
}

// IsUnavailable reports whether err means the API could not be reached or failed server-side.
func IsUnavailable(err error) bool {
	return errors.Is(err, appointment.ErrUnavailable)
}
