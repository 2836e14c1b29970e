// Package bulk applies one lifecycle action to many appointments.
//
// Each id is transitioned on its own through the single-item operation. A bulk
// run is not a transaction: failures are isolated per id and reported as counts.
package bulk

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
)

// CancelReason is recorded on every appointment cancelled through a bulk run.
const CancelReason = "Bulk cancelled by admin"

const defaultConcurrency = 4

// Transitioner is the single-item lifecycle operation.
type Transitioner interface {
	Transition(ctx context.Context, id uuid.UUID, action appointment.Action, reason string) (*appointment.Appointment, error)
}

type Failure struct {
	ID      uuid.UUID `json:"id"`
	Message string    `json:"error"`

	err error
}

// Err is the transition error. It is nil for failures decoded from JSON.
func (f Failure) Err() error { return f.err }

type Result struct {
	Succeeded int       `json:"success_count"`
	Failed    int       `json:"fail_count"`
	Failures  []Failure `json:"failures"`
}

func (r Result) Attempted() int { return r.Succeeded + r.Failed }

type Executor struct {
	transitioner Transitioner
	concurrency  int
	logger       zerolog.Logger
	metrics      *metrics.SchedulingMetrics
}

type Option func(*Executor)

// WithConcurrency bounds the number of in-flight transitions. Values below 1 run sequentially.
func WithConcurrency(n int) Option {
	return func(e *Executor) {
		if n < 1 {
			n = 1
		}
		e.concurrency = n
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

func WithMetrics(m *metrics.SchedulingMetrics) Option {
	return func(e *Executor) { e.metrics = m }
}

func NewExecutor(t Transitioner, opts ...Option) *Executor {
	e := &Executor{
		transitioner: t,
		concurrency:  defaultConcurrency,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Supported reports whether action may be applied in bulk.
func Supported(action appointment.Action) bool {
	switch action {
	case appointment.ActionConfirm, appointment.ActionComplete, appointment.ActionCancel:
		return true
	}
	return false
}

// Apply transitions every distinct id and returns once all attempts have settled.
// Partial failure is reported in Result, not as an error. An error is returned only
// for an unsupported action or when every attempt failed with appointment.ErrUnavailable.
func (e *Executor) Apply(ctx context.Context, ids []uuid.UUID, action appointment.Action) (Result, error) {
	if !Supported(action) {
		return Result{}, fmt.Errorf("%w: action %q cannot be applied in bulk", appointment.ErrValidation, action)
	}

	targets := dedupe(ids)
	if len(targets) == 0 {
		return Result{Failures: []Failure{}}, nil
	}

	reason := ""
	if action == appointment.ActionCancel {
		reason = CancelReason
	}

	errs := make([]error, len(targets))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, id := range targets {
		g.Go(func() error {
			_, err := e.transitioner.Transition(ctx, id, action, reason)
			errs[i] = err
			e.metrics.ObserveBulkItem(string(action), err == nil)
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Failures: []Failure{}}
	unavailable := 0
	for i, err := range errs {
		if err == nil {
			res.Succeeded++
			continue
		}
		res.Failed++
		res.Failures = append(res.Failures, Failure{ID: targets[i], Message: err.Error(), err: err})
		if errors.Is(err, appointment.ErrUnavailable) {
			unavailable++
		}
	}

	e.logger.Info().
		Str("action", string(action)).
		Int("success_count", res.Succeeded).
		Int("fail_count", res.Failed).
		Msg("bulk transition finished")

	if unavailable == len(targets) {
		return res, fmt.Errorf("bulk %s: %w", action, appointment.ErrUnavailable)
	}
	return res, nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
