// Package console is the staff appointment list: a read-mostly cache of the
// backend's appointments, refetched after every mutation, with a selection set
// for bulk actions and conflict flags.
package console

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/bulk"
)

type Backend interface {
	ListAppointments(ctx context.Context, f appointment.Filter) ([]appointment.Appointment, error)
	Transition(ctx context.Context, id uuid.UUID, action appointment.Action, reason string) (*appointment.Appointment, error)
}

// Row is one rendered line of the list.
type Row struct {
	Appointment appointment.Appointment `json:"appointment"`
	Label       string                  `json:"label"`
	Variant     string                  `json:"variant"`
	Conflict    bool                    `json:"conflict"`
	Selected    bool                    `json:"selected"`
}

type View struct {
	backend  Backend
	executor *bulk.Executor
	logger   zerolog.Logger
	now      func() time.Time

	mu        sync.RWMutex
	filter    appointment.Filter
	filterGen uint64 // bumped by SetFilter
	started   uint64 // refreshes begun
	applied   uint64 // refresh generation currently shown
	items     []appointment.Appointment
	conflicts map[uuid.UUID]struct{}
	selected  map[uuid.UUID]struct{}
	loadedAt  time.Time
}

type Option func(*View)

func WithLogger(l zerolog.Logger) Option {
	return func(v *View) { v.logger = l }
}

// WithExecutor replaces the default bulk executor built on the backend.
func WithExecutor(e *bulk.Executor) Option {
	return func(v *View) { v.executor = e }
}

func WithFilter(f appointment.Filter) Option {
	return func(v *View) { v.filter = f }
}

func NewView(backend Backend, opts ...Option) *View {
	v := &View{
		backend:   backend,
		logger:    zerolog.Nop(),
		now:       time.Now,
		conflicts: map[uuid.UUID]struct{}{},
		selected:  map[uuid.UUID]struct{}{},
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.executor == nil {
		v.executor = bulk.NewExecutor(backend, bulk.WithLogger(v.logger))
	}
	return v
}

// Refresh replaces the cached list with a complete listing from the backend.
// On failure the previous list stays in place. Overlapping refreshes may finish
// in any order: a listing older than the one shown, or fetched under a filter
// that has since been replaced, is discarded.
func (v *View) Refresh(ctx context.Context) error {
	v.mu.Lock()
	v.started++
	gen, filterGen, f := v.started, v.filterGen, v.filter
	v.mu.Unlock()

	items, err := v.backend.ListAppointments(ctx, f)
	if err != nil {
		v.logger.Warn().Err(err).Msg("appointment refresh failed, keeping previous list")
		return fmt.Errorf("refresh appointments: %w", err)
	}

	conflicts := appointment.DetectConflicts(items)

	v.mu.Lock()
	defer v.mu.Unlock()
	if gen < v.applied || filterGen != v.filterGen {
		v.logger.Debug().Uint64("generation", gen).Msg("discarding stale appointment listing")
		return nil
	}
	v.applied = gen
	v.items = items
	v.conflicts = conflicts
	v.loadedAt = v.now()

	present := make(map[uuid.UUID]struct{}, len(items))
	for _, a := range items {
		present[a.ID] = struct{}{}
	}
	for id := range v.selected {
		if _, ok := present[id]; !ok {
			delete(v.selected, id)
		}
	}
	return nil
}

// SetFilter changes the listing filter and reloads.
func (v *View) SetFilter(ctx context.Context, f appointment.Filter) error {
	if err := f.Validate(); err != nil {
		return err
	}
	v.mu.Lock()
	v.filter = f
	v.filterGen++
	v.mu.Unlock()
	return v.Refresh(ctx)
}

func (v *View) Appointments() []appointment.Appointment {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]appointment.Appointment(nil), v.items...)
}

func (v *View) LoadedAt() time.Time {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.loadedAt
}

func (v *View) Conflicted(id uuid.UUID) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.conflicts[id]
	return ok
}

func (v *View) ConflictCount() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.conflicts)
}

func (v *View) Rows() []Row {
	v.mu.RLock()
	defer v.mu.RUnlock()

	rows := make([]Row, 0, len(v.items))
	for _, a := range v.items {
		_, conflict := v.conflicts[a.ID]
		_, selected := v.selected[a.ID]
		rows = append(rows, Row{
			Appointment: a,
			Label:       a.Status.Label(),
			Variant:     a.Status.Variant(),
			Conflict:    conflict,
			Selected:    selected,
		})
	}
	return rows
}

// Select adds ids present in the current list to the selection.
func (v *View) Select(ids ...uuid.UUID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, id := range ids {
		if v.contains(id) {
			v.selected[id] = struct{}{}
		}
	}
}

func (v *View) Deselect(ids ...uuid.UUID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, id := range ids {
		delete(v.selected, id)
	}
}

func (v *View) Toggle(id uuid.UUID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.selected[id]; ok {
		delete(v.selected, id)
		return
	}
	if v.contains(id) {
		v.selected[id] = struct{}{}
	}
}

func (v *View) SelectAll() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, a := range v.items {
		v.selected[a.ID] = struct{}{}
	}
}

func (v *View) ClearSelection() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selected = map[uuid.UUID]struct{}{}
}

// Selected returns the selection in list order.
func (v *View) Selected() []uuid.UUID {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(v.selected))
	for _, a := range v.items {
		if _, ok := v.selected[a.ID]; ok {
			out = append(out, a.ID)
		}
	}
	return out
}

// Transition applies one lifecycle action. Input is validated before any backend
// call. A failed transition leaves the list untouched; a successful one refetches
// it before returning. The returned appointment is non-nil whenever the backend
// accepted the transition, even if the refetch failed.
func (v *View) Transition(ctx context.Context, id uuid.UUID, action appointment.Action, reason string) (*appointment.Appointment, error) {
	if err := appointment.ValidateTransitionInput(action, reason); err != nil {
		return nil, err
	}

	updated, err := v.backend.Transition(ctx, id, action, reason)
	if err != nil {
		return nil, err
	}

	if err := v.Refresh(ctx); err != nil {
		return updated, err
	}
	return updated, nil
}

// ApplyBulk runs action over the current selection, then refetches the list
// and clears the selection regardless of the outcome.
func (v *View) ApplyBulk(ctx context.Context, action appointment.Action) (bulk.Result, error) {
	ids := v.Selected()
	if len(ids) == 0 {
		return bulk.Result{Failures: []bulk.Failure{}}, fmt.Errorf("%w: no appointments selected", appointment.ErrValidation)
	}

	res, bulkErr := v.executor.Apply(ctx, ids, action)
	if bulkErr != nil && errors.Is(bulkErr, appointment.ErrValidation) {
		return res, bulkErr
	}

	refreshErr := v.Refresh(ctx)
	v.ClearSelection()

	v.logger.Info().
		Str("action", string(action)).
		Int("success_count", res.Succeeded).
		Int("fail_count", res.Failed).
		Msg("bulk action applied")

	return res, errors.Join(bulkErr, refreshErr)
}

func (v *View) contains(id uuid.UUID) bool {
	for _, a := range v.items {
		if a.ID == id {
			return true
		}
	}
	return false
}
