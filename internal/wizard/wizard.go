package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/roomiegr/roomie/internal/draft"
	"github.com/roomiegr/roomie/internal/errs"
	"github.com/roomiegr/roomie/internal/model"
)

// IncompleteError lists the fields missing on a step.
type IncompleteError struct {
	Step   Step
	Labels []string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("step %s: missing %s", e.Step, strings.Join(e.Labels, ", "))
}

func (e *IncompleteError) Unwrap() error { return errs.ErrStepIncomplete }

// Wizard is one owner's live pass through the listing steps.
type Wizard struct {
	ID      uuid.UUID
	OwnerID uuid.UUID

	saver *draft.Autosaver

	mu   sync.Mutex // serializes navigation
	step Step

	photoMu sync.Mutex

	lastUsed atomic.Int64 // unix nanos
}

// New starts a wizard at the first step over an autosaver.
func New(id, ownerID uuid.UUID, saver *draft.Autosaver) *Wizard {
	w := &Wizard{ID: id, OwnerID: ownerID, saver: saver, step: StepPropertyType}
	w.touch()
	return w
}

// State is a snapshot for display.
type State struct {
	ID     uuid.UUID          `json:"wizard_id"`
	Step   Step               `json:"step"`
	Name   string             `json:"step_name"`
	Steps  []Step             `json:"steps"`
	Draft  model.ListingDraft `json:"draft"`
	Status draft.Status       `json:"save_status"`
}

// State returns the current step, the visible steps and the local draft.
func (w *Wizard) State() State {
	d := w.saver.Draft()
	w.mu.Lock()
	step := w.settle(d.PropertyType)
	w.mu.Unlock()
	return State{
		ID:     w.ID,
		Step:   step,
		Name:   step.String(),
		Steps:  Visible(d.PropertyType),
		Draft:  d,
		Status: w.saver.Status(),
	}
}

// Step returns the current step.
func (w *Wizard) Step() Step {
	pt := w.saver.Draft().PropertyType
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.settle(pt)
}

// settle moves off a step the property type no longer shows. Callers hold w.mu.
func (w *Wizard) settle(propertyType string) Step {
	if !shown(w.step, propertyType) {
		w.step = prevVisible(w.step, propertyType)
	}
	return w.step
}

// Draft returns the local draft.
func (w *Wizard) Draft() model.ListingDraft { return w.saver.Draft() }

// Update applies a patch locally and schedules its save. It does not wait for navigation; a
// step hidden by a new property type is left on the next read of the step.
func (w *Wizard) Update(p model.DraftPatch) model.ListingDraft {
	w.touch()
	return w.saver.Update(p)
}

// Flush persists pending edits now.
func (w *Wizard) Flush(ctx context.Context) error { return w.saver.Flush(ctx) }

// Next checks the current step's fields, saves pending edits and advances. A failed save keeps
// the wizard on the current step. Steps after location need a saved draft; without one the
// wizard moves back to location and returns errs.ErrDraftNotSaved.
func (w *Wizard) Next(ctx context.Context) (Step, error) {
	w.touch()
	w.mu.Lock()
	defer w.mu.Unlock()

	d := w.saver.Draft()
	w.settle(d.PropertyType)
	if miss := missing(stepRequirements[w.step], d); len(miss) > 0 {
		return w.step, &IncompleteError{Step: w.step, Labels: miss}
	}
	if len(d.PendingUploads) > 0 && w.step == StepPhotos {
		return w.step, &IncompleteError{Step: w.step, Labels: []string{"Photos (uploading)"}}
	}
	if err := w.saver.Flush(ctx); err != nil {
		return w.step, err
	}

	d = w.saver.Draft()
	target := nextVisible(w.step, d.PropertyType)
	if target > StepLocation && d.ID == nil {
		w.step = StepLocation
		return w.step, fmt.Errorf("%w: save the location before continuing", errs.ErrDraftNotSaved)
	}
	w.step = target
	return w.step, nil
}

// Prev moves to the previous visible step. It does not save.
func (w *Wizard) Prev() Step {
	w.touch()
	w.mu.Lock()
	defer w.mu.Unlock()
	pt := w.saver.Draft().PropertyType
	if shown(w.step, pt) {
		w.step = prevVisible(w.step, pt)
	} else {
		w.settle(pt)
	}
	return w.step
}

// GoTo jumps to a visible step, as the "fix field" action does.
func (w *Wizard) GoTo(s Step) (Step, error) {
	w.touch()
	w.mu.Lock()
	defer w.mu.Unlock()

	d := w.saver.Draft()
	w.settle(d.PropertyType)
	if !s.Valid() || !shown(s, d.PropertyType) {
		return w.step, fmt.Errorf("%w: step %d is not part of this listing", errs.ErrValidation, s)
	}
	if s > StepLocation && d.ID == nil {
		return w.step, fmt.Errorf("%w: save the location before continuing", errs.ErrDraftNotSaved)
	}
	w.step = s
	return w.step, nil
}

// Review projects the local draft for the final confirmation.
func (w *Wizard) Review() ReviewResult {
	w.touch()
	return Review(w.saver.Draft())
}

// Close flushes pending edits within ctx and stops the autosaver. The draft stays on the
// backend as a resumable row.
func (w *Wizard) Close(ctx context.Context) error {
	var err error
	if w.saver.Status().Dirty {
		err = w.saver.Drain(ctx)
	}
	w.saver.Close()
	if errors.Is(err, draft.ErrClosed) {
		return nil
	}
	return err
}

func (w *Wizard) touch() { w.lastUsed.Store(time.Now().UnixNano()) }

func (w *Wizard) idleSince() time.Time { return time.Unix(0, w.lastUsed.Load()) }
