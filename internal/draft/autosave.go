package draft

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/roomiegr/roomie/internal/model"
	"github.com/roomiegr/roomie/internal/repository"
)

// DefaultDelay is the quiet period before a debounced save is sent.
const DefaultDelay = 1100 * time.Millisecond

// ErrClosed is returned by saves attempted after Close.
var ErrClosed = errors.New("autosaver closed")

// Store persists draft rows.
type Store interface {
	// CreateDraft inserts a new draft row owned by ownerID.
	CreateDraft(ctx context.Context, ownerID uuid.UUID, changes model.DraftChanges) (model.DraftSaved, error)
	// UpdateDraft writes the given columns; baseVersion may be repository.AnyVersion.
	UpdateDraft(ctx context.Context, id uuid.UUID, baseVersion int64, changes model.DraftChanges) (model.DraftSaved, error)
}

// Options tune an Autosaver.
type Options struct {
	Delay time.Duration
	// ConflictDetection sends the base version with every update so concurrent writers get
	// errs.ErrVersionConflict instead of silently overwriting each other.
	ConflictDetection bool
	// OnError receives failures of timer-driven saves. Flush returns its error directly.
	OnError func(error)
}

// Status is the save indicator shown next to the form.
type Status struct {
	Saving      bool      `json:"saving"`
	Dirty       bool      `json:"dirty"`
	LastSavedAt time.Time `json:"last_saved_at,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// Autosaver owns one draft: local edits apply immediately, remote writes are debounced,
// diff-based and serialized.
type Autosaver struct {
	store Store
	log   *zap.Logger
	opts  Options

	mu      sync.Mutex
	draft   model.ListingDraft
	pending model.DraftChanges
	timer   *time.Timer
	status  Status
	closed  bool

	saveMu sync.Mutex // one remote write at a time

	ctx    context.Context
	cancel context.CancelFunc
}

// NewAutosaver starts tracking d, which is either empty (no ID) or hydrated from a remote row.
// Timer-driven saves run under a child of ctx, so ctx should carry the owner's identity and
// outlive the request that created the autosaver.
func NewAutosaver(ctx context.Context, store Store, d model.ListingDraft, log *zap.Logger, opts Options) *Autosaver {
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Autosaver{
		store:   store,
		log:     log,
		opts:    opts,
		draft:   d,
		pending: model.DraftChanges{},
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Draft returns a copy of the local draft.
func (a *Autosaver) Draft() model.ListingDraft {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.draft
}

// Status returns the current save indicator.
func (a *Autosaver) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.status
	st.Dirty = len(a.pending) > 0
	return st
}

// Update merges the patch into local state and schedules a debounced save of the changed keys.
// It returns the merged draft.
func (a *Autosaver) Update(p model.DraftPatch) model.ListingDraft {
	a.mu.Lock()
	defer a.mu.Unlock()

	next, changed := Merge(a.draft, p)
	a.draft = next
	for k, v := range changed {
		a.pending[k] = v
	}
	if len(a.pending) > 0 && !a.closed {
		if a.timer != nil {
			a.timer.Stop()
		}
		a.timer = time.AfterFunc(a.opts.Delay, a.fire)
	}
	return next
}

// Flush cancels the debounce timer and persists pending changes now. A draft without a remote
// row is created even when nothing is pending.
func (a *Autosaver) Flush(ctx context.Context) error {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()
	return a.save(ctx)
}

// Drain flushes like Flush but under the autosaver's own context values, so a caller without
// the owner's identity (an idle sweep, shutdown) still writes as the owner. ctx bounds the wait.
func (a *Autosaver) Drain(ctx context.Context) error {
	dctx, cancel := context.WithCancel(context.WithoutCancel(a.ctx))
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return a.Flush(dctx)
}

// Close stops the timer and cancels any in-flight request. Pending edits are dropped.
func (a *Autosaver) Close() {
	a.mu.Lock()
	a.closed = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()
	a.cancel()
}

func (a *Autosaver) fire() {
	err := a.save(a.ctx)
	if err == nil || errors.Is(err, ErrClosed) || errors.Is(err, context.Canceled) {
		return
	}
	a.log.Warn("draft autosave failed", zap.Error(err))
	if a.opts.OnError != nil {
		a.opts.OnError(err)
	}
}

func (a *Autosaver) save(ctx context.Context) error {
	a.saveMu.Lock()
	defer a.saveMu.Unlock()

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	changes := a.pending
	if len(changes) == 0 && a.draft.ID != nil {
		a.mu.Unlock()
		return nil
	}
	a.pending = model.DraftChanges{}
	id, ver, owner := a.draft.ID, a.draft.Version, a.draft.OwnerID
	a.status.Saving = true
	a.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(a.ctx, cancel)
	defer stop()

	var (
		saved model.DraftSaved
		err   error
	)
	if id == nil {
		saved, err = a.store.CreateDraft(ctx, owner, changes)
	} else {
		base := ver
		if !a.opts.ConflictDetection {
			base = repository.AnyVersion
		}
		saved, err = a.store.UpdateDraft(ctx, *id, base, changes)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.status.Saving = false
	if err != nil {
		for k, v := range changes {
			if _, newer := a.pending[k]; !newer {
				a.pending[k] = v
			}
		}
		a.status.LastError = err.Error()
		return fmt.Errorf("save draft: %w", err)
	}
	if a.draft.ID == nil {
		newID := saved.ID
		a.draft.ID = &newID
	}
	a.draft.Version = saved.Version
	a.draft.UpdatedAt = saved.UpdatedAt
	a.status.LastError = ""
	a.status.LastSavedAt = time.Now()
	a.log.Debug("draft saved",
		zap.Stringer("draft_id", saved.ID),
		zap.Int64("version", saved.Version),
		zap.Strings("keys", Keys(changes)),
	)
	return nil
}
