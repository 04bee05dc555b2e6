package wizard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/roomiegr/roomie/internal/draft"
	"github.com/roomiegr/roomie/internal/errs"
	"github.com/roomiegr/roomie/internal/model"
)

// DraftStore persists and loads drafts.
type DraftStore interface {
	draft.Store
	GetDraft(ctx context.Context, id uuid.UUID) (*model.ListingDraft, error)
}

// Registry keeps the live wizards of this process and closes idle ones.
type Registry struct {
	store  DraftStore
	logger *zap.Logger
	opts   draft.Options
	idle   time.Duration

	mu   sync.Mutex
	live map[uuid.UUID]*Wizard

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRegistry creates a registry. Wizards unused for idle are flushed and closed by the sweep loop.
func NewRegistry(store DraftStore, logger *zap.Logger, opts draft.Options, idle time.Duration) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		store:  store,
		logger: logger,
		opts:   opts,
		idle:   idle,
		live:   make(map[uuid.UUID]*Wizard),
	}
}

// Start opens a wizard for ownerID. With a listing id the draft is loaded from the backend;
// a listing that already has a live wizard for the same owner reuses it.
func (r *Registry) Start(ctx context.Context, ownerID uuid.UUID, listingID *uuid.UUID) (*Wizard, error) {
	d := model.ListingDraft{OwnerID: ownerID, Status: model.ListingDraftStatus}
	if listingID != nil {
		if w := r.byListing(ownerID, *listingID); w != nil {
			w.touch()
			return w, nil
		}
		got, err := r.store.GetDraft(ctx, *listingID)
		if err != nil {
			return nil, fmt.Errorf("load draft: %w", err)
		}
		if got.OwnerID != ownerID {
			return nil, errs.ErrNotFound
		}
		if got.Status != model.ListingDraftStatus {
			return nil, fmt.Errorf("%w: listing is %s", errs.ErrValidation, got.Status)
		}
		d = *got
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// another Start for the same listing may have finished while the draft was loading
	if listingID != nil {
		if w := r.byListingLocked(ownerID, *listingID); w != nil {
			w.touch()
			return w, nil
		}
	}
	id := uuid.Must(uuid.NewV4())
	log := r.logger.With(zap.Stringer("wizard_id", id), zap.Stringer("owner_id", ownerID))
	saver := draft.NewAutosaver(context.WithoutCancel(ctx), r.store, d, log, r.opts)
	w := New(id, ownerID, saver)
	r.live[id] = w
	log.Info("wizard started", zap.Bool("resumed", listingID != nil))
	return w, nil
}

func (r *Registry) byListing(ownerID, listingID uuid.UUID) *Wizard {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byListingLocked(ownerID, listingID)
}

// byListingLocked needs r.mu held.
func (r *Registry) byListingLocked(ownerID, listingID uuid.UUID) *Wizard {
	for _, w := range r.live {
		if w.OwnerID != ownerID {
			continue
		}
		if d := w.Draft(); d.ID != nil && *d.ID == listingID {
			return w
		}
	}
	return nil
}

// Get returns a live wizard of ownerID.
func (r *Registry) Get(ownerID, id uuid.UUID) (*Wizard, error) {
	r.mu.Lock()
	w, ok := r.live[id]
	r.mu.Unlock()
	if !ok || w.OwnerID != ownerID {
		return nil, errs.ErrNotFound
	}
	return w, nil
}

// Remove closes a wizard after flushing its pending edits.
func (r *Registry) Remove(ctx context.Context, ownerID, id uuid.UUID) error {
	r.mu.Lock()
	w, ok := r.live[id]
	if ok && w.OwnerID == ownerID {
		delete(r.live, id)
	}
	r.mu.Unlock()
	if !ok || w.OwnerID != ownerID {
		return errs.ErrNotFound
	}
	return w.Close(ctx)
}

// Len returns the number of live wizards.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// StartSweeper runs the idle sweep every interval until Stop.
func (r *Registry) StartSweeper(ctx context.Context, every time.Duration) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.loop(ctx, every)
}

// Stop ends the sweep loop and closes every live wizard, flushing within ctx.
func (r *Registry) Stop(ctx context.Context) {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
	r.mu.Lock()
	all := make([]*Wizard, 0, len(r.live))
	for id, w := range r.live {
		all = append(all, w)
		delete(r.live, id)
	}
	r.mu.Unlock()
	for _, w := range all {
		if err := w.Close(ctx); err != nil {
			r.logger.Warn("wizard close failed", zap.Stringer("wizard_id", w.ID), zap.Error(err))
		}
	}
}

func (r *Registry) loop(ctx context.Context, every time.Duration) {
	defer close(r.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := r.sweep(ctx, time.Now()); n > 0 {
				r.logger.Debug("idle wizards closed", zap.Int("count", n))
			}
		case <-ctx.Done():
			return
		}
	}
}

// sweep closes wizards idle since before now-idle and returns how many were closed.
func (r *Registry) sweep(ctx context.Context, now time.Time) int {
	cutoff := now.Add(-r.idle)
	var stale []*Wizard
	r.mu.Lock()
	for id, w := range r.live {
		if w.idleSince().Before(cutoff) {
			stale = append(stale, w)
			delete(r.live, id)
		}
	}
	r.mu.Unlock()

	for _, w := range stale {
		if err := w.Close(ctx); err != nil {
			r.logger.Warn("idle wizard flush failed", zap.Stringer("wizard_id", w.ID), zap.Error(err))
		}
	}
	return len(stale)
}
