package publish

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/roomiegr/roomie/internal/errs"
	"github.com/roomiegr/roomie/internal/model"
	"github.com/roomiegr/roomie/internal/repository"
	"github.com/roomiegr/roomie/internal/wizard"
)

// Defaults for Options.
const (
	DefaultThreshold     = 80
	DefaultRedirectDelay = 2 * time.Second
)

// Remediation names the screen the user is sent to when a gate fails.
type Remediation string

const (
	RemediationNone         Remediation = ""
	RemediationProfile      Remediation = "profile"
	RemediationVerification Remediation = "verification"
	RemediationFixFields    Remediation = "fix-fields"
)

// Draft is the wizard side of a publish attempt.
type Draft interface {
	Flush(ctx context.Context) error
	Draft() model.ListingDraft
}

// ProfileChecker reports a user's profile completion percentage.
type ProfileChecker interface {
	Completion(ctx context.Context, userID uuid.UUID) (int, error)
}

// PhoneChecker reports whether a user's phone verification is verified.
type PhoneChecker interface {
	PhoneVerified(ctx context.Context, userID uuid.UUID) (bool, error)
}

// CacheRefresher rebuilds the search cache after a publish.
type CacheRefresher interface {
	Refresh(ctx context.Context) error
}

// Options tune a Gate.
type Options struct {
	Threshold     int
	RedirectDelay time.Duration
	Observer      Observer
}

// Result describes how a publish attempt ended. A failed gate is a normal result with a
// Remediation, not an error.
type Result struct {
	State         State                     `json:"state"`
	Remediation   Remediation               `json:"remediation,omitempty"`
	Completion    int                       `json:"completion,omitempty"`
	Warnings      []model.ValidationWarning `json:"warnings,omitempty"`
	Room          *model.PublishedRoom      `json:"room,omitempty"`
	RedirectTo    string                    `json:"redirect_to,omitempty"`
	RedirectAfter time.Duration             `json:"redirect_after,omitempty"`
	Trace         []State                   `json:"trace"`
}

// Gate evaluates the publish preconditions and performs the publish.
type Gate struct {
	profiles ProfileChecker
	phones   PhoneChecker
	procs    repository.ProcedureRepository
	photos   repository.PhotoRepository
	cache    CacheRefresher
	log      *zap.Logger
	opts     Options

	inflight sync.Map // listing id -> struct{}
}

// NewGate constructs a Gate.
func NewGate(profiles ProfileChecker, phones PhoneChecker, procs repository.ProcedureRepository,
	photos repository.PhotoRepository, cache CacheRefresher, log *zap.Logger, opts Options) *Gate {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.RedirectDelay <= 0 {
		opts.RedirectDelay = DefaultRedirectDelay
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{profiles: profiles, phones: phones, procs: procs, photos: photos, cache: cache, log: log, opts: opts}
}

// Publish runs the gates in order and stops at the first one that fails. The atomic publish is
// only called when every gate passes.
func (g *Gate) Publish(ctx context.Context, d Draft) (*Result, error) {
	res := &Result{}
	m := NewMachine(func(from, to State) {
		res.Trace = append(res.Trace, to)
		if g.opts.Observer != nil {
			g.opts.Observer(from, to)
		}
	})
	res.Trace = append(res.Trace, m.Current())

	fail := func(err error) (*Result, error) {
		if ferr := m.Fail(); ferr != nil {
			err = errors.Join(err, ferr)
		}
		res.State = m.Current()
		return res, err
	}
	// stop hands the user a remediation; the attempt is not an error and the machine
	// goes back to Idle so it can be retried.
	stop := func(r Remediation) (*Result, error) {
		res.Remediation = r
		if err := m.Transition(Idle); err != nil {
			return fail(err)
		}
		res.State = m.Current()
		return res, nil
	}

	if err := m.Transition(Saving); err != nil {
		return fail(err)
	}
	if err := d.Flush(ctx); err != nil {
		return fail(fmt.Errorf("save draft: %w", err))
	}
	draft := d.Draft()
	if draft.ID == nil {
		return fail(errs.ErrDraftNotSaved)
	}
	listingID := *draft.ID
	if _, busy := g.inflight.LoadOrStore(listingID, struct{}{}); busy {
		return fail(fmt.Errorf("%w: publish already running", errs.ErrAlreadyExists))
	}
	defer g.inflight.Delete(listingID)
	log := g.log.With(zap.Stringer("listing_id", listingID), zap.Stringer("owner_id", draft.OwnerID))

	if err := m.Transition(CheckingProfile); err != nil {
		return fail(err)
	}
	pct, err := g.profiles.Completion(ctx, draft.OwnerID)
	if err != nil {
		return fail(fmt.Errorf("profile completion: %w", err))
	}
	res.Completion = pct
	if pct < g.opts.Threshold {
		log.Info("publish blocked: profile incomplete", zap.Int("completion", pct))
		return stop(RemediationProfile)
	}

	if err := m.Transition(CheckingVerification); err != nil {
		return fail(err)
	}
	ok, err := g.phones.PhoneVerified(ctx, draft.OwnerID)
	if err != nil {
		return fail(fmt.Errorf("phone verification: %w", err))
	}
	if !ok {
		log.Info("publish blocked: phone not verified")
		return stop(RemediationVerification)
	}

	if err := m.Transition(Validating); err != nil {
		return fail(err)
	}
	warnings, err := g.procs.ValidateListing(ctx, listingID)
	if err != nil {
		return fail(fmt.Errorf("validate listing: %w", err))
	}
	blocking := false
	for i := range warnings {
		warnings[i].FixStep = int(wizard.FieldStep(warnings[i].Field))
		if warnings[i].Blocking() {
			blocking = true
		}
	}
	res.Warnings = warnings
	if blocking {
		log.Info("publish blocked: validation errors", zap.Int("warnings", len(warnings)))
		return stop(RemediationFixFields)
	}

	if err := m.Transition(Publishing); err != nil {
		return fail(err)
	}
	room, err := g.procs.PublishListing(ctx, listingID)
	if err != nil {
		return fail(fmt.Errorf("publish listing: %w", err))
	}
	res.Room = &room
	log = log.With(zap.Stringer("room_id", room.RoomID))

	if err := m.Transition(InsertingPhotos); err != nil {
		return fail(err)
	}
	if err := g.photos.InsertRoomPhotos(ctx, roomPhotos(room.RoomID, draft.Photos)); err != nil {
		return fail(fmt.Errorf("insert photos: %w", err))
	}

	if err := m.Transition(RefreshingCache); err != nil {
		return fail(err)
	}
	if err := g.cache.Refresh(ctx); err != nil {
		log.Warn("search cache refresh failed", zap.Error(err))
	}

	if err := m.Transition(Done); err != nil {
		return fail(err)
	}
	res.State = m.Current()
	res.RedirectTo = "/rooms/" + room.Slug
	res.RedirectAfter = g.opts.RedirectDelay
	log.Info("listing published", zap.String("slug", room.Slug), zap.Int("photos", len(draft.Photos)))
	return res, nil
}

// roomPhotos orders photo records by their position in the draft; the first one is the cover.
func roomPhotos(roomID uuid.UUID, urls []string) []model.RoomPhoto {
	out := make([]model.RoomPhoto, 0, len(urls))
	for i, u := range urls {
		out = append(out, model.RoomPhoto{RoomID: roomID, URL: u, SortOrder: i, IsCover: i == 0})
	}
	return out
}
