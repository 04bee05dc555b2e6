// Package admin implements the back-office: listing moderation, photo health and the activity log.
package admin

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/roomiegr/roomie/internal/errs"
	"github.com/roomiegr/roomie/internal/model"
	"github.com/roomiegr/roomie/internal/notify"
	"github.com/roomiegr/roomie/internal/repository"
)

// Moderation actions.
const (
	ActionApprove   = "approve"
	ActionSuspend   = "suspend"
	ActionReinstate = "reinstate"
)

// Invoker calls a backend edge function.
type Invoker interface {
	Invoke(ctx context.Context, name string, in, out any) error
}

// CacheRefresher rebuilds search results after a room's visibility changes.
type CacheRefresher interface {
	Refresh(ctx context.Context) error
}

// Deps are the collaborators of a Service.
type Deps struct {
	Rooms    repository.RoomRepository
	Photos   repository.PhotoRepository
	Activity repository.ActivityRepository
	Invoker  Invoker
	Notifier notify.Notifier
	Cache    CacheRefresher
	Prober   Prober
	Logger   *zap.Logger
	Scan     ScanOptions
}

// Service runs back-office actions.
type Service struct {
	rooms    repository.RoomRepository
	photos   repository.PhotoRepository
	activity repository.ActivityRepository
	inv      Invoker
	notifier notify.Notifier
	cache    CacheRefresher
	prober   Prober
	log      *zap.Logger
	scan     ScanOptions
	scanning atomic.Bool
	now      func() time.Time
}

// NewService constructs the back-office service.
func NewService(d Deps) *Service {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	prober := d.Prober
	if prober == nil {
		prober = NewHTTPProber(nil)
	}
	return &Service{
		rooms:    d.Rooms,
		photos:   d.Photos,
		activity: d.Activity,
		inv:      d.Invoker,
		notifier: d.Notifier,
		cache:    d.Cache,
		prober:   prober,
		log:      log,
		scan:     d.Scan.withDefaults(),
		now:      time.Now,
	}
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return 50
	}
	return limit
}

// PendingListings returns rooms waiting for moderation, oldest first.
func (s *Service) PendingListings(ctx context.Context, limit int) ([]model.ModerationItem, error) {
	return s.rooms.ListModeration(ctx, model.ModerationPending, clampLimit(limit))
}

// Moderate applies a moderation action to a published room.
func (s *Service) Moderate(ctx context.Context, actor, roomID uuid.UUID, action, reason string) error {
	reason = strings.TrimSpace(reason)
	var status string
	switch action {
	case ActionApprove, ActionReinstate:
		status = model.ModerationApproved
	case ActionSuspend:
		if reason == "" {
			return errs.ErrReasonRequired
		}
		status = model.ModerationSuspended
	default:
		return fmt.Errorf("%w: unknown action %q", errs.ErrValidation, action)
	}

	if err := s.rooms.SetModeration(ctx, roomID, status, reason); err != nil {
		return fmt.Errorf("set moderation: %w", err)
	}
	s.record(ctx, &model.ActivityEntry{
		ActorID:   actor,
		Action:    model.ActivityRoomModerate,
		SubjectID: &roomID,
		Details:   map[string]any{"action": action, "reason": reason},
	})

	if action != ActionApprove && s.cache != nil {
		if err := s.cache.Refresh(ctx); err != nil {
			s.log.Warn("search cache refresh after moderation", zap.Error(err))
		}
	}
	return nil
}

// Activity returns the activity log since a point in time, newest first.
func (s *Service) Activity(ctx context.Context, since time.Time, limit int) ([]model.ActivityEntry, error) {
	return s.activity.ListActivity(ctx, since, clampLimit(limit))
}

func (s *Service) record(ctx context.Context, e *model.ActivityEntry) {
	if err := s.activity.LogActivity(ctx, e); err != nil {
		s.log.Warn("activity log", zap.String("action", e.Action), zap.Error(err))
	}
}
