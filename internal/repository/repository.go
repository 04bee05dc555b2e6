// Package repository declares the storage contracts of the application tier.
package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/roomiegr/roomie/internal/model"
)

// AnyVersion disables the optimistic version check on draft updates.
const AnyVersion int64 = -1

// DraftRepository persists listing drafts.
type DraftRepository interface {
	// CreateDraft inserts a draft row for ownerID with the given columns and returns its identity.
	CreateDraft(ctx context.Context, ownerID uuid.UUID, changes model.DraftChanges) (model.DraftSaved, error)
	// UpdateDraft writes only the given columns. A baseVersion other than AnyVersion must match
	// the stored version, otherwise errs.ErrVersionConflict is returned.
	UpdateDraft(ctx context.Context, id uuid.UUID, baseVersion int64, changes model.DraftChanges) (model.DraftSaved, error)
	// GetDraft loads a draft by id.
	GetDraft(ctx context.Context, id uuid.UUID) (*model.ListingDraft, error)
	// ListDrafts returns the owner's listings, most recently updated first.
	ListDrafts(ctx context.Context, ownerID uuid.UUID) ([]model.ListingDraft, error)
}

// ProcedureRepository calls the backend's stored procedures.
type ProcedureRepository interface {
	// ValidateListing returns the backend's validation warnings for a listing.
	ValidateListing(ctx context.Context, listingID uuid.UUID) ([]model.ValidationWarning, error)
	// PublishListing atomically publishes a listing and returns the created room.
	PublishListing(ctx context.Context, listingID uuid.UUID) (model.PublishedRoom, error)
	// RefreshSearchCache rebuilds the backend search cache.
	RefreshSearchCache(ctx context.Context) error
}

// PhotoRepository stores published room photos.
type PhotoRepository interface {
	// InsertRoomPhotos inserts photo rows for a room.
	InsertRoomPhotos(ctx context.Context, photos []model.RoomPhoto) error
	// ListPublishedPhotos pages over photos of published rooms.
	ListPublishedPhotos(ctx context.Context, limit, offset int) ([]model.PhotoRef, error)
}

// ProfileRepository persists user profiles.
type ProfileRepository interface {
	// GetProfile loads a profile by user id.
	GetProfile(ctx context.Context, userID uuid.UUID) (*model.Profile, error)
	// SaveProfile upserts the full profile row.
	SaveProfile(ctx context.Context, p *model.Profile) error
}

// VerificationRepository persists verification records.
type VerificationRepository interface {
	// ListByUser returns all verification rows of a user.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Verification, error)
	// Get loads a verification by id.
	Get(ctx context.Context, id uuid.UUID) (*model.Verification, error)
	// Upsert writes a row keyed by (user_id, kind, side) and fills its id and timestamps.
	Upsert(ctx context.Context, v *model.Verification) error
	// SetStatus records a review decision.
	SetStatus(ctx context.Context, id uuid.UUID, status string, reviewer *uuid.UUID, note string) error
	// ListPending returns rows waiting for review, oldest first.
	ListPending(ctx context.Context, limit int) ([]model.Verification, error)
}

// ThreadRepository persists conversations between seekers and listers.
type ThreadRepository interface {
	// ListingOwner returns the owner of a published listing.
	ListingOwner(ctx context.Context, listingID uuid.UUID) (uuid.UUID, error)
	// CreateThread inserts a thread. A thread for the same (listing, seeker) yields errs.ErrAlreadyExists.
	CreateThread(ctx context.Context, t *model.Thread) error
	// FindThread looks up the thread for (listing, seeker).
	FindThread(ctx context.Context, listingID, seekerID uuid.UUID) (*model.Thread, error)
	// GetThread loads a thread by id.
	GetThread(ctx context.Context, id uuid.UUID) (*model.Thread, error)
	// ListThreads returns the threads a user takes part in, most recent activity first.
	ListThreads(ctx context.Context, userID uuid.UUID) ([]model.Thread, error)
	// TransitionThread moves a thread from one status to another; a thread no longer in
	// `from` yields errs.ErrVersionConflict.
	TransitionThread(ctx context.Context, id uuid.UUID, from, to string) error
	// AppendMessage inserts a message and bumps the thread's last activity.
	AppendMessage(ctx context.Context, m *model.Message) error
	// ListMessages returns up to q.Limit messages of a thread in creation order: the newest
	// ones, the newest ones older than q.Before, or the oldest ones newer than q.After.
	ListMessages(ctx context.Context, threadID uuid.UUID, q model.MessageQuery) ([]model.Message, error)
}

// RoomRepository reads published rooms and their moderation state.
type RoomRepository interface {
	// SearchRooms returns one page of published rooms matching f and the total match count.
	SearchRooms(ctx context.Context, f model.SearchFilters) ([]model.SearchHit, int, error)
	// ListModeration returns rooms in the given moderation status.
	ListModeration(ctx context.Context, status string, limit int) ([]model.ModerationItem, error)
	// SetModeration changes a room's moderation status.
	SetModeration(ctx context.Context, roomID uuid.UUID, status, reason string) error
}

// ActivityRepository stores the admin activity log.
type ActivityRepository interface {
	// LogActivity appends an entry.
	LogActivity(ctx context.Context, e *model.ActivityEntry) error
	// ListActivity returns entries newer than since, most recent first.
	ListActivity(ctx context.Context, since time.Time, limit int) ([]model.ActivityEntry, error)
}
