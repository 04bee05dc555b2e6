package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Activity actions written to the admin activity log.
const (
	ActivityImpersonationStart = "impersonation.start"
	ActivityImpersonationExit  = "impersonation.exit"
	ActivityVerificationDecide = "verification.decide"
	ActivityRoomModerate       = "room.moderate"
	ActivityPhotosScan         = "photos.scan"
)

// ActivityEntry is one auditable back-office action.
type ActivityEntry struct {
	ID        uuid.UUID      `json:"id"`
	ActorID   uuid.UUID      `json:"actor_id"`
	Action    string         `json:"action"`
	SubjectID *uuid.UUID     `json:"subject_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// PhotoRef points at one stored photo of a published room.
type PhotoRef struct {
	RoomID uuid.UUID `json:"room_id"`
	URL    string    `json:"url"`
}

// BrokenPhoto is a photo that failed the health probe.
type BrokenPhoto struct {
	PhotoRef
	Status int    `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// PhotoHealthReport summarizes one scan of published photos.
type PhotoHealthReport struct {
	Checked   int           `json:"checked"`
	Healthy   int           `json:"healthy"`
	Broken    []BrokenPhoto `json:"broken"`
	Triggered []uuid.UUID   `json:"validation_triggered"`
	StartedAt time.Time     `json:"started_at"`
	Took      time.Duration `json:"took"`
}
