// Package model defines domain entities used by services and repositories.
package model

import (
	"bytes"
	"encoding/json"
	"slices"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Listing lifecycle states.
const (
	ListingDraftStatus     = "draft"
	ListingPublishedStatus = "published"
	ListingArchivedStatus  = "archived"
	ListingSuspendedStatus = "suspended"
)

// Property types. Room details only apply to PropertyRoom.
const (
	PropertyRoom      = "room"
	PropertyApartment = "apartment"
)

// ListingDraft is the working copy of a listing in progress. Fields tagged db:"-" are local only
// and never reach the backend.
type ListingDraft struct {
	ID      *uuid.UUID `json:"id,omitempty" db:"-"` // absent until the first remote write
	OwnerID uuid.UUID  `json:"owner_id" db:"-"`
	Status  string     `json:"status" db:"-"`
	Version int64      `json:"version" db:"-"`

	PropertyType string `json:"property_type" db:"property_type"`
	Title        string `json:"title" db:"title"`
	Description  string `json:"description" db:"description"`

	City         string `json:"city" db:"city"`
	Neighborhood string `json:"neighborhood" db:"neighborhood"`
	Address      string `json:"address" db:"address"`

	PriceMonth    *int  `json:"price_month" db:"price_month"`
	DepositMonths *int  `json:"deposit_months" db:"deposit_months"`
	BillsIncluded *bool `json:"bills_included" db:"bills_included"`

	SizeSqm   *int `json:"size_sqm" db:"size_sqm"`
	Bedrooms  *int `json:"bedrooms" db:"bedrooms"`
	Bathrooms *int `json:"bathrooms" db:"bathrooms"`
	Floor     *int `json:"floor" db:"floor"`

	RoomSizeSqm     *int  `json:"room_size_sqm" db:"room_size_sqm"`
	RoomFurnished   *bool `json:"room_furnished" db:"room_furnished"`
	PrivateBathroom *bool `json:"private_bathroom" db:"private_bathroom"`

	Amenities  []string `json:"amenities" db:"amenities"`
	HouseRules []string `json:"house_rules" db:"house_rules"`

	AvailableFrom  *time.Time `json:"available_from" db:"available_from"`
	AvailableUntil *time.Time `json:"available_until" db:"available_until"`
	MinStayMonths  *int       `json:"min_stay_months" db:"min_stay_months"`

	PrefGender     string `json:"pref_gender" db:"pref_gender"`
	PrefAgeMin     *int   `json:"pref_age_min" db:"pref_age_min"`
	PrefAgeMax     *int   `json:"pref_age_max" db:"pref_age_max"`
	PrefOccupation string `json:"pref_occupation" db:"pref_occupation"`

	Photos []string `json:"photos" db:"photos"`

	// PendingUploads names files still being uploaded; they turn into Photos once stored.
	PendingUploads []string `json:"pending_uploads,omitempty" db:"-"`

	UpdatedAt time.Time `json:"updated_at" db:"-"`
}

// DraftPatch is a partial update of a draft. A nil field means "not provided".
type DraftPatch struct {
	PropertyType *string `json:"property_type,omitempty" db:"property_type"`
	Title        *string `json:"title,omitempty" db:"title"`
	Description  *string `json:"description,omitempty" db:"description"`

	City         *string `json:"city,omitempty" db:"city"`
	Neighborhood *string `json:"neighborhood,omitempty" db:"neighborhood"`
	Address      *string `json:"address,omitempty" db:"address"`

	PriceMonth    *int  `json:"price_month,omitempty" db:"price_month"`
	DepositMonths *int  `json:"deposit_months,omitempty" db:"deposit_months"`
	BillsIncluded *bool `json:"bills_included,omitempty" db:"bills_included"`

	SizeSqm   *int `json:"size_sqm,omitempty" db:"size_sqm"`
	Bedrooms  *int `json:"bedrooms,omitempty" db:"bedrooms"`
	Bathrooms *int `json:"bathrooms,omitempty" db:"bathrooms"`
	Floor     *int `json:"floor,omitempty" db:"floor"`

	RoomSizeSqm     *int  `json:"room_size_sqm,omitempty" db:"room_size_sqm"`
	RoomFurnished   *bool `json:"room_furnished,omitempty" db:"room_furnished"`
	PrivateBathroom *bool `json:"private_bathroom,omitempty" db:"private_bathroom"`

	Amenities  *[]string `json:"amenities,omitempty" db:"amenities"`
	HouseRules *[]string `json:"house_rules,omitempty" db:"house_rules"`

	AvailableFrom  *time.Time `json:"available_from,omitempty" db:"available_from"`
	AvailableUntil *time.Time `json:"available_until,omitempty" db:"available_until"`
	MinStayMonths  *int       `json:"min_stay_months,omitempty" db:"min_stay_months"`

	PrefGender     *string `json:"pref_gender,omitempty" db:"pref_gender"`
	PrefAgeMin     *int    `json:"pref_age_min,omitempty" db:"pref_age_min"`
	PrefAgeMax     *int    `json:"pref_age_max,omitempty" db:"pref_age_max"`
	PrefOccupation *string `json:"pref_occupation,omitempty" db:"pref_occupation"`

	Photos *[]string `json:"photos,omitempty" db:"photos"`

	PendingUploads *[]string `json:"pending_uploads,omitempty" db:"-"`

	// Clear names keys sent as JSON null; those fields are reset. A key that also carries a
	// value keeps the value.
	Clear []string `json:"-" db:"-"`
}

type draftPatchJSON DraftPatch

// UnmarshalJSON decodes a patch and records explicit nulls in Clear.
func (p *DraftPatch) UnmarshalJSON(b []byte) error {
	var v draftPatchJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	v.Clear = nil
	for k, r := range raw {
		if bytes.Equal(bytes.TrimSpace(r), []byte("null")) {
			v.Clear = append(v.Clear, k)
		}
	}
	slices.Sort(v.Clear)
	*p = DraftPatch(v)
	return nil
}

// MarshalJSON encodes a patch with cleared keys as JSON null.
func (p DraftPatch) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(draftPatchJSON(p))
	if err != nil || len(p.Clear) == 0 {
		return b, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	for _, k := range p.Clear {
		if _, set := m[k]; !set {
			m[k] = nil
		}
	}
	return json.Marshal(m)
}

// DraftChanges maps column names to new values for a partial remote update.
type DraftChanges map[string]any

// DraftSaved is what the backend reports after a create or update.
type DraftSaved struct {
	ID        uuid.UUID
	Version   int64
	UpdatedAt time.Time
}

// Validation warning severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// ValidationWarning is one finding of the backend's listing validation.
type ValidationWarning struct {
	Field    string `json:"field"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	FixStep  int    `json:"fix_step,omitempty"`
}

// Blocking reports whether the warning prevents publishing.
func (w ValidationWarning) Blocking() bool { return w.Severity == SeverityError }

// PublishedRoom is the result of the atomic publish transition.
type PublishedRoom struct {
	RoomID uuid.UUID `json:"room_id"`
	Slug   string    `json:"slug"`
}

// RoomPhoto is a photo record of a published room.
type RoomPhoto struct {
	RoomID    uuid.UUID `json:"room_id"`
	URL       string    `json:"url"`
	SortOrder int       `json:"sort_order"`
	IsCover   bool      `json:"is_cover"`
}

// Moderation states of a published room.
const (
	ModerationPending   = "pending"
	ModerationApproved  = "approved"
	ModerationSuspended = "suspended"
)

// ModerationItem is a published room awaiting or under moderation.
type ModerationItem struct {
	RoomID    uuid.UUID `json:"room_id"`
	ListingID uuid.UUID `json:"listing_id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Title     string    `json:"title"`
	City      string    `json:"city"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
