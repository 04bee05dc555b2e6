package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Sort orders for room search.
const (
	SortNewest    = "newest"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
)

// SearchFilters composes the discovery query over published rooms.
type SearchFilters struct {
	City          string     `json:"city,omitempty"`
	Neighborhood  string     `json:"neighborhood,omitempty"`
	PropertyType  string     `json:"property_type,omitempty"`
	MinPrice      *int       `json:"min_price,omitempty"`
	MaxPrice      *int       `json:"max_price,omitempty"`
	AvailableFrom *time.Time `json:"available_from,omitempty"`
	Amenities     []string   `json:"amenities,omitempty"`
	BillsIncluded *bool      `json:"bills_included,omitempty"`
	Sort          string     `json:"sort,omitempty"`
	Limit         int        `json:"limit"`
	Offset        int        `json:"offset"`
}

// SearchHit is one published room in search results.
type SearchHit struct {
	RoomID        uuid.UUID  `json:"room_id"`
	Slug          string     `json:"slug"`
	Title         string     `json:"title"`
	City          string     `json:"city"`
	Neighborhood  string     `json:"neighborhood"`
	PropertyType  string     `json:"property_type"`
	PriceMonth    int        `json:"price_month"`
	BillsIncluded bool       `json:"bills_included"`
	AvailableFrom *time.Time `json:"available_from,omitempty"`
	CoverURL      string     `json:"cover_url,omitempty"`
	PublishedAt   time.Time  `json:"published_at"`
}

// SearchPage is one page of results.
type SearchPage struct {
	Hits   []SearchHit `json:"hits"`
	Total  int         `json:"total"`
	Cached bool        `json:"cached"`
}
