// Package wizard drives a listing draft through the publication steps.
package wizard

import (
	"strings"

	"github.com/roomiegr/roomie/internal/model"
)

// Step identifies one page of the listing wizard.
type Step int

// Wizard steps in display order.
const (
	StepPropertyType Step = iota + 1
	StepLocation
	StepTitle
	StepPropertyDetails
	StepRoomDetails
	StepAmenities
	StepHouseRules
	StepPricing
	StepAvailability
	StepPreferences
	StepPhotos
	StepReview
)

var stepNames = map[Step]string{
	StepPropertyType:    "property_type",
	StepLocation:        "location",
	StepTitle:           "title",
	StepPropertyDetails: "property_details",
	StepRoomDetails:     "room_details",
	StepAmenities:       "amenities",
	StepHouseRules:      "house_rules",
	StepPricing:         "pricing",
	StepAvailability:    "availability",
	StepPreferences:     "preferences",
	StepPhotos:          "photos",
	StepReview:          "review",
}

func (s Step) String() string {
	if n, ok := stepNames[s]; ok {
		return n
	}
	return "unknown"
}

// Valid reports whether s is a known step.
func (s Step) Valid() bool { return s >= StepPropertyType && s <= StepReview }

// fieldSteps maps draft fields to the step that edits them.
var fieldSteps = map[string]Step{
	"property_type":    StepPropertyType,
	"city":             StepLocation,
	"neighborhood":     StepLocation,
	"address":          StepLocation,
	"title":            StepTitle,
	"description":      StepTitle,
	"size_sqm":         StepPropertyDetails,
	"bedrooms":         StepPropertyDetails,
	"bathrooms":        StepPropertyDetails,
	"floor":            StepPropertyDetails,
	"room_size_sqm":    StepRoomDetails,
	"room_furnished":   StepRoomDetails,
	"private_bathroom": StepRoomDetails,
	"amenities":        StepAmenities,
	"house_rules":      StepHouseRules,
	"price_month":      StepPricing,
	"deposit_months":   StepPricing,
	"bills_included":   StepPricing,
	"available_from":   StepAvailability,
	"available_until":  StepAvailability,
	"min_stay_months":  StepAvailability,
	"pref_gender":      StepPreferences,
	"pref_age_min":     StepPreferences,
	"pref_age_max":     StepPreferences,
	"pref_occupation":  StepPreferences,
	"photos":           StepPhotos,
}

// FieldStep returns the step that edits a draft field. Unknown fields map to the review step.
func FieldStep(field string) Step {
	if s, ok := fieldSteps[field]; ok {
		return s
	}
	return StepReview
}

// Visible lists the steps shown for a property type. Room details only exist for rooms.
func Visible(propertyType string) []Step {
	out := make([]Step, 0, StepReview)
	for s := StepPropertyType; s <= StepReview; s++ {
		if shown(s, propertyType) {
			out = append(out, s)
		}
	}
	return out
}

func shown(s Step, propertyType string) bool {
	return s != StepRoomDetails || propertyType == model.PropertyRoom
}

// nextVisible returns the first shown step after s, or s when s is the last step.
func nextVisible(s Step, propertyType string) Step {
	for n := s + 1; n <= StepReview; n++ {
		if shown(n, propertyType) {
			return n
		}
	}
	return s
}

// prevVisible returns the last shown step before s, or s when s is the first step.
func prevVisible(s Step, propertyType string) Step {
	for p := s - 1; p >= StepPropertyType; p-- {
		if shown(p, propertyType) {
			return p
		}
	}
	return s
}

// requirement is one field presence check.
type requirement struct {
	field   string
	label   string
	present func(d model.ListingDraft) bool
}

func filled(s string) bool { return strings.TrimSpace(s) != "" }

var (
	reqPropertyType = requirement{"property_type", "Property Type", func(d model.ListingDraft) bool {
		return d.PropertyType == model.PropertyRoom || d.PropertyType == model.PropertyApartment
	}}
	reqTitle        = requirement{"title", "Title", func(d model.ListingDraft) bool { return filled(d.Title) }}
	reqCity         = requirement{"city", "City", func(d model.ListingDraft) bool { return filled(d.City) }}
	reqNeighborhood = requirement{"neighborhood", "Neighborhood", func(d model.ListingDraft) bool { return filled(d.Neighborhood) }}
	reqPrice        = requirement{"price_month", "Monthly Price", func(d model.ListingDraft) bool {
		return d.PriceMonth != nil && *d.PriceMonth > 0
	}}
	reqPhotos = requirement{"photos", "Photos", func(d model.ListingDraft) bool { return len(d.Photos) > 0 }}
)

// stepRequirements are the presence checks gating "next" on each step.
var stepRequirements = map[Step][]requirement{
	StepPropertyType: {reqPropertyType},
	StepLocation:     {reqCity, reqNeighborhood},
	StepTitle:        {reqTitle},
	StepPricing:      {reqPrice},
	StepPhotos:       {reqPhotos},
}

// publishRequirements is the full required set checked on review, in display order.
var publishRequirements = []requirement{reqTitle, reqCity, reqNeighborhood, reqPrice, reqPhotos}

func missing(reqs []requirement, d model.ListingDraft) []string {
	var out []string
	for _, r := range reqs {
		if !r.present(d) {
			out = append(out, r.label)
		}
	}
	return out
}
