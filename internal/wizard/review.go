package wizard

import (
	"strconv"
	"strings"
	"time"

	"github.com/roomiegr/roomie/internal/model"
)

// ReviewResult is the final confirmation view of a draft.
type ReviewResult struct {
	Missing    []string `json:"missing"`
	CanPublish bool     `json:"can_publish"`
	Preview    Preview  `json:"preview"`
}

// Preview is a read-only projection of a draft as seekers would see it.
type Preview struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	PropertyType  string   `json:"property_type"`
	Location      string   `json:"location"`
	PriceMonth    *int     `json:"price_month,omitempty"`
	DepositMonths *int     `json:"deposit_months,omitempty"`
	BillsIncluded bool     `json:"bills_included"`
	Facts         []string `json:"facts"`
	Amenities     []string `json:"amenities"`
	HouseRules    []string `json:"house_rules"`
	Availability  string   `json:"availability"`
	Cover         string   `json:"cover,omitempty"`
	Photos        []string `json:"photos"`
}

// Review lists the labels of missing required fields in display order and projects the draft.
func Review(d model.ListingDraft) ReviewResult {
	miss := missing(publishRequirements, d)
	return ReviewResult{
		Missing:    miss,
		CanPublish: len(miss) == 0,
		Preview:    preview(d),
	}
}

// CanPublish reports whether every required field is present.
func CanPublish(d model.ListingDraft) bool { return len(missing(publishRequirements, d)) == 0 }

func preview(d model.ListingDraft) Preview {
	p := Preview{
		Title:         strings.TrimSpace(d.Title),
		Description:   strings.TrimSpace(d.Description),
		PropertyType:  d.PropertyType,
		PriceMonth:    d.PriceMonth,
		DepositMonths: d.DepositMonths,
		BillsIncluded: d.BillsIncluded != nil && *d.BillsIncluded,
		Amenities:     append([]string(nil), d.Amenities...),
		HouseRules:    append([]string(nil), d.HouseRules...),
		Photos:        append([]string(nil), d.Photos...),
	}

	var loc []string
	for _, s := range []string{d.Neighborhood, d.City} {
		if filled(s) {
			loc = append(loc, strings.TrimSpace(s))
		}
	}
	p.Location = strings.Join(loc, ", ")

	if len(d.Photos) > 0 {
		p.Cover = d.Photos[0]
	}

	fact := func(v *int, unit string) {
		if v != nil {
			p.Facts = append(p.Facts, strconv.Itoa(*v)+" "+unit)
		}
	}
	fact(d.SizeSqm, "m²")
	fact(d.Bedrooms, "bedrooms")
	fact(d.Bathrooms, "bathrooms")
	if d.PropertyType == model.PropertyRoom {
		fact(d.RoomSizeSqm, "m² room")
		if d.RoomFurnished != nil && *d.RoomFurnished {
			p.Facts = append(p.Facts, "furnished")
		}
		if d.PrivateBathroom != nil && *d.PrivateBathroom {
			p.Facts = append(p.Facts, "private bathroom")
		}
	}

	p.Availability = availability(d.AvailableFrom, d.AvailableUntil, d.MinStayMonths)
	return p
}

func availability(from, until *time.Time, minStay *int) string {
	const layout = "2 Jan 2006"
	var parts []string
	switch {
	case from != nil && until != nil:
		parts = append(parts, from.Format(layout)+" - "+until.Format(layout))
	case from != nil:
		parts = append(parts, "from "+from.Format(layout))
	case until != nil:
		parts = append(parts, "until "+until.Format(layout))
	default:
		parts = append(parts, "now")
	}
	if minStay != nil && *minStay > 0 {
		parts = append(parts, "min. "+strconv.Itoa(*minStay)+" months")
	}
	return strings.Join(parts, ", ")
}
