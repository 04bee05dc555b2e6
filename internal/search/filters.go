package search

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/roomiegr/roomie/internal/errs"
	"github.com/roomiegr/roomie/internal/model"
)

// Paging bounds.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Fold lower-cases s and strips diacritics so "Αθήνα", "ΑΘΗΝΑ" and "αθηνα" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.Join(strings.Fields(out), " "))
}

// Normalize validates filters and puts them in canonical form: folded text, sorted amenities,
// default sort and paging.
func Normalize(f model.SearchFilters) (model.SearchFilters, error) {
	f.City = Fold(f.City)
	f.Neighborhood = Fold(f.Neighborhood)

	switch f.PropertyType {
	case "", model.PropertyRoom, model.PropertyApartment:
	default:
		return f, fmt.Errorf("%w: unknown property type %q", errs.ErrValidation, f.PropertyType)
	}
	if (f.MinPrice != nil && *f.MinPrice < 0) || (f.MaxPrice != nil && *f.MaxPrice < 0) {
		return f, fmt.Errorf("%w: prices cannot be negative", errs.ErrValidation)
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return f, fmt.Errorf("%w: min price above max price", errs.ErrValidation)
	}

	switch f.Sort {
	case "":
		f.Sort = model.SortNewest
	case model.SortNewest, model.SortPriceAsc, model.SortPriceDesc:
	default:
		return f, fmt.Errorf("%w: unknown sort %q", errs.ErrValidation, f.Sort)
	}

	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		return f, fmt.Errorf("%w: negative offset", errs.ErrValidation)
	}

	if len(f.Amenities) > 0 {
		am := make([]string, 0, len(f.Amenities))
		for _, a := range f.Amenities {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
				am = append(am, a)
			}
		}
		slices.Sort(am)
		f.Amenities = slices.Compact(am)
		if len(f.Amenities) == 0 {
			f.Amenities = nil
		}
	}
	if f.AvailableFrom != nil {
		d := f.AvailableFrom.UTC().Truncate(24 * time.Hour)
		f.AvailableFrom = &d
	}
	return f, nil
}

// ParseQuery reads filters from URL query parameters. Amenities are comma separated and dates
// use YYYY-MM-DD.
func ParseQuery(q url.Values) (model.SearchFilters, error) {
	f := model.SearchFilters{
		City:         q.Get("city"),
		Neighborhood: q.Get("neighborhood"),
		PropertyType: q.Get("property_type"),
		Sort:         q.Get("sort"),
	}
	intp := func(key string) (*int, error) {
		v := q.Get(key)
		if v == "" {
			return nil, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be a number", errs.ErrValidation, key)
		}
		return &n, nil
	}
	var err error
	if f.MinPrice, err = intp("min_price"); err != nil {
		return f, err
	}
	if f.MaxPrice, err = intp("max_price"); err != nil {
		return f, err
	}
	for _, key := range []string{"limit", "offset"} {
		n, err := intp(key)
		if err != nil {
			return f, err
		}
		if n == nil {
			continue
		}
		if key == "limit" {
			f.Limit = *n
		} else {
			f.Offset = *n
		}
	}
	if v := q.Get("available_from"); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return f, fmt.Errorf("%w: available_from must be YYYY-MM-DD", errs.ErrValidation)
		}
		f.AvailableFrom = &d
	}
	if v := q.Get("bills_included"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("%w: bills_included must be true or false", errs.ErrValidation)
		}
		f.BillsIncluded = &b
	}
	if v := q.Get("amenities"); v != "" {
		f.Amenities = strings.Split(v, ",")
	}
	return f, nil
}
