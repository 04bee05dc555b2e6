package postgres

import (
	"context"
	"strconv"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/roomiegr/roomie/internal/errs"
	"github.com/roomiegr/roomie/internal/model"
	"github.com/roomiegr/roomie/internal/repository"
)

// RoomRepo reads published rooms.
type RoomRepo struct{ db *DB }

// NewRoomRepo constructs a room repository.
func NewRoomRepo(db *DB) *RoomRepo { return &RoomRepo{db: db} }

var _ repository.RoomRepository = (*RoomRepo)(nil)

// likeEscaper quotes LIKE wildcards so user input only ever matches as a literal prefix.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// searchQuery builds the discovery query. City and neighborhood arrive already folded to
// lower case without accents; the columns are folded the same way with unaccent.
func searchQuery(f model.SearchFilters) (string, []any) {
	var (
		where = []string{`r.moderation_status <> 'suspended'`}
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if f.City != "" {
		where = append(where, `unaccent(lower(r.city)) = `+arg(f.City))
	}
	if f.Neighborhood != "" {
		where = append(where, `unaccent(lower(r.neighborhood)) LIKE `+arg(likeEscaper.Replace(f.Neighborhood)+"%")+` ESCAPE '\'`)
	}
	if f.PropertyType != "" {
		where = append(where, `r.property_type = `+arg(f.PropertyType))
	}
	if f.MinPrice != nil {
		where = append(where, `r.price_month >= `+arg(*f.MinPrice))
	}
	if f.MaxPrice != nil {
		where = append(where, `r.price_month <= `+arg(*f.MaxPrice))
	}
	if f.AvailableFrom != nil {
		where = append(where, `(r.available_from IS NULL OR r.available_from <= `+arg(*f.AvailableFrom)+`)`)
	}
	if len(f.Amenities) > 0 {
		where = append(where, `r.amenities @> `+arg(f.Amenities))
	}
	if f.BillsIncluded != nil {
		where = append(where, `r.bills_included = `+arg(*f.BillsIncluded))
	}

	order := `r.published_at DESC, r.id`
	switch f.Sort {
	case model.SortPriceAsc:
		order = `r.price_month ASC, r.published_at DESC, r.id`
	case model.SortPriceDesc:
		order = `r.price_month DESC, r.published_at DESC, r.id`
	}

	q := `
SELECT r.id, r.slug, r.title, r.city, r.neighborhood, r.property_type, r.price_month, r.bills_included,
  r.available_from,
  COALESCE((SELECT p.url FROM room_photos p WHERE p.room_id = r.id ORDER BY p.is_cover DESC, p.sort_order LIMIT 1), '') AS cover_url,
  r.published_at, count(*) OVER () AS total
FROM rooms r
WHERE ` + strings.Join(where, " AND ") + `
ORDER BY ` + order + `
LIMIT ` + arg(f.Limit) + ` OFFSET ` + arg(f.Offset)
	return q, args
}

// SearchRooms returns one page of matching rooms and the total number of matches.
func (r *RoomRepo) SearchRooms(ctx context.Context, f model.SearchFilters) ([]model.SearchHit, int, error) {
	q, args := searchQuery(f)
	var (
		out   []model.SearchHit
		total int
	)
	err := r.db.run(ctx, func(tx Querier) error {
		rows, err := tx.Query(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var h model.SearchHit
			if err := rows.Scan(&h.RoomID, &h.Slug, &h.Title, &h.City, &h.Neighborhood, &h.PropertyType,
				&h.PriceMonth, &h.BillsIncluded, &h.AvailableFrom, &h.CoverURL, &h.PublishedAt, &total); err != nil {
				return err
			}
			out = append(out, h)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ListModeration returns rooms in the given moderation status, oldest change first.
func (r *RoomRepo) ListModeration(ctx context.Context, status string, limit int) ([]model.ModerationItem, error) {
	const q = `
SELECT r.id, r.listing_id, r.owner_id, r.title, r.city, r.moderation_status, r.moderation_reason, r.updated_at
FROM rooms r
WHERE r.moderation_status=$1
ORDER BY r.updated_at ASC
LIMIT $2`
	var out []model.ModerationItem
	err := r.db.run(ctx, func(tx Querier) error {
		rows, err := tx.Query(ctx, q, status, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var m model.ModerationItem
			if err := rows.Scan(&m.RoomID, &m.ListingID, &m.OwnerID, &m.Title, &m.City,
				&m.Status, &m.Reason, &m.UpdatedAt); err != nil {
				return err
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	return out, err
}

// SetModeration changes a room's moderation status.
func (r *RoomRepo) SetModeration(ctx context.Context, roomID uuid.UUID, status, reason string) error {
	const q = `UPDATE rooms SET moderation_status=$2, moderation_reason=$3, updated_at=now() WHERE id=$1`
	return r.db.run(ctx, func(tx Querier) error {
		tag, err := tx.Exec(ctx, q, roomID, status, reason)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errs.ErrNotFound
		}
		return nil
	})
}
