package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/roomiegr/roomie/internal/errs"
	"github.com/roomiegr/roomie/internal/model"
	"github.com/roomiegr/roomie/internal/repository"
)

// ProcedureRepo calls the backend's stored procedures.
type ProcedureRepo struct{ db *DB }

// NewProcedureRepo constructs a procedure repository.
func NewProcedureRepo(db *DB) *ProcedureRepo { return &ProcedureRepo{db: db} }

var _ repository.ProcedureRepository = (*ProcedureRepo)(nil)

// ValidateListing runs validate_listing for one listing.
func (r *ProcedureRepo) ValidateListing(ctx context.Context, listingID uuid.UUID) ([]model.ValidationWarning, error) {
	const q = `SELECT field, severity, message FROM validate_listing($1)`
	var out []model.ValidationWarning
	err := r.db.run(ctx, func(tx Querier) error {
		rows, err := tx.Query(ctx, q, listingID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var w model.ValidationWarning
			if err := rows.Scan(&w.Field, &w.Severity, &w.Message); err != nil {
				return err
			}
			out = append(out, w)
		}
		return rows.Err()
	})
	return out, err
}

// PublishListing runs publish_listing_atomic and returns the created room.
func (r *ProcedureRepo) PublishListing(ctx context.Context, listingID uuid.UUID) (model.PublishedRoom, error) {
	const q = `SELECT room_id, slug FROM publish_listing_atomic($1)`
	var room model.PublishedRoom
	err := r.db.run(ctx, func(tx Querier) error {
		err := tx.QueryRow(ctx, q, listingID).Scan(&room.RoomID, &room.Slug)
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrNotFound
		}
		return err
	})
	if err != nil {
		return model.PublishedRoom{}, err
	}
	return room, nil
}

// RefreshSearchCache runs refresh_search_cache.
func (r *ProcedureRepo) RefreshSearchCache(ctx context.Context) error {
	return r.db.run(ctx, func(tx Querier) error {
		_, err := tx.Exec(ctx, `SELECT refresh_search_cache()`)
		return err
	})
}

// PhotoRepo stores room photo rows.
type PhotoRepo struct{ db *DB }

// NewPhotoRepo constructs a photo repository.
func NewPhotoRepo(db *DB) *PhotoRepo { return &PhotoRepo{db: db} }

var _ repository.PhotoRepository = (*PhotoRepo)(nil)

// InsertRoomPhotos inserts all photos in one transaction.
func (r *PhotoRepo) InsertRoomPhotos(ctx context.Context, photos []model.RoomPhoto) error {
	if len(photos) == 0 {
		return nil
	}
	const q = `INSERT INTO room_photos (room_id, url, sort_order, is_cover) VALUES ($1,$2,$3,$4)`
	return r.db.run(ctx, func(tx Querier) error {
		for _, p := range photos {
			if _, err := tx.Exec(ctx, q, p.RoomID, p.URL, p.SortOrder, p.IsCover); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListPublishedPhotos pages over photos of rooms that are not suspended.
func (r *PhotoRepo) ListPublishedPhotos(ctx context.Context, limit, offset int) ([]model.PhotoRef, error) {
	const q = `
SELECT p.room_id, p.url
FROM room_photos p JOIN rooms r ON r.id = p.room_id
WHERE r.moderation_status <> 'suspended'
ORDER BY p.room_id, p.sort_order
LIMIT $1 OFFSET $2`
	var out []model.PhotoRef
	err := r.db.run(ctx, func(tx Querier) error {
		rows, err := tx.Query(ctx, q, limit, offset)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var p model.PhotoRef
			if err := rows.Scan(&p.RoomID, &p.URL); err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	return out, err
}
