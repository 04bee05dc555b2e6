package postgres

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/roomiegr/roomie/internal/errs"
	"github.com/roomiegr/roomie/internal/model"
	"github.com/roomiegr/roomie/internal/repository"
)

// draftColumns are the persisted columns of a listing draft, in struct order.
var draftColumns = persistedColumns(reflect.TypeOf(model.ListingDraft{}))

func persistedColumns(t reflect.Type) []string {
	out := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if col := t.Field(i).Tag.Get("db"); col != "" && col != "-" {
			out = append(out, col)
		}
	}
	return out
}

// DraftRepo implements DraftRepository using PostgreSQL.
type DraftRepo struct{ db *DB }

// NewDraftRepo constructs a draft repository.
func NewDraftRepo(db *DB) *DraftRepo { return &DraftRepo{db: db} }

var _ repository.DraftRepository = (*DraftRepo)(nil)

// sortedChanges returns the change set's columns in a stable order, rejecting unknown ones.
func sortedChanges(c model.DraftChanges) ([]string, error) {
	cols := make([]string, 0, len(c))
	for k := range c {
		if !slices.Contains(draftColumns, k) {
			return nil, fmt.Errorf("%w: unknown draft column %q", errs.ErrValidation, k)
		}
		cols = append(cols, k)
	}
	slices.Sort(cols)
	return cols, nil
}

// CreateDraft inserts a draft row with the given columns.
func (r *DraftRepo) CreateDraft(ctx context.Context, ownerID uuid.UUID, changes model.DraftChanges) (model.DraftSaved, error) {
	cols, err := sortedChanges(changes)
	if err != nil {
		return model.DraftSaved{}, err
	}
	names := append([]string{"owner_id", "status"}, cols...)
	args := []any{ownerID, model.ListingDraftStatus}
	marks := []string{"$1", "$2"}
	for i, c := range cols {
		args = append(args, changes[c])
		marks = append(marks, "$"+strconv.Itoa(i+3))
	}
	q := `INSERT INTO listings (` + strings.Join(names, ", ") + `) VALUES (` + strings.Join(marks, ", ") +
		`) RETURNING id, version, updated_at`

	var saved model.DraftSaved
	err = r.db.run(ctx, func(tx Querier) error {
		return tx.QueryRow(ctx, q, args...).Scan(&saved.ID, &saved.Version, &saved.UpdatedAt)
	})
	if err != nil {
		return model.DraftSaved{}, err
	}
	return saved, nil
}

// UpdateDraft writes only the changed columns and bumps the row version.
func (r *DraftRepo) UpdateDraft(
	ctx context.Context, id uuid.UUID, baseVersion int64, changes model.DraftChanges,
) (model.DraftSaved, error) {
	cols, err := sortedChanges(changes)
	if err != nil {
		return model.DraftSaved{}, err
	}
	sets := make([]string, 0, len(cols)+2)
	args := []any{id, baseVersion}
	for i, c := range cols {
		sets = append(sets, c+"=$"+strconv.Itoa(i+3))
		args = append(args, changes[c])
	}
	sets = append(sets, "version=version+1", "updated_at=now()")
	q := `UPDATE listings SET ` + strings.Join(sets, ", ") +
		` WHERE id=$1 AND ($2::bigint < 0 OR version=$2) RETURNING id, version, updated_at`

	var saved model.DraftSaved
	err = r.db.run(ctx, func(tx Querier) error {
		scanErr := tx.QueryRow(ctx, q, args...).Scan(&saved.ID, &saved.Version, &saved.UpdatedAt)
		if !errors.Is(scanErr, pgx.ErrNoRows) {
			return scanErr
		}
		if baseVersion == repository.AnyVersion {
			return errs.ErrNotFound
		}
		var cur int64
		if e := tx.QueryRow(ctx, `SELECT version FROM listings WHERE id=$1`, id).Scan(&cur); e != nil {
			if errors.Is(e, pgx.ErrNoRows) {
				return errs.ErrNotFound
			}
			return e
		}
		return fmt.Errorf("draft %s at version %d, base %d: %w", id, cur, baseVersion, errs.ErrVersionConflict)
	})
	if err != nil {
		return model.DraftSaved{}, err
	}
	return saved, nil
}

const draftSelect = `
SELECT id, owner_id, status, version, updated_at,
  property_type, title, description, city, neighborhood, address,
  price_month, deposit_months, bills_included,
  size_sqm, bedrooms, bathrooms, floor,
  room_size_sqm, room_furnished, private_bathroom,
  amenities, house_rules,
  available_from, available_until, min_stay_months,
  pref_gender, pref_age_min, pref_age_max, pref_occupation,
  photos
FROM listings`

func scanDraft(row pgx.Row) (*model.ListingDraft, error) {
	var (
		d  model.ListingDraft
		id uuid.UUID
	)
	err := row.Scan(
		&id, &d.OwnerID, &d.Status, &d.Version, &d.UpdatedAt,
		&d.PropertyType, &d.Title, &d.Description, &d.City, &d.Neighborhood, &d.Address,
		&d.PriceMonth, &d.DepositMonths, &d.BillsIncluded,
		&d.SizeSqm, &d.Bedrooms, &d.Bathrooms, &d.Floor,
		&d.RoomSizeSqm, &d.RoomFurnished, &d.PrivateBathroom,
		&d.Amenities, &d.HouseRules,
		&d.AvailableFrom, &d.AvailableUntil, &d.MinStayMonths,
		&d.PrefGender, &d.PrefAgeMin, &d.PrefAgeMax, &d.PrefOccupation,
		&d.Photos,
	)
	if err != nil {
		return nil, err
	}
	d.ID = &id
	return &d, nil
}

// GetDraft loads a draft by id.
func (r *DraftRepo) GetDraft(ctx context.Context, id uuid.UUID) (*model.ListingDraft, error) {
	var out *model.ListingDraft
	err := r.db.run(ctx, func(tx Querier) error {
		d, err := scanDraft(tx.QueryRow(ctx, draftSelect+` WHERE id=$1`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrNotFound
		}
		out = d
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListDrafts returns the owner's listings, most recently updated first.
func (r *DraftRepo) ListDrafts(ctx context.Context, ownerID uuid.UUID) ([]model.ListingDraft, error) {
	var out []model.ListingDraft
	err := r.db.run(ctx, func(tx Querier) error {
		rows, err := tx.Query(ctx, draftSelect+` WHERE owner_id=$1 ORDER BY updated_at DESC`, ownerID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			d, err := scanDraft(rows)
			if err != nil {
				return err
			}
			out = append(out, *d)
		}
		return rows.Err()
	})
	return out, err
}
