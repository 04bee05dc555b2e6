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

// ProfileRepo implements ProfileRepository using PostgreSQL.
type ProfileRepo struct{ db *DB }

// NewProfileRepo constructs a profile repository.
func NewProfileRepo(db *DB) *ProfileRepo { return &ProfileRepo{db: db} }

var _ repository.ProfileRepository = (*ProfileRepo)(nil)

// GetProfile selects a profile by user id.
func (r *ProfileRepo) GetProfile(ctx context.Context, userID uuid.UUID) (*model.Profile, error) {
	const q = `
SELECT id, display_name, avatar_url, bio, date_of_birth, gender, occupation, phone, languages,
  smoker, has_pets, updated_at
FROM profiles WHERE id=$1`
	var p model.Profile
	err := r.db.run(ctx, func(tx Querier) error {
		err := tx.QueryRow(ctx, q, userID).Scan(&p.ID, &p.DisplayName, &p.AvatarURL, &p.Bio, &p.DateOfBirth,
			&p.Gender, &p.Occupation, &p.Phone, &p.Languages, &p.Smoker, &p.HasPets, &p.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveProfile upserts the profile row and refreshes UpdatedAt.
func (r *ProfileRepo) SaveProfile(ctx context.Context, p *model.Profile) error {
	const q = `
INSERT INTO profiles (id, display_name, avatar_url, bio, date_of_birth, gender, occupation, phone,
  languages, smoker, has_pets, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now())
ON CONFLICT (id) DO UPDATE SET
  display_name=EXCLUDED.display_name, avatar_url=EXCLUDED.avatar_url, bio=EXCLUDED.bio,
  date_of_birth=EXCLUDED.date_of_birth, gender=EXCLUDED.gender, occupation=EXCLUDED.occupation,
  phone=EXCLUDED.phone, languages=EXCLUDED.languages, smoker=EXCLUDED.smoker,
  has_pets=EXCLUDED.has_pets, updated_at=now()
RETURNING updated_at`
	return r.db.run(ctx, func(tx Querier) error {
		return tx.QueryRow(ctx, q, p.ID, p.DisplayName, p.AvatarURL, p.Bio, p.DateOfBirth, p.Gender,
			p.Occupation, p.Phone, p.Languages, p.Smoker, p.HasPets).Scan(&p.UpdatedAt)
	})
}
