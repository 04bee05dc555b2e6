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

// VerificationRepo implements VerificationRepository using PostgreSQL.
type VerificationRepo struct{ db *DB }

// NewVerificationRepo constructs a verification repository.
func NewVerificationRepo(db *DB) *VerificationRepo { return &VerificationRepo{db: db} }

var _ repository.VerificationRepository = (*VerificationRepo)(nil)

const verificationSelect = `
SELECT id, user_id, kind, side, status, value, document_url, reviewed_by, reviewed_at, note,
  created_at, updated_at
FROM verifications`

func scanVerification(row pgx.Row) (model.Verification, error) {
	var v model.Verification
	err := row.Scan(&v.ID, &v.UserID, &v.Kind, &v.Side, &v.Status, &v.Value, &v.DocumentURL,
		&v.ReviewedBy, &v.ReviewedAt, &v.Note, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

func (r *VerificationRepo) list(ctx context.Context, q string, args ...any) ([]model.Verification, error) {
	var out []model.Verification
	err := r.db.run(ctx, func(tx Querier) error {
		rows, err := tx.Query(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			v, err := scanVerification(rows)
			if err != nil {
				return err
			}
			out = append(out, v)
		}
		return rows.Err()
	})
	return out, err
}

// ListByUser returns every verification row of a user.
func (r *VerificationRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Verification, error) {
	return r.list(ctx, verificationSelect+` WHERE user_id=$1 ORDER BY kind, side`, userID)
}

// ListPending returns rows waiting for review, oldest first.
func (r *VerificationRepo) ListPending(ctx context.Context, limit int) ([]model.Verification, error) {
	return r.list(ctx, verificationSelect+` WHERE status='pending' ORDER BY updated_at ASC LIMIT $1`, limit)
}

// Get loads a verification by id.
func (r *VerificationRepo) Get(ctx context.Context, id uuid.UUID) (*model.Verification, error) {
	var v model.Verification
	err := r.db.run(ctx, func(tx Querier) error {
		var err error
		v, err = scanVerification(tx.QueryRow(ctx, verificationSelect+` WHERE id=$1`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Upsert writes the row for (user_id, kind, side). A resubmission clears any earlier review.
func (r *VerificationRepo) Upsert(ctx context.Context, v *model.Verification) error {
	const q = `
INSERT INTO verifications (user_id, kind, side, status, value, document_url)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (user_id, kind, side) DO UPDATE SET
  status=EXCLUDED.status, value=EXCLUDED.value, document_url=EXCLUDED.document_url,
  reviewed_by=NULL, reviewed_at=NULL, note='', updated_at=now()
RETURNING id, created_at, updated_at`
	return r.db.run(ctx, func(tx Querier) error {
		return tx.QueryRow(ctx, q, v.UserID, v.Kind, v.Side, v.Status, v.Value, v.DocumentURL).
			Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	})
}

// SetStatus records a review decision.
func (r *VerificationRepo) SetStatus(ctx context.Context, id uuid.UUID, status string, reviewer *uuid.UUID, note string) error {
	const q = `
UPDATE verifications
SET status=$2, reviewed_by=$3, reviewed_at=now(), note=$4, updated_at=now()
WHERE id=$1`
	return r.db.run(ctx, func(tx Querier) error {
		tag, err := tx.Exec(ctx, q, id, status, reviewer, note)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errs.ErrNotFound
		}
		return nil
	})
}
