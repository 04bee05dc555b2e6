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

// ThreadRepo implements ThreadRepository using PostgreSQL.
type ThreadRepo struct{ db *DB }

// NewThreadRepo constructs a thread repository.
func NewThreadRepo(db *DB) *ThreadRepo { return &ThreadRepo{db: db} }

var _ repository.ThreadRepository = (*ThreadRepo)(nil)

const threadSelect = `SELECT id, listing_id, seeker_id, lister_id, status, created_at, last_message_at FROM threads`

func scanThread(row pgx.Row) (*model.Thread, error) {
	var t model.Thread
	if err := row.Scan(&t.ID, &t.ListingID, &t.SeekerID, &t.ListerID, &t.Status, &t.CreatedAt, &t.LastMessageAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// ListingOwner returns the owner of a published listing.
func (r *ThreadRepo) ListingOwner(ctx context.Context, listingID uuid.UUID) (uuid.UUID, error) {
	const q = `SELECT owner_id FROM listings WHERE id=$1 AND status='published'`
	var owner uuid.UUID
	err := r.db.run(ctx, func(tx Querier) error {
		err := tx.QueryRow(ctx, q, listingID).Scan(&owner)
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrNotFound
		}
		return err
	})
	return owner, err
}

// CreateThread inserts a thread and fills its id and timestamps.
func (r *ThreadRepo) CreateThread(ctx context.Context, t *model.Thread) error {
	const q = `
INSERT INTO threads (listing_id, seeker_id, lister_id, status)
VALUES ($1,$2,$3,$4)
RETURNING id, created_at, last_message_at`
	err := r.db.run(ctx, func(tx Querier) error {
		return tx.QueryRow(ctx, q, t.ListingID, t.SeekerID, t.ListerID, t.Status).
			Scan(&t.ID, &t.CreatedAt, &t.LastMessageAt)
	})
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// FindThread looks up the thread for (listing, seeker).
func (r *ThreadRepo) FindThread(ctx context.Context, listingID, seekerID uuid.UUID) (*model.Thread, error) {
	var out *model.Thread
	err := r.db.run(ctx, func(tx Querier) error {
		var err error
		out, err = scanThread(tx.QueryRow(ctx, threadSelect+` WHERE listing_id=$1 AND seeker_id=$2`, listingID, seekerID))
		return err
	})
	return out, err
}

// GetThread loads a thread by id.
func (r *ThreadRepo) GetThread(ctx context.Context, id uuid.UUID) (*model.Thread, error) {
	var out *model.Thread
	err := r.db.run(ctx, func(tx Querier) error {
		var err error
		out, err = scanThread(tx.QueryRow(ctx, threadSelect+` WHERE id=$1`, id))
		return err
	})
	return out, err
}

// ListThreads returns a user's threads, most recent activity first.
func (r *ThreadRepo) ListThreads(ctx context.Context, userID uuid.UUID) ([]model.Thread, error) {
	var out []model.Thread
	err := r.db.run(ctx, func(tx Querier) error {
		rows, err := tx.Query(ctx, threadSelect+` WHERE seeker_id=$1 OR lister_id=$1 ORDER BY last_message_at DESC`, userID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			t, err := scanThread(rows)
			if err != nil {
				return err
			}
			out = append(out, *t)
		}
		return rows.Err()
	})
	return out, err
}

// TransitionThread moves a thread between statuses only if it is still in `from`.
func (r *ThreadRepo) TransitionThread(ctx context.Context, id uuid.UUID, from, to string) error {
	const q = `UPDATE threads SET status=$3 WHERE id=$1 AND status=$2`
	return r.db.run(ctx, func(tx Querier) error {
		tag, err := tx.Exec(ctx, q, id, from, to)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errs.ErrVersionConflict
		}
		return nil
	})
}

// AppendMessage inserts a message and bumps the thread's last activity in one transaction.
func (r *ThreadRepo) AppendMessage(ctx context.Context, m *model.Message) error {
	const ins = `INSERT INTO messages (thread_id, sender_id, body) VALUES ($1,$2,$3) RETURNING id, created_at`
	const upd = `UPDATE threads SET last_message_at=$2 WHERE id=$1`
	return r.db.run(ctx, func(tx Querier) error {
		if err := tx.QueryRow(ctx, ins, m.ThreadID, m.SenderID, m.Body).Scan(&m.ID, &m.CreatedAt); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, upd, m.ThreadID, m.CreatedAt)
		return err
	})
}

const messageCols = `id, thread_id, sender_id, body, created_at`

// cursorRow resolves a cursor id ($3) to its (created_at, id) inside the thread ($1).
const cursorRow = `(SELECT created_at, id FROM messages WHERE id=$3 AND thread_id=$1)`

// ListMessages returns one page of a thread in creation order. A cursor that is not a
// message of the thread matches nothing.
func (r *ThreadRepo) ListMessages(ctx context.Context, threadID uuid.UUID, q model.MessageQuery) ([]model.Message, error) {
	var (
		query string
		args  = []any{threadID, q.Limit}
	)
	switch {
	case q.After != uuid.Nil:
		query = `SELECT ` + messageCols + ` FROM messages
WHERE thread_id=$1 AND (created_at, id) > ` + cursorRow + `
ORDER BY created_at ASC, id ASC
LIMIT $2`
		args = append(args, q.After)
	case q.Before != uuid.Nil:
		query = `SELECT ` + messageCols + ` FROM (
SELECT ` + messageCols + ` FROM messages
WHERE thread_id=$1 AND (created_at, id) < ` + cursorRow + `
ORDER BY created_at DESC, id DESC
LIMIT $2) page
ORDER BY created_at ASC, id ASC`
		args = append(args, q.Before)
	default:
		query = `SELECT ` + messageCols + ` FROM (
SELECT ` + messageCols + ` FROM messages
WHERE thread_id=$1
ORDER BY created_at DESC, id DESC
LIMIT $2) page
ORDER BY created_at ASC, id ASC`
	}
	var out []model.Message
	err := r.db.run(ctx, func(tx Querier) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var m model.Message
			if err := rows.Scan(&m.ID, &m.ThreadID, &m.SenderID, &m.Body, &m.CreatedAt); err != nil {
				return err
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	return out, err
}
