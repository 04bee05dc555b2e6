package postgres

import (
	"context"
	"time"

	"github.com/roomiegr/roomie/internal/model"
	"github.com/roomiegr/roomie/internal/repository"
)

// ActivityRepo stores the admin activity log.
type ActivityRepo struct{ db *DB }

// NewActivityRepo constructs an activity repository.
func NewActivityRepo(db *DB) *ActivityRepo { return &ActivityRepo{db: db} }

var _ repository.ActivityRepository = (*ActivityRepo)(nil)

// LogActivity appends an entry and fills its id and timestamp.
func (r *ActivityRepo) LogActivity(ctx context.Context, e *model.ActivityEntry) error {
	const q = `
INSERT INTO activity_log (actor_id, action, subject_id, details)
VALUES ($1,$2,$3,$4)
RETURNING id, created_at`
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	return r.db.run(ctx, func(tx Querier) error {
		return tx.QueryRow(ctx, q, e.ActorID, e.Action, e.SubjectID, details).Scan(&e.ID, &e.CreatedAt)
	})
}

// ListActivity returns entries newer than since, most recent first.
func (r *ActivityRepo) ListActivity(ctx context.Context, since time.Time, limit int) ([]model.ActivityEntry, error) {
	const q = `
SELECT id, actor_id, action, subject_id, details, created_at
FROM activity_log
WHERE created_at > $1
ORDER BY created_at DESC
LIMIT $2`
	var out []model.ActivityEntry
	err := r.db.run(ctx, func(tx Querier) error {
		rows, err := tx.Query(ctx, q, since, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var e model.ActivityEntry
			if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.SubjectID, &e.Details, &e.CreatedAt); err != nil {
				return err
			}
			out = append(out, e)
		}
		return rows.Err()
	})
	return out, err
}
