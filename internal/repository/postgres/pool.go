// Package postgres contains PostgreSQL implementations of repository interfaces.
package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roomiegr/roomie/internal/authctx"
	"github.com/roomiegr/roomie/internal/model"
)

// PgxPool is a minimal abstraction over a Postgres connection pool,
// used by repositories. It is implemented by *pgxpool.Pool and pgxmock.PgxPoolIface.
type PgxPool interface {
	Querier
	// BeginTx starts a transaction with the provided options.
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// Close shuts down the pool and frees resources.
	Close()
}

// Querier is what repositories need from either the pool or a transaction.
type Querier interface {
	// Exec executes a SQL command and returns the command tag.
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	// Query executes a SELECT and returns a rows iterator.
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	// QueryRow executes a query expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB wraps pgxpool.Pool to satisfy repository constructors and allow testing.
type DB struct{ Pool PgxPool }

// New creates a new connection pool for the given DSN.
func New(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &DB{Pool: pool}, nil
}

// Close closes the underlying pool.
func (db *DB) Close() { db.Pool.Close() }

// Ping checks that the database answers.
func (db *DB) Ping(ctx context.Context) error { return db.Pool.Ping(ctx) }

const setClaimsSQL = `SELECT set_config('role', $1, true), set_config('request.jwt.claims', $2, true)`

// jwtClaims mirrors the claim set the backend's row-level security policies read.
type jwtClaims struct {
	Sub         string            `json:"sub"`
	Role        string            `json:"role"`
	Email       string            `json:"email,omitempty"`
	AppMetadata map[string]string `json:"app_metadata"`
}

func claimsFor(id model.Identity) ([]byte, error) {
	role := id.Role
	if role == "" {
		role = model.RoleUser
	}
	return json.Marshal(jwtClaims{
		Sub:         id.UserID.String(),
		Role:        "authenticated",
		Email:       id.Email,
		AppMetadata: map[string]string{"role": role},
	})
}

// run executes fn inside a transaction. When ctx carries an identity the transaction takes the
// authenticated role and the caller's claims, so row-level security applies as for the caller.
// Without one fn runs with the service connection's own privileges.
func (db *DB) run(ctx context.Context, fn func(q Querier) error) (err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	if id, ok := authctx.IdentityFromCtx(ctx); ok {
		claims, mErr := claimsFor(id)
		if mErr != nil {
			return mErr
		}
		if _, err = tx.Exec(ctx, setClaimsSQL, "authenticated", string(claims)); err != nil {
			return err
		}
	}
	return fn(tx)
}

// isUniqueViolation reports whether the error is a unique constraint violation.
func isUniqueViolation(err error) bool {
	var pg *pgconn.PgError
	return errors.As(err, &pg) && pg.Code == "23505"
}
