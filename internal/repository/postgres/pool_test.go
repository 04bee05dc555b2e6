package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/gofrs/uuid/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/roomiegr/roomie/internal/authctx"
	"github.com/roomiegr/roomie/internal/model"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

func withUser(role string) (context.Context, uuid.UUID) {
	id := uuid.Must(uuid.NewV4())
	return authctx.WithIdentity(context.Background(), model.Identity{UserID: id, Role: role}), id
}

func TestRun_AppliesClaims(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()

	ctx, uid := withUser(model.RoleAdmin)
	claims := `{"sub":"` + uid.String() + `","role":"authenticated","app_metadata":{"role":"admin"}}`

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT set_config\('role', \$1, true\), set_config\('request.jwt.claims', \$2, true\)`).
		WithArgs("authenticated", claims).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`SELECT 1`).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectCommit()

	err := db.run(ctx, func(q Querier) error {
		_, err := q.Exec(ctx, `SELECT 1`)
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_NoIdentity_SkipsClaims_RollsBackOnError(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := db.run(context.Background(), func(Querier) error { return boom })
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimsFor_DefaultsRole(t *testing.T) {
	id := uuid.Must(uuid.NewV4())
	b, err := claimsFor(model.Identity{UserID: id, Email: "a@b.gr"})
	require.NoError(t, err)
	require.JSONEq(t,
		`{"sub":"`+id.String()+`","role":"authenticated","email":"a@b.gr","app_metadata":{"role":"user"}}`,
		string(b))
}
