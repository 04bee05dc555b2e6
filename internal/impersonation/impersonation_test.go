package impersonation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofrs/uuid/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/roomiegr/roomie/internal/auth"
	"github.com/roomiegr/roomie/internal/authctx"
	"github.com/roomiegr/roomie/internal/backend"
	"github.com/roomiegr/roomie/internal/crypto"
	"github.com/roomiegr/roomie/internal/errs"
	"github.com/roomiegr/roomie/internal/model"
	"github.com/roomiegr/roomie/internal/session"
)

var testKey = []byte("test-jwt-secret-with-enough-bytes")

type fakeInvoker struct {
	calls     int
	name      string
	req       startRequest
	bearer    string
	err       error
	grantFunc func(req startRequest) model.ImpersonationGrant
}

func (f *fakeInvoker) Invoke(ctx context.Context, name string, in, out any) error {
	f.calls++
	f.name = name
	if t, ok := authctx.TokensFromCtx(ctx); ok {
		f.bearer = t.AccessToken
	}
	if f.err != nil {
		return f.err
	}
	raw, _ := json.Marshal(in)
	_ = json.Unmarshal(raw, &f.req)
	g := f.grantFunc(f.req)
	raw, _ = json.Marshal(g)
	return json.Unmarshal(raw, out)
}

type memActivity struct{ entries []model.ActivityEntry }

func (m *memActivity) LogActivity(_ context.Context, e *model.ActivityEntry) error {
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memActivity) ListActivity(context.Context, time.Time, int) ([]model.ActivityEntry, error) {
	return m.entries, nil
}

type fixture struct {
	svc      *Service
	inv      *fakeInvoker
	activity *memActivity
	storage  *session.Storage
	admin    model.Identity
	tokens   model.Tokens
	target   uuid.UUID
}

func sign(t *testing.T, c auth.Claims) string {
	t.Helper()
	tok, err := auth.Sign(testKey, c)
	require.NoError(t, err)
	return tok
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	sealer, err := crypto.NewSealer([]byte("0123456789abcdef0123456789abcdef"), "session")
	require.NoError(t, err)
	st, err := session.NewStore(rdb, sealer, time.Hour).Create(context.Background())
	require.NoError(t, err)

	verifier := auth.NewVerifier(testKey, auth.DefaultLeeway, "")
	adminTok := sign(t, auth.NewClaims(uuid.Must(uuid.NewV4()), "admin@roomie.gr", model.RoleAdmin, time.Hour))
	admin, err := verifier.Verify(adminTok)
	require.NoError(t, err)
	tokens := model.Tokens{AccessToken: adminTok, RefreshToken: "admin-refresh", ExpiresAt: admin.ExpiresAt.UTC()}
	require.NoError(t, st.Set(context.Background(), session.KeySession, tokens))

	f := &fixture{
		activity: &memActivity{},
		storage:  st,
		admin:    admin,
		tokens:   tokens,
		target:   uuid.Must(uuid.NewV4()),
	}
	f.inv = &fakeInvoker{grantFunc: func(req startRequest) model.ImpersonationGrant {
		c := auth.NewClaims(req.TargetUserID, "target@example.gr", model.RoleUser, 15*time.Minute)
		c.ImpersonatorID = admin.UserID.String()
		return model.ImpersonationGrant{
			Tokens:    model.Tokens{AccessToken: sign(t, c)},
			Target:    model.ImpersonationTarget{DisplayName: "Nikos"},
			ExpiresAt: time.Now().Add(15 * time.Minute),
		}
	}}
	f.svc = NewService(f.inv, verifier, f.activity, nil, zaptest.NewLogger(t))
	return f
}

func (f *fixture) activeTokens(t *testing.T) model.Tokens {
	t.Helper()
	var tok model.Tokens
	ok, err := f.storage.Get(context.Background(), session.KeySession, &tok)
	require.NoError(t, err)
	require.True(t, ok)
	return tok
}

func TestStartAndExit(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	imp, err := f.svc.Start(ctx, f.storage, f.admin, f.tokens, f.target, "  support ticket 4411 ")
	require.NoError(t, err)
	require.Equal(t, "support ticket 4411", imp.Reason)
	require.Equal(t, f.target, imp.Target.UserID)
	require.Equal(t, "Nikos", imp.Target.DisplayName)
	require.Equal(t, "target@example.gr", imp.Target.Email)

	require.Equal(t, backend.FnAdminImpersonate, f.inv.name)
	require.Equal(t, f.target, f.inv.req.TargetUserID)
	require.Equal(t, f.tokens.AccessToken, f.inv.bearer, "the issuing call carries the admin's token")

	active := f.activeTokens(t)
	require.NotEqual(t, f.tokens.AccessToken, active.AccessToken)

	banner, err := f.svc.Banner(ctx, f.storage)
	require.NoError(t, err)
	require.NotNil(t, banner)
	require.Equal(t, f.admin.UserID, banner.AdminID)

	restored, err := f.svc.Exit(ctx, f.storage)
	require.NoError(t, err)
	require.Equal(t, f.tokens, restored)
	require.Equal(t, f.tokens.AccessToken, f.activeTokens(t).AccessToken)

	banner, err = f.svc.Banner(ctx, f.storage)
	require.NoError(t, err)
	require.Nil(t, banner)

	_, err = f.svc.Exit(ctx, f.storage)
	require.ErrorIs(t, err, errs.ErrNotImpersonating)

	require.Len(t, f.activity.entries, 2)
	require.Equal(t, model.ActivityImpersonationStart, f.activity.entries[0].Action)
	require.Equal(t, model.ActivityImpersonationExit, f.activity.entries[1].Action)
	require.Equal(t, CauseManual, f.activity.entries[1].Details["cause"])
}

func TestStart_ReasonRequiredBeforeCall(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	_, err := f.svc.Start(context.Background(), f.storage, f.admin, f.tokens, f.target, "   ")
	require.ErrorIs(t, err, errs.ErrReasonRequired)
	require.Zero(t, f.inv.calls)
}

func TestStart_NoNesting(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, f.storage, f.admin, f.tokens, f.target, "first")
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, f.storage, f.admin, f.tokens, uuid.Must(uuid.NewV4()), "second")
	require.ErrorIs(t, err, errs.ErrAlreadyImpersonating)

	delegated := f.admin
	delegated.ImpersonatorID = &f.admin.UserID
	_, err = f.svc.Start(ctx, f.storage, delegated, f.tokens, f.target, "again")
	require.ErrorIs(t, err, errs.ErrAlreadyImpersonating)
	require.Equal(t, 1, f.inv.calls)
}

func TestStart_Refusals(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	mod := f.admin
	mod.Role = model.RoleModerator
	_, err := f.svc.Start(ctx, f.storage, mod, f.tokens, f.target, "why")
	require.ErrorIs(t, err, errs.ErrForbidden)

	_, err = f.svc.Start(ctx, f.storage, f.admin, f.tokens, f.admin.UserID, "why")
	require.ErrorIs(t, err, errs.ErrValidation)

	f.inv.err = &backend.Error{Status: 403, Message: "target is an admin"}
	_, err = f.svc.Start(ctx, f.storage, f.admin, f.tokens, f.target, "why")
	require.ErrorIs(t, err, errs.ErrForbidden)
	require.Equal(t, f.tokens.AccessToken, f.activeTokens(t).AccessToken, "session untouched on failure")

	f.inv.err = nil
	f.inv.grantFunc = func(req startRequest) model.ImpersonationGrant {
		c := auth.NewClaims(uuid.Must(uuid.NewV4()), "", model.RoleUser, time.Minute)
		c.ImpersonatorID = f.admin.UserID.String()
		return model.ImpersonationGrant{Tokens: model.Tokens{AccessToken: sign(t, c)}}
	}
	_, err = f.svc.Start(ctx, f.storage, f.admin, f.tokens, f.target, "why")
	require.ErrorIs(t, err, errs.ErrForbidden, "grant for someone else")

	f.inv.err = errors.New("network")
	_, err = f.svc.Start(ctx, f.storage, f.admin, f.tokens, f.target, "why")
	require.Error(t, err)
	require.Empty(t, f.activity.entries)
}

func TestBanner_AutoExitsWhenExpired(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, f.storage, f.admin, f.tokens, f.target, "ticket")
	require.NoError(t, err)

	f.svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	banner, err := f.svc.Banner(ctx, f.storage)
	require.NoError(t, err)
	require.Nil(t, banner)
	require.Equal(t, f.tokens.AccessToken, f.activeTokens(t).AccessToken)

	exited, err := f.svc.ExpireIfDue(ctx, f.storage)
	require.NoError(t, err)
	require.False(t, exited)

	last := f.activity.entries[len(f.activity.entries)-1]
	require.Equal(t, CauseExpired, last.Details["cause"])
}
