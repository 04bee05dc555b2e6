package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/roomiegr/roomie/internal/crypto"
	"github.com/roomiegr/roomie/internal/errs"
	"github.com/roomiegr/roomie/internal/model"
	"github.com/roomiegr/roomie/internal/session"
)

var testKey = []byte("test-jwt-secret-with-enough-bytes")

func TestVerify_ExtractsIdentity(t *testing.T) {
	t.Parallel()
	uid := uuid.Must(uuid.NewV4())
	admin := uuid.Must(uuid.NewV4())
	c := NewClaims(uid, "maria@example.gr", model.RoleModerator, time.Hour)
	c.ImpersonatorID = admin.String()
	c.UserMetadata.EmailVerified = true
	tok, err := Sign(testKey, c)
	require.NoError(t, err)

	id, err := NewVerifier(testKey, DefaultLeeway, "").Verify(tok)
	require.NoError(t, err)
	require.Equal(t, uid, id.UserID)
	require.Equal(t, "maria@example.gr", id.Email)
	require.True(t, id.EmailConfirmed)
	require.Equal(t, model.RoleModerator, id.Role)
	require.NotNil(t, id.ImpersonatorID)
	require.Equal(t, admin, *id.ImpersonatorID)
	require.True(t, id.Impersonating())
}

func TestVerify_DefaultsRole(t *testing.T) {
	t.Parallel()
	tok, err := Sign(testKey, NewClaims(uuid.Must(uuid.NewV4()), "", "", time.Hour))
	require.NoError(t, err)
	id, err := NewVerifier(testKey, 0, "").Verify(tok)
	require.NoError(t, err)
	require.Equal(t, model.RoleUser, id.Role)
}

func TestVerify_Rejects(t *testing.T) {
	t.Parallel()
	uid := uuid.Must(uuid.NewV4())
	v := NewVerifier(testKey, DefaultLeeway, "authenticated")

	withAud := func(c Claims) Claims {
		c.Audience = jwt.ClaimStrings{"authenticated"}
		return c
	}

	expired := withAud(NewClaims(uid, "", "", -time.Minute))
	withinLeeway := withAud(NewClaims(uid, "", "", -10*time.Second))
	noExp := withAud(NewClaims(uid, "", "", time.Hour))
	noExp.ExpiresAt = nil
	badSub := withAud(NewClaims(uid, "", "", time.Hour))
	badSub.Subject = "user-1"
	wrongAud := NewClaims(uid, "", "", time.Hour)

	cases := []struct {
		name string
		key  []byte
		c    Claims
		ok   bool
	}{
		{"valid", testKey, withAud(NewClaims(uid, "", "", time.Hour)), true},
		{"within leeway", testKey, withinLeeway, true},
		{"expired", testKey, expired, false},
		{"no expiry", testKey, noExp, false},
		{"wrong key", []byte("another-secret"), withAud(NewClaims(uid, "", "", time.Hour)), false},
		{"bad subject", testKey, badSub, false},
		{"missing audience", testKey, wrongAud, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tok, err := Sign(tc.key, tc.c)
			require.NoError(t, err)
			_, err = v.Verify(tok)
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, errs.ErrUnauthorized)
			}
		})
	}
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()
	c := NewClaims(uuid.Must(uuid.NewV4()), "", "", time.Hour)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, c).SignedString(testKey)
	require.NoError(t, err)
	_, err = NewVerifier(testKey, 0, "").Verify(tok)
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func newService(t *testing.T) *Service {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	sealer, err := crypto.NewSealer(testKey, "session")
	require.NoError(t, err)
	store := session.NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), sealer, time.Hour)
	return NewService(NewVerifier(testKey, DefaultLeeway, ""), store, zaptest.NewLogger(t))
}

func TestService_SignInResolveSignOut(t *testing.T) {
	t.Parallel()
	s := newService(t)
	ctx := context.Background()
	uid := uuid.Must(uuid.NewV4())
	tok, err := Sign(testKey, NewClaims(uid, "nikos@example.gr", "", time.Hour))
	require.NoError(t, err)

	c, err := s.SignIn(ctx, model.Tokens{AccessToken: tok, RefreshToken: "r1"})
	require.NoError(t, err)
	require.Equal(t, uid, c.Identity.UserID)
	require.False(t, c.Tokens.ExpiresAt.IsZero())

	got, err := s.Resolve(ctx, c.Storage.ID())
	require.NoError(t, err)
	require.Equal(t, uid, got.Identity.UserID)
	require.Equal(t, "r1", got.Tokens.RefreshToken)

	require.NoError(t, s.SignOut(ctx, c.Storage.ID()))
	_, err = s.Resolve(ctx, c.Storage.ID())
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestService_SignInRejects(t *testing.T) {
	t.Parallel()
	s := newService(t)
	_, err := s.SignIn(context.Background(), model.Tokens{AccessToken: "garbage"})
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	c := NewClaims(uuid.Must(uuid.NewV4()), "", "", time.Hour)
	c.ImpersonatorID = uuid.Must(uuid.NewV4()).String()
	tok, err := Sign(testKey, c)
	require.NoError(t, err)
	_, err = s.SignIn(context.Background(), model.Tokens{AccessToken: tok})
	require.ErrorIs(t, err, errs.ErrForbidden)
}
