package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roomiegr/roomie/internal/authctx"
	"github.com/roomiegr/roomie/internal/errs"
	"github.com/roomiegr/roomie/internal/model"
)

func newClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/", "service-key", 5*time.Second)
	require.NoError(t, err)
	return c
}

func TestInvoke_ForwardsCallerToken(t *testing.T) {
	t.Parallel()
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/functions/v1/notify-admins", r.URL.Path)
		require.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		require.Equal(t, "service-key", r.Header.Get("apikey"))
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		require.Equal(t, "hello", in["message"])
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})

	ctx := authctx.WithTokens(context.Background(), model.Tokens{AccessToken: "user-token"})
	var out struct{ OK bool }
	require.NoError(t, c.Invoke(ctx, FnNotifyAdmins, map[string]string{"message": "hello"}, &out))
	require.True(t, out.OK)
}

func TestInvoke_ServiceKeyWithoutCaller(t *testing.T) {
	t.Parallel()
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, c.Invoke(context.Background(), FnValidatePhotos, map[string]any{}, nil))
}

func TestInvoke_MapsErrors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, errs.ErrUnauthorized},
		{http.StatusForbidden, errs.ErrForbidden},
		{http.StatusNotFound, errs.ErrNotFound},
		{http.StatusUnprocessableEntity, errs.ErrValidation},
		{http.StatusTooManyRequests, errs.ErrRateLimited},
	}
	for _, tc := range cases {
		c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = io.WriteString(w, `{"message":"nope"}`)
		})
		err := c.Invoke(context.Background(), FnAdminImpersonate, nil, nil)
		require.ErrorIs(t, err, tc.want)
		require.Contains(t, err.Error(), "nope")
	}

	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	err := c.Invoke(context.Background(), FnAdminImpersonate, nil, nil)
	var be *Error
	require.ErrorAs(t, err, &be)
	require.Equal(t, http.StatusBadGateway, be.Status)
	require.Equal(t, "Bad Gateway", be.Message)
}

func TestUpload(t *testing.T) {
	t.Parallel()
	var got string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/storage/v1/object/avatars/u1/me pic.png", r.URL.Path)
		require.Equal(t, "image/png", r.Header.Get("Content-Type"))
		require.Equal(t, "true", r.Header.Get("x-upsert"))
		b, _ := io.ReadAll(r.Body)
		got = string(b)
		_, _ = io.WriteString(w, `{"Key":"avatars/u1/me pic.png"}`)
	})

	u, err := c.Upload(context.Background(), BucketAvatars, "/u1/me pic.png", "image/png", strings.NewReader("PNG"))
	require.NoError(t, err)
	require.Equal(t, "PNG", got)
	require.True(t, strings.HasSuffix(u, "/storage/v1/object/public/avatars/u1/me%20pic.png"), u)
}

func TestNew_RejectsRelativeURL(t *testing.T) {
	t.Parallel()
	_, err := New("localhost:54321", "", time.Second)
	require.Error(t, err)
}
