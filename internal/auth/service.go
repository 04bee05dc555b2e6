package auth

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/roomiegr/roomie/internal/errs"
	"github.com/roomiegr/roomie/internal/model"
	"github.com/roomiegr/roomie/internal/session"
)

// Caller is a resolved request: who is calling, with which tokens, from which browser session.
type Caller struct {
	Identity model.Identity
	Tokens   model.Tokens
	Storage  *session.Storage
}

// Service signs browsers in and out and resolves session cookies to callers.
type Service struct {
	verifier *Verifier
	store    *session.Store
	log      *zap.Logger
}

// NewService constructs the session-binding service.
func NewService(v *Verifier, store *session.Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{verifier: v, store: store, log: log}
}

// SignIn verifies tokens obtained from the auth service and opens a browser session for them.
func (s *Service) SignIn(ctx context.Context, t model.Tokens) (*Caller, error) {
	id, err := s.verifier.Verify(t.AccessToken)
	if err != nil {
		return nil, err
	}
	if id.Impersonating() {
		return nil, fmt.Errorf("%w: delegated tokens cannot open a session", errs.ErrForbidden)
	}
	t.ExpiresAt = id.ExpiresAt

	st, err := s.store.Create(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Set(ctx, session.KeySession, t); err != nil {
		_ = s.store.Destroy(ctx, st.ID())
		return nil, err
	}
	s.log.Info("signed in", zap.Stringer("user_id", id.UserID), zap.String("role", id.Role))
	return &Caller{Identity: id, Tokens: t, Storage: st}, nil
}

// SignOut destroys a browser session, including any impersonation state in it.
func (s *Service) SignOut(ctx context.Context, sid string) error {
	return s.store.Destroy(ctx, sid)
}

// Resolve loads the active tokens of a session and verifies them.
func (s *Service) Resolve(ctx context.Context, sid string) (*Caller, error) {
	st, err := s.store.Open(ctx, sid)
	if err != nil {
		return nil, err
	}
	var t model.Tokens
	ok, err := st.Get(ctx, session.KeySession, &t)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrUnauthorized
	}
	id, err := s.verifier.Verify(t.AccessToken)
	if err != nil {
		return &Caller{Tokens: t, Storage: st}, err
	}
	return &Caller{Identity: id, Tokens: t, Storage: st}, nil
}

// Verifier exposes the token verifier.
func (s *Service) Verifier() *Verifier { return s.verifier }
