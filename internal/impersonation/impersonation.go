// Package impersonation lets an admin act as another user inside their own browser session.
//
// Starting swaps the session's tokens for delegated ones and keeps the admin's tokens aside;
// exiting swaps them back. The delegation is time-boxed and every swap is logged.
package impersonation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/roomiegr/roomie/internal/authctx"
	"github.com/roomiegr/roomie/internal/backend"
	"github.com/roomiegr/roomie/internal/errs"
	"github.com/roomiegr/roomie/internal/model"
	"github.com/roomiegr/roomie/internal/notify"
	"github.com/roomiegr/roomie/internal/repository"
	"github.com/roomiegr/roomie/internal/session"
)

// Exit causes recorded in the activity log.
const (
	CauseManual  = "manual"
	CauseExpired = "expired"
)

// Storage is the per-browser session storage the swap works on.
type Storage interface {
	Get(ctx context.Context, key string, out any) (bool, error)
	Set(ctx context.Context, key string, v any) error
	Remove(ctx context.Context, keys ...string) error
}

// Invoker calls a backend edge function.
type Invoker interface {
	Invoke(ctx context.Context, name string, in, out any) error
}

// TokenVerifier checks delegated tokens returned by the issuing function.
type TokenVerifier interface {
	Verify(token string) (model.Identity, error)
}

// Service runs impersonation start and exit.
type Service struct {
	inv      Invoker
	verifier TokenVerifier
	activity repository.ActivityRepository
	notifier notify.Notifier
	log      *zap.Logger
	now      func() time.Time
}

// NewService constructs the impersonation service.
func NewService(inv Invoker, v TokenVerifier, activity repository.ActivityRepository, n notify.Notifier, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{inv: inv, verifier: v, activity: activity, notifier: n, log: log, now: time.Now}
}

type startRequest struct {
	TargetUserID uuid.UUID `json:"target_user_id"`
	Reason       string    `json:"reason"`
}

// Start makes the session act as target. The admin's tokens are kept for Exit.
func (s *Service) Start(ctx context.Context, st Storage, admin model.Identity, adminTokens model.Tokens, target uuid.UUID, reason string) (*model.ImpersonationSession, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errs.ErrReasonRequired
	}
	if admin.Impersonating() {
		return nil, errs.ErrAlreadyImpersonating
	}
	var existing model.ImpersonationSession
	if ok, err := st.Get(ctx, session.KeyImpersonation, &existing); err != nil {
		return nil, err
	} else if ok {
		return nil, errs.ErrAlreadyImpersonating
	}
	if admin.Role != model.RoleAdmin {
		return nil, fmt.Errorf("%w: only admins impersonate", errs.ErrForbidden)
	}
	if target == admin.UserID {
		return nil, fmt.Errorf("%w: cannot impersonate yourself", errs.ErrValidation)
	}

	var grant model.ImpersonationGrant
	callCtx := authctx.WithTokens(ctx, adminTokens)
	if err := s.inv.Invoke(callCtx, backend.FnAdminImpersonate, startRequest{TargetUserID: target, Reason: reason}, &grant); err != nil {
		return nil, fmt.Errorf("issue delegated session: %w", err)
	}

	delegated, err := s.verifier.Verify(grant.Tokens.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("delegated token: %w", err)
	}
	if delegated.UserID != target || delegated.ImpersonatorID == nil || *delegated.ImpersonatorID != admin.UserID {
		return nil, fmt.Errorf("%w: delegated token does not match the request", errs.ErrForbidden)
	}

	expires := grant.ExpiresAt
	if expires.IsZero() || expires.After(delegated.ExpiresAt) {
		expires = delegated.ExpiresAt
	}
	targetInfo := grant.Target
	targetInfo.UserID = target
	if targetInfo.Email == "" {
		targetInfo.Email = delegated.Email
	}
	imp := &model.ImpersonationSession{
		AdminID:   admin.UserID,
		Target:    targetInfo,
		Reason:    reason,
		StartedAt: s.now().UTC(),
		ExpiresAt: expires,
	}
	grant.Tokens.ExpiresAt = delegated.ExpiresAt

	if err := st.Set(ctx, session.KeyAdminSession, adminTokens); err != nil {
		return nil, err
	}
	if err := st.Set(ctx, session.KeyImpersonation, imp); err != nil {
		_ = st.Remove(ctx, session.KeyAdminSession)
		return nil, err
	}
	if err := st.Set(ctx, session.KeySession, grant.Tokens); err != nil {
		_ = st.Remove(ctx, session.KeyAdminSession, session.KeyImpersonation)
		return nil, err
	}

	s.record(ctx, model.ActivityImpersonationStart, admin.UserID, target, map[string]any{
		"reason":     reason,
		"expires_at": expires.Format(time.RFC3339),
	})
	notify.BestEffort(ctx, s.notifier, s.log, notify.Alert{
		Kind:    notify.KindImpersonation,
		Title:   "Impersonation started",
		Body:    fmt.Sprintf("Admin %s is acting as %s: %s", admin.UserID, target, reason),
		Details: map[string]string{"admin_id": admin.UserID.String(), "target_id": target.String()},
	})
	s.log.Info("impersonation started",
		zap.Stringer("admin_id", admin.UserID), zap.Stringer("target_id", target), zap.Time("expires_at", expires))
	return imp, nil
}

// Exit restores the admin's own tokens and returns them.
func (s *Service) Exit(ctx context.Context, st Storage) (model.Tokens, error) {
	return s.exit(ctx, st, CauseManual)
}

func (s *Service) exit(ctx context.Context, st Storage, cause string) (model.Tokens, error) {
	var imp model.ImpersonationSession
	ok, err := st.Get(ctx, session.KeyImpersonation, &imp)
	if err != nil {
		return model.Tokens{}, err
	}
	if !ok {
		return model.Tokens{}, errs.ErrNotImpersonating
	}

	var adminTokens model.Tokens
	ok, err = st.Get(ctx, session.KeyAdminSession, &adminTokens)
	if err != nil {
		return model.Tokens{}, err
	}
	if !ok {
		// Nothing to restore: drop the delegated state so the browser has to sign in again.
		if err := st.Remove(ctx, session.KeySession, session.KeyImpersonation); err != nil {
			return model.Tokens{}, err
		}
		return model.Tokens{}, fmt.Errorf("%w: admin session missing", errs.ErrUnauthorized)
	}

	if err := st.Set(ctx, session.KeySession, adminTokens); err != nil {
		return model.Tokens{}, err
	}
	if err := st.Remove(ctx, session.KeyAdminSession, session.KeyImpersonation); err != nil {
		return model.Tokens{}, err
	}

	s.record(ctx, model.ActivityImpersonationExit, imp.AdminID, imp.Target.UserID, map[string]any{
		"cause":    cause,
		"duration": s.now().Sub(imp.StartedAt).Round(time.Second).String(),
	})
	s.log.Info("impersonation ended",
		zap.Stringer("admin_id", imp.AdminID), zap.Stringer("target_id", imp.Target.UserID), zap.String("cause", cause))
	return adminTokens, nil
}

// Banner returns the active impersonation of a session, or nil. An expired impersonation is
// exited on the way.
func (s *Service) Banner(ctx context.Context, st Storage) (*model.ImpersonationSession, error) {
	var imp model.ImpersonationSession
	ok, err := st.Get(ctx, session.KeyImpersonation, &imp)
	if err != nil || !ok {
		return nil, err
	}
	if imp.Expired(s.now()) {
		if _, err := s.exit(ctx, st, CauseExpired); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return &imp, nil
}

// ExpireIfDue exits an expired impersonation and reports whether it did.
func (s *Service) ExpireIfDue(ctx context.Context, st Storage) (bool, error) {
	var imp model.ImpersonationSession
	ok, err := st.Get(ctx, session.KeyImpersonation, &imp)
	if err != nil || !ok {
		return false, err
	}
	if !imp.Expired(s.now()) {
		return false, nil
	}
	if _, err := s.exit(ctx, st, CauseExpired); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) record(ctx context.Context, action string, actor, subject uuid.UUID, details map[string]any) {
	e := &model.ActivityEntry{ActorID: actor, Action: action, SubjectID: &subject, Details: details}
	if err := s.activity.LogActivity(ctx, e); err != nil {
		s.log.Warn("activity log", zap.String("action", action), zap.Error(err))
	}
}
