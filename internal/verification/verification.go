// Package verification runs the email, phone and Gov.gr identity checks of a user.
package verification

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/roomiegr/roomie/internal/errs"
	"github.com/roomiegr/roomie/internal/limiter"
	"github.com/roomiegr/roomie/internal/model"
	"github.com/roomiegr/roomie/internal/notify"
	"github.com/roomiegr/roomie/internal/repository"
)

// DocumentBucket is the storage bucket holding identity documents.
const DocumentBucket = "verification-docs"

// Review actions.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
	ActionRevoke  = "revoke"
)

// Uploader stores an object and returns its URL.
type Uploader interface {
	Upload(ctx context.Context, bucket, objectPath, contentType string, body io.Reader) (string, error)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Repo     repository.VerificationRepository
	Activity repository.ActivityRepository
	Uploader Uploader
	OTP      *OTP
	SMS      notify.SMSSender
	Limiter  limiter.Limiter
	Notifier notify.Notifier
	Logger   *zap.Logger
}

// Service implements the verification flows.
type Service struct {
	repo     repository.VerificationRepository
	activity repository.ActivityRepository
	up       Uploader
	otp      *OTP
	sms      notify.SMSSender
	lim      limiter.Limiter
	notifier notify.Notifier
	log      *zap.Logger
	now      func() time.Time
}

// NewService constructs a verification service.
func NewService(d Deps) *Service {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:     d.Repo,
		activity: d.Activity,
		up:       d.Uploader,
		otp:      d.OTP,
		sms:      d.SMS,
		lim:      d.Limiter,
		notifier: d.Notifier,
		log:      log,
		now:      time.Now,
	}
}

// List returns the user's verification rows.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]model.Verification, error) {
	out, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list verifications: %w", err)
	}
	return out, nil
}

// Identity folds the two Gov.gr document sides into one status.
func Identity(vs []model.Verification) model.IdentityStatus {
	st := model.IdentityStatus{Front: model.StatusUnverified, Back: model.StatusUnverified}
	for _, v := range vs {
		if v.Kind != model.KindGovGR {
			continue
		}
		switch v.Side {
		case model.SideFront:
			st.Front = v.Status
		case model.SideBack:
			st.Back = v.Status
		}
	}
	st.FullyVerified = st.Front == model.StatusVerified && st.Back == model.StatusVerified
	st.Pending = st.Front == model.StatusPending || st.Back == model.StatusPending
	return st
}

// IdentityStatus loads the user's rows and folds them with Identity.
func (s *Service) IdentityStatus(ctx context.Context, userID uuid.UUID) (model.IdentityStatus, error) {
	vs, err := s.List(ctx, userID)
	if err != nil {
		return model.IdentityStatus{}, err
	}
	return Identity(vs), nil
}

var documentTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"application/pdf": ".pdf",
}

// SubmitGovGR uploads one side of an identity document and queues it for review.
func (s *Service) SubmitGovGR(ctx context.Context, userID uuid.UUID, side, contentType string, body io.Reader) (*model.Verification, error) {
	if side != model.SideFront && side != model.SideBack {
		return nil, fmt.Errorf("%w: unknown document side %q", errs.ErrValidation, side)
	}
	ext, ok := documentTypes[strings.ToLower(contentType)]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported document type %q", errs.ErrValidation, contentType)
	}

	objectPath := path.Join(userID.String(), "govgr-"+side+"-"+uuid.Must(uuid.NewV4()).String()+ext)
	url, err := s.up.Upload(ctx, DocumentBucket, objectPath, contentType, body)
	if err != nil {
		return nil, fmt.Errorf("upload document: %w", err)
	}

	v := &model.Verification{
		UserID:      userID,
		Kind:        model.KindGovGR,
		Side:        side,
		Status:      model.StatusPending,
		DocumentURL: url,
	}
	if err := s.repo.Upsert(ctx, v); err != nil {
		return nil, fmt.Errorf("save verification: %w", err)
	}

	notify.BestEffort(ctx, s.notifier, s.log, notify.Alert{
		Kind:    notify.KindVerificationSubmitted,
		Title:   "Identity document submitted",
		Body:    fmt.Sprintf("Gov.gr ID (%s side) awaits review.", side),
		Link:    "/admin/verifications/pending",
		Details: map[string]string{"user_id": userID.String(), "verification_id": v.ID.String()},
	})
	return v, nil
}

// StartPhone sends a one-time code to the phone number and returns when the code expires.
func (s *Service) StartPhone(ctx context.Context, userID uuid.UUID, phone string) (time.Time, error) {
	normalized, err := model.NormalizePhone(phone)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	code, expires, err := s.otp.Issue(ctx, userID, normalized)
	if err != nil {
		return time.Time{}, err
	}

	msg := fmt.Sprintf("Your roomie verification code is %s. It expires in %d minutes.", code, int(s.otp.TTL().Minutes()))
	if err := s.sms.SendSMS(ctx, normalized, msg); err != nil {
		if derr := s.otp.Discard(ctx, userID); derr != nil {
			s.log.Warn("discard otp", zap.Error(derr))
		}
		return time.Time{}, fmt.Errorf("send code: %w", err)
	}
	s.log.Info("phone code sent", zap.Stringer("user_id", userID))
	return expires, nil
}

// ConfirmPhone checks a code and marks the phone verified. Failed attempts count against the
// caller's lockout.
func (s *Service) ConfirmPhone(ctx context.Context, userID uuid.UUID, code, clientIP string) (*model.Verification, error) {
	subject := userID.String()
	ipHash := limiter.HashIP(clientIP)

	ok, retry, err := s.lim.Allow(ctx, subject, ipHash)
	if err != nil {
		return nil, fmt.Errorf("limiter: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: retry in %s", errs.ErrRateLimited, retry.Round(time.Second))
	}

	phone, err := s.otp.Check(ctx, userID, strings.TrimSpace(code))
	if errors.Is(err, ErrCodeMismatch) {
		blocked, wait, lerr := s.lim.Failure(ctx, subject, ipHash)
		if lerr != nil {
			s.log.Warn("limiter failure", zap.Error(lerr))
		}
		if blocked {
			return nil, fmt.Errorf("%w: retry in %s", errs.ErrRateLimited, wait.Round(time.Second))
		}
		return nil, fmt.Errorf("%w: wrong code", errs.ErrValidation)
	}
	if err != nil {
		return nil, err
	}
	if err := s.lim.Success(ctx, subject, ipHash); err != nil {
		s.log.Warn("limiter success", zap.Error(err))
	}

	now := s.now()
	v := &model.Verification{
		UserID:     userID,
		Kind:       model.KindPhone,
		Status:     model.StatusVerified,
		Value:      phone,
		ReviewedAt: &now,
	}
	if err := s.repo.Upsert(ctx, v); err != nil {
		return nil, fmt.Errorf("save verification: %w", err)
	}
	return v, nil
}

// PhoneVerified reports whether the user's phone verification is verified.
func (s *Service) PhoneVerified(ctx context.Context, userID uuid.UUID) (bool, error) {
	vs, err := s.List(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, v := range vs {
		if v.Kind == model.KindPhone {
			return v.Status == model.StatusVerified, nil
		}
	}
	return false, nil
}

// SyncEmail records the auth service's email confirmation as a verified email row.
func (s *Service) SyncEmail(ctx context.Context, id model.Identity) error {
	if !id.EmailConfirmed || id.Email == "" {
		return nil
	}
	vs, err := s.List(ctx, id.UserID)
	if err != nil {
		return err
	}
	for _, v := range vs {
		if v.Kind == model.KindEmail && v.Status == model.StatusVerified && strings.EqualFold(v.Value, id.Email) {
			return nil
		}
	}
	now := s.now()
	v := &model.Verification{
		UserID:     id.UserID,
		Kind:       model.KindEmail,
		Status:     model.StatusVerified,
		Value:      id.Email,
		ReviewedAt: &now,
	}
	if err := s.repo.Upsert(ctx, v); err != nil {
		return fmt.Errorf("save verification: %w", err)
	}
	return nil
}

// Pending returns the review queue.
func (s *Service) Pending(ctx context.Context, limit int) ([]model.Verification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListPending(ctx, limit)
}

// Decide applies a reviewer's action to a verification and logs it.
func (s *Service) Decide(ctx context.Context, reviewer, id uuid.UUID, action, note string) (*model.Verification, error) {
	v, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var next string
	switch action {
	case ActionApprove:
		if v.Status != model.StatusPending {
			return nil, fmt.Errorf("%w: only pending verifications can be approved", errs.ErrValidation)
		}
		next = model.StatusVerified
	case ActionReject:
		if v.Status != model.StatusPending {
			return nil, fmt.Errorf("%w: only pending verifications can be rejected", errs.ErrValidation)
		}
		if strings.TrimSpace(note) == "" {
			return nil, fmt.Errorf("%w: a rejection needs a note", errs.ErrValidation)
		}
		next = model.StatusUnverified
	case ActionRevoke:
		if v.Status != model.StatusVerified {
			return nil, fmt.Errorf("%w: only verified verifications can be revoked", errs.ErrValidation)
		}
		next = model.StatusUnverified
	default:
		return nil, fmt.Errorf("%w: unknown action %q", errs.ErrValidation, action)
	}

	if err := s.repo.SetStatus(ctx, id, next, &reviewer, note); err != nil {
		return nil, fmt.Errorf("set status: %w", err)
	}
	now := s.now()
	v.Status, v.ReviewedBy, v.ReviewedAt, v.Note = next, &reviewer, &now, note

	entry := &model.ActivityEntry{
		ActorID:   reviewer,
		Action:    model.ActivityVerificationDecide,
		SubjectID: &v.UserID,
		Details: map[string]any{
			"verification_id": id.String(),
			"kind":            v.Kind,
			"side":            v.Side,
			"action":          action,
			"note":            note,
		},
	}
	if err := s.activity.LogActivity(ctx, entry); err != nil {
		s.log.Warn("activity log", zap.String("action", entry.Action), zap.Error(err))
	}
	return v, nil
}
