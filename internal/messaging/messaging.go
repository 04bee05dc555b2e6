// Package messaging implements seeker/lister conversations about a listing.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/roomiegr/roomie/internal/errs"
	"github.com/roomiegr/roomie/internal/model"
	"github.com/roomiegr/roomie/internal/repository"
)

// MaxMessageLen bounds a message body in characters.
const MaxMessageLen = 2000

// DefaultPageSize is used when a caller asks for no limit.
const DefaultPageSize = 200

// Service runs the thread lifecycle. A thread is pending until the lister answers it; while
// pending only the seeker may write, and a declined thread takes no messages at all.
type Service struct {
	repo repository.ThreadRepository
	log  *zap.Logger
}

// NewService constructs a messaging service.
func NewService(repo repository.ThreadRepository, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, log: log}
}

func cleanBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", fmt.Errorf("%w: message is empty", errs.ErrValidation)
	}
	if utf8.RuneCountInString(body) > MaxMessageLen {
		return "", fmt.Errorf("%w: message longer than %d characters", errs.ErrValidation, MaxMessageLen)
	}
	return body, nil
}

// Open starts or resumes the seeker's thread about a listing and posts the first message.
func (s *Service) Open(ctx context.Context, seeker, listingID uuid.UUID, body string) (*model.Thread, *model.Message, error) {
	body, err := cleanBody(body)
	if err != nil {
		return nil, nil, err
	}
	owner, err := s.repo.ListingOwner(ctx, listingID)
	if err != nil {
		return nil, nil, fmt.Errorf("listing owner: %w", err)
	}
	if owner == seeker {
		return nil, nil, fmt.Errorf("%w: cannot message your own listing", errs.ErrForbidden)
	}

	t, err := s.repo.FindThread(ctx, listingID, seeker)
	if errors.Is(err, errs.ErrNotFound) {
		t = &model.Thread{ListingID: listingID, SeekerID: seeker, ListerID: owner, Status: model.ThreadPending}
		err = s.repo.CreateThread(ctx, t)
		if errors.Is(err, errs.ErrAlreadyExists) {
			t, err = s.repo.FindThread(ctx, listingID, seeker)
		}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open thread: %w", err)
	}

	m, err := s.append(ctx, t, seeker, body)
	if err != nil {
		return nil, nil, err
	}
	return t, m, nil
}

// Send appends a message to a thread the sender takes part in.
func (s *Service) Send(ctx context.Context, sender, threadID uuid.UUID, body string) (*model.Message, error) {
	body, err := cleanBody(body)
	if err != nil {
		return nil, err
	}
	t, err := s.participantThread(ctx, sender, threadID)
	if err != nil {
		return nil, err
	}
	return s.append(ctx, t, sender, body)
}

func (s *Service) append(ctx context.Context, t *model.Thread, sender uuid.UUID, body string) (*model.Message, error) {
	switch {
	case t.Status == model.ThreadDeclined:
		return nil, fmt.Errorf("%w: thread is closed", errs.ErrForbidden)
	case t.Status == model.ThreadPending && sender != t.SeekerID:
		return nil, fmt.Errorf("%w: accept the request before replying", errs.ErrForbidden)
	}
	m := &model.Message{ThreadID: t.ID, SenderID: sender, Body: body}
	if err := s.repo.AppendMessage(ctx, m); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return m, nil
}

// Respond lets the lister accept or decline a pending thread.
func (s *Service) Respond(ctx context.Context, lister, threadID uuid.UUID, accept bool) (*model.Thread, error) {
	t, err := s.participantThread(ctx, lister, threadID)
	if err != nil {
		return nil, err
	}
	if t.ListerID != lister {
		return nil, fmt.Errorf("%w: only the lister answers a request", errs.ErrForbidden)
	}
	to := model.ThreadDeclined
	if accept {
		to = model.ThreadAccepted
	}
	if t.Status != model.ThreadPending {
		return nil, fmt.Errorf("%w: thread already %s", errs.ErrValidation, t.Status)
	}
	if err := s.repo.TransitionThread(ctx, threadID, model.ThreadPending, to); err != nil {
		return nil, fmt.Errorf("respond: %w", err)
	}
	t.Status = to
	s.log.Info("thread answered", zap.Stringer("thread_id", threadID), zap.String("status", to))
	return t, nil
}

// List returns the user's threads.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]model.Thread, error) {
	return s.repo.ListThreads(ctx, userID)
}

// Messages returns one page of a thread to a participant. The page is read with one extra
// row so HasMore can be told without a count.
func (s *Service) Messages(ctx context.Context, userID, threadID uuid.UUID, q model.MessageQuery) (*model.MessagePage, error) {
	if q.Before != uuid.Nil && q.After != uuid.Nil {
		return nil, fmt.Errorf("%w: before and after are exclusive", errs.ErrValidation)
	}
	if _, err := s.participantThread(ctx, userID, threadID); err != nil {
		return nil, err
	}
	if q.Limit <= 0 || q.Limit > DefaultPageSize {
		q.Limit = DefaultPageSize
	}
	want := q.Limit
	q.Limit++
	ms, err := s.repo.ListMessages(ctx, threadID, q)
	if err != nil {
		return nil, err
	}
	page := &model.MessagePage{Messages: ms}
	if len(ms) > want {
		page.HasMore = true
		if q.After != uuid.Nil {
			page.Messages = ms[:want]
		} else {
			page.Messages = ms[len(ms)-want:]
		}
	}
	if page.Messages == nil {
		page.Messages = []model.Message{}
	}
	return page, nil
}

func (s *Service) participantThread(ctx context.Context, userID, threadID uuid.UUID) (*model.Thread, error) {
	t, err := s.repo.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !t.HasParticipant(userID) {
		return nil, errs.ErrNotFound
	}
	return t, nil
}
