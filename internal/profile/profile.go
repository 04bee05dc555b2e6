// Package profile manages user profiles and their completion score.
package profile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/roomiegr/roomie/internal/errs"
	"github.com/roomiegr/roomie/internal/model"
	"github.com/roomiegr/roomie/internal/repository"
)

// AvatarBucket is the storage bucket holding avatars.
const AvatarBucket = "avatars"

// Field limits.
const (
	MaxDisplayName = 80
	MaxBio         = 1000
)

// Uploader stores an object and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, bucket, objectPath, contentType string, body io.Reader) (string, error)
}

// weights of each filled field in the completion percentage; they add up to 100.
var weights = []struct {
	name   string
	weight int
	filled func(p *model.Profile) bool
}{
	{"display_name", 15, func(p *model.Profile) bool { return strings.TrimSpace(p.DisplayName) != "" }},
	{"avatar_url", 15, func(p *model.Profile) bool { return p.AvatarURL != "" }},
	{"bio", 15, func(p *model.Profile) bool { return strings.TrimSpace(p.Bio) != "" }},
	{"phone", 15, func(p *model.Profile) bool { return p.Phone != "" }},
	{"date_of_birth", 10, func(p *model.Profile) bool { return p.DateOfBirth != nil }},
	{"gender", 10, func(p *model.Profile) bool { return p.Gender != "" }},
	{"occupation", 10, func(p *model.Profile) bool { return p.Occupation != "" }},
	{"languages", 4, func(p *model.Profile) bool { return len(p.Languages) > 0 }},
	{"smoker", 3, func(p *model.Profile) bool { return p.Smoker != nil }},
	{"has_pets", 3, func(p *model.Profile) bool { return p.HasPets != nil }},
}

// Completion returns the weighted percentage of filled profile fields.
func Completion(p *model.Profile) int {
	if p == nil {
		return 0
	}
	total := 0
	for _, w := range weights {
		if w.filled(p) {
			total += w.weight
		}
	}
	return total
}

// Missing lists the unfilled fields, heaviest first.
func Missing(p *model.Profile) []string {
	var out []string
	for _, w := range weights {
		if p == nil || !w.filled(p) {
			out = append(out, w.name)
		}
	}
	return out
}

// Service reads and edits profiles.
type Service struct {
	repo repository.ProfileRepository
	up   Uploader
	log  *zap.Logger
}

// NewService constructs a profile service.
func NewService(repo repository.ProfileRepository, up Uploader, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, up: up, log: log}
}

// Get returns the user's profile. A user without a row gets an empty profile.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*model.Profile, error) {
	p, err := s.repo.GetProfile(ctx, userID)
	if errors.Is(err, errs.ErrNotFound) {
		return &model.Profile{ID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// Update applies a partial update after validating it.
func (s *Service) Update(ctx context.Context, userID uuid.UUID, patch model.ProfilePatch) (*model.Profile, error) {
	if err := validate(&patch); err != nil {
		return nil, err
	}
	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	patch.Apply(p)
	if err := s.repo.SaveProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}
	return p, nil
}

func validate(p *model.ProfilePatch) error {
	if p.DisplayName != nil {
		v := strings.TrimSpace(*p.DisplayName)
		if utf8.RuneCountInString(v) > MaxDisplayName {
			return fmt.Errorf("%w: display name longer than %d characters", errs.ErrValidation, MaxDisplayName)
		}
		p.DisplayName = &v
	}
	if p.Bio != nil && utf8.RuneCountInString(*p.Bio) > MaxBio {
		return fmt.Errorf("%w: bio longer than %d characters", errs.ErrValidation, MaxBio)
	}
	if p.Phone != nil && *p.Phone != "" {
		n, err := model.NormalizePhone(*p.Phone)
		if err != nil {
			return fmt.Errorf("%w: %v", errs.ErrValidation, err)
		}
		p.Phone = &n
	}
	if p.AvatarURL != nil {
		return fmt.Errorf("%w: avatar is set by upload", errs.ErrValidation)
	}
	return nil
}

var avatarTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// UploadAvatar stores a new avatar and points the profile at it.
func (s *Service) UploadAvatar(ctx context.Context, userID uuid.UUID, contentType string, body io.Reader) (*model.Profile, error) {
	ext, ok := avatarTypes[strings.ToLower(contentType)]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported image type %q", errs.ErrValidation, contentType)
	}
	objectPath := path.Join(userID.String(), "avatar-"+uuid.Must(uuid.NewV4()).String()+ext)
	url, err := s.up.Upload(ctx, AvatarBucket, objectPath, contentType, body)
	if err != nil {
		return nil, fmt.Errorf("upload avatar: %w", err)
	}

	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	p.AvatarURL = url
	if err := s.repo.SaveProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}
	s.log.Info("avatar updated", zap.Stringer("user_id", userID))
	return p, nil
}

// Completion returns the completion percentage of the user's profile.
func (s *Service) Completion(ctx context.Context, userID uuid.UUID) (int, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	return Completion(p), nil
}
