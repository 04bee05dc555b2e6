package profile

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/roomiegr/roomie/internal/errs"
	"github.com/roomiegr/roomie/internal/model"
	"github.com/roomiegr/roomie/internal/repository"
)

type memRepo struct {
	rows    map[uuid.UUID]model.Profile
	saveErr error
}

var _ repository.ProfileRepository = (*memRepo)(nil)

func newMemRepo() *memRepo { return &memRepo{rows: map[uuid.UUID]model.Profile{}} }

func (m *memRepo) GetProfile(_ context.Context, id uuid.UUID) (*model.Profile, error) {
	p, ok := m.rows[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &p, nil
}

func (m *memRepo) SaveProfile(_ context.Context, p *model.Profile) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.rows[p.ID] = *p
	return nil
}

type fakeUploader struct {
	bucket, path string
	err          error
}

func (f *fakeUploader) Upload(_ context.Context, bucket, objectPath, _ string, _ io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.bucket, f.path = bucket, objectPath
	return "https://cdn/" + bucket + "/" + objectPath, nil
}

func strp(s string) *string { return &s }
func boolp(b bool) *bool     { return &b }

func TestCompletion(t *testing.T) {
	t.Parallel()
	sum := 0
	for _, w := range weights {
		sum += w.weight
	}
	require.Equal(t, 100, sum)

	require.Zero(t, Completion(nil))
	require.Zero(t, Completion(&model.Profile{DisplayName: "   "}))

	dob := time.Date(1996, 4, 2, 0, 0, 0, 0, time.UTC)
	full := &model.Profile{
		DisplayName: "Eleni", AvatarURL: "a", Bio: "b", Phone: "+306912345678", DateOfBirth: &dob,
		Gender: "female", Occupation: "student", Languages: []string{"el"}, Smoker: boolp(false), HasPets: boolp(false),
	}
	require.Equal(t, 100, Completion(full))
	require.Empty(t, Missing(full))

	partial := &model.Profile{DisplayName: "Eleni", AvatarURL: "a", Bio: "b", Phone: "+30691", Gender: "f", Occupation: "x"}
	require.Equal(t, 80, Completion(partial))
	require.Equal(t, []string{"date_of_birth", "languages", "smoker", "has_pets"}, Missing(partial))
}

func TestService_GetMissingIsEmpty(t *testing.T) {
	t.Parallel()
	id := uuid.Must(uuid.NewV4())
	s := NewService(newMemRepo(), nil, nil)
	p, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, id, p.ID)

	pct, err := s.Completion(context.Background(), id)
	require.NoError(t, err)
	require.Zero(t, pct)
}

func TestService_Update(t *testing.T) {
	t.Parallel()
	repo := newMemRepo()
	s := NewService(repo, nil, nil)
	id := uuid.Must(uuid.NewV4())

	p, err := s.Update(context.Background(), id, model.ProfilePatch{DisplayName: strp("  Giorgos "), Phone: strp("69 1234 5678")})
	require.NoError(t, err)
	require.Equal(t, "Giorgos", p.DisplayName)
	require.Equal(t, "+306912345678", p.Phone)

	p, err = s.Update(context.Background(), id, model.ProfilePatch{Bio: strp("Quiet, tidy.")})
	require.NoError(t, err)
	require.Equal(t, "Giorgos", p.DisplayName, "unspecified fields are kept")
	require.Equal(t, "Quiet, tidy.", repo.rows[id].Bio)
}

func TestService_UpdateValidation(t *testing.T) {
	t.Parallel()
	s := NewService(newMemRepo(), nil, nil)
	id := uuid.Must(uuid.NewV4())
	bad := []model.ProfilePatch{
		{DisplayName: strp(strings.Repeat("x", MaxDisplayName+1))},
		{Bio: strp(strings.Repeat("β", MaxBio+1))},
		{Phone: strp("12")},
		{AvatarURL: strp("https://evil/x.png")},
	}
	for _, p := range bad {
		_, err := s.Update(context.Background(), id, p)
		require.ErrorIs(t, err, errs.ErrValidation)
	}
}

func TestService_UploadAvatar(t *testing.T) {
	t.Parallel()
	repo := newMemRepo()
	up := &fakeUploader{}
	s := NewService(repo, up, nil)
	id := uuid.Must(uuid.NewV4())

	p, err := s.UploadAvatar(context.Background(), id, "image/png", strings.NewReader("png"))
	require.NoError(t, err)
	require.Equal(t, AvatarBucket, up.bucket)
	require.True(t, strings.HasPrefix(up.path, id.String()+"/avatar-"))
	require.True(t, strings.HasSuffix(up.path, ".png"))
	require.Equal(t, p.AvatarURL, repo.rows[id].AvatarURL)

	_, err = s.UploadAvatar(context.Background(), id, "image/gif", strings.NewReader("gif"))
	require.ErrorIs(t, err, errs.ErrValidation)

	up.err = errors.New("storage down")
	_, err = s.UploadAvatar(context.Background(), id, "image/jpeg", strings.NewReader("jpg"))
	require.Error(t, err)
}
