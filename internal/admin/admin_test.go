package admin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/roomiegr/roomie/internal/backend"
	"github.com/roomiegr/roomie/internal/errs"
	"github.com/roomiegr/roomie/internal/model"
	"github.com/roomiegr/roomie/internal/notify"
	"github.com/roomiegr/roomie/internal/repository"
)

type fakeRooms struct {
	status map[uuid.UUID]string
	reason map[uuid.UUID]string
}

var _ repository.RoomRepository = (*fakeRooms)(nil)

func (f *fakeRooms) SearchRooms(context.Context, model.SearchFilters) ([]model.SearchHit, int, error) {
	return nil, 0, nil
}

func (f *fakeRooms) ListModeration(_ context.Context, status string, limit int) ([]model.ModerationItem, error) {
	var out []model.ModerationItem
	for id, s := range f.status {
		if s == status && len(out) < limit {
			out = append(out, model.ModerationItem{RoomID: id, Status: s})
		}
	}
	return out, nil
}

func (f *fakeRooms) SetModeration(_ context.Context, roomID uuid.UUID, status, reason string) error {
	if _, ok := f.status[roomID]; !ok {
		return errs.ErrNotFound
	}
	f.status[roomID], f.reason[roomID] = status, reason
	return nil
}

type fakePhotos struct {
	refs  []model.PhotoRef
	pages int
}

var _ repository.PhotoRepository = (*fakePhotos)(nil)

func (f *fakePhotos) InsertRoomPhotos(context.Context, []model.RoomPhoto) error { return nil }

func (f *fakePhotos) ListPublishedPhotos(_ context.Context, limit, offset int) ([]model.PhotoRef, error) {
	f.pages++
	if offset >= len(f.refs) {
		return nil, nil
	}
	return f.refs[offset:min(offset+limit, len(f.refs))], nil
}

type memActivity struct{ entries []model.ActivityEntry }

func (m *memActivity) LogActivity(_ context.Context, e *model.ActivityEntry) error {
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memActivity) ListActivity(_ context.Context, since time.Time, limit int) ([]model.ActivityEntry, error) {
	var out []model.ActivityEntry
	for _, e := range m.entries {
		if !e.CreatedAt.Before(since) && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeInvoker struct {
	name string
	in   any
	err  error
}

func (f *fakeInvoker) Invoke(_ context.Context, name string, in, _ any) error {
	f.name, f.in = name, in
	return f.err
}

type fakeNotifier struct{ alerts []notify.Alert }

func (f *fakeNotifier) Notify(_ context.Context, a notify.Alert) error {
	f.alerts = append(f.alerts, a)
	return nil
}

type fakeCache struct{ calls int }

func (f *fakeCache) Refresh(context.Context) error {
	f.calls++
	return errors.New("refresh failed")
}

type fixture struct {
	svc      *Service
	rooms    *fakeRooms
	photos   *fakePhotos
	activity *memActivity
	inv      *fakeInvoker
	notifier *fakeNotifier
	cache    *fakeCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		rooms:    &fakeRooms{status: map[uuid.UUID]string{}, reason: map[uuid.UUID]string{}},
		photos:   &fakePhotos{},
		activity: &memActivity{},
		inv:      &fakeInvoker{},
		notifier: &fakeNotifier{},
		cache:    &fakeCache{},
	}
	f.svc = NewService(Deps{
		Rooms:    f.rooms,
		Photos:   f.photos,
		Activity: f.activity,
		Invoker:  f.inv,
		Notifier: f.notifier,
		Cache:    f.cache,
		Logger:   zaptest.NewLogger(t),
		Scan:     ScanOptions{Concurrency: 3, PageSize: 2, ProbeTimeout: 2 * time.Second},
	})
	return f
}

func TestModerate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.Must(uuid.NewV4())
	room := uuid.Must(uuid.NewV4())
	f.rooms.status[room] = model.ModerationPending

	pending, err := f.svc.PendingListings(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, f.svc.Moderate(ctx, actor, room, ActionApprove, ""))
	require.Equal(t, model.ModerationApproved, f.rooms.status[room])
	require.Zero(t, f.cache.calls, "approval does not change search visibility")

	require.ErrorIs(t, f.svc.Moderate(ctx, actor, room, ActionSuspend, "  "), errs.ErrReasonRequired)
	require.NoError(t, f.svc.Moderate(ctx, actor, room, ActionSuspend, "fake photos"), "a failing cache refresh is swallowed")
	require.Equal(t, model.ModerationSuspended, f.rooms.status[room])
	require.Equal(t, "fake photos", f.rooms.reason[room])
	require.Equal(t, 1, f.cache.calls)

	require.NoError(t, f.svc.Moderate(ctx, actor, room, ActionReinstate, ""))
	require.Equal(t, model.ModerationApproved, f.rooms.status[room])

	require.ErrorIs(t, f.svc.Moderate(ctx, actor, room, "delete", ""), errs.ErrValidation)
	require.ErrorIs(t, f.svc.Moderate(ctx, actor, uuid.Must(uuid.NewV4()), ActionApprove, ""), errs.ErrNotFound)

	require.Len(t, f.activity.entries, 3)
	for _, e := range f.activity.entries {
		require.Equal(t, model.ActivityRoomModerate, e.Action)
		require.Equal(t, room, *e.SubjectID)
	}

	got, err := f.svc.Activity(ctx, time.Time{}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func photoServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok.jpg", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/gone.jpg", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) })
	mux.HandleFunc("/nohead.jpg", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if r.Header.Get("Range") != "bytes=0-0" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusPartialContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestScanPhotos(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	srv := photoServer(t)
	healthyRoom := uuid.Must(uuid.NewV4())
	brokenRoom := uuid.Must(uuid.NewV4())
	f.photos.refs = []model.PhotoRef{
		{RoomID: healthyRoom, URL: srv.URL + "/ok.jpg"},
		{RoomID: healthyRoom, URL: srv.URL + "/nohead.jpg"},
		{RoomID: brokenRoom, URL: srv.URL + "/gone.jpg"},
		{RoomID: brokenRoom, URL: "http://127.0.0.1:1/unreachable.jpg"},
		{RoomID: brokenRoom, URL: srv.URL + "/ok.jpg"},
	}
	actor := uuid.Must(uuid.NewV4())

	rep, err := f.svc.ScanPhotos(context.Background(), actor)
	require.NoError(t, err)
	require.Equal(t, 5, rep.Checked)
	require.Equal(t, 3, rep.Healthy)
	require.Len(t, rep.Broken, 2)
	require.Equal(t, 3, f.photos.pages, "pages of two until a short page")

	var statuses []int
	for _, b := range rep.Broken {
		require.Equal(t, brokenRoom, b.RoomID)
		statuses = append(statuses, b.Status)
	}
	require.Contains(t, statuses, http.StatusNotFound)

	require.Equal(t, backend.FnValidatePhotos, f.inv.name)
	require.Equal(t, validateRequest{RoomIDs: []uuid.UUID{brokenRoom}}, f.inv.in)
	require.Equal(t, []uuid.UUID{brokenRoom}, rep.Triggered)
	require.Len(t, f.notifier.alerts, 1)
	require.Equal(t, notify.KindPhotosBroken, f.notifier.alerts[0].Kind)

	require.Len(t, f.activity.entries, 1)
	require.Equal(t, model.ActivityPhotosScan, f.activity.entries[0].Action)
}

func TestScanPhotos_TriggerFailureStillReports(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	srv := photoServer(t)
	f.photos.refs = []model.PhotoRef{{RoomID: uuid.Must(uuid.NewV4()), URL: srv.URL + "/gone.jpg"}}
	f.inv.err = errors.New("function down")

	rep, err := f.svc.ScanPhotos(context.Background(), uuid.Must(uuid.NewV4()))
	require.NoError(t, err)
	require.Len(t, rep.Broken, 1)
	require.Empty(t, rep.Triggered)
}

func TestScanPhotos_AllHealthy(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	srv := photoServer(t)
	f.photos.refs = []model.PhotoRef{{RoomID: uuid.Must(uuid.NewV4()), URL: srv.URL + "/ok.jpg"}}

	rep, err := f.svc.ScanPhotos(context.Background(), uuid.Must(uuid.NewV4()))
	require.NoError(t, err)
	require.Empty(t, rep.Broken)
	require.Empty(t, f.inv.name, "nothing to re-validate")
	require.Empty(t, f.notifier.alerts)
}

func TestScanPhotos_OneAtATime(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.svc.scanning.Store(true)
	_, err := f.svc.ScanPhotos(context.Background(), uuid.Must(uuid.NewV4()))
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
}
