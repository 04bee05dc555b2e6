package admin

import (
	"cmp"
	"context"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roomiegr/roomie/internal/backend"
	"github.com/roomiegr/roomie/internal/errs"
	"github.com/roomiegr/roomie/internal/model"
	"github.com/roomiegr/roomie/internal/notify"
)

// ScanOptions bound a photo health scan.
type ScanOptions struct {
	Concurrency  int
	PageSize     int
	ProbeTimeout time.Duration
}

func (o ScanOptions) withDefaults() ScanOptions {
	if o.Concurrency <= 0 {
		o.Concurrency = 8
	}
	if o.PageSize <= 0 {
		o.PageSize = 500
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = 10 * time.Second
	}
	return o
}

// Prober checks one photo URL and returns the HTTP status it answers with.
type Prober interface {
	Probe(ctx context.Context, url string) (int, error)
}

// HTTPProber probes with HEAD, falling back to a one-byte ranged GET for servers that refuse HEAD.
type HTTPProber struct{ client *http.Client }

// NewHTTPProber wraps an HTTP client. A nil client gets a default one.
func NewHTTPProber(c *http.Client) *HTTPProber {
	if c == nil {
		c = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPProber{client: c}
}

// Probe implements Prober.
func (p *HTTPProber) Probe(ctx context.Context, url string) (int, error) {
	status, err := p.do(ctx, http.MethodHead, url)
	if err != nil || (status != http.StatusMethodNotAllowed && status != http.StatusNotImplemented) {
		return status, err
	}
	return p.do(ctx, http.MethodGet, url)
}

func (p *HTTPProber) do(ctx context.Context, method, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, err
	}
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-0")
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

type validateRequest struct {
	RoomIDs []uuid.UUID `json:"room_ids"`
}

// ScanPhotos probes every published room photo and triggers re-validation of rooms with broken
// ones. Only one scan runs at a time.
func (s *Service) ScanPhotos(ctx context.Context, actor uuid.UUID) (*model.PhotoHealthReport, error) {
	if !s.scanning.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: a photo scan is already running", errs.ErrAlreadyExists)
	}
	defer s.scanning.Store(false)

	report := &model.PhotoHealthReport{StartedAt: s.now().UTC(), Broken: []model.BrokenPhoto{}}

	var refs []model.PhotoRef
	for offset := 0; ; offset += s.scan.PageSize {
		page, err := s.photos.ListPublishedPhotos(ctx, s.scan.PageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("list photos: %w", err)
		}
		refs = append(refs, page...)
		if len(page) < s.scan.PageSize {
			break
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.scan.Concurrency)
	for _, ref := range refs {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, s.scan.ProbeTimeout)
			defer cancel()
			status, err := s.prober.Probe(pctx, ref.URL)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Broken = append(report.Broken, model.BrokenPhoto{PhotoRef: ref, Error: err.Error()})
			case status >= http.StatusBadRequest:
				report.Broken = append(report.Broken, model.BrokenPhoto{PhotoRef: ref, Status: status})
			default:
				report.Healthy++
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report.Checked = len(refs)
	slices.SortFunc(report.Broken, func(a, b model.BrokenPhoto) int {
		return cmp.Or(strings.Compare(a.RoomID.String(), b.RoomID.String()), strings.Compare(a.URL, b.URL))
	})

	rooms := brokenRooms(report.Broken)
	if len(rooms) > 0 {
		if err := s.inv.Invoke(ctx, backend.FnValidatePhotos, validateRequest{RoomIDs: rooms}, nil); err != nil {
			s.log.Warn("photo validation trigger failed", zap.Int("rooms", len(rooms)), zap.Error(err))
		} else {
			report.Triggered = rooms
		}
		notify.BestEffort(ctx, s.notifier, s.log, notify.Alert{
			Kind:  notify.KindPhotosBroken,
			Title: "Broken room photos",
			Body:  fmt.Sprintf("%d of %d photos failed in %d rooms.", len(report.Broken), report.Checked, len(rooms)),
			Link:  "/admin/photos",
			Details: map[string]string{
				"broken":  strconv.Itoa(len(report.Broken)),
				"checked": strconv.Itoa(report.Checked),
			},
		})
	}
	report.Took = s.now().Sub(report.StartedAt)

	s.record(ctx, &model.ActivityEntry{
		ActorID: actor,
		Action:  model.ActivityPhotosScan,
		Details: map[string]any{"checked": report.Checked, "broken": len(report.Broken), "rooms": len(rooms)},
	})
	s.log.Info("photo scan finished",
		zap.Int("checked", report.Checked), zap.Int("broken", len(report.Broken)), zap.Duration("took", report.Took))
	return report, nil
}

func brokenRooms(broken []model.BrokenPhoto) []uuid.UUID {
	var out []uuid.UUID
	for _, b := range broken {
		if !slices.Contains(out, b.RoomID) {
			out = append(out, b.RoomID)
		}
	}
	return out
}
