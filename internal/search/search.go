// Package search composes room discovery queries and caches their results in Redis.
package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/roomiegr/roomie/internal/model"
	"github.com/roomiegr/roomie/internal/repository"
)

// DefaultCacheTTL bounds how long a cached page lives without a refresh.
const DefaultCacheTTL = 2 * time.Minute

const (
	genKey    = "roomie:search:gen"
	keyPrefix = "roomie:search:"
)

// Refresher rebuilds the backend search cache.
type Refresher interface {
	RefreshSearchCache(ctx context.Context) error
}

// Service answers searches. Pages are cached under the current generation; bumping the
// generation on Refresh makes every older page unreachable.
type Service struct {
	rooms repository.RoomRepository
	procs Refresher
	rdb   redis.Cmdable
	ttl   time.Duration
	log   *zap.Logger
}

// NewService constructs a search service. A nil rdb disables caching.
func NewService(rooms repository.RoomRepository, procs Refresher, rdb redis.Cmdable, ttl time.Duration, log *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{rooms: rooms, procs: procs, rdb: rdb, ttl: ttl, log: log}
}

// Search validates the filters and returns one page of published rooms.
func (s *Service) Search(ctx context.Context, f model.SearchFilters) (*model.SearchPage, error) {
	f, err := Normalize(f)
	if err != nil {
		return nil, err
	}

	key, cacheable := s.cacheKey(ctx, f)
	if cacheable {
		raw, err := s.rdb.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var page model.SearchPage
			if err := json.Unmarshal(raw, &page); err == nil {
				page.Cached = true
				return &page, nil
			}
		case !errors.Is(err, redis.Nil):
			s.log.Warn("search cache read", zap.Error(err))
		}
	}

	hits, total, err := s.rooms.SearchRooms(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("search rooms: %w", err)
	}
	if hits == nil {
		hits = []model.SearchHit{}
	}
	page := &model.SearchPage{Hits: hits, Total: total}

	if cacheable {
		raw, _ := json.Marshal(page)
		if err := s.rdb.Set(ctx, key, raw, s.ttl).Err(); err != nil {
			s.log.Warn("search cache write", zap.Error(err))
		}
	}
	return page, nil
}

func (s *Service) cacheKey(ctx context.Context, f model.SearchFilters) (string, bool) {
	if s.rdb == nil {
		return "", false
	}
	gen, err := s.rdb.Get(ctx, genKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		s.log.Warn("search cache generation", zap.Error(err))
		return "", false
	}
	raw, _ := json.Marshal(f)
	sum := sha256.Sum256(raw)
	return keyPrefix + strconv.FormatInt(gen, 10) + ":" + hex.EncodeToString(sum[:]), true
}

// Refresh rebuilds the backend search cache and invalidates cached pages.
func (s *Service) Refresh(ctx context.Context) error {
	if err := s.procs.RefreshSearchCache(ctx); err != nil {
		return fmt.Errorf("refresh search cache: %w", err)
	}
	return s.Invalidate(ctx)
}

// Invalidate drops every cached page by moving to a new generation.
func (s *Service) Invalidate(ctx context.Context) error {
	if s.rdb == nil {
		return nil
	}
	if err := s.rdb.Incr(ctx, genKey).Err(); err != nil {
		return fmt.Errorf("bump search generation: %w", err)
	}
	return nil
}
