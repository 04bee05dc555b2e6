// Package session keeps per-browser-session values in Redis, the way the browser kept them in
// session storage.
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roomiegr/roomie/internal/crypto"
	"github.com/roomiegr/roomie/internal/errs"
)

// Storage keys.
const (
	KeySession       = "session"
	KeyAdminSession  = "admin_session"
	KeyImpersonation = "impersonation"
)

// CookieName is the cookie carrying the session id.
const CookieName = "roomie_sid"

const (
	keyPrefix    = "roomie:sess:"
	createdField = "_created"
	sidBytes     = 32
)

// Store creates, opens and destroys browser sessions. Values are sealed before they reach Redis.
type Store struct {
	rdb    redis.Cmdable
	sealer *crypto.Sealer
	ttl    time.Duration
}

// NewStore creates a store whose sessions expire after ttl without use.
func NewStore(rdb redis.Cmdable, sealer *crypto.Sealer, ttl time.Duration) *Store {
	return &Store{rdb: rdb, sealer: sealer, ttl: ttl}
}

// TTL is the idle lifetime of a session.
func (s *Store) TTL() time.Duration { return s.ttl }

func key(sid string) string { return keyPrefix + sid }

// Create starts an empty session and returns its id.
func (s *Store) Create(ctx context.Context) (*Storage, error) {
	raw, err := crypto.RandBytes(sidBytes)
	if err != nil {
		return nil, err
	}
	sid := base64.RawURLEncoding.EncodeToString(raw)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key(sid), createdField, time.Now().UTC().Format(time.RFC3339))
	pipe.Expire(ctx, key(sid), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &Storage{store: s, sid: sid}, nil
}

// Open returns an existing session and slides its expiry. Unknown or expired ids yield
// errs.ErrUnauthorized.
func (s *Store) Open(ctx context.Context, sid string) (*Storage, error) {
	if sid == "" {
		return nil, errs.ErrUnauthorized
	}
	ok, err := s.rdb.Expire(ctx, key(sid), s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	if !ok {
		return nil, errs.ErrUnauthorized
	}
	return &Storage{store: s, sid: sid}, nil
}

// Destroy removes a session and everything stored in it.
func (s *Store) Destroy(ctx context.Context, sid string) error {
	return s.rdb.Del(ctx, key(sid)).Err()
}

// Storage is the key/value view of one session.
type Storage struct {
	store *Store
	sid   string
}

// ID returns the session id.
func (st *Storage) ID() string { return st.sid }

func (st *Storage) aad(k string) []byte { return []byte(st.sid + "/" + k) }

// Get decodes the value under k into out and reports whether it was present.
func (st *Storage) Get(ctx context.Context, k string, out any) (bool, error) {
	sealed, err := st.store.rdb.HGet(ctx, key(st.sid), k).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("session get %s: %w", k, err)
	}
	raw, err := st.store.sealer.Open(sealed, st.aad(k))
	if err != nil {
		return false, fmt.Errorf("session get %s: %w", k, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("session decode %s: %w", k, err)
	}
	return true, nil
}

// Set stores v under k.
func (st *Storage) Set(ctx context.Context, k string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("session encode %s: %w", k, err)
	}
	sealed, err := st.store.sealer.Seal(raw, st.aad(k))
	if err != nil {
		return err
	}
	pipe := st.store.rdb.TxPipeline()
	pipe.HSet(ctx, key(st.sid), k, sealed)
	pipe.Expire(ctx, key(st.sid), st.store.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session set %s: %w", k, err)
	}
	return nil
}

// Remove deletes the given keys.
func (st *Storage) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return st.store.rdb.HDel(ctx, key(st.sid), keys...).Err()
}

// Clear deletes every stored value but keeps the session alive.
func (st *Storage) Clear(ctx context.Context) error {
	fields, err := st.store.rdb.HKeys(ctx, key(st.sid)).Result()
	if err != nil {
		return err
	}
	var drop []string
	for _, f := range fields {
		if f != createdField {
			drop = append(drop, f)
		}
	}
	return st.Remove(ctx, drop...)
}
