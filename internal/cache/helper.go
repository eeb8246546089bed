package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"devconnector/internal/middleware"
	"devconnector/internal/observability"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrTombstoned is returned for keys whose entity was deleted.
var ErrTombstoned = errors.New("cache: entry deleted")

// tombstone is not valid JSON, so it cannot collide with a cached value.
var tombstone = []byte("\x00deleted")

// Store is a JSON cache over Redis. A nil Store, or one without a client,
// behaves as an always-missing cache.
type Store struct {
	rdb  *redis.Client
	name string
}

// NewStore returns a Store named name (used as a metrics label) over rdb.
func NewStore(rdb *redis.Client, name string) *Store {
	return &Store{rdb: rdb, name: name}
}

func (s *Store) enabled() bool {
	return s != nil && s.rdb != nil
}

// GetJSON attempts to get the key from Redis and unmarshal into dest.
// Returns (true, nil) if found and unmarshaled, (false, nil) if not found
// and ErrTombstoned if the entry was deleted.
func (s *Store) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if !s.enabled() {
		return false, nil
	}
	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if bytes.Equal(b, tombstone) {
		return false, ErrTombstoned
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON marshals v and sets the key with TTL.
func (s *Store) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	if !s.enabled() {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, b, ttl).Err()
}

// GetRaw returns the bytes stored at key.
func (s *Store) GetRaw(ctx context.Context, key string) ([]byte, bool, error) {
	if !s.enabled() {
		return nil, false, nil
	}
	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// SetRaw stores b at key with TTL.
func (s *Store) SetRaw(ctx context.Context, key string, b []byte, ttl time.Duration) error {
	if !s.enabled() {
		return nil
	}
	return s.rdb.Set(ctx, key, b, ttl).Err()
}

// Aside tries Redis first, on miss it calls fetch (which must populate dest),
// then stores the result with ttl unless another writer set the key in the
// meantime. A tombstoned key returns ErrTombstoned without calling fetch.
// Other cache failures degrade to a miss; only fetch errors are returned.
func (s *Store) Aside(ctx context.Context, key string, dest any, ttl time.Duration, fetch func() error) error {
	found, err := s.GetJSON(ctx, key, dest)
	if errors.Is(err, ErrTombstoned) {
		s.record("tombstone")
		return err
	}
	if err != nil {
		middleware.FromContext(ctx).Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}
	if found {
		s.record("hit")
		return nil
	}
	s.record("miss")

	if err := fetch(); err != nil {
		return err
	}

	if err := s.fill(ctx, key, dest, ttl); err != nil {
		middleware.FromContext(ctx).Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return nil
}

// fill stores v at key only if the key is absent, so a fill computed from
// an older read never replaces a tombstone written after it.
func (s *Store) fill(ctx context.Context, key string, v any, ttl time.Duration) error {
	if !s.enabled() {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.rdb.SetNX(ctx, key, b, ttl).Err()
}

// Tombstone marks key as deleted for ttl. Readers going through Aside get
// ErrTombstoned until it expires. Failures are logged and otherwise ignored.
func (s *Store) Tombstone(ctx context.Context, key string, ttl time.Duration) {
	if !s.enabled() {
		return
	}
	if err := s.rdb.Set(ctx, key, tombstone, ttl).Err(); err != nil {
		middleware.FromContext(ctx).Warn("cache tombstone failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *Store) record(result string) {
	if s.enabled() {
		observability.CacheLookups.WithLabelValues(s.name, result).Inc()
	}
}
