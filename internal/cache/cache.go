// Package cache provides an optional Redis-backed read-through cache for
// session aggregates. The whole package is nil-safe: when no Redis address
// is configured the constructor returns nil, every method on a nil *Store is
// a no-op, and callers never need to branch on availability.
//
// Cached values are JSON blobs keyed per session and invalidated wholesale
// on any write to that session. Staleness is additionally bounded by a TTL.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Store wraps a Redis client with session-scoped get/set/invalidate helpers.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// New connects to Redis at addr and returns a Store, or nil when addr is
// empty (caching disabled). The connection is verified with a short ping;
// on failure the cache is disabled rather than failing startup.
func New(addr string, ttl time.Duration) *Store {
	if addr == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", addr).Msg("redis unreachable, cache disabled")
		_ = rdb.Close()
		return nil
	}
	return &Store{rdb: rdb, ttl: ttl}
}

// Close releases the underlying Redis connection. Safe on a nil Store.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.rdb.Close()
}

func sessionKey(sessionID, kind string) string {
	return fmt.Sprintf("session:%s:%s", sessionID, kind)
}

// GetJSON loads the cached blob for (sessionID, kind) into dest. It returns
// false on a miss, on any Redis error, or on a nil Store.
func (s *Store) GetJSON(ctx context.Context, sessionID, kind string, dest any) bool {
	if s == nil {
		return false
	}
	raw, err := s.rdb.Get(ctx, sessionKey(sessionID, kind)).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false
	}
	return true
}

// SetJSON stores v as the cached blob for (sessionID, kind). Best effort:
// failures are logged and swallowed.
func (s *Store) SetJSON(ctx context.Context, sessionID, kind string, v any) {
	if s == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, sessionKey(sessionID, kind), raw, s.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("cache set failed")
	}
}

// Invalidate drops every cached blob for a session. Called after any write
// that touches the session's messages, responses, or themes.
func (s *Store) Invalidate(ctx context.Context, sessionID string) {
	if s == nil {
		return
	}
	keys := []string{
		sessionKey(sessionID, "view"),
		sessionKey(sessionID, "themes"),
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("cache invalidate failed")
	}
}
