package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rickymta/volcanion-auth/internal"
)

// DefaultTTL applies when Create is called with a non-positive ttl.
const DefaultTTL = 24 * time.Hour

const scanBatch = 500

var (
	// ErrRedisUnavailable wraps any Redis transport or server failure.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrNotFound is returned by Get for a missing or expired session.
	ErrNotFound = errors.New("session not found")
)

// Entry is a cached session as returned by List.
type Entry struct {
	ID        string
	AccountID string
	Payload   []byte
	TTL       time.Duration
}

// Cache stores opaque per-session payloads in Redis. Expiry is owned by
// Redis key TTLs; the cache keeps no expiry bookkeeping of its own.
//
// Keys have the form <prefix>:<accountID>:<sessionID>. Account ids may
// contain ':'; session ids are base64url and never do.
type Cache struct {
	redis  redis.UniversalClient
	prefix string
}

// NewCache creates a session [Cache] backed by the given Redis client.
// An empty prefix defaults to "sess".
func NewCache(client redis.UniversalClient, prefix string) *Cache {
	if prefix == "" {
		prefix = "sess"
	}
	return &Cache{redis: client, prefix: prefix}
}

func (c *Cache) key(accountID, sessionID string) string {
	return c.prefix + ":" + accountID + ":" + sessionID
}

func (c *Cache) accountPattern(accountID string) string {
	return c.prefix + ":" + escapeGlob(accountID) + ":*"
}

// Create stores payload under a fresh unguessable session id.
//
//	Performance: 1 Redis SET with expiry.
func (c *Cache) Create(ctx context.Context, accountID string, payload []byte, ttl time.Duration) (string, error) {
	if accountID == "" {
		return "", errors.New("account id required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	sid, err := internal.NewSessionID()
	if err != nil {
		return "", err
	}
	id := sid.String()
	if err := c.redis.Set(ctx, c.key(accountID, id), payload, ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return id, nil
}

// Get returns the payload, or ErrNotFound once the TTL has elapsed.
//
//	Performance: 1 Redis GET.
func (c *Cache) Get(ctx context.Context, accountID, sessionID string) ([]byte, error) {
	data, err := c.redis.Get(ctx, c.key(accountID, sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return data, nil
}

// Delete removes a session. It reports whether the key existed and is
// safe to repeat.
func (c *Cache) Delete(ctx context.Context, accountID, sessionID string) (bool, error) {
	n, err := c.redis.Del(ctx, c.key(accountID, sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}

// Extend resets the remaining lifetime to ttl. It returns false when the
// session has already expired; an expired session is never revived.
//
//	Performance: 1 Redis EXPIRE.
func (c *Cache) Extend(ctx context.Context, accountID, sessionID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ok, err := c.redis.Expire(ctx, c.key(accountID, sessionID), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ok, nil
}

// List returns every live session of an account.
//
//	Performance: SCAN over the account key space plus one pipelined GET/PTTL
//	per key. Intended for account management views, not hot paths.
func (c *Cache) List(ctx context.Context, accountID string) ([]Entry, error) {
	keys, err := c.scanAccount(ctx, accountID)
	if err != nil || len(keys) == 0 {
		return []Entry{}, err
	}

	pipe := c.redis.Pipeline()
	gets := make([]*redis.StringCmd, len(keys))
	ttls := make([]*redis.DurationCmd, len(keys))
	for i, key := range keys {
		gets[i] = pipe.Get(ctx, key)
		ttls[i] = pipe.PTTL(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	out := make([]Entry, 0, len(keys))
	keyPrefix := c.prefix + ":" + accountID + ":"
	for i, key := range keys {
		data, err := gets[i].Bytes()
		if err != nil {
			// expired between SCAN and GET
			continue
		}
		out = append(out, Entry{
			ID:        strings.TrimPrefix(key, keyPrefix),
			AccountID: accountID,
			Payload:   data,
			TTL:       ttls[i].Val(),
		})
	}
	return out, nil
}

// DeleteAll removes every cached session of an account and returns the
// number of keys deleted. A session created concurrently with the scan
// may survive; it still expires on its own TTL.
func (c *Cache) DeleteAll(ctx context.Context, accountID string) (int64, error) {
	keys, err := c.scanAccount(ctx, accountID)
	if err != nil || len(keys) == 0 {
		return 0, err
	}
	n, err := c.redis.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (c *Cache) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := c.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func (c *Cache) scanAccount(ctx context.Context, accountID string) ([]string, error) {
	if accountID == "" {
		return nil, errors.New("account id required")
	}
	var (
		cursor uint64
		keys   []string
	)
	pattern := c.accountPattern(accountID)
	keyPrefix := c.prefix + ":" + accountID + ":"
	for {
		batch, next, err := c.redis.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		for _, key := range batch {
			// The glob also matches accounts whose id extends this one
			// after a ':'; session ids never contain one.
			if !strings.Contains(strings.TrimPrefix(key, keyPrefix), ":") {
				keys = append(keys, key)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

func escapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
