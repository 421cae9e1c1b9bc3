package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss is returned when no live entry exists for a key.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry marks a stored hash that cannot be decoded.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Hash fields of a stored page.
const (
	fieldBody      = "body"
	fieldFetchedAt = "fetched_at"
)

// Manager reads and writes page entries as Redis hashes. Expiry is left to
// Redis, so a key that exists is always fresh.
type Manager struct {
	redis *redis.Client
	now   func() time.Time
}

// NewManager creates a cache manager on an existing Redis client.
func NewManager(redisClient *redis.Client) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{redis: redisClient, now: time.Now}
}

// Get returns the entry stored under key, or ErrCacheMiss.
func (m *Manager) Get(ctx context.Context, key PageKey) (*Entry, error) {
	var (
		fields *redis.MapStringStringCmd
		ttl    *redis.DurationCmd
	)
	_, err := m.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		fields = pipe.HGetAll(ctx, key.String())
		ttl = pipe.PTTL(ctx, key.String())
		return nil
	})
	if err != nil {
		cacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	values := fields.Val()
	if len(values) == 0 {
		cacheLookups.WithLabelValues("miss").Inc()
		return nil, ErrCacheMiss
	}

	body, ok := values[fieldBody]
	if !ok {
		cacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %s has no %s field", ErrInvalidEntry, key, fieldBody)
	}
	fetchedMs, err := strconv.ParseInt(values[fieldFetchedAt], 10, 64)
	if err != nil {
		cacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEntry, fieldFetchedAt, err)
	}

	entry := &Entry{
		Body:      []byte(body),
		FetchedAt: time.UnixMilli(fetchedMs),
	}
	if d := ttl.Val(); d > 0 {
		entry.Expires = m.now().Add(d)
	}

	cacheLookups.WithLabelValues("hit").Inc()
	return entry, nil
}

// Set stores entry under key until entry.Expires. Entries with no lifetime
// left are not stored.
func (m *Manager) Set(ctx context.Context, key PageKey, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	if entry.TTL(m.now()) <= 0 {
		return nil
	}

	_, err := m.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key.String(),
			fieldBody, entry.Body,
			fieldFetchedAt, entry.FetchedAt.UnixMilli(),
		)
		pipe.PExpireAt(ctx, key.String(), entry.Expires)
		return nil
	})
	if err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	cacheStoredBytes.Add(float64(len(entry.Body)))
	return nil
}

// Delete removes the entry under key.
func (m *Manager) Delete(ctx context.Context, key PageKey) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		cacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
