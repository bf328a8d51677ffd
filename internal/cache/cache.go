// Package cache provides a small TTL key/value cache for OAuth tokens
// and marketplace replies. Redis backs it when a URL is configured; an
// in-process map serves otherwise, so a missing Redis never blocks a
// valuation.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/defibabylon/collectorsage/internal/logging"
)

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache is a string-valued TTL cache.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Close() error
}

// New returns a Redis-backed cache when redisURL is set and reachable
// at parse time, otherwise an in-process cache.
func New(redisURL string) Cache {
	if redisURL == "" {
		logging.CacheDebug("no redis configured, using in-process cache")
		return NewMemory()
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logging.Get(logging.CategoryCache).Warn("invalid redis url, using in-process cache: %v", err)
		return NewMemory()
	}
	logging.Get(logging.CategoryCache).Info("using redis cache at %s", opts.Addr)
	return &redisCache{client: redis.NewClient(opts)}
}

type redisCache struct {
	client *redis.Client
}

func (c *redisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (c *redisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *redisCache) Close() error {
	return c.client.Close()
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// Memory is the in-process fallback cache.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return "", ErrMiss
	}
	if !e.expiresAt.IsZero() && m.now().After(e.expiresAt) {
		delete(m.entries, key)
		return "", ErrMiss
	}
	return e.value, nil
}

func (m *Memory) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]memoryEntry)
	return nil
}
