// Package cache stores previously fetched API results with a fixed expiry
// window. Values live in the durable key-value store so they survive restarts;
// a small LRU keeps recently used envelopes in memory.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tilawa-app/tilawa/internal/kvstore"
	"github.com/tilawa-app/tilawa/internal/utils"
)

const (
	// DefaultTTL is the freshness window applied to every key without an override.
	DefaultTTL = time.Hour

	// SchemaVersion tags every persisted envelope. Envelopes written with a
	// different version read as misses.
	SchemaVersion = 1

	// KeyPrefix namespaces cache entries inside the shared key-value store.
	KeyPrefix = "quran_"

	defaultHotEntries = 256
)

// envelope is the persisted form of a cache entry.
type envelope struct {
	SchemaVersion int             `json:"schema_version"`
	Key           string          `json:"key"`
	StoredAt      time.Time       `json:"stored_at"`
	TTL           time.Duration   `json:"ttl,omitempty"` // 0 means the cache default
	Value         json.RawMessage `json:"value"`
}

// Cache is a TTL cache over a kvstore.Store. Safe for concurrent use; writes to
// the same key are last-write-wins.
type Cache struct {
	store kvstore.Store
	hot   *lru.Cache[string, envelope]
	ttl   time.Duration
	now   func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides the default freshness window.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock injects the time source used for both writes and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithHotEntries sets how many decoded envelopes are kept in memory.
func WithHotEntries(n int) Option {
	return func(c *Cache) {
		if n <= 0 {
			return
		}
		if hot, err := lru.New[string, envelope](n); err == nil {
			c.hot = hot
		}
	}
}

// New creates a cache persisting into store.
func New(store kvstore.Store, opts ...Option) *Cache {
	hot, _ := lru.New[string, envelope](defaultHotEntries)
	c := &Cache{
		store: store,
		hot:   hot,
		ttl:   DefaultTTL,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StorageKey returns the key a cache entry is persisted under.
func StorageKey(key string) string {
	return KeyPrefix + key
}

// Get decodes the fresh value stored under key into dest and reports whether it
// did. Absent, expired, corrupt and version-mismatched entries are all misses.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	if env, ok := c.hot.Get(key); ok {
		if !c.fresh(env) {
			c.hot.Remove(key)
			return false
		}
		if err := json.Unmarshal(env.Value, dest); err != nil {
			utils.Debug("cache: hot entry %s undecodable: %v", key, err)
			c.hot.Remove(key)
			return false
		}
		return true
	}

	data, err := c.store.Get(ctx, StorageKey(key))
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			utils.Debug("cache: read %s failed: %v", key, err)
		}
		return false
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		utils.Debug("cache: entry %s corrupt: %v", key, err)
		return false
	}
	if env.SchemaVersion != SchemaVersion {
		utils.Debug("cache: entry %s has schema %d, want %d", key, env.SchemaVersion, SchemaVersion)
		return false
	}
	if !c.fresh(env) {
		return false
	}
	if err := json.Unmarshal(env.Value, dest); err != nil {
		utils.Debug("cache: entry %s undecodable: %v", key, err)
		return false
	}

	c.hot.Add(key, env)
	return true
}

// Set stores value under key with the default TTL. Failures are logged and
// swallowed; the cache is an optimization, never a correctness dependency.
func (c *Cache) Set(ctx context.Context, key string, value any) {
	c.SetWithTTL(ctx, key, value, 0)
}

// SetWithTTL stores value under key with a per-key TTL (0 = default).
func (c *Cache) SetWithTTL(ctx context.Context, key string, value any, ttl time.Duration) {
	if err := c.SetE(ctx, key, value, ttl); err != nil {
		utils.Debug("cache: write %s failed: %v", key, err)
	}
}

// SetE is Set with the error returned, for callers that want to decide.
func (c *Cache) SetE(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	env := envelope{
		SchemaVersion: SchemaVersion,
		Key:           key,
		StoredAt:      c.now(),
		TTL:           ttl,
		Value:         raw,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope %s: %w", key, err)
	}

	if err := c.store.Set(ctx, StorageKey(key), data); err != nil {
		// Keep memory consistent with what is durable
		c.hot.Remove(key)
		return fmt.Errorf("persist %s: %w", key, err)
	}
	c.hot.Add(key, env)
	return nil
}

// fresh reports whether env is still inside its TTL window.
func (c *Cache) fresh(env envelope) bool {
	ttl := c.ttl
	if env.TTL > 0 {
		ttl = env.TTL
	}
	return c.now().Sub(env.StoredAt) < ttl
}

// Stats summarizes what the cache holds in durable storage.
type Stats struct {
	Entries   int   `json:"entries"`
	SizeBytes int64 `json:"size_bytes"`
	HotLen    int   `json:"hot_entries"`
}

// Stats returns entry count and stored size, expired entries included.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	count, size, err := c.store.Stats(ctx, KeyPrefix)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Entries: count, SizeBytes: size, HotLen: c.hot.Len()}, nil
}
