// Package cache provides the short-TTL query-result cache: an in-memory
// tier fronting an optional Redis tier. Coherence with index mutations is
// guaranteed by a monotonic generation counter embedded in every key; any
// mutation bumps the generation before it returns, so entries computed
// against an older corpus state become unreachable immediately.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/shopscout/searchcore/internal/search"
	"github.com/shopscout/searchcore/pkg/config"
	pkgredis "github.com/shopscout/searchcore/pkg/redis"
)

const keyPrefix = "search:"

type entry struct {
	payload   *search.Result
	expiresAt time.Time
}

// QueryCache caches search results keyed by the deterministic request
// hash. A nil redis client disables the second tier.
type QueryCache struct {
	mu      sync.RWMutex
	entries map[string]entry

	generation atomic.Uint64
	ttl        time.Duration
	maxEntries int
	redis      *pkgredis.Client
	group      singleflight.Group
	hits       atomic.Int64
	misses     atomic.Int64
	logger     *slog.Logger

	saveDurable  func(ctx context.Context, key string, payload any, expiresAt time.Time) error
	clearDurable func(ctx context.Context) error
}

// New creates a QueryCache. redisClient may be nil.
func New(cfg config.CacheConfig, redisClient *pkgredis.Client) *QueryCache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &QueryCache{
		entries:    make(map[string]entry),
		ttl:        ttl,
		maxEntries: maxEntries,
		redis:      redisClient,
		logger:     slog.Default().With("component", "query-cache"),
	}
}

// SetDurable installs the durable cache table writers. Writes through to
// the table are asynchronous and best effort; the query path never waits
// on them.
func (c *QueryCache) SetDurable(
	save func(ctx context.Context, key string, payload any, expiresAt time.Time) error,
	clear func(ctx context.Context) error,
) {
	c.saveDurable = save
	c.clearDurable = clear
}

// GetOrCompute returns the cached result for key, or invokes compute,
// stores the result with the configured TTL, and returns it. The boolean
// reports whether the call was served from cache. Concurrent misses for
// the same key collapse into one compute via singleflight.
func (c *QueryCache) GetOrCompute(ctx context.Context, key string, compute func() (*search.Result, error)) (*search.Result, bool, error) {
	fullKey := c.buildKey(key)
	if result, ok := c.lookup(ctx, fullKey); ok {
		c.hits.Add(1)
		return result, true, nil
	}
	c.misses.Add(1)

	val, err, _ := c.group.Do(fullKey, func() (interface{}, error) {
		if result, ok := c.lookup(ctx, fullKey); ok {
			return result, nil
		}
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.store(ctx, fullKey, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*search.Result), false, nil
}

// InvalidateAll makes every cached entry unreachable. Called by mutation
// paths before they return; the generation bump is the coherence point,
// the physical cleanup is best-effort.
func (c *QueryCache) InvalidateAll(ctx context.Context) {
	c.generation.Add(1)
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()

	if c.redis != nil {
		if deleted, err := c.redis.FlushByPattern(ctx, keyPrefix+"*"); err != nil {
			c.logger.Warn("redis cache flush failed", "error", err)
		} else if deleted > 0 {
			c.logger.Debug("redis cache flushed", "keys_deleted", deleted)
		}
	}
	if c.clearDurable != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := c.clearDurable(ctx); err != nil {
				c.logger.Warn("durable cache clear failed", "error", err)
			}
		}()
	}
}

// Sweep removes expired entries from the memory tier. Redis expires its
// own keys via TTL.
func (c *QueryCache) Sweep() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// StartSweepLoop runs Sweep on a fixed interval until ctx is cancelled.
func (c *QueryCache) StartSweepLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := c.Sweep(); removed > 0 {
					c.logger.Debug("cache sweep", "entries_removed", removed)
				}
			}
		}
	}()
}

// Stats returns cumulative hit and miss counts.
func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Len returns the number of live entries in the memory tier.
func (c *QueryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *QueryCache) buildKey(key string) string {
	return fmt.Sprintf("%sg%d:%s", keyPrefix, c.generation.Load(), key)
}

func (c *QueryCache) lookup(ctx context.Context, fullKey string) (*search.Result, bool) {
	c.mu.RLock()
	e, ok := c.entries[fullKey]
	c.mu.RUnlock()
	if ok {
		if time.Now().Before(e.expiresAt) {
			return e.payload, true
		}
		c.mu.Lock()
		delete(c.entries, fullKey)
		c.mu.Unlock()
	}

	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, fullKey)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Warn("redis cache get failed", "key", fullKey, "error", err)
		}
		return nil, false
	}
	var result search.Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("redis cache unmarshal failed", "key", fullKey, "error", err)
		return nil, false
	}
	return &result, true
}

func (c *QueryCache) store(ctx context.Context, fullKey string, result *search.Result) {
	expiresAt := time.Now().Add(c.ttl)
	c.mu.Lock()
	if len(c.entries) >= c.maxEntries {
		// Bounded memory tier: drop everything rather than track LRU order;
		// entries are cheap to recompute within one TTL window.
		c.entries = make(map[string]entry)
	}
	c.entries[fullKey] = entry{payload: result, expiresAt: expiresAt}
	c.mu.Unlock()

	if c.saveDurable != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := c.saveDurable(ctx, fullKey, result, expiresAt); err != nil {
				c.logger.Warn("durable cache write failed", "key", fullKey, "error", err)
			}
		}()
	}

	if c.redis != nil {
		data, err := json.Marshal(result)
		if err != nil {
			c.logger.Error("cache marshal failed", "key", fullKey, "error", err)
			return
		}
		if err := c.redis.Set(ctx, fullKey, data, c.ttl); err != nil {
			c.logger.Warn("redis cache set failed", "key", fullKey, "error", err)
		}
	}
}
