// Package cache memoizes analysis results for identical source submissions
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"

	"github.com/EcoCode-hq/ecocode/internal/analysis"
)

// Cache stores analysis results by key
type Cache interface {
	// Get retrieves a cached result
	Get(ctx context.Context, key string) (*analysis.Result, bool)
	// Set stores a result
	Set(ctx context.Context, key string, res *analysis.Result, ttl time.Duration) error
	// Stats returns cache statistics
	Stats() Stats
}

// Stats holds cache statistics
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Size   int64 `json:"size"`
}

// MemoryCache is an in-memory TTL cache. Cached results are shared between
// callers and must be treated as read-only.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	maxSize int
	ttl     time.Duration
	stats   Stats

	stop     chan struct{}
	stopOnce sync.Once
}

type cacheEntry struct {
	result    *analysis.Result
	expiresAt time.Time
}

// NewMemoryCache creates a new in-memory cache. Close stops its janitor.
func NewMemoryCache(maxSize int, ttl time.Duration) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 512
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	c := &MemoryCache{
		entries: make(map[string]*cacheEntry),
		maxSize: maxSize,
		ttl:     ttl,
		stop:    make(chan struct{}),
	}

	go c.cleanup(time.Minute)

	return c
}

// Get retrieves a cached result
func (c *MemoryCache) Get(ctx context.Context, key string) (*analysis.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}

	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		c.stats.Misses++
		c.stats.Size = int64(len(c.entries))
		return nil, false
	}

	c.stats.Hits++
	log.Debug().Str("key", key).Msg("cache hit")
	return entry.result, true
}

// Set stores a result
func (c *MemoryCache) Set(ctx context.Context, key string, res *analysis.Result, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[key] = &cacheEntry{
		result:    res,
		expiresAt: time.Now().Add(ttl),
	}
	c.stats.Size = int64(len(c.entries))

	return nil
}

// Stats returns cache statistics
func (c *MemoryCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Close stops the background cleanup goroutine
func (c *MemoryCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// evictOldest removes the entry closest to expiry
func (c *MemoryCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range c.entries {
		if oldestKey == "" || entry.expiresAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.expiresAt
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// cleanup periodically removes expired entries
func (c *MemoryCache) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, entry := range c.entries {
				if now.After(entry.expiresAt) {
					delete(c.entries, key)
				}
			}
			c.stats.Size = int64(len(c.entries))
			c.mu.Unlock()
		}
	}
}

// NullCache is a no-op cache for tests or when caching is disabled
type NullCache struct{}

func (NullCache) Get(ctx context.Context, key string) (*analysis.Result, bool) {
	return nil, false
}

func (NullCache) Set(ctx context.Context, key string, res *analysis.Result, ttl time.Duration) error {
	return nil
}

func (NullCache) Stats() Stats {
	return Stats{}
}

// Key derives a cache key from the submission. Filename is part of the key
// because it is echoed in the summary.
func Key(filename, source string) string {
	h := sha256.New()
	h.Write([]byte(filename))
	h.Write([]byte{0})
	h.Write([]byte(source))
	return hex.EncodeToString(h.Sum(nil))
}

// SourceHash returns a short stable hash of the source text alone. It only
// groups stored reports and never selects a result.
func SourceHash(source string) string {
	return strconv.FormatUint(xxhash.Sum64String(source), 16)
}
