package uplink

import (
	"crypto/sha256"
	"encoding/hex"
	"hash/fnv"
	"net/http"
	"strings"
	"sync"
	"time"
)

// CacheEntry is a stored response: the raw body plus enough metadata to
// rebuild a Result without touching the network.
type CacheEntry struct {
	Body       []byte
	StatusCode int
	Header     http.Header
	StoredAt   time.Time
	ExpiresAt  time.Time
}

// Cache is the response storage contract. Implementations must be safe for
// concurrent use. Expired entries are evicted lazily on Get; there is no
// background sweeper.
type Cache interface {
	Get(key string) (*CacheEntry, bool)
	Set(key string, entry *CacheEntry, ttl time.Duration)
	Delete(key string)
	Clear()
	ClearPattern(pattern string)
	Len() int
}

// CacheKeyFunc derives the storage key for a call. Implementations must be
// deterministic: semantically identical calls map to the same key.
type CacheKeyFunc func(method, rawURL string, body []byte) string

// CacheCondition reports whether responses for the given method are cached.
type CacheCondition func(method string) bool

// InMemoryCache shards entries across 16 maps keyed by fnv-1a to keep lock
// contention low under parallel callers.
type InMemoryCache struct {
	shards    []*cacheShard
	numShards int
}

type cacheShard struct {
	mu    sync.RWMutex
	store map[string]*CacheEntry
}

// NewInMemoryCache returns an empty sharded cache.
func NewInMemoryCache() *InMemoryCache {
	numShards := 16
	shards := make([]*cacheShard, numShards)
	for i := range shards {
		shards[i] = &cacheShard{
			store: make(map[string]*CacheEntry),
		}
	}
	return &InMemoryCache{
		shards:    shards,
		numShards: numShards,
	}
}

func (c *InMemoryCache) getShard(key string) *cacheShard {
	hash := fnv.New32a()
	hash.Write([]byte(key))
	return c.shards[hash.Sum32()%uint32(c.numShards)]
}

// Get returns the live entry for key. An expired entry is deleted and
// reported absent.
func (c *InMemoryCache) Get(key string) (*CacheEntry, bool) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, exists := shard.store[key]
	if !exists {
		return nil, false
	}

	if time.Now().After(entry.ExpiresAt) {
		delete(shard.store, key)
		return nil, false
	}

	return entry, true
}

// Set stores entry under key for ttl.
func (c *InMemoryCache) Set(key string, entry *CacheEntry, ttl time.Duration) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	now := time.Now()
	entry.StoredAt = now
	entry.ExpiresAt = now.Add(ttl)
	shard.store[key] = entry
}

// Delete removes the entry for key.
func (c *InMemoryCache) Delete(key string) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	delete(shard.store, key)
}

// Clear removes every entry.
func (c *InMemoryCache) Clear() {
	for _, shard := range c.shards {
		shard.mu.Lock()
		shard.store = make(map[string]*CacheEntry)
		shard.mu.Unlock()
	}
}

// ClearPattern removes entries whose key contains pattern. An empty pattern
// clears everything.
func (c *InMemoryCache) ClearPattern(pattern string) {
	if pattern == "" {
		c.Clear()
		return
	}
	for _, shard := range c.shards {
		shard.mu.Lock()
		for key := range shard.store {
			if strings.Contains(key, pattern) {
				delete(shard.store, key)
			}
		}
		shard.mu.Unlock()
	}
}

// Len counts live and expired-but-unswept entries.
func (c *InMemoryCache) Len() int {
	n := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		n += len(shard.store)
		shard.mu.RUnlock()
	}
	return n
}

// DefaultCacheKey canonicalizes the URL query (sorted keys) and joins it with
// the method, appending a short body digest for calls that carry one. Query
// order therefore never splits the cache.
func DefaultCacheKey(method, rawURL string, body []byte) string {
	key := method + ":" + canonicalURL(rawURL)
	if len(body) > 0 {
		sum := sha256.Sum256(body)
		key += ":" + hex.EncodeToString(sum[:8])
	}
	return key
}

// DefaultCacheCondition caches GET responses only.
func DefaultCacheCondition(method string) bool {
	return method == http.MethodGet
}
