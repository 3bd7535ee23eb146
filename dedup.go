package uplink

import (
	"context"
	"crypto/sha256"
	"hash/fnv"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// DedupKeyFunc identifies in-flight calls that may share one transfer.
type DedupKeyFunc func(method, rawURL string, body []byte) string

// DedupCondition decides whether calls with the given method are eligible
// for coalescing.
type DedupCondition func(method string) bool

// dedupEntry is one in-flight call shared between callers.
type dedupEntry struct {
	mu      sync.Mutex
	result  *Result
	done    chan struct{}
	waiters int
}

// dedupTracker coalesces identical in-flight calls: the first caller owns
// the transfer, the rest wait and share its outcome.
type dedupTracker struct {
	mu      sync.RWMutex
	entries map[string]*dedupEntry
}

func newDedupTracker() *dedupTracker {
	return &dedupTracker{
		entries: make(map[string]*dedupEntry),
	}
}

// getOrCreate returns the entry for key and whether the caller owns it.
func (dt *dedupTracker) getOrCreate(key string) (*dedupEntry, bool) {
	dt.mu.Lock()
	defer dt.mu.Unlock()

	if entry, exists := dt.entries[key]; exists {
		entry.mu.Lock()
		entry.waiters++
		entry.mu.Unlock()
		return entry, false
	}

	entry := &dedupEntry{
		done:    make(chan struct{}),
		waiters: 1,
	}
	dt.entries[key] = entry
	return entry, true
}

// complete publishes the owner's result and releases waiters. The entry
// lingers briefly so stragglers arriving right at completion still coalesce.
func (dt *dedupTracker) complete(key string, result *Result) {
	dt.mu.Lock()
	entry, exists := dt.entries[key]
	dt.mu.Unlock()

	if !exists {
		return
	}

	entry.mu.Lock()
	entry.result = result
	close(entry.done)
	entry.mu.Unlock()

	time.AfterFunc(100*time.Millisecond, func() {
		dt.mu.Lock()
		delete(dt.entries, key)
		dt.mu.Unlock()
	})
}

// wait blocks until the owner completes or ctx ends. Each waiter gets its
// own shallow copy so flags set on one result do not leak into another.
func (entry *dedupEntry) wait(ctx context.Context) (*Result, error) {
	select {
	case <-entry.done:
		entry.mu.Lock()
		result := entry.result
		entry.mu.Unlock()
		if result == nil {
			return nil, nil
		}
		shared := *result
		return &shared, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DefaultDedupKey hashes method, canonical URL and, for mutating verbs, the
// body, so identical concurrent calls collapse onto one transfer.
func DefaultDedupKey(method, rawURL string, body []byte) string {
	h := fnv.New64a()
	h.Write([]byte(method))
	h.Write([]byte(canonicalURL(rawURL)))

	if len(body) > 0 && (method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch) {
		sum := sha256.Sum256(body)
		h.Write(sum[:])
	}

	return strconv.FormatUint(h.Sum64(), 16)
}

// DefaultDedupCondition coalesces safe methods only.
func DefaultDedupCondition(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}
