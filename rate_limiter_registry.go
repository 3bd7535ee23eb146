package uplink

import (
	"net/url"
	"strings"
	"sync"
)

// RateLimiterKeyFunc maps an outgoing call to a rate-limiter bucket key.
type RateLimiterKeyFunc func(method, rawURL string) string

// RateLimiterRegistry routes calls to per-key token buckets so hot endpoints
// can be throttled independently. Keys without a registered limiter fall back
// to the shared default bucket.
type RateLimiterRegistry struct {
	mu       sync.RWMutex
	limiters map[string]*RateLimiter
	keyFunc  RateLimiterKeyFunc
	fallback *RateLimiter
}

// NewRateLimiterRegistry creates a registry using keyFunc to derive bucket
// keys. fallback handles every key without its own limiter; a nil fallback
// means unmatched calls pass unthrottled.
func NewRateLimiterRegistry(keyFunc RateLimiterKeyFunc, fallback *RateLimiter) *RateLimiterRegistry {
	if keyFunc == nil {
		keyFunc = HostKeyFunc
	}
	return &RateLimiterRegistry{
		limiters: make(map[string]*RateLimiter),
		keyFunc:  keyFunc,
		fallback: fallback,
	}
}

// Register installs a limiter for the given bucket key, replacing any
// previous limiter for that key.
func (r *RateLimiterRegistry) Register(key string, limiter *RateLimiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[key] = limiter
}

// limiterFor resolves the limiter and bucket key for a call. The returned
// limiter is nil when neither a keyed limiter nor a fallback applies.
func (r *RateLimiterRegistry) limiterFor(method, rawURL string) (*RateLimiter, string) {
	key := r.keyFunc(method, rawURL)

	r.mu.RLock()
	limiter, ok := r.limiters[key]
	r.mu.RUnlock()

	if ok {
		return limiter, key
	}
	return r.fallback, "default"
}

// Allow reports whether the call may proceed and which bucket decided.
func (r *RateLimiterRegistry) Allow(method, rawURL string) (bool, string) {
	limiter, key := r.limiterFor(method, rawURL)
	if limiter == nil {
		return true, key
	}
	return limiter.Allow(), key
}

// HostKeyFunc buckets calls by target host.
func HostKeyFunc(method, rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		return "host:" + u.Host
	}
	return "host:unknown"
}

// RouteKeyFunc buckets calls by method and path so individual routes can be
// throttled separately.
func RouteKeyFunc(method, rawURL string) string {
	path := "/"
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		path = u.Path
	}
	return "route:" + strings.ToUpper(method) + ":" + path
}

// HostRouteKeyFunc buckets calls by host, method, and path combined.
func HostRouteKeyFunc(method, rawURL string) string {
	host := "unknown"
	path := "/"
	if u, err := url.Parse(rawURL); err == nil {
		if u.Host != "" {
			host = u.Host
		}
		if u.Path != "" {
			path = u.Path
		}
	}
	return "hostroute:" + host + ":" + strings.ToUpper(method) + ":" + path
}
