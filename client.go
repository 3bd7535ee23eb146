package uplink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/trillo/uplink/internal/backoff"
)

// Defaults applied by New. Every one can be overridden with an Option.
const (
	DefaultMaxRetries        = 3
	DefaultInitialBackoff    = 100 * time.Millisecond
	DefaultMaxBackoff        = 10 * time.Second
	DefaultBackoffMultiplier = 2.0
	DefaultJitterFactor      = 0.1
	DefaultTimeout           = 30 * time.Second
	DefaultMaxInFlight       = 10
	DefaultCacheTTL          = 5 * time.Minute
	DefaultMockLatencyMin    = 10 * time.Millisecond
	DefaultMockLatencyMax    = 50 * time.Millisecond
)

// Client is a resilient HTTP client that layers retries, circuit breaking,
// rate limiting, caching, de-duplication, interceptors and metrics around
// the standard net/http Client. Ordinary call failures resolve as a Result
// with Success false rather than an error. It is safe for concurrent use.
type Client struct {
	mu       sync.RWMutex
	endpoint Endpoint

	endpointOverride *Endpoint
	envName          string
	envs             Environments

	authToken  string
	authScheme string

	httpClient *http.Client

	maxRetries        int
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
	jitter            float64
	backoffStrategy   BackoffStrategy
	retryOn408And429  bool
	timeout           time.Duration
	retryCondition    RetryCondition
	retryPolicy       RetryPolicy
	retryBudget       *RetryBudget
	backoffCalc       *backoff.Calculator

	maxInFlight int
	sem         *semaphore.Weighted

	rateLimiter    *RateLimiter
	rateLimiters   *RateLimiterRegistry
	circuitBreaker *CircuitBreaker

	cache          Cache
	cacheTTL       time.Duration
	cacheKeyFunc   CacheKeyFunc
	cacheCondition CacheCondition

	dedup          *dedupTracker
	dedupKeyFunc   DedupKeyFunc
	dedupCondition DedupCondition

	interceptors interceptors

	metrics *MetricsCollector
	debug   *DebugConfig
	logger  Logger

	sleep SleepFunc

	mockEnabled    atomic.Bool
	mocks          *mockStore
	mockLatencyMin time.Duration
	mockLatencyMax time.Duration

	configErrors    []string
	validationError error
}

// New creates a Client with sensible defaults: three retries with
// exponential-jitter backoff, a 30s per-attempt deadline, a five-minute GET
// cache, a circuit breaker, and at most ten concurrent transfers. Endpoint
// resolution falls back to http://localhost:8080 when neither an explicit
// endpoint nor an environment names one.
func New(options ...Option) *Client {
	c := &Client{
		httpClient:        &http.Client{Transport: defaultTransport()},
		maxRetries:        DefaultMaxRetries,
		initialBackoff:    DefaultInitialBackoff,
		maxBackoff:        DefaultMaxBackoff,
		backoffMultiplier: DefaultBackoffMultiplier,
		jitter:            DefaultJitterFactor,
		backoffStrategy:   ExponentialJitter,
		retryOn408And429:  true,
		timeout:           DefaultTimeout,
		maxInFlight:       DefaultMaxInFlight,
		circuitBreaker:    NewCircuitBreaker(CircuitBreakerConfig{}),
		cache:             NewInMemoryCache(),
		cacheTTL:          DefaultCacheTTL,
		cacheKeyFunc:      DefaultCacheKey,
		cacheCondition:    DefaultCacheCondition,
		dedupKeyFunc:      DefaultDedupKey,
		dedupCondition:    DefaultDedupCondition,
		sleep:             defaultSleep,
		mocks:             newMockStore(),
		mockLatencyMin:    DefaultMockLatencyMin,
		mockLatencyMax:    DefaultMockLatencyMax,
	}

	for _, opt := range options {
		opt(c)
	}

	c.endpoint = ResolveEndpoint(c.endpointOverride, c.envName, c.envs)

	if c.backoffStrategy == DecorrelatedJitter {
		c.backoffCalc = backoff.NewCalculator(backoff.DecorrelatedJitter{})
	} else {
		c.backoffCalc = backoff.Default()
	}

	if c.retryPolicy == nil && c.retryCondition == nil {
		p := NewDefaultRetryPolicyWithStrategy(c.maxRetries, c.initialBackoff, c.maxBackoff, c.backoffMultiplier, c.jitter, c.backoffStrategy)
		p.retryOn408And429 = c.retryOn408And429
		c.retryPolicy = p
	}

	if c.maxInFlight > 0 {
		c.sem = semaphore.NewWeighted(int64(c.maxInFlight))
	}

	c.validationError = c.ValidateConfiguration()

	return c
}

// Configure merges the non-empty fields of ep into the resolved endpoint.
// Later calls layer on top of earlier ones.
func (c *Client) Configure(ep Endpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ep.BaseURL != "" {
		c.endpoint.BaseURL = ep.BaseURL
	}
	if ep.Version != "" {
		c.endpoint.Version = normalizeVersion(ep.Version)
	}
	if len(ep.DefaultHeaders) > 0 {
		if c.endpoint.DefaultHeaders == nil {
			c.endpoint.DefaultHeaders = make(map[string]string, len(ep.DefaultHeaders))
		}
		for k, v := range ep.DefaultHeaders {
			c.endpoint.DefaultHeaders[k] = v
		}
	}
}

// Endpoint returns a copy of the endpoint the client currently resolves
// calls against.
func (c *Client) Endpoint() Endpoint {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ep := c.endpoint
	ep.DefaultHeaders = cloneStringMap(ep.DefaultHeaders)
	return ep
}

// SetAuthToken attaches a credential sent as the Authorization header on
// every subsequent call. An empty scheme defaults to Bearer; an empty token
// clears the header.
func (c *Client) SetAuthToken(token, scheme string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.authToken = token
	if scheme != "" {
		c.authScheme = scheme
	} else if c.authScheme == "" {
		c.authScheme = "Bearer"
	}
}

// SetMockMode toggles mock mode at runtime. A non-nil data map replaces all
// registered mocks (keyed by path, answering GET). Mock mode serves every
// call from the registered replies without touching the network.
func (c *Client) SetMockMode(enabled bool, data map[string]MockResponse) {
	if data != nil {
		c.mocks.replace(data)
	}
	c.mockEnabled.Store(enabled)
}

// AddMockData registers a canned reply for one method and path.
func (c *Client) AddMockData(method, path string, mock MockResponse) {
	c.mocks.set(method, path, mock)
}

// MockMode reports whether calls are being served from mocks.
func (c *Client) MockMode() bool {
	return c.mockEnabled.Load()
}

// AddRequestInterceptor registers fn to run before each transfer. Returning
// an error aborts the call with an interceptor failure.
func (c *Client) AddRequestInterceptor(fn RequestInterceptor) {
	c.interceptors.addRequest(fn)
}

// AddResponseInterceptor registers fn to observe every successful Result,
// including cache and mock hits.
func (c *Client) AddResponseInterceptor(fn ResponseInterceptor) {
	c.interceptors.addResponse(fn)
}

// AddErrorInterceptor registers fn to observe every failed Result.
func (c *Client) AddErrorInterceptor(fn ErrorInterceptor) {
	c.interceptors.addFailure(fn)
}

// ClearCache drops cached responses. An empty pattern clears everything;
// otherwise entries whose key contains pattern are removed.
func (c *Client) ClearCache(pattern string) {
	if c.cache == nil {
		return
	}
	if pattern == "" {
		c.cache.Clear()
	} else {
		c.cache.ClearPattern(pattern)
	}
	if c.metrics != nil {
		c.metrics.RecordCacheSize("default", c.cache.Len())
	}
}

// IsValid returns true if the client configuration is valid.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration error found at construction, if
// any.
func (c *Client) ValidationError() error {
	return c.validationError
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (*Result, error) {
	return c.Do(ctx, http.MethodGet, path, nil, opts...)
}

// Post performs a POST request with a JSON-encoded body.
func (c *Client) Post(ctx context.Context, path string, body any, opts ...RequestOption) (*Result, error) {
	return c.Do(ctx, http.MethodPost, path, body, opts...)
}

// Put performs a PUT request with a JSON-encoded body.
func (c *Client) Put(ctx context.Context, path string, body any, opts ...RequestOption) (*Result, error) {
	return c.Do(ctx, http.MethodPut, path, body, opts...)
}

// Patch performs a PATCH request with a JSON-encoded body.
func (c *Client) Patch(ctx context.Context, path string, body any, opts ...RequestOption) (*Result, error) {
	return c.Do(ctx, http.MethodPatch, path, body, opts...)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, opts ...RequestOption) (*Result, error) {
	return c.Do(ctx, http.MethodDelete, path, nil, opts...)
}

// Do runs one call through the full pipeline: interceptors, mock mode,
// cache, de-duplication, and the retrying transfer loop. The error return is
// reserved for programmer mistakes (invalid configuration, unencodable
// bodies, malformed URLs); everything that can go wrong at runtime comes
// back as a Result with Success false.
func (c *Client) Do(ctx context.Context, method, path string, body any, opts ...RequestOption) (*Result, error) {
	if c.validationError != nil {
		return nil, c.validationError
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ro := buildRequestOptions(opts)

	req, err := c.composeRequest(method, path, body, ro)
	if err != nil {
		return nil, err
	}
	if _, err := http.NewRequest(method, req.URL, nil); err != nil {
		return nil, &RequestError{
			Type:      ErrorTypeValidation,
			Message:   "invalid request",
			Cause:     err,
			Method:    method,
			URL:       req.URL,
			Timestamp: time.Now(),
		}
	}

	start := time.Now()
	endpoint := endpointLabel(req.URL)
	requestID := c.nextRequestID()

	if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
		c.logger.Debug("request start",
			"requestId", requestID,
			"method", method,
			"url", req.URL,
		)
	}

	if c.metrics != nil {
		c.metrics.RecordRequestStart(method, endpoint)
		defer c.metrics.RecordRequestEnd(method, endpoint)
	}

	if err := c.interceptors.applyRequest(req); err != nil {
		res := c.failResult(req, requestID, 0, start, failureParams{
			errType: ErrorTypeInterceptor,
			message: "request interceptor rejected request",
			cause:   err,
		})
		c.interceptors.applyFailure(res)
		if c.metrics != nil {
			c.metrics.RecordError(string(ErrorTypeInterceptor), method, endpoint)
		}
		return res, nil
	}

	if c.mockEnabled.Load() {
		return c.serveMock(ctx, req, path, requestID, endpoint, start)
	}

	useCache := c.cacheUsable(req.Method, ro)
	var cacheKey string
	if useCache {
		cacheKey = c.cacheKeyFunc(req.Method, req.URL, req.Body)
		if entry, ok := c.cache.Get(cacheKey); ok {
			if c.metrics != nil {
				c.metrics.RecordCacheHit(method, endpoint)
			}
			if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
				c.logger.Debug("cache hit", "requestId", requestID, "key", cacheKey)
			}
			res := c.resultFromCache(req, entry, start)
			c.interceptors.applyResponse(res)
			return res, nil
		}
		if c.metrics != nil {
			c.metrics.RecordCacheMiss(method, endpoint)
		}
	}

	var dedupKey string
	dedupOwner := false
	if c.dedup != nil && !ro.noDedup && c.dedupCondition(req.Method) {
		dedupKey = c.dedupKeyFunc(req.Method, req.URL, req.Body)
		entry, owner := c.dedup.getOrCreate(dedupKey)
		if !owner {
			if c.metrics != nil {
				c.metrics.RecordDeduplicationHit(method, endpoint)
			}
			res, waitErr := entry.wait(ctx)
			if waitErr != nil {
				return c.failResult(req, requestID, 0, start, failureParams{
					errType: ErrorTypeCancelled,
					message: "cancelled while waiting on identical in-flight request",
					cause:   waitErr,
				}), nil
			}
			return res, nil
		}
		dedupOwner = true
	}

	res := c.runAttempts(ctx, req, ro, requestID, endpoint, start)

	if useCache && res.Success {
		ttl := c.cacheTTL
		if ro.cacheTTL > 0 {
			ttl = ro.cacheTTL
		}
		if ttl, ok := storageTTL(res.Header, ttl); ok {
			c.cache.Set(cacheKey, &CacheEntry{
				Body:       res.Body,
				StatusCode: res.Status,
				Header:     res.Header.Clone(),
			}, ttl)
			if c.metrics != nil {
				c.metrics.RecordCacheSize("default", c.cache.Len())
			}
		}
	}

	if res.Success {
		c.interceptors.applyResponse(res)
	} else {
		c.interceptors.applyFailure(res)
		if c.metrics != nil && res.Err != nil {
			c.metrics.RecordError(string(res.Err.Type), method, endpoint)
		}
	}

	if dedupOwner {
		c.dedup.complete(dedupKey, res)
	}

	if c.metrics != nil {
		c.metrics.RecordRequest(method, endpoint, res.Status, time.Since(start))
	}
	if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
		c.logger.Debug("request done",
			"requestId", requestID,
			"method", method,
			"url", req.URL,
			"success", res.Success,
			"status", res.Status,
			"attempts", res.Attempts,
			"duration", res.Duration,
		)
	}

	return res, nil
}

// runAttempts is the transfer loop: rate limiter and circuit breaker gate
// each attempt, the retry policy decides whether a failure is tried again,
// and the injected sleep function paces the schedule.
func (c *Client) runAttempts(ctx context.Context, req *Request, ro *requestOptions, requestID, endpoint string, start time.Time) *Result {
	attempts := 0
	for {
		limiter, bucket := c.rateLimiter, "default"
		if c.rateLimiters != nil {
			limiter, bucket = c.rateLimiters.limiterFor(req.Method, req.URL)
		}
		if limiter != nil {
			if !limiter.Allow() {
				if c.debug != nil && c.debug.Enabled && c.debug.LogRateLimit && c.logger != nil {
					c.logger.Debug("rate limited", "requestId", requestID, "url", req.URL, "bucket", bucket)
				}
				return c.failResult(req, requestID, attempts, start, failureParams{
					errType: ErrorTypeRateLimit,
					message: "rate limited",
					cause:   ErrRateLimited,
				})
			}
			if c.metrics != nil {
				c.metrics.RecordRateLimiterTokens(bucket, int(limiter.Tokens()))
			}
		}

		if c.circuitBreaker != nil && !c.circuitBreaker.Allow() {
			if c.debug != nil && c.debug.Enabled && c.debug.LogCircuit && c.logger != nil {
				c.logger.Debug("circuit open", "requestId", requestID, "url", req.URL)
			}
			if c.metrics != nil {
				c.metrics.RecordCircuitBreakerState("default", c.circuitBreaker.State())
			}
			return c.failResult(req, requestID, attempts, start, failureParams{
				errType: ErrorTypeCircuitOpen,
				message: "circuit open",
				cause:   ErrCircuitOpen,
			})
		}

		if attempts > 0 {
			if c.debug != nil && c.debug.Enabled && c.debug.LogRetries && c.logger != nil {
				c.logger.Debug("retrying request",
					"requestId", requestID,
					"attempt", attempts,
					"maxRetries", c.maxRetries,
					"url", req.URL,
				)
			}
			if c.metrics != nil {
				c.metrics.RecordRetry(req.Method, endpoint, attempts)
			}
		}

		status, header, respBody, err := c.attempt(ctx, req, ro)
		attempts++

		if c.circuitBreaker != nil {
			if err != nil || status >= 500 {
				c.circuitBreaker.RecordFailure()
			} else {
				c.circuitBreaker.RecordSuccess()
			}
			if c.metrics != nil {
				c.metrics.RecordCircuitBreakerState("default", c.circuitBreaker.State())
			}
		}

		if err == nil && status < 400 {
			return c.successResult(req, status, header, respBody, attempts, start)
		}

		// The caller's context ending makes any failure terminal, including
		// ones that would otherwise retry.
		if ctx.Err() != nil {
			return c.failResult(req, requestID, attempts, start, failureParams{
				errType: ErrorTypeCancelled,
				message: "request cancelled",
				cause:   ctx.Err(),
			})
		}

		probe := &http.Response{
			StatusCode: status,
			Header:     header,
			Request:    &http.Request{Method: req.Method},
		}
		if err != nil {
			probe = nil
		}

		var delay time.Duration
		retry := false
		switch {
		case ro.noRetry:
		case c.retryPolicy != nil:
			delay, retry = c.retryPolicy.ShouldRetry(probe, err, attempts-1)
		case c.retryCondition != nil:
			if attempts-1 < c.maxRetries && c.retryCondition(probe, err) {
				retry = true
				delay = c.backoffCalc.Calculate(attempts-1, c.initialBackoff, c.maxBackoff, c.backoffMultiplier, c.jitter)
			}
		}

		if retry && c.retryBudget != nil && !c.retryBudget.Allow() {
			if c.metrics != nil {
				c.metrics.RecordRetryBudgetExceeded(endpoint)
			}
			return c.failResult(req, requestID, attempts, start, failureParams{
				errType: ErrorTypeRetryBudget,
				message: "retry budget exceeded",
				cause:   ErrRetryBudgetExceeded,
				status:  status,
				header:  header,
				body:    respBody,
			})
		}

		if !retry {
			errType, message := classifyTerminal(status, err)
			return c.failResult(req, requestID, attempts, start, failureParams{
				errType: errType,
				message: message,
				cause:   err,
				status:  status,
				header:  header,
				body:    respBody,
			})
		}

		if c.debug != nil && c.debug.Enabled && c.debug.LogRetries && c.logger != nil {
			c.logger.Debug("backing off",
				"requestId", requestID,
				"attempt", attempts,
				"delay", delay,
			)
		}
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			return c.failResult(req, requestID, attempts, start, failureParams{
				errType: ErrorTypeCancelled,
				message: "request cancelled",
				cause:   sleepErr,
			})
		}
	}
}

// attempt performs one transfer under the concurrency ceiling with a fresh
// per-attempt deadline.
func (c *Client) attempt(ctx context.Context, req *Request, ro *requestOptions) (int, http.Header, []byte, error) {
	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return 0, nil, nil, err
		}
		defer c.sem.Release(1)
	}

	attemptCtx := ctx
	timeout := c.timeout
	if ro.timeout > 0 {
		timeout = ro.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, req.URL, bodyReader(req.Body))
	if err != nil {
		return 0, nil, nil, err
	}
	httpReq.Header = req.Header.Clone()

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, err
	}

	return resp.StatusCode, resp.Header, respBody, nil
}

// serveMock answers a call from the mock store. Lookup uses the path as
// passed to the verb, so mocks registered against "/users" match regardless
// of base URL or version. A registered Status >= 400 simulates a failure.
func (c *Client) serveMock(ctx context.Context, req *Request, path, requestID, endpoint string, start time.Time) (*Result, error) {
	mock, ok := c.mocks.get(req.Method, path)
	if !ok {
		res := c.failResult(req, requestID, 1, start, failureParams{
			errType: ErrorTypeClient,
			message: fmt.Sprintf("no mock registered for %s %s", req.Method, path),
			status:  http.StatusNotFound,
		})
		c.interceptors.applyFailure(res)
		if c.metrics != nil {
			c.metrics.RecordRequest(req.Method, endpoint, res.Status, time.Since(start))
		}
		return res, nil
	}

	if delay := c.mockDelay(mock); delay > 0 {
		if err := c.sleep(ctx, delay); err != nil {
			return c.failResult(req, requestID, 0, start, failureParams{
				errType: ErrorTypeCancelled,
				message: "request cancelled",
				cause:   err,
			}), nil
		}
	}

	data, raw, err := mockPayload(mock.Body)
	if err != nil {
		return nil, &RequestError{
			Type:      ErrorTypeValidation,
			Message:   "mock body not serializable",
			Cause:     err,
			Method:    req.Method,
			URL:       req.URL,
			Timestamp: time.Now(),
		}
	}

	status := mock.Status
	if status == 0 {
		status = http.StatusOK
	}

	header := mock.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if header.Get("Content-Type") == "" && len(raw) > 0 {
		header.Set("Content-Type", "application/json")
	}

	if status >= 400 {
		errType := ErrorTypeClient
		if status >= 500 {
			errType = ErrorTypeServer
		}
		res := c.failResult(req, requestID, 1, start, failureParams{
			errType: errType,
			message: fmt.Sprintf("HTTP %d %s", status, http.StatusText(status)),
			status:  status,
			header:  header,
			body:    raw,
		})
		c.interceptors.applyFailure(res)
		if c.metrics != nil {
			c.metrics.RecordRequest(req.Method, endpoint, status, time.Since(start))
		}
		return res, nil
	}

	res := &Result{
		Success:    true,
		Status:     status,
		StatusText: http.StatusText(status),
		URL:        req.URL,
		Header:     header,
		Data:       data,
		Body:       raw,
		Attempts:   1,
		Duration:   time.Since(start),
		Timestamp:  time.Now(),
	}
	c.interceptors.applyResponse(res)
	if c.metrics != nil {
		c.metrics.RecordRequest(req.Method, endpoint, status, time.Since(start))
	}
	return res, nil
}

// composeRequest builds the outgoing request: base/version/path joined with
// single separators, query appended in sorted order, default headers under
// per-call headers, and the auth credential when one is set.
func (c *Client) composeRequest(method, path string, body any, ro *requestOptions) (*Request, error) {
	raw, contentType, err := encodeBody(body)
	if err != nil {
		return nil, &RequestError{
			Type:      ErrorTypeValidation,
			Message:   "encode request body",
			Cause:     err,
			Method:    method,
			Timestamp: time.Now(),
		}
	}

	c.mu.RLock()
	ep := c.endpoint
	defaults := cloneStringMap(ep.DefaultHeaders)
	token, scheme := c.authToken, c.authScheme
	c.mu.RUnlock()

	requestURL := path
	if !isAbsoluteURL(path) {
		requestURL = JoinURL(ep.BaseURL, ep.Version, path)
	}
	requestURL = appendQuery(requestURL, ro.query)

	h := http.Header{}
	for k, v := range defaults {
		h.Set(k, v)
	}
	if contentType != "" && h.Get("Content-Type") == "" {
		h.Set("Content-Type", contentType)
	}
	if h.Get("Accept") == "" {
		h.Set("Accept", "application/json")
	}
	if token != "" {
		if scheme == "" {
			scheme = "Bearer"
		}
		h.Set("Authorization", scheme+" "+token)
	}
	for k, vs := range ro.header {
		h[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}

	return &Request{Method: method, URL: requestURL, Header: h, Body: raw}, nil
}

func (c *Client) cacheUsable(method string, ro *requestOptions) bool {
	if c.cache == nil {
		return false
	}
	if ro.cacheSet {
		return ro.cacheOn
	}
	return c.cacheCondition(method)
}

func (c *Client) nextRequestID() string {
	if c.debug != nil && c.debug.RequestIDGen != nil {
		return c.debug.RequestIDGen()
	}
	return generateRequestID()
}

func (c *Client) successResult(req *Request, status int, header http.Header, body []byte, attempts int, start time.Time) *Result {
	data, decodeErr := decodePayload(body, header.Get("Content-Type"))
	return &Result{
		Success:     true,
		Status:      status,
		StatusText:  http.StatusText(status),
		URL:         req.URL,
		Header:      header,
		Data:        data,
		Body:        body,
		DecodeError: decodeErr,
		Attempts:    attempts,
		Duration:    time.Since(start),
		Timestamp:   time.Now(),
	}
}

func (c *Client) resultFromCache(req *Request, entry *CacheEntry, start time.Time) *Result {
	contentType := ""
	if entry.Header != nil {
		contentType = entry.Header.Get("Content-Type")
	}
	data, decodeErr := decodePayload(entry.Body, contentType)
	return &Result{
		Success:     true,
		Status:      entry.StatusCode,
		StatusText:  http.StatusText(entry.StatusCode),
		URL:         req.URL,
		Header:      entry.Header.Clone(),
		Data:        data,
		Body:        entry.Body,
		DecodeError: decodeErr,
		FromCache:   true,
		Duration:    time.Since(start),
		Timestamp:   time.Now(),
	}
}

type failureParams struct {
	errType ErrorType
	message string
	cause   error
	status  int
	header  http.Header
	body    []byte
}

func (c *Client) failResult(req *Request, requestID string, attempts int, start time.Time, p failureParams) *Result {
	now := time.Now()
	statusText := ""
	if p.status > 0 {
		statusText = http.StatusText(p.status)
	}
	var data any
	if len(p.body) > 0 {
		contentType := ""
		if p.header != nil {
			contentType = p.header.Get("Content-Type")
		}
		data, _ = decodePayload(p.body, contentType)
	}
	return &Result{
		Success:    false,
		Status:     p.status,
		StatusText: statusText,
		URL:        req.URL,
		Header:     p.header,
		Data:       data,
		Body:       p.body,
		Attempts:   attempts,
		Duration:   now.Sub(start),
		Timestamp:  now,
		Err: &RequestError{
			Type:       p.errType,
			Message:    p.message,
			Cause:      p.cause,
			RequestID:  requestID,
			Method:     req.Method,
			URL:        req.URL,
			Endpoint:   endpointLabel(req.URL),
			StatusCode: p.status,
			Attempt:    attempts,
			MaxRetries: c.maxRetries,
			Timestamp:  now,
			Duration:   now.Sub(start),
		},
	}
}

// classifyTerminal maps the last attempt's outcome to an error type and a
// human-readable message.
func classifyTerminal(status int, err error) (ErrorType, string) {
	if err != nil {
		switch classifyFailure(nil, err) {
		case ErrorTypeTimeout:
			return ErrorTypeTimeout, "attempt timed out"
		case ErrorTypeCancelled:
			return ErrorTypeCancelled, "request cancelled"
		default:
			return ErrorTypeNetwork, "network error"
		}
	}
	if status >= 500 {
		return ErrorTypeServer, fmt.Sprintf("HTTP %d %s", status, http.StatusText(status))
	}
	return ErrorTypeClient, fmt.Sprintf("HTTP %d %s", status, http.StatusText(status))
}

// endpointLabel reduces a URL to host+path for metric labels, keeping
// cardinality independent of query strings.
func endpointLabel(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	if u.Path == "" {
		return u.Host
	}
	return u.Host + u.Path
}

// encodeBody turns a call body into bytes. Byte slices and strings pass
// through untouched; anything else is marshalled as JSON.
func encodeBody(body any) ([]byte, string, error) {
	switch v := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return v, "", nil
	case string:
		return []byte(v), "", nil
	case json.RawMessage:
		return v, "application/json", nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, "", err
		}
		return raw, "application/json", nil
	}
}

func bodyReader(b []byte) io.Reader {
	if len(b) == 0 {
		return nil
	}
	return bytes.NewReader(b)
}
