package uplink

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Option configures a Client at construction.
type Option func(*Client)

// WithEndpoint sets the explicit endpoint override, the strongest
// configuration tier.
func WithEndpoint(ep Endpoint) Option {
	return func(c *Client) {
		c.endpointOverride = &ep
	}
}

// WithBaseURL is shorthand for an endpoint override carrying only a base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if c.endpointOverride == nil {
			c.endpointOverride = &Endpoint{}
		}
		c.endpointOverride.BaseURL = baseURL
	}
}

// WithVersion is shorthand for an endpoint override carrying only a version
// segment.
func WithVersion(version string) Option {
	return func(c *Client) {
		if c.endpointOverride == nil {
			c.endpointOverride = &Endpoint{}
		}
		c.endpointOverride.Version = version
	}
}

// WithEnvironment selects the named entry from an environment table. Entry
// fields that map onto client knobs (timeout, retries, mock mode) apply
// immediately, so later options still win.
func WithEnvironment(name string, envs Environments) Option {
	return func(c *Client) {
		c.envName = name
		c.envs = envs

		env, ok := envs[name]
		if !ok {
			return
		}
		if env.Timeout > 0 {
			c.timeout = env.Timeout
		}
		if env.MaxRetries > 0 {
			c.maxRetries = env.MaxRetries
		}
		if env.MockMode {
			c.mockEnabled.Store(true)
		}
	}
}

// WithEnvironmentsFile loads an environment table from a YAML file and
// selects the named entry. Load failures surface through ValidationError.
func WithEnvironmentsFile(name, path string) Option {
	return func(c *Client) {
		envs, err := LoadEnvironments(path)
		if err != nil {
			c.configErrors = append(c.configErrors, err.Error())
			return
		}
		WithEnvironment(name, envs)(c)
	}
}

// WithAuthToken attaches a credential sent as the Authorization header on
// every call. An empty scheme defaults to Bearer.
func WithAuthToken(token, scheme string) Option {
	return func(c *Client) {
		c.authToken = token
		c.authScheme = scheme
		if c.authScheme == "" {
			c.authScheme = "Bearer"
		}
	}
}

// WithDefaultHeader attaches a header to every call.
func WithDefaultHeader(key, value string) Option {
	return func(c *Client) {
		if c.endpointOverride == nil {
			c.endpointOverride = &Endpoint{}
		}
		if c.endpointOverride.DefaultHeaders == nil {
			c.endpointOverride.DefaultHeaders = map[string]string{}
		}
		c.endpointOverride.DefaultHeaders[key] = value
	}
}

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithInitialBackoff sets the initial backoff duration.
func WithInitialBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.initialBackoff = d
	}
}

// WithMaxBackoff sets the maximum backoff duration.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.maxBackoff = d
	}
}

// WithBackoffMultiplier sets the backoff multiplier.
func WithBackoffMultiplier(f float64) Option {
	return func(c *Client) {
		c.backoffMultiplier = f
	}
}

// WithJitter sets the jitter factor for backoff (0.0 to 1.0).
func WithJitter(f float64) Option {
	return func(c *Client) {
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		c.jitter = f
	}
}

// WithBackoffStrategy selects the delay algorithm between retries.
func WithBackoffStrategy(s BackoffStrategy) Option {
	return func(c *Client) {
		c.backoffStrategy = s
	}
}

// WithRetryOn408And429 controls whether 408 and 429 responses are retried.
// They are by default; disabling makes every 4xx terminal.
func WithRetryOn408And429(retry bool) Option {
	return func(c *Client) {
		c.retryOn408And429 = retry
	}
}

// WithRetryCondition replaces the retry decision while keeping the client's
// backoff schedule.
func WithRetryCondition(fn RetryCondition) Option {
	return func(c *Client) {
		c.retryCondition = fn
		c.retryPolicy = nil
	}
}

// WithRetryPolicy replaces the retry decision and delay calculation
// wholesale.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) {
		c.retryPolicy = p
	}
}

// WithRetryBudget caps retries across all calls within a sliding window.
func WithRetryBudget(maxRetries int, perWindow time.Duration) Option {
	return func(c *Client) {
		c.retryBudget = NewRetryBudget(maxRetries, perWindow)
	}
}

// WithTimeout sets the per-attempt deadline. Each retry gets a fresh one.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithMaxInFlight bounds concurrent transfers. Excess callers wait for a
// slot. Zero removes the ceiling.
func WithMaxInFlight(n int) Option {
	return func(c *Client) {
		c.maxInFlight = n
	}
}

// WithRateLimiter adds a local token bucket in front of every attempt.
func WithRateLimiter(maxTokens int, refillRate time.Duration) Option {
	return func(c *Client) {
		c.rateLimiter = NewRateLimiter(maxTokens, refillRate)
	}
}

// WithRateLimiterRegistry routes calls through per-key token buckets instead
// of the single shared limiter. See NewRateLimiterRegistry.
func WithRateLimiterRegistry(registry *RateLimiterRegistry) Option {
	return func(c *Client) {
		c.rateLimiters = registry
	}
}

// WithCache sets the TTL of the default in-memory response cache.
func WithCache(ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = NewInMemoryCache()
		c.cacheTTL = ttl
	}
}

// WithoutCache disables response caching entirely.
func WithoutCache() Option {
	return func(c *Client) {
		c.cache = nil
	}
}

// WithCustomCache sets a custom cache implementation.
func WithCustomCache(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// WithCacheKeyFunc sets a custom cache key function.
func WithCacheKeyFunc(fn CacheKeyFunc) Option {
	return func(c *Client) {
		c.cacheKeyFunc = fn
	}
}

// WithCacheCondition sets a custom cache condition function.
func WithCacheCondition(fn CacheCondition) Option {
	return func(c *Client) {
		c.cacheCondition = fn
	}
}

// WithCircuitBreaker sets the circuit breaker configuration.
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.circuitBreaker = NewCircuitBreaker(config)
	}
}

// WithoutCircuitBreaker removes the circuit breaker.
func WithoutCircuitBreaker() Option {
	return func(c *Client) {
		c.circuitBreaker = nil
	}
}

// WithHTTPClient sets a custom HTTP client, e.g. one from NewHTTP2Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector, usually one built on
// a private registry.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithDebug enables debug logging with the default configuration. Output
// goes to stderr unless a logger was already configured.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		if c.logger == nil {
			c.logger = NewSimpleLogger()
		}
	}
}

// WithDebugConfig sets a custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging to stderr.
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithRequestIDGenerator sets a custom request ID generator.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// WithDeduplication coalesces identical concurrent calls onto one transfer.
func WithDeduplication() Option {
	return func(c *Client) {
		c.dedup = newDedupTracker()
	}
}

// WithDedupKeyFunc sets a custom deduplication key function.
func WithDedupKeyFunc(fn DedupKeyFunc) Option {
	return func(c *Client) {
		c.dedupKeyFunc = fn
	}
}

// WithDedupCondition sets a custom deduplication condition function.
func WithDedupCondition(fn DedupCondition) Option {
	return func(c *Client) {
		c.dedupCondition = fn
	}
}

// WithMockMode enables mock mode at construction with the given canned
// replies (keyed by path, answering GET).
func WithMockMode(data map[string]MockResponse) Option {
	return func(c *Client) {
		c.mockEnabled.Store(true)
		if data != nil {
			c.mocks.replace(data)
		}
	}
}

// WithMockLatency bounds the simulated latency of mock hits. Equal min and
// max give a fixed delay; zero max disables the delay.
func WithMockLatency(min, max time.Duration) Option {
	return func(c *Client) {
		c.mockLatencyMin = min
		c.mockLatencyMax = max
	}
}

// WithSleepFunc replaces the pause between retries. Tests use this to run
// retry schedules instantly while recording the requested delays.
func WithSleepFunc(fn SleepFunc) Option {
	return func(c *Client) {
		c.sleep = fn
	}
}

// RequestOption adjusts a single call.
type RequestOption func(*requestOptions)

type requestOptions struct {
	header    http.Header
	query     url.Values
	cacheSet  bool
	cacheOn   bool
	cacheTTL  time.Duration
	timeout   time.Duration
	noRetry   bool
	noDedup   bool
}

func buildRequestOptions(opts []RequestOption) *requestOptions {
	ro := &requestOptions{}
	for _, opt := range opts {
		opt(ro)
	}
	return ro
}

// WithRequestHeader sets a header on this call only.
func WithRequestHeader(key, value string) RequestOption {
	return func(ro *requestOptions) {
		if ro.header == nil {
			ro.header = http.Header{}
		}
		ro.header.Set(key, value)
	}
}

// WithRequestQuery adds a query parameter to this call.
func WithRequestQuery(key, value string) RequestOption {
	return func(ro *requestOptions) {
		if ro.query == nil {
			ro.query = url.Values{}
		}
		ro.query.Add(key, value)
	}
}

// WithRequestQueryValues adds a set of query parameters to this call.
func WithRequestQueryValues(values url.Values) RequestOption {
	return func(ro *requestOptions) {
		if ro.query == nil {
			ro.query = url.Values{}
		}
		for k, vs := range values {
			for _, v := range vs {
				ro.query.Add(k, v)
			}
		}
	}
}

// WithRequestCache forces caching for this call with the given TTL,
// regardless of the client's cache condition. Zero TTL keeps the client
// default.
func WithRequestCache(ttl time.Duration) RequestOption {
	return func(ro *requestOptions) {
		ro.cacheSet = true
		ro.cacheOn = true
		ro.cacheTTL = ttl
	}
}

// WithRequestNoCache bypasses the cache for this call.
func WithRequestNoCache() RequestOption {
	return func(ro *requestOptions) {
		ro.cacheSet = true
		ro.cacheOn = false
	}
}

// WithRequestTimeout overrides the per-attempt deadline for this call.
func WithRequestTimeout(d time.Duration) RequestOption {
	return func(ro *requestOptions) {
		ro.timeout = d
	}
}

// WithRequestNoRetry makes every failure of this call terminal.
func WithRequestNoRetry() RequestOption {
	return func(ro *requestOptions) {
		ro.noRetry = true
	}
}

// WithRequestNoDedup opts this call out of in-flight coalescing.
func WithRequestNoDedup() RequestOption {
	return func(ro *requestOptions) {
		ro.noDedup = true
	}
}

// ValidateConfiguration checks the client configuration and returns an error
// describing every problem found.
func (c *Client) ValidateConfiguration() error {
	var errors []string

	errors = append(errors, c.configErrors...)
	errors = append(errors, c.validateEndpointConfig()...)
	errors = append(errors, c.validateRetryConfig()...)
	errors = append(errors, c.validateRateLimiterConfig()...)
	errors = append(errors, c.validateCacheConfig()...)
	errors = append(errors, c.validateCircuitBreakerConfig()...)
	errors = append(errors, c.validateDebugConfig()...)
	errors = append(errors, c.validateDeduplicationConfig()...)
	errors = append(errors, c.validateHTTPClientConfig()...)
	errors = append(errors, c.validateExtremeValues()...)

	if len(errors) > 0 {
		return &RequestError{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", errors),
		}
	}

	return nil
}

func (c *Client) validateEndpointConfig() []string {
	var errors []string

	if c.endpointOverride != nil && c.endpointOverride.BaseURL != "" {
		if _, err := url.Parse(c.endpointOverride.BaseURL); err != nil {
			errors = append(errors, fmt.Sprintf("baseURL is not a valid URL: %v", err))
		}
	}

	return errors
}

func (c *Client) validateRetryConfig() []string {
	var errors []string

	if c.maxRetries < 0 {
		errors = append(errors, "maxRetries must be non-negative")
	}

	if c.initialBackoff <= 0 {
		errors = append(errors, "initialBackoff must be positive")
	}

	if c.maxBackoff < c.initialBackoff {
		errors = append(errors, "maxBackoff must be greater than or equal to initialBackoff")
	}

	if c.backoffMultiplier <= 0 {
		errors = append(errors, "backoffMultiplier must be positive")
	}

	if c.jitter < 0 || c.jitter > 1 {
		errors = append(errors, "jitter must be between 0 and 1")
	}

	if c.timeout <= 0 {
		errors = append(errors, "timeout must be positive")
	}

	if c.maxInFlight < 0 {
		errors = append(errors, "maxInFlight must be non-negative")
	}

	return errors
}

func (c *Client) validateRateLimiterConfig() []string {
	var errors []string

	if c.rateLimiter != nil {
		if c.rateLimiter.maxTokens <= 0 {
			errors = append(errors, "rateLimiter maxTokens must be positive")
		}
		if c.rateLimiter.refillRate <= 0 {
			errors = append(errors, "rateLimiter refillRate must be positive")
		}
	}

	return errors
}

func (c *Client) validateCacheConfig() []string {
	var errors []string

	if c.cache != nil && c.cacheTTL <= 0 {
		errors = append(errors, "cacheTTL must be positive when cache is enabled")
	}

	return errors
}

func (c *Client) validateCircuitBreakerConfig() []string {
	var errors []string

	if c.circuitBreaker != nil {
		if c.circuitBreaker.config.FailureThreshold <= 0 {
			errors = append(errors, "circuitBreaker FailureThreshold must be positive")
		}
		if c.circuitBreaker.config.RecoveryTimeout <= 0 {
			errors = append(errors, "circuitBreaker RecoveryTimeout must be positive")
		}
		if c.circuitBreaker.config.SuccessThreshold <= 0 {
			errors = append(errors, "circuitBreaker SuccessThreshold must be positive")
		}
	}

	return errors
}

func (c *Client) validateDebugConfig() []string {
	var errors []string

	if c.debug != nil && c.debug.Enabled {
		if c.debug.RequestIDGen == nil {
			errors = append(errors, "debug RequestIDGen must be set when debug is enabled")
		}
		if c.logger == nil {
			errors = append(errors, "logger must be set when debug is enabled")
		}
	}

	return errors
}

func (c *Client) validateDeduplicationConfig() []string {
	var errors []string

	if c.dedup != nil {
		if c.dedupKeyFunc == nil {
			errors = append(errors, "deduplication key function must be set when deduplication is enabled")
		}
		if c.dedupCondition == nil {
			errors = append(errors, "deduplication condition must be set when deduplication is enabled")
		}
	}

	return errors
}

func (c *Client) validateHTTPClientConfig() []string {
	var errors []string

	if c.httpClient == nil {
		errors = append(errors, "HTTP client cannot be nil")
	}

	return errors
}

func (c *Client) validateExtremeValues() []string {
	var errors []string

	if c.maxRetries > 100 {
		errors = append(errors, "maxRetries > 100 may cause excessive resource usage")
	}

	if c.initialBackoff > 10*time.Minute {
		errors = append(errors, "initialBackoff > 10m may cause very long delays")
	}
	if c.maxBackoff > time.Hour {
		errors = append(errors, "maxBackoff > 1h may cause extremely long delays")
	}

	if c.timeout > 10*time.Minute {
		errors = append(errors, "timeout > 10m may cause requests to hang for too long")
	}

	if c.rateLimiter != nil {
		if c.rateLimiter.maxTokens > 1000000 {
			errors = append(errors, "rateLimiter maxTokens > 1M may cause memory issues")
		}
		if c.rateLimiter.refillRate < time.Millisecond {
			errors = append(errors, "rateLimiter refillRate < 1ms may cause excessive CPU usage")
		}
	}

	if c.cache != nil && c.cacheTTL > 24*time.Hour {
		errors = append(errors, "cacheTTL > 24h may cause stale data issues")
	}

	return errors
}
