package uplink

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/trillo/uplink/internal/backoff"
)

// RetryPolicy decides whether a failed attempt is tried again and how long
// to wait first. attempt is zero-based: 0 means deciding on the first retry.
type RetryPolicy interface {
	ShouldRetry(resp *http.Response, err error, attempt int) (time.Duration, bool)
}

// RetryCondition is the narrow hook for callers that only want to override
// the retry decision and keep the client's backoff schedule.
type RetryCondition func(resp *http.Response, err error) bool

// BackoffStrategy selects the delay algorithm used between retries.
type BackoffStrategy int

const (
	// ExponentialJitter is initial*multiplier^attempt capped at max, plus
	// bounded uniform jitter.
	ExponentialJitter BackoffStrategy = iota

	// DecorrelatedJitter is AWS-style random_between(base, min(cap, base*3^attempt)).
	DecorrelatedJitter
)

// SleepFunc pauses between attempts. Tests inject their own to run retry
// schedules without real timers.
type SleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DefaultRetryPolicy retries transport errors, 5xx responses, and, unless
// opted out, 408/429 responses, honoring Retry-After when the server sends
// one. Other 4xx responses and caller cancellation are terminal.
type DefaultRetryPolicy struct {
	maxRetries       int
	initialBackoff   time.Duration
	maxBackoff       time.Duration
	multiplier       float64
	jitter           float64
	retryOn408And429 bool
	idempotentOnly   bool
	calc             *backoff.Calculator
}

// NewDefaultRetryPolicy creates the standard policy with exponential-jitter
// backoff.
func NewDefaultRetryPolicy(maxRetries int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64) *DefaultRetryPolicy {
	return &DefaultRetryPolicy{
		maxRetries:       maxRetries,
		initialBackoff:   initialBackoff,
		maxBackoff:       maxBackoff,
		multiplier:       multiplier,
		jitter:           jitter,
		retryOn408And429: true,
		calc:             backoff.Default(),
	}
}

// NewDefaultRetryPolicyWithStrategy creates the standard policy with a
// specific backoff strategy.
func NewDefaultRetryPolicyWithStrategy(maxRetries int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64, strategy BackoffStrategy) *DefaultRetryPolicy {
	p := NewDefaultRetryPolicy(maxRetries, initialBackoff, maxBackoff, multiplier, jitter)
	if strategy == DecorrelatedJitter {
		p.calc = backoff.NewCalculator(backoff.DecorrelatedJitter{})
	}
	return p
}

// ShouldRetry implements RetryPolicy.
func (p *DefaultRetryPolicy) ShouldRetry(resp *http.Response, err error, attempt int) (time.Duration, bool) {
	if attempt >= p.maxRetries {
		return 0, false
	}

	if p.idempotentOnly && resp != nil && resp.Request != nil && !DefaultIsIdempotent(resp.Request.Method) {
		return 0, false
	}

	retryable := false
	var delay time.Duration

	switch {
	case err != nil:
		if errors.Is(err, context.Canceled) {
			return 0, false
		}
		retryable = true
	case resp != nil:
		switch {
		case resp.StatusCode >= 500:
			retryable = true
			delay = parseRetryAfter(resp.Header.Get("Retry-After"))
		case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests:
			if p.retryOn408And429 {
				retryable = true
				delay = parseRetryAfter(resp.Header.Get("Retry-After"))
			}
		}
	}

	if !retryable {
		return 0, false
	}

	if delay == 0 {
		delay = p.calc.Calculate(attempt, p.initialBackoff, p.maxBackoff, p.multiplier, p.jitter)
	}
	return delay, true
}

// DefaultIsIdempotent returns true for methods safe to replay blindly.
func DefaultIsIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions:
		return true
	default:
		return false
	}
}

// DefaultRetryCondition mirrors the default policy's decision without the
// attempt ceiling: transport errors, 5xx, 408 and 429 are retryable.
func DefaultRetryCondition(resp *http.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	if resp == nil {
		return false
	}
	return resp.StatusCode >= 500 ||
		resp.StatusCode == http.StatusRequestTimeout ||
		resp.StatusCode == http.StatusTooManyRequests
}

// parseRetryAfter parses a Retry-After header in either delay-seconds or
// HTTP-date form. The result is capped at one hour; unparseable input means
// no server hint.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds > 0 {
			delay := time.Duration(seconds) * time.Second
			if delay > time.Hour {
				delay = time.Hour
			}
			return delay
		}
		return 0
	}

	if t, err := http.ParseTime(value); err == nil {
		delay := time.Until(t)
		if delay > 0 && delay <= time.Hour {
			return delay
		}
	}

	return 0
}

// classifyFailure maps a transport outcome to an ErrorType. The caller is
// responsible for distinguishing its own cancellation from a per-attempt
// timeout, since both surface as deadline errors here.
func classifyFailure(resp *http.Response, err error) ErrorType {
	switch {
	case err != nil:
		if errors.Is(err, context.Canceled) {
			return ErrorTypeCancelled
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrorTypeTimeout
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ErrorTypeTimeout
		}
		return ErrorTypeNetwork
	case resp == nil:
		return ErrorTypeNetwork
	case resp.StatusCode >= 500:
		return ErrorTypeServer
	case resp.StatusCode >= 400:
		return ErrorTypeClient
	default:
		return ""
	}
}

// RetryBudget caps retries across all calls sharing the client within a
// sliding window, so a flapping upstream cannot multiply traffic unbounded.
type RetryBudget struct {
	maxRetries  int64
	perWindow   time.Duration
	current     int64
	windowStart int64
}

// NewRetryBudget allows maxRetries retries per window.
func NewRetryBudget(maxRetries int, perWindow time.Duration) *RetryBudget {
	return &RetryBudget{
		maxRetries:  int64(maxRetries),
		perWindow:   perWindow,
		windowStart: time.Now().UnixNano(),
	}
}

// Allow reports whether another retry fits the current window and consumes
// budget when it does.
func (rb *RetryBudget) Allow() bool {
	now := time.Now().UnixNano()
	windowStart := atomic.LoadInt64(&rb.windowStart)

	if now-windowStart >= int64(rb.perWindow) {
		if atomic.CompareAndSwapInt64(&rb.windowStart, windowStart, now) {
			atomic.StoreInt64(&rb.current, 0)
		}
	}

	current := atomic.LoadInt64(&rb.current)
	if current >= rb.maxRetries {
		return false
	}

	return atomic.AddInt64(&rb.current, 1) <= rb.maxRetries
}

// GetStats returns the consumed budget, the cap, and the window start.
func (rb *RetryBudget) GetStats() (current, max int64, windowStart time.Time) {
	return atomic.LoadInt64(&rb.current),
		rb.maxRetries,
		time.Unix(0, atomic.LoadInt64(&rb.windowStart))
}
