package uplink

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType classifies a failure for retry decisions and reporting.
type ErrorType string

const (
	// ErrorTypeNetwork covers transport-level failures: refused connections,
	// DNS errors, resets. Retryable.
	ErrorTypeNetwork ErrorType = "network"

	// ErrorTypeTimeout covers per-attempt deadline expiry. Retryable.
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeServer covers 5xx responses. Retryable.
	ErrorTypeServer ErrorType = "server"

	// ErrorTypeClient covers 4xx responses. Terminal except 408/429 when
	// the client is configured to retry those.
	ErrorTypeClient ErrorType = "client"

	// ErrorTypeRateLimit is emitted when the local rate limiter denies an
	// attempt before it leaves the process.
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeCircuitOpen is emitted when the circuit breaker refuses an
	// attempt.
	ErrorTypeCircuitOpen ErrorType = "circuit_open"

	// ErrorTypeRetryBudget is emitted when a retry is wanted but the shared
	// retry budget for the window is spent.
	ErrorTypeRetryBudget ErrorType = "retry_budget"

	// ErrorTypeCancelled is set when the caller's context ends the call.
	// Never retried.
	ErrorTypeCancelled ErrorType = "cancelled"

	// ErrorTypeInterceptor is set when a request interceptor aborts the call.
	ErrorTypeInterceptor ErrorType = "interceptor"

	// ErrorTypeValidation covers construction-time configuration errors.
	ErrorTypeValidation ErrorType = "validation"
)

// Sentinel errors for common failure scenarios.
var (
	// ErrCircuitOpen is returned when the circuit breaker is in open state.
	ErrCircuitOpen = errors.New("uplink: circuit open")

	// ErrRateLimited is returned when an attempt is denied by the rate limiter.
	ErrRateLimited = errors.New("uplink: rate limited")

	// ErrRetryBudgetExceeded is returned when the shared retry budget is exhausted.
	ErrRetryBudgetExceeded = errors.New("uplink: retry budget exceeded")

	// ErrSessionClosed is returned for operations on a session that is closed
	// and will not reconnect.
	ErrSessionClosed = errors.New("uplink: session closed")

	// ErrQueueFull is surfaced when an outbound message cannot be queued
	// because queueing is disabled.
	ErrQueueFull = errors.New("uplink: send queue full")

	// ErrLoadTimeout is returned when a pending load or call outlives its deadline.
	ErrLoadTimeout = errors.New("uplink: load timed out")
)

// RequestError carries structured context about a failed request. It is the
// Err field of a failed Result and the error value wrapped by terminal
// failures.
type RequestError struct {
	Type       ErrorType
	Message    string
	Cause      error
	RequestID  string
	Method     string
	URL        string
	Endpoint   string
	StatusCode int
	Attempt    int
	MaxRetries int
	Timestamp  time.Time
	Duration   time.Duration
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxRetries)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RequestError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches RequestErrors by Type for errors.Is.
func (e *RequestError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*RequestError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *RequestError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Type: %s\n", e.Type)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Method != "" {
		info += fmt.Sprintf("Method: %s\n", e.Method)
	}
	if e.URL != "" {
		info += fmt.Sprintf("URL: %s\n", e.URL)
	}
	if e.Endpoint != "" {
		info += fmt.Sprintf("Endpoint: %s\n", e.Endpoint)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if e.Attempt > 0 {
		info += fmt.Sprintf("Attempt: %d/%d\n", e.Attempt, e.MaxRetries)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}

// IsTransient reports whether err represents a failure that might succeed on
// retry: network errors, timeouts, 5xx responses, local rate limiting, and an
// open circuit. Client errors are terminal except 408 and 429.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrRateLimited) || errors.Is(err, ErrRetryBudgetExceeded) {
		return true
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.Type {
		case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeServer, ErrorTypeRateLimit, ErrorTypeCircuitOpen, ErrorTypeRetryBudget:
			return true
		case ErrorTypeClient:
			return reqErr.StatusCode == 408 || reqErr.StatusCode == 429
		default:
			return false
		}
	}

	return false
}
