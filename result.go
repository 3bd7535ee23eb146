package uplink

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Result is the outcome of a single call. Ordinary failures — refused
// connections, non-2xx statuses, exhausted retries — resolve as a Result
// with Success false; the error return of the verb methods is reserved for
// programmer mistakes such as invalid configuration.
type Result struct {
	Success    bool
	Status     int
	StatusText string
	URL        string
	Header     http.Header

	// Data holds the decoded payload: maps/slices for JSON bodies, string
	// for text bodies, raw []byte otherwise. Body always holds the bytes as
	// received.
	Data any
	Body []byte

	// DecodeError is set when a JSON body failed to parse; Data then degrades
	// to the raw string and Success is unaffected.
	DecodeError error

	FromCache bool
	Attempts  int
	Duration  time.Duration
	Timestamp time.Time

	// Err carries structured failure context when Success is false.
	Err *RequestError
}

// Failure is the stable failure shape handed to collaborators that only care
// about what went wrong.
type Failure struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	Status     int    `json:"status"`
	StatusText string `json:"statusText"`
	URL        string `json:"url"`
	Timestamp  string `json:"timestamp"`
}

// Failure returns the structured failure view of r, or nil when r succeeded.
func (r *Result) Failure() *Failure {
	if r == nil || r.Success {
		return nil
	}
	msg := "request failed"
	if r.Err != nil {
		msg = r.Err.Message
		if msg == "" && r.Err.Cause != nil {
			msg = r.Err.Cause.Error()
		}
	}
	return &Failure{
		Success:    false,
		Error:      msg,
		Status:     r.Status,
		StatusText: r.StatusText,
		URL:        r.URL,
		Timestamp:  r.Timestamp.UTC().Format(time.RFC3339),
	}
}

// Decode unmarshals the raw body as JSON into v.
func (r *Result) Decode(v any) error {
	if r == nil {
		return errors.New("uplink: nil result")
	}
	if len(r.Body) == 0 {
		return errors.New("uplink: empty body")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("uplink: decode response: %w", err)
	}
	return nil
}

// decodePayload interprets body by content type: JSON parses into generic
// values, text passes through as string, anything else stays raw. A JSON
// parse failure returns the string form plus the error so callers can keep
// the payload.
func decodePayload(body []byte, contentType string) (any, error) {
	if len(body) == 0 {
		return nil, nil
	}

	ct := strings.ToLower(contentType)
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}

	switch {
	case ct == "application/json" || strings.HasSuffix(ct, "+json"):
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			return string(body), err
		}
		return v, nil
	case strings.HasPrefix(ct, "text/"):
		return string(body), nil
	default:
		return body, nil
	}
}
