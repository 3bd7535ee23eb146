package uplink

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"
)

// MockResponse is a canned reply served in mock mode. Body may be any
// JSON-able value, a string (served as text), or raw bytes. A zero Status
// means 200. Delay overrides the client's simulated latency for this entry.
type MockResponse struct {
	Status int
	Body   any
	Header http.Header
	Delay  time.Duration
}

// mockStore holds canned replies keyed by method and normalized path.
type mockStore struct {
	mu      sync.RWMutex
	entries map[string]MockResponse
}

func newMockStore() *mockStore {
	return &mockStore{entries: make(map[string]MockResponse)}
}

func (ms *mockStore) set(method, path string, mock MockResponse) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.entries[mockKey(method, path)] = mock
}

func (ms *mockStore) get(method, path string) (MockResponse, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	mock, ok := ms.entries[mockKey(method, path)]
	return mock, ok
}

// replace swaps the whole table. Map keys are paths; entries answer GET.
func (ms *mockStore) replace(data map[string]MockResponse) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.entries = make(map[string]MockResponse, len(data))
	for path, mock := range data {
		ms.entries[mockKey(http.MethodGet, path)] = mock
	}
}

// mockKey normalizes method and path so registration and lookup agree about
// leading slashes and query order.
func mockKey(method, path string) string {
	return strings.ToUpper(method) + " " + normalizeMockPath(path)
}

func normalizeMockPath(path string) string {
	if isAbsoluteURL(path) {
		return canonicalURL(path)
	}
	return strings.TrimLeft(path, "/")
}

// mockPayload renders a canned body the way a live response would decode:
// structured values round-trip through JSON, strings stay text, bytes stay
// raw.
func mockPayload(body any) (data any, raw []byte, err error) {
	switch v := body.(type) {
	case nil:
		return nil, nil, nil
	case []byte:
		return v, v, nil
	case string:
		return v, []byte(v), nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, nil, err
		}
		var data any
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, nil, err
		}
		return data, raw, nil
	}
}

// mockDelay picks the simulated latency for a hit: the entry's own Delay if
// set, otherwise a uniform draw from the client's configured range.
func (c *Client) mockDelay(mock MockResponse) time.Duration {
	if mock.Delay > 0 {
		return mock.Delay
	}
	if c.mockLatencyMax <= 0 {
		return 0
	}
	span := c.mockLatencyMax - c.mockLatencyMin
	if span <= 0 {
		return c.mockLatencyMin
	}
	return c.mockLatencyMin + time.Duration(rand.Int63n(int64(span)))
}
