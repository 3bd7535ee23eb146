package uplink

import (
	"net/http"
	"sync"
)

// Request is the outgoing call as request interceptors see it: the fully
// composed URL, the merged headers, and the raw body. Interceptors mutate it
// in place before the cache, deduplication and transport stages run.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// RequestInterceptor runs before transport. Returning an error aborts the
// call with a terminal interceptor failure.
type RequestInterceptor func(*Request) error

// ResponseInterceptor observes, and may adjust, the Result of a successful
// call.
type ResponseInterceptor func(*Result)

// ErrorInterceptor observes the Result of a failed call.
type ErrorInterceptor func(*Result)

// interceptors bundles the three chains. Registration order is execution
// order.
type interceptors struct {
	mu       sync.RWMutex
	request  []RequestInterceptor
	response []ResponseInterceptor
	failure  []ErrorInterceptor
}

func (i *interceptors) addRequest(fn RequestInterceptor) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.request = append(i.request, fn)
}

func (i *interceptors) addResponse(fn ResponseInterceptor) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.response = append(i.response, fn)
}

func (i *interceptors) addFailure(fn ErrorInterceptor) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.failure = append(i.failure, fn)
}

func (i *interceptors) applyRequest(req *Request) error {
	i.mu.RLock()
	chain := i.request
	i.mu.RUnlock()

	for _, fn := range chain {
		if err := fn(req); err != nil {
			return err
		}
	}
	return nil
}

func (i *interceptors) applyResponse(res *Result) {
	i.mu.RLock()
	chain := i.response
	i.mu.RUnlock()

	for _, fn := range chain {
		fn(res)
	}
}

func (i *interceptors) applyFailure(res *Result) {
	i.mu.RLock()
	chain := i.failure
	i.mu.RUnlock()

	for _, fn := range chain {
		fn(res)
	}
}
