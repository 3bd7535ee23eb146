package uplink

import (
	"errors"
	"net/http"
	"testing"
)

func TestInterceptorsRunInRegistrationOrder(t *testing.T) {
	var chain interceptors
	var order []string

	chain.addRequest(func(r *Request) error {
		order = append(order, "first")
		return nil
	})
	chain.addRequest(func(r *Request) error {
		order = append(order, "second")
		return nil
	})

	req := &Request{Method: http.MethodGet, URL: "http://example.com", Header: http.Header{}}
	if err := chain.applyRequest(req); err != nil {
		t.Fatalf("applyRequest() error = %v", err)
	}

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("Expected registration order, got %v", order)
	}
}

func TestRequestInterceptorMutatesRequest(t *testing.T) {
	var chain interceptors
	chain.addRequest(func(r *Request) error {
		r.Header.Set("X-Trace-Id", "abc123")
		return nil
	})

	req := &Request{Method: http.MethodGet, URL: "http://example.com", Header: http.Header{}}
	if err := chain.applyRequest(req); err != nil {
		t.Fatalf("applyRequest() error = %v", err)
	}

	if got := req.Header.Get("X-Trace-Id"); got != "abc123" {
		t.Errorf("Expected injected header, got %q", got)
	}
}

func TestRequestInterceptorErrorStopsChain(t *testing.T) {
	var chain interceptors
	called := false

	chain.addRequest(func(r *Request) error {
		return errors.New("rejected")
	})
	chain.addRequest(func(r *Request) error {
		called = true
		return nil
	})

	req := &Request{Method: http.MethodGet, Header: http.Header{}}
	err := chain.applyRequest(req)
	if err == nil {
		t.Fatal("Expected error from the first interceptor")
	}
	if called {
		t.Error("Expected the chain to stop after the failing interceptor")
	}
}

func TestResponseInterceptorAdjustsResult(t *testing.T) {
	var chain interceptors
	chain.addResponse(func(r *Result) {
		r.Data = "replaced"
	})

	res := &Result{Success: true, Data: "original"}
	chain.applyResponse(res)

	if res.Data != "replaced" {
		t.Errorf("Expected interceptor to replace data, got %v", res.Data)
	}
}

func TestErrorInterceptorSeesFailure(t *testing.T) {
	var chain interceptors
	var seen *Result

	chain.addFailure(func(r *Result) {
		seen = r
	})

	res := &Result{Success: false, Status: 500, Err: &RequestError{Type: ErrorTypeServer}}
	chain.applyFailure(res)

	if seen == nil {
		t.Fatal("Expected error interceptor to run")
	}
	if seen.Status != 500 {
		t.Errorf("Expected failing result, got status %d", seen.Status)
	}
}

func TestInterceptorsEmptyChainsAreNoOps(t *testing.T) {
	var chain interceptors

	if err := chain.applyRequest(&Request{Header: http.Header{}}); err != nil {
		t.Errorf("Expected empty request chain to pass, got %v", err)
	}
	chain.applyResponse(&Result{Success: true})
	chain.applyFailure(&Result{})
}
