package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

type countingAllower struct {
	budget int
	keys   []string
}

func (a *countingAllower) Allow(_ context.Context, key string) bool {
	a.keys = append(a.keys, key)
	if a.budget <= 0 {
		return false
	}
	a.budget--
	return true
}

func TestRateLimit_BlocksAfterBudget(t *testing.T) {
	limiter := &countingAllower{budget: 1}
	h := RateLimit(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/submit/x/contact", nil)
	req.RemoteAddr = "203.0.113.7:5555"
	req.Header.Set("Origin", "https://example.com")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://example.com" {
		t.Fatalf("expected origin echoed on 429, got %q", got)
	}
	if limiter.keys[0] != "submit:203.0.113.7" {
		t.Fatalf("unexpected limiter key %q", limiter.keys[0])
	}
}

func TestRateLimit_RemoteAddrWithoutPort(t *testing.T) {
	limiter := &countingAllower{budget: 5}
	h := RateLimit(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "198.51.100.1"
	h.ServeHTTP(httptest.NewRecorder(), req)

	if limiter.keys[0] != "submit:198.51.100.1" {
		t.Fatalf("unexpected limiter key %q", limiter.keys[0])
	}
}
