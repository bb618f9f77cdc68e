package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAllowUnderBudget(t *testing.T) {
	l := New(3)
	for i := 0; i < 3; i++ {
		ok, _ := l.Allow("1.2.3.4")
		if !ok {
			t.Fatalf("request %d should be allowed", i)
		}
	}
}

func TestAllowBlocksOverBudget(t *testing.T) {
	l := New(2)
	l.Allow("1.2.3.4")
	l.Allow("1.2.3.4")
	ok, retryAfter := l.Allow("1.2.3.4")
	if ok {
		t.Fatal("3rd request should be blocked")
	}
	if retryAfter <= 0 {
		t.Fatal("expected positive retry-after")
	}
}

func TestAllowDisabledWhenZero(t *testing.T) {
	l := New(0)
	for i := 0; i < 100; i++ {
		ok, _ := l.Allow("1.2.3.4")
		if !ok {
			t.Fatal("limiter with maxPerMinute=0 should never block")
		}
	}
}

func TestAllowIsolatesPerIP(t *testing.T) {
	l := New(1)
	ok1, _ := l.Allow("1.1.1.1")
	ok2, _ := l.Allow("2.2.2.2")
	if !ok1 || !ok2 {
		t.Fatal("distinct IPs should have independent buckets")
	}
}

func TestMiddlewareBypassesManageAndHealth(t *testing.T) {
	l := New(1)
	l.Allow("9.9.9.9") // exhaust the budget for this IP

	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/manage/status", "/health"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "9.9.9.9:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s should bypass rate limiting, got %d", path, rec.Code)
		}
	}
}

func TestMiddlewareBlocksOverBudget(t *testing.T) {
	l := New(1)
	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/search?q=x", nil)
	req.RemoteAddr = "5.5.5.5:1234"

	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req)
	if rec1.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", rec1.Code)
	}

	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request should be rate limited, got %d", rec2.Code)
	}
	if rec2.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header on 429")
	}
}

func TestExtractIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := ExtractIP(req); got != "203.0.113.9" {
		t.Fatalf("ExtractIP = %q, want 203.0.113.9", got)
	}
}
