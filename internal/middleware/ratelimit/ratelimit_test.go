package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAllowWindow(t *testing.T) {
	l := NewLimiter(Config{Requests: 2, Window: time.Minute})
	defer l.Stop()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow("a"); !ok {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	ok, wait := l.Allow("a")
	if ok {
		t.Fatalf("third request should be limited")
	}
	if wait != time.Minute {
		t.Fatalf("expected full window wait, got %v", wait)
	}
	if ok, _ := l.Allow("b"); !ok {
		t.Fatalf("other clients are independent")
	}

	now = now.Add(time.Minute)
	if ok, _ := l.Allow("a"); !ok {
		t.Fatalf("window should have reset")
	}
}

func TestCleanup(t *testing.T) {
	l := NewLimiter(Config{Requests: 1, Window: time.Minute})
	defer l.Stop()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	l.Allow("a")
	now = now.Add(3 * time.Minute)
	l.Allow("b")
	l.cleanup()
	if l.ActiveClients() != 1 {
		t.Fatalf("expected stale client to be dropped, have %d", l.ActiveClients())
	}
}

func TestMiddleware(t *testing.T) {
	l := NewLimiter(Config{Requests: 1, Window: time.Minute})
	defer l.Stop()
	h := l.Middleware(func(*http.Request) string { return "client" }, http.MethodPost)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("GET should never be limited, got %d", rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("first POST should pass, got %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second POST should be limited, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}
