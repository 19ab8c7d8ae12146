package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/AlfredDev/kontext/server/middleware"
)

func TestRateLimiterAllowsUpTo100ThenBlocks(t *testing.T) {
	rl := middleware.NewRateLimiter(zerolog.Nop(), nil)
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 100; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/actions", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.9")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/actions", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("request 101: expected 429, got %d", rec.Code)
	}
}

func TestRateLimiterIsolatesByIP(t *testing.T) {
	rl := middleware.NewRateLimiter(zerolog.Nop(), nil)
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req1 := httptest.NewRequest(http.MethodPost, "/v1/actions", nil)
	req1.Header.Set("X-Forwarded-For", "10.0.0.1")
	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req1)

	req2 := httptest.NewRequest(http.MethodPost, "/v1/actions", nil)
	req2.Header.Set("X-Forwarded-For", "10.0.0.2")
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)

	if rec1.Header().Get("X-RateLimit-Remaining") != "99" || rec2.Header().Get("X-RateLimit-Remaining") != "99" {
		t.Fatalf("expected independent buckets, got %s / %s", rec1.Header().Get("X-RateLimit-Remaining"), rec2.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimiterExtractsFirstForwardedForToken(t *testing.T) {
	rl := middleware.NewRateLimiter(zerolog.Nop(), nil)
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/actions", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.4, 10.0.0.1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	req2 := httptest.NewRequest(http.MethodPost, "/v1/actions", nil)
	req2.Header.Set("X-Forwarded-For", "198.51.100.4")
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)

	if rec2.Header().Get("X-RateLimit-Remaining") != "98" {
		t.Fatalf("expected shared bucket keyed on first token, got %s", rec2.Header().Get("X-RateLimit-Remaining"))
	}
}
