// Per-IP fixed-window rate limiter, Redis-backed with an in-memory fallback.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlfredDev/kontext/server/redisclient"
)

const (
	rateLimitWindow = 60 * time.Second
	rateLimitMax    = 100
)

type fixedWindowEntry struct {
	count   int
	resetAt time.Time
}

// RateLimiter implements the per-IP fixed-window counter described in
// spec §4.2. A reachable Redis client makes the counter shared across
// server processes; otherwise it falls back to an in-memory map.
type RateLimiter struct {
	logger zerolog.Logger
	redis  *redisclient.Client

	mu      sync.Mutex
	entries map[string]*fixedWindowEntry
}

// NewRateLimiter creates a rate limiter. redis may be nil.
func NewRateLimiter(logger zerolog.Logger, redis *redisclient.Client) *RateLimiter {
	return &RateLimiter{
		logger:  logger,
		redis:   redis,
		entries: make(map[string]*fixedWindowEntry),
	}
}

// Handler returns the rate limiting middleware handler. Only call this for
// routes that should be limited (the /v1/* subtree) — the router is
// responsible for not mounting it on the webhook or health routes.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		allowed, remaining, retryAfter, resetAt := rl.check(r.Context(), ip)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rateLimitMax))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprintf(w, `{"error":"rate limit exceeded","retryAfterSeconds":%d}`, retryAfter)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// check increments ip's counter for the current window and reports whether
// the request is allowed, matching the Check(ip) contract of spec §4.2.
func (rl *RateLimiter) check(ctx context.Context, ip string) (allowed bool, remaining, retryAfterSeconds int, resetAt time.Time) {
	if rl.redis != nil {
		if count, ttl, err := rl.redis.IncrWindow(ctx, "kontext:ratelimit:"+ip, rateLimitWindow); err == nil {
			resetAt = time.Now().Add(ttl)
			if count > rateLimitMax {
				return false, 0, int(ttl.Seconds()) + 1, resetAt
			}
			return true, rateLimitMax - int(count), 0, resetAt
		}
		rl.logger.Warn().Str("ip", ip).Msg("redis rate limit check failed, falling back to in-memory")
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	entry, ok := rl.entries[ip]
	if !ok || !now.Before(entry.resetAt) {
		entry = &fixedWindowEntry{count: 1, resetAt: now.Add(rateLimitWindow)}
		rl.entries[ip] = entry
		return true, rateLimitMax - 1, 0, entry.resetAt
	}

	if entry.count >= rateLimitMax {
		retryAfter := int(entry.resetAt.Sub(now).Seconds())
		if retryAfter < 0 {
			retryAfter = 0
		}
		return false, 0, retryAfter + 1, entry.resetAt
	}

	entry.count++
	return true, rateLimitMax - entry.count, 0, entry.resetAt
}

// clientIP extracts the caller's IP per spec §4.2: the first
// comma-separated token of X-Forwarded-For, else X-Real-IP, else
// "unknown" (all such callers share one bucket).
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.SplitN(fwd, ",", 2)[0]
		return strings.TrimSpace(first)
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return strings.TrimSpace(real)
	}
	return "unknown"
}
