package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/fuelsync/fuelsync/internal/auth"
	"github.com/fuelsync/fuelsync/internal/cache"
)

// countingLimiter allows the first `allow` calls per key.
type countingLimiter struct {
	mu    sync.Mutex
	allow int
	seen  map[string]int
	err   error
}

func (l *countingLimiter) check(key string) (*cache.RateLimitResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	if l.seen == nil {
		l.seen = map[string]int{}
	}
	l.seen[key]++
	remaining := int64(l.allow - l.seen[key])
	if remaining < 0 {
		return &cache.RateLimitResult{Allowed: false, RetryAfter: 3 * time.Second, ResetAt: time.Now().Add(3 * time.Second)}, nil
	}
	return &cache.RateLimitResult{Allowed: true, Remaining: remaining, ResetAt: time.Now().Add(time.Minute)}, nil
}

func (l *countingLimiter) CheckOwnerRateLimit(_ context.Context, ownerID string, _, _ int) (*cache.RateLimitResult, error) {
	return l.check("owner:" + ownerID)
}

func (l *countingLimiter) CheckIPRateLimit(_ context.Context, ip string, _, _ int) (*cache.RateLimitResult, error) {
	return l.check("ip:" + ip)
}

func ownerRequest(ownerID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/vehicles", nil)
	return req.WithContext(auth.ContextWithIdentity(req.Context(), &auth.Identity{OwnerID: ownerID}))
}

func TestRateLimitOwner(t *testing.T) {
	t.Parallel()

	limiter := &countingLimiter{allow: 2}
	handler := RateLimitOwner(RateLimitConfig{
		Logger:            discardLogger(),
		Limiter:           limiter,
		Enabled:           true,
		RequestsPerMinute: 60,
		Burst:             2,
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i, want := range []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, ownerRequest("owner-1"))
		if rec.Code != want {
			t.Fatalf("request %d: status = %d, want %d", i+1, rec.Code, want)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "60" {
			t.Errorf("request %d: missing X-RateLimit-Limit", i+1)
		}
		if want == http.StatusTooManyRequests && rec.Header().Get("Retry-After") != "3" {
			t.Errorf("Retry-After = %q, want 3", rec.Header().Get("Retry-After"))
		}
	}

	// A different owner has its own bucket.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, ownerRequest("owner-2"))
	if rec.Code != http.StatusOK {
		t.Errorf("other owner: status = %d, want 200", rec.Code)
	}
}

func TestRateLimitOwner_FailsOpen(t *testing.T) {
	t.Parallel()

	handler := RateLimitOwner(RateLimitConfig{
		Logger:            discardLogger(),
		Limiter:           &countingLimiter{err: errors.New("redis down")},
		Enabled:           true,
		RequestsPerMinute: 60,
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, ownerRequest("owner-1"))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRateLimit_DisabledOrNoLimiter(t *testing.T) {
	t.Parallel()

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	configs := []RateLimitConfig{
		{Logger: discardLogger(), Limiter: &countingLimiter{}, Enabled: false, RequestsPerMinute: 1, IPRequestsPerSecond: 1},
		{Logger: discardLogger(), Enabled: true, RequestsPerMinute: 1, IPRequestsPerSecond: 1},
	}
	for _, cfg := range configs {
		for _, mw := range []func(http.Handler) http.Handler{RateLimitOwner(cfg), RateLimitIP(cfg)} {
			rec := httptest.NewRecorder()
			mw(ok).ServeHTTP(rec, ownerRequest("owner-1"))
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", rec.Code)
			}
		}
	}
}

func TestRateLimitIP(t *testing.T) {
	t.Parallel()

	limiter := &countingLimiter{allow: 1}
	handler := RateLimitIP(RateLimitConfig{
		Logger:              discardLogger(),
		Limiter:             limiter,
		Enabled:             true,
		IPRequestsPerSecond: 10,
		IPBurst:             1,
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if got := send("203.0.113.7:5000"); got != http.StatusOK {
		t.Fatalf("first request: status = %d", got)
	}
	if got := send("203.0.113.7:5001"); got != http.StatusTooManyRequests {
		t.Fatalf("second request from same IP: status = %d, want 429", got)
	}
	if got := send("198.51.100.1:5000"); got != http.StatusOK {
		t.Fatalf("other IP: status = %d", got)
	}
	if limiter.seen["ip:203.0.113.7"] != 2 {
		t.Errorf("port should be stripped from the limiter key, seen = %v", limiter.seen)
	}
}
