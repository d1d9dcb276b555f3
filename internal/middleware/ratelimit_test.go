package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIPRateLimiter_BurstThenDeny(t *testing.T) {
	l := NewIPRateLimiter(6, 2)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	ok, _ := l.Allow("198.51.100.1")
	assert.True(t, ok)
	ok, _ = l.Allow("198.51.100.1")
	assert.True(t, ok)

	ok, wait := l.Allow("198.51.100.1")
	assert.False(t, ok)
	assert.True(t, wait > 9*time.Second && wait <= 10*time.Second, "wait was %s", wait)

	ok, _ = l.Allow("198.51.100.2")
	assert.True(t, ok, "other IPs have their own bucket")

	now = now.Add(10 * time.Second)
	ok, _ = l.Allow("198.51.100.1")
	assert.True(t, ok, "a token refills after 10s at 6/min")
}

func TestIPRateLimiter_SweepsIdleVisitors(t *testing.T) {
	l := NewIPRateLimiter(60, 1)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow("198.51.100.1")
	now = now.Add(11 * time.Minute)
	l.Allow("198.51.100.2")

	l.mu.Lock()
	defer l.mu.Unlock()
	_, stale := l.visitors["198.51.100.1"]
	assert.False(t, stale)
	assert.Len(t, l.visitors, 1)
}

func TestIPRateLimiter_Middleware(t *testing.T) {
	l := NewIPRateLimiter(1, 1)
	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/dashboard/login", nil)
		req.RemoteAddr = "203.0.113.5:1000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, post().Code)

	rec := post()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	get := httptest.NewRequest(http.MethodGet, "/dashboard/login", nil)
	get.RemoteAddr = "203.0.113.5:1000"
	getRec := httptest.NewRecorder()
	handler.ServeHTTP(getRec, get)
	assert.Equal(t, http.StatusOK, getRec.Code, "GET is never throttled")
}
