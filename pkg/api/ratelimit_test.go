package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExtractIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{name: "remote addr", remoteAddr: "10.0.0.1:5555", want: "10.0.0.1"},
		{name: "remote addr without port", remoteAddr: "10.0.0.1", want: "10.0.0.1"},
		{name: "single forwarded", remoteAddr: "10.0.0.1:5555", xff: "1.2.3.4", want: "1.2.3.4"},
		{name: "forwarded chain", remoteAddr: "10.0.0.1:5555", xff: " 1.2.3.4 , 5.6.7.8", want: "1.2.3.4"},
		{name: "empty first hop", remoteAddr: "10.0.0.1:5555", xff: ",5.6.7.8", want: "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr

			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}

			assert.Equal(t, tt.want, extractIP(req))
		})
	}
}

func TestRateLimiterMap(t *testing.T) {
	done := make(chan struct{})
	defer close(done)

	rl := newRateLimiterMap(2, done)

	assert.True(t, rl.allow("a"))
	assert.True(t, rl.allow("a"))
	assert.False(t, rl.allow("a"), "burst exhausted")
	assert.True(t, rl.allow("b"), "limits are per IP")

	rl.sweep(time.Now().Add(rateLimitEntryTTL + time.Minute))

	rl.mu.Lock()
	assert.Empty(t, rl.limiters)
	rl.mu.Unlock()

	assert.True(t, rl.allow("a"), "swept entries start fresh")
}

func TestRateLimitMiddleware(t *testing.T) {
	s := newTestServer(t, func(s *server) {
		s.cfg.Server.RateLimit.Enabled = true
		s.cfg.Server.RateLimit.API.RequestsPerMinute = 1
	})

	h := s.buildRouter()

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "60", second.Header().Get("Retry-After"))
}
