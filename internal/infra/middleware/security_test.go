package middleware

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func get(h http.Handler, path, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remote
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestSecurityHeaders(t *testing.T) {
	w := get(SecurityHeaders(okHandler()), "/api/v1/status", "192.168.1.1:1234")

	expected := map[string]string{
		"X-Frame-Options":         "DENY",
		"X-Content-Type-Options":  "nosniff",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
		"Referrer-Policy":         "no-referrer",
		"Cache-Control":           "no-store",
	}
	for header, want := range expected {
		if got := w.Header().Get(header); got != want {
			t.Errorf("Header %s = %q, want %q", header, got, want)
		}
	}
	if hsts := w.Header().Get("Strict-Transport-Security"); hsts != "" {
		t.Errorf("HSTS header should not be set without TLS, got: %q", hsts)
	}
}

func TestSecurityHeaders_HSTS_WithTLS(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.TLS = &tls.ConnectionState{}
	w := httptest.NewRecorder()
	SecurityHeaders(okHandler()).ServeHTTP(w, req)

	want := "max-age=31536000; includeSubDomains"
	if got := w.Header().Get("Strict-Transport-Security"); got != want {
		t.Errorf("HSTS = %q, want %q", got, want)
	}
}

func TestRateLimit_BlocksExcessiveTraffic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := RateLimit(ctx, RateLimitConfig{RequestsPerMin: 6, Burst: 3})(okHandler())

	var ok, blocked int
	for i := 0; i < 10; i++ {
		w := get(handler, "/ws", "192.168.1.1:12345")
		switch w.Code {
		case http.StatusOK:
			ok++
		case http.StatusTooManyRequests:
			blocked++
			if ra := w.Header().Get("Retry-After"); ra != "10" {
				t.Errorf("Retry-After = %q, want 10", ra)
			}
		}
	}
	if ok != 3 || blocked != 7 {
		t.Errorf("ok=%d blocked=%d, want 3/7", ok, blocked)
	}
}

func TestRateLimit_SeparatesClientsByIP(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := RateLimit(ctx, RateLimitConfig{RequestsPerMin: 6, Burst: 1})(okHandler())

	if w := get(handler, "/", "192.168.1.1:1"); w.Code != http.StatusOK {
		t.Fatalf("client1 first = %d", w.Code)
	}
	if w := get(handler, "/", "192.168.1.1:2"); w.Code != http.StatusTooManyRequests {
		t.Errorf("client1 second = %d, want 429 (port must not matter)", w.Code)
	}
	if w := get(handler, "/", "192.168.1.2:1"); w.Code != http.StatusOK {
		t.Errorf("client2 first = %d", w.Code)
	}
}

func TestRateLimit_ExemptPrefix(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRateLimiter(ctx, RateLimitConfig{RequestsPerMin: 6, Burst: 1, Exempt: []string{"/surface/"}})
	handler := rl.Middleware(okHandler())

	for i := 0; i < 5; i++ {
		if w := get(handler, "/surface/canvas", "10.0.0.9:1"); w.Code != http.StatusOK {
			t.Fatalf("exempt request %d = %d", i, w.Code)
		}
	}
	if rl.Clients() != 0 {
		t.Errorf("exempt paths should not allocate buckets, got %d", rl.Clients())
	}
}

func TestRateLimit_Sweep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRateLimiter(ctx, RateLimitConfig{RequestsPerMin: 60, Burst: 1, IdleTTL: time.Minute})

	now := time.Now()
	rl.allow("1.1.1.1", now.Add(-2*time.Minute))
	rl.allow("2.2.2.2", now)
	rl.sweep(now)

	if rl.Clients() != 1 {
		t.Errorf("Clients = %d, want 1 after sweep", rl.Clients())
	}
}

func TestRateLimit_TokenRefill(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRateLimiter(ctx, RateLimitConfig{RequestsPerMin: 60, Burst: 1})

	now := time.Now()
	if !rl.allow("1.1.1.1", now) {
		t.Fatal("first request should pass")
	}
	if rl.allow("1.1.1.1", now) {
		t.Fatal("second immediate request should be blocked")
	}
	if !rl.allow("1.1.1.1", now.Add(1100*time.Millisecond)) {
		t.Error("request after refill should pass")
	}
}

func TestClientIP(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRateLimiter(ctx, RateLimitConfig{TrustedProxies: []string{"10.0.0.1", "::1"}})

	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{"direct", "203.0.113.5:4000", "", "", "203.0.113.5"},
		{"spoofed xff from untrusted peer", "203.0.113.5:4000", "1.2.3.4", "", "203.0.113.5"},
		{"trusted proxy xff", "10.0.0.1:80", "198.51.100.7, 10.0.0.1", "", "198.51.100.7"},
		{"trusted proxy x-real-ip", "10.0.0.1:80", "", "198.51.100.8", "198.51.100.8"},
		{"trusted proxy no headers", "10.0.0.1:80", "", "", "10.0.0.1"},
		{"ipv6 trusted proxy", "[::1]:80", "198.51.100.9", "", "198.51.100.9"},
		{"no port", "203.0.113.6", "", "", "203.0.113.6"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			if got := rl.clientIP(req); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimit_SweeperStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	handler := RateLimit(ctx, RateLimitConfig{RequestsPerMin: 60, Burst: 10})(okHandler())
	get(handler, "/", "192.168.1.1:12345")
	cancel()

	// goleak retries until the sweeper goroutine has returned.
}
