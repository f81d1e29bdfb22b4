package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SecurityHeaders adds OWASP-recommended security headers to all responses.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		if r.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimitConfig configures RateLimit.
type RateLimitConfig struct {
	RequestsPerMin int
	Burst          int
	// TrustedProxies lists peer IPs whose X-Forwarded-For and X-Real-IP
	// headers are believed. Empty means proxy headers are ignored.
	TrustedProxies []string
	// Exempt lists path prefixes that bypass the limiter.
	Exempt []string
	// IdleTTL is how long an idle client's bucket is kept. Zero means 3m.
	IdleTTL time.Duration
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-client-IP token bucket limiter.
type RateLimiter struct {
	cfg     RateLimitConfig
	limit   rate.Limit
	trusted map[string]bool

	mu      sync.Mutex
	clients map[string]*client
}

// NewRateLimiter creates a limiter and starts a sweeper that evicts idle
// clients until ctx is cancelled.
func NewRateLimiter(ctx context.Context, cfg RateLimitConfig) *RateLimiter {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 3 * time.Minute
	}
	rl := &RateLimiter{
		cfg:     cfg,
		limit:   rate.Limit(float64(cfg.RequestsPerMin) / 60.0),
		trusted: make(map[string]bool, len(cfg.TrustedProxies)),
		clients: make(map[string]*client),
	}
	for _, p := range cfg.TrustedProxies {
		rl.trusted[p] = true
	}

	go func() {
		ticker := time.NewTicker(cfg.IdleTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.sweep(time.Now())
			case <-ctx.Done():
				return
			}
		}
	}()
	return rl
}

// RateLimit is shorthand for NewRateLimiter(ctx, cfg).Middleware.
func RateLimit(ctx context.Context, cfg RateLimitConfig) func(http.Handler) http.Handler {
	return NewRateLimiter(ctx, cfg).Middleware
}

// Middleware rejects requests over the client's budget with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range rl.cfg.Exempt {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		if !rl.allow(rl.clientIP(r), time.Now()) {
			w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfter()))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Clients returns the number of tracked client buckets.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

func (rl *RateLimiter) allow(ip string, now time.Time) bool {
	rl.mu.Lock()
	c, ok := rl.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rl.limit, rl.cfg.Burst)}
		rl.clients[ip] = c
	}
	c.lastSeen = now
	rl.mu.Unlock()
	return c.limiter.AllowN(now, 1)
}

func (rl *RateLimiter) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, c := range rl.clients {
		if now.Sub(c.lastSeen) > rl.cfg.IdleTTL {
			delete(rl.clients, ip)
		}
	}
}

func (rl *RateLimiter) retryAfter() int {
	if rl.limit <= 0 {
		return 60
	}
	secs := int(1 / float64(rl.limit))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// clientIP returns the TCP peer address, or the first forwarded address
// when the peer is a trusted proxy.
func (rl *RateLimiter) clientIP(r *http.Request) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(peer); err == nil {
		peer = host
	}
	if !rl.trusted[peer] {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return peer
}
