package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// rateLimiter implements a simple per-IP fixed-window rate limiter. Upload
// and download paths each get their own instance: uploads are expensive,
// downloads are cheap but abusable for bandwidth exhaustion, and one path
// exhausting its budget must not lock out the other.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // max requests per window
	window   time.Duration // window duration
}

// visitor tracks request counts within the current window for a single IP.
type visitor struct {
	count       int
	windowStart time.Time
}

// newRateLimiter creates a rate limiter that allows rate requests per window.
// It starts a background goroutine that cleans up stale entries every minute.
func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
	}
	go func() {
		for {
			time.Sleep(time.Minute)
			rl.cleanup()
		}
	}()
	return rl
}

// allow returns whether the IP is within its rate limit, and if not, how long
// until its window resets (the Retry-After hint).
func (rl *rateLimiter) allow(ip string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	v, exists := rl.visitors[ip]
	if !exists || now.Sub(v.windowStart) > rl.window {
		rl.visitors[ip] = &visitor{count: 1, windowStart: now}
		return true, 0
	}
	v.count++
	if v.count <= rl.rate {
		return true, 0
	}
	retry := rl.window - now.Sub(v.windowStart)
	if retry < 0 {
		retry = 0
	}
	return false, retry
}

// cleanup removes visitor entries whose window has expired.
func (rl *rateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := time.Now()
	for ip, v := range rl.visitors {
		if now.Sub(v.windowStart) > rl.window {
			delete(rl.visitors, ip)
		}
	}
}

// getIP extracts the client IP from a request, respecting X-Forwarded-For
// for proxied deployments.
func getIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}
