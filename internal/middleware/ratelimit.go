package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// KeyFunc derives the throttling key for a request.
type KeyFunc func(c *gin.Context) string

// RateLimiter enforces per-client fixed-window throttling. Each named
// policy (api, auth, public) is its own instance with its own window and
// budget. State is process-local and in-memory: in a multi-instance
// deployment every instance counts independently, which is accepted for
// this service rather than coordinating through a shared store.
type RateLimiter struct {
	window  time.Duration
	max     int
	keyFunc KeyFunc

	mu       sync.Mutex
	counters map[string]*windowCounter
}

type windowCounter struct {
	count   int
	resetAt time.Time
}

// NewRateLimiter creates a limiter allowing max requests per window per key.
// A nil keyFunc falls back to forwarded-for based client identity.
func NewRateLimiter(window time.Duration, max int, keyFunc KeyFunc) *RateLimiter {
	if max <= 0 || window <= 0 {
		return nil
	}
	if keyFunc == nil {
		keyFunc = ClientKey
	}
	return &RateLimiter{
		window:   window,
		max:      max,
		keyFunc:  keyFunc,
		counters: make(map[string]*windowCounter),
	}
}

// ClientKey is the default key derivation: the first hop of
// X-Forwarded-For, then X-Real-IP, then a shared "unknown" bucket.
func ClientKey(c *gin.Context) string {
	if fwd := c.Request.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(c.Request.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return "unknown"
}

// Allow records one request for key and reports whether it fits the window
// budget. A rejected request does not increment the counter.
func (r *RateLimiter) Allow(key string) bool {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.counters[key]
	if !ok || !entry.resetAt.After(now) {
		r.sweepLocked(now)
		r.counters[key] = &windowCounter{count: 1, resetAt: now.Add(r.window)}
		return true
	}
	if entry.count >= r.max {
		return false
	}
	entry.count++
	return true
}

// sweepLocked drops counters whose window already elapsed so many distinct
// keys cannot grow the map without bound.
func (r *RateLimiter) sweepLocked(now time.Time) {
	for key, entry := range r.counters {
		if !entry.resetAt.After(now) {
			delete(r.counters, key)
		}
	}
}

// Handler returns the gin middleware enforcing the policy.
func (r *RateLimiter) Handler() gin.HandlerFunc {
	if r == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		if !r.Allow(r.keyFunc(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":             "rate_limited",
				"error_description": "Too many requests. Please slow down.",
			})
			return
		}
		c.Next()
	}
}
