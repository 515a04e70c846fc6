package middleware

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// IPRateLimiter is a token bucket per client IP for the REST API.
type IPRateLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*limiterEntry
	rps      int
	burst    int
	onReject func()
}

func NewIPRateLimiter(rps, burst int, onReject func()) *IPRateLimiter {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = rps
	}
	return &IPRateLimiter{
		limiters: make(map[string]*limiterEntry),
		rps:      rps,
		burst:    burst,
		onReject: onReject,
	}
}

func (l *IPRateLimiter) get(key string) *rate.Limiter {
	l.mu.RLock()
	entry, ok := l.limiters[key]
	l.mu.RUnlock()
	if ok {
		l.mu.Lock()
		entry.lastAccess = time.Now()
		l.mu.Unlock()
		return entry.limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok = l.limiters[key]; ok {
		entry.lastAccess = time.Now()
		return entry.limiter
	}
	entry = &limiterEntry{
		limiter:    rate.NewLimiter(rate.Every(time.Second/time.Duration(l.rps)), l.burst),
		lastAccess: time.Now(),
	}
	l.limiters[key] = entry
	return entry.limiter
}

// Cleanup drops limiters unused for longer than idle.
func (l *IPRateLimiter) Cleanup(idle time.Duration) {
	cutoff := time.Now().Add(-idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, entry := range l.limiters {
		if entry.lastAccess.Before(cutoff) {
			delete(l.limiters, key)
		}
	}
}

func (l *IPRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.get(c.ClientIP()).Allow() {
			if l.onReject != nil {
				l.onReject()
			}
			log.Printf("rate limit exceeded for %s %s", c.ClientIP(), c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, slow down"})
			return
		}
		c.Next()
	}
}
