package http

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type visitor struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter allows each key n requests per window, refilled evenly. Keys
// idle for a full window are swept so the map tracks only recent clients.
type RateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	n         int
	window    time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func NewRateLimiter(n int, window time.Duration) *RateLimiter {
	if n <= 0 {
		n = 1
	}
	return &RateLimiter{
		visitors:  make(map[string]*visitor),
		n:         n,
		window:    window,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func (rl *RateLimiter) Allow(key string) bool {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if now.Sub(rl.lastSweep) > rl.window {
		rl.sweepLocked(now)
	}
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{lim: rate.NewLimiter(rate.Every(rl.window/time.Duration(rl.n)), rl.n)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.lim.AllowN(now, 1)
}

// a visitor idle for a whole window has a full bucket again, so dropping it
// changes nothing
func (rl *RateLimiter) sweepLocked(now time.Time) {
	for k, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.window {
			delete(rl.visitors, k)
		}
	}
	rl.lastSweep = now
}

// Len reports tracked clients.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

func ClientIP(c *gin.Context) string {
	ip := c.ClientIP()
	if host, _, err := net.SplitHostPort(ip); err == nil && host != "" {
		return host
	}
	if ip == "" {
		return "unknown"
	}
	return ip
}

// RateLimit rejects a client IP that exceeds rl.
func RateLimit(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(ClientIP(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
