package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jengzang/beacons-backend-go/pkg/response"
)

// RateLimiter implements per-session rate limiting
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	r        rate.Limit
	b        int
}

// NewRateLimiter creates a limiter allowing perMinute requests per key with the given burst.
// A non-positive rate disables limiting.
func NewRateLimiter(perMinute float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Duration(float64(time.Minute) / perMinute))
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        limit,
		b:        burst,
	}
}

// getLimiter returns the rate limiter for a given key
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(rl.r, rl.b)
		rl.limiters[key] = limiter
	}
	return limiter
}

// Forget drops the limiter of a key
func (rl *RateLimiter) Forget(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.limiters, key)
}

// Allow reports whether a request for key may proceed
func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}

// Limit is a middleware that rate limits requests per session, falling back to the client IP
func (rl *RateLimiter) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString(SessionKey)
		if key == "" {
			key = c.ClientIP()
		}

		if !rl.Allow(key) {
			response.Error(c, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.", nil)
			c.Abort()
			return
		}

		c.Next()
	}
}
