package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// rateLimiter counts requests against a fixed one-minute window. The
// window rolls lazily on the next request after it expires, so no
// background goroutine is needed.
type rateLimiter struct {
	limit int

	mu        sync.Mutex
	counter   int
	windowEnd time.Time
}

func newRateLimiter(limit int) *rateLimiter {
	return &rateLimiter{limit: limit}
}

func (r *rateLimiter) allow(now time.Time) bool {
	if r == nil || r.limit <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if now.After(r.windowEnd) {
		r.windowEnd = now.Add(time.Minute)
		r.counter = 0
	}
	r.counter++
	return r.counter <= r.limit
}

// RateLimitMiddleware rejects requests beyond limit per minute with
// 429. A limit of zero disables the check.
func RateLimitMiddleware(limit int) gin.HandlerFunc {
	limiter := newRateLimiter(limit)
	return func(c *gin.Context) {
		if !limiter.allow(time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, StatusError{
				Status:  "error",
				Message: "too many requests",
			})
			return
		}
		c.Next()
	}
}
