package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// visitorIdleEvict is how long a client bucket may sit unused before it is
// dropped from the map.
const visitorIdleEvict = 5 * time.Minute

type visitor struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles per client IP. The login and exchange endpoints are
// credential oracles; without a limit they invite online guessing.
type RateLimiter struct {
	perSecond rate.Limit
	burst     int

	mu       sync.Mutex
	visitors map[string]*visitor
}

// NewRateLimiter builds a limiter from a requests-per-minute budget. A zero
// or negative budget disables limiting, which is intended for tests.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		perSecond: rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:     burst,
		visitors:  make(map[string]*visitor),
	}
}

// Handler returns the gin middleware enforcing the limit.
func (r *RateLimiter) Handler() gin.HandlerFunc {
	if r == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if !r.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"errors": []gin.H{{
					"errorCode": http.StatusTooManyRequests,
					"message":   "Too many requests. Please slow down.",
				}},
			})
			return
		}
		c.Next()
	}
}

func (r *RateLimiter) allow(clientIP string) bool {
	now := time.Now()

	r.mu.Lock()
	v, ok := r.visitors[clientIP]
	if !ok {
		v = &visitor{bucket: rate.NewLimiter(r.perSecond, r.burst)}
		r.visitors[clientIP] = v
		r.evictIdleLocked(now)
	}
	v.lastSeen = now
	r.mu.Unlock()

	return v.bucket.Allow()
}

// evictIdleLocked prunes stale visitors. Called on insert so the map cannot
// grow without bound; r.mu must be held.
func (r *RateLimiter) evictIdleLocked(now time.Time) {
	for ip, v := range r.visitors {
		if now.Sub(v.lastSeen) > visitorIdleEvict {
			delete(r.visitors, ip)
		}
	}
}
