package middlewares

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const maxTrackedKeys = 10000

// RateLimiter keeps one token bucket per key.
type RateLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time
	limiters map[string]*keyedLimiter
}

type keyedLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perMinute requests per key, refilled evenly, with a
// burst of the same size.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 20
	}

	return &RateLimiter{
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    perMinute,
		idleTTL:  10 * time.Minute,
		now:      time.Now,
		limiters: make(map[string]*keyedLimiter),
	}
}

func (rl *RateLimiter) Middleware(keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)

		if key == "" {
			// fallback to IP if key cannot be derived
			key = clientIP(c)
		}

		lim := rl.get(key)
		if lim.AllowN(rl.now(), 1) {
			c.Next()
			return
		}

		retryAfter := int(math.Ceil(1 / float64(rl.limit)))
		c.Header("Retry-After", strconv.Itoa(retryAfter))

		slog.WarnContext(c.Request.Context(), "rate limit exceeded",
			"key", key, "path", c.Request.URL.Path, "request_id", RequestIDFromContext(c))

		abortWithPage(c, http.StatusTooManyRequests, "rate_limited", "Too many attempts. Please try again shortly.")
	}
}

func (rl *RateLimiter) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	if l, ok := rl.limiters[key]; ok {
		l.lastSeen = now
		return l.lim
	}

	if len(rl.limiters) >= maxTrackedKeys {
		rl.pruneLocked(now)
	}

	l := &keyedLimiter{lim: rate.NewLimiter(rl.limit, rl.burst), lastSeen: now}
	rl.limiters[key] = l

	return l.lim
}

func (rl *RateLimiter) pruneLocked(now time.Time) {
	for k, l := range rl.limiters {
		if now.Sub(l.lastSeen) > rl.idleTTL {
			delete(rl.limiters, k)
		}
	}

	// everyone is active; start over rather than grow without bound
	if len(rl.limiters) >= maxTrackedKeys {
		rl.limiters = make(map[string]*keyedLimiter)
	}
}

// for unauthenticated endpoints: rate limit by IP
func KeyByIP(c *gin.Context) string {
	return clientIP(c)
}

func clientIP(c *gin.Context) string {
	ip := c.ClientIP()

	host, _, err := net.SplitHostPort(ip)

	if err == nil && host != "" {
		return host
	}

	return ip
}
