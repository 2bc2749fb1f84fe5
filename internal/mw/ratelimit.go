package mw

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// KeyRateLimiter applies the fixed-window admission-control policy, counting
// requests per presented API key. It runs before the authorization lookup:
// over-limit requests are rejected without touching the key store. Requests
// without a bearer key are counted per client IP so they cannot bypass the
// policy.
func KeyRateLimiter(limit int, window time.Duration) gin.HandlerFunc {
	counters := cache.New(window, 2*window)
	windowSecs := int64(window / time.Second)

	return func(c *gin.Context) {
		subject := bearerKey(c)
		if subject == "" {
			subject = "ip:" + c.ClientIP()
		}

		now := time.Now().Unix()
		windowIdx := now / windowSecs
		counterKey := fmt.Sprintf("%s:%d", subject, windowIdx)

		count := 1
		if err := counters.Add(counterKey, 1, window); err != nil {
			n, ierr := counters.IncrementInt(counterKey, 1)
			if ierr == nil {
				count = n
			}
		}

		if count > limit {
			retryAfter := (windowIdx+1)*windowSecs - now
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

// bearerKey extracts the presented API key without validating it; the auth
// middleware does that after admission control.
func bearerKey(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// ipLimiters stores a token-bucket limiter per client IP for the
// unauthenticated endpoints, where no API key exists to count against.
type ipLimiters struct {
	mu  sync.Mutex
	ips map[string]*rate.Limiter
	r   rate.Limit
	b   int
}

func (l *ipLimiters) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.ips[ip]
	if !ok {
		limiter = rate.NewLimiter(l.r, l.b)
		l.ips[ip] = limiter
	}
	return limiter
}

// IPRateLimiter is a token-bucket middleware for the unauthenticated surface
// (health probes, VAPID key).
func IPRateLimiter(r rate.Limit, b int) gin.HandlerFunc {
	limiters := &ipLimiters{ips: make(map[string]*rate.Limiter), r: r, b: b}
	return func(c *gin.Context) {
		if !limiters.get(c.ClientIP()).Allow() {
			c.AbortWithStatus(http.StatusTooManyRequests)
			return
		}
		c.Next()
	}
}
