package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/models"
)

const limiterCleanupInterval = 5 * time.Minute

// RateLimiter limits requests per client IP.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex

	limit    rate.Limit
	burst    int
	rejected prometheus.Counter
}

// NewRateLimiter creates a limiter allowing perMinute requests per IP with the given burst.
// Idle limiters are dropped until ctx is done. rejected may be nil.
func NewRateLimiter(ctx context.Context, perMinute, burst int, rejected prometheus.Counter) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 1
	}
	rl := &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
		rejected: rejected,
	}
	go rl.cleanupLimiters(ctx)
	return rl
}

func (rl *RateLimiter) limiterFor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, ok := rl.limiters[ip]; ok {
		return limiter
	}
	limiter := rate.NewLimiter(rl.limit, rl.burst)
	rl.limiters[ip] = limiter
	return limiter
}

func (rl *RateLimiter) cleanupLimiters(ctx context.Context) {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.mu.Lock()
			for ip, limiter := range rl.limiters {
				// a full bucket means no recent traffic
				if limiter.Tokens() >= float64(limiter.Burst()) {
					delete(rl.limiters, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Middleware answers 429 once a client exceeds its budget.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.limiterFor(c.ClientIP()).Allow() {
			if rl.rejected != nil {
				rl.rejected.Inc()
			}
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{Error: "Too many requests, please slow down"})
			return
		}
		c.Next()
	}
}
