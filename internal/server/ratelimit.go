package server

import (
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/conneroisu/livepad/internal/errors"
	"github.com/conneroisu/livepad/internal/logging"
)

// idleLimiterTTL is how long an unused per-client limiter is kept.
const idleLimiterTTL = 5 * time.Minute

// RateLimiter keeps one token bucket per client key.
type RateLimiter struct {
	limit  rate.Limit
	burst  int
	logger logging.Logger

	mu       sync.Mutex
	limiters map[string]*clientLimiter
	now      func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitResult represents the result of a rate limit check
type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// NewRateLimiter allows requestsPerSecond sustained and burst at once per key.
func NewRateLimiter(requestsPerSecond float64, burst int, logger logging.Logger) *RateLimiter {
	if logger == nil {
		logger = logging.Discard()
	}
	return &RateLimiter{
		limit:    rate.Limit(requestsPerSecond),
		burst:    burst,
		logger:   logger,
		limiters: make(map[string]*clientLimiter),
		now:      time.Now,
	}
}

// Check consumes one token for key.
func (rl *RateLimiter) Check(key string) RateLimitResult {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.evictIdle(now)

	cl, ok := rl.limiters[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = cl
	}
	cl.lastSeen = now

	r := cl.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return RateLimitResult{Allowed: false, RetryAfter: delay}
	}

	remaining := int(math.Floor(cl.limiter.TokensAt(now)))
	if remaining < 0 {
		remaining = 0
	}
	return RateLimitResult{Allowed: true, Remaining: remaining}
}

// Clients returns the number of tracked keys.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *RateLimiter) evictIdle(now time.Time) {
	for key, cl := range rl.limiters {
		if now.Sub(cl.lastSeen) > idleLimiterTTL {
			delete(rl.limiters, key)
		}
	}
}

// RateLimitMiddleware creates HTTP middleware for rate limiting
func RateLimitMiddleware(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := getClientIP(r)
			result := limiter.Check(clientIP)

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.burst))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", result.Remaining))

			if !result.Allowed {
				w.Header().Set("Retry-After", fmt.Sprintf("%.0f", math.Ceil(result.RetryAfter.Seconds())))
				limiter.logger.Warn(r.Context(),
					errors.NewValidationError("RATE_LIMIT_EXCEEDED", "rate limit exceeded"),
					"Rate limit exceeded",
					"client_ip", clientIP,
					"path", r.URL.Path,
					"method", r.Method)
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
