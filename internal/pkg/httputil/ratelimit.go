package httputil

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/username/threadline/internal/pkg/constants"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client key. Buckets idle for
// longer than the idle TTL are dropped once they have refilled, so a
// dropped client comes back with exactly the budget it would have had.
type RateLimiter struct {
	mu        sync.Mutex
	limits    map[string]*limiterEntry
	rps       rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter allows rps requests per second per key with the given burst
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limits:  make(map[string]*limiterEntry),
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: constants.RateLimiterIdleTTL,
		now:     time.Now,
	}
}

func (rl *RateLimiter) getLimiter(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.idleTTL {
		rl.sweepLocked(now)
		rl.lastSweep = now
	}

	if entry, ok := rl.limits[key]; ok {
		entry.lastSeen = now
		return entry.limiter
	}

	entry := &limiterEntry{limiter: rate.NewLimiter(rl.rps, rl.burst), lastSeen: now}
	rl.limits[key] = entry
	return entry.limiter
}

// sweepLocked drops idle buckets that are full again; a fresh bucket starts
// full, so dropping them loses nothing
func (rl *RateLimiter) sweepLocked(now time.Time) {
	for key, entry := range rl.limits {
		if now.Sub(entry.lastSeen) < rl.idleTTL {
			continue
		}
		if entry.limiter.TokensAt(now) >= float64(rl.burst) {
			delete(rl.limits, key)
		}
	}
}

// Allow reports whether a request for key may proceed now
func (rl *RateLimiter) Allow(key string) bool {
	now := rl.now()
	return rl.getLimiter(key, now).AllowN(now, 1)
}

// RateLimitMiddleware rejects requests over the per-client budget with 429.
// A nil limiter disables limiting.
func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl == nil || rl.Allow(c.ClientIP()) {
			c.Next()
			return
		}
		TooManyRequestsError(c, errors.New(constants.ErrMsgRateLimited))
		c.Abort()
	}
}
