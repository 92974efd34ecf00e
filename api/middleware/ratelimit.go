package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/use-agent/carscout/config"
	"github.com/use-agent/carscout/models"
)

const (
	sweepEvery = 5 * time.Minute
	idleAfter  = time.Hour
)

// bucket is one caller's token bucket.
type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// limiterStore hands out one bucket per caller and forgets idle callers.
type limiterStore struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[string]*bucket
}

func newLimiterStore(cfg config.RateLimitConfig) *limiterStore {
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &limiterStore{
		limit:   rate.Limit(cfg.RequestsPerSecond),
		burst:   burst,
		buckets: make(map[string]*bucket),
	}
}

// take spends one token for caller at now. When the bucket is empty it
// returns false and how long until the next token.
func (s *limiterStore) take(caller string, now time.Time) (bool, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[caller]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(s.limit, s.burst)}
		s.buckets[caller] = b
	}
	b.seen = now

	r := b.lim.ReserveN(now, 1)
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

// sweep drops buckets not used since cutoff and reports how many remain.
func (s *limiterStore) sweep(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for caller, b := range s.buckets {
		if b.seen.Before(cutoff) {
			delete(s.buckets, caller)
		}
	}
	return len(s.buckets)
}

// RateLimit throttles the search API per caller: the authenticated key when
// Auth ran, the client IP otherwise. A rejected request gets 429 with a
// Retry-After hint. A zero rate disables limiting.
//
// Every search launches one browser per source, so the defaults are low.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	if cfg.RequestsPerSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	store := newLimiterStore(cfg)
	go func() {
		t := time.NewTicker(sweepEvery)
		defer t.Stop()
		for now := range t.C {
			store.sweep(now.Add(-idleAfter))
		}
	}()

	return func(c *gin.Context) {
		ok, wait := store.take(callerOf(c), time.Now())
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			abort(c, http.StatusTooManyRequests, models.ErrCodeRateLimited,
				"rate limit exceeded, please slow down")
			return
		}
		c.Next()
	}
}

func callerOf(c *gin.Context) string {
	if id := c.GetString(callerKey); id != "" {
		return id
	}
	return "ip:" + c.ClientIP()
}
