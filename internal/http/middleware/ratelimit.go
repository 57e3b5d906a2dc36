// This file implements the per-caller token-bucket limiter. Buckets are keyed
// by user id when the caller names one (X-User-ID header or the :user_id path
// parameter on websocket routes) and by client IP otherwise. Idle buckets are
// swept on a timer-free schedule: every sweepEvery lookups.
//
// Alert routes are exempt. A person retrying an SOS must never see a 429; the
// idempotency layer already turns those retries into replays.
//
// The limiter is process-local, which matches the single-process realtime
// core it fronts.

package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// keyFunc selects the identity used to key a rate-limit bucket.
type keyFunc func(*gin.Context) string

// KeyByUserOrIP keys by "user:<id>" when the caller is identified and by
// "ip:<addr>" otherwise.
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if uid := callerOf(c); uid != anonymousCaller {
			return "user:" + uid
		}
		return "ip:" + c.ClientIP()
	}
}

const (
	defaultIdleTTL = 10 * time.Minute
	sweepEvery     = 5000
)

var rateLimited = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_rate_limited_total",
		Help: "Requests rejected by the per-caller rate limiter.",
	},
	[]string{"path"},
)

func init() {
	prometheus.MustRegister(rateLimited)
}

// RateLimitOptions configures NewRateLimiter.
type RateLimitOptions struct {
	RPS   float64 // tokens per second
	Burst int     // bucket size; <= 0 becomes 1
	Key   keyFunc // nil means KeyByUserOrIP
	// Exempt lists "METHOD /route/template" pairs that are never limited,
	// e.g. "POST /api/v1/sos".
	Exempt []string
	// IdleTTL evicts buckets unused for this long; 0 means 10 minutes.
	IdleTTL time.Duration
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter implements a per-key token-bucket rate limiter. It is safe for
// concurrent use.
type RateLimiter struct {
	rps    rate.Limit
	burst  int
	keyFn  keyFunc
	exempt map[string]struct{}
	ttl    time.Duration

	mu       sync.Mutex
	visitors map[string]*visitor
	lookups  uint64
}

// NewRateLimiter builds a limiter from opts.
func NewRateLimiter(opts RateLimitOptions) *RateLimiter {
	rl := &RateLimiter{
		rps:      rate.Limit(opts.RPS),
		burst:    opts.Burst,
		keyFn:    opts.Key,
		exempt:   make(map[string]struct{}, len(opts.Exempt)),
		ttl:      opts.IdleTTL,
		visitors: make(map[string]*visitor),
	}
	if rl.burst <= 0 {
		rl.burst = 1
	}
	if rl.keyFn == nil {
		rl.keyFn = KeyByUserOrIP()
	}
	if rl.ttl <= 0 {
		rl.ttl = defaultIdleTTL
	}
	for _, e := range opts.Exempt {
		rl.exempt[e] = struct{}{}
	}
	return rl
}

// getVisitor returns the limiter for key, creating it if absent. The sweep
// runs before the lookup so a stale entry is evicted even when it is the one
// being fetched.
func (rl *RateLimiter) getVisitor(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= sweepEvery {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.lookups = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

// IsRateBypass reports whether IdempotencyValidator marked this request as a
// replay of a completed request.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func (rl *RateLimiter) isExempt(c *gin.Context) bool {
	_, ok := rl.exempt[c.Request.Method+" "+c.FullPath()]
	return ok
}

// retryAfter is the whole number of seconds until the bucket holds a token,
// at least 1.
func retryAfter(lim *rate.Limiter, now time.Time) string {
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return "60"
	}
	d := r.DelayFrom(now)
	r.CancelAt(now)
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// Handler returns the Gin middleware. Replays and exempt routes pass
// untouched; a caller over budget gets
//
//	HTTP/1.1 429 Too Many Requests
//	Retry-After: <seconds>
//	{ "request_id": "...", "code": "rate_limited", "message": "rate limit exceeded" }
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) || rl.isExempt(c) {
			c.Next()
			return
		}

		now := time.Now()
		lim := rl.getVisitor(rl.keyFn(c), now)
		if lim.AllowN(now, 1) {
			c.Next()
			return
		}

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		rateLimited.WithLabelValues(path).Inc()
		LoggerFrom(c).Debug().Msg("rate limited")

		c.Header("Retry-After", retryAfter(lim, now))
		abortError(c, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
	}
}
