package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	applogger "EventHorizon/pkg/logger"
)

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiter hands out one token bucket per key. Buckets idle for longer than
// the idle window are evicted on the next sweep.
type Limiter struct {
	mu     sync.Mutex
	m      map[string]*bucket
	limit  rate.Limit
	burst  int
	idle   time.Duration
	now    func() time.Time
	lastGC time.Time
}

// New returns a limiter refilling perSecond tokens up to capacity.
func New(capacity int, perSecond float64) *Limiter {
	if capacity < 1 {
		capacity = 1
	}
	return &Limiter{
		m:     make(map[string]*bucket),
		limit: rate.Limit(perSecond),
		burst: capacity,
		idle:  10 * time.Minute,
		now:   time.Now,
	}
}

// Allow reports whether one token can be consumed for key.
func (l *Limiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.m[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.m[key] = b
	}
	b.seen = now
	if now.Sub(l.lastGC) > l.idle {
		l.sweep(now)
	}
	return b.lim.AllowN(now, 1)
}

// Keys reports how many buckets are tracked.
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

func (l *Limiter) sweep(now time.Time) {
	for k, b := range l.m {
		if now.Sub(b.seen) > l.idle {
			delete(l.m, k)
		}
	}
	l.lastGC = now
}

// Middleware rejects requests over the per-client budget with 429.
func Middleware(l *Limiter, log *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP()
			if l.Allow(key) {
				return next(c)
			}
			log.Warn("rate limited", applogger.String("client", key), applogger.String("route", c.Path()))
			return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
				"status":  http.StatusTooManyRequests,
				"message": "rate limit exceeded",
				"code":    "rate_limited",
			})
		}
	}
}
