package middleware

import (
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// KeyedLimiter keeps one token bucket per key (client IP by default).
type KeyedLimiter struct {
	mu     sync.Mutex
	perSec rate.Limit
	burst  int
	m      map[string]*rate.Limiter
}

func NewKeyedLimiter(perSec float64, burst int) *KeyedLimiter {
	if burst < 1 {
		burst = 1
	}
	return &KeyedLimiter{perSec: rate.Limit(perSec), burst: burst, m: make(map[string]*rate.Limiter)}
}

// Allow consumes one token for key.
func (l *KeyedLimiter) Allow(key string) bool {
	l.mu.Lock()
	lim, ok := l.m[key]
	if !ok {
		lim = rate.NewLimiter(l.perSec, l.burst)
		l.m[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// RateLimit rejects requests over the per-client budget with 429.
func RateLimit(l *KeyedLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.Allow(c.RealIP()) {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"status":  http.StatusTooManyRequests,
					"message": http.StatusText(http.StatusTooManyRequests),
				})
			}
			return next(c)
		}
	}
}
