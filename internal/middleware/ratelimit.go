package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/octobees/leadgen/internal/config"
)

// RunRateLimiter applies a token bucket per caller to run submissions. The
// caller is the token subject when authenticated, else the client IP.
func RunRateLimiter(cfg config.RateLimitConfig) echo.MiddlewareFunc {
	if cfg.Requests <= 0 || cfg.Interval <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				return next(c)
			}
		}
	}

	perRequest := cfg.Interval / time.Duration(cfg.Requests)
	if perRequest <= 0 {
		perRequest = time.Second
	}

	var (
		mu       sync.Mutex
		limiters = make(map[string]*rate.Limiter)
	)
	limiterFor := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		limiter, ok := limiters[key]
		if !ok {
			limiter = rate.NewLimiter(rate.Every(perRequest), cfg.Requests)
			limiters[key] = limiter
		}
		return limiter
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := SubjectFromContext(c)
			if key == "" {
				key = c.RealIP()
			}

			if !limiterFor(key).Allow() {
				c.Response().Header().Set("Retry-After", retryAfter(perRequest))
				return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "run rate limit exceeded"})
			}

			return next(c)
		}
	}
}

func retryAfter(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
