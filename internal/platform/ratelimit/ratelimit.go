package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	metrics "github.com/corvusHold/certify/internal/metrics"
)

// Policy defines a simple fixed-window rate limit.
// Limit requests within Window per derived key.
type Policy struct {
	// Name is a short identifier for the limited endpoint, used for logging/metrics (e.g. "certificates:generate").
	Name   string
	Window time.Duration
	Limit  int
	// Key builds the bucket key for this request.
	Key func(echo.Context) string
	// Source labels the key kind in metrics ("ip", "key").
	Source string
}

// Store abstracts a shared counter store for fixed-window limiting.
// Implementations must increment and check atomically.
type Store interface {
	// Allow increments the counter for the key in the given window and reports whether the request is allowed.
	// If not allowed, retryAfterSec is the number of whole seconds until the window resets, at least 1.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, retryAfterSec int, err error)
}

// Middleware enforces p against s. Store errors fail open.
func Middleware(p Policy, s Store, log zerolog.Logger) echo.MiddlewareFunc {
	if p.Window <= 0 {
		p.Window = time.Second
	}
	if p.Limit <= 0 {
		p.Limit = 10
	}
	if p.Source == "" {
		p.Source = "ip"
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := "global"
			if p.Key != nil {
				key = p.Key(c)
			}
			allowed, retryAfter, err := s.Allow(c.Request().Context(), key, p.Limit, p.Window)
			if err != nil {
				log.Warn().Err(err).Str("endpoint", p.Name).Msg("rate limit store unavailable; allowing request")
				return next(c)
			}
			if allowed {
				return next(c)
			}
			if retryAfter < 1 {
				retryAfter = 1
			}
			metrics.IncRateLimitExceeded(p.Name, p.Source)
			log.Warn().
				Str("endpoint", p.Name).
				Str("key", key).
				Int("limit", p.Limit).
				Dur("window", p.Window).
				Int("retry_after", retryAfter).
				Msg("rate limit exceeded")
			c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
			return c.JSON(http.StatusTooManyRequests, map[string]any{
				"error":       "rate limit exceeded",
				"retry_after": retryAfter,
			})
		}
	}
}

// KeyIP buckets requests by client IP under prefix.
func KeyIP(prefix string) func(echo.Context) string {
	return func(c echo.Context) string {
		return prefix + ":ip:" + c.RealIP()
	}
}

// retryAfterSeconds rounds the remaining window up to whole seconds, minimum 1.
func retryAfterSeconds(remaining time.Duration) int {
	secs := int((remaining + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
