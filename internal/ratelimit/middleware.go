package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// ClientIdentifier resolves the caller identity for rate limiting.
// Proxy-supplied headers are preferred, then the fallback, then "anonymous".
func ClientIdentifier(c echo.Context, fallback string) string {
	if forwarded := c.Request().Header.Get("X-Forwarded-For"); forwarded != "" {
		if first, _, found := strings.Cut(forwarded, ","); found || first != "" {
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(c.Request().Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(c.Request().Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if fallback = strings.TrimSpace(fallback); fallback != "" {
		return fallback
	}
	return "anonymous"
}

// Middleware enforces the per-minute budget for one endpoint. On success the
// standard X-RateLimit headers are set; over budget the caller gets 429 with a
// retry_after payload.
func Middleware(limiter *Limiter, endpoint string, max int) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identifier := ClientIdentifier(c, c.RealIP())
			result := limiter.Check(c.Request().Context(), identifier, endpoint, max, DefaultWindow)

			header := c.Response().Header()
			header.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			header.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			header.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				retryAfter := result.RetryAfter(time.Now().UTC())
				header.Set("Retry-After", strconv.Itoa(retryAfter))
				return c.JSON(http.StatusTooManyRequests, map[string]any{
					"error":       "rate limit exceeded",
					"retry_after": retryAfter,
				})
			}
			return next(c)
		}
	}
}
