package middleware

import (
	"fmt"
	"math"
	"strconv"

	"github.com/labstack/echo/v4"

	"learnhub/internal/infrastructure/ratelimit"
	"learnhub/pkg/errors"
	"learnhub/pkg/logger"
	"learnhub/pkg/response"
)

// RateLimit throttles REST calls per authenticated user, or per client IP
// before authentication has run.
func RateLimit(limiter *ratelimit.RateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key, ok := c.Get(ContextUserID).(string)
			if !ok || key == "" {
				key = "ip:" + c.RealIP()
			}

			allowed, wait := limiter.Allow(key, ratelimit.ActionREST)
			if !allowed {
				retryAfter := int(math.Ceil(wait.Seconds()))
				logger.Warn("RATE LIMIT: %s %s blocked for %s (retry in %ds)", c.Request().Method, c.Path(), key, retryAfter)
				c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
				return response.Error(c, errors.TooManyRequests(fmt.Sprintf("rate limit exceeded, retry in %ds", retryAfter)))
			}

			return next(c)
		}
	}
}
