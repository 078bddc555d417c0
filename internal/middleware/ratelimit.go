package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/skorenev/marketplace/internal/logging"
)

// RateLimit is a fixed-window counter per client IP and route, backed by
// Redis so the limit holds across instances. When Redis is down the limiter
// degrades open: auth availability beats throttling.
func RateLimit(rdb *redis.Client, window time.Duration, max int) echo.MiddlewareFunc {
	if rdb == nil || max <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error { return next(c) }
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			key := fmt.Sprintf("rl:%s:%s %s", c.RealIP(), c.Request().Method, c.Path())

			count, err := rdb.Incr(ctx, key).Result()
			if err != nil {
				logging.FromContext(ctx).Warn("ratelimit_redis_error", "error", err)
				return next(c)
			}
			if count == 1 {
				rdb.Expire(ctx, key, window)
			}

			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(max))
			remaining := int64(max) - count
			if remaining < 0 {
				remaining = 0
			}
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if count > int64(max) {
				ttl, _ := rdb.TTL(ctx, key).Result()
				if ttl > 0 {
					c.Response().Header().Set("Retry-After", strconv.Itoa(int(ttl/time.Second)+1))
				}
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"success": false,
					"error": echo.Map{
						"code":    "RATE_LIMITED",
						"message": "too many requests",
					},
				})
			}
			return next(c)
		}
	}
}
