package middleware

import (
	"net/http"
	"time"

	"github.com/cr4all/supportservices/limiter"
	"github.com/labstack/echo/v4"
)

type RateLimitConfig struct {
	Limit  int
	Window time.Duration
	// KeyFunc defaults to the client IP.
	KeyFunc func(c echo.Context) string
}

// NewRateLimitMiddleware answers 429 once a key has spent its budget.
// Limiter errors let the request through so a Redis outage does not take
// the chat down with it.
func NewRateLimitMiddleware(manager *limiter.Manager, config RateLimitConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := ""
			if config.KeyFunc != nil {
				key = config.KeyFunc(c)
			}
			if key == "" {
				key = c.RealIP()
			}

			allowed, err := manager.Allow(c.Request().Context(), key, config.Limit, config.Window)
			if err != nil {
				c.Logger().Errorf("Rate limit redis error: %v", err)
				return next(c)
			}
			if !allowed {
				return c.JSON(http.StatusTooManyRequests, map[string]string{
					"error": "Too many requests",
				})
			}
			return next(c)
		}
	}
}

// RouteKey scopes the client IP to the matched route, so each limited
// endpoint gets its own budget.
func RouteKey(c echo.Context) string {
	return c.Request().Method + ":" + c.Path() + ":" + c.RealIP()
}
