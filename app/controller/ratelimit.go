package controller

import (
	"net/http"
	"time"

	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
	"github.com/labstack/echo/v4"
)

// WebhookRateLimit throttles callbacks per source IP and provider code. A non-positive rate disables it.
func WebhookRateLimit(requestsPerSecond float64, burst int, onLimited func(echo.Context)) echo.MiddlewareFunc {
	if requestsPerSecond <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	lmt := tollbooth.NewLimiter(requestsPerSecond, &limiter.ExpirableOptions{
		DefaultExpirationTTL: time.Hour,
	})
	if burst > 0 {
		lmt.SetBurst(burst)
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if httpError := tollbooth.LimitByKeys(lmt, []string{ctx.RealIP(), ctx.Param("provider")}); httpError != nil {
				if onLimited != nil {
					onLimited(ctx)
				}
				return writeError(ctx, http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(ctx)
		}
	}
}
