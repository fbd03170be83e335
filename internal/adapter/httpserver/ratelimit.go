package httpserver

import (
	"math"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	apperrors "github.com/pscheid92/gigmarket/internal/platform/errors"
	"golang.org/x/time/rate"
)

const (
	idleVisitorExpiry = 5 * time.Minute
	maxRetryAfter     = 60
)

// newRateLimiter budgets API calls per client IP with a token bucket.
// Refusals become rate_limited errors carrying Retry-After, the time until
// the bucket refills one token.
func newRateLimiter(perSecond float64, burst int) echo.MiddlewareFunc {
	retryAfter := strconv.Itoa(retryAfterSeconds(perSecond))

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(perSecond),
			Burst:     burst,
			ExpiresIn: idleVisitorExpiry,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) { return c.RealIP(), nil },
		ErrorHandler: func(echo.Context, error) error {
			return apperrors.ValidationError("client address could not be determined")
		},
		DenyHandler: func(c echo.Context, ip string, _ error) error {
			c.Response().Header().Set("Retry-After", retryAfter)
			return apperrors.RateLimitedError("rate limit exceeded").WithField("retry_after", retryAfter)
		},
	})
}

func retryAfterSeconds(perSecond float64) int {
	if perSecond <= 0 {
		return maxRetryAfter
	}
	return min(max(int(math.Ceil(1/perSecond)), 1), maxRetryAfter)
}
