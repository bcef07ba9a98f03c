package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medappt/scheduler/internal/platform/apperr"
)

// RequestTimeout bounds every request with a context deadline. Handlers pass
// the request context down to storage, so an expired deadline aborts the
// in-flight query and surfaces as a transient error.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if err == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
				return echo.NewHTTPError(http.StatusServiceUnavailable, apperr.Body{
					Code:      apperr.KindTransient.String(),
					Message:   "request processing exceeded the allowed time limit",
					Retryable: true,
				})
			}
			return err
		}
	}
}
