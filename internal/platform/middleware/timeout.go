package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/consult/consult/internal/platform/apperr"
)

// TimeoutMessage is shown when the backend API did not answer in time.
const TimeoutMessage = "요청 처리 시간이 초과되었습니다"

// RequestTimeout bounds each request with a context deadline. Upstream calls
// made with the request context are cancelled when it passes, and whatever
// error the handler then returns is reported as 504. A non-positive timeout
// disables the deadline.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if timeout <= 0 {
			return next
		}
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if err == nil || !errors.Is(ctx.Err(), context.DeadlineExceeded) || c.Response().Committed {
				return err
			}
			return &echo.HTTPError{
				Code:     http.StatusGatewayTimeout,
				Message:  apperr.Body{Message: TimeoutMessage},
				Internal: err,
			}
		}
	}
}
