package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/consult/consult/internal/platform/apperr"
)

// InternalErrorMessage is all a client learns about a panic.
const InternalErrorMessage = "일시적인 오류가 발생했습니다"

// Recovery turns a panicking handler into a 500 and logs the stack.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				buf := make([]byte, 4<<10)
				buf = buf[:runtime.Stack(buf, false)]
				rid, _ := c.Get("request_id").(string)

				logger.Error().
					Str("request_id", rid).
					Str("method", c.Request().Method).
					Str("route", c.Path()).
					Str("panic", fmt.Sprint(r)).
					Bytes("stack", buf).
					Msg("handler panicked")

				err = &echo.HTTPError{
					Code:     http.StatusInternalServerError,
					Message:  apperr.Body{Message: InternalErrorMessage},
					Internal: fmt.Errorf("panic: %v", r),
				}
			}()
			return next(c)
		}
	}
}
