package auth

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/consult/consult/internal/platform/apiclient"
	"github.com/consult/consult/internal/platform/apperr"
	"github.com/consult/consult/internal/platform/querycache"
)

// DefaultCookie is the name of the admin session cookie.
const DefaultCookie = "consult_session"

const (
	storeKey     = "auth_store"
	sessionIDKey = "session_id"
)

// RequireSession resolves the session cookie to an auth store. Requests
// without a live session get 401 with a redirect to the login page. The
// store is attached to the request context as the credentials of upstream
// admin calls, and the session id scopes the query cache so nothing fetched
// with one admin's token is served to another.
func RequireSession(reg *Registry, cookieName string) echo.MiddlewareFunc {
	if cookieName == "" {
		cookieName = DefaultCookie
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if Skipper(c) {
				return next(c)
			}

			cookie, err := c.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				return apperr.HTTP(apperr.ErrUnauthorized, "로그인이 필요합니다")
			}

			ctx := c.Request().Context()
			store, ok, err := reg.Lookup(ctx, cookie.Value)
			if err != nil {
				return apperr.HTTP(err, "세션을 확인할 수 없습니다")
			}
			if !ok {
				ClearCookie(c, cookieName)
				return apperr.HTTP(apperr.ErrUnauthorized, "로그인이 필요합니다")
			}

			c.Set(storeKey, store)
			c.Set(sessionIDKey, cookie.Value)
			ctx = apiclient.WithCredentials(ctx, store)
			ctx = querycache.WithScope(ctx, cookie.Value)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// StoreFrom returns the auth store resolved by RequireSession.
func StoreFrom(c echo.Context) (*Store, bool) {
	s, ok := c.Get(storeKey).(*Store)
	return s, ok
}

// SessionIDFrom returns the session id resolved by RequireSession.
func SessionIDFrom(c echo.Context) string {
	id, _ := c.Get(sessionIDKey).(string)
	return id
}

// SetCookie writes the session cookie.
func SetCookie(c echo.Context, name, id string, expires time.Time, secure bool) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	if !expires.IsZero() {
		cookie.Expires = expires
	}
	c.SetCookie(cookie)
}

// ClearCookie expires the session cookie.
func ClearCookie(c echo.Context, name string) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}
