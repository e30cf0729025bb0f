package identity

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/consult/consult/internal/platform/apperr"
	"github.com/consult/consult/internal/platform/auth"
)

type Handler struct {
	svc    *Service
	cookie string
	secure bool
}

// NewHandler creates the sign-in handler. secure marks the session cookie
// HTTPS-only.
func NewHandler(svc *Service, cookie string, secure bool) *Handler {
	if cookie == "" {
		cookie = auth.DefaultCookie
	}
	return &Handler{svc: svc, cookie: cookie, secure: secure}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/login", h.Login)
	g.POST("/logout", h.Logout)
	g.GET("/me", h.Me)
}

func (h *Handler) Login(c echo.Context) error {
	var form LoginForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, apperr.Body{Message: "잘못된 요청입니다"})
	}
	sess, err := h.svc.Login(c.Request().Context(), form)
	if err != nil {
		return apperr.HTTP(err, "로그인 실패")
	}
	auth.SetCookie(c, h.cookie, sess.ID, sess.ExpiresAt, h.secure)
	return c.JSON(http.StatusOK, map[string]any{
		"message": "로그인 성공",
		"user":    sess.User,
	})
}

func (h *Handler) Logout(c echo.Context) error {
	h.svc.Logout(auth.SessionIDFrom(c))
	auth.ClearCookie(c, h.cookie)
	return c.JSON(http.StatusOK, apperr.Body{Message: "로그아웃되었습니다", Redirect: "/login"})
}

func (h *Handler) Me(c echo.Context) error {
	store, ok := auth.StoreFrom(c)
	if !ok {
		return apperr.HTTP(apperr.ErrUnauthorized, "로그인이 필요합니다")
	}
	user, ok := store.User()
	if !ok {
		return apperr.HTTP(apperr.ErrUnauthorized, "로그인이 필요합니다")
	}
	return c.JSON(http.StatusOK, map[string]any{"user": user, "expiresAt": store.ExpiresAt()})
}
