package emaillink

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/consult/consult/internal/platform/apperr"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/email-links", h.CreateLink)
}

func (h *Handler) CreateLink(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, apperr.Body{Message: "잘못된 요청입니다"})
	}
	link, err := h.svc.Create(c.Request().Context(), in)
	if err != nil {
		return apperr.HTTP(err, "링크 생성 실패")
	}
	return c.JSON(http.StatusCreated, link)
}
