package session

import (
	"errors"
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
	g.GET("/sessions/:bookingId", h.GetSession)
	g.POST("/sessions/:bookingId", h.SaveSession)
}

func (h *Handler) GetSession(c echo.Context) error {
	view, err := h.svc.Get(c.Request().Context(), c.Param("bookingId"))
	if err != nil {
		return apperr.HTTP(err, "상담 기록을 불러오지 못했습니다")
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) SaveSession(c echo.Context) error {
	var in SaveInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, apperr.Body{Message: "잘못된 요청입니다"})
	}
	view, err := h.svc.Save(c.Request().Context(), c.Param("bookingId"), in)
	if errors.Is(err, ErrSessionExists) {
		return echo.NewHTTPError(http.StatusConflict, apperr.Body{Message: "이미 상담 기록이 있습니다"})
	}
	if err != nil {
		return apperr.HTTP(err, "상담 기록 저장 실패")
	}
	return c.JSON(http.StatusCreated, view)
}
