package booking

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/consult/consult/internal/platform/apperr"
	"github.com/consult/consult/pkg/kst"
)

type Handler struct {
	svc *Service
	now func() time.Time
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, now: time.Now}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/bookings", h.DayRoster)
	g.GET("/slots/:id/bookings", h.ListBySlot)
}

// DayResponse is the bookings view of one date.
type DayResponse struct {
	Date  string         `json:"date"`
	Slots []SlotBookings `json:"slots"`
}

func (h *Handler) DayRoster(c echo.Context) error {
	date := c.QueryParam("date")
	if date == "" {
		date = kst.Today(h.now())
	}
	if !kst.IsValidDate(date) {
		return apperr.HTTP(apperr.Invalid("date", "YYYY-MM-DD 형식"), "잘못된 날짜입니다")
	}
	slots, err := h.svc.DayRoster(c.Request().Context(), date)
	if err != nil {
		return apperr.HTTP(err, "예약 목록을 불러오지 못했습니다")
	}
	return c.JSON(http.StatusOK, DayResponse{Date: date, Slots: slots})
}

func (h *Handler) ListBySlot(c echo.Context) error {
	views, err := h.svc.Views(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.HTTP(err, "예약 목록을 불러오지 못했습니다")
	}
	return c.JSON(http.StatusOK, views)
}
