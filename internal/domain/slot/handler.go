package slot

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/consult/consult/internal/platform/apperr"
	"github.com/consult/consult/pkg/kst"
	"github.com/consult/consult/pkg/pagination"
)

// ConfirmPrompt is returned when a delete arrives without confirmation.
const ConfirmPrompt = "삭제하시겠습니까?"

type Handler struct {
	svc *Service
	now func() time.Time
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, now: time.Now}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/slots", h.ListSlots)
	g.GET("/slots/new", h.NewSlotForm)
	g.GET("/slots/:id/edit", h.EditSlotForm)
	g.POST("/slots", h.CreateSlot)
	g.PATCH("/slots/:id", h.UpdateSlot)
	g.DELETE("/slots/:id", h.DeleteSlot)
}

// RosterResponse is one page of the roster of a date.
type RosterResponse struct {
	Date string `json:"date"`
	pagination.Page[Availability]
}

// EditorResponse describes the editor state after it was opened.
type EditorResponse struct {
	Mode   EditorMode `json:"mode"`
	Form   Form       `json:"form"`
	Target *Slot      `json:"target,omitempty"`
}

// dateFilter returns the date query parameter, defaulting to today in KST.
func (h *Handler) dateFilter(c echo.Context) (string, error) {
	date := c.QueryParam("date")
	if date == "" {
		return kst.Today(h.now()), nil
	}
	if !kst.IsValidDate(date) {
		return "", apperr.Invalid("date", "YYYY-MM-DD 형식")
	}
	return date, nil
}

func (h *Handler) ListSlots(c echo.Context) error {
	date, err := h.dateFilter(c)
	if err != nil {
		return apperr.HTTP(err, "잘못된 날짜입니다")
	}
	roster, err := h.svc.Roster(c.Request().Context(), date)
	if err != nil {
		return apperr.HTTP(err, "슬롯을 불러오지 못했습니다")
	}
	return c.JSON(http.StatusOK, RosterResponse{Date: date, Page: pagination.Of(c, roster)})
}

func (h *Handler) NewSlotForm(c echo.Context) error {
	date, err := h.dateFilter(c)
	if err != nil {
		return apperr.HTTP(err, "잘못된 날짜입니다")
	}
	ed := NewEditor(h.svc)
	form := ed.OpenCreate(date)
	return c.JSON(http.StatusOK, EditorResponse{Mode: ed.Mode(), Form: form})
}

func (h *Handler) EditSlotForm(c echo.Context) error {
	ed, err := h.editorFor(c)
	if err != nil {
		return err
	}
	target, _ := ed.Target()
	return c.JSON(http.StatusOK, EditorResponse{Mode: ed.Mode(), Form: ed.Form(), Target: &target})
}

func (h *Handler) CreateSlot(c echo.Context) error {
	var form Form
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, apperr.Body{Message: "잘못된 요청입니다"})
	}
	ed := NewEditor(h.svc)
	ed.OpenCreate(form.Date)
	created, err := ed.Submit(c.Request().Context(), form)
	if err != nil {
		return apperr.HTTP(err, "슬롯 생성 실패")
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) UpdateSlot(c echo.Context) error {
	var form Form
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, apperr.Body{Message: "잘못된 요청입니다"})
	}
	ed, err := h.editorFor(c)
	if err != nil {
		return err
	}
	updated, err := ed.Submit(c.Request().Context(), form)
	if err != nil {
		return apperr.HTTP(err, "슬롯 수정 실패")
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) DeleteSlot(c echo.Context) error {
	confirmed := c.QueryParam("confirm") == "true"
	err := h.svc.Delete(c.Request().Context(), c.Param("id"), confirmed)
	if errors.Is(err, ErrNotConfirmed) {
		return echo.NewHTTPError(http.StatusPreconditionRequired, apperr.Body{Message: ConfirmPrompt})
	}
	if err != nil {
		return apperr.HTTP(err, "슬롯 삭제 실패")
	}
	return c.NoContent(http.StatusNoContent)
}

// editorFor opens an editor on the slot named by the id path parameter.
func (h *Handler) editorFor(c echo.Context) (*Editor, error) {
	target, ok, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return nil, apperr.HTTP(err, "슬롯을 불러오지 못했습니다")
	}
	if !ok {
		return nil, apperr.HTTP(apperr.ErrNotFound, "슬롯을 찾을 수 없습니다")
	}
	ed := NewEditor(h.svc)
	ed.OpenEdit(target)
	return ed, nil
}
