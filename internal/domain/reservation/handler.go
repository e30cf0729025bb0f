package reservation

import (
	"errors"
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
	g.GET("/reserve", h.Show)
	g.POST("/reserve", h.Reserve)
	g.GET("/complete", h.Complete)
}

// Response is a visit view plus the failure details of the request.
type Response struct {
	View
	Fields   map[string]string `json:"fields,omitempty"`
	Redirect string            `json:"redirect,omitempty"`
}

// ReserveInput is the booking form of the public app.
type ReserveInput struct {
	Token  string `json:"token"`
	Date   string `json:"date"`
	SlotID string `json:"slotId"`
	Applicant
}

func (h *Handler) date(d string) string {
	if d == "" {
		return kst.Today(h.now())
	}
	return d
}

// Show verifies the link for a date and lists the slots of that date.
func (h *Handler) Show(c echo.Context) error {
	v := NewVisit(h.svc, c.QueryParam("token"))
	if v.State() == StateInvalid {
		return c.JSON(http.StatusGone, Response{View: v.View()})
	}
	err := v.SelectDate(c.Request().Context(), h.date(c.QueryParam("date")))
	return h.respond(c, v, err, http.StatusOK)
}

// Reserve walks a visit through verify, slot selection and submission.
func (h *Handler) Reserve(c echo.Context) error {
	var in ReserveInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, apperr.Body{Message: "잘못된 요청입니다"})
	}
	ctx := c.Request().Context()

	v := NewVisit(h.svc, in.Token)
	if v.State() == StateInvalid {
		return c.JSON(http.StatusGone, Response{View: v.View()})
	}
	if err := v.SelectDate(ctx, h.date(in.Date)); err != nil {
		return h.respond(c, v, err, http.StatusOK)
	}
	if err := v.SelectSlot(in.SlotID); err != nil {
		return h.respond(c, v, err, http.StatusOK)
	}

	if err := v.Submit(ctx, in.Applicant); err != nil {
		var verr *apperr.ValidationError
		if !errors.As(err, &verr) && !errors.Is(err, ErrSubmitInFlight) {
			// The seat counts are no longer trusted after a failed booking.
			_ = v.RefreshSlots(ctx)
		}
		return h.respond(c, v, err, http.StatusOK)
	}

	conf, _ := v.Confirmation()
	h.svc.NotifyBooked(ctx, in.Applicant, conf)
	return c.JSON(http.StatusCreated, Response{View: v.View(), Redirect: conf.Path()})
}

// CompletionView is the confirmation page.
type CompletionView struct {
	Message   string `json:"message"`
	BookingID string `json:"bookingId"`
	SlotDate  string `json:"slotDate"`
	SlotTime  string `json:"slotTime"`
}

// Complete renders the parameters handed off by a successful booking.
func (h *Handler) Complete(c echo.Context) error {
	conf := ParseConfirmation(c.QueryParams())
	view := CompletionView{
		Message:   "예약이 완료되었습니다",
		BookingID: conf.BookingID,
		SlotDate:  conf.SlotDate,
		SlotTime:  conf.SlotTime,
	}
	if view.BookingID == "" {
		view.BookingID = "-"
	}
	return c.JSON(http.StatusOK, view)
}

// respond renders the visit with the status matching err.
func (h *Handler) respond(c echo.Context, v *Visit, err error, okStatus int) error {
	resp := Response{View: v.View()}
	if err == nil {
		return c.JSON(okStatus, resp)
	}

	status := apperr.Status(err)
	switch {
	case v.State() == StateInvalid:
		status = http.StatusGone
	case errors.Is(err, ErrSubmitInFlight):
		status = http.StatusConflict
		resp.Message = "예약을 처리하고 있습니다. 잠시 후 다시 시도하세요."
	case errors.Is(err, ErrSlotFull):
		status = http.StatusConflict
		resp.Message = "마감된 시간입니다"
	case errors.Is(err, ErrSlotUnavailable):
		status = http.StatusConflict
		resp.Message = "예약할 수 없는 시간입니다"
	case errors.Is(err, ErrUnknownSlot), errors.Is(err, ErrNoSlotSelected):
		status = http.StatusBadRequest
		resp.Message = "예약할 시간을 선택하세요"
	case errors.Is(err, ErrAlreadyBooked):
		status = http.StatusConflict
	}

	var verr *apperr.ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
		resp.Message = verr.Summary()
	}
	if resp.Message == "" {
		resp.Message = apperr.UserMessage(err, FailureFallback)
	}
	return c.JSON(status, resp)
}
