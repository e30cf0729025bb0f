package reservation

import (
	"errors"
	"net/url"

	"github.com/consult/consult/internal/domain/slot"
)

// State is the state of one visit of a reservation link.
type State string

const (
	StateUnverified   State = "Unverified"
	StateVerified     State = "Verified"
	StateInvalid      State = "Invalid"
	StateSlotSelected State = "SlotSelected"
	StateBooked       State = "Booked"
)

const (
	// InvalidMessage is shown for a link that cannot be verified.
	InvalidMessage = "예약 링크를 확인할 수 없습니다. (토큰 만료 또는 이미 사용됨)"
	// FailureFallback is shown when a booking fails without a server message.
	FailureFallback = "예약 실패"
	// CompletePath is the confirmation view of the booking app.
	CompletePath = "/public/complete"
)

var (
	ErrInvalidLink     = errors.New("reservation link is not valid")
	ErrNotVerified     = errors.New("reservation link has not been verified")
	ErrUnknownSlot     = errors.New("slot is not offered on the selected date")
	ErrSlotFull        = errors.New("slot is full")
	ErrSlotUnavailable = errors.New("slot is not open for booking")
	ErrNoSlotSelected  = errors.New("no slot selected")
	ErrAlreadyBooked   = errors.New("visit already booked")
	ErrSubmitInFlight  = errors.New("a booking for this link is already in flight")
	ErrNoBookingID     = errors.New("booking response carried no booking id")
)

// Applicant is the identity an applicant submits.
type Applicant struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone,omitempty"`
}

func (Applicant) ValidationMessages() map[string]string {
	return map[string]string{
		"name":           "이름을 입력하세요",
		"email.required": "이메일을 입력하세요",
		"email.email":    "이메일 형식이 올바르지 않습니다",
	}
}

// Verification is the answer to a token check: the counselor behind the
// link and the slots it offers.
type Verification struct {
	CounselorID string      `json:"counselorId,omitempty"`
	Slots       []slot.Slot `json:"slots"`
}

// BookingRequest is the upstream booking body.
type BookingRequest struct {
	Token  string `json:"token"`
	SlotID string `json:"slotId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Phone  string `json:"phone,omitempty"`
}

// Booked is a successful booking.
type Booked struct {
	BookingID string `json:"bookingId"`
	Message   string `json:"message,omitempty"`
}

// Confirmation is handed to the completion view through query parameters.
type Confirmation struct {
	BookingID string `json:"bookingId"`
	SlotDate  string `json:"slotDate"`
	SlotTime  string `json:"slotTime"`
}

// Query encodes the confirmation as query parameters.
func (c Confirmation) Query() url.Values {
	return url.Values{
		"bookingId": {c.BookingID},
		"slotDate":  {c.SlotDate},
		"slotTime":  {c.SlotTime},
	}
}

// Path returns the completion view URL carrying the confirmation.
func (c Confirmation) Path() string {
	return CompletePath + "?" + c.Query().Encode()
}

// ParseConfirmation reads a confirmation back from query parameters.
func ParseConfirmation(q url.Values) Confirmation {
	return Confirmation{
		BookingID: q.Get("bookingId"),
		SlotDate:  q.Get("slotDate"),
		SlotTime:  q.Get("slotTime"),
	}
}

// View is the snapshot of a visit rendered by the booking app.
type View struct {
	State        State               `json:"state"`
	Date         string              `json:"date,omitempty"`
	Slots        []slot.Availability `json:"slots,omitempty"`
	SelectedSlot string              `json:"selectedSlot,omitempty"`
	Message      string              `json:"message,omitempty"`
	Confirmation *Confirmation       `json:"confirmation,omitempty"`
}
