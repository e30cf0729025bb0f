package booking

import (
	"github.com/consult/consult/internal/domain/slot"
	"github.com/consult/consult/pkg/kst"
)

type Applicant struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// Booking is one applicant's claim on a slot.
type Booking struct {
	ID        string    `json:"id"`
	Applicant Applicant `json:"applicant"`
	CreatedAt string    `json:"createdAt"`
}

// View is a booking as shown in the admin bookings table.
type View struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	CreatedAt   string `json:"createdAt"`
	SessionLink string `json:"sessionLink"`
}

// SessionLink returns the admin path of the session of a booking.
func SessionLink(bookingID string) string {
	return "/sessions/" + bookingID
}

// NewView renders b for display. Timestamps are shown in KST.
func NewView(b Booking) View {
	phone := b.Applicant.Phone
	if phone == "" {
		phone = "-"
	}
	return View{
		ID:          b.ID,
		Name:        b.Applicant.Name,
		Email:       b.Applicant.Email,
		Phone:       phone,
		CreatedAt:   kst.FormatString(b.CreatedAt, kst.LayoutDateTime),
		SessionLink: SessionLink(b.ID),
	}
}

// SlotBookings is one slot of a day together with its bookings.
type SlotBookings struct {
	Slot     slot.Availability `json:"slot"`
	Bookings []View            `json:"bookings"`
}
