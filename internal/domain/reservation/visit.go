package reservation

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/consult/consult/internal/domain/slot"
	"github.com/consult/consult/internal/platform/apperr"
	"github.com/consult/consult/internal/platform/validation"
	"github.com/consult/consult/pkg/kst"
)

// Gateway is what a visit needs from the booking backend.
type Gateway interface {
	Verify(ctx context.Context, token, date string) (*Verification, error)
	Book(ctx context.Context, req BookingRequest) (*Booked, error)
}

// Visit is one applicant's walk through a reservation link:
//
//	Unverified -> Verified | Invalid
//	Verified -> SlotSelected (pick a slot) | Verified (pick another date)
//	SlotSelected -> Booked | SlotSelected (failed submit)
//
// Invalid and Booked are terminal. A Visit is used by one goroutine at a
// time except for Submit, which refuses to run twice concurrently.
type Visit struct {
	gw         Gateway
	token      string
	date       string
	state      State
	slots      []slot.Slot
	selected   *slot.Slot
	message    string
	booked     *Booked
	submitting atomic.Bool
}

// NewVisit starts a visit of the link carrying token. An empty token is
// invalid without asking the server.
func NewVisit(gw Gateway, token string) *Visit {
	v := &Visit{gw: gw, token: strings.TrimSpace(token), state: StateUnverified}
	if v.token == "" {
		v.fail()
	}
	return v
}

func (v *Visit) State() State { return v.state }

func (v *Visit) Date() string { return v.date }

func (v *Visit) Message() string { return v.message }

// Slots returns the slots offered on the selected date.
func (v *Visit) Slots() []slot.Slot { return v.slots }

// Selected returns the chosen slot.
func (v *Visit) Selected() (slot.Slot, bool) {
	if v.selected == nil {
		return slot.Slot{}, false
	}
	return *v.selected, true
}

// Verify checks the token for the current date. Any failure makes the
// visit Invalid.
func (v *Visit) Verify(ctx context.Context) error {
	switch v.state {
	case StateInvalid:
		return ErrInvalidLink
	case StateBooked:
		return ErrAlreadyBooked
	}
	slots, err := v.fetch(ctx)
	if err != nil {
		return err
	}
	v.slots = slots
	v.selected = nil
	v.message = ""
	v.state = StateVerified
	return nil
}

// SelectDate switches the visit to date and re-verifies the token for it.
// Any previous slot choice is dropped.
func (v *Visit) SelectDate(ctx context.Context, date string) error {
	if date != "" && !kst.IsValidDate(date) {
		return apperr.Invalid("date", "YYYY-MM-DD 형식")
	}
	switch v.state {
	case StateInvalid:
		return ErrInvalidLink
	case StateBooked:
		return ErrAlreadyBooked
	}
	v.date = date
	return v.Verify(ctx)
}

// SelectSlot picks a slot among those offered. Full and closed slots are
// refused.
func (v *Visit) SelectSlot(id string) error {
	switch v.state {
	case StateVerified, StateSlotSelected:
	case StateBooked:
		return ErrAlreadyBooked
	default:
		return ErrNotVerified
	}
	s, ok := slot.Find(v.slots, id)
	if !ok {
		return ErrUnknownSlot
	}
	if s.IsFull() {
		return ErrSlotFull
	}
	if !s.Actionable() {
		return ErrSlotUnavailable
	}
	v.selected = &s
	v.message = ""
	v.state = StateSlotSelected
	return nil
}

// Submit books the selected slot for a. On failure the visit stays in
// SlotSelected with the message to show, and may be submitted again.
func (v *Visit) Submit(ctx context.Context, a Applicant) error {
	if err := validation.Struct(a); err != nil {
		return err
	}
	switch v.state {
	case StateSlotSelected:
	case StateBooked:
		return ErrAlreadyBooked
	case StateVerified:
		return ErrNoSlotSelected
	default:
		return ErrNotVerified
	}
	if !v.submitting.CompareAndSwap(false, true) {
		return ErrSubmitInFlight
	}
	defer v.submitting.Store(false)

	res, err := v.gw.Book(ctx, BookingRequest{
		Token:  v.token,
		SlotID: v.selected.ID,
		Email:  strings.TrimSpace(a.Email),
		Name:   strings.TrimSpace(a.Name),
		Phone:  strings.TrimSpace(a.Phone),
	})
	if err != nil {
		v.message = apperr.UserMessage(err, FailureFallback)
		return err
	}
	if res.BookingID == "" {
		msg := res.Message
		if msg == "" {
			msg = FailureFallback
		}
		v.message = msg
		return fmt.Errorf("%w: %w", ErrNoBookingID, &apperr.RequestRejected{Status: http.StatusBadGateway, Message: msg})
	}

	v.booked = res
	v.message = res.Message
	v.state = StateBooked
	return nil
}

// RefreshSlots reloads the offered slots without leaving the current state,
// so that a failed submit shows what the server holds now. The selection is
// kept when the slot is still offered.
func (v *Visit) RefreshSlots(ctx context.Context) error {
	if v.state != StateVerified && v.state != StateSlotSelected {
		return nil
	}
	message := v.message
	slots, err := v.fetch(ctx)
	if err != nil {
		return err
	}
	v.slots = slots
	if v.selected != nil {
		if s, ok := slot.Find(slots, v.selected.ID); ok {
			v.selected = &s
		}
	}
	v.message = message
	return nil
}

// Confirmation returns the parameters handed to the completion view.
func (v *Visit) Confirmation() (Confirmation, bool) {
	if v.state != StateBooked || v.booked == nil {
		return Confirmation{}, false
	}
	c := Confirmation{BookingID: v.booked.BookingID}
	if v.selected != nil {
		c.SlotDate = kst.Date(v.selected.StartAt)
		c.SlotTime = kst.Window(v.selected.StartAt, v.selected.EndAt)
	}
	return c, true
}

// View renders the visit. An invalid visit shows only its message.
func (v *Visit) View() View {
	view := View{State: v.state, Message: v.message}
	if v.state == StateInvalid {
		return view
	}
	view.Date = v.date
	view.Slots = slot.Annotate(v.slots)
	if v.selected != nil {
		view.SelectedSlot = v.selected.ID
	}
	if c, ok := v.Confirmation(); ok {
		view.Confirmation = &c
	}
	return view
}

func (v *Visit) fetch(ctx context.Context) ([]slot.Slot, error) {
	res, err := v.gw.Verify(ctx, v.token, v.date)
	if err != nil {
		v.fail()
		return nil, fmt.Errorf("%w: %w", ErrInvalidLink, err)
	}
	slots := res.Slots
	if v.date != "" {
		slots = slot.FilterByDate(slots, v.date)
	}
	return slots, nil
}

func (v *Visit) fail() {
	v.state = StateInvalid
	v.slots = nil
	v.selected = nil
	v.message = InvalidMessage
}
