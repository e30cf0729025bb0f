package reservation

import (
	"context"
	"errors"
	"testing"

	"github.com/consult/consult/internal/domain/slot"
	"github.com/consult/consult/internal/platform/apperr"
)

type fakeGateway struct {
	slots     []slot.Slot
	verifyErr error
	bookErr   error
	booked    *Booked
	verifies  []string
	requests  []BookingRequest
	block     chan struct{}
}

func (f *fakeGateway) Verify(_ context.Context, token, date string) (*Verification, error) {
	f.verifies = append(f.verifies, date)
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return &Verification{CounselorID: "c1", Slots: f.slots}, nil
}

func (f *fakeGateway) Book(_ context.Context, req BookingRequest) (*Booked, error) {
	if f.block != nil {
		<-f.block
	}
	f.requests = append(f.requests, req)
	if f.bookErr != nil {
		return nil, f.bookErr
	}
	if f.booked != nil {
		return f.booked, nil
	}
	return &Booked{BookingID: "bk-1", Message: "예약이 완료되었습니다"}, nil
}

func scenarioSlots() []slot.Slot {
	return []slot.Slot{
		{ID: "s1", StartAt: "2026-02-11T09:00:00+09:00", EndAt: "2026-02-11T09:30:00+09:00", Capacity: 3, BookedCount: 2, Status: slot.StatusOpen},
		{ID: "s2", StartAt: "2026-02-11T09:30:00+09:00", EndAt: "2026-02-11T10:00:00+09:00", Capacity: 3, BookedCount: 3, Status: slot.StatusOpen},
		{ID: "s3", StartAt: "2026-02-12T09:00:00+09:00", EndAt: "2026-02-12T09:30:00+09:00", Capacity: 3, Status: slot.StatusOpen},
	}
}

func TestVisit_EmptyTokenIsInvalid(t *testing.T) {
	gw := &fakeGateway{}
	v := NewVisit(gw, "  ")
	if v.State() != StateInvalid || v.Message() != InvalidMessage {
		t.Fatalf("expected Invalid, got %s %q", v.State(), v.Message())
	}
	if err := v.Verify(context.Background()); !errors.Is(err, ErrInvalidLink) {
		t.Errorf("expected ErrInvalidLink, got %v", err)
	}
	if len(gw.verifies) != 0 {
		t.Error("empty token must not reach the server")
	}
}

func TestVisit_HappyPath(t *testing.T) {
	gw := &fakeGateway{slots: scenarioSlots()}
	v := NewVisit(gw, "abc")
	ctx := context.Background()

	if err := v.SelectDate(ctx, "2026-02-11"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.State() != StateVerified {
		t.Fatalf("expected Verified, got %s", v.State())
	}
	if len(v.Slots()) != 2 {
		t.Fatalf("expected client-side refilter to 2 slots, got %d", len(v.Slots()))
	}

	view := v.View()
	if view.Slots[0].Full || !view.Slots[1].Full || view.Slots[1].Actionable {
		t.Errorf("expected second slot to render full, got %+v", view.Slots)
	}

	if err := v.SelectSlot("s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := v.Submit(ctx, Applicant{Name: "홍길동", Email: "a@b.com"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.State() != StateBooked {
		t.Fatalf("expected Booked, got %s", v.State())
	}
	if req := gw.requests[0]; req.Token != "abc" || req.SlotID != "s1" || req.Phone != "" {
		t.Errorf("unexpected booking request %+v", req)
	}

	conf, ok := v.Confirmation()
	if !ok {
		t.Fatal("expected confirmation")
	}
	want := Confirmation{BookingID: "bk-1", SlotDate: "2026-02-11", SlotTime: "09:00 ~ 09:30"}
	if conf != want {
		t.Errorf("confirmation = %+v, want %+v", conf, want)
	}
}

func TestVisit_SelectFullSlotRefused(t *testing.T) {
	v := NewVisit(&fakeGateway{slots: scenarioSlots()}, "abc")
	v.SelectDate(context.Background(), "2026-02-11")

	if err := v.SelectSlot("s2"); !errors.Is(err, ErrSlotFull) {
		t.Fatalf("expected ErrSlotFull, got %v", err)
	}
	if v.State() != StateVerified {
		t.Errorf("refused selection must not change state, got %s", v.State())
	}
	if err := v.SelectSlot("s3"); !errors.Is(err, ErrUnknownSlot) {
		t.Errorf("slot of another date must be unknown, got %v", err)
	}
}

func TestVisit_SelectClosedSlotRefused(t *testing.T) {
	slots := []slot.Slot{{ID: "x", StartAt: "2026-02-11T09:00:00+09:00", Capacity: 3, Status: "CLOSED"}}
	v := NewVisit(&fakeGateway{slots: slots}, "abc")
	v.SelectDate(context.Background(), "2026-02-11")
	if err := v.SelectSlot("x"); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
}

func TestVisit_SelectSlotBeforeVerify(t *testing.T) {
	v := NewVisit(&fakeGateway{slots: scenarioSlots()}, "abc")
	if err := v.SelectSlot("s1"); !errors.Is(err, ErrNotVerified) {
		t.Fatalf("expected ErrNotVerified, got %v", err)
	}
}

func TestVisit_VerifyFailureIsTerminal(t *testing.T) {
	gw := &fakeGateway{verifyErr: &apperr.RequestRejected{Status: 410, Message: "유효하지 않은 링크입니다"}}
	v := NewVisit(gw, "expired")

	err := v.SelectDate(context.Background(), "2026-02-11")
	if !errors.Is(err, ErrInvalidLink) {
		t.Fatalf("expected ErrInvalidLink, got %v", err)
	}
	if v.State() != StateInvalid || v.Message() != InvalidMessage {
		t.Errorf("expected Invalid with fixed message, got %s %q", v.State(), v.Message())
	}
	if view := v.View(); view.Slots != nil || view.Date != "" {
		t.Errorf("invalid view must not offer a form, got %+v", view)
	}

	gw.verifyErr = nil
	if err := v.SelectDate(context.Background(), "2026-02-12"); !errors.Is(err, ErrInvalidLink) {
		t.Errorf("Invalid must be terminal, got %v", err)
	}
	if len(gw.verifies) != 1 {
		t.Errorf("no retry expected, got %d verifies", len(gw.verifies))
	}
}

func TestVisit_TransportFailureIsInvalid(t *testing.T) {
	v := NewVisit(&fakeGateway{verifyErr: &apperr.TransportFailure{Status: 503}}, "abc")
	v.Verify(context.Background())
	if v.State() != StateInvalid {
		t.Errorf("expected Invalid, got %s", v.State())
	}
}

func TestVisit_SelectDateDropsSelection(t *testing.T) {
	v := NewVisit(&fakeGateway{slots: scenarioSlots()}, "abc")
	ctx := context.Background()
	v.SelectDate(ctx, "2026-02-11")
	v.SelectSlot("s1")

	if err := v.SelectDate(ctx, "2026-02-12"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.State() != StateVerified {
		t.Errorf("expected Verified, got %s", v.State())
	}
	if _, ok := v.Selected(); ok {
		t.Error("selection must be dropped on date change")
	}
	if len(v.Slots()) != 1 || v.Slots()[0].ID != "s3" {
		t.Errorf("unexpected slots %+v", v.Slots())
	}
}

func TestVisit_SelectDateValidates(t *testing.T) {
	gw := &fakeGateway{}
	v := NewVisit(gw, "abc")
	err := v.SelectDate(context.Background(), "02/11/2026")
	var verr *apperr.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if v.State() != StateUnverified || len(gw.verifies) != 0 {
		t.Error("invalid date must not verify")
	}
}

func TestVisit_SubmitValidatesApplicantFirst(t *testing.T) {
	gw := &fakeGateway{slots: scenarioSlots()}
	v := NewVisit(gw, "abc")
	v.SelectDate(context.Background(), "2026-02-11")
	v.SelectSlot("s1")

	err := v.Submit(context.Background(), Applicant{Name: "", Email: "nope"})
	var verr *apperr.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Fields["name"] != "이름을 입력하세요" || verr.Fields["email"] != "이메일 형식이 올바르지 않습니다" {
		t.Errorf("unexpected field messages %+v", verr.Fields)
	}
	if len(gw.requests) != 0 {
		t.Error("invalid applicant must not reach the server")
	}
	if v.State() != StateSlotSelected {
		t.Errorf("expected SlotSelected, got %s", v.State())
	}
}

func TestVisit_SubmitFailureAllowsRetry(t *testing.T) {
	gw := &fakeGateway{
		slots:   scenarioSlots(),
		bookErr: &apperr.RequestRejected{Status: 409, Message: "정원이 마감되었습니다"},
	}
	v := NewVisit(gw, "abc")
	ctx := context.Background()
	v.SelectDate(ctx, "2026-02-11")
	v.SelectSlot("s1")

	if err := v.Submit(ctx, Applicant{Name: "홍길동", Email: "a@b.com"}); err == nil {
		t.Fatal("expected error")
	}
	if v.State() != StateSlotSelected || v.Message() != "정원이 마감되었습니다" {
		t.Errorf("expected SlotSelected with server message, got %s %q", v.State(), v.Message())
	}

	gw.bookErr = &apperr.TransportFailure{}
	v.Submit(ctx, Applicant{Name: "홍길동", Email: "a@b.com"})
	if v.Message() != FailureFallback {
		t.Errorf("expected fallback message, got %q", v.Message())
	}

	gw.bookErr = nil
	if err := v.Submit(ctx, Applicant{Name: "홍길동", Email: "a@b.com"}); err != nil {
		t.Fatalf("retry should succeed: %v", err)
	}
	if v.State() != StateBooked || len(gw.requests) != 3 {
		t.Errorf("expected Booked after 3 attempts, got %s after %d", v.State(), len(gw.requests))
	}
}

func TestVisit_SuccessWithoutBookingIDIsFailure(t *testing.T) {
	gw := &fakeGateway{slots: scenarioSlots(), booked: &Booked{Message: "처리되었습니다"}}
	v := NewVisit(gw, "abc")
	ctx := context.Background()
	v.SelectDate(ctx, "2026-02-11")
	v.SelectSlot("s1")

	err := v.Submit(ctx, Applicant{Name: "홍길동", Email: "a@b.com"})
	if !errors.Is(err, ErrNoBookingID) {
		t.Fatalf("expected ErrNoBookingID, got %v", err)
	}
	if v.State() != StateSlotSelected || v.Message() != "처리되었습니다" {
		t.Errorf("unexpected state %s %q", v.State(), v.Message())
	}
	if _, ok := v.Confirmation(); ok {
		t.Error("no confirmation without booking id")
	}
}

func TestVisit_SubmitInFlight(t *testing.T) {
	gw := &fakeGateway{slots: scenarioSlots(), block: make(chan struct{})}
	v := NewVisit(gw, "abc")
	ctx := context.Background()
	v.SelectDate(ctx, "2026-02-11")
	v.SelectSlot("s1")

	done := make(chan error)
	go func() { done <- v.Submit(ctx, Applicant{Name: "홍길동", Email: "a@b.com"}) }()

	// Wait until the first submission holds the guard.
	for !v.submitting.Load() {
	}
	if err := v.Submit(ctx, Applicant{Name: "홍길동", Email: "a@b.com"}); !errors.Is(err, ErrSubmitInFlight) {
		t.Errorf("expected ErrSubmitInFlight, got %v", err)
	}
	close(gw.block)
	if err := <-done; err != nil {
		t.Fatalf("first submission failed: %v", err)
	}
}

func TestVisit_BookedIsTerminal(t *testing.T) {
	v := NewVisit(&fakeGateway{slots: scenarioSlots()}, "abc")
	ctx := context.Background()
	v.SelectDate(ctx, "2026-02-11")
	v.SelectSlot("s1")
	v.Submit(ctx, Applicant{Name: "홍길동", Email: "a@b.com"})

	if err := v.SelectSlot("s1"); !errors.Is(err, ErrAlreadyBooked) {
		t.Errorf("expected ErrAlreadyBooked, got %v", err)
	}
	if err := v.Submit(ctx, Applicant{Name: "홍길동", Email: "a@b.com"}); !errors.Is(err, ErrAlreadyBooked) {
		t.Errorf("expected ErrAlreadyBooked, got %v", err)
	}
	if err := v.SelectDate(ctx, "2026-02-12"); !errors.Is(err, ErrAlreadyBooked) {
		t.Errorf("expected ErrAlreadyBooked, got %v", err)
	}
}

func TestVisit_RefreshSlotsKeepsSelection(t *testing.T) {
	gw := &fakeGateway{slots: scenarioSlots()}
	v := NewVisit(gw, "abc")
	ctx := context.Background()
	v.SelectDate(ctx, "2026-02-11")
	v.SelectSlot("s1")

	gw.slots = scenarioSlots()
	gw.slots[0].BookedCount = 3
	if err := v.RefreshSlots(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sel, ok := v.Selected()
	if !ok || !sel.IsFull() {
		t.Errorf("expected refreshed selection to be full, got %+v", sel)
	}
	if v.State() != StateSlotSelected {
		t.Errorf("expected SlotSelected, got %s", v.State())
	}
}

func TestConfirmation_QueryRoundTrip(t *testing.T) {
	c := Confirmation{BookingID: "bk-1", SlotDate: "2026-02-11", SlotTime: "09:00 ~ 09:30"}
	if got := ParseConfirmation(c.Query()); got != c {
		t.Errorf("round trip = %+v, want %+v", got, c)
	}
	if p := c.Path(); p != "/public/complete?bookingId=bk-1&slotDate=2026-02-11&slotTime=09%3A00+~+09%3A30" {
		t.Errorf("unexpected path %q", p)
	}
}
