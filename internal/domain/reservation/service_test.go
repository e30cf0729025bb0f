package reservation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/consult/consult/internal/platform/apperr"
	"github.com/consult/consult/internal/platform/notification"
	"github.com/consult/consult/internal/platform/querycache"
)

type mockRepo struct {
	gw      *fakeGateway
	started chan struct{}
}

func (m *mockRepo) Verify(ctx context.Context, token, date string) (*Verification, error) {
	return m.gw.Verify(ctx, token, date)
}

func (m *mockRepo) Book(ctx context.Context, req BookingRequest) (*Booked, error) {
	if m.started != nil {
		m.started <- struct{}{}
	}
	return m.gw.Book(ctx, req)
}

func newTestService(repo Repository, mailer *notification.Manager) *Service {
	return NewService(repo, querycache.New(time.Minute), mailer, zerolog.Nop())
}

func TestService_VerifyIsCached(t *testing.T) {
	gw := &fakeGateway{slots: scenarioSlots()}
	svc := newTestService(&mockRepo{gw: gw}, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Verify(ctx, "abc", "2026-02-11"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	svc.Verify(ctx, "abc", "2026-02-12")
	if len(gw.verifies) != 2 {
		t.Errorf("expected one upstream verify per date, got %d", len(gw.verifies))
	}
}

func TestService_BookInvalidatesToken(t *testing.T) {
	gw := &fakeGateway{slots: scenarioSlots()}
	svc := newTestService(&mockRepo{gw: gw}, nil)
	ctx := context.Background()

	svc.Verify(ctx, "abc", "2026-02-11")
	svc.Verify(ctx, "other", "2026-02-11")
	if _, err := svc.Book(ctx, BookingRequest{Token: "abc", SlotID: "s1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := querycache.Peek[*Verification](context.Background(), svc.cache, VerifyKey("abc", "2026-02-11")); ok {
		t.Error("verify result of the booked token must be dropped")
	}
	if _, ok := querycache.Peek[*Verification](context.Background(), svc.cache, VerifyKey("other", "2026-02-11")); !ok {
		t.Error("other tokens must keep their cached results")
	}
}

func TestService_FailedBookInvalidatesToken(t *testing.T) {
	gw := &fakeGateway{slots: scenarioSlots(), bookErr: &apperr.RequestRejected{Status: 409, Message: "정원이 마감되었습니다"}}
	svc := newTestService(&mockRepo{gw: gw}, nil)
	ctx := context.Background()

	svc.Verify(ctx, "abc", "2026-02-11")
	if _, err := svc.Book(ctx, BookingRequest{Token: "abc", SlotID: "s1"}); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := querycache.Peek[*Verification](context.Background(), svc.cache, VerifyKey("abc", "2026-02-11")); ok {
		t.Error("seat counts must be refetched after a failed booking")
	}
}

func TestService_BookInFlightPerToken(t *testing.T) {
	gw := &fakeGateway{slots: scenarioSlots(), block: make(chan struct{})}
	repo := &mockRepo{gw: gw, started: make(chan struct{}, 1)}
	svc := newTestService(repo, nil)
	ctx := context.Background()

	done := make(chan error)
	go func() {
		_, err := svc.Book(ctx, BookingRequest{Token: "abc", SlotID: "s1"})
		done <- err
	}()
	<-repo.started

	if _, err := svc.Book(ctx, BookingRequest{Token: "abc", SlotID: "s1"}); !errors.Is(err, ErrSubmitInFlight) {
		t.Errorf("expected ErrSubmitInFlight, got %v", err)
	}

	close(gw.block)
	if err := <-done; err != nil {
		t.Fatalf("first booking failed: %v", err)
	}
	if _, err := svc.Book(ctx, BookingRequest{Token: "abc", SlotID: "s1"}); err != nil {
		t.Errorf("guard must be released after completion, got %v", err)
	}
}

func TestService_NotifyBooked(t *testing.T) {
	sender := &notification.MockEmailSender{}
	svc := newTestService(&mockRepo{gw: &fakeGateway{}}, notification.NewManager(sender, nil, zerolog.Nop()))

	svc.NotifyBooked(context.Background(), Applicant{Name: "홍길동", Email: "a@b.com"},
		Confirmation{BookingID: "bk-1", SlotDate: "2026-02-11", SlotTime: "09:00 ~ 09:30"})

	calls := sender.Calls()
	if len(calls) != 1 || calls[0].To != "a@b.com" {
		t.Fatalf("unexpected calls %+v", calls)
	}
}

func TestService_NotifyBookedFailureIsSwallowed(t *testing.T) {
	sender := &notification.MockEmailSender{ShouldFail: true, FailError: "smtp down"}
	svc := newTestService(&mockRepo{gw: &fakeGateway{}}, notification.NewManager(sender, nil, zerolog.Nop()))
	svc.NotifyBooked(context.Background(), Applicant{Name: "홍길동", Email: "a@b.com"}, Confirmation{BookingID: "bk-1"})

	// No mailer configured.
	newTestService(&mockRepo{gw: &fakeGateway{}}, nil).
		NotifyBooked(context.Background(), Applicant{Email: "a@b.com"}, Confirmation{})
}
