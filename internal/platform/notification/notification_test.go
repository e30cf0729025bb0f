package notification

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func TestTemplateEngine_RegisterOverridesBuiltIn(t *testing.T) {
	eng := NewTemplateEngine()
	eng.RegisterTemplate(Template{
		ID:      TemplateBookingReceived,
		Subject: "[{{booking_id}}] 예약 확인",
		Body:    "{{name}}님 {{slot_date}}",
	})

	subject, body, err := eng.Render(TemplateBookingReceived, map[string]string{
		"booking_id": "bk-1",
		"name":       "홍길동",
		"slot_date":  "2026-02-11",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "[bk-1] 예약 확인" || body != "홍길동님 2026-02-11" {
		t.Errorf("got %q / %q", subject, body)
	}
}

func TestTemplateEngine_UnknownTemplate(t *testing.T) {
	if _, _, err := NewTemplateEngine().Render("nonexistent", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestTemplateEngine_ReservationLink(t *testing.T) {
	_, body, err := NewTemplateEngine().Render(TemplateReservationLink, map[string]string{
		"name_suffix": " 홍길동님",
		"link":        "https://booking.example.com/public/reserve?token=abc",
		"expires_at":  "2026-02-14 09:00:00 KST",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(body, "token=abc") || !strings.HasPrefix(body, "안녕하세요 홍길동님.") {
		t.Errorf("unexpected body %q", body)
	}
	if strings.Contains(body, "{{") {
		t.Errorf("body has unrendered placeholders: %q", body)
	}
}

func TestTemplateEngine_UnfilledPlaceholdersRemain(t *testing.T) {
	_, body, err := NewTemplateEngine().Render(TemplateBookingReceived, map[string]string{"name": "홍길동"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(body, "{{booking_id}}") {
		t.Errorf("expected placeholder to remain, got %q", body)
	}
}

func TestManager_SendFromTemplate(t *testing.T) {
	sender := &MockEmailSender{}
	mgr := NewManager(sender, nil, zerolog.Nop())

	n, err := mgr.SendFromTemplate(context.Background(), TemplateReservationLink, map[string]string{"link": "L"}, "a@b.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Status != StatusSent || n.SentAt == nil || n.Attempts != 1 {
		t.Errorf("expected one successful attempt, got %+v", n)
	}
	calls := sender.Calls()
	if len(calls) != 1 || calls[0].To != "a@b.com" || calls[0].Subject != "상담 예약 링크 안내" {
		t.Fatalf("unexpected calls %+v", calls)
	}
	if got, ok := mgr.Get(n.ID); !ok || got != n {
		t.Error("expected notification to be recorded")
	}
}

func TestManager_RetryFailedDelivery(t *testing.T) {
	sender := &MockEmailSender{ShouldFail: true, FailError: "smtp down"}
	mgr := NewManager(sender, nil, zerolog.Nop())

	n, err := mgr.SendFromTemplate(context.Background(), TemplateReservationLink, nil, "a@b.com")
	if err == nil {
		t.Fatal("expected error")
	}
	if n == nil || n.Status != StatusFailed || n.Error != "smtp down" {
		t.Fatalf("unexpected notification %+v", n)
	}

	sender.ShouldFail = false
	if err := mgr.Retry(context.Background(), n.ID); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if n.Status != StatusSent || n.Error != "" || n.Attempts != 2 {
		t.Errorf("expected sent on second attempt, got %+v", n)
	}
	if err := mgr.Retry(context.Background(), n.ID); err == nil {
		t.Error("resending delivered mail must fail")
	}
	if err := mgr.Retry(context.Background(), "missing"); err == nil {
		t.Error("expected error for unknown notification")
	}
}

func TestManager_UnknownTemplateSendsNothing(t *testing.T) {
	sender := &MockEmailSender{}
	mgr := NewManager(sender, nil, zerolog.Nop())
	n, err := mgr.SendFromTemplate(context.Background(), "nope", nil, "a@b.com")
	if err == nil || n != nil {
		t.Fatalf("expected render error, got %v %+v", err, n)
	}
	if len(sender.Calls()) != 0 {
		t.Error("nothing should be sent")
	}
}

func TestManager_LogEvictsOldest(t *testing.T) {
	mgr := NewManager(&MockEmailSender{}, nil, zerolog.Nop())
	mgr.limit = 2

	first, _ := mgr.SendFromTemplate(context.Background(), TemplateBookingReceived, nil, "a@b.com")
	second, _ := mgr.SendFromTemplate(context.Background(), TemplateBookingReceived, nil, "b@b.com")
	third, _ := mgr.SendFromTemplate(context.Background(), TemplateBookingReceived, nil, "c@b.com")

	if _, ok := mgr.Get(first.ID); ok {
		t.Error("oldest delivery should be evicted")
	}
	for _, n := range []*Notification{second, third} {
		if _, ok := mgr.Get(n.ID); !ok {
			t.Errorf("expected %s to be kept", n.Recipient)
		}
	}
}

func TestManager_ConcurrentSends(t *testing.T) {
	sender := &MockEmailSender{}
	mgr := NewManager(sender, nil, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mgr.SendFromTemplate(context.Background(), TemplateReservationLink, nil, "a@b.com")
		}()
	}
	wg.Wait()
	if len(sender.Calls()) != 20 {
		t.Errorf("expected 20 calls, got %d", len(sender.Calls()))
	}
}

func TestSMTPSender_Message(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 587, User: "noreply@example.com"})
	m := s.Message("a@b.com", "제목", "본문")
	if got := m.GetHeader("From"); len(got) != 1 || got[0] != "noreply@example.com" {
		t.Errorf("From should default to the SMTP user, got %v", got)
	}
	if got := m.GetHeader("To"); len(got) != 1 || got[0] != "a@b.com" {
		t.Errorf("unexpected To %v", got)
	}
}

func TestSMTPSender_CancelledContext(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "smtp.invalid", Port: 25})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.SendEmail(ctx, "a@b.com", "s", "b"); err == nil {
		t.Fatal("expected context error")
	}
}

func TestLogSender(t *testing.T) {
	if err := (LogSender{Logger: zerolog.Nop()}).SendEmail(context.Background(), "a@b.com", "s", "b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
