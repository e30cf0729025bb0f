package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/consult/consult/internal/platform/apperr"
	"github.com/consult/consult/internal/platform/querycache"
)

type mockSessionRepo struct {
	sessions map[string]*Session
	gets     int
	saves    []SaveBody
	conflict bool
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{sessions: make(map[string]*Session)}
}

func (m *mockSessionRepo) Get(_ context.Context, bookingID string) (*Session, error) {
	m.gets++
	s, ok := m.sessions[bookingID]
	if !ok {
		return nil, fmt.Errorf("get session of booking %s: %w", bookingID, apperr.ErrNotFound)
	}
	return s, nil
}

func (m *mockSessionRepo) Save(_ context.Context, bookingID string, body SaveBody) (*Session, error) {
	m.saves = append(m.saves, body)
	if m.conflict {
		m.sessions[bookingID] = &Session{ID: "other", BookingID: bookingID, Outcome: OutcomeNoShow}
		return nil, &apperr.RequestRejected{Status: 409, Message: "이미 상담 기록이 있습니다"}
	}
	notes := Notes{}
	for k, v := range body.Notes {
		notes[k] = v
	}
	s := &Session{ID: "sess-" + bookingID, BookingID: bookingID, Notes: notes, Outcome: body.Outcome}
	m.sessions[bookingID] = s
	return s, nil
}

func newTestService(repo Repository) *Service {
	return NewService(repo, querycache.New(0), zerolog.Nop())
}

func TestService_GetNotFoundIsAValue(t *testing.T) {
	repo := newMockSessionRepo()
	svc := newTestService(repo)

	view, err := svc.Get(context.Background(), "b1")
	if err != nil {
		t.Fatalf("NotFound must not be an error, got %v", err)
	}
	if view.State != StateNoSession || view.Session != nil {
		t.Errorf("expected NoSession view, got %+v", view)
	}

	svc.Get(context.Background(), "b1")
	if repo.gets != 1 {
		t.Errorf("NotFound must be cached and not retried, got %d gets", repo.gets)
	}
}

func TestService_SaveThenGet(t *testing.T) {
	repo := newMockSessionRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	if _, err := svc.Get(ctx, "b1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	view, err := svc.Save(ctx, "b1", SaveInput{Notes: "진로 상담", Outcome: OutcomeFollowUp})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.State != StateHasSession || view.Content != "진로 상담" || view.Session.Outcome != OutcomeFollowUp {
		t.Errorf("unexpected view after save %+v", view)
	}

	again, err := svc.Get(ctx, "b1")
	if err != nil || again.State != StateHasSession {
		t.Fatalf("expected HasSession after save, got %+v %v", again, err)
	}

	_, err = svc.Save(ctx, "b1", SaveInput{Notes: "두번째"})
	if !errors.Is(err, ErrSessionExists) {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}
	if len(repo.saves) != 1 {
		t.Errorf("second save must not reach upstream, got %d saves", len(repo.saves))
	}
}

func TestService_SaveDefaultsOutcome(t *testing.T) {
	repo := newMockSessionRepo()
	svc := newTestService(repo)

	if _, err := svc.Save(context.Background(), "b1", SaveInput{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.saves[0].Outcome != OutcomeCompleted || len(repo.saves[0].Notes) != 0 {
		t.Errorf("unexpected wire body %+v", repo.saves[0])
	}
}

func TestService_SaveRejectsUnknownOutcome(t *testing.T) {
	repo := newMockSessionRepo()
	svc := newTestService(repo)

	_, err := svc.Save(context.Background(), "b1", SaveInput{Outcome: "DONE"})
	var verr *apperr.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(repo.saves) != 0 {
		t.Error("invalid input must not reach upstream")
	}
}

func TestService_SaveConflictRefreshesView(t *testing.T) {
	repo := newMockSessionRepo()
	repo.conflict = true
	svc := newTestService(repo)
	ctx := context.Background()

	if _, err := svc.Save(ctx, "b1", SaveInput{Notes: "x"}); err == nil {
		t.Fatal("expected conflict error")
	}
	view, err := svc.Get(ctx, "b1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.State != StateHasSession {
		t.Errorf("expected the concurrent record to show up, got %+v", view)
	}
}

func TestService_TransportErrorIsNotCached(t *testing.T) {
	svc := newTestService(failingRepo{})
	_, err := svc.Get(context.Background(), "b1")
	var tf *apperr.TransportFailure
	if !errors.As(err, &tf) {
		t.Fatalf("expected TransportFailure, got %v", err)
	}
}

type failingRepo struct{}

func (failingRepo) Get(context.Context, string) (*Session, error) {
	return nil, &apperr.TransportFailure{Status: 502}
}

func (failingRepo) Save(context.Context, string, SaveBody) (*Session, error) {
	return nil, &apperr.TransportFailure{Status: 502}
}
