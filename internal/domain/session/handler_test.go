package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/consult/consult/internal/platform/apiclient"
	"github.com/consult/consult/internal/platform/apiclient/apitest"
	"github.com/consult/consult/internal/platform/querycache"
)

type staticCreds string

func (s staticCreds) AccessToken() string { return string(s) }
func (s staticCreds) Invalidate(string)   {}

func newTestHandler(t *testing.T) (*Handler, *apitest.Server, context.Context) {
	t.Helper()
	srv := apitest.New(t)
	h := NewHandler(NewService(NewAPIRepo(srv.Client()), querycache.New(0), zerolog.Nop()))
	ctx := apiclient.WithCredentials(context.Background(), staticCreds(srv.IssueAccessToken("admin@example.com")))
	return h, srv, ctx
}

func call(t *testing.T, fn echo.HandlerFunc, ctx context.Context, method, bookingID, body string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, "/sessions/"+bookingID, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, "/sessions/"+bookingID, nil)
	}
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req.WithContext(ctx), rec)
	c.SetParamNames("bookingId")
	c.SetParamValues(bookingID)
	return rec, fn(c)
}

func TestHandler_SessionLifecycle(t *testing.T) {
	h, srv, ctx := newTestHandler(t)
	sl := srv.AddSlot(apitest.Slot{StartAt: apitest.KST("2026-02-11", "09:00")})
	b := srv.AddBooking(sl.ID, apitest.Booking{Applicant: apitest.Applicant{Name: "홍길동", Email: "a@b.com"}})

	rec, err := call(t, h.GetSession, ctx, http.MethodGet, b.ID, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var view View
	json.Unmarshal(rec.Body.Bytes(), &view)
	if view.State != StateNoSession {
		t.Fatalf("expected NoSession, got %+v", view)
	}

	rec, err = call(t, h.SaveSession, ctx, http.MethodPost, b.ID, `{"notes":"첫 상담","outcome":"COMPLETED"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	json.Unmarshal(rec.Body.Bytes(), &view)
	if view.State != StateHasSession || view.Content != "첫 상담" {
		t.Errorf("unexpected view %+v", view)
	}
	if n := srv.Calls(http.MethodGet, "/admin/bookings/"+b.ID+"/session"); n != 2 {
		t.Errorf("expected a re-read after save, got %d reads", n)
	}

	_, err = call(t, h.SaveSession, ctx, http.MethodPost, b.ID, `{"notes":"또"}`)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %v", err)
	}
	if n := srv.Calls(http.MethodPost, "/admin/bookings/"); n != 1 {
		t.Errorf("expected one upstream save, got %d", n)
	}
}

func TestHandler_SaveSession_UnknownBooking(t *testing.T) {
	h, _, ctx := newTestHandler(t)
	_, err := call(t, h.SaveSession, ctx, http.MethodPost, "missing", `{"notes":"x"}`)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestHandler_SaveSession_InvalidOutcome(t *testing.T) {
	h, srv, ctx := newTestHandler(t)
	_, err := call(t, h.SaveSession, ctx, http.MethodPost, "b1", `{"outcome":"MAYBE"}`)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
	if n := srv.Calls(http.MethodPost, "/admin/bookings/"); n != 0 {
		t.Errorf("invalid outcome must not reach upstream, got %d calls", n)
	}
}
