package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/consult/consult/internal/config"
	"github.com/consult/consult/internal/platform/apiclient/apitest"
	"github.com/consult/consult/internal/platform/auth"
	"github.com/consult/consult/internal/platform/notification"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:              "test",
		PublicBookingURL: "http://booking.test",
		CORSOrigins:      []string{"http://admin.test"},
		SessionCookie:    auth.DefaultCookie,
		SessionTTL:       time.Hour,
		CacheTTL:         time.Minute,
		RequestTimeout:   5 * time.Second,
		RateLimitRPS:     100,
		RateLimitBurst:   100,
		LinkExpiresHours: 72,
	}
}

func serveTest(e *echo.Echo, method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := rootCmd()
	for _, name := range []string{"admin", "booking", "migrate"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("expected %q subcommand, got %v", name, err)
		}
	}
	for _, name := range []string{"up", "status"} {
		if cmd, _, err := root.Find([]string{"migrate", name}); err != nil || cmd.Name() != name {
			t.Errorf("expected migrate %q subcommand, got %v", name, err)
		}
	}
}

func TestAdminServer_PublicAndProtectedRoutes(t *testing.T) {
	srv := apitest.New(t)
	registry := auth.NewRegistry(nil, time.Hour, zerolog.Nop())
	mailer := notification.NewManager(&notification.MockEmailSender{}, nil, zerolog.Nop())
	e := newAdminServer(testConfig(), zerolog.Nop(), srv.Client(), registry, nil, mailer)

	if rec := serveTest(e, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health: expected 200, got %d", rec.Code)
	}
	rec := serveTest(e, http.MethodGet, "/health/db", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "disabled") {
		t.Errorf("health/db: expected disabled, got %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}

	for _, target := range []string{"/slots", "/bookings", "/me", "/sessions/b1"} {
		rec := serveTest(e, http.MethodGet, target, "")
		if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Body.String(), `"redirect":"/login"`) {
			t.Errorf("%s: expected 401 with redirect, got %d %s", target, rec.Code, rec.Body.String())
		}
	}
}

func TestAdminServer_CachedRosterIsPerSession(t *testing.T) {
	srv := apitest.New(t)
	srv.AddUser("admin@example.com", "secret", "관리자")
	srv.AddSlot(apitest.Slot{StartAt: apitest.KST("2026-02-11", "09:00")})

	registry := auth.NewRegistry(nil, time.Hour, zerolog.Nop())
	mailer := notification.NewManager(&notification.MockEmailSender{}, nil, zerolog.Nop())
	e := newAdminServer(testConfig(), zerolog.Nop(), srv.Client(), registry, nil, mailer)

	rec := serveTest(e, http.MethodPost, "/login", `{"email":"admin@example.com","password":"secret"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	adminA := rec.Result().Cookies()[0]
	if rec := serveTest(e, http.MethodGet, "/slots?date=2026-02-11", "", adminA); rec.Code != http.StatusOK {
		t.Fatalf("admin a: expected 200, got %d", rec.Code)
	}

	// A second session whose token the API no longer accepts.
	idB, _, err := registry.Create(context.Background(), "revoked-token", auth.User{Email: "b@example.com"}, time.Time{})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	adminB := &http.Cookie{Name: auth.DefaultCookie, Value: idB}

	listed := srv.Calls(http.MethodGet, "/admin/slots")
	rec = serveTest(e, http.MethodGet, "/slots?date=2026-02-11", "", adminB)
	if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Body.String(), `"redirect":"/login"`) {
		t.Fatalf("admin b: expected 401 with redirect, got %d %s", rec.Code, rec.Body.String())
	}
	if srv.Calls(http.MethodGet, "/admin/slots") != listed+1 {
		t.Error("admin b must reach the API with its own token")
	}
	if _, ok, _ := registry.Lookup(context.Background(), idB); ok {
		t.Error("the rejected session must be logged out")
	}

	if rec := serveTest(e, http.MethodGet, "/slots?date=2026-02-11", "", adminA); rec.Code != http.StatusOK {
		t.Fatalf("admin a after b's logout: expected 200, got %d", rec.Code)
	}
	if srv.Calls(http.MethodGet, "/admin/slots") != listed+1 {
		t.Error("admin a should still be served from its own cache")
	}
}

func TestAdminServer_LoginThenListSlots(t *testing.T) {
	srv := apitest.New(t)
	srv.AddUser("admin@example.com", "secret", "관리자")
	srv.AddSlot(apitest.Slot{StartAt: apitest.KST("2026-02-11", "09:00")})

	registry := auth.NewRegistry(nil, time.Hour, zerolog.Nop())
	mailer := notification.NewManager(&notification.MockEmailSender{}, nil, zerolog.Nop())
	e := newAdminServer(testConfig(), zerolog.Nop(), srv.Client(), registry, nil, mailer)

	rec := serveTest(e, http.MethodPost, "/login", `{"email":"admin@example.com","password":"secret"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("expected session cookie")
	}

	rec = serveTest(e, http.MethodGet, "/slots?date=2026-02-11", "", cookies[0])
	if rec.Code != http.StatusOK {
		t.Fatalf("slots: expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "09:00") {
		t.Errorf("expected the slot in the roster, got %s", rec.Body.String())
	}
}

func TestBookingServer_Routes(t *testing.T) {
	srv := apitest.New(t)
	mailer := notification.NewManager(&notification.MockEmailSender{}, nil, zerolog.Nop())
	e := newBookingServer(testConfig(), zerolog.Nop(), srv.Client(), mailer)

	if rec := serveTest(e, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health: expected 200, got %d", rec.Code)
	}
	rec := serveTest(e, http.MethodGet, "/public/reserve?token=missing", "")
	if rec.Code != http.StatusGone {
		t.Errorf("expected 410 for an unknown token, got %d", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "100" {
		t.Error("public routes should be rate limited")
	}
	if rec.Header().Get("Referrer-Policy") != "no-referrer" {
		t.Error("expected security headers")
	}
}

func TestNewMailSender(t *testing.T) {
	cfg := testConfig()
	if _, ok := newMailSender(cfg, zerolog.Nop()).(notification.LogSender); !ok {
		t.Error("expected LogSender without a transport")
	}

	cfg.SMTPHost = "smtp.example.com"
	cfg.SMTPPort = 587
	if _, ok := newMailSender(cfg, zerolog.Nop()).(*notification.SMTPSender); !ok {
		t.Error("expected SMTPSender")
	}

	cfg.SendGridAPIKey = "SG.key"
	cfg.MailFrom = "noreply@example.com"
	if _, ok := newMailSender(cfg, zerolog.Nop()).(*notification.SendGridSender); !ok {
		t.Error("expected SendGridSender")
	}
}
