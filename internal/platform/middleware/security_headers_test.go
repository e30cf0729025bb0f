package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func serveWithHeaders(t *testing.T, hsts bool) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/public/reserve?token=abc", nil), rec)

	called := false
	err := SecurityHeaders(hsts)(func(c echo.Context) error {
		called = true
		return c.String(http.StatusOK, "ok")
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("expected handler to be called")
	}
	return rec
}

func TestSecurityHeaders_Base(t *testing.T) {
	rec := serveWithHeaders(t, false)

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
		"Referrer-Policy":         "no-referrer",
		"Cache-Control":           "no-store",
	}
	for header, v := range want {
		if got := rec.Header().Get(header); got != v {
			t.Errorf("header %s: got %q, want %q", header, got, v)
		}
	}
	if got := rec.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("HSTS must be off without TLS, got %q", got)
	}
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	rec := serveWithHeaders(t, true)
	if got := rec.Header().Get("Strict-Transport-Security"); got != hstsValue {
		t.Errorf("got %q, want %q", got, hstsValue)
	}
}
