package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

var testSecret = []byte("test-secret")

func authedHandler(t *testing.T) echo.HandlerFunc {
	t.Helper()
	return func(c echo.Context) error {
		sub, ok := SubjectFromContext(c.Request().Context())
		if !ok {
			t.Errorf("subject missing from request context")
		}
		if got, _ := c.Get("subject").(string); got != sub {
			t.Errorf("echo context subject %q differs from request context %q", got, sub)
		}
		return c.String(http.StatusOK, sub)
	}
}

func runAuth(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	err := AuthMiddleware(testSecret)(authedHandler(t))(c)
	if err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestAuthMiddlewareBearerToken(t *testing.T) {
	tok, err := SignToken("alice", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := runAuth(t, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "alice" {
		t.Fatalf("subject not propagated, got %q", rec.Body.String())
	}
}

func TestAuthMiddlewareCookieToken(t *testing.T) {
	tok, err := SignToken("bob", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "auth", Value: tok})
	rec := runAuth(t, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthMiddlewareMissingToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := runAuth(t, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthMiddlewareWrongSecret(t *testing.T) {
	tok, err := SignToken("alice", []byte("other-secret"), time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := runAuth(t, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthMiddlewareExpiredToken(t *testing.T) {
	tok, err := SignToken("alice", testSecret, -time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := runAuth(t, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthMiddlewareGarbageToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not.a.jwt")
	rec := runAuth(t, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
