package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carevault/carevault/internal/platform/auth"
)

func TestLoggerIncludesActingPrincipal(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	e.Use(RequestID())
	e.Use(Logger(zerolog.New(&buf)))
	e.GET("/ping", func(c echo.Context) error {
		ctx := context.WithValue(c.Request().Context(), auth.UserIDKey, "d-42")
		ctx = context.WithValue(ctx, auth.UserRoleKey, "doctor")
		c.SetRequest(c.Request().WithContext(ctx))
		return c.String(http.StatusOK, "pong")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	line := buf.String()
	if !strings.Contains(line, `"actor_id":"d-42"`) {
		t.Errorf("log line missing actor: %s", line)
	}
	if !strings.Contains(line, `"actor_role":"doctor"`) {
		t.Errorf("log line missing role: %s", line)
	}
	if !strings.Contains(line, `"request_id"`) {
		t.Errorf("log line missing request id: %s", line)
	}
}

func TestLoggerOmitsActorWhenAnonymous(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	e.Use(Logger(zerolog.New(&buf)))
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if strings.Contains(buf.String(), "actor_id") {
		t.Errorf("anonymous request logged an actor: %s", buf.String())
	}
}

func TestRecoveryConvertsPanicToInternalError(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	e.Use(Recovery(zerolog.New(&buf)))
	e.GET("/boom", func(c echo.Context) error {
		panic("kaput")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "kaput") {
		t.Error("panic detail leaked into the response body")
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Errorf("panic not logged: %s", buf.String())
	}
}

func TestRequestIDPreservedAndEchoed(t *testing.T) {
	e := echo.New()
	e.Use(RequestID())
	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "given-id")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != "given-id" {
		t.Errorf("response request id = %q, want the caller's id echoed back", got)
	}
}
