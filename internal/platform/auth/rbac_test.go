package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func ctxWith(req *http.Request, userID, role, approval string) *http.Request {
	ctx := req.Context()
	ctx = context.WithValue(ctx, UserIDKey, userID)
	ctx = context.WithValue(ctx, UserRoleKey, role)
	ctx = context.WithValue(ctx, ApprovalStatusKey, approval)
	return req.WithContext(ctx)
}

func runMiddleware(t *testing.T, mw echo.MiddlewareFunc, req *http.Request) (int, error) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	handler := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	err := handler(c)
	if err != nil {
		if he, ok := err.(*echo.HTTPError); ok {
			return he.Code, err
		}
		return 0, err
	}
	return rec.Code, nil
}

func TestRequireRoleAllowsMatch(t *testing.T) {
	req := ctxWith(httptest.NewRequest(http.MethodGet, "/", nil), "u1", "doctor", "approved")
	code, err := runMiddleware(t, RequireRole("doctor"), req)
	if err != nil || code != http.StatusOK {
		t.Fatalf("code = %d, err = %v; want 200", code, err)
	}
}

func TestRequireRoleRejectsOther(t *testing.T) {
	req := ctxWith(httptest.NewRequest(http.MethodGet, "/", nil), "u1", "patient", "approved")
	code, err := runMiddleware(t, RequireRole("doctor"), req)
	if err == nil || code != http.StatusForbidden {
		t.Fatalf("code = %d, err = %v; want 403", code, err)
	}
}

func TestRequireRoleAdminBypass(t *testing.T) {
	req := ctxWith(httptest.NewRequest(http.MethodGet, "/", nil), "u1", "admin", "approved")
	code, err := runMiddleware(t, RequireRole("doctor"), req)
	if err != nil || code != http.StatusOK {
		t.Fatalf("code = %d, err = %v; want 200 for admin bypass", code, err)
	}
}

func TestRequireApprovedBlocksPending(t *testing.T) {
	req := ctxWith(httptest.NewRequest(http.MethodGet, "/", nil), "u1", "doctor", "pending")
	code, err := runMiddleware(t, RequireApproved(), req)
	if err == nil || code != http.StatusForbidden {
		t.Fatalf("code = %d, err = %v; want 403 for pending account", code, err)
	}
}

func TestJWTMiddlewareRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("secret", "carevault", time.Hour)
	tok, err := issuer.Issue("user-1", "patient", "approved", time.Now())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var gotID, gotRole string
	handler := JWTMiddleware(issuer)(func(c echo.Context) error {
		gotID = UserIDFromContext(c.Request().Context())
		gotRole = RoleFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if gotID != "user-1" || gotRole != "patient" {
		t.Errorf("principal = %s/%s, want user-1/patient", gotID, gotRole)
	}
}

func TestJWTMiddlewareRejectsMissingAndMalformed(t *testing.T) {
	issuer := NewTokenIssuer("secret", "carevault", time.Hour)
	mw := JWTMiddleware(issuer)

	for _, header := range []string{"", "Basic abc", "Bearer not-a-token"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		code, err := runMiddleware(t, mw, req)
		if err == nil || code != http.StatusUnauthorized {
			t.Errorf("header %q: code = %d, err = %v; want 401", header, code, err)
		}
	}
}
