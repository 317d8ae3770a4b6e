package identity

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestRouter(t *testing.T) (*echo.Echo, *Service) {
	t.Helper()
	svc := newTestService(newFakeRepo(), newFakeResetRepo(), &fakeAuditor{})
	h := NewHandler(svc, false)
	e := echo.New()
	api := e.Group("/api/v1")
	h.RegisterPublicRoutes(api)
	h.RegisterProtectedRoutes(api)
	return e, svc
}

func postJSON(e *echo.Echo, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// Logins are stateless on the server: each caller gets a token for their own
// identity, with no shared login state that a later caller could inherit or
// clobber.
func TestLoginReturnsEachCallersOwnIdentity(t *testing.T) {
	e, svc := newTestRouter(t)
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()

	ana, _ := svc.Register(ctx, "Ana", "ana@example.com", "correct-horse", RolePatient, nil)
	bea, _ := svc.Register(ctx, "Bea", "bea@example.com", "battery-staple", RolePatient, nil)

	for _, tc := range []struct {
		email, password, wantID string
	}{
		{"ana@example.com", "correct-horse", ana.ID.String()},
		{"bea@example.com", "battery-staple", bea.ID.String()},
		{"ana@example.com", "correct-horse", ana.ID.String()},
	} {
		rec := postJSON(e, "/api/v1/auth/login",
			`{"email":"`+tc.email+`","password":"`+tc.password+`"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("login %s status = %d, want 200", tc.email, rec.Code)
		}
		var resp struct {
			Token string `json:"token"`
			User  *User  `json:"user"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode login response: %v", err)
		}
		if resp.Token == "" {
			t.Errorf("login %s returned no token", tc.email)
		}
		if resp.User.ID.String() != tc.wantID {
			t.Errorf("login %s returned user %s, want %s", tc.email, resp.User.ID, tc.wantID)
		}
	}
}

func TestChangePasswordMountedAsPut(t *testing.T) {
	e, _ := newTestRouter(t)

	var got string
	for _, r := range e.Routes() {
		if r.Path == "/api/v1/auth/change-password" {
			got = r.Method
		}
	}
	if got != http.MethodPut {
		t.Errorf("change-password method = %q, want PUT", got)
	}
}
