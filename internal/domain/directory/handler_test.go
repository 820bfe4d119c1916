package directory_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carelink/carelink/internal/domain/directory"
	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/auth"
)

type stubAuthorizer struct{ allow bool }

func (s stubAuthorizer) Authorize(context.Context, auth.Principal, uuid.UUID) error {
	if s.allow {
		return nil
	}
	return apperr.Forbidden("access denied")
}

func newTestHandler(allow bool) (*directory.Handler, *directory.Service, *echo.Echo) {
	svc := newTestService()
	return directory.NewHandler(svc, stubAuthorizer{allow: allow}), svc, echo.New()
}

func withUser(req *http.Request, userID uuid.UUID, roles ...string) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), userID.String(), roles))
}

func statusOf(t *testing.T, err error, rec *httptest.ResponseRecorder) int {
	t.Helper()
	if err == nil {
		return rec.Code
	}
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("unexpected error type %T: %v", err, err)
	}
	return he.Code
}

func TestCreateUserHandler(t *testing.T) {
	h, _, e := newTestHandler(true)
	body := `{"email":"Jane@Example.com","first_name":"Jane","last_name":"Doe","role":"patient"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreateUser(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var u directory.User
	_ = json.Unmarshal(rec.Body.Bytes(), &u)
	if u.ID == uuid.Nil || u.Email != "jane@example.com" {
		t.Errorf("unexpected user: %+v", u)
	}
}

func TestCreateUserHandler_Invalid(t *testing.T) {
	h, _, e := newTestHandler(true)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"x","role":"patient"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	err := h.CreateUser(e.NewContext(req, rec))
	if code := statusOf(t, err, rec); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestGetUserHandler_OnlySelfOrAdmin(t *testing.T) {
	h, svc, e := newTestHandler(true)
	u := &directory.User{Email: "p@example.com", FirstName: "Pat", Role: "patient"}
	_ = svc.CreateUser(context.Background(), u)

	tests := []struct {
		name   string
		caller uuid.UUID
		roles  []string
		want   int
	}{
		{"self", u.ID, []string{auth.RolePatient}, http.StatusOK},
		{"admin", uuid.New(), []string{auth.RoleAdmin}, http.StatusOK},
		{"other", uuid.New(), []string{auth.RoleCaregiver}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := withUser(httptest.NewRequest(http.MethodGet, "/", nil), tt.caller, tt.roles...)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			c.SetParamNames("id")
			c.SetParamValues(u.ID.String())
			if code := statusOf(t, h.GetUser(c), rec); code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, code)
			}
		})
	}
}

func TestGetPatientHandler_Authorizes(t *testing.T) {
	for _, allow := range []bool{true, false} {
		h, svc, e := newTestHandler(allow)
		ctx := context.Background()
		u := &directory.User{Email: "p@example.com", FirstName: "Pat", Role: "patient"}
		_ = svc.CreateUser(ctx, u)
		p := &directory.Patient{UserID: u.ID}
		_ = svc.CreatePatient(ctx, p)

		req := withUser(httptest.NewRequest(http.MethodGet, "/", nil), uuid.New(), auth.RoleCaregiver)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues(p.ID.String())

		want := http.StatusOK
		if !allow {
			want = http.StatusForbidden
		}
		if code := statusOf(t, h.GetPatient(c), rec); code != want {
			t.Errorf("allow=%v: expected %d, got %d", allow, want, code)
		}
	}
}

func TestMeHandler_Unauthenticated(t *testing.T) {
	h, _, e := newTestHandler(true)
	rec := httptest.NewRecorder()
	err := h.Me(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec))
	if code := statusOf(t, err, rec); code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", code)
	}
}
