package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/platform/auth"
)

func TestRequestID_GeneratesNew(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	handler := func(c echo.Context) error {
		if rid, _ := c.Get("request_id").(string); rid == "" {
			t.Error("expected request_id to be generated")
		}
		return c.String(http.StatusOK, "ok")
	}

	if err := RequestID()(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "my-custom-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		if rid := c.Get("request_id").(string); rid != "my-custom-id" {
			t.Errorf("expected my-custom-id, got %s", rid)
		}
		return nil
	}
	RequestID()(handler)(c)

	if got := rec.Header().Get(RequestIDHeader); got != "my-custom-id" {
		t.Errorf("expected my-custom-id in response header, got %s", got)
	}
}

func TestLogger_LogsRequestAndInjectsContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/links/caregiver", nil), httptest.NewRecorder())
	c.Set("request_id", "rid-1")

	handler := func(c echo.Context) error {
		zerolog.Ctx(c.Request().Context()).Info().Msg("inside handler")
		return c.String(http.StatusOK, "ok")
	}

	if err := Logger(logger)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %s", len(lines), buf.String())
	}
	var inner, access map[string]interface{}
	json.Unmarshal([]byte(lines[0]), &inner)
	json.Unmarshal([]byte(lines[1]), &access)
	if inner["request_id"] != "rid-1" {
		t.Errorf("handler log missing request_id: %v", inner)
	}
	if access["path"] != "/api/v1/links/caregiver" || access["status"] != float64(200) {
		t.Errorf("unexpected access log: %v", access)
	}
}

func TestLogger_ClientErrorsLogAtWarn(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/links/caregiver/x", nil), httptest.NewRecorder())
	c.Set("tenant_id", "acme")

	handler := func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "link not found")
	}
	_ = Logger(zerolog.New(&buf))(handler)(c)

	var access map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &access); err != nil {
		t.Fatalf("decode: %v (%s)", err, buf.String())
	}
	if access["level"] != "warn" || access["status"] != float64(404) || access["tenant_id"] != "acme" {
		t.Errorf("unexpected access log: %v", access)
	}
}

func TestRecovery_ConvertsPanic(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	handler := func(c echo.Context) error {
		panic("boom")
	}

	err := Recovery(zerolog.Nop())(handler)(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 HTTPError, got %v", err)
	}
}

func TestRequestTimeout(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	handler := func(c echo.Context) error {
		select {
		case <-c.Request().Context().Done():
			return c.Request().Context().Err()
		case <-time.After(time.Second):
			return nil
		}
	}

	err := RequestTimeout(10 * time.Millisecond)(handler)(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %v", err)
	}
}

func TestRequestTimeout_FastHandler(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	err := RequestTimeout(time.Second)(func(c echo.Context) error { return nil })(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAudit_RecordsPatientAccess(t *testing.T) {
	const patientID = "5f0c3c5e-9f2a-4d8e-8b9b-2f5f6f4b1a77"
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients/"+patientID+"/vitals", nil)
	req = req.WithContext(auth.WithIdentity(context.Background(), auth.DevUserID, []string{auth.RoleCaregiver}))
	c := e.NewContext(req, httptest.NewRecorder())
	c.Set("request_id", "rid-9")

	var got []AuditEntry
	rec := AuditRecorderFunc(func(entry AuditEntry) error {
		got = append(got, entry)
		return nil
	})

	err := Audit(zerolog.Nop(), rec)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one entry, got %d", len(got))
	}
	entry := got[0]
	if entry.PatientID != patientID || entry.Resource != "vitals" || entry.Action != "read" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.UserID != auth.DevUserID || entry.RequestID != "rid-9" {
		t.Errorf("identity not captured: %+v", entry)
	}
}

func TestAudit_SkipsInfrastructurePaths(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), httptest.NewRecorder())

	called := false
	rec := AuditRecorderFunc(func(AuditEntry) error {
		called = true
		return nil
	})
	Audit(zerolog.Nop(), rec)(func(c echo.Context) error { return nil })(c)
	if called {
		t.Error("health checks must not be audited")
	}
}

func TestResourceFromPath(t *testing.T) {
	tests := map[string]string{
		"/api/v1/links/caregiver":        "links",
		"/api/v1/connection-requests":    "connection-requests",
		"/api/v1/patients/abc/mood-logs": "mood-logs",
		"/api/v1/patients/abc":           "patients",
		"/api/v1/":                       "unknown",
	}
	for path, want := range tests {
		if got := resourceFromPath(path); got != want {
			t.Errorf("resourceFromPath(%s) = %s, want %s", path, got, want)
		}
	}
}

func TestHttpMethodToAction(t *testing.T) {
	tests := map[string]string{
		http.MethodGet:    "read",
		http.MethodHead:   "read",
		http.MethodPost:   "create",
		http.MethodPut:    "update",
		http.MethodPatch:  "update",
		http.MethodDelete: "delete",
	}
	for method, want := range tests {
		if got := httpMethodToAction(method); got != want {
			t.Errorf("httpMethodToAction(%s) = %s, want %s", method, got, want)
		}
	}
}
