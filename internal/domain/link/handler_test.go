package link_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carelink/carelink/internal/domain/link"
	"github.com/carelink/carelink/internal/platform/auth"
)

func newRequest(method, body string, userID uuid.UUID, roles ...string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, "/", nil)
	} else {
		req = httptest.NewRequest(method, "/", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	return req.WithContext(auth.WithIdentity(req.Context(), userID.String(), roles))
}

func httpCode(t *testing.T, err error, rec *httptest.ResponseRecorder) int {
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

func TestCreateLinkHandler(t *testing.T) {
	f := newFixture()
	h := link.NewHandler(f.svc)
	e := echo.New()
	body := `{"subject_user_id":"` + f.caregiver.ID.String() + `","patient_user_id":"` + f.patient.ID.String() + `"}`

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodPost, body, f.patient.ID, auth.RolePatient), rec)
	c.SetParamNames("kind")
	c.SetParamValues("caregiver")
	if err := h.CreateLink(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var got link.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.CreatedByUserID != f.patient.ID || got.Status != link.StatusActive {
		t.Errorf("unexpected link %+v", got)
	}

	// Same pair again conflicts.
	rec = httptest.NewRecorder()
	c = e.NewContext(newRequest(http.MethodPost, body, f.patient.ID, auth.RolePatient), rec)
	c.SetParamNames("kind")
	c.SetParamValues("caregiver")
	if code := httpCode(t, h.CreateLink(c), rec); code != http.StatusConflict {
		t.Errorf("expected 409, got %d", code)
	}
}

func TestCreateLinkHandler_OtherPatientForbidden(t *testing.T) {
	f := newFixture()
	h := link.NewHandler(f.svc)
	e := echo.New()
	body := `{"subject_user_id":"` + f.caregiver.ID.String() + `","patient_user_id":"` + f.patient.ID.String() + `"}`

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodPost, body, f.caregiver.ID, auth.RoleCaregiver), rec)
	c.SetParamNames("kind")
	c.SetParamValues("caregiver")
	if code := httpCode(t, h.CreateLink(c), rec); code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", code)
	}
}

func TestCreateLinkHandler_UnknownKind(t *testing.T) {
	f := newFixture()
	h := link.NewHandler(f.svc)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(newRequest(http.MethodPost, `{}`, f.admin.ID, auth.RoleAdmin), rec)
	c.SetParamNames("kind")
	c.SetParamValues("neighbour")
	if code := httpCode(t, h.CreateLink(c), rec); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestGetLinkHandler_PartiesOnly(t *testing.T) {
	f := newFixture()
	r := f.caregiverLink(t)
	h := link.NewHandler(f.svc)
	e := echo.New()

	tests := []struct {
		name  string
		user  uuid.UUID
		roles []string
		want  int
	}{
		{"patient", f.patient.ID, []string{auth.RolePatient}, http.StatusOK},
		{"caregiver", f.caregiver.ID, []string{auth.RoleCaregiver}, http.StatusOK},
		{"admin", f.admin.ID, []string{auth.RoleAdmin}, http.StatusOK},
		{"stranger", f.family.ID, []string{auth.RoleFamilyMember}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(newRequest(http.MethodGet, "", tt.user, tt.roles...), rec)
			c.SetParamNames("kind", "id")
			c.SetParamValues("caregiver", r.ID.String())
			if code := httpCode(t, h.GetLink(c), rec); code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, code)
			}
		})
	}
}

func TestSuspendHandler_SubjectCannotSuspend(t *testing.T) {
	f := newFixture()
	r := f.caregiverLink(t)
	h := link.NewHandler(f.svc)
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodPost, "", f.caregiver.ID, auth.RoleCaregiver), rec)
	c.SetParamNames("kind", "id")
	c.SetParamValues("caregiver", r.ID.String())
	if code := httpCode(t, h.Suspend(c), rec); code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", code)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(newRequest(http.MethodPost, "", f.patient.ID, auth.RolePatient), rec)
	c.SetParamNames("kind", "id")
	c.SetParamValues("caregiver", r.ID.String())
	if err := h.Suspend(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"status":"SUSPENDED"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestRevokeHandler_SubjectMayRevoke(t *testing.T) {
	f := newFixture()
	r := f.caregiverLink(t)
	h := link.NewHandler(f.svc)

	rec := httptest.NewRecorder()
	c := echo.New().NewContext(newRequest(http.MethodPost, "", f.caregiver.ID, auth.RoleCaregiver), rec)
	c.SetParamNames("kind", "id")
	c.SetParamValues("caregiver", r.ID.String())
	if err := h.Revoke(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"status":"REVOKED"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestReactivateHandler_FromActiveIsBadRequest(t *testing.T) {
	f := newFixture()
	r := f.caregiverLink(t)
	h := link.NewHandler(f.svc)

	rec := httptest.NewRecorder()
	c := echo.New().NewContext(newRequest(http.MethodPost, "", f.patient.ID, auth.RolePatient), rec)
	c.SetParamNames("kind", "id")
	c.SetParamValues("caregiver", r.ID.String())
	if code := httpCode(t, h.Reactivate(c), rec); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestForceStatusHandler(t *testing.T) {
	f := newFixture()
	r := f.caregiverLink(t)
	h := link.NewHandler(f.svc)

	rec := httptest.NewRecorder()
	c := echo.New().NewContext(newRequest(http.MethodPut, `{"status":"REVOKED"}`, f.admin.ID, auth.RoleAdmin), rec)
	c.SetParamNames("kind", "id")
	c.SetParamValues("caregiver", r.ID.String())
	if err := h.ForceStatus(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, _ := f.repo.Get(r.ID)
	if stored.Status != link.StatusRevoked {
		t.Errorf("expected REVOKED, got %s", stored.Status)
	}
}

func TestUpdateLinkHandler(t *testing.T) {
	f := newFixture()
	r := f.caregiverLink(t)
	h := link.NewHandler(f.svc)

	rec := httptest.NewRecorder()
	c := echo.New().NewContext(newRequest(http.MethodPatch, `{"notes":"evenings only"}`, f.patient.ID, auth.RolePatient), rec)
	c.SetParamNames("kind", "id")
	c.SetParamValues("caregiver", r.ID.String())
	if err := h.UpdateLink(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, _ := f.repo.Get(r.ID)
	if stored.Notes == nil || *stored.Notes != "evenings only" {
		t.Errorf("notes not updated: %+v", stored)
	}
}

func TestListLinksHandler(t *testing.T) {
	f := newFixture()
	f.caregiverLink(t)
	h := link.NewHandler(f.svc)
	e := echo.New()

	// A caregiver sees their own active links by default.
	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodGet, "", f.caregiver.ID, auth.RoleCaregiver), rec)
	c.SetParamNames("kind")
	c.SetParamValues("caregiver")
	if err := h.ListLinks(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var items []link.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].SubjectUserID != f.caregiver.ID {
		t.Errorf("unexpected items %+v", items)
	}

	// Another user's links are off limits.
	req := httptest.NewRequest(http.MethodGet, "/?patient_user_id="+f.patient.ID.String(), nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), f.family.ID.String(), []string{auth.RoleFamilyMember}))
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("kind")
	c.SetParamValues("caregiver")
	if code := httpCode(t, h.ListLinks(c), rec); code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", code)
	}
}

func TestListLinksHandler_AdminHistory(t *testing.T) {
	f := newFixture()
	r := f.caregiverLink(t)
	if _, err := f.svc.Revoke(t.Context(), link.KindCaregiver, r.ID); err != nil {
		t.Fatal(err)
	}
	h := link.NewHandler(f.svc)

	rec := httptest.NewRecorder()
	c := echo.New().NewContext(newRequest(http.MethodGet, "", f.admin.ID, auth.RoleAdmin), rec)
	c.SetParamNames("kind")
	c.SetParamValues("caregiver")
	if err := h.ListLinks(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var page struct {
		Data  []link.Record `json:"data"`
		Total int           `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 || len(page.Data) != 1 || page.Data[0].Status != link.StatusRevoked {
		t.Errorf("unexpected page %+v", page)
	}
}
