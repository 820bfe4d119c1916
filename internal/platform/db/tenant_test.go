package db

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestExtractTenantID_FromHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Tenant-ID", "clinic_abc")
	c := e.NewContext(req, httptest.NewRecorder())

	if tid := extractTenantID(c, "default"); tid != "clinic_abc" {
		t.Errorf("expected clinic_abc, got %s", tid)
	}
}

func TestExtractTenantID_FromQuery(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?tenant_id=clinic_xyz", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	if tid := extractTenantID(c, "default"); tid != "clinic_xyz" {
		t.Errorf("expected clinic_xyz, got %s", tid)
	}
}

func TestExtractTenantID_Default(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	if tid := extractTenantID(c, "default"); tid != "default" {
		t.Errorf("expected default, got %s", tid)
	}
}

func TestExtractTenantID_Priority(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?tenant_id=query", nil)
	req.Header.Set("X-Tenant-ID", "header")
	c := e.NewContext(req, httptest.NewRecorder())
	c.Set("jwt_tenant_id", "jwt")

	// JWT takes highest priority
	if tid := extractTenantID(c, "default"); tid != "jwt" {
		t.Errorf("expected jwt (highest priority), got %s", tid)
	}
}

func TestValidTenantID(t *testing.T) {
	for _, v := range []string{"abc", "hospital_1", "tenant_abc_123", "A1B2"} {
		if !ValidTenantID(v) {
			t.Errorf("expected %s to be valid", v)
		}
	}
	for _, v := range []string{"a-b", "a.b", "a b", "'; DROP TABLE", "a/b", ""} {
		if ValidTenantID(v) {
			t.Errorf("expected %q to be invalid", v)
		}
	}
}

func TestSchemaName(t *testing.T) {
	if got := SchemaName("acme"); got != "tenant_acme" {
		t.Errorf("expected tenant_acme, got %s", got)
	}
}

func TestContextAccessors_Empty(t *testing.T) {
	ctx := context.Background()
	if ConnFromContext(ctx) != nil {
		t.Error("expected nil conn from empty context")
	}
	if TxFromContext(ctx) != nil {
		t.Error("expected nil tx from empty context")
	}
	if TenantFromContext(ctx) != "" {
		t.Error("expected empty tenant from empty context")
	}
}

func TestTenantFromContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), TenantIDKey, "test_tenant")
	if tid := TenantFromContext(ctx); tid != "test_tenant" {
		t.Errorf("expected test_tenant, got %s", tid)
	}
}

func TestCreateTenantSchema_InvalidID(t *testing.T) {
	if err := CreateTenantSchema(context.Background(), nil, "invalid-id!", nil); err == nil {
		t.Error("expected error for invalid tenant ID")
	}
}

func TestAcquireTenant_InvalidID(t *testing.T) {
	_, release, err := AcquireTenant(context.Background(), nil, "bad;id")
	if err == nil {
		t.Fatal("expected error for invalid tenant ID")
	}
	release()
}

func TestWithTx_NoConnection(t *testing.T) {
	_, _, err := WithTx(context.Background())
	if err == nil || err.Error() != "no database connection in context" {
		t.Fatalf("expected missing connection error, got %v", err)
	}
}

func TestPoolTxRunner_NoDatabase(t *testing.T) {
	r := NewTxRunner(nil)
	called := false
	err := r.RunInTx(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if err == nil {
		t.Fatal("expected error without a database")
	}
	if called {
		t.Error("fn must not run without a transaction")
	}
}

func TestNoTx_RunsFn(t *testing.T) {
	called := false
	if err := (NoTx{}).RunInTx(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected fn to run")
	}
}

func TestAfterCommit_OutsideTransactionRunsNow(t *testing.T) {
	ran := false
	AfterCommit(context.Background(), func(context.Context) { ran = true })
	if !ran {
		t.Error("expected hook to run immediately")
	}
}

func TestAfterCommit_DeferredUntilSuccess(t *testing.T) {
	var order []string
	err := (NoTx{}).RunInTx(context.Background(), func(ctx context.Context) error {
		AfterCommit(ctx, func(context.Context) { order = append(order, "hook") })
		// Nested runs join the outer one.
		_ = (NoTx{}).RunInTx(ctx, func(ctx context.Context) error {
			AfterCommit(ctx, func(context.Context) { order = append(order, "nested") })
			return nil
		})
		order = append(order, "body")
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 3 || order[0] != "body" || order[1] != "hook" || order[2] != "nested" {
		t.Errorf("unexpected order %v", order)
	}
}

func TestAfterCommit_DroppedOnError(t *testing.T) {
	ran := false
	err := (NoTx{}).RunInTx(context.Background(), func(ctx context.Context) error {
		AfterCommit(ctx, func(context.Context) { ran = true })
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if ran {
		t.Error("hook must not run after a failed transaction")
	}
}
