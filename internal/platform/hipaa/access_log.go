package hipaa

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelink/carelink/internal/platform/middleware"
)

// AccessLog persists audited API requests to shared.phi_access_log. It runs
// after the request's tenant connection is released, so it writes through
// the pool with a schema-qualified table and its own timeout.
type AccessLog struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewAccessLog(pool *pgxpool.Pool) *AccessLog {
	return &AccessLog{pool: pool, timeout: 5 * time.Second}
}

// RecordAccess implements middleware.AuditRecorder. Only requests that name
// a patient are stored.
func (l *AccessLog) RecordAccess(entry middleware.AuditEntry) error {
	if entry.PatientID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	var userID any
	if entry.UserID != "" {
		userID = entry.UserID
	}

	_, err := l.pool.Exec(ctx, `
		INSERT INTO shared.phi_access_log (
			tenant_id, patient_id, accessed_by_id, accessed_by_roles,
			resource_type, action, method, path, status_code,
			ip_address, user_agent, request_id, accessed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		entry.TenantID, entry.PatientID, userID, entry.UserRoles,
		entry.Resource, entry.Action, entry.Method, entry.Path, entry.StatusCode,
		entry.IPAddress, entry.UserAgent, entry.RequestID, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("hipaa phi access: %w", err)
	}
	return nil
}
