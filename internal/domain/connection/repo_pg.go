package connection

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const requestCols = `id, caregiver_user_id, patient_user_id, status, relationship_type, message,
	token, link_id, requested_at, responded_at`

func scanRequest(row pgx.Row) (*Request, error) {
	var r Request
	err := row.Scan(&r.ID, &r.CaregiverUserID, &r.PatientUserID, &r.Status, &r.RelationshipType, &r.Message,
		&r.Token, &r.LinkID, &r.RequestedAt, &r.RespondedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func collectRequests(rows pgx.Rows) ([]*Request, error) {
	defer rows.Close()
	var items []*Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

func (p *repoPG) LockPair(ctx context.Context, caregiverUserID, patientUserID uuid.UUID) error {
	key := fmt.Sprintf("connection:%s:%s", caregiverUserID, patientUserID)
	_, err := db.Conn(ctx, p.pool).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key)
	if err != nil {
		return fmt.Errorf("lock connection pair: %w", err)
	}
	return nil
}

func (p *repoPG) Create(ctx context.Context, r *Request) error {
	r.ID = uuid.New()
	_, err := db.Conn(ctx, p.pool).Exec(ctx, `
		INSERT INTO connection_requests (id, caregiver_user_id, patient_user_id, status, relationship_type,
			message, token, requested_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		r.ID, r.CaregiverUserID, r.PatientUserID, r.Status, r.RelationshipType, r.Message, r.Token, r.RequestedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.Conflict("a pending connection request already exists")
	}
	if err != nil {
		return fmt.Errorf("insert connection request: %w", err)
	}
	return nil
}

func (p *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Request, error) {
	r, err := scanRequest(db.Conn(ctx, p.pool).QueryRow(ctx,
		`SELECT `+requestCols+` FROM connection_requests WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("connection request %s not found", id)
	}
	return r, err
}

func (p *repoPG) GetByTokenForUpdate(ctx context.Context, token string) (*Request, error) {
	r, err := scanRequest(db.Conn(ctx, p.pool).QueryRow(ctx,
		`SELECT `+requestCols+` FROM connection_requests WHERE token = $1 FOR UPDATE`, token))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("connection request not found")
	}
	return r, err
}

func (p *repoPG) Resolve(ctx context.Context, r *Request) error {
	tag, err := db.Conn(ctx, p.pool).Exec(ctx, `
		UPDATE connection_requests SET status = $2, link_id = $3, responded_at = $4
		WHERE id = $1 AND status = 'PENDING'`,
		r.ID, r.Status, r.LinkID, r.RespondedAt)
	if err != nil {
		return fmt.Errorf("resolve connection request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("connection request %s was already resolved", r.ID)
	}
	return nil
}

func (p *repoPG) PendingForPair(ctx context.Context, caregiverUserID, patientUserID uuid.UUID) (*Request, error) {
	r, err := scanRequest(db.Conn(ctx, p.pool).QueryRow(ctx, `
		SELECT `+requestCols+` FROM connection_requests
		WHERE caregiver_user_id = $1 AND patient_user_id = $2 AND status = 'PENDING'`,
		caregiverUserID, patientUserID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (p *repoPG) ListForCaregiver(ctx context.Context, caregiverUserID uuid.UUID, limit, offset int) ([]*Request, int, error) {
	conn := db.Conn(ctx, p.pool)
	var total int
	if err := conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM connection_requests WHERE caregiver_user_id = $1`, caregiverUserID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn.Query(ctx, `
		SELECT `+requestCols+` FROM connection_requests
		WHERE caregiver_user_id = $1
		ORDER BY requested_at DESC LIMIT $2 OFFSET $3`, caregiverUserID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectRequests(rows)
	return items, total, err
}

func (p *repoPG) ListPendingForPatient(ctx context.Context, patientUserID uuid.UUID) ([]*Request, error) {
	rows, err := db.Conn(ctx, p.pool).Query(ctx, `
		SELECT `+requestCols+` FROM connection_requests
		WHERE patient_user_id = $1 AND status = 'PENDING'
		ORDER BY requested_at DESC`, patientUserID)
	if err != nil {
		return nil, err
	}
	return collectRequests(rows)
}
