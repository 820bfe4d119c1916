package link

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const linkCols = `id, kind, subject_user_id, patient_user_id, patient_id, created_by_user_id,
	status, link_type, expires_at, notes, relationship, version, created_at, updated_at`

func scanLink(row pgx.Row) (*Record, error) {
	var r Record
	err := row.Scan(&r.ID, &r.Kind, &r.SubjectUserID, &r.PatientUserID, &r.PatientID, &r.CreatedByUserID,
		&r.Status, &r.LinkType, &r.ExpiresAt, &r.Notes, &r.Relationship, &r.Version, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func collectLinks(rows pgx.Rows) ([]*Record, error) {
	defer rows.Close()
	var items []*Record
	for rows.Next() {
		r, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

func (p *repoPG) LockPair(ctx context.Context, kind Kind, subjectUserID, patientUserID uuid.UUID) error {
	key := fmt.Sprintf("link:%s:%s:%s", kind, subjectUserID, patientUserID)
	_, err := db.Conn(ctx, p.pool).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key)
	if err != nil {
		return fmt.Errorf("lock link pair: %w", err)
	}
	return nil
}

func (p *repoPG) Create(ctx context.Context, r *Record) error {
	r.ID = uuid.New()
	r.Version = 1
	_, err := db.Conn(ctx, p.pool).Exec(ctx, `
		INSERT INTO links (id, kind, subject_user_id, patient_user_id, patient_id, created_by_user_id,
			status, link_type, expires_at, notes, relationship, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		r.ID, r.Kind, r.SubjectUserID, r.PatientUserID, r.PatientID, r.CreatedByUserID,
		r.Status, r.LinkType, r.ExpiresAt, r.Notes, r.Relationship, r.Version, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert link: %w", err)
	}
	return nil
}

func (p *repoPG) GetByID(ctx context.Context, kind Kind, id uuid.UUID) (*Record, error) {
	r, err := scanLink(db.Conn(ctx, p.pool).QueryRow(ctx,
		`SELECT `+linkCols+` FROM links WHERE id = $1 AND kind = $2`, id, kind))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("%s link %s not found", kind, id)
	}
	return r, err
}

func (p *repoPG) Update(ctx context.Context, r *Record) error {
	var version int
	err := db.Conn(ctx, p.pool).QueryRow(ctx, `
		UPDATE links
		SET status = $3, link_type = $4, expires_at = $5, notes = $6, relationship = $7,
			updated_at = $8, version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING version`,
		r.ID, r.Version, r.Status, r.LinkType, r.ExpiresAt, r.Notes, r.Relationship, r.UpdatedAt).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.ErrConcurrentUpdate
	}
	if err != nil {
		return fmt.Errorf("update link: %w", err)
	}
	r.Version = version
	return nil
}

func (p *repoPG) ActiveForPair(ctx context.Context, kind Kind, subjectUserID, patientUserID uuid.UUID) ([]*Record, error) {
	rows, err := db.Conn(ctx, p.pool).Query(ctx, `
		SELECT `+linkCols+` FROM links
		WHERE kind = $1 AND subject_user_id = $2 AND patient_user_id = $3 AND status = 'ACTIVE'`,
		kind, subjectUserID, patientUserID)
	if err != nil {
		return nil, err
	}
	return collectLinks(rows)
}

func (p *repoPG) ActiveForSubject(ctx context.Context, kind Kind, subjectUserID uuid.UUID) ([]*Record, error) {
	rows, err := db.Conn(ctx, p.pool).Query(ctx, `
		SELECT `+linkCols+` FROM links
		WHERE kind = $1 AND subject_user_id = $2 AND status = 'ACTIVE'`, kind, subjectUserID)
	if err != nil {
		return nil, err
	}
	return collectLinks(rows)
}

func (p *repoPG) ActiveForPatient(ctx context.Context, kind Kind, patientUserID uuid.UUID) ([]*Record, error) {
	rows, err := db.Conn(ctx, p.pool).Query(ctx, `
		SELECT `+linkCols+` FROM links
		WHERE kind = $1 AND patient_user_id = $2 AND status = 'ACTIVE'`, kind, patientUserID)
	if err != nil {
		return nil, err
	}
	return collectLinks(rows)
}

func (p *repoPG) ListExpired(ctx context.Context, now time.Time) ([]*Record, error) {
	rows, err := db.Conn(ctx, p.pool).Query(ctx, `
		SELECT `+linkCols+` FROM links
		WHERE status = 'ACTIVE' AND expires_at IS NOT NULL AND expires_at < $1`, now)
	if err != nil {
		return nil, err
	}
	return collectLinks(rows)
}

func (p *repoPG) List(ctx context.Context, kind Kind, f ListFilter, limit, offset int) ([]*Record, int, error) {
	where := []string{"kind = $1"}
	args := []interface{}{kind}
	if f.SubjectUserID != uuid.Nil {
		args = append(args, f.SubjectUserID)
		where = append(where, fmt.Sprintf("subject_user_id = $%d", len(args)))
	}
	if f.PatientUserID != uuid.Nil {
		args = append(args, f.PatientUserID)
		where = append(where, fmt.Sprintf("patient_user_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	conn := db.Conn(ctx, p.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM links WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := conn.Query(ctx, fmt.Sprintf(`SELECT `+linkCols+` FROM links WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectLinks(rows)
	return items, total, err
}
