package medical

import (
	"context"
	"fmt"

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

// limitArg maps "no limit" to NULL, which LIMIT treats as unbounded.
func limitArg(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}

func (p *repoPG) CreateVital(ctx context.Context, v *Vital) error {
	v.ID = uuid.New()
	err := db.Conn(ctx, p.pool).QueryRow(ctx, `
		INSERT INTO vitals (id, patient_id, type, value, unit, notes, recorded_by_user_id, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`,
		v.ID, v.PatientID, v.Type, v.Value, v.Unit, v.Notes, v.RecordedByUserID, v.RecordedAt).Scan(&v.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert vital: %w", err)
	}
	return nil
}

func (p *repoPG) ListVitals(ctx context.Context, patientID uuid.UUID, limit int) ([]*Vital, error) {
	rows, err := db.Conn(ctx, p.pool).Query(ctx, `
		SELECT id, patient_id, type, value, unit, notes, recorded_by_user_id, recorded_at, created_at
		FROM vitals WHERE patient_id = $1
		ORDER BY recorded_at DESC LIMIT $2`, patientID, limitArg(limit))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Vital, error) {
		var v Vital
		err := row.Scan(&v.ID, &v.PatientID, &v.Type, &v.Value, &v.Unit, &v.Notes, &v.RecordedByUserID, &v.RecordedAt, &v.CreatedAt)
		return &v, err
	})
}

func (p *repoPG) CreateMedication(ctx context.Context, m *Medication) error {
	m.ID = uuid.New()
	err := db.Conn(ctx, p.pool).QueryRow(ctx, `
		INSERT INTO medications (id, patient_id, name, dosage, frequency, active, started_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at`,
		m.ID, m.PatientID, m.Name, m.Dosage, m.Frequency, m.Active, m.StartedAt).Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert medication: %w", err)
	}
	return nil
}

func (p *repoPG) SetMedicationActive(ctx context.Context, patientID, id uuid.UUID, active bool) error {
	tag, err := db.Conn(ctx, p.pool).Exec(ctx,
		`UPDATE medications SET active = $3 WHERE id = $1 AND patient_id = $2`, id, patientID, active)
	if err != nil {
		return fmt.Errorf("update medication: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("medication %s not found", id)
	}
	return nil
}

func (p *repoPG) ListMedications(ctx context.Context, patientID uuid.UUID, activeOnly bool) ([]*Medication, error) {
	rows, err := db.Conn(ctx, p.pool).Query(ctx, `
		SELECT id, patient_id, name, dosage, frequency, active, started_at, created_at
		FROM medications WHERE patient_id = $1 AND (active OR NOT $2)
		ORDER BY created_at DESC`, patientID, activeOnly)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Medication, error) {
		var m Medication
		err := row.Scan(&m.ID, &m.PatientID, &m.Name, &m.Dosage, &m.Frequency, &m.Active, &m.StartedAt, &m.CreatedAt)
		return &m, err
	})
}

func (p *repoPG) CreateNote(ctx context.Context, n *ClinicalNote) error {
	n.ID = uuid.New()
	_, err := db.Conn(ctx, p.pool).Exec(ctx, `
		INSERT INTO clinical_notes (id, patient_id, author_user_id, content, created_at)
		VALUES ($1,$2,$3,$4,$5)`,
		n.ID, n.PatientID, n.AuthorUserID, n.Content, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert clinical note: %w", err)
	}
	return nil
}

func (p *repoPG) ListNotes(ctx context.Context, patientID uuid.UUID, limit int) ([]*ClinicalNote, error) {
	rows, err := db.Conn(ctx, p.pool).Query(ctx, `
		SELECT id, patient_id, author_user_id, content, created_at
		FROM clinical_notes WHERE patient_id = $1
		ORDER BY created_at DESC LIMIT $2`, patientID, limitArg(limit))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*ClinicalNote, error) {
		var n ClinicalNote
		err := row.Scan(&n.ID, &n.PatientID, &n.AuthorUserID, &n.Content, &n.CreatedAt)
		return &n, err
	})
}

func (p *repoPG) CreateMoodPainLog(ctx context.Context, l *MoodPainLog) error {
	l.ID = uuid.New()
	_, err := db.Conn(ctx, p.pool).Exec(ctx, `
		INSERT INTO mood_pain_logs (id, patient_id, mood, pain, notes, logged_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		l.ID, l.PatientID, l.Mood, l.Pain, l.Notes, l.LoggedAt)
	if err != nil {
		return fmt.Errorf("insert mood/pain log: %w", err)
	}
	return nil
}

func (p *repoPG) ListMoodPainLogs(ctx context.Context, patientID uuid.UUID, limit int) ([]*MoodPainLog, error) {
	rows, err := db.Conn(ctx, p.pool).Query(ctx, `
		SELECT id, patient_id, mood, pain, notes, logged_at
		FROM mood_pain_logs WHERE patient_id = $1
		ORDER BY logged_at DESC LIMIT $2`, patientID, limitArg(limit))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*MoodPainLog, error) {
		var l MoodPainLog
		err := row.Scan(&l.ID, &l.PatientID, &l.Mood, &l.Pain, &l.Notes, &l.LoggedAt)
		return &l, err
	})
}

func (p *repoPG) CreateAllergy(ctx context.Context, a *Allergy) error {
	a.ID = uuid.New()
	err := db.Conn(ctx, p.pool).QueryRow(ctx, `
		INSERT INTO allergies (id, patient_id, allergen, severity, reaction, active)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		a.ID, a.PatientID, a.Allergen, a.Severity, a.Reaction, a.Active).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert allergy: %w", err)
	}
	return nil
}

func (p *repoPG) ListAllergies(ctx context.Context, patientID uuid.UUID, activeOnly bool) ([]*Allergy, error) {
	rows, err := db.Conn(ctx, p.pool).Query(ctx, `
		SELECT id, patient_id, allergen, severity, reaction, active, created_at
		FROM allergies WHERE patient_id = $1 AND (active OR NOT $2)
		ORDER BY created_at DESC`, patientID, activeOnly)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Allergy, error) {
		var a Allergy
		err := row.Scan(&a.ID, &a.PatientID, &a.Allergen, &a.Severity, &a.Reaction, &a.Active, &a.CreatedAt)
		return &a, err
	})
}
