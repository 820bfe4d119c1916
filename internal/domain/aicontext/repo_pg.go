package aicontext

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

const configCols = `id, patient_id, include_vitals, include_medications, include_notes, include_mood_pain,
	include_allergies, model, temperature, max_tokens, system_prompt, is_active, created_by_user_id, created_at`

func scanConfig(row pgx.Row) (*Config, error) {
	var c Config
	err := row.Scan(&c.ID, &c.PatientID, &c.IncludeVitals, &c.IncludeMedications, &c.IncludeNotes, &c.IncludeMoodPain,
		&c.IncludeAllergies, &c.Model, &c.Temperature, &c.MaxTokens, &c.SystemPrompt, &c.IsActive, &c.CreatedByUserID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (p *repoPG) Active(ctx context.Context, patientID uuid.UUID) (*Config, error) {
	c, err := scanConfig(db.Conn(ctx, p.pool).QueryRow(ctx,
		`SELECT `+configCols+` FROM ai_configs WHERE patient_id = $1 AND is_active`, patientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active ai config: %w", err)
	}
	return c, nil
}

func (p *repoPG) Create(ctx context.Context, c *Config) error {
	conn := db.Conn(ctx, p.pool)
	if _, err := conn.Exec(ctx,
		`UPDATE ai_configs SET is_active = false WHERE patient_id = $1 AND is_active`, c.PatientID); err != nil {
		return fmt.Errorf("deactivate ai configs: %w", err)
	}

	c.ID = uuid.New()
	err := conn.QueryRow(ctx, `
		INSERT INTO ai_configs (id, patient_id, include_vitals, include_medications, include_notes,
			include_mood_pain, include_allergies, model, temperature, max_tokens, system_prompt,
			is_active, created_by_user_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING created_at`,
		c.ID, c.PatientID, c.IncludeVitals, c.IncludeMedications, c.IncludeNotes,
		c.IncludeMoodPain, c.IncludeAllergies, c.Model, c.Temperature, c.MaxTokens, c.SystemPrompt,
		c.IsActive, c.CreatedByUserID).Scan(&c.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("ai config for patient %s: %w", c.PatientID, apperr.ErrConcurrentUpdate)
		}
		return fmt.Errorf("insert ai config: %w", err)
	}
	return nil
}

func (p *repoPG) History(ctx context.Context, patientID uuid.UUID) ([]*Config, error) {
	rows, err := db.Conn(ctx, p.pool).Query(ctx,
		`SELECT `+configCols+` FROM ai_configs WHERE patient_id = $1 ORDER BY created_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Config, error) {
		return scanConfig(row)
	})
}
