package hipaa

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelink/carelink/internal/platform/db"
)

// Disclosure records patient data leaving the system, e.g. an anonymized
// context sent to an external language model.
type Disclosure struct {
	ID            uuid.UUID `json:"id"`
	PatientID     uuid.UUID `json:"patient_id"`
	DisclosedTo   string    `json:"disclosed_to"` // recipient system or model
	Purpose       string    `json:"purpose"`
	Level         Level     `json:"level"`
	Categories    []string  `json:"categories"`
	DisclosedBy   uuid.UUID `json:"disclosed_by"`
	DateDisclosed time.Time `json:"date_disclosed"`
}

const PurposeAIChat = "ai-chat"

func (d *Disclosure) validate() error {
	if d.PatientID == uuid.Nil {
		return fmt.Errorf("disclosure: patient_id is required")
	}
	if d.DisclosedTo == "" {
		return fmt.Errorf("disclosure: disclosed_to is required")
	}
	if d.Purpose == "" {
		return fmt.Errorf("disclosure: purpose is required")
	}
	if !d.Level.Valid() {
		return fmt.Errorf("disclosure: invalid level %d", int(d.Level))
	}
	return nil
}

func (d *Disclosure) setDefaults() {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.DateDisclosed.IsZero() {
		d.DateDisclosed = time.Now().UTC()
	}
}

// DisclosureRecorder keeps the accounting of disclosures.
type DisclosureRecorder interface {
	Record(ctx context.Context, d *Disclosure) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]*Disclosure, error)
}

// MemoryDisclosureStore is a DisclosureRecorder for development and tests.
type MemoryDisclosureStore struct {
	mu          sync.RWMutex
	disclosures []*Disclosure
}

func NewMemoryDisclosureStore() *MemoryDisclosureStore {
	return &MemoryDisclosureStore{disclosures: make([]*Disclosure, 0)}
}

func (s *MemoryDisclosureStore) Record(_ context.Context, d *Disclosure) error {
	if err := d.validate(); err != nil {
		return err
	}
	d.setDefaults()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.disclosures = append(s.disclosures, d)
	return nil
}

// ListByPatient returns the patient's disclosures inside [from, to], most
// recent first. A zero bound is open.
func (s *MemoryDisclosureStore) ListByPatient(_ context.Context, patientID uuid.UUID, from, to time.Time) ([]*Disclosure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Disclosure
	for _, d := range s.disclosures {
		if d.PatientID != patientID {
			continue
		}
		if !from.IsZero() && d.DateDisclosed.Before(from) {
			continue
		}
		if !to.IsZero() && d.DateDisclosed.After(to) {
			continue
		}
		result = append(result, d)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].DateDisclosed.After(result[j].DateDisclosed)
	})
	return result, nil
}

// PGDisclosureStore writes disclosures to the tenant's ai_disclosures table.
type PGDisclosureStore struct {
	pool *pgxpool.Pool
}

func NewPGDisclosureStore(pool *pgxpool.Pool) *PGDisclosureStore {
	return &PGDisclosureStore{pool: pool}
}

func (s *PGDisclosureStore) Record(ctx context.Context, d *Disclosure) error {
	if err := d.validate(); err != nil {
		return err
	}
	d.setDefaults()

	_, err := db.Conn(ctx, s.pool).Exec(ctx, `
		INSERT INTO ai_disclosures (id, patient_id, disclosed_to, purpose, level, categories, disclosed_by, date_disclosed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.PatientID, d.DisclosedTo, d.Purpose, d.Level.String(), d.Categories, d.DisclosedBy, d.DateDisclosed)
	if err != nil {
		return fmt.Errorf("insert disclosure: %w", err)
	}
	return nil
}

func (s *PGDisclosureStore) ListByPatient(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]*Disclosure, error) {
	var fromArg, toArg *time.Time
	if !from.IsZero() {
		fromArg = &from
	}
	if !to.IsZero() {
		toArg = &to
	}

	rows, err := db.Conn(ctx, s.pool).Query(ctx, `
		SELECT id, patient_id, disclosed_to, purpose, level, categories, disclosed_by, date_disclosed
		FROM ai_disclosures
		WHERE patient_id = $1
		  AND ($2::timestamptz IS NULL OR date_disclosed >= $2)
		  AND ($3::timestamptz IS NULL OR date_disclosed <= $3)
		ORDER BY date_disclosed DESC`, patientID, fromArg, toArg)
	if err != nil {
		return nil, fmt.Errorf("list disclosures: %w", err)
	}
	defer rows.Close()

	var result []*Disclosure
	for rows.Next() {
		var (
			d     Disclosure
			level string
		)
		if err := rows.Scan(&d.ID, &d.PatientID, &d.DisclosedTo, &d.Purpose, &level, &d.Categories, &d.DisclosedBy, &d.DateDisclosed); err != nil {
			return nil, fmt.Errorf("scan disclosure: %w", err)
		}
		if d.Level, err = ParseLevel(level); err != nil {
			return nil, err
		}
		result = append(result, &d)
	}
	return result, rows.Err()
}
