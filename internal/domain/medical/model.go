package medical

import (
	"time"

	"github.com/google/uuid"
)

type Vital struct {
	ID               uuid.UUID `db:"id" json:"id"`
	PatientID        uuid.UUID `db:"patient_id" json:"patient_id"`
	Type             string    `db:"type" json:"type"`
	Value            float64   `db:"value" json:"value"`
	Unit             string    `db:"unit" json:"unit"`
	Notes            *string   `db:"notes" json:"notes,omitempty"`
	RecordedByUserID uuid.UUID `db:"recorded_by_user_id" json:"recorded_by_user_id"`
	RecordedAt       time.Time `db:"recorded_at" json:"recorded_at"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

type Medication struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	PatientID uuid.UUID  `db:"patient_id" json:"patient_id"`
	Name      string     `db:"name" json:"name"`
	Dosage    string     `db:"dosage" json:"dosage"`
	Frequency string     `db:"frequency" json:"frequency"`
	Active    bool       `db:"active" json:"active"`
	StartedAt *time.Time `db:"started_at" json:"started_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

type ClinicalNote struct {
	ID           uuid.UUID `db:"id" json:"id"`
	PatientID    uuid.UUID `db:"patient_id" json:"patient_id"`
	AuthorUserID uuid.UUID `db:"author_user_id" json:"author_user_id"`
	Content      string    `db:"content" json:"content"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type MoodPainLog struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	Mood      int       `db:"mood" json:"mood"`
	Pain      int       `db:"pain" json:"pain"`
	Notes     *string   `db:"notes" json:"notes,omitempty"`
	LoggedAt  time.Time `db:"logged_at" json:"logged_at"`
}

type Allergy struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	Allergen  string    `db:"allergen" json:"allergen"`
	Severity  string    `db:"severity" json:"severity,omitempty"`
	Reaction  *string   `db:"reaction" json:"reaction,omitempty"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

var validSeverities = map[string]bool{"": true, "mild": true, "moderate": true, "severe": true}

const maxNoteLen = 10000
