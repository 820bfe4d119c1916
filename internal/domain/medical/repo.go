package medical

import (
	"context"

	"github.com/google/uuid"
)

// Repository stores medical records. List methods return newest first;
// limit <= 0 means no limit.
type Repository interface {
	CreateVital(ctx context.Context, v *Vital) error
	ListVitals(ctx context.Context, patientID uuid.UUID, limit int) ([]*Vital, error)

	CreateMedication(ctx context.Context, m *Medication) error
	SetMedicationActive(ctx context.Context, patientID, id uuid.UUID, active bool) error
	ListMedications(ctx context.Context, patientID uuid.UUID, activeOnly bool) ([]*Medication, error)

	CreateNote(ctx context.Context, n *ClinicalNote) error
	ListNotes(ctx context.Context, patientID uuid.UUID, limit int) ([]*ClinicalNote, error)

	CreateMoodPainLog(ctx context.Context, l *MoodPainLog) error
	ListMoodPainLogs(ctx context.Context, patientID uuid.UUID, limit int) ([]*MoodPainLog, error)

	CreateAllergy(ctx context.Context, a *Allergy) error
	ListAllergies(ctx context.Context, patientID uuid.UUID, activeOnly bool) ([]*Allergy, error)
}
