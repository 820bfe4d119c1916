package link

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListFilter selects links for the history listing. Zero fields match all.
type ListFilter struct {
	SubjectUserID uuid.UUID
	PatientUserID uuid.UUID
	Status        Status
}

type Repository interface {
	// LockPair serializes writers of one (kind, subject, patient) pair until
	// the surrounding transaction ends.
	LockPair(ctx context.Context, kind Kind, subjectUserID, patientUserID uuid.UUID) error
	Create(ctx context.Context, r *Record) error
	GetByID(ctx context.Context, kind Kind, id uuid.UUID) (*Record, error)
	// Update writes the mutable fields of r if the stored version still
	// equals r.Version, and bumps the version. A lost race returns
	// apperr.ErrConcurrentUpdate.
	Update(ctx context.Context, r *Record) error

	// ActiveForPair, ActiveForSubject and ActiveForPatient return ACTIVE
	// rows. Callers apply Record.IsAuthorizing for the expiry part.
	ActiveForPair(ctx context.Context, kind Kind, subjectUserID, patientUserID uuid.UUID) ([]*Record, error)
	ActiveForSubject(ctx context.Context, kind Kind, subjectUserID uuid.UUID) ([]*Record, error)
	ActiveForPatient(ctx context.Context, kind Kind, patientUserID uuid.UUID) ([]*Record, error)

	// ListExpired returns ACTIVE links of every kind whose expiry is before now.
	ListExpired(ctx context.Context, now time.Time) ([]*Record, error)
	List(ctx context.Context, kind Kind, f ListFilter, limit, offset int) ([]*Record, int, error)
}
