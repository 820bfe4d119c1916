package connection

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// LockPair serializes request creation for a caregiver-patient pair
	// until the surrounding transaction ends.
	LockPair(ctx context.Context, caregiverUserID, patientUserID uuid.UUID) error
	Create(ctx context.Context, r *Request) error
	GetByID(ctx context.Context, id uuid.UUID) (*Request, error)
	// GetByTokenForUpdate loads the request and holds its row lock until
	// the surrounding transaction ends.
	GetByTokenForUpdate(ctx context.Context, token string) (*Request, error)
	// Resolve writes the outcome of a PENDING request. It fails with a
	// conflict when the request was resolved in the meantime.
	Resolve(ctx context.Context, r *Request) error
	PendingForPair(ctx context.Context, caregiverUserID, patientUserID uuid.UUID) (*Request, error)
	ListForCaregiver(ctx context.Context, caregiverUserID uuid.UUID, limit, offset int) ([]*Request, int, error)
	ListPendingForPatient(ctx context.Context, patientUserID uuid.UUID) ([]*Request, error)
}
