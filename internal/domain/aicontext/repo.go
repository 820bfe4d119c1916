package aicontext

import (
	"context"

	"github.com/google/uuid"
)

// Repository stores AI configs. Create runs inside the caller's transaction
// and deactivates the patient's previous config.
type Repository interface {
	// Active returns nil, nil when the patient has no stored config.
	Active(ctx context.Context, patientID uuid.UUID) (*Config, error)
	Create(ctx context.Context, c *Config) error
	// History lists every config of the patient, newest first.
	History(ctx context.Context, patientID uuid.UUID) ([]*Config, error)
}
