package aicontext

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/db"
)

// Authorizer is satisfied by access.Service.
type Authorizer interface {
	Authorize(ctx context.Context, p auth.Principal, patientID uuid.UUID) error
	PatientUserID(ctx context.Context, patientID uuid.UUID) (uuid.UUID, error)
}

// requireOwner allows admins and the patient's own user.
func requireOwner(ctx context.Context, authz Authorizer, p auth.Principal, patientID uuid.UUID) error {
	if p.IsAdmin() {
		return nil
	}
	owner, err := authz.PatientUserID(ctx, patientID)
	if err != nil {
		return err
	}
	if owner != p.UserID {
		return apperr.Forbidden("only the patient or an admin can do this")
	}
	return nil
}

// ConfigService manages patient AI configs.
type ConfigService struct {
	repo     Repository
	authz    Authorizer
	tx       db.TxRunner
	defaults Defaults
	logger   zerolog.Logger
}

func NewConfigService(repo Repository, authz Authorizer, tx db.TxRunner, defaults Defaults, logger zerolog.Logger) *ConfigService {
	return &ConfigService{repo: repo, authz: authz, tx: tx, defaults: defaults, logger: logger}
}

// Effective returns the active config, or an inactive default config when
// the patient never saved one. It does not authorize.
func (s *ConfigService) Effective(ctx context.Context, patientID uuid.UUID) (*Config, error) {
	c, err := s.repo.Active(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return s.defaults.config(patientID), nil
	}
	return c, nil
}

func (s *ConfigService) Get(ctx context.Context, p auth.Principal, patientID uuid.UUID) (*Config, error) {
	if err := s.authz.Authorize(ctx, p, patientID); err != nil {
		return nil, err
	}
	return s.Effective(ctx, patientID)
}

// Save stores a new active config. Only the patient or an admin may change
// what leaves the system about the patient.
func (s *ConfigService) Save(ctx context.Context, p auth.Principal, patientID uuid.UUID, in ConfigInput) (*Config, error) {
	if err := requireOwner(ctx, s.authz, p, patientID); err != nil {
		return nil, err
	}
	c, err := in.build(patientID, s.defaults)
	if err != nil {
		return nil, err
	}
	createdBy := p.UserID
	c.CreatedByUserID = &createdBy

	if err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, c)
	}); err != nil {
		return nil, err
	}
	s.logger.Info().Str("patient_id", patientID.String()).Str("config_id", c.ID.String()).Msg("ai config saved")
	return c, nil
}

func (s *ConfigService) History(ctx context.Context, p auth.Principal, patientID uuid.UUID) ([]*Config, error) {
	if err := requireOwner(ctx, s.authz, p, patientID); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, patientID)
}
