// Package access decides whether a principal may read or write a patient's
// data. Every protected data path goes through Service.
package access

import (
	"context"
	"strings"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/domain/directory"
	"github.com/carelink/carelink/internal/domain/link"
	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/db"
	"github.com/carelink/carelink/internal/platform/metrics"
)

// Patients resolves a patient entity.
type Patients interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*directory.Patient, error)
}

// Links answers whether a currently authorizing link exists.
type Links interface {
	HasAuthorizingLink(ctx context.Context, kind link.Kind, subjectUserID, patientUserID uuid.UUID) (bool, error)
}

type Service struct {
	patients Patients
	links    Links
	logger   zerolog.Logger

	// owners caches patient entity id to user id per tenant. The mapping
	// never changes once a patient exists.
	owners *lru.Cache[ownerKey, uuid.UUID]
}

type ownerKey struct {
	tenant    string
	patientID uuid.UUID
}

const ownerCacheSize = 10000

func NewService(patients Patients, links Links, logger zerolog.Logger) *Service {
	owners, err := lru.New[ownerKey, uuid.UUID](ownerCacheSize)
	if err != nil {
		panic(err) // only for a non-positive size
	}
	return &Service{
		patients: patients,
		links:    links,
		logger:   logger,
		owners:   owners,
	}
}

// PatientUserID returns the user id owning a patient entity.
func (s *Service) PatientUserID(ctx context.Context, patientID uuid.UUID) (uuid.UUID, error) {
	key := ownerKey{tenant: db.TenantFromContext(ctx), patientID: patientID}
	if userID, ok := s.owners.Get(key); ok {
		return userID, nil
	}

	p, err := s.patients.GetPatient(ctx, patientID)
	if err != nil {
		return uuid.Nil, err
	}
	s.owners.Add(key, p.UserID)
	return p.UserID, nil
}

// HasAccess reports whether userID acting as role may access the patient's
// data. It fails closed: unknown roles, unresolvable patients and lookup
// errors all deny.
func (s *Service) HasAccess(ctx context.Context, userID uuid.UUID, role string, patientID uuid.UUID) bool {
	role = strings.ToLower(role)
	granted := s.check(ctx, userID, role, patientID)

	label := role
	switch role {
	case auth.RolePatient, auth.RoleCaregiver, auth.RoleFamilyMember, auth.RoleAdmin:
	default:
		label = "other"
	}
	metrics.AccessChecks.WithLabelValues(label, metrics.AccessResult(granted)).Inc()
	return granted
}

func (s *Service) check(ctx context.Context, userID uuid.UUID, role string, patientID uuid.UUID) bool {
	if userID == uuid.Nil || patientID == uuid.Nil {
		return false
	}

	var kind link.Kind
	switch role {
	case auth.RoleAdmin:
		return true
	case auth.RolePatient:
	case auth.RoleCaregiver:
		kind = link.KindCaregiver
	case auth.RoleFamilyMember:
		kind = link.KindFamily
	default:
		return false
	}

	logger := s.logger.With().
		Str("user_id", userID.String()).
		Str("role", role).
		Str("patient_id", patientID.String()).
		Logger()

	owner, err := s.PatientUserID(ctx, patientID)
	if err != nil {
		logger.Warn().Err(err).Msg("access check: patient lookup failed")
		return false
	}
	if role == auth.RolePatient {
		return owner == userID
	}

	ok, err := s.links.HasAuthorizingLink(ctx, kind, userID, owner)
	if err != nil {
		logger.Warn().Err(err).Msg("access check: link lookup failed")
		return false
	}
	return ok
}

// Authorize grants when any of the principal's roles has access, and
// returns a forbidden error otherwise.
func (s *Service) Authorize(ctx context.Context, p auth.Principal, patientID uuid.UUID) error {
	for _, role := range p.Roles {
		if s.HasAccess(ctx, p.UserID, role, patientID) {
			return nil
		}
	}
	return apperr.Forbidden("no access to patient %s", patientID)
}
