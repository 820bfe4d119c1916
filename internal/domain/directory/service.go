// Package directory holds user accounts and patient entities.
package directory

import (
	"context"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/notification"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) CreateUser(ctx context.Context, u *User) error {
	u.Role = strings.ToLower(strings.TrimSpace(u.Role))
	if !validRoles[u.Role] {
		return apperr.Validation("invalid role: %q", u.Role)
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return apperr.Validation("invalid email: %q", u.Email)
	}
	if strings.TrimSpace(u.FirstName) == "" {
		return apperr.Validation("first_name is required")
	}
	return s.repo.CreateUser(ctx, u)
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetUser(ctx, id)
}

func (s *Service) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.GetUserByEmail(ctx, email)
}

// SetDeviceToken registers (or with an empty token, removes) the FCM token
// of a user.
func (s *Service) SetDeviceToken(ctx context.Context, userID uuid.UUID, token string) error {
	var t *string
	if token = strings.TrimSpace(token); token != "" {
		t = &token
	}
	return s.repo.UpdateDeviceToken(ctx, userID, t)
}

// CreatePatient adds the patient entity for a user with the patient role.
func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	u, err := s.repo.GetUser(ctx, p.UserID)
	if err != nil {
		return err
	}
	if u.Role != RolePatient {
		return apperr.Validation("user %s is not a patient", u.ID)
	}
	return s.repo.CreatePatient(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetPatient(ctx, id)
}

func (s *Service) GetPatientByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	return s.repo.GetPatientByUserID(ctx, userID)
}

// PatientUserID resolves a patient entity to its owning user.
func (s *Service) PatientUserID(ctx context.Context, patientID uuid.UUID) (uuid.UUID, error) {
	p, err := s.repo.GetPatient(ctx, patientID)
	if err != nil {
		return uuid.Nil, err
	}
	return p.UserID, nil
}

func (s *Service) GetPatientProfile(ctx context.Context, patientID uuid.UUID) (*PatientProfile, error) {
	p, err := s.repo.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	u, err := s.repo.GetUser(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	return &PatientProfile{Patient: p, User: u}, nil
}

// Recipient implements notification.RecipientResolver.
func (s *Service) Recipient(ctx context.Context, userID uuid.UUID) (*notification.Recipient, error) {
	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	r := &notification.Recipient{UserID: u.ID, Name: u.FullName(), Email: u.Email}
	if u.DeviceToken != nil {
		r.DeviceToken = *u.DeviceToken
	}
	return r, nil
}
