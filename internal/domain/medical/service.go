// Package medical records and lists a patient's vitals, medications,
// clinical notes, mood and pain logs, and allergies.
package medical

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/domain/directory"
	"github.com/carelink/carelink/internal/domain/link"
	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/clock"
	"github.com/carelink/carelink/internal/platform/notification"
)

// Authorizer is satisfied by access.Service.
type Authorizer interface {
	Authorize(ctx context.Context, p auth.Principal, patientID uuid.UUID) error
}

// CareTeam lists the caregivers currently linked to a patient user.
type CareTeam interface {
	ActiveLinksForPatient(ctx context.Context, kind link.Kind, patientUserID uuid.UUID) ([]*link.Record, error)
}

type Profiles interface {
	GetPatientProfile(ctx context.Context, patientID uuid.UUID) (*directory.PatientProfile, error)
}

type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, templateID string, data map[string]string) error
}

type Service struct {
	repo     Repository
	authz    Authorizer
	clock    clock.Clock
	team     CareTeam
	profiles Profiles
	notifier Notifier
	logger   zerolog.Logger
}

func NewService(repo Repository, authz Authorizer, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		authz:    authz,
		clock:    clock.System(),
		notifier: notification.Nop{},
		logger:   logger,
	}
}

func (s *Service) SetClock(c clock.Clock) { s.clock = c }

// SetVitalAlerts enables push notifications to a patient's caregivers when a
// vital is recorded.
func (s *Service) SetVitalAlerts(team CareTeam, profiles Profiles, n Notifier) {
	s.team = team
	s.profiles = profiles
	s.notifier = n
}

// checkTime defaults a zero timestamp to now and rejects future ones.
func (s *Service) checkTime(t *time.Time, field string) error {
	now := s.clock.Now()
	if t.IsZero() {
		*t = now
		return nil
	}
	if t.After(now) {
		return apperr.Validation("%s cannot be in the future", field)
	}
	return nil
}

func (s *Service) RecordVital(ctx context.Context, p auth.Principal, patientID uuid.UUID, v *Vital) error {
	if err := s.authz.Authorize(ctx, p, patientID); err != nil {
		return err
	}
	v.Type = strings.TrimSpace(v.Type)
	if v.Type == "" {
		return apperr.Validation("type is required")
	}
	if math.IsNaN(v.Value) || math.IsInf(v.Value, 0) {
		return apperr.Validation("value must be a finite number")
	}
	if err := s.checkTime(&v.RecordedAt, "recorded_at"); err != nil {
		return err
	}
	v.PatientID = patientID
	v.RecordedByUserID = p.UserID
	if err := s.repo.CreateVital(ctx, v); err != nil {
		return err
	}
	s.alertCareTeam(ctx, v)
	return nil
}

// alertCareTeam pushes the new reading to every caregiver currently linked
// to the patient. Failures are logged only.
func (s *Service) alertCareTeam(ctx context.Context, v *Vital) {
	if s.team == nil || s.profiles == nil {
		return
	}
	logger := s.logger.With().Str("patient_id", v.PatientID.String()).Str("vital_id", v.ID.String()).Logger()

	profile, err := s.profiles.GetPatientProfile(ctx, v.PatientID)
	if err != nil {
		logger.Warn().Err(err).Msg("vital alert: patient lookup failed")
		return
	}
	links, err := s.team.ActiveLinksForPatient(ctx, link.KindCaregiver, profile.User.ID)
	if err != nil {
		logger.Warn().Err(err).Msg("vital alert: care team lookup failed")
		return
	}
	data := map[string]string{
		"patient_name": profile.User.FullName(),
		"vital_type":   v.Type,
		"value":        strconv.FormatFloat(v.Value, 'f', -1, 64),
		"unit":         v.Unit,
	}
	for _, l := range links {
		if l.SubjectUserID == v.RecordedByUserID {
			continue
		}
		if err := s.notifier.Notify(ctx, l.SubjectUserID, notification.TemplateVitalRecorded, data); err != nil {
			logger.Warn().Err(err).Str("user_id", l.SubjectUserID.String()).Msg("vital alert failed")
		}
	}
}

func (s *Service) ListVitals(ctx context.Context, p auth.Principal, patientID uuid.UUID, limit int) ([]*Vital, error) {
	if err := s.authz.Authorize(ctx, p, patientID); err != nil {
		return nil, err
	}
	return s.repo.ListVitals(ctx, patientID, limit)
}

func (s *Service) AddMedication(ctx context.Context, p auth.Principal, patientID uuid.UUID, m *Medication) error {
	if err := s.authz.Authorize(ctx, p, patientID); err != nil {
		return err
	}
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return apperr.Validation("name is required")
	}
	if m.StartedAt != nil {
		if err := s.checkTime(m.StartedAt, "started_at"); err != nil {
			return err
		}
	}
	m.PatientID = patientID
	m.Active = true
	return s.repo.CreateMedication(ctx, m)
}

// StopMedication marks a medication inactive. It stays in the history.
func (s *Service) StopMedication(ctx context.Context, p auth.Principal, patientID, id uuid.UUID) error {
	if err := s.authz.Authorize(ctx, p, patientID); err != nil {
		return err
	}
	return s.repo.SetMedicationActive(ctx, patientID, id, false)
}

func (s *Service) ListMedications(ctx context.Context, p auth.Principal, patientID uuid.UUID, activeOnly bool) ([]*Medication, error) {
	if err := s.authz.Authorize(ctx, p, patientID); err != nil {
		return nil, err
	}
	return s.repo.ListMedications(ctx, patientID, activeOnly)
}

func (s *Service) AddNote(ctx context.Context, p auth.Principal, patientID uuid.UUID, n *ClinicalNote) error {
	if err := s.authz.Authorize(ctx, p, patientID); err != nil {
		return err
	}
	n.Content = strings.TrimSpace(n.Content)
	if n.Content == "" {
		return apperr.Validation("content is required")
	}
	if len(n.Content) > maxNoteLen {
		return apperr.Validation("content must be at most %d characters", maxNoteLen)
	}
	n.PatientID = patientID
	n.AuthorUserID = p.UserID
	n.CreatedAt = s.clock.Now()
	return s.repo.CreateNote(ctx, n)
}

func (s *Service) ListNotes(ctx context.Context, p auth.Principal, patientID uuid.UUID, limit int) ([]*ClinicalNote, error) {
	if err := s.authz.Authorize(ctx, p, patientID); err != nil {
		return nil, err
	}
	return s.repo.ListNotes(ctx, patientID, limit)
}

func (s *Service) LogMoodPain(ctx context.Context, p auth.Principal, patientID uuid.UUID, l *MoodPainLog) error {
	if err := s.authz.Authorize(ctx, p, patientID); err != nil {
		return err
	}
	if l.Mood < 1 || l.Mood > 10 {
		return apperr.Validation("mood must be between 1 and 10")
	}
	if l.Pain < 0 || l.Pain > 10 {
		return apperr.Validation("pain must be between 0 and 10")
	}
	if err := s.checkTime(&l.LoggedAt, "logged_at"); err != nil {
		return err
	}
	l.PatientID = patientID
	return s.repo.CreateMoodPainLog(ctx, l)
}

func (s *Service) ListMoodPainLogs(ctx context.Context, p auth.Principal, patientID uuid.UUID, limit int) ([]*MoodPainLog, error) {
	if err := s.authz.Authorize(ctx, p, patientID); err != nil {
		return nil, err
	}
	return s.repo.ListMoodPainLogs(ctx, patientID, limit)
}

func (s *Service) AddAllergy(ctx context.Context, p auth.Principal, patientID uuid.UUID, a *Allergy) error {
	if err := s.authz.Authorize(ctx, p, patientID); err != nil {
		return err
	}
	a.Allergen = strings.TrimSpace(a.Allergen)
	if a.Allergen == "" {
		return apperr.Validation("allergen is required")
	}
	a.Severity = strings.ToLower(strings.TrimSpace(a.Severity))
	if !validSeverities[a.Severity] {
		return apperr.Validation("severity must be mild, moderate or severe")
	}
	a.PatientID = patientID
	a.Active = true
	return s.repo.CreateAllergy(ctx, a)
}

func (s *Service) ListAllergies(ctx context.Context, p auth.Principal, patientID uuid.UUID, activeOnly bool) ([]*Allergy, error) {
	if err := s.authz.Authorize(ctx, p, patientID); err != nil {
		return nil, err
	}
	return s.repo.ListAllergies(ctx, patientID, activeOnly)
}
