// Package connection implements caregiver connection requests: invitations
// the patient accepts or rejects through a single-use emailed token.
package connection

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/mail"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/domain/directory"
	"github.com/carelink/carelink/internal/domain/link"
	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/clock"
	"github.com/carelink/carelink/internal/platform/db"
	"github.com/carelink/carelink/internal/platform/notification"
)

// Directory resolves the users a request refers to.
type Directory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*directory.User, error)
	GetUserByEmail(ctx context.Context, email string) (*directory.User, error)
}

// Links creates the caregiver link of an accepted request.
type Links interface {
	CreateLink(ctx context.Context, in link.CreateInput) (*link.Record, error)
	HasAuthorizingLink(ctx context.Context, kind link.Kind, subjectUserID, patientUserID uuid.UUID) (bool, error)
}

type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, templateID string, data map[string]string) error
}

type Service struct {
	repo     Repository
	dir      Directory
	links    Links
	tx       db.TxRunner
	clock    clock.Clock
	notifier Notifier
	baseURL  string
	logger   zerolog.Logger
}

// NewService builds the service. baseURL is the public origin the respond
// links in invitation emails point to.
func NewService(repo Repository, dir Directory, links Links, tx db.TxRunner, baseURL string, logger zerolog.Logger) *Service {
	if tx == nil {
		tx = db.NoTx{}
	}
	return &Service{
		repo:     repo,
		dir:      dir,
		links:    links,
		tx:       tx,
		clock:    clock.System(),
		notifier: notification.Nop{},
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   logger,
	}
}

func (s *Service) SetClock(c clock.Clock) { s.clock = c }

func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

// newToken returns 32 random bytes, hex encoded.
func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// CreateRequest files a PENDING request from a caregiver to the patient with
// the given email and emails the patient the approve and reject links.
func (s *Service) CreateRequest(ctx context.Context, caregiverUserID uuid.UUID, in CreateInput) (*Request, error) {
	if _, err := mail.ParseAddress(in.PatientEmail); err != nil {
		return nil, apperr.Validation("invalid patient_email")
	}
	if in.Message != nil && len(*in.Message) > maxMessageLen {
		return nil, apperr.Validation("message must be at most %d characters", maxMessageLen)
	}

	caregiver, err := s.dir.GetUser(ctx, caregiverUserID)
	if err != nil {
		return nil, err
	}
	if caregiver.Role != directory.RoleCaregiver {
		return nil, apperr.Validation("only caregivers can send connection requests")
	}
	patient, err := s.dir.GetUserByEmail(ctx, in.PatientEmail)
	if err != nil {
		return nil, err
	}
	if patient.Role != directory.RolePatient {
		return nil, apperr.NotFound("no patient with email %s", in.PatientEmail)
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}
	r := &Request{
		CaregiverUserID:  caregiver.ID,
		PatientUserID:    patient.ID,
		Status:           StatusPending,
		RelationshipType: in.RelationshipType,
		Message:          in.Message,
		Token:            token,
		RequestedAt:      s.clock.Now(),
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.LockPair(ctx, r.CaregiverUserID, r.PatientUserID); err != nil {
			return err
		}
		pending, err := s.repo.PendingForPair(ctx, r.CaregiverUserID, r.PatientUserID)
		if err != nil {
			return err
		}
		if pending != nil {
			return apperr.Conflict("a pending connection request already exists (%s)", pending.ID)
		}
		linked, err := s.links.HasAuthorizingLink(ctx, link.KindCaregiver, r.CaregiverUserID, r.PatientUserID)
		if err != nil {
			return err
		}
		if linked {
			return apperr.Conflict("caregiver is already linked to this patient")
		}
		if err := s.repo.Create(ctx, r); err != nil {
			return err
		}

		data := map[string]string{
			"caregiver_name": caregiver.FullName(),
			"relationship":   deref(r.RelationshipType, "caregiver"),
			"message":        deref(r.Message, ""),
			"accept_url":     s.respondURL(ctx, token, "accept"),
			"reject_url":     s.respondURL(ctx, token, "reject"),
		}
		patientID := r.PatientUserID
		db.AfterCommit(ctx, func(ctx context.Context) {
			if err := s.notifier.Notify(ctx, patientID, notification.TemplateConnectionRequested, data); err != nil {
				s.logger.Warn().Err(err).Str("request_id", r.ID.String()).Msg("failed to send connection request email")
			}
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// respondURL builds the unauthenticated approve/reject link. The respond route
// carries no JWT, so the tenant travels as tenant_id.
func (s *Service) respondURL(ctx context.Context, token, action string) string {
	q := url.Values{"token": {token}, "action": {action}}
	if tenant := db.TenantFromContext(ctx); tenant != "" {
		q.Set("tenant_id", tenant)
	}
	return s.baseURL + "/api/v1/connection-requests/respond?" + q.Encode()
}

// Resolve answers the request identified by token. Accepting creates a
// PERMANENT caregiver link in the same transaction. The caregiver is notified
// of the outcome either way.
func (s *Service) Resolve(ctx context.Context, token string, accepted bool) (*Request, error) {
	if token == "" {
		return nil, apperr.NotFound("connection request not found")
	}

	var out *Request
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		r, err := s.repo.GetByTokenForUpdate(ctx, token)
		if err != nil {
			return err
		}
		if r.Status != StatusPending {
			return apperr.Conflict("connection request was already %s", strings.ToLower(string(r.Status)))
		}

		now := s.clock.Now()
		r.RespondedAt = &now
		r.Status = StatusRejected
		if accepted {
			r.Status = StatusAccepted
			l, err := s.links.CreateLink(ctx, link.CreateInput{
				Kind:            link.KindCaregiver,
				SubjectUserID:   r.CaregiverUserID,
				PatientUserID:   r.PatientUserID,
				CreatedByUserID: r.PatientUserID,
				LinkType:        link.TypePermanent,
				Relationship:    r.RelationshipType,
			})
			if err != nil {
				return err
			}
			r.LinkID = &l.ID
		}
		if err := s.repo.Resolve(ctx, r); err != nil {
			return err
		}
		out = r

		resolved := *r
		db.AfterCommit(ctx, func(ctx context.Context) { s.notifyResolved(ctx, &resolved) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) notifyResolved(ctx context.Context, r *Request) {
	outcome := "declined"
	if r.Status == StatusAccepted {
		outcome = "accepted"
	}
	var patientName string
	if u, err := s.dir.GetUser(ctx, r.PatientUserID); err == nil {
		patientName = u.FullName()
	}
	err := s.notifier.Notify(ctx, r.CaregiverUserID, notification.TemplateConnectionResolved, map[string]string{
		"outcome":      outcome,
		"patient_name": patientName,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("request_id", r.ID.String()).Msg("failed to notify caregiver of connection outcome")
	}
}

func (s *Service) GetRequest(ctx context.Context, id uuid.UUID) (*Request, error) {
	return s.repo.GetByID(ctx, id)
}

// ListForCaregiver returns every request the caregiver sent, newest first.
func (s *Service) ListForCaregiver(ctx context.Context, caregiverUserID uuid.UUID, limit, offset int) ([]*Request, int, error) {
	return s.repo.ListForCaregiver(ctx, caregiverUserID, limit, offset)
}

// ListPendingForPatient returns the requests awaiting the patient's answer.
func (s *Service) ListPendingForPatient(ctx context.Context, patientUserID uuid.UUID) ([]*Request, error) {
	return s.repo.ListPendingForPatient(ctx, patientUserID)
}

func deref(s *string, def string) string {
	if s == nil || *s == "" {
		return def
	}
	return *s
}
