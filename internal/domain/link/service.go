// Package link implements the lifecycle of caregiver-patient and
// family-patient links, which gate access to a patient's data.
package link

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/domain/directory"
	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/clock"
	"github.com/carelink/carelink/internal/platform/db"
	"github.com/carelink/carelink/internal/platform/events"
	"github.com/carelink/carelink/internal/platform/metrics"
	"github.com/carelink/carelink/internal/platform/notification"
)

// Directory resolves the users and patients a link refers to.
type Directory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*directory.User, error)
	GetPatientByUserID(ctx context.Context, userID uuid.UUID) (*directory.Patient, error)
}

// Notifier delivers a templated notification to a user.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, templateID string, data map[string]string) error
}

type Service struct {
	repo      Repository
	dir       Directory
	tx        db.TxRunner
	clock     clock.Clock
	notifier  Notifier
	publisher events.Publisher
	logger    zerolog.Logger
}

func NewService(repo Repository, dir Directory, tx db.TxRunner, logger zerolog.Logger) *Service {
	if tx == nil {
		tx = db.NoTx{}
	}
	return &Service{
		repo:      repo,
		dir:       dir,
		tx:        tx,
		clock:     clock.System(),
		notifier:  notification.Nop{},
		publisher: events.Nop{},
		logger:    logger,
	}
}

func (s *Service) SetClock(c clock.Clock) { s.clock = c }

func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

func (s *Service) SetPublisher(p events.Publisher) { s.publisher = p }

// CreateLink inserts an ACTIVE link. It fails with a conflict when the pair
// already has a currently authorizing link of the same kind.
func (s *Service) CreateLink(ctx context.Context, in CreateInput) (*Record, error) {
	if in.Kind != KindCaregiver && in.Kind != KindFamily {
		return nil, apperr.Validation("unknown link kind %q", in.Kind)
	}
	if in.LinkType == "" {
		in.LinkType = TypePermanent
	}
	if in.SubjectUserID == in.PatientUserID {
		return nil, apperr.Validation("a user cannot be linked to themselves")
	}

	subject, err := s.dir.GetUser(ctx, in.SubjectUserID)
	if err != nil {
		return nil, err
	}
	if subject.Role != in.Kind.SubjectRole() {
		return nil, apperr.Validation("user %s is not a %s", subject.ID, in.Kind.SubjectRole())
	}
	if _, err := s.dir.GetUser(ctx, in.PatientUserID); err != nil {
		return nil, err
	}
	if _, err := s.dir.GetUser(ctx, in.CreatedByUserID); err != nil {
		return nil, err
	}
	patient, err := s.dir.GetPatientByUserID(ctx, in.PatientUserID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	r := &Record{
		Kind:            in.Kind,
		SubjectUserID:   in.SubjectUserID,
		PatientUserID:   in.PatientUserID,
		PatientID:       patient.ID,
		CreatedByUserID: in.CreatedByUserID,
		Status:          StatusActive,
		LinkType:        in.LinkType,
		ExpiresAt:       in.ExpiresAt,
		Notes:           in.Notes,
		Relationship:    in.Relationship,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := r.validate(); err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.ensureExclusive(ctx, r, now); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, r); err != nil {
			return err
		}
		s.afterTransition(ctx, r, "")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ensureExclusive takes the pair lock and fails when another currently
// authorizing link exists for the pair of r.
func (s *Service) ensureExclusive(ctx context.Context, r *Record, now time.Time) error {
	if err := s.repo.LockPair(ctx, r.Kind, r.SubjectUserID, r.PatientUserID); err != nil {
		return err
	}
	active, err := s.repo.ActiveForPair(ctx, r.Kind, r.SubjectUserID, r.PatientUserID)
	if err != nil {
		return err
	}
	for _, other := range active {
		if other.ID != r.ID && other.IsAuthorizing(now) {
			return apperr.Conflict("an active %s link already exists for this pair (%s)", r.Kind, other.ID)
		}
	}
	return nil
}

func (s *Service) GetLink(ctx context.Context, kind Kind, id uuid.UUID) (*Record, error) {
	return s.repo.GetByID(ctx, kind, id)
}

// mutation edits r in place. It returns false when r is already in the
// requested state.
type mutation func(r *Record, now time.Time) (bool, error)

// mutate loads the link, applies fn and writes it back with a version check.
// Results that leave the link authorizing are checked for exclusivity first.
func (s *Service) mutate(ctx context.Context, kind Kind, id uuid.UUID, fn mutation) (*Record, error) {
	var out *Record
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		r, err := s.repo.GetByID(ctx, kind, id)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		prev := r.Status
		wasAuthorizing := r.IsAuthorizing(now)

		changed, err := fn(r, now)
		if err != nil {
			return err
		}
		out = r
		if !changed {
			return nil
		}
		if err := r.validate(); err != nil {
			return apperr.Validation("%s", err.Error())
		}
		if r.IsAuthorizing(now) && !wasAuthorizing {
			if err := s.ensureExclusive(ctx, r, now); err != nil {
				return err
			}
		}
		r.UpdatedAt = now
		if err := s.repo.Update(ctx, r); err != nil {
			return err
		}
		if r.Status != prev {
			s.afterTransition(ctx, r, prev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateLink applies a partial update of the link's attributes. Status is
// changed only through the lifecycle operations and AdminForceStatus.
func (s *Service) UpdateLink(ctx context.Context, kind Kind, id uuid.UUID, in UpdateInput) (*Record, error) {
	if in.LinkType != nil && !in.LinkType.Valid() {
		return nil, apperr.Validation("invalid link_type: %q", *in.LinkType)
	}
	return s.mutate(ctx, kind, id, func(r *Record, _ time.Time) (bool, error) {
		in.apply(r)
		return true, nil
	})
}

// AdminForceStatus sets any status the kind allows, bypassing the
// transition rules. Forcing ACTIVE still respects pair exclusivity.
func (s *Service) AdminForceStatus(ctx context.Context, kind Kind, id uuid.UUID, status Status) (*Record, error) {
	if !kind.AllowsStatus(status) {
		return nil, apperr.Validation("status %q is not valid for %s links", status, kind)
	}
	return s.mutate(ctx, kind, id, func(r *Record, _ time.Time) (bool, error) {
		if r.Status == status {
			return false, nil
		}
		r.Status = status
		return true, nil
	})
}

// Suspend pauses a link. Terminal links cannot be suspended.
func (s *Service) Suspend(ctx context.Context, kind Kind, id uuid.UUID) (*Record, error) {
	return s.mutate(ctx, kind, id, func(r *Record, _ time.Time) (bool, error) {
		if r.Status.Terminal() {
			return false, apperr.Validation("cannot suspend a %s link", r.Status)
		}
		if r.Status == StatusSuspended {
			return false, nil
		}
		r.Status = StatusSuspended
		return true, nil
	})
}

// Reactivate resumes a SUSPENDED link.
func (s *Service) Reactivate(ctx context.Context, kind Kind, id uuid.UUID) (*Record, error) {
	return s.mutate(ctx, kind, id, func(r *Record, _ time.Time) (bool, error) {
		if r.Status != StatusSuspended {
			return false, apperr.Validation("only SUSPENDED links can be reactivated, link is %s", r.Status)
		}
		r.Status = StatusActive
		return true, nil
	})
}

// Revoke ends a link for good. Revoking a revoked link is a no-op.
func (s *Service) Revoke(ctx context.Context, kind Kind, id uuid.UUID) (*Record, error) {
	return s.mutate(ctx, kind, id, func(r *Record, _ time.Time) (bool, error) {
		switch r.Status {
		case StatusRevoked:
			return false, nil
		case StatusExpired, StatusRejected:
			return false, apperr.Validation("cannot revoke a %s link", r.Status)
		}
		r.Status = StatusRevoked
		return true, nil
	})
}

// CleanupExpired moves every ACTIVE link past its expiry to EXPIRED. Each
// row is written on its own with a version check; rows changed by a
// concurrent writer are skipped and picked up by the next run if still due.
func (s *Service) CleanupExpired(ctx context.Context) (int, error) {
	now := s.clock.Now()
	due, err := s.repo.ListExpired(ctx, now)
	if err != nil {
		return 0, err
	}

	var (
		expired int
		errs    []error
	)
	for _, r := range due {
		if r.IsAuthorizing(now) || r.Status != StatusActive {
			continue
		}
		r.Status = StatusExpired
		r.UpdatedAt = now
		err := s.repo.Update(ctx, r)
		switch {
		case errors.Is(err, apperr.ErrConcurrentUpdate):
			s.logger.Debug().Str("link_id", r.ID.String()).Msg("link changed during sweep, skipping")
			continue
		case err != nil:
			errs = append(errs, err)
			continue
		}
		expired++
		s.afterTransition(ctx, r, StatusActive)
	}
	return expired, errors.Join(errs...)
}

// HasAuthorizingLink reports whether subject currently holds an authorizing
// link of kind to the patient user.
func (s *Service) HasAuthorizingLink(ctx context.Context, kind Kind, subjectUserID, patientUserID uuid.UUID) (bool, error) {
	active, err := s.repo.ActiveForPair(ctx, kind, subjectUserID, patientUserID)
	if err != nil {
		return false, err
	}
	now := s.clock.Now()
	for _, r := range active {
		if r.IsAuthorizing(now) {
			return true, nil
		}
	}
	return false, nil
}

// ActiveLinksForSubject returns the currently authorizing links of a
// caregiver or family member, in no particular order.
func (s *Service) ActiveLinksForSubject(ctx context.Context, kind Kind, subjectUserID uuid.UUID) ([]*Record, error) {
	rows, err := s.repo.ActiveForSubject(ctx, kind, subjectUserID)
	if err != nil {
		return nil, err
	}
	return s.authorizing(rows), nil
}

// ActiveLinksForPatient returns the currently authorizing links to a
// patient user, in no particular order.
func (s *Service) ActiveLinksForPatient(ctx context.Context, kind Kind, patientUserID uuid.UUID) ([]*Record, error) {
	rows, err := s.repo.ActiveForPatient(ctx, kind, patientUserID)
	if err != nil {
		return nil, err
	}
	return s.authorizing(rows), nil
}

func (s *Service) authorizing(rows []*Record) []*Record {
	now := s.clock.Now()
	out := make([]*Record, 0, len(rows))
	for _, r := range rows {
		if r.IsAuthorizing(now) {
			out = append(out, r)
		}
	}
	return out
}

// ListLinks returns the full link history matching f, newest first.
func (s *Service) ListLinks(ctx context.Context, kind Kind, f ListFilter, limit, offset int) ([]*Record, int, error) {
	return s.repo.List(ctx, kind, f, limit, offset)
}

// afterTransition schedules the notifications and the lifecycle event of a
// status change once the surrounding transaction commits. Failures are
// logged only.
func (s *Service) afterTransition(ctx context.Context, r *Record, from Status) {
	snapshot := *r
	tenant := db.TenantFromContext(ctx)

	db.AfterCommit(ctx, func(ctx context.Context) {
		metrics.LinkTransitions.WithLabelValues(string(snapshot.Kind), string(snapshot.Status)).Inc()
		logger := s.logger.With().
			Str("link_id", snapshot.ID.String()).
			Str("kind", string(snapshot.Kind)).
			Str("status", string(snapshot.Status)).
			Logger()

		evt := events.LinkEvent{
			Type:          events.TypeLinkStatusChanged,
			TenantID:      tenant,
			LinkID:        snapshot.ID,
			Kind:          string(snapshot.Kind),
			SubjectUserID: snapshot.SubjectUserID,
			PatientUserID: snapshot.PatientUserID,
			FromStatus:    string(from),
			ToStatus:      string(snapshot.Status),
			Version:       snapshot.Version,
			OccurredAt:    snapshot.UpdatedAt,
		}
		if err := s.publisher.PublishLinkEvent(ctx, evt); err != nil {
			logger.Warn().Err(err).Msg("failed to publish link event")
		}

		subjectName := s.userName(ctx, snapshot.SubjectUserID)
		patientName := s.userName(ctx, snapshot.PatientUserID)
		data := map[string]string{
			"status":       string(snapshot.Status),
			"kind":         string(snapshot.Kind),
			"subject_name": subjectName,
			"patient_name": patientName,
		}
		for userID, other := range map[uuid.UUID]string{
			snapshot.SubjectUserID: patientName,
			snapshot.PatientUserID: subjectName,
		} {
			vars := make(map[string]string, len(data)+1)
			for k, v := range data {
				vars[k] = v
			}
			vars["other_name"] = other
			if err := s.notifier.Notify(ctx, userID, notification.TemplateLinkStatusChanged, vars); err != nil {
				logger.Warn().Err(err).Str("user_id", userID.String()).Msg("failed to send link notification")
			}
		}
	})
}

func (s *Service) userName(ctx context.Context, id uuid.UUID) string {
	u, err := s.dir.GetUser(ctx, id)
	if err != nil {
		return ""
	}
	return u.FullName()
}
