package link

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/carelink/internal/domain/directory"
)

// Kind distinguishes caregiver links from family links. Both follow the
// same lifecycle.
type Kind string

const (
	KindCaregiver Kind = "caregiver"
	KindFamily    Kind = "family"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(s)); k {
	case KindCaregiver, KindFamily:
		return k, nil
	}
	return "", fmt.Errorf("unknown link kind %q", s)
}

// SubjectRole is the user role a link subject of this kind must have.
func (k Kind) SubjectRole() string {
	if k == KindFamily {
		return directory.RoleFamilyMember
	}
	return directory.RoleCaregiver
}

// AllowsStatus reports whether a link of this kind may hold status.
// Family links never go through the request stage.
func (k Kind) AllowsStatus(s Status) bool {
	if !s.Valid() {
		return false
	}
	if k == KindFamily && (s == StatusPending || s == StatusRejected) {
		return false
	}
	return true
}

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
	StatusRevoked   Status = "REVOKED"
	StatusExpired   Status = "EXPIRED"
	StatusRejected  Status = "REJECTED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusSuspended, StatusRevoked, StatusExpired, StatusRejected:
		return true
	}
	return false
}

// Terminal statuses are only left through AdminForceStatus.
func (s Status) Terminal() bool {
	return s == StatusRevoked || s == StatusExpired || s == StatusRejected
}

type LinkType string

const (
	TypePermanent LinkType = "PERMANENT"
	TypeTemporary LinkType = "TEMPORARY"
	TypeEmergency LinkType = "EMERGENCY"
)

func (t LinkType) Valid() bool {
	return t == TypePermanent || t == TypeTemporary || t == TypeEmergency
}

// Record is a caregiver-patient or family-patient link.
type Record struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	Kind            Kind       `db:"kind" json:"kind"`
	SubjectUserID   uuid.UUID  `db:"subject_user_id" json:"subject_user_id"`
	PatientUserID   uuid.UUID  `db:"patient_user_id" json:"patient_user_id"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patient_id"`
	CreatedByUserID uuid.UUID  `db:"created_by_user_id" json:"created_by_user_id"`
	Status          Status     `db:"status" json:"status"`
	LinkType        LinkType   `db:"link_type" json:"link_type"`
	ExpiresAt       *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	Notes           *string    `db:"notes" json:"notes,omitempty"`
	Relationship    *string    `db:"relationship" json:"relationship,omitempty"`
	Version         int        `db:"version" json:"version"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// IsAuthorizing reports whether the link grants access at now: it is ACTIVE
// and has not passed its expiry. Access decisions use this and never the
// raw status, since expired links stay ACTIVE until the sweep runs.
func (r *Record) IsAuthorizing(now time.Time) bool {
	return r.Status == StatusActive && (r.ExpiresAt == nil || r.ExpiresAt.After(now))
}

func (r *Record) validate() error {
	if !r.LinkType.Valid() {
		return fmt.Errorf("invalid link_type: %q", r.LinkType)
	}
	if r.LinkType == TypePermanent && r.ExpiresAt != nil {
		return fmt.Errorf("a PERMANENT link cannot have an expiry")
	}
	if !r.Kind.AllowsStatus(r.Status) {
		return fmt.Errorf("status %s is not valid for %s links", r.Status, r.Kind)
	}
	return nil
}

// CreateInput describes a new link. LinkType defaults to PERMANENT.
type CreateInput struct {
	Kind            Kind       `json:"-"`
	SubjectUserID   uuid.UUID  `json:"subject_user_id"`
	PatientUserID   uuid.UUID  `json:"patient_user_id"`
	CreatedByUserID uuid.UUID  `json:"-"`
	LinkType        LinkType   `json:"link_type"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	Relationship    *string    `json:"relationship,omitempty"`
}

// UpdateInput is a partial update; nil fields are left unchanged.
// ClearExpiry removes the expiry and wins over ExpiresAt.
type UpdateInput struct {
	LinkType     *LinkType  `json:"link_type,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	ClearExpiry  bool       `json:"clear_expiry,omitempty"`
	Notes        *string    `json:"notes,omitempty"`
	Relationship *string    `json:"relationship,omitempty"`
}

func (in UpdateInput) apply(r *Record) {
	if in.LinkType != nil {
		r.LinkType = *in.LinkType
	}
	if in.ClearExpiry {
		r.ExpiresAt = nil
	} else if in.ExpiresAt != nil {
		t := *in.ExpiresAt
		r.ExpiresAt = &t
	}
	if in.Notes != nil {
		r.Notes = in.Notes
	}
	if in.Relationship != nil {
		r.Relationship = in.Relationship
	}
}
