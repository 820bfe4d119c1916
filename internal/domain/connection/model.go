package connection

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAccepted Status = "ACCEPTED"
	StatusRejected Status = "REJECTED"
)

// Request is a caregiver's invitation to be linked to a patient. The patient
// answers it once through the token sent by email.
type Request struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	CaregiverUserID  uuid.UUID  `db:"caregiver_user_id" json:"caregiver_user_id"`
	PatientUserID    uuid.UUID  `db:"patient_user_id" json:"patient_user_id"`
	Status           Status     `db:"status" json:"status"`
	RelationshipType *string    `db:"relationship_type" json:"relationship_type,omitempty"`
	Message          *string    `db:"message" json:"message,omitempty"`
	Token            string     `db:"token" json:"-"`
	LinkID           *uuid.UUID `db:"link_id" json:"link_id,omitempty"`
	RequestedAt      time.Time  `db:"requested_at" json:"requested_at"`
	RespondedAt      *time.Time `db:"responded_at" json:"responded_at,omitempty"`
}

type CreateInput struct {
	PatientEmail     string  `json:"patient_email"`
	RelationshipType *string `json:"relationship_type,omitempty"`
	Message          *string `json:"message,omitempty"`
}

const maxMessageLen = 1000
