package directory

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is an account of any role.
type User struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Email       string    `db:"email" json:"email"`
	FirstName   string    `db:"first_name" json:"first_name"`
	LastName    string    `db:"last_name" json:"last_name"`
	Role        string    `db:"role" json:"role"`
	DeviceToken *string   `db:"device_token" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Patient is the clinical entity of a patient user. Its ID is what medical
// records reference; UserID never changes once created.
type Patient struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	UserID      uuid.UUID  `db:"user_id" json:"user_id"`
	DateOfBirth *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Gender      *string    `db:"gender" json:"gender,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// Age in whole years at now, or -1 without a date of birth.
func (p *Patient) Age(now time.Time) int {
	if p.DateOfBirth == nil {
		return -1
	}
	dob := p.DateOfBirth.UTC()
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return age
}

// PatientProfile joins a patient with their user account.
type PatientProfile struct {
	Patient *Patient `json:"patient"`
	User    *User    `json:"user"`
}

// Roles match the role claims issued by the auth layer.
const (
	RolePatient      = "patient"
	RoleCaregiver    = "caregiver"
	RoleFamilyMember = "family_member"
	RoleAdmin        = "admin"
)

var validRoles = map[string]bool{
	RolePatient: true, RoleCaregiver: true, RoleFamilyMember: true, RoleAdmin: true,
}
