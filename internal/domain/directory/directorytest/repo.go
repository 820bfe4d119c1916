// Package directorytest provides an in-memory directory repository for
// tests of packages that resolve users and patients.
package directorytest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/carelink/internal/domain/directory"
	"github.com/carelink/carelink/internal/platform/apperr"
)

// Repo implements directory.Repository in memory. Err, when set, is
// returned by every read.
type Repo struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*directory.User
	patients map[uuid.UUID]*directory.Patient
	Err      error
}

func NewRepo() *Repo {
	return &Repo{
		users:    make(map[uuid.UUID]*directory.User),
		patients: make(map[uuid.UUID]*directory.Patient),
	}
}

// AddUser stores a user with the given role and returns it.
func (r *Repo) AddUser(role, first, last string) *directory.User {
	u := &directory.User{
		ID:        uuid.New(),
		Email:     strings.ToLower(first+"."+last) + "@example.com",
		FirstName: first,
		LastName:  last,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	r.mu.Lock()
	r.users[u.ID] = u
	r.mu.Unlock()
	return u
}

// AddPatient stores a patient user together with its patient entity.
func (r *Repo) AddPatient(first, last string, dob *time.Time, gender string) (*directory.User, *directory.Patient) {
	u := r.AddUser("patient", first, last)
	p := &directory.Patient{ID: uuid.New(), UserID: u.ID, DateOfBirth: dob, CreatedAt: time.Now().UTC()}
	if gender != "" {
		p.Gender = &gender
	}
	r.mu.Lock()
	r.patients[p.ID] = p
	r.mu.Unlock()
	return u, p
}

func (r *Repo) CreateUser(_ context.Context, u *directory.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return apperr.Conflict("a user with email %s already exists", u.Email)
		}
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now().UTC()
	r.users[u.ID] = u
	return nil
}

func (r *Repo) GetUser(_ context.Context, id uuid.UUID) (*directory.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	u, ok := r.users[id]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	return u, nil
}

func (r *Repo) GetUserByEmail(_ context.Context, email string) (*directory.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, apperr.NotFound("user not found")
}

func (r *Repo) UpdateDeviceToken(_ context.Context, userID uuid.UUID, token *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return apperr.NotFound("user not found")
	}
	u.DeviceToken = token
	return nil
}

func (r *Repo) CreatePatient(_ context.Context, p *directory.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.patients {
		if existing.UserID == p.UserID {
			return apperr.Conflict("user %s already has a patient record", p.UserID)
		}
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now().UTC()
	r.patients[p.ID] = p
	return nil
}

func (r *Repo) GetPatient(_ context.Context, id uuid.UUID) (*directory.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	p, ok := r.patients[id]
	if !ok {
		return nil, apperr.NotFound("patient not found")
	}
	return p, nil
}

func (r *Repo) GetPatientByUserID(_ context.Context, userID uuid.UUID) (*directory.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	for _, p := range r.patients {
		if p.UserID == userID {
			return p, nil
		}
	}
	return nil, apperr.NotFound("patient not found")
}
