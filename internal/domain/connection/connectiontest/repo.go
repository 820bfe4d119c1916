// Package connectiontest provides an in-memory connection request
// repository.
package connectiontest

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/carelink/carelink/internal/domain/connection"
	"github.com/carelink/carelink/internal/platform/apperr"
)

type Repo struct {
	mu       sync.Mutex
	requests map[uuid.UUID]connection.Request
	Err      error
}

func NewRepo() *Repo {
	return &Repo{requests: make(map[uuid.UUID]connection.Request)}
}

// Get returns the stored state of id.
func (m *Repo) Get(id uuid.UUID) (connection.Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	return r, ok
}

func (m *Repo) LockPair(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func (m *Repo) Create(_ context.Context, r *connection.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	r.ID = uuid.New()
	m.requests[r.ID] = *r
	return nil
}

func (m *Repo) GetByID(_ context.Context, id uuid.UUID) (*connection.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, apperr.NotFound("connection request %s not found", id)
	}
	return &r, nil
}

func (m *Repo) GetByTokenForUpdate(_ context.Context, token string) (*connection.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.Token == token {
			return &r, nil
		}
	}
	return nil, apperr.NotFound("connection request not found")
}

func (m *Repo) Resolve(_ context.Context, r *connection.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.requests[r.ID]
	if !ok || stored.Status != connection.StatusPending {
		return apperr.Conflict("connection request %s was already resolved", r.ID)
	}
	m.requests[r.ID] = *r
	return nil
}

func (m *Repo) PendingForPair(_ context.Context, caregiverUserID, patientUserID uuid.UUID) (*connection.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.CaregiverUserID == caregiverUserID && r.PatientUserID == patientUserID && r.Status == connection.StatusPending {
			return &r, nil
		}
	}
	return nil, nil
}

func (m *Repo) list(keep func(r *connection.Request) bool) []*connection.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*connection.Request
	for _, r := range m.requests {
		r := r
		if keep(&r) {
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	return out
}

func (m *Repo) ListForCaregiver(_ context.Context, caregiverUserID uuid.UUID, limit, offset int) ([]*connection.Request, int, error) {
	items := m.list(func(r *connection.Request) bool { return r.CaregiverUserID == caregiverUserID })
	total := len(items)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return items[offset:end], total, nil
}

func (m *Repo) ListPendingForPatient(_ context.Context, patientUserID uuid.UUID) ([]*connection.Request, error) {
	return m.list(func(r *connection.Request) bool {
		return r.PatientUserID == patientUserID && r.Status == connection.StatusPending
	}), nil
}
