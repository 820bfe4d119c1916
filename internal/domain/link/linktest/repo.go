// Package linktest provides an in-memory link repository with the same
// version-check semantics as the Postgres one.
package linktest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/carelink/internal/domain/link"
	"github.com/carelink/carelink/internal/platform/apperr"
)

// Repo stores copies of records, so callers only see their edits after
// Update succeeds.
type Repo struct {
	mu    sync.Mutex
	links map[uuid.UUID]link.Record
	locks int

	// BeforeUpdate, when set, runs before each Update is applied. Tests use
	// it to simulate a concurrent writer.
	BeforeUpdate func(r *link.Record)
	// Err, when set, is returned by every read.
	Err error
}

func NewRepo() *Repo {
	return &Repo{links: make(map[uuid.UUID]link.Record)}
}

// Locks counts LockPair calls.
func (m *Repo) Locks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locks
}

// Get returns the stored state of id.
func (m *Repo) Get(id uuid.UUID) (link.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.links[id]
	return r, ok
}

// Put stores r as is, bypassing the service.
func (m *Repo) Put(r link.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Version == 0 {
		r.Version = 1
	}
	m.links[r.ID] = r
}

// Bump increments the stored version of id, as a concurrent writer would.
func (m *Repo) Bump(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.links[id]
	r.Version++
	m.links[id] = r
}

func (m *Repo) LockPair(context.Context, link.Kind, uuid.UUID, uuid.UUID) error {
	m.mu.Lock()
	m.locks++
	m.mu.Unlock()
	return nil
}

func (m *Repo) Create(_ context.Context, r *link.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = uuid.New()
	r.Version = 1
	m.links[r.ID] = *r
	return nil
}

func (m *Repo) GetByID(_ context.Context, kind link.Kind, id uuid.UUID) (*link.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	r, ok := m.links[id]
	if !ok || r.Kind != kind {
		return nil, apperr.NotFound("%s link %s not found", kind, id)
	}
	return &r, nil
}

func (m *Repo) Update(_ context.Context, r *link.Record) error {
	if m.BeforeUpdate != nil {
		m.BeforeUpdate(r)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.links[r.ID]
	if !ok || stored.Version != r.Version {
		return apperr.ErrConcurrentUpdate
	}
	r.Version++
	m.links[r.ID] = *r
	return nil
}

func (m *Repo) filter(keep func(r *link.Record) bool) ([]*link.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []*link.Record
	for _, r := range m.links {
		r := r
		if keep(&r) {
			out = append(out, &r)
		}
	}
	return out, nil
}

func (m *Repo) ActiveForPair(_ context.Context, kind link.Kind, subject, patient uuid.UUID) ([]*link.Record, error) {
	return m.filter(func(r *link.Record) bool {
		return r.Kind == kind && r.SubjectUserID == subject && r.PatientUserID == patient && r.Status == link.StatusActive
	})
}

func (m *Repo) ActiveForSubject(_ context.Context, kind link.Kind, subject uuid.UUID) ([]*link.Record, error) {
	return m.filter(func(r *link.Record) bool {
		return r.Kind == kind && r.SubjectUserID == subject && r.Status == link.StatusActive
	})
}

func (m *Repo) ActiveForPatient(_ context.Context, kind link.Kind, patient uuid.UUID) ([]*link.Record, error) {
	return m.filter(func(r *link.Record) bool {
		return r.Kind == kind && r.PatientUserID == patient && r.Status == link.StatusActive
	})
}

func (m *Repo) ListExpired(_ context.Context, now time.Time) ([]*link.Record, error) {
	return m.filter(func(r *link.Record) bool {
		return r.Status == link.StatusActive && r.ExpiresAt != nil && r.ExpiresAt.Before(now)
	})
}

func (m *Repo) List(_ context.Context, kind link.Kind, f link.ListFilter, limit, offset int) ([]*link.Record, int, error) {
	items, err := m.filter(func(r *link.Record) bool {
		return r.Kind == kind &&
			(f.SubjectUserID == uuid.Nil || r.SubjectUserID == f.SubjectUserID) &&
			(f.PatientUserID == uuid.Nil || r.PatientUserID == f.PatientUserID) &&
			(f.Status == "" || r.Status == f.Status)
	})
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
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
