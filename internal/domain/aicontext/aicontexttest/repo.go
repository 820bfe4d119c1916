// Package aicontexttest provides an in-memory AI config repository.
package aicontexttest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/carelink/internal/domain/aicontext"
)

// Repo implements aicontext.Repository. Err, when set, is returned by
// every call.
type Repo struct {
	mu      sync.Mutex
	configs []*aicontext.Config
	now     time.Time
	Err     error
}

func NewRepo() *Repo {
	return &Repo{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (r *Repo) Active(_ context.Context, patientID uuid.UUID) (*aicontext.Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	for _, c := range r.configs {
		if c.PatientID == patientID && c.IsActive {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *Repo) Create(_ context.Context, c *aicontext.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	for _, existing := range r.configs {
		if existing.PatientID == c.PatientID {
			existing.IsActive = false
		}
	}
	// Strictly increasing timestamps keep History ordering stable.
	r.now = r.now.Add(time.Second)
	c.ID = uuid.New()
	c.CreatedAt = r.now
	cp := *c
	r.configs = append(r.configs, &cp)
	return nil
}

func (r *Repo) History(_ context.Context, patientID uuid.UUID) ([]*aicontext.Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	var out []*aicontext.Config
	for _, c := range r.configs {
		if c.PatientID == patientID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
