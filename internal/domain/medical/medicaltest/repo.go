// Package medicaltest provides an in-memory medical record repository.
package medicaltest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/carelink/internal/domain/medical"
	"github.com/carelink/carelink/internal/platform/apperr"
)

// Repo implements medical.Repository. Fail maps a list method name, e.g.
// "ListVitals", to the error it returns.
type Repo struct {
	mu          sync.Mutex
	vitals      []*medical.Vital
	medications []*medical.Medication
	notes       []*medical.ClinicalNote
	moodPain    []*medical.MoodPainLog
	allergies   []*medical.Allergy
	Fail        map[string]error
}

func NewRepo() *Repo {
	return &Repo{Fail: make(map[string]error)}
}

func limited[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func (r *Repo) CreateVital(_ context.Context, v *medical.Vital) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v.ID = uuid.New()
	v.CreatedAt = time.Now().UTC()
	c := *v
	r.vitals = append(r.vitals, &c)
	return nil
}

func (r *Repo) ListVitals(_ context.Context, patientID uuid.UUID, limit int) ([]*medical.Vital, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.Fail["ListVitals"]; err != nil {
		return nil, err
	}
	var out []*medical.Vital
	for _, v := range r.vitals {
		if v.PatientID == patientID {
			c := *v
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RecordedAt.After(out[j].RecordedAt) })
	return limited(out, limit), nil
}

func (r *Repo) CreateMedication(_ context.Context, m *medical.Medication) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.ID = uuid.New()
	m.CreatedAt = time.Now().UTC()
	c := *m
	r.medications = append(r.medications, &c)
	return nil
}

func (r *Repo) SetMedicationActive(_ context.Context, patientID, id uuid.UUID, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.medications {
		if m.ID == id && m.PatientID == patientID {
			m.Active = active
			return nil
		}
	}
	return apperr.NotFound("medication %s not found", id)
}

func (r *Repo) ListMedications(_ context.Context, patientID uuid.UUID, activeOnly bool) ([]*medical.Medication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.Fail["ListMedications"]; err != nil {
		return nil, err
	}
	var out []*medical.Medication
	for i := len(r.medications) - 1; i >= 0; i-- {
		m := r.medications[i]
		if m.PatientID == patientID && (m.Active || !activeOnly) {
			c := *m
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *Repo) CreateNote(_ context.Context, n *medical.ClinicalNote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n.ID = uuid.New()
	c := *n
	r.notes = append(r.notes, &c)
	return nil
}

func (r *Repo) ListNotes(_ context.Context, patientID uuid.UUID, limit int) ([]*medical.ClinicalNote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.Fail["ListNotes"]; err != nil {
		return nil, err
	}
	var out []*medical.ClinicalNote
	for _, n := range r.notes {
		if n.PatientID == patientID {
			c := *n
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return limited(out, limit), nil
}

func (r *Repo) CreateMoodPainLog(_ context.Context, l *medical.MoodPainLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l.ID = uuid.New()
	c := *l
	r.moodPain = append(r.moodPain, &c)
	return nil
}

func (r *Repo) ListMoodPainLogs(_ context.Context, patientID uuid.UUID, limit int) ([]*medical.MoodPainLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.Fail["ListMoodPainLogs"]; err != nil {
		return nil, err
	}
	var out []*medical.MoodPainLog
	for _, l := range r.moodPain {
		if l.PatientID == patientID {
			c := *l
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LoggedAt.After(out[j].LoggedAt) })
	return limited(out, limit), nil
}

func (r *Repo) CreateAllergy(_ context.Context, a *medical.Allergy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.ID = uuid.New()
	a.CreatedAt = time.Now().UTC()
	c := *a
	r.allergies = append(r.allergies, &c)
	return nil
}

func (r *Repo) ListAllergies(_ context.Context, patientID uuid.UUID, activeOnly bool) ([]*medical.Allergy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.Fail["ListAllergies"]; err != nil {
		return nil, err
	}
	var out []*medical.Allergy
	for i := len(r.allergies) - 1; i >= 0; i-- {
		a := r.allergies[i]
		if a.PatientID == patientID && (a.Active || !activeOnly) {
			c := *a
			out = append(out, &c)
		}
	}
	return out, nil
}
