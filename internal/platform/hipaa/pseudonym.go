package hipaa

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// PseudonymStore maps (patient, field type) to a pseudonym. GetOrCreate
// keeps the first value stored for a key.
type PseudonymStore interface {
	GetOrCreate(ctx context.Context, patientID, fieldType, candidate string) (string, error)
	Clear(ctx context.Context, patientID string) error
}

// Pseudonymizer issues stable pseudonyms from an injected store.
type Pseudonymizer struct {
	store PseudonymStore
	newID func() string
}

func NewPseudonymizer(store PseudonymStore) *Pseudonymizer {
	return &Pseudonymizer{
		store: store,
		newID: func() string { return uuid.New().String() },
	}
}

// Pseudonym returns the stand-in for fieldType of patientID, e.g.
// PATIENT_3F2A91C0. Repeated calls return the same value until the patient's
// mappings are cleared.
func (p *Pseudonymizer) Pseudonym(ctx context.Context, patientID, fieldType string) (string, error) {
	if patientID == "" || fieldType == "" {
		return "", fmt.Errorf("pseudonym: patient id and field type are required")
	}
	id := strings.ReplaceAll(p.newID(), "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	candidate := strings.ToUpper(fieldType) + "_" + strings.ToUpper(id)
	return p.store.GetOrCreate(ctx, patientID, fieldType, candidate)
}

// Clear forgets every pseudonym of patientID.
func (p *Pseudonymizer) Clear(ctx context.Context, patientID string) error {
	return p.store.Clear(ctx, patientID)
}

// MemoryPseudonymStore keeps mappings for the life of the process.
type MemoryPseudonymStore struct {
	mu sync.Mutex
	m  map[string]map[string]string
}

func NewMemoryPseudonymStore() *MemoryPseudonymStore {
	return &MemoryPseudonymStore{m: make(map[string]map[string]string)}
}

func (s *MemoryPseudonymStore) GetOrCreate(_ context.Context, patientID, fieldType, candidate string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fields, ok := s.m[patientID]
	if !ok {
		fields = make(map[string]string)
		s.m[patientID] = fields
	}
	if existing, ok := fields[fieldType]; ok {
		return existing, nil
	}
	fields[fieldType] = candidate
	return candidate, nil
}

func (s *MemoryPseudonymStore) Clear(_ context.Context, patientID string) error {
	s.mu.Lock()
	delete(s.m, patientID)
	s.mu.Unlock()
	return nil
}
