package hipaa

import (
	"context"
	"fmt"
	"regexp"
	"testing"
)

var pseudonymFormat = regexp.MustCompile(`^PATIENT_[0-9A-F]{8}$`)

func TestPseudonym_StableUntilCleared(t *testing.T) {
	ctx := context.Background()
	p := NewPseudonymizer(NewMemoryPseudonymStore())

	first, err := p.Pseudonym(ctx, "patient-1", "patient")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pseudonymFormat.MatchString(first) {
		t.Errorf("unexpected format %q", first)
	}

	second, _ := p.Pseudonym(ctx, "patient-1", "patient")
	if first != second {
		t.Errorf("pseudonym changed between calls: %q then %q", first, second)
	}

	if err := p.Clear(ctx, "patient-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	third, _ := p.Pseudonym(ctx, "patient-1", "patient")
	if third == first {
		t.Errorf("expected a new pseudonym after clear, got %q again", third)
	}
}

func TestPseudonym_ScopedByPatientAndField(t *testing.T) {
	ctx := context.Background()
	p := NewPseudonymizer(NewMemoryPseudonymStore())

	n := 0
	p.newID = func() string {
		n++
		return fmt.Sprintf("%08x", n)
	}

	a, _ := p.Pseudonym(ctx, "patient-1", "patient")
	b, _ := p.Pseudonym(ctx, "patient-2", "patient")
	c, _ := p.Pseudonym(ctx, "patient-1", "facility")

	if a == b {
		t.Error("different patients share a pseudonym")
	}
	if c != "FACILITY_00000003" {
		t.Errorf("got %q", c)
	}
}

func TestPseudonym_RequiresIDs(t *testing.T) {
	p := NewPseudonymizer(NewMemoryPseudonymStore())
	if _, err := p.Pseudonym(context.Background(), "", "patient"); err == nil {
		t.Error("expected error for empty patient id")
	}
	if _, err := p.Pseudonym(context.Background(), "p", ""); err == nil {
		t.Error("expected error for empty field type")
	}
}

func TestMemoryPseudonymStore_KeepsFirstValue(t *testing.T) {
	s := NewMemoryPseudonymStore()
	ctx := context.Background()
	got, _ := s.GetOrCreate(ctx, "p", "patient", "PATIENT_A")
	if got != "PATIENT_A" {
		t.Fatalf("got %q", got)
	}
	got, _ = s.GetOrCreate(ctx, "p", "patient", "PATIENT_B")
	if got != "PATIENT_A" {
		t.Errorf("expected the stored value, got %q", got)
	}
}
