package hipaa

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/carelink/internal/platform/middleware"
)

func TestMemoryDisclosureStore_Validation(t *testing.T) {
	s := NewMemoryDisclosureStore()
	ctx := context.Background()

	cases := map[string]*Disclosure{
		"missing patient": {DisclosedTo: "gpt-4o-mini", Purpose: PurposeAIChat, Level: LevelModerate},
		"missing target":  {PatientID: uuid.New(), Purpose: PurposeAIChat, Level: LevelModerate},
		"missing purpose": {PatientID: uuid.New(), DisclosedTo: "gpt-4o-mini", Level: LevelModerate},
		"bad level":       {PatientID: uuid.New(), DisclosedTo: "gpt-4o-mini", Purpose: PurposeAIChat},
	}
	for name, d := range cases {
		if err := s.Record(ctx, d); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestMemoryDisclosureStore_ListByPatient(t *testing.T) {
	s := NewMemoryDisclosureStore()
	ctx := context.Background()
	patient := uuid.New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		d := &Disclosure{
			PatientID:     patient,
			DisclosedTo:   "gpt-4o-mini",
			Purpose:       PurposeAIChat,
			Level:         LevelModerate,
			DateDisclosed: base.Add(time.Duration(i) * 24 * time.Hour),
		}
		if err := s.Record(ctx, d); err != nil {
			t.Fatalf("record: %v", err)
		}
		if d.ID == uuid.Nil {
			t.Error("expected an id to be assigned")
		}
	}
	other := &Disclosure{PatientID: uuid.New(), DisclosedTo: "x", Purpose: PurposeAIChat, Level: LevelMinimal}
	if err := s.Record(ctx, other); err != nil {
		t.Fatalf("record: %v", err)
	}

	all, _ := s.ListByPatient(ctx, patient, time.Time{}, time.Time{})
	if len(all) != 3 {
		t.Fatalf("expected 3 disclosures, got %d", len(all))
	}
	if !all[0].DateDisclosed.After(all[2].DateDisclosed) {
		t.Error("expected most recent first")
	}

	ranged, _ := s.ListByPatient(ctx, patient, base.Add(12*time.Hour), time.Time{})
	if len(ranged) != 2 {
		t.Errorf("expected 2 disclosures after the first day, got %d", len(ranged))
	}
}

func TestLevel_ParseAndJSON(t *testing.T) {
	l, err := ParseLevel(" moderate ")
	if err != nil || l != LevelModerate {
		t.Fatalf("ParseLevel = %v, %v", l, err)
	}
	if _, err := ParseLevel("bogus"); err == nil {
		t.Error("expected error for unknown level")
	}

	var body struct {
		Level Level `json:"level"`
	}
	if err := json.Unmarshal([]byte(`{"level":"STATISTICAL"}`), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Level != LevelStatistical {
		t.Errorf("got %v", body.Level)
	}
	out, _ := json.Marshal(body)
	if string(out) != `{"level":"STATISTICAL"}` {
		t.Errorf("got %s", out)
	}
	if LevelAggressive <= LevelModerate || LevelStatistical <= LevelAggressive {
		t.Error("levels out of order")
	}
}

func TestAccessLog_SkipsRequestsWithoutPatient(t *testing.T) {
	l := NewAccessLog(nil)
	if err := l.RecordAccess(middleware.AuditEntry{Path: "/api/v1/links/caregiver"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
