// Package aicontext assembles a patient's medical records into a text
// context, redacts it and discloses it to the configured language model.
package aicontext

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/domain/directory"
	"github.com/carelink/carelink/internal/domain/medical"
	"github.com/carelink/carelink/internal/platform/clock"
)

// Records is the read side of medical.Repository. The assembler reads
// records directly because the pipeline authorizes once up front.
type Records interface {
	ListVitals(ctx context.Context, patientID uuid.UUID, limit int) ([]*medical.Vital, error)
	ListMedications(ctx context.Context, patientID uuid.UUID, activeOnly bool) ([]*medical.Medication, error)
	ListNotes(ctx context.Context, patientID uuid.UUID, limit int) ([]*medical.ClinicalNote, error)
	ListMoodPainLogs(ctx context.Context, patientID uuid.UUID, limit int) ([]*medical.MoodPainLog, error)
	ListAllergies(ctx context.Context, patientID uuid.UUID, activeOnly bool) ([]*medical.Allergy, error)
}

type Profiles interface {
	GetPatientProfile(ctx context.Context, patientID uuid.UUID) (*directory.PatientProfile, error)
}

type ConfigSource interface {
	Effective(ctx context.Context, patientID uuid.UUID) (*Config, error)
}

// Section headers. The statistical anonymization level detects categories
// by these exact strings.
const (
	headerVitals      = "RECENT VITALS:"
	headerMedications = "CURRENT MEDICATIONS:"
	headerNotes       = "RECENT CLINICAL NOTES:"
	headerMoodPain    = "RECENT MOOD & PAIN LOGS:"
	headerAllergies   = "KNOWN ALLERGIES:"
)

const disclaimer = "Note: this summary comes from records entered by the patient and their care team. " +
	"It may be incomplete and is not a substitute for clinical judgement. " +
	"Please consult your healthcare provider before making any medical decisions."

const timeLayout = "2006-01-02 15:04"

type Assembler struct {
	records  Records
	profiles Profiles
	configs  ConfigSource
	clock    clock.Clock
	logger   zerolog.Logger
}

func NewAssembler(records Records, profiles Profiles, configs ConfigSource, logger zerolog.Logger) *Assembler {
	return &Assembler{
		records:  records,
		profiles: profiles,
		configs:  configs,
		clock:    clock.System(),
		logger:   logger,
	}
}

func (a *Assembler) SetClock(c clock.Clock) { a.clock = c }

// BuildContext renders the patient's records as plain text. A category
// whose fetch fails is logged and left out; the build itself fails only
// when the patient or their config cannot be loaded.
func (a *Assembler) BuildContext(ctx context.Context, patientID uuid.UUID, in Inclusion, limits Limits) (*Bundle, error) {
	cfg, err := a.configs.Effective(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("load ai config: %w", err)
	}
	b, _, err := a.assemble(ctx, patientID, cfg, in, limits)
	return b, err
}

// assemble builds with an already loaded config and also returns the
// profile the header was rendered from.
func (a *Assembler) assemble(ctx context.Context, patientID uuid.UUID, cfg *Config, in Inclusion, limits Limits) (*Bundle, *directory.PatientProfile, error) {
	profile, err := a.profiles.GetPatientProfile(ctx, patientID)
	if err != nil {
		return nil, nil, err
	}
	return a.build(ctx, profile, in.resolve(cfg), limits.withDefaults()), profile, nil
}

func (a *Assembler) build(ctx context.Context, profile *directory.PatientProfile, include map[Category]bool, limits Limits) *Bundle {
	patientID := profile.Patient.ID
	b := &Bundle{PatientID: patientID, Categories: make(map[Category]bool, len(Categories))}

	var sb strings.Builder
	writeHeader(&sb, profile, a.clock.Now())

	for _, c := range Categories {
		if !include[c] {
			continue
		}
		lines, err := a.section(ctx, c, patientID, limits)
		if err != nil {
			a.logger.Warn().Err(err).
				Str("patient_id", patientID.String()).
				Str("category", string(c)).
				Msg("skipping context category")
			continue
		}
		if len(lines) == 0 {
			continue
		}
		b.Categories[c] = true
		sb.WriteString("\n")
		sb.WriteString(sectionHeader(c))
		sb.WriteString("\n")
		for _, l := range lines {
			sb.WriteString("- ")
			sb.WriteString(l)
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\n")
	sb.WriteString(disclaimer)
	sb.WriteString("\n")
	b.Text = sb.String()
	return b
}

func writeHeader(sb *strings.Builder, profile *directory.PatientProfile, now time.Time) {
	fmt.Fprintf(sb, "PATIENT: %s\n", profile.User.FullName())
	if age := profile.Patient.Age(now); age >= 0 {
		fmt.Fprintf(sb, "Age: %d\n", age)
	}
	if g := profile.Patient.Gender; g != nil && *g != "" {
		fmt.Fprintf(sb, "Gender: %s\n", strings.ToLower(*g))
	}
}

func sectionHeader(c Category) string {
	switch c {
	case CategoryVitals:
		return headerVitals
	case CategoryMedications:
		return headerMedications
	case CategoryNotes:
		return headerNotes
	case CategoryMoodPain:
		return headerMoodPain
	default:
		return headerAllergies
	}
}

func (a *Assembler) section(ctx context.Context, c Category, patientID uuid.UUID, limits Limits) ([]string, error) {
	var lines []string
	switch c {
	case CategoryVitals:
		items, err := a.records.ListVitals(ctx, patientID, limits.Vitals)
		if err != nil {
			return nil, err
		}
		for _, v := range items {
			lines = append(lines, fmt.Sprintf("%s: %s %s (%s)",
				v.Type, strconv.FormatFloat(v.Value, 'f', -1, 64), v.Unit, v.RecordedAt.UTC().Format(timeLayout)))
		}
	case CategoryMedications:
		items, err := a.records.ListMedications(ctx, patientID, true)
		if err != nil {
			return nil, err
		}
		for _, m := range items {
			lines = append(lines, joinNonEmpty(m.Name+" "+m.Dosage, m.Frequency))
		}
	case CategoryNotes:
		items, err := a.records.ListNotes(ctx, patientID, limits.Notes)
		if err != nil {
			return nil, err
		}
		for _, n := range items {
			lines = append(lines, fmt.Sprintf("[%s] %s", n.CreatedAt.UTC().Format(timeLayout), oneLine(n.Content)))
		}
	case CategoryMoodPain:
		items, err := a.records.ListMoodPainLogs(ctx, patientID, limits.MoodPain)
		if err != nil {
			return nil, err
		}
		for _, l := range items {
			line := fmt.Sprintf("%s: mood %d/10, pain %d/10", l.LoggedAt.UTC().Format(timeLayout), l.Mood, l.Pain)
			if l.Notes != nil && *l.Notes != "" {
				line += " (" + oneLine(*l.Notes) + ")"
			}
			lines = append(lines, line)
		}
	case CategoryAllergies:
		items, err := a.records.ListAllergies(ctx, patientID, true)
		if err != nil {
			return nil, err
		}
		for _, al := range items {
			line := al.Allergen
			if al.Severity != "" {
				line += " (" + al.Severity + ")"
			}
			if al.Reaction != nil && *al.Reaction != "" {
				line += ": " + oneLine(*al.Reaction)
			}
			lines = append(lines, line)
		}
	}
	return lines, nil
}

func joinNonEmpty(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

// oneLine flattens free text so it cannot forge a section header.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
