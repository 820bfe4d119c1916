package aicontext

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/domain/directory"
	"github.com/carelink/carelink/internal/platform/ai"
	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/hipaa"
	"github.com/carelink/carelink/internal/platform/metrics"
)

// DefaultLevel applies when a request names no anonymization level.
const DefaultLevel = hipaa.LevelModerate

type PrepareInput struct {
	Include Inclusion   `json:"include"`
	Limits  Limits      `json:"limits"`
	Level   hipaa.Level `json:"level,omitempty"`
	// Epsilon, when set, adds Laplace noise to numeric values.
	Epsilon *float64 `json:"epsilon,omitempty"`
}

type ChatInput struct {
	PrepareInput
	Message string `json:"message"`
}

// Prepared is a redacted context that passed the identifier guard.
type Prepared struct {
	PatientID    uuid.UUID   `json:"patient_id"`
	Level        hipaa.Level `json:"level"`
	Context      string      `json:"context"`
	Categories   []Category  `json:"categories"`
	NoiseApplied bool        `json:"noise_applied"`

	config  *Config
	profile *directory.PatientProfile
}

type ChatResult struct {
	Reply        string      `json:"reply"`
	Model        string      `json:"model"`
	Level        hipaa.Level `json:"level"`
	Categories   []Category  `json:"categories"`
	DisclosureID uuid.UUID   `json:"disclosure_id"`
}

// Pipeline runs the path from stored records to a model reply. Nothing
// reaches the model before it is redacted and checked.
type Pipeline struct {
	authz       Authorizer
	configs     ConfigSource
	assembler   *Assembler
	anonymizer  *hipaa.Anonymizer
	noise       *hipaa.NoiseSource
	client      ai.Client
	disclosures hipaa.DisclosureRecorder
	logger      zerolog.Logger
}

func NewPipeline(
	authz Authorizer,
	configs ConfigSource,
	assembler *Assembler,
	anonymizer *hipaa.Anonymizer,
	client ai.Client,
	disclosures hipaa.DisclosureRecorder,
	logger zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		authz:       authz,
		configs:     configs,
		assembler:   assembler,
		anonymizer:  anonymizer,
		noise:       hipaa.NewNoiseSource(),
		client:      client,
		disclosures: disclosures,
		logger:      logger,
	}
}

func (p *Pipeline) SetNoiseSource(n *hipaa.NoiseSource) { p.noise = n }

func (in PrepareInput) level() (hipaa.Level, error) {
	if in.Level == 0 {
		return DefaultLevel, nil
	}
	if !in.Level.Valid() {
		return 0, apperr.Validation("invalid anonymization level %d", int(in.Level))
	}
	return in.Level, nil
}

// Prepare authorizes the caller, assembles the patient's context and
// redacts it. Contexts that still carry an identifier are refused.
func (p *Pipeline) Prepare(ctx context.Context, principal auth.Principal, patientID uuid.UUID, in PrepareInput) (*Prepared, error) {
	level, err := in.level()
	if err != nil {
		return nil, err
	}
	if in.Epsilon != nil && *in.Epsilon <= 0 {
		return nil, apperr.Validation("epsilon must be positive")
	}
	if err := p.authz.Authorize(ctx, principal, patientID); err != nil {
		return nil, err
	}

	cfg, err := p.configs.Effective(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("load ai config: %w", err)
	}
	bundle, profile, err := p.assembler.assemble(ctx, patientID, cfg, in.Include, in.Limits)
	if err != nil {
		return nil, err
	}

	text, err := p.redact(ctx, bundle.Text, profile, level)
	if err != nil {
		return nil, err
	}
	if in.Epsilon != nil {
		if text, err = p.noise.AddDifferentialPrivacyNoise(text, *in.Epsilon); err != nil {
			return nil, apperr.Validation("%v", err)
		}
	}
	if hipaa.ContainsPHI(text) {
		metrics.PHIGuardRejections.Inc()
		p.logger.Warn().
			Str("patient_id", patientID.String()).
			Str("level", level.String()).
			Msg("context blocked: identifiers survived redaction")
		return nil, apperr.Validation("context still contains identifiers at level %s, use a stricter level", level)
	}

	return &Prepared{
		PatientID:    patientID,
		Level:        level,
		Context:      text,
		Categories:   bundle.Present(),
		NoiseApplied: in.Epsilon != nil,
		config:       cfg,
		profile:      profile,
	}, nil
}

// redact removes the patient's own identifiers, then applies level.
func (p *Pipeline) redact(ctx context.Context, text string, profile *directory.PatientProfile, level hipaa.Level) (string, error) {
	text = scrubIdentity(text, profile.User)
	out, err := p.anonymizer.Anonymize(ctx, text, profile.Patient.ID.String(), level)
	if err != nil {
		return "", fmt.Errorf("anonymize context: %w", err)
	}
	return out, nil
}

// scrubIdentity replaces the user's own name parts and email. The pattern
// rules miss a first name on its own.
func scrubIdentity(text string, u *directory.User) string {
	if u == nil {
		return text
	}
	if u.Email != "" {
		text = strings.ReplaceAll(text, u.Email, hipaa.PlaceholderEmail)
	}
	for _, part := range []string{u.FirstName, u.LastName} {
		part = strings.TrimSpace(part)
		if len(part) < 2 {
			continue
		}
		re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(part) + `\b`)
		text = re.ReplaceAllString(text, hipaa.PlaceholderName)
	}
	return text
}

// Chat prepares the context, records the disclosure and asks the model.
// The disclosure is written before the request is sent.
func (p *Pipeline) Chat(ctx context.Context, principal auth.Principal, patientID uuid.UUID, in ChatInput) (*ChatResult, error) {
	msg := strings.TrimSpace(in.Message)
	if msg == "" {
		return nil, apperr.Validation("message is required")
	}
	if len(msg) > maxMessageLen {
		return nil, apperr.Validation("message exceeds %d characters", maxMessageLen)
	}

	prep, err := p.Prepare(ctx, principal, patientID, in.PrepareInput)
	if err != nil {
		return nil, err
	}

	// Statistical would erase the question itself.
	msgLevel := min(prep.Level, hipaa.LevelAggressive)
	if msg, err = p.redact(ctx, msg, prep.profile, msgLevel); err != nil {
		return nil, err
	}
	if hipaa.ContainsPHI(msg) {
		metrics.PHIGuardRejections.Inc()
		return nil, apperr.Validation("message contains identifiers, remove them and retry")
	}

	cfg := prep.config
	categories := make([]string, len(prep.Categories))
	for i, c := range prep.Categories {
		categories[i] = string(c)
	}
	d := &hipaa.Disclosure{
		PatientID:   patientID,
		DisclosedTo: cfg.Model,
		Purpose:     hipaa.PurposeAIChat,
		Level:       prep.Level,
		Categories:  categories,
		DisclosedBy: principal.UserID,
	}
	if err := p.disclosures.Record(ctx, d); err != nil {
		return nil, fmt.Errorf("record disclosure: %w", err)
	}

	start := time.Now()
	resp, err := p.client.Chat(ctx, ai.ChatRequest{
		Model:        cfg.Model,
		SystemPrompt: cfg.SystemPrompt,
		Context:      prep.Context,
		Message:      msg,
		Temperature:  cfg.Temperature,
		MaxTokens:    int64(cfg.MaxTokens),
	})
	if err != nil {
		p.logger.Error().Err(err).
			Str("patient_id", patientID.String()).
			Str("model", cfg.Model).
			Msg("ai chat failed")
		return nil, fmt.Errorf("ai chat: %w", err)
	}
	metrics.AIDisclosures.WithLabelValues(prep.Level.String()).Inc()
	p.logger.Info().
		Str("patient_id", patientID.String()).
		Str("model", resp.Model).
		Str("level", prep.Level.String()).
		Dur("duration", time.Since(start)).
		Msg("ai chat completed")

	return &ChatResult{
		Reply:        resp.Content,
		Model:        resp.Model,
		Level:        prep.Level,
		Categories:   prep.Categories,
		DisclosureID: d.ID,
	}, nil
}

// Disclosures lists what was sent about the patient. Open to the patient
// and admins.
func (p *Pipeline) Disclosures(ctx context.Context, principal auth.Principal, patientID uuid.UUID, from, to time.Time) ([]*hipaa.Disclosure, error) {
	if err := requireOwner(ctx, p.authz, principal, patientID); err != nil {
		return nil, err
	}
	return p.disclosures.ListByPatient(ctx, patientID, from, to)
}

// ClearPseudonyms drops the patient's pseudonym mappings so later
// statistical contexts cannot be linked to earlier ones.
func (p *Pipeline) ClearPseudonyms(ctx context.Context, patientID uuid.UUID) error {
	if err := p.anonymizer.Pseudonyms().Clear(ctx, patientID.String()); err != nil {
		return fmt.Errorf("clear pseudonyms: %w", err)
	}
	p.logger.Info().Str("patient_id", patientID.String()).Msg("pseudonym mappings cleared")
	return nil
}
