package aicontext

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/carelink/internal/platform/apperr"
)

// Category is one kind of medical record that can go into a context.
type Category string

const (
	CategoryVitals      Category = "vitals"
	CategoryMedications Category = "medications"
	CategoryNotes       Category = "notes"
	CategoryMoodPain    Category = "mood_pain"
	CategoryAllergies   Category = "allergies"
)

// Categories in rendering order.
var Categories = []Category{
	CategoryVitals, CategoryMedications, CategoryNotes, CategoryMoodPain, CategoryAllergies,
}

// Config is a patient's AI preferences. Rows are append-only: saving a new
// config deactivates the previous one.
type Config struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	PatientID          uuid.UUID  `db:"patient_id" json:"patient_id"`
	IncludeVitals      bool       `db:"include_vitals" json:"include_vitals"`
	IncludeMedications bool       `db:"include_medications" json:"include_medications"`
	IncludeNotes       bool       `db:"include_notes" json:"include_notes"`
	IncludeMoodPain    bool       `db:"include_mood_pain" json:"include_mood_pain"`
	IncludeAllergies   bool       `db:"include_allergies" json:"include_allergies"`
	Model              string     `db:"model" json:"model"`
	Temperature        float64    `db:"temperature" json:"temperature"`
	MaxTokens          int        `db:"max_tokens" json:"max_tokens"`
	SystemPrompt       string     `db:"system_prompt" json:"system_prompt"`
	IsActive           bool       `db:"is_active" json:"is_active"`
	CreatedByUserID    *uuid.UUID `db:"created_by_user_id" json:"created_by_user_id,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
}

// Includes reports whether the config lets c into a context.
func (c *Config) Includes(cat Category) bool {
	switch cat {
	case CategoryVitals:
		return c.IncludeVitals
	case CategoryMedications:
		return c.IncludeMedications
	case CategoryNotes:
		return c.IncludeNotes
	case CategoryMoodPain:
		return c.IncludeMoodPain
	case CategoryAllergies:
		return c.IncludeAllergies
	}
	return false
}

const (
	maxTemperature   = 2.0
	maxTokensLimit   = 16384
	maxPromptLen     = 4000
	maxMessageLen    = 4000
	defaultMaxTokens = 1024
)

const defaultSystemPrompt = "You help caregivers understand a patient's recent health records. " +
	"Answer only from the context provided and recommend contacting a clinician for anything urgent."

// Defaults fill the model settings of a config the patient never saved.
type Defaults struct {
	Model        string
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
}

func DefaultSettings(model string) Defaults {
	return Defaults{
		Model:        model,
		Temperature:  0.2,
		MaxTokens:    defaultMaxTokens,
		SystemPrompt: defaultSystemPrompt,
	}
}

// config returns the inactive config used when a patient has none stored.
func (d Defaults) config(patientID uuid.UUID) *Config {
	return &Config{
		PatientID:          patientID,
		IncludeVitals:      true,
		IncludeMedications: true,
		IncludeNotes:       true,
		IncludeMoodPain:    true,
		IncludeAllergies:   true,
		Model:              d.Model,
		Temperature:        d.Temperature,
		MaxTokens:          d.MaxTokens,
		SystemPrompt:       d.SystemPrompt,
	}
}

// ConfigInput is a new config. Missing inclusions default to true and
// missing model settings to the configured defaults.
type ConfigInput struct {
	IncludeVitals      *bool    `json:"include_vitals,omitempty"`
	IncludeMedications *bool    `json:"include_medications,omitempty"`
	IncludeNotes       *bool    `json:"include_notes,omitempty"`
	IncludeMoodPain    *bool    `json:"include_mood_pain,omitempty"`
	IncludeAllergies   *bool    `json:"include_allergies,omitempty"`
	Model              *string  `json:"model,omitempty"`
	Temperature        *float64 `json:"temperature,omitempty"`
	MaxTokens          *int     `json:"max_tokens,omitempty"`
	SystemPrompt       *string  `json:"system_prompt,omitempty"`
}

func orTrue(b *bool) bool { return b == nil || *b }

func (in ConfigInput) build(patientID uuid.UUID, d Defaults) (*Config, error) {
	c := d.config(patientID)
	c.IncludeVitals = orTrue(in.IncludeVitals)
	c.IncludeMedications = orTrue(in.IncludeMedications)
	c.IncludeNotes = orTrue(in.IncludeNotes)
	c.IncludeMoodPain = orTrue(in.IncludeMoodPain)
	c.IncludeAllergies = orTrue(in.IncludeAllergies)
	if in.Model != nil {
		c.Model = strings.TrimSpace(*in.Model)
	}
	if in.Temperature != nil {
		c.Temperature = *in.Temperature
	}
	if in.MaxTokens != nil {
		c.MaxTokens = *in.MaxTokens
	}
	if in.SystemPrompt != nil {
		c.SystemPrompt = strings.TrimSpace(*in.SystemPrompt)
	}
	c.IsActive = true

	switch {
	case c.Model == "":
		return nil, apperr.Validation("model is required")
	case c.Temperature < 0 || c.Temperature > maxTemperature:
		return nil, apperr.Validation("temperature must be between 0 and %.0f", maxTemperature)
	case c.MaxTokens < 1 || c.MaxTokens > maxTokensLimit:
		return nil, apperr.Validation("max_tokens must be between 1 and %d", maxTokensLimit)
	case len(c.SystemPrompt) > maxPromptLen:
		return nil, apperr.Validation("system_prompt exceeds %d characters", maxPromptLen)
	}
	return c, nil
}

// Inclusion overrides a config per request. Nil fields defer to the config.
type Inclusion struct {
	Vitals      *bool `json:"vitals,omitempty"`
	Medications *bool `json:"medications,omitempty"`
	Notes       *bool `json:"notes,omitempty"`
	MoodPain    *bool `json:"mood_pain,omitempty"`
	Allergies   *bool `json:"allergies,omitempty"`
}

func (in Inclusion) override(c Category) *bool {
	switch c {
	case CategoryVitals:
		return in.Vitals
	case CategoryMedications:
		return in.Medications
	case CategoryNotes:
		return in.Notes
	case CategoryMoodPain:
		return in.MoodPain
	case CategoryAllergies:
		return in.Allergies
	}
	return nil
}

// resolve decides each category: request override, else config, else include.
func (in Inclusion) resolve(cfg *Config) map[Category]bool {
	out := make(map[Category]bool, len(Categories))
	for _, c := range Categories {
		switch o := in.override(c); {
		case o != nil:
			out[c] = *o
		case cfg != nil:
			out[c] = cfg.Includes(c)
		default:
			out[c] = true
		}
	}
	return out
}

// Limits caps the time-series categories. Zero takes the default.
type Limits struct {
	Vitals   int `json:"vitals,omitempty"`
	Notes    int `json:"notes,omitempty"`
	MoodPain int `json:"mood_pain,omitempty"`
}

const maxLimit = 100

func DefaultLimits() Limits {
	return Limits{Vitals: 10, Notes: 5, MoodPain: 10}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	pick := func(v, def int) int {
		switch {
		case v <= 0:
			return def
		case v > maxLimit:
			return maxLimit
		}
		return v
	}
	return Limits{
		Vitals:   pick(l.Vitals, d.Vitals),
		Notes:    pick(l.Notes, d.Notes),
		MoodPain: pick(l.MoodPain, d.MoodPain),
	}
}

// Bundle is an assembled context. Categories records which categories
// produced content.
type Bundle struct {
	PatientID  uuid.UUID         `json:"patient_id"`
	Text       string            `json:"text"`
	Categories map[Category]bool `json:"categories"`
}

// Present lists the categories with content, in rendering order.
func (b *Bundle) Present() []Category {
	var out []Category
	for _, c := range Categories {
		if b.Categories[c] {
			out = append(out, c)
		}
	}
	return out
}
