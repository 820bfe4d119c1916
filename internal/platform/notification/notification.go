// Package notification delivers user-facing notifications over push (FCM)
// and email (SMTP), rendered from named templates.
package notification

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Sender Interfaces
// ---------------------------------------------------------------------------

// EmailSender is the interface for sending HTML email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, htmlBody string) error
}

// PushSender delivers a push notification to a single device token and
// returns the provider's message id.
type PushSender interface {
	SendPush(ctx context.Context, token, title, body string, data map[string]string) (string, error)
}

// Recipient is the contact information of a user.
type Recipient struct {
	UserID      uuid.UUID
	Name        string
	Email       string
	DeviceToken string
}

// RecipientResolver looks up contact details for a user.
type RecipientResolver interface {
	Recipient(ctx context.Context, userID uuid.UUID) (*Recipient, error)
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Template defines a notification in both channels. Body is HTML for email,
// Push is the short text shown on the device.
type Template struct {
	ID      string
	Subject string
	Body    string
	Push    string
}

// Rendered is a template after placeholder substitution.
type Rendered struct {
	Subject string
	Body    string
	Push    string
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	for i := range builtInTemplates {
		t := builtInTemplates[i]
		e.templates[t.ID] = &t
	}
	return e
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are left
// as-is. Values are HTML-escaped in the email body.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (*Rendered, error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("template %q not found", templateID)
	}

	out := &Rendered{Subject: t.Subject, Body: t.Body, Push: t.Push}
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		out.Subject = strings.ReplaceAll(out.Subject, placeholder, v)
		out.Body = strings.ReplaceAll(out.Body, placeholder, html.EscapeString(v))
		out.Push = strings.ReplaceAll(out.Push, placeholder, v)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Dispatcher
// ---------------------------------------------------------------------------

// Dispatcher renders a template for a user and sends it through every
// channel the user can be reached on. A nil sender disables its channel.
type Dispatcher struct {
	recipients RecipientResolver
	templates  *TemplateEngine
	email      EmailSender
	push       PushSender
	logger     zerolog.Logger
}

func NewDispatcher(recipients RecipientResolver, templates *TemplateEngine, email EmailSender, push PushSender, logger zerolog.Logger) *Dispatcher {
	if templates == nil {
		templates = NewTemplateEngine()
	}
	return &Dispatcher{
		recipients: recipients,
		templates:  templates,
		email:      email,
		push:       push,
		logger:     logger,
	}
}

// Notify sends templateID to userID. Every channel is attempted; the
// returned error joins the failures.
func (d *Dispatcher) Notify(ctx context.Context, userID uuid.UUID, templateID string, data map[string]string) error {
	rcpt, err := d.recipients.Recipient(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve recipient %s: %w", userID, err)
	}

	vars := make(map[string]string, len(data)+1)
	vars["name"] = rcpt.Name
	for k, v := range data {
		vars[k] = v
	}

	msg, err := d.templates.Render(templateID, vars)
	if err != nil {
		return err
	}

	var errs []error
	if d.push != nil && rcpt.DeviceToken != "" {
		id, err := d.push.SendPush(ctx, rcpt.DeviceToken, msg.Subject, msg.Push, pushData(templateID, data))
		if err != nil {
			errs = append(errs, fmt.Errorf("push: %w", err))
		} else {
			d.logger.Debug().Str("user_id", userID.String()).Str("template", templateID).Str("message_id", id).Msg("push sent")
		}
	}
	if d.email != nil && rcpt.Email != "" {
		if err := d.email.SendEmail(ctx, rcpt.Email, msg.Subject, msg.Body); err != nil {
			errs = append(errs, fmt.Errorf("email: %w", err))
		}
	}
	return errors.Join(errs...)
}

// pushData copies data for an FCM payload. Keys ending in _url carry
// single-use tokens and only travel by email.
func pushData(templateID string, data map[string]string) map[string]string {
	payload := map[string]string{"type": templateID}
	for k, v := range data {
		if strings.HasSuffix(k, "_url") {
			continue
		}
		payload[k] = v
	}
	return payload
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Notify(context.Context, uuid.UUID, string, map[string]string) error { return nil }
