package notification

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type stubRecipients map[uuid.UUID]*Recipient

func (s stubRecipients) Recipient(_ context.Context, id uuid.UUID) (*Recipient, error) {
	r, ok := s[id]
	if !ok {
		return nil, errors.New("user not found")
	}
	return r, nil
}

func TestTemplateEngine_BuiltIns(t *testing.T) {
	e := NewTemplateEngine()
	for _, id := range []string{TemplateLinkStatusChanged, TemplateConnectionRequested, TemplateConnectionResolved, TemplateVitalRecorded} {
		if _, err := e.Render(id, nil); err != nil {
			t.Errorf("built-in template %s missing: %v", id, err)
		}
	}
}

func TestTemplateEngine_Render(t *testing.T) {
	e := NewTemplateEngine()
	msg, err := e.Render(TemplateConnectionRequested, map[string]string{
		"name":           "Pat",
		"caregiver_name": "Carol",
		"relationship":   "nurse",
		"message":        "Hi",
		"accept_url":     "https://app/respond?token=abc&action=accept",
		"reject_url":     "https://app/respond?token=abc&action=reject",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if msg.Subject != "Carol wants to join your care team" {
		t.Errorf("unexpected subject %q", msg.Subject)
	}
	if !strings.Contains(msg.Body, "action=accept") || !strings.Contains(msg.Body, "action=reject") {
		t.Errorf("body missing approve/reject links: %s", msg.Body)
	}
	if strings.Contains(msg.Body, "{{") {
		t.Errorf("unrendered placeholder in body: %s", msg.Body)
	}
}

func TestTemplateEngine_EscapesBodyValues(t *testing.T) {
	msg, err := NewTemplateEngine().Render(TemplateConnectionRequested, map[string]string{
		"caregiver_name": "Carol",
		"message":        "<script>x</script>",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(msg.Body, "<script>") {
		t.Errorf("message not escaped: %s", msg.Body)
	}
	if !strings.Contains(msg.Body, "&lt;script&gt;") {
		t.Errorf("escaped message missing: %s", msg.Body)
	}
}

func TestTemplateEngine_UnknownTemplate(t *testing.T) {
	if _, err := NewTemplateEngine().Render("nope", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestTemplateEngine_MissingKeysLeftAsIs(t *testing.T) {
	e := NewTemplateEngine()
	e.RegisterTemplate(Template{ID: "t", Subject: "{{a}} {{b}}"})
	msg, _ := e.Render("t", map[string]string{"a": "x"})
	if msg.Subject != "x {{b}}" {
		t.Errorf("unexpected subject %q", msg.Subject)
	}
}

func TestDispatcher_SendsAllChannels(t *testing.T) {
	uid := uuid.New()
	email := &MockEmailSender{}
	push := &MockPushSender{}
	d := NewDispatcher(stubRecipients{uid: {UserID: uid, Name: "Carol", Email: "carol@example.com", DeviceToken: "tok"}},
		nil, email, push, zerolog.Nop())

	err := d.Notify(context.Background(), uid, TemplateLinkStatusChanged, map[string]string{
		"status": "SUSPENDED", "kind": "caregiver", "other_name": "Pat",
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}

	pushes := push.Calls()
	if len(pushes) != 1 || pushes[0].Token != "tok" {
		t.Fatalf("unexpected pushes: %+v", pushes)
	}
	if pushes[0].Data["type"] != TemplateLinkStatusChanged || pushes[0].Data["status"] != "SUSPENDED" {
		t.Errorf("unexpected push data: %v", pushes[0].Data)
	}
	mails := email.Calls()
	if len(mails) != 1 || mails[0].To != "carol@example.com" {
		t.Fatalf("unexpected emails: %+v", mails)
	}
	if !strings.Contains(mails[0].Body, "Hello Carol") {
		t.Errorf("recipient name not rendered: %s", mails[0].Body)
	}
}

func TestDispatcher_RespondURLsStayOutOfPush(t *testing.T) {
	uid := uuid.New()
	email := &MockEmailSender{}
	push := &MockPushSender{}
	d := NewDispatcher(stubRecipients{uid: {UserID: uid, Name: "Ada", Email: "ada@example.com", DeviceToken: "tok"}},
		nil, email, push, zerolog.Nop())

	acceptURL := "https://app.example.com/api/v1/connection-requests/respond?action=accept&token=secret"
	err := d.Notify(context.Background(), uid, TemplateConnectionRequested, map[string]string{
		"caregiver_name": "Grace Hopper",
		"accept_url":     acceptURL,
		"reject_url":     "https://app.example.com/api/v1/connection-requests/respond?action=reject&token=secret",
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}

	pushes := push.Calls()
	if len(pushes) != 1 {
		t.Fatalf("expected one push, got %d", len(pushes))
	}
	for k, v := range pushes[0].Data {
		if strings.Contains(v, "token=") {
			t.Errorf("push data %s carries the respond token", k)
		}
	}
	if pushes[0].Data["caregiver_name"] != "Grace Hopper" {
		t.Errorf("unexpected push data: %v", pushes[0].Data)
	}
	if mails := email.Calls(); len(mails) != 1 || !strings.Contains(mails[0].Body, "token=secret") {
		t.Error("email must still carry the respond links")
	}
}

func TestDispatcher_SkipsUnreachableChannels(t *testing.T) {
	uid := uuid.New()
	email := &MockEmailSender{}
	push := &MockPushSender{}
	d := NewDispatcher(stubRecipients{uid: {UserID: uid, Email: "x@example.com"}}, nil, email, push, zerolog.Nop())

	if err := d.Notify(context.Background(), uid, TemplateVitalRecorded, nil); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(push.Calls()) != 0 {
		t.Error("push sent without a device token")
	}
	if len(email.Calls()) != 1 {
		t.Error("expected one email")
	}
}

func TestDispatcher_JoinsFailures(t *testing.T) {
	uid := uuid.New()
	email := &MockEmailSender{ShouldFail: true, FailError: "smtp down"}
	push := &MockPushSender{ShouldFail: true, FailError: "fcm down"}
	d := NewDispatcher(stubRecipients{uid: {UserID: uid, Email: "x@example.com", DeviceToken: "t"}}, nil, email, push, zerolog.Nop())

	err := d.Notify(context.Background(), uid, TemplateVitalRecorded, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "smtp down") || !strings.Contains(err.Error(), "fcm down") {
		t.Errorf("expected both failures, got %v", err)
	}
	if len(email.Calls()) != 1 {
		t.Error("email must be attempted after a push failure")
	}
}

func TestDispatcher_UnknownRecipient(t *testing.T) {
	d := NewDispatcher(stubRecipients{}, nil, &MockEmailSender{}, nil, zerolog.Nop())
	if err := d.Notify(context.Background(), uuid.New(), TemplateVitalRecorded, nil); err == nil {
		t.Fatal("expected error for unknown recipient")
	}
}

func TestBuildPushMessage(t *testing.T) {
	msg := buildPushMessage("tok", "Title", "Body", map[string]string{"type": "x"})
	if msg.Token != "tok" || msg.Notification.Title != "Title" || msg.Data["type"] != "x" {
		t.Errorf("unexpected message: %+v", msg)
	}
	if msg.Android == nil || msg.Android.Priority != "high" {
		t.Error("expected high priority android config")
	}
}

func TestNewSMTPSender_RequiresCredentials(t *testing.T) {
	if _, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 587}); err == nil {
		t.Fatal("expected error without credentials")
	}
	s, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "u@example.com", Password: "p", FromName: "CareLink"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := s.message("to@example.com", "Subject", "<p>hi</p>")
	if got := m.GetHeader("To"); len(got) != 1 || got[0] != "to@example.com" {
		t.Errorf("unexpected To header: %v", got)
	}
	if got := m.GetHeader("From"); len(got) != 1 || !strings.Contains(got[0], "u@example.com") {
		t.Errorf("unexpected From header: %v", got)
	}
}

func TestSMTPSender_CancelledContext(t *testing.T) {
	s, _ := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: 1, Username: "u", Password: "p"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.SendEmail(ctx, "to@example.com", "s", "b"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
