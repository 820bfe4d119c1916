package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Mock Senders (test doubles)
// ---------------------------------------------------------------------------

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
}

// SendEmail records the call and optionally returns an error.
func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// PushCall records a single call to SendPush.
type PushCall struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

// MockPushSender is a test double for PushSender.
type MockPushSender struct {
	mu         sync.Mutex
	calls      []PushCall
	ShouldFail bool
	FailError  string
}

func (m *MockPushSender) SendPush(_ context.Context, token, title, body string, data map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, PushCall{Token: token, Title: title, Body: body, Data: data})
	if m.ShouldFail {
		return "", errors.New(m.FailError)
	}
	return fmt.Sprintf("msg-%d", len(m.calls)), nil
}

// Calls returns a copy of recorded push calls.
func (m *MockPushSender) Calls() []PushCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PushCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// NotifyCall records a single call to Notify.
type NotifyCall struct {
	UserID     uuid.UUID
	TemplateID string
	Data       map[string]string
}

// MockNotifier records notifications instead of sending them.
type MockNotifier struct {
	mu         sync.Mutex
	calls      []NotifyCall
	ShouldFail bool
}

func (m *MockNotifier) Notify(_ context.Context, userID uuid.UUID, templateID string, data map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, NotifyCall{UserID: userID, TemplateID: templateID, Data: data})
	if m.ShouldFail {
		return errors.New("notifier unavailable")
	}
	return nil
}

// Calls returns a copy of recorded notifications.
func (m *MockNotifier) Calls() []NotifyCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]NotifyCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallsFor returns the notifications sent to userID.
func (m *MockNotifier) CallsFor(userID uuid.UUID) []NotifyCall {
	var out []NotifyCall
	for _, c := range m.Calls() {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out
}
