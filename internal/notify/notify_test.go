package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pagerbell/pagerbell/internal/database"
)

// stubChannel is a scriptable delivery channel for dispatcher tests
type stubChannel struct {
	name       string
	configured bool
	err        error
	panics     bool
	sent       int
}

func (c *stubChannel) Name() string { return c.name }

func (c *stubChannel) Configured(contact *database.Contact) bool { return c.configured }

func (c *stubChannel) Send(ctx context.Context, contact *database.Contact, subject, message string) error {
	c.sent++
	if c.panics {
		panic("broken channel")
	}
	return c.err
}

func testContact() *database.Contact {
	return &database.Contact{Name: "alice", Email: "alice@example.com", Phone: "+15550001"}
}

func TestNotify_DeliversOnAllConfiguredChannels(t *testing.T) {
	sms := &stubChannel{name: "sms", configured: true}
	email := &stubChannel{name: "email", configured: true}
	chat := &stubChannel{name: "chat", configured: false}

	d := NewDispatcher(sms, email, chat)
	if !d.Notify(context.Background(), testContact(), "subject", "message") {
		t.Error("expected delivery to succeed")
	}

	if sms.sent != 1 || email.sent != 1 {
		t.Errorf("configured channels not tried: sms=%d email=%d", sms.sent, email.sent)
	}
	if chat.sent != 0 {
		t.Error("unconfigured channel was tried")
	}
}

func TestNotify_OneFailureDoesNotStopTheRest(t *testing.T) {
	failing := &stubChannel{name: "sms", configured: true, err: errors.New("gateway down")}
	working := &stubChannel{name: "email", configured: true}

	d := NewDispatcher(failing, working)
	if !d.Notify(context.Background(), testContact(), "subject", "message") {
		t.Error("expected overall success when one channel works")
	}
	if working.sent != 1 {
		t.Error("second channel was not tried after the first failed")
	}
}

func TestNotify_PanickingChannelIsContained(t *testing.T) {
	panicking := &stubChannel{name: "sms", configured: true, panics: true}
	working := &stubChannel{name: "email", configured: true}

	d := NewDispatcher(panicking, working)
	if !d.Notify(context.Background(), testContact(), "subject", "message") {
		t.Error("expected overall success despite the panicking channel")
	}
	if working.sent != 1 {
		t.Error("second channel was not tried after the panic")
	}
}

func TestNotify_TotalFailure(t *testing.T) {
	d := NewDispatcher(
		&stubChannel{name: "sms", configured: true, err: errors.New("gateway down")},
		&stubChannel{name: "email", configured: true, err: errors.New("smtp down")},
	)
	if d.Notify(context.Background(), testContact(), "subject", "message") {
		t.Error("expected false when every channel fails")
	}
}

func TestNotify_NoConfiguredChannels(t *testing.T) {
	d := NewDispatcher(&stubChannel{name: "sms", configured: false})
	if d.Notify(context.Background(), testContact(), "subject", "message") {
		t.Error("expected false with no configured channels")
	}
}

func TestNotify_NilContact(t *testing.T) {
	d := NewDispatcher(&stubChannel{name: "sms", configured: true})
	if d.Notify(context.Background(), nil, "subject", "message") {
		t.Error("expected false for nil contact")
	}
}

func TestSubject_TruncatesLongDetails(t *testing.T) {
	incident := &database.Incident{ID: 42, Details: strings.Repeat("x", 200)}

	subject := Subject(incident)
	if !strings.HasPrefix(subject, "Incident #42: ") {
		t.Errorf("unexpected subject: %q", subject)
	}
	if len(subject) > len("Incident #42: ")+80 {
		t.Errorf("subject not truncated: %d chars", len(subject))
	}
}

func TestMessage_IncludesDashboardLink(t *testing.T) {
	incident := &database.Incident{
		ID:            7,
		Details:       "disk full on web-1",
		StartedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		DashboardLink: "http://localhost:3000/dashboard?token=tok-7",
	}

	msg := Message(incident, "2006-01-02 15:04:05 MST", time.UTC)
	for _, want := range []string{
		"Incident #7",
		"2026-03-01 12:00:00 UTC",
		"disk full on web-1",
		"http://localhost:3000/dashboard?token=tok-7",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}
