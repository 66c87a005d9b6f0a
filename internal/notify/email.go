package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/pagerbell/pagerbell/internal/database"
)

// EmailChannel delivers notifications over SMTP
type EmailChannel struct {
	addr string // host:port
	from string
	auth smtp.Auth
}

// NewEmailChannel creates an SMTP notification channel. Username may be empty
// for unauthenticated relays.
func NewEmailChannel(addr, from, username, password string) *EmailChannel {
	c := &EmailChannel{addr: addr, from: from}
	if username != "" {
		host := addr
		if i := strings.IndexByte(addr, ':'); i >= 0 {
			host = addr[:i]
		}
		c.auth = smtp.PlainAuth("", username, password, host)
	}
	return c
}

// Name identifies the channel in logs
func (c *EmailChannel) Name() string {
	return "email"
}

// Configured reports whether the contact has an email address
func (c *EmailChannel) Configured(contact *database.Contact) bool {
	return c.addr != "" && contact.HasEmail()
}

// Send delivers the message via SMTP
func (c *EmailChannel) Send(ctx context.Context, contact *database.Contact, subject, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		c.from, contact.Email, subject, message)

	if err := smtp.SendMail(c.addr, c.auth, c.from, []string{contact.Email}, []byte(body)); err != nil {
		return fmt.Errorf("smtp send to %s failed: %w", contact.Email, err)
	}
	return nil
}
