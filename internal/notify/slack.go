package notify

import (
	"context"
	"fmt"

	"github.com/pagerbell/pagerbell/internal/database"
	"github.com/slack-go/slack"
)

// SlackChannel delivers notifications as Slack direct messages. The Slack
// user is resolved from the contact's email address.
type SlackChannel struct {
	client *slack.Client
}

// NewSlackChannel creates a Slack notification channel
func NewSlackChannel(botToken string) *SlackChannel {
	return &SlackChannel{client: slack.New(botToken)}
}

// Name identifies the channel in logs
func (c *SlackChannel) Name() string {
	return "slack"
}

// Configured reports whether the contact can be reached on Slack.
// User lookup requires an email address.
func (c *SlackChannel) Configured(contact *database.Contact) bool {
	return c.client != nil && contact.HasEmail()
}

// Send resolves the Slack user by email and posts a direct message
func (c *SlackChannel) Send(ctx context.Context, contact *database.Contact, subject, message string) error {
	user, err := c.client.GetUserByEmailContext(ctx, contact.Email)
	if err != nil {
		return fmt.Errorf("failed to resolve slack user for %s: %w", contact.Email, err)
	}

	conversation, _, _, err := c.client.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users: []string{user.ID},
	})
	if err != nil {
		return fmt.Errorf("failed to open conversation with %s: %w", user.ID, err)
	}

	_, _, err = c.client.PostMessageContext(ctx, conversation.ID,
		slack.MsgOptionText(fmt.Sprintf("*%s*\n%s", subject, message), false),
	)
	if err != nil {
		return fmt.Errorf("failed to post message: %w", err)
	}
	return nil
}
