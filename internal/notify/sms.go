package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pagerbell/pagerbell/internal/database"
)

// SMSChannel delivers notifications through an HTTP SMS gateway. The gateway
// receives a JSON payload {to, from, body} and is expected to answer 2xx.
type SMSChannel struct {
	gatewayURL string
	from       string
	token      string
	httpClient *http.Client
}

// NewSMSChannel creates an SMS notification channel
func NewSMSChannel(gatewayURL, from, token string) *SMSChannel {
	return &SMSChannel{
		gatewayURL: gatewayURL,
		from:       from,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Name identifies the channel in logs
func (c *SMSChannel) Name() string {
	return "sms"
}

// Configured reports whether the contact has a phone number and a gateway is set
func (c *SMSChannel) Configured(contact *database.Contact) bool {
	return c.gatewayURL != "" && contact.HasPhone()
}

// smsPayload is the gateway request body
type smsPayload struct {
	To   string `json:"to"`
	From string `json:"from"`
	Body string `json:"body"`
}

// Send posts the message to the SMS gateway. The subject is prepended since
// SMS has no separate subject field.
func (c *SMSChannel) Send(ctx context.Context, contact *database.Contact, subject, message string) error {
	payload, err := json.Marshal(smsPayload{
		To:   contact.Phone,
		From: c.from,
		Body: subject + "\n" + message,
	})
	if err != nil {
		return fmt.Errorf("failed to encode sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gatewayURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
