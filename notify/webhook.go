package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookMailer posts messages as JSON to a mail relay.
type WebhookMailer struct {
	client *resty.Client
	url    string
}

type webhookMessage struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// NewWebhookMailer returns a mailer posting to url. A non-empty token is sent
// as a bearer token.
func NewWebhookMailer(url, token string, timeout time.Duration) *WebhookMailer {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}
	return &WebhookMailer{client: client, url: url}
}

func (m *WebhookMailer) SendMail(ctx context.Context, recipients []string, subject, body string) error {
	if len(recipients) == 0 {
		return ErrNoRecipients
	}
	resp, err := m.client.R().
		SetContext(ctx).
		SetBody(webhookMessage{To: recipients, Subject: subject, Body: body}).
		Post(m.url)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	if resp.IsError() {
		msg := strings.TrimSpace(resp.String())
		if msg == "" {
			msg = http.StatusText(resp.StatusCode())
		}
		return fmt.Errorf("%w: http %d: %s", ErrDelivery, resp.StatusCode(), msg)
	}
	return nil
}
