package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gitlab.com/timkado/api/concierge-engine/internal/credentials"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
)

const defaultFromName = "Concierge"

// SendGridEmail sends plain-text e-mail with the tenant's SendGrid key.
type SendGridEmail struct {
	creds   credentials.Reader
	baseURL string
}

func NewSendGridEmail(creds credentials.Reader) *SendGridEmail {
	return &SendGridEmail{creds: creds}
}

// WithBaseURL points the client at another mail/send endpoint.
func (e *SendGridEmail) WithBaseURL(u string) *SendGridEmail {
	e.baseURL = u
	return e
}

func (e *SendGridEmail) Configured(ctx context.Context) bool {
	_, err := credentials.Require(ctx, e.creds, model.KeySendGridAPIKey, model.KeySendGridFromEmail)
	return err == nil
}

func (e *SendGridEmail) Send(ctx context.Context, toAddress, toName, subject, body string) error {
	keys, err := credentials.Require(ctx, e.creds, model.KeySendGridAPIKey, model.KeySendGridFromEmail)
	if err != nil {
		return err
	}
	fromName, _, err := e.creds.Get(ctx, model.KeySendGridFromName)
	if err != nil {
		return err
	}
	if fromName == "" {
		fromName = defaultFromName
	}

	message := mail.NewSingleEmail(
		mail.NewEmail(fromName, keys[model.KeySendGridFromEmail]),
		subject,
		mail.NewEmail(toName, toAddress),
		body,
		"",
	)
	client := sendgrid.NewSendClient(keys[model.KeySendGridAPIKey])
	if e.baseURL != "" {
		client.BaseURL = e.baseURL
	}
	resp, err := client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("%w: sendgrid: %v", apperrors.ErrIntegration, err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: sendgrid status %d: %s", apperrors.ErrIntegration, resp.StatusCode, resp.Body)
	}
	return nil
}
