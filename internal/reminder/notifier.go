package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
	"gitlab.com/timkado/api/concierge-engine/internal/session"
	"gitlab.com/timkado/api/concierge-engine/internal/tenant"
	"gitlab.com/timkado/api/concierge-engine/pkg/logger"
)

// Channel names reported by ChannelNotifier.
const (
	ChannelSession = "whatsapp_session"
	ChannelSMS     = "sms"
	ChannelEmail   = "email"
)

// SessionChannel is satisfied by session.Registry.
type SessionChannel interface {
	Status(tenantID uint64) session.Status
	SendText(ctx context.Context, tenantID uint64, to, text string) (string, error)
}

// SMSChannel is satisfied by notify.TwilioSMS.
type SMSChannel interface {
	Configured(ctx context.Context) bool
	Send(ctx context.Context, to, body string) (string, error)
}

// EmailChannel is satisfied by notify.SendGridEmail.
type EmailChannel interface {
	Configured(ctx context.Context) bool
	Send(ctx context.Context, toAddress, toName, subject, body string) error
}

// ChannelNotifier tries the tenant's WhatsApp session, then SMS, then
// e-mail. A channel is skipped when the booking lacks the contact field or
// the tenant has not set it up; a failing channel falls through to the next.
type ChannelNotifier struct {
	sessions SessionChannel
	sms      SMSChannel
	email    EmailChannel
}

var _ Notifier = (*ChannelNotifier)(nil)

// NewChannelNotifier accepts nil for channels that are not deployed.
func NewChannelNotifier(sessions SessionChannel, sms SMSChannel, email EmailChannel) *ChannelNotifier {
	return &ChannelNotifier{sessions: sessions, sms: sms, email: email}
}

func (n *ChannelNotifier) Notify(ctx context.Context, b *model.Booking, msg Message) (string, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return "", err
	}
	log := logger.FromContext(ctx)
	phone := model.NormalizeIdentifier(b.ClientPhone)
	address := strings.TrimSpace(b.ClientEmail)

	var errs []error
	if phone != "" && n.sessions != nil && n.sessions.Status(tenantID) == session.StatusConnected {
		_, err := n.sessions.SendText(ctx, tenantID, phone, msg.Body)
		if err == nil {
			return ChannelSession, nil
		}
		log.Warn("Session reminder failed, trying next channel", zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", ChannelSession, err))
	}
	if phone != "" && n.sms != nil && n.sms.Configured(ctx) {
		_, err := n.sms.Send(ctx, "+"+phone, msg.Body)
		if err == nil {
			return ChannelSMS, nil
		}
		log.Warn("SMS reminder failed, trying next channel", zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", ChannelSMS, err))
	}
	if address != "" && n.email != nil && n.email.Configured(ctx) {
		err := n.email.Send(ctx, address, b.ClientName, msg.Subject, msg.Body)
		if err == nil {
			return ChannelEmail, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", ChannelEmail, err))
	}

	if len(errs) == 0 {
		return "", fmt.Errorf("%w: no reminder channel for booking %d", apperrors.ErrConfiguration, b.ID)
	}
	return "", errors.Join(errs...)
}
