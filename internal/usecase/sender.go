package usecase

import (
	"context"
	"fmt"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
	"gitlab.com/timkado/api/concierge-engine/internal/tenant"
)

// SessionSender delivers text over a tenant's paired chat session.
type SessionSender interface {
	SendText(ctx context.Context, tenantID uint64, to, text string) (string, error)
}

// MetaSender delivers text through the Meta Graph API.
type MetaSender interface {
	SendWhatsApp(ctx context.Context, to, text string) (string, error)
	SendInstagram(ctx context.Context, recipientID, text string) (string, error)
}

// Sender routes an outbound reply to the channel it came from.
type Sender interface {
	Send(ctx context.Context, tenantID uint64, platform model.Platform, to, text string) (string, error)
}

// PlatformSender picks the delivery path by platform.
type PlatformSender struct {
	sessions SessionSender
	meta     MetaSender
}

var _ Sender = (*PlatformSender)(nil)

func NewPlatformSender(sessions SessionSender, meta MetaSender) *PlatformSender {
	return &PlatformSender{sessions: sessions, meta: meta}
}

func (s *PlatformSender) Send(ctx context.Context, tenantID uint64, platform model.Platform, to, text string) (string, error) {
	ctx = tenant.WithTenantID(ctx, tenantID)
	switch platform {
	case model.PlatformWhatsApp:
		if s.sessions == nil {
			return "", fmt.Errorf("%w: no session transport", apperrors.ErrConfiguration)
		}
		return s.sessions.SendText(ctx, tenantID, to, text)
	case model.PlatformWhatsAppCloud:
		if s.meta == nil {
			return "", fmt.Errorf("%w: no graph client", apperrors.ErrConfiguration)
		}
		return s.meta.SendWhatsApp(ctx, to, text)
	case model.PlatformInstagram:
		if s.meta == nil {
			return "", fmt.Errorf("%w: no graph client", apperrors.ErrConfiguration)
		}
		return s.meta.SendInstagram(ctx, to, text)
	}
	return "", fmt.Errorf("%w: unsupported platform %q", apperrors.ErrValidation, platform)
}
