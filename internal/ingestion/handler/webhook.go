package handler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
	"gitlab.com/timkado/api/concierge-engine/internal/tenant"
	"gitlab.com/timkado/api/concierge-engine/internal/validator"
	"gitlab.com/timkado/api/concierge-engine/pkg/logger"
	"gitlab.com/timkado/api/concierge-engine/pkg/utils"
)

// WebhookHandler decodes Meta webhook bodies into inbound events.
type WebhookHandler struct {
	inbound InboundProcessor
}

func NewWebhookHandler(inbound InboundProcessor) *WebhookHandler {
	return &WebhookHandler{inbound: inbound}
}

// HandleEvent feeds every message of the payload to the pipeline. A retryable
// failure of any message makes the whole payload retryable.
func (h *WebhookHandler) HandleEvent(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return apperrors.NewFatal(err, "webhook without tenant")
	}

	var events []model.InboundEvent
	switch eventType {
	case model.V1WebhookWhatsApp:
		events, err = ParseWhatsAppCloud(rawEvent)
	case model.V1WebhookInstagram:
		events, err = ParseInstagram(rawEvent)
	default:
		return apperrors.NewFatal(apperrors.ErrBadRequest, "unsupported webhook type %s", eventType)
	}
	if err != nil {
		return apperrors.NewFatal(err, "decode %s payload", eventType)
	}

	log := logger.FromContext(ctx)
	if len(events) == 0 {
		log.Debug("Webhook carried no messages")
		return nil
	}

	var errs []error
	for _, ev := range events {
		if err := h.inbound.HandleIncoming(ctx, tenantID, ev); err != nil {
			log.Warn("Inbound event failed", zap.String("external_id", ev.ExternalID), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return joinHandlerErrors(errs)
}

// joinHandlerErrors keeps the retry classification: retryable when any
// failure is retryable.
func joinHandlerErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	joined := errors.Join(errs...)
	for _, err := range errs {
		if apperrors.IsRetryable(err) {
			return apperrors.NewRetryable(joined, "webhook batch")
		}
	}
	return apperrors.NewFatal(joined, "webhook batch")
}

// ParseWhatsAppCloud extracts the messages of a WhatsApp Cloud webhook.
// Status callbacks yield no events.
func ParseWhatsAppCloud(raw []byte) ([]model.InboundEvent, error) {
	var body model.WhatsAppCloudWebhook
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, errors.Join(apperrors.ErrBadRequest, err)
	}
	if err := validator.Validate(body); err != nil {
		return nil, err
	}

	var events []model.InboundEvent
	for _, entry := range body.Entry {
		for _, change := range entry.Changes {
			if change.Field != "" && change.Field != "messages" {
				continue
			}
			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range change.Value.Messages {
				ev := model.InboundEvent{
					Platform:   model.PlatformWhatsAppCloud,
					ExternalID: m.ID,
					Sender:     m.From,
					SenderName: names[m.From],
					Timestamp:  utils.ParseUnixString(m.Timestamp),
				}
				switch {
				case m.Text != nil:
					ev.Text = m.Text.Body
				case m.Audio != nil:
					ev.MediaType, ev.MediaID, ev.MimeType = "audio", m.Audio.ID, m.Audio.MimeType
				case m.Image != nil:
					ev.MediaType, ev.MediaID, ev.MimeType = "image", m.Image.ID, m.Image.MimeType
				case m.Document != nil:
					ev.MediaType, ev.MediaID, ev.MimeType = "document", m.Document.ID, m.Document.MimeType
				default:
					ev.MediaType = m.Type
				}
				events = append(events, ev)
			}
		}
	}
	return events, nil
}

// ParseInstagram extracts the direct messages of an Instagram webhook.
// Echoes of the account's own messages are marked FromMe.
func ParseInstagram(raw []byte) ([]model.InboundEvent, error) {
	var body model.InstagramWebhook
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, errors.Join(apperrors.ErrBadRequest, err)
	}
	if err := validator.Validate(body); err != nil {
		return nil, err
	}

	var events []model.InboundEvent
	for _, entry := range body.Entry {
		for _, m := range entry.Messaging {
			if m.Message == nil {
				continue
			}
			ev := model.InboundEvent{
				Platform:   model.PlatformInstagram,
				ExternalID: m.Message.MID,
				FromMe:     m.Message.IsEcho,
				Sender:     m.Sender.ID,
				Text:       m.Message.Text,
			}
			if m.Timestamp > 0 {
				ev.Timestamp = time.UnixMilli(m.Timestamp).UTC()
			}
			if ev.Text == "" && len(m.Message.Attachments) > 0 {
				att := m.Message.Attachments[0]
				ev.MediaType, ev.MediaURL = att.Type, att.Payload.URL
			}
			events = append(events, ev)
		}
	}
	return events, nil
}
