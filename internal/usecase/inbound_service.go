package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gitlab.com/timkado/api/concierge-engine/internal/cache"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
	"gitlab.com/timkado/api/concierge-engine/internal/observer"
	"gitlab.com/timkado/api/concierge-engine/internal/storage"
	"gitlab.com/timkado/api/concierge-engine/internal/tenant"
	"gitlab.com/timkado/api/concierge-engine/pkg/logger"
	"gitlab.com/timkado/api/concierge-engine/pkg/utils"
)

// VoiceTranscriber is satisfied by llm.Transcriber.
type VoiceTranscriber interface {
	TranscribeBase64Audio(ctx context.Context, b64, mimeType string) (string, error)
}

// MediaFetcher downloads a WhatsApp Cloud attachment by id.
type MediaFetcher interface {
	FetchWhatsAppMedia(ctx context.Context, mediaID string) ([]byte, string, error)
}

// InboundOptions toggles optional pipeline stages.
type InboundOptions struct {
	TranscribeVoiceNotes bool
}

// InboundService turns inbound chat events into contacts, stored messages
// and reply tasks.
type InboundService struct {
	contacts    storage.ContactRepo
	messages    MessageSaver
	known       *cache.ContactCache
	transcriber VoiceTranscriber
	media       MediaFetcher
	replies     IReplyWorker
	opts        InboundOptions
}

func NewInboundService(
	contacts storage.ContactRepo,
	messages MessageSaver,
	known *cache.ContactCache,
	transcriber VoiceTranscriber,
	media MediaFetcher,
	replies IReplyWorker,
	opts InboundOptions,
) *InboundService {
	return &InboundService{
		contacts:    contacts,
		messages:    messages,
		known:       known,
		transcriber: transcriber,
		media:       media,
		replies:     replies,
		opts:        opts,
	}
}

// HandleIncoming runs the pipeline for one event. Ignored events return nil.
func (s *InboundService) HandleIncoming(ctx context.Context, tenantID uint64, ev model.InboundEvent) error {
	ctx = tenant.WithTenantID(ctx, tenantID)
	log := logger.FromContext(ctx).With(
		zap.String("platform", string(ev.Platform)),
		zap.String("external_id", ev.ExternalID),
	)
	ctx = logger.WithLogger(ctx, log)
	receivedAt := utils.Now()

	if ev.FromMe {
		observer.IncInboundMessage(string(ev.Platform), "ignored_from_me")
		return nil
	}

	text, msgType, err := s.extractText(ctx, ev)
	if err != nil {
		observer.IncInboundMessage(string(ev.Platform), "transcription_failed")
		log.Warn("Dropping voice note that could not be transcribed", zap.Error(err))
		return nil
	}
	if text == "" {
		observer.IncInboundMessage(string(ev.Platform), "ignored_non_text")
		log.Debug("Dropping non-text message", zap.String("media_type", ev.MediaType))
		return nil
	}

	identifier := model.NormalizeIdentifier(ev.Sender)
	if identifier == "" {
		observer.IncInboundMessage(string(ev.Platform), "ignored_no_sender")
		return apperrors.NewFatal(apperrors.ErrValidation, "inbound event without sender")
	}

	contact, err := s.ensureContact(ctx, tenantID, identifier, ev)
	if err != nil {
		observer.IncInboundMessage(string(ev.Platform), "failure_contact")
		return handleRepositoryError(ctx, err, "ensure contact")
	}

	msg := &model.Message{
		UserID:     tenantID,
		ContactID:  &contact.ID,
		Platform:   ev.Platform,
		Direction:  model.DirectionInbound,
		Type:       msgType,
		Content:    text,
		MediaURL:   ev.MediaURL,
		ExternalID: ev.ExternalID,
	}
	if msgType == model.MessageVoice {
		msg.Transcription = text
	}
	if err := s.messages.Save(ctx, msg); err != nil {
		observer.IncInboundMessage(string(ev.Platform), "failure_save")
		return handleRepositoryError(ctx, err, "save inbound message")
	}
	log.Debug("Stored inbound message", zap.Uint64("message_id", msg.ID), zap.String("preview", utils.Preview(text, 40)))

	task := ReplyTask{
		Ctx:        logger.WithLogger(context.Background(), log),
		TenantID:   tenantID,
		ContactID:  contact.ID,
		Platform:   ev.Platform,
		To:         ev.Sender,
		Text:       text,
		ReceivedAt: receivedAt,
	}
	if err := s.replies.SubmitTask(task); err != nil {
		observer.IncInboundMessage(string(ev.Platform), "failure_submit")
		log.Error("Inbound message stored but reply was not queued", zap.Uint64("message_id", msg.ID), zap.Error(err))
		return nil
	}

	observer.IncInboundMessage(string(ev.Platform), "accepted")
	return nil
}

func (s *InboundService) extractText(ctx context.Context, ev model.InboundEvent) (string, model.MessageType, error) {
	if text := strings.TrimSpace(ev.Text); text != "" {
		return text, model.MessageText, nil
	}
	if !ev.IsVoice() || !s.opts.TranscribeVoiceNotes || s.transcriber == nil {
		return "", "", nil
	}

	b64, mimeType := ev.MediaBase64, ev.MimeType
	if b64 == "" && ev.MediaID != "" && s.media != nil {
		audio, fetchedType, err := s.media.FetchWhatsAppMedia(ctx, ev.MediaID)
		if err != nil {
			return "", "", fmt.Errorf("fetch media %s: %w", ev.MediaID, err)
		}
		b64 = base64.StdEncoding.EncodeToString(audio)
		if mimeType == "" {
			mimeType = fetchedType
		}
	}
	if b64 == "" {
		return "", "", nil
	}

	start := time.Now()
	text, err := s.transcriber.TranscribeBase64Audio(ctx, b64, mimeType)
	observer.ObserveLLMRequest("transcription", time.Since(start), err)
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(text), model.MessageVoice, nil
}

// ensureContact returns the tenant's contact for identifier, creating it
// as an auto-added lead when absent.
func (s *InboundService) ensureContact(ctx context.Context, tenantID uint64, identifier string, ev model.InboundEvent) (*model.Contact, error) {
	status := cache.StatusUnknown
	if s.known != nil {
		status = s.known.Check(tenantID, identifier)
	}

	if status == cache.StatusMaybeKnown {
		existing, err := s.contacts.FindByIdentifier(ctx, identifier)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
		s.known.RecordFalsePositive()
	}

	name := strings.TrimSpace(ev.SenderName)
	if name == "" {
		name = identifier
	}
	contact := &model.Contact{
		UserID:     tenantID,
		Identifier: identifier,
		Name:       name,
		Platform:   ev.Platform,
		Status:     model.ContactLead,
	}
	if ev.Platform == model.PlatformWhatsApp || ev.Platform == model.PlatformWhatsAppCloud {
		contact.Phone = identifier
	}
	contact.SetTags([]string{model.TagAutoAdded})

	inserted, err := s.contacts.CreateIfAbsent(ctx, contact)
	if err != nil {
		return nil, err
	}
	if !inserted {
		existing, err := s.contacts.FindByIdentifier(ctx, identifier)
		if err != nil {
			return nil, err
		}
		contact = existing
	} else {
		logger.FromContext(ctx).Info("Created contact for new sender", zap.Uint64("contact_id", contact.ID))
	}

	if s.known != nil {
		s.known.MarkKnown(tenantID, identifier)
	}
	return contact, nil
}
