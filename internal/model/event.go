package model

import (
	"strings"
	"time"
)

// EventType is the versioned subject prefix of an ingested webhook.
type EventType string

const (
	V1WebhookWhatsApp  EventType = "v1.webhooks.whatsapp"
	V1WebhookInstagram EventType = "v1.webhooks.instagram"
)

// KnownEventTypes lists every routable event type.
var KnownEventTypes = []EventType{V1WebhookWhatsApp, V1WebhookInstagram}

// SubjectFor builds the JetStream subject for a tenant's webhook of type t.
func SubjectFor(t EventType, tenantID string) string {
	return string(t) + "." + tenantID
}

// MapToBaseEventType splits a subject such as "v1.webhooks.whatsapp.42"
// into its event type and trailing tenant token.
func MapToBaseEventType(subject string) (EventType, string, bool) {
	lastDot := strings.LastIndex(subject, ".")
	if lastDot <= 0 || lastDot == len(subject)-1 {
		return "", "", false
	}
	base := EventType(subject[:lastDot])
	for _, known := range KnownEventTypes {
		if base == known {
			return base, subject[lastDot+1:], true
		}
	}
	return "", "", false
}

// GetVersion returns the "vN" prefix of e, or "".
func (e EventType) GetVersion() string {
	parts := strings.SplitN(string(e), ".", 2)
	if len(parts) < 2 || len(parts[0]) < 2 || parts[0][0] != 'v' {
		return ""
	}
	return parts[0]
}

// GetBaseType returns e without its version prefix.
func (e EventType) GetBaseType() EventType {
	version := e.GetVersion()
	if version == "" {
		return e
	}
	return EventType(strings.TrimPrefix(string(e), version+"."))
}

// MessageMetadata is the JetStream delivery metadata of a consumed message.
type MessageMetadata struct {
	ConsumerSequence uint64
	StreamSequence   uint64
	NumDelivered     uint64
	NumPending       uint64
	Timestamp        time.Time
	Stream           string
	Consumer         string
	Domain           string
	MessageID        string
	MessageSubject   string
	TenantID         string
}

// InboundEvent is a transport-neutral inbound chat event.
type InboundEvent struct {
	Platform    Platform  `json:"platform" validate:"required"`
	ExternalID  string    `json:"external_id"`
	FromMe      bool      `json:"from_me"`
	Sender      string    `json:"sender" validate:"required"`
	SenderName  string    `json:"sender_name,omitempty"`
	Text        string    `json:"text,omitempty"`
	MediaType   string    `json:"media_type,omitempty"` // audio, image, video, document, sticker
	MimeType    string    `json:"mime_type,omitempty"`
	MediaBase64 string    `json:"media_base64,omitempty"`
	MediaID     string    `json:"media_id,omitempty"`
	MediaURL    string    `json:"media_url,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// IsVoice reports whether the event carries an audio attachment.
func (e InboundEvent) IsVoice() bool {
	return e.MediaType == "audio" || e.MediaType == "voice" || strings.HasPrefix(e.MimeType, "audio/")
}
