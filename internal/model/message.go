package model

import (
	"time"

	"gorm.io/gorm/schema"
)

// Platform identifies the chat channel a message travelled on.
type Platform string

const (
	PlatformWhatsApp      Platform = "whatsapp"
	PlatformWhatsAppCloud Platform = "whatsapp_cloud"
	PlatformInstagram     Platform = "instagram"
	PlatformTelegram      Platform = "telegram"
)

type MessageDirection string

const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

type MessageType string

const (
	MessageText     MessageType = "text"
	MessageVoice    MessageType = "voice"
	MessageImage    MessageType = "image"
	MessageDocument MessageType = "document"
)

// RespondedByAI is stored on replies produced by the responder.
const RespondedByAI = "ai"

// Message is an append-only log entry of a conversation.
type Message struct {
	ID             uint64           `json:"id" gorm:"primaryKey"`
	UserID         uint64           `json:"user_id" gorm:"not null;index:idx_messages_user_created,priority:1" validate:"required"`
	ContactID      *uint64          `json:"contact_id,omitempty" gorm:"index"`
	Platform       Platform         `json:"platform" gorm:"type:text;not null" validate:"required"`
	Direction      MessageDirection `json:"direction" gorm:"type:text;not null" validate:"required,oneof=inbound outbound"`
	Type           MessageType      `json:"type" gorm:"type:text;not null;default:text"`
	Content        string           `json:"content" gorm:"type:text"`
	MediaURL       string           `json:"media_url,omitempty" gorm:"type:text"`
	Transcription  string           `json:"transcription,omitempty" gorm:"type:text"`
	ExternalID     string           `json:"external_id,omitempty" gorm:"type:text;index"`
	RespondedBy    string           `json:"responded_by,omitempty" gorm:"type:text"`
	ResponseTimeMs int64            `json:"response_time_ms,omitempty"`
	CreatedAt      time.Time        `json:"created_at" gorm:"autoCreateTime;index:idx_messages_user_created,priority:2"`
}

func (Message) TableName(namer schema.Namer) string {
	return namer.TableName("messages")
}
