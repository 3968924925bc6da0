package model

import (
	"encoding/json"
	"time"
)

// WhatsAppCloudWebhook is the WhatsApp Cloud API webhook body.
type WhatsAppCloudWebhook struct {
	Object string `json:"object" validate:"required"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string             `json:"field"`
			Value WhatsAppCloudValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type WhatsAppCloudValue struct {
	MessagingProduct string `json:"messaging_product"`
	Metadata         struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []struct {
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
		WaID string `json:"wa_id"`
	} `json:"contacts"`
	Messages []WhatsAppCloudMessage `json:"messages"`
}

type WhatsAppCloudMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Audio    *WhatsAppCloudMedia `json:"audio,omitempty"`
	Image    *WhatsAppCloudMedia `json:"image,omitempty"`
	Document *WhatsAppCloudMedia `json:"document,omitempty"`
}

type WhatsAppCloudMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
}

// InstagramWebhook is the Instagram Messaging webhook body.
type InstagramWebhook struct {
	Object string `json:"object" validate:"required"`
	Entry  []struct {
		ID        string               `json:"id"`
		Time      int64                `json:"time"`
		Messaging []InstagramMessaging `json:"messaging"`
	} `json:"entry"`
}

type InstagramMessaging struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Timestamp int64 `json:"timestamp"` // milliseconds
	Message   *struct {
		MID         string `json:"mid"`
		Text        string `json:"text"`
		IsEcho      bool   `json:"is_echo"`
		Attachments []struct {
			Type    string `json:"type"`
			Payload struct {
				URL string `json:"url"`
			} `json:"payload"`
		} `json:"attachments"`
	} `json:"message,omitempty"`
}

// IdentityEvent is a user lifecycle event from the identity provider.
type IdentityEvent struct {
	Type string       `json:"type" validate:"required"`
	Data IdentityUser `json:"data"`
}

type IdentityUser struct {
	ID             string `json:"id" validate:"required"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	PrimaryEmailID string `json:"primary_email_address_id"`
	EmailAddresses []struct {
		ID    string `json:"id"`
		Email string `json:"email_address"`
	} `json:"email_addresses"`
	PublicMetadata struct {
		Role string `json:"role"`
	} `json:"public_metadata"`
}

// PrimaryEmail returns the primary address, else the first one.
func (u IdentityUser) PrimaryEmail() string {
	for _, e := range u.EmailAddresses {
		if e.ID == u.PrimaryEmailID {
			return e.Email
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].Email
	}
	return ""
}

// DLQPayload is published to the dead-letter subject when a webhook
// payload cannot be processed.
type DLQPayload struct {
	SourceSubject   string          `json:"source_subject"`
	TenantID        string          `json:"tenant_id"`
	OriginalPayload json.RawMessage `json:"original_payload"`
	Error           string          `json:"error"`
	ErrorType       string          `json:"error_type"` // fatal, retryable, unknown
	RetryCount      uint64          `json:"retry_count"`
	MaxRetry        int             `json:"max_retry"`
	NextRetryAt     *time.Time      `json:"next_retry_at,omitempty"`
	Timestamp       time.Time       `json:"ts"`
}
