package model

import (
	"time"

	"gorm.io/gorm/schema"
)

// SettingCategory groups credentials by the integration that uses them.
type SettingCategory string

const (
	CategoryWhatsApp     SettingCategory = "whatsapp"
	CategoryGoogle       SettingCategory = "google"
	CategoryOpenRouter   SettingCategory = "openrouter"
	CategoryStripe       SettingCategory = "stripe"
	CategoryLemonSqueezy SettingCategory = "lemon_squeezy"
	CategoryBaileys      SettingCategory = "baileys"
	CategoryGeneral      SettingCategory = "general"
	CategoryInstagram    SettingCategory = "instagram"
	CategoryTwilio       SettingCategory = "twilio"
	CategorySendGrid     SettingCategory = "sendgrid"
)

// AllCategories lists every accepted category.
var AllCategories = []SettingCategory{
	CategoryWhatsApp, CategoryGoogle, CategoryOpenRouter, CategoryStripe,
	CategoryLemonSqueezy, CategoryBaileys, CategoryGeneral,
	CategoryInstagram, CategoryTwilio, CategorySendGrid,
}

func (c SettingCategory) Valid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

// Well-known credential keys.
const (
	KeyWhatsAppPhoneNumberID = "whatsapp_phone_number_id"
	KeyWhatsAppAccessToken   = "whatsapp_access_token"
	KeyWhatsAppVerifyToken   = "whatsapp_verify_token"
	KeyInstagramAccessToken  = "instagram_access_token"
	KeyInstagramVerifyToken  = "instagram_verify_token"
	KeyGoogleClientID        = "google_client_id"
	KeyGoogleClientSecret    = "google_client_secret"
	KeyGoogleCalendarToken   = "google_calendar_token"
	KeyOpenRouterAPIKey      = "openrouter_api_key"
	KeyTwilioAccountSID      = "twilio_account_sid"
	KeyTwilioAuthToken       = "twilio_auth_token"
	KeyTwilioPhoneNumber     = "twilio_phone_number"
	KeySendGridAPIKey        = "sendgrid_api_key"
	KeySendGridFromEmail     = "sendgrid_from_email"
	KeySendGridFromName      = "sendgrid_from_name"
)

// APISetting is one stored credential of a tenant.
type APISetting struct {
	ID          uint64          `json:"id" gorm:"primaryKey"`
	UserID      uint64          `json:"user_id" gorm:"not null;uniqueIndex:idx_api_settings_user_key,priority:1"`
	Key         string          `json:"key" gorm:"type:text;not null;uniqueIndex:idx_api_settings_user_key,priority:2" validate:"required,max=128"`
	Value       string          `json:"-" gorm:"type:text;not null"`
	Category    SettingCategory `json:"category" gorm:"type:text;not null;index"`
	Description string          `json:"description,omitempty" gorm:"type:text"`
	Required    bool            `json:"required"`
	UpdatedBy   string          `json:"updated_by,omitempty" gorm:"type:text"`
	CreatedAt   time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

func (APISetting) TableName(namer schema.Namer) string {
	return namer.TableName("api_settings")
}

// SettingUpdateColumns are overwritten when a setting is upserted.
func SettingUpdateColumns() []string {
	return []string{"value", "category", "description", "required", "updated_by", "updated_at"}
}
