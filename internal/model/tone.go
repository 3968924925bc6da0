package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/schema"
)

// ToneAttributes shape how the responder speaks. Empty fields are omitted
// from the prompt.
type ToneAttributes struct {
	Tone     string `json:"tone,omitempty"`
	Language string `json:"language,omitempty"`
	Style    string `json:"style,omitempty"`
}

// ToneConfig is a versioned persona configuration; the newest row wins.
type ToneConfig struct {
	ID        uint64                             `json:"id" gorm:"primaryKey"`
	UserID    uint64                             `json:"user_id" gorm:"not null;index:idx_tone_user_created,priority:1"`
	Config    datatypes.JSONType[ToneAttributes] `json:"config" gorm:"type:jsonb"`
	CreatedAt time.Time                          `json:"created_at" gorm:"autoCreateTime;index:idx_tone_user_created,priority:2"`
}

func (ToneConfig) TableName(namer schema.Namer) string {
	return namer.TableName("tone_configs")
}
