package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/schema"
)

// ExhaustedEvent is a dead-lettered webhook payload that ran out of retries.
type ExhaustedEvent struct {
	ID              uint64    `gorm:"primaryKey"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
	UserID          uint64    `gorm:"not null;index"`
	SourceSubject   string    `gorm:"index;not null"`
	LastError       string    `gorm:"type:text"`
	RetryCount      int
	EventTimestamp  time.Time      `gorm:"index"`
	DLQPayload      datatypes.JSON `gorm:"type:jsonb;not null"`
	OriginalPayload datatypes.JSON `gorm:"type:jsonb"`
	Resolved        bool           `gorm:"index;default:false"`
	ResolvedAt      *time.Time
	Notes           string `gorm:"type:text"`
}

func (ExhaustedEvent) TableName(namer schema.Namer) string {
	return namer.TableName("exhausted_events")
}
