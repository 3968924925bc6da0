package model

import (
	"time"

	"gorm.io/gorm/schema"
)

// ReminderDispatch records that the reminder for (BookingID, IntervalLabel)
// has been claimed. The unique index is the dedup gate.
type ReminderDispatch struct {
	ID            uint64    `gorm:"primaryKey"`
	BookingID     uint64    `gorm:"not null;uniqueIndex:idx_reminder_booking_interval,priority:1"`
	IntervalLabel string    `gorm:"type:text;not null;uniqueIndex:idx_reminder_booking_interval,priority:2"`
	UserID        uint64    `gorm:"not null;index"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
}

func (ReminderDispatch) TableName(namer schema.Namer) string {
	return namer.TableName("reminder_dispatches")
}
