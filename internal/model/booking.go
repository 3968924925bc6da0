package model

import (
	"fmt"
	"time"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gorm.io/gorm/schema"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:   {BookingConfirmed, BookingCancelled},
	BookingConfirmed: {BookingCompleted, BookingCancelled},
}

// Valid reports whether s is a known booking status.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCompleted, BookingCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Booking is a client's reservation of an event.
type Booking struct {
	ID              uint64        `json:"id" gorm:"primaryKey"`
	UserID          uint64        `json:"user_id" gorm:"not null;index" validate:"required"`
	ContactID       *uint64       `json:"contact_id,omitempty" gorm:"index"`
	ClientName      string        `json:"client_name" gorm:"type:text;not null" validate:"required"`
	ClientPhone     string        `json:"client_phone,omitempty" gorm:"type:text"`
	ClientEmail     string        `json:"client_email,omitempty" gorm:"type:text" validate:"omitempty,email"`
	EventDate       time.Time     `json:"event_date" gorm:"not null;index:idx_bookings_status_date,priority:2" validate:"required"`
	EventType       string        `json:"event_type" gorm:"type:text;not null" validate:"required"`
	Location        string        `json:"location" gorm:"type:text"`
	Budget          int64         `json:"budget" validate:"gte=0"` // minor units
	Currency        string        `json:"currency" gorm:"type:text;default:EUR" validate:"omitempty,len=3"`
	Status          BookingStatus `json:"status" gorm:"type:text;not null;default:pending;index:idx_bookings_status_date,priority:1"`
	CalendarEventID string        `json:"calendar_event_id,omitempty" gorm:"type:text"`
	ContractID      string        `json:"contract_id,omitempty" gorm:"type:text"`
	Notes           string        `json:"notes,omitempty" gorm:"type:text"`
	CreatedAt       time.Time     `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time     `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Booking) TableName(namer schema.Namer) string {
	return namer.TableName("bookings")
}

// Transition moves the booking to next. Moving to the current status is a
// no-op and reports changed=false.
func (b *Booking) Transition(next BookingStatus) (changed bool, err error) {
	if !next.Valid() {
		return false, fmt.Errorf("%w: unknown booking status %q", apperrors.ErrValidation, next)
	}
	if b.Status == next {
		return false, nil
	}
	if !b.Status.CanTransitionTo(next) {
		return false, fmt.Errorf("%w: booking %d %s -> %s", apperrors.ErrInvalidTransition, b.ID, b.Status, next)
	}
	b.Status = next
	return true, nil
}
