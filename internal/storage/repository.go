package storage

import (
	"context"
	"time"

	"gitlab.com/timkado/api/concierge-engine/internal/model"
)

// UserRepo defines tenant account storage operations
type UserRepo interface {
	UpsertByExternalID(ctx context.Context, user model.User) (*model.User, error)
	FindByID(ctx context.Context, id uint64) (*model.User, error)
	ConsumeInteraction(ctx context.Context, userID uint64) (bool, error)
}

// ContactRepo defines contact storage operations
type ContactRepo interface {
	FindByIdentifier(ctx context.Context, identifier string) (*model.Contact, error)
	CreateIfAbsent(ctx context.Context, contact *model.Contact) (bool, error)
	List(ctx context.Context, status model.ContactStatus, limit, offset int) ([]model.Contact, error)
}

// MessageRepo defines message storage operations
type MessageRepo interface {
	Save(ctx context.Context, msg *model.Message) error
	ListByContact(ctx context.Context, contactID uint64, limit int) ([]model.Message, error)
}

// BookingRepo defines booking storage operations
type BookingRepo interface {
	Save(ctx context.Context, booking *model.Booking) error
	FindByID(ctx context.Context, id uint64) (*model.Booking, error)
	UpdateStatus(ctx context.Context, id uint64, next model.BookingStatus) (*model.Booking, bool, error)
	SetCalendarEventID(ctx context.Context, id uint64, eventID string) error
	SetContractID(ctx context.Context, id uint64, contractID string) error
	List(ctx context.Context, filter BookingFilter) ([]model.Booking, error)
	// FindConfirmedBetween spans all tenants.
	FindConfirmedBetween(ctx context.Context, from, to time.Time) ([]model.Booking, error)
}

// ContractRepo defines contract storage operations
type ContractRepo interface {
	Save(ctx context.Context, contract *model.Contract) error
	FindByID(ctx context.Context, id string) (*model.Contract, error)
	UpdateStatus(ctx context.Context, id string, next model.ContractStatus, at time.Time) (*model.Contract, error)
}

// SettingRepo defines credential row storage operations
type SettingRepo interface {
	Find(ctx context.Context, key string) (*model.APISetting, error)
	Upsert(ctx context.Context, setting model.APISetting) error
	ListByCategory(ctx context.Context, category model.SettingCategory) ([]model.APISetting, error)
	Delete(ctx context.Context, key string) (bool, error)
}

// ToneRepo defines persona configuration storage operations
type ToneRepo interface {
	Latest(ctx context.Context) (*model.ToneConfig, error)
	Save(ctx context.Context, cfg *model.ToneConfig) error
}

// ReminderRepo is the durable reminder dedup ledger
type ReminderRepo interface {
	TryMark(ctx context.Context, bookingID uint64, label string, userID uint64) (bool, error)
	Release(ctx context.Context, bookingID uint64, label string) error
}

// ExhaustedEventRepo defines exhausted event storage operations
type ExhaustedEventRepo interface {
	Save(ctx context.Context, event model.ExhaustedEvent) error
}

// Pinger is implemented by stores that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
