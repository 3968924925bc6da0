package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"gitlab.com/timkado/api/concierge-engine/internal/model"
	"gitlab.com/timkado/api/concierge-engine/internal/storage"
)

// UserRepoMock mocks storage.UserRepo
type UserRepoMock struct{ mock.Mock }

func (m *UserRepoMock) UpsertByExternalID(ctx context.Context, user model.User) (*model.User, error) {
	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *UserRepoMock) FindByID(ctx context.Context, id uint64) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *UserRepoMock) ConsumeInteraction(ctx context.Context, userID uint64) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

// ContactRepoMock mocks storage.ContactRepo
type ContactRepoMock struct{ mock.Mock }

func (m *ContactRepoMock) FindByIdentifier(ctx context.Context, identifier string) (*model.Contact, error) {
	args := m.Called(ctx, identifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Contact), args.Error(1)
}

func (m *ContactRepoMock) CreateIfAbsent(ctx context.Context, contact *model.Contact) (bool, error) {
	args := m.Called(ctx, contact)
	return args.Bool(0), args.Error(1)
}

func (m *ContactRepoMock) List(ctx context.Context, status model.ContactStatus, limit, offset int) ([]model.Contact, error) {
	args := m.Called(ctx, status, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Contact), args.Error(1)
}

// MessageRepoMock mocks storage.MessageRepo
type MessageRepoMock struct{ mock.Mock }

func (m *MessageRepoMock) Save(ctx context.Context, msg *model.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *MessageRepoMock) ListByContact(ctx context.Context, contactID uint64, limit int) ([]model.Message, error) {
	args := m.Called(ctx, contactID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Message), args.Error(1)
}

// BookingRepoMock mocks storage.BookingRepo
type BookingRepoMock struct{ mock.Mock }

func (m *BookingRepoMock) Save(ctx context.Context, booking *model.Booking) error {
	return m.Called(ctx, booking).Error(0)
}

func (m *BookingRepoMock) FindByID(ctx context.Context, id uint64) (*model.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Booking), args.Error(1)
}

func (m *BookingRepoMock) UpdateStatus(ctx context.Context, id uint64, next model.BookingStatus) (*model.Booking, bool, error) {
	args := m.Called(ctx, id, next)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*model.Booking), args.Bool(1), args.Error(2)
}

func (m *BookingRepoMock) SetCalendarEventID(ctx context.Context, id uint64, eventID string) error {
	return m.Called(ctx, id, eventID).Error(0)
}

func (m *BookingRepoMock) SetContractID(ctx context.Context, id uint64, contractID string) error {
	return m.Called(ctx, id, contractID).Error(0)
}

func (m *BookingRepoMock) List(ctx context.Context, filter storage.BookingFilter) ([]model.Booking, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Booking), args.Error(1)
}

func (m *BookingRepoMock) FindConfirmedBetween(ctx context.Context, from, to time.Time) ([]model.Booking, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Booking), args.Error(1)
}

// ContractRepoMock mocks storage.ContractRepo
type ContractRepoMock struct{ mock.Mock }

func (m *ContractRepoMock) Save(ctx context.Context, contract *model.Contract) error {
	return m.Called(ctx, contract).Error(0)
}

func (m *ContractRepoMock) FindByID(ctx context.Context, id string) (*model.Contract, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Contract), args.Error(1)
}

func (m *ContractRepoMock) UpdateStatus(ctx context.Context, id string, next model.ContractStatus, at time.Time) (*model.Contract, error) {
	args := m.Called(ctx, id, next, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Contract), args.Error(1)
}

// SettingRepoMock mocks storage.SettingRepo
type SettingRepoMock struct{ mock.Mock }

func (m *SettingRepoMock) Find(ctx context.Context, key string) (*model.APISetting, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.APISetting), args.Error(1)
}

func (m *SettingRepoMock) Upsert(ctx context.Context, setting model.APISetting) error {
	return m.Called(ctx, setting).Error(0)
}

func (m *SettingRepoMock) ListByCategory(ctx context.Context, category model.SettingCategory) ([]model.APISetting, error) {
	args := m.Called(ctx, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.APISetting), args.Error(1)
}

func (m *SettingRepoMock) Delete(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

// ToneRepoMock mocks storage.ToneRepo
type ToneRepoMock struct{ mock.Mock }

func (m *ToneRepoMock) Latest(ctx context.Context) (*model.ToneConfig, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ToneConfig), args.Error(1)
}

func (m *ToneRepoMock) Save(ctx context.Context, cfg *model.ToneConfig) error {
	return m.Called(ctx, cfg).Error(0)
}

// ReminderRepoMock mocks storage.ReminderRepo
type ReminderRepoMock struct{ mock.Mock }

func (m *ReminderRepoMock) TryMark(ctx context.Context, bookingID uint64, label string, userID uint64) (bool, error) {
	args := m.Called(ctx, bookingID, label, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ReminderRepoMock) Release(ctx context.Context, bookingID uint64, label string) error {
	return m.Called(ctx, bookingID, label).Error(0)
}

// ExhaustedEventRepoMock mocks storage.ExhaustedEventRepo
type ExhaustedEventRepoMock struct{ mock.Mock }

func (m *ExhaustedEventRepoMock) Save(ctx context.Context, event model.ExhaustedEvent) error {
	return m.Called(ctx, event).Error(0)
}

var (
	_ storage.UserRepo           = (*UserRepoMock)(nil)
	_ storage.ContactRepo        = (*ContactRepoMock)(nil)
	_ storage.MessageRepo        = (*MessageRepoMock)(nil)
	_ storage.BookingRepo        = (*BookingRepoMock)(nil)
	_ storage.ContractRepo       = (*ContractRepoMock)(nil)
	_ storage.SettingRepo        = (*SettingRepoMock)(nil)
	_ storage.ToneRepo           = (*ToneRepoMock)(nil)
	_ storage.ReminderRepo       = (*ReminderRepoMock)(nil)
	_ storage.ExhaustedEventRepo = (*ExhaustedEventRepoMock)(nil)
)
