package storage

import (
	"context"
	"time"

	"gitlab.com/timkado/api/concierge-engine/internal/model"
)

// Repositories bundles every adapter over one PostgresRepo.
type Repositories struct {
	Users     UserRepo
	Contacts  ContactRepo
	Messages  MessageRepo
	Bookings  BookingRepo
	Contracts ContractRepo
	Settings  SettingRepo
	Tones     ToneRepo
	Reminders ReminderRepo
	Exhausted ExhaustedEventRepo
}

// NewRepositories wires all adapters to pg.
func NewRepositories(pg *PostgresRepo) *Repositories {
	return &Repositories{
		Users:     &userRepoAdapter{pg},
		Contacts:  &contactRepoAdapter{pg},
		Messages:  &messageRepoAdapter{pg},
		Bookings:  &bookingRepoAdapter{pg},
		Contracts: &contractRepoAdapter{pg},
		Settings:  &settingRepoAdapter{pg},
		Tones:     &toneRepoAdapter{pg},
		Reminders: &reminderRepoAdapter{pg},
		Exhausted: &exhaustedEventRepoAdapter{pg},
	}
}

type userRepoAdapter struct{ postgres *PostgresRepo }

func (a *userRepoAdapter) UpsertByExternalID(ctx context.Context, user model.User) (*model.User, error) {
	return a.postgres.UpsertUserByExternalID(ctx, user)
}

func (a *userRepoAdapter) FindByID(ctx context.Context, id uint64) (*model.User, error) {
	return a.postgres.FindUserByID(ctx, id)
}

func (a *userRepoAdapter) ConsumeInteraction(ctx context.Context, userID uint64) (bool, error) {
	return a.postgres.ConsumeInteraction(ctx, userID)
}

type contactRepoAdapter struct{ postgres *PostgresRepo }

func (a *contactRepoAdapter) FindByIdentifier(ctx context.Context, identifier string) (*model.Contact, error) {
	return a.postgres.FindContactByIdentifier(ctx, identifier)
}

func (a *contactRepoAdapter) CreateIfAbsent(ctx context.Context, contact *model.Contact) (bool, error) {
	return a.postgres.CreateContactIfAbsent(ctx, contact)
}

func (a *contactRepoAdapter) List(ctx context.Context, status model.ContactStatus, limit, offset int) ([]model.Contact, error) {
	return a.postgres.ListContacts(ctx, status, limit, offset)
}

type messageRepoAdapter struct{ postgres *PostgresRepo }

func (a *messageRepoAdapter) Save(ctx context.Context, msg *model.Message) error {
	return a.postgres.SaveMessage(ctx, msg)
}

func (a *messageRepoAdapter) ListByContact(ctx context.Context, contactID uint64, limit int) ([]model.Message, error) {
	return a.postgres.ListMessagesByContact(ctx, contactID, limit)
}

type bookingRepoAdapter struct{ postgres *PostgresRepo }

func (a *bookingRepoAdapter) Save(ctx context.Context, booking *model.Booking) error {
	return a.postgres.SaveBooking(ctx, booking)
}

func (a *bookingRepoAdapter) FindByID(ctx context.Context, id uint64) (*model.Booking, error) {
	return a.postgres.FindBookingByID(ctx, id)
}

func (a *bookingRepoAdapter) UpdateStatus(ctx context.Context, id uint64, next model.BookingStatus) (*model.Booking, bool, error) {
	return a.postgres.UpdateBookingStatus(ctx, id, next)
}

func (a *bookingRepoAdapter) SetCalendarEventID(ctx context.Context, id uint64, eventID string) error {
	return a.postgres.SetBookingCalendarEventID(ctx, id, eventID)
}

func (a *bookingRepoAdapter) SetContractID(ctx context.Context, id uint64, contractID string) error {
	return a.postgres.SetBookingContractID(ctx, id, contractID)
}

func (a *bookingRepoAdapter) List(ctx context.Context, filter BookingFilter) ([]model.Booking, error) {
	return a.postgres.ListBookings(ctx, filter)
}

func (a *bookingRepoAdapter) FindConfirmedBetween(ctx context.Context, from, to time.Time) ([]model.Booking, error) {
	return a.postgres.FindConfirmedBookingsBetween(ctx, from, to)
}

type contractRepoAdapter struct{ postgres *PostgresRepo }

func (a *contractRepoAdapter) Save(ctx context.Context, contract *model.Contract) error {
	return a.postgres.SaveContract(ctx, contract)
}

func (a *contractRepoAdapter) FindByID(ctx context.Context, id string) (*model.Contract, error) {
	return a.postgres.FindContractByID(ctx, id)
}

func (a *contractRepoAdapter) UpdateStatus(ctx context.Context, id string, next model.ContractStatus, at time.Time) (*model.Contract, error) {
	return a.postgres.UpdateContractStatus(ctx, id, next, at)
}

type settingRepoAdapter struct{ postgres *PostgresRepo }

func (a *settingRepoAdapter) Find(ctx context.Context, key string) (*model.APISetting, error) {
	return a.postgres.FindSetting(ctx, key)
}

func (a *settingRepoAdapter) Upsert(ctx context.Context, setting model.APISetting) error {
	return a.postgres.UpsertSetting(ctx, setting)
}

func (a *settingRepoAdapter) ListByCategory(ctx context.Context, category model.SettingCategory) ([]model.APISetting, error) {
	return a.postgres.ListSettingsByCategory(ctx, category)
}

func (a *settingRepoAdapter) Delete(ctx context.Context, key string) (bool, error) {
	return a.postgres.DeleteSetting(ctx, key)
}

type toneRepoAdapter struct{ postgres *PostgresRepo }

func (a *toneRepoAdapter) Latest(ctx context.Context) (*model.ToneConfig, error) {
	return a.postgres.LatestToneConfig(ctx)
}

func (a *toneRepoAdapter) Save(ctx context.Context, cfg *model.ToneConfig) error {
	return a.postgres.SaveToneConfig(ctx, cfg)
}

type reminderRepoAdapter struct{ postgres *PostgresRepo }

func (a *reminderRepoAdapter) TryMark(ctx context.Context, bookingID uint64, label string, userID uint64) (bool, error) {
	return a.postgres.TryMarkReminder(ctx, bookingID, label, userID)
}

func (a *reminderRepoAdapter) Release(ctx context.Context, bookingID uint64, label string) error {
	return a.postgres.ReleaseReminder(ctx, bookingID, label)
}

type exhaustedEventRepoAdapter struct{ postgres *PostgresRepo }

func (a *exhaustedEventRepoAdapter) Save(ctx context.Context, event model.ExhaustedEvent) error {
	return a.postgres.SaveExhaustedEvent(ctx, event)
}
