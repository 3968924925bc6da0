package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
	"gitlab.com/timkado/api/concierge-engine/internal/storage"
	"gitlab.com/timkado/api/concierge-engine/internal/tenant"
	"gitlab.com/timkado/api/concierge-engine/internal/validator"
	"gitlab.com/timkado/api/concierge-engine/pkg/logger"
	"gitlab.com/timkado/api/concierge-engine/pkg/utils"
)

// CalendarClient is satisfied by calendar.Service.
type CalendarClient interface {
	CreateEvent(ctx context.Context, b *model.Booking) (string, error)
	DeleteEvent(ctx context.Context, eventID string) error
}

// BookingService owns the booking and contract lifecycles.
type BookingService struct {
	bookings  storage.BookingRepo
	contracts storage.ContractRepo
	calendar  CalendarClient
}

func NewBookingService(bookings storage.BookingRepo, contracts storage.ContractRepo, calendar CalendarClient) *BookingService {
	return &BookingService{bookings: bookings, contracts: contracts, calendar: calendar}
}

// Create stores a new pending booking for the tenant in ctx.
func (s *BookingService) Create(ctx context.Context, b *model.Booking) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrUnauthorized, err)
	}
	b.ID = 0
	b.UserID = tenantID
	b.Status = model.BookingPending
	b.CalendarEventID = ""
	b.ContractID = ""
	b.Currency = strings.ToUpper(strings.TrimSpace(b.Currency))
	if b.Currency == "" {
		b.Currency = "EUR"
	}
	if err := validator.Validate(b); err != nil {
		return err
	}
	if err := s.bookings.Save(ctx, b); err != nil {
		return err
	}
	logger.FromContext(ctx).Info("Booking created", zap.Uint64("booking_id", b.ID), zap.Time("event_date", b.EventDate))
	return nil
}

func (s *BookingService) Get(ctx context.Context, id uint64) (*model.Booking, error) {
	return s.bookings.FindByID(ctx, id)
}

func (s *BookingService) List(ctx context.Context, filter storage.BookingFilter) ([]model.Booking, error) {
	return s.bookings.List(ctx, filter)
}

// Transition moves a booking through its lifecycle. Calendar side effects
// are best effort: their failure is logged and the new status stands.
func (s *BookingService) Transition(ctx context.Context, id uint64, next model.BookingStatus) (*model.Booking, error) {
	b, changed, err := s.bookings.UpdateStatus(ctx, id, next)
	if err != nil {
		return nil, err
	}
	if !changed || s.calendar == nil {
		return b, nil
	}

	log := logger.FromContext(ctx).With(zap.Uint64("booking_id", b.ID), zap.String("status", string(b.Status)))
	switch next {
	case model.BookingConfirmed:
		eventID, err := s.calendar.CreateEvent(ctx, b)
		if err != nil {
			log.Warn("Booking confirmed without calendar event", zap.Error(err))
			return b, nil
		}
		if err := s.bookings.SetCalendarEventID(ctx, b.ID, eventID); err != nil {
			log.Error("Failed to link calendar event", zap.String("event_id", eventID), zap.Error(err))
			return b, nil
		}
		b.CalendarEventID = eventID
	case model.BookingCancelled:
		if b.CalendarEventID == "" {
			return b, nil
		}
		if err := s.calendar.DeleteEvent(ctx, b.CalendarEventID); err != nil {
			log.Warn("Failed to delete calendar event of cancelled booking", zap.String("event_id", b.CalendarEventID), zap.Error(err))
		}
	}
	return b, nil
}

// GenerateContract renders a draft contract of type ct for the booking and
// links it.
func (s *BookingService) GenerateContract(ctx context.Context, bookingID uint64, ct model.ContractType, language string) (*model.Contract, error) {
	if !ct.Valid() {
		return nil, fmt.Errorf("%w: unknown contract type %q", apperrors.ErrValidation, ct)
	}
	b, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status == model.BookingCancelled {
		return nil, fmt.Errorf("%w: booking %d is cancelled", apperrors.ErrConflict, b.ID)
	}

	now := utils.Now()
	content, err := renderContract(ct, b, now)
	if err != nil {
		return nil, err
	}
	if language == "" {
		language = "en"
	}
	c := &model.Contract{
		ID:        newContractID(now),
		BookingID: b.ID,
		UserID:    b.UserID,
		Type:      ct,
		Language:  language,
		Content:   content,
		Status:    model.ContractDraft,
	}
	if err := s.contracts.Save(ctx, c); err != nil {
		return nil, err
	}
	if err := s.bookings.SetContractID(ctx, b.ID, c.ID); err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("Contract generated",
		zap.String("contract_id", c.ID),
		zap.Uint64("booking_id", b.ID),
		zap.String("type", string(ct)),
	)
	return c, nil
}

// TransitionContract moves a contract through draft, sent, signed, paid
// or expired.
func (s *BookingService) TransitionContract(ctx context.Context, id string, next model.ContractStatus) (*model.Contract, error) {
	if !next.Valid() {
		return nil, fmt.Errorf("%w: unknown contract status %q", apperrors.ErrValidation, next)
	}
	return s.contracts.UpdateStatus(ctx, id, next, utils.Now())
}

func (s *BookingService) GetContract(ctx context.Context, id string) (*model.Contract, error) {
	return s.contracts.FindByID(ctx, id)
}
