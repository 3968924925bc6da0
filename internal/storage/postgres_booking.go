package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
	"gitlab.com/timkado/api/concierge-engine/pkg/logger"
	"gitlab.com/timkado/api/concierge-engine/pkg/utils"
)

// BookingFilter narrows ListBookings. Zero values are ignored.
type BookingFilter struct {
	Status model.BookingStatus
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// SaveBooking inserts a new booking for the tenant.
func (r *PostgresRepo) SaveBooking(ctx context.Context, booking *model.Booking) error {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return err
	}
	if booking.UserID != tenantID {
		return fmt.Errorf("%w: booking user %d does not match tenant %d", apperrors.ErrBadRequest, booking.UserID, tenantID)
	}
	if booking.Status == "" {
		booking.Status = model.BookingPending
	}
	return r.observe(ctx, "save", "booking", commitRetryMaxElapsedTime, func() error {
		return checkConstraintViolation(r.db.WithContext(ctx).Create(booking).Error)
	})
}

// FindBookingByID loads one of the tenant's bookings.
func (r *PostgresRepo) FindBookingByID(ctx context.Context, id uint64) (*model.Booking, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	var booking model.Booking
	err = r.observe(ctx, "find", "booking", readRetryMaxElapsedTime, func() error {
		return checkConstraintViolation(r.db.WithContext(ctx).
			Where("id = ? AND user_id = ?", id, tenantID).
			First(&booking).Error)
	})
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// UpdateBookingStatus applies a state-machine transition under a row lock.
// changed is false when the booking was already in next.
func (r *PostgresRepo) UpdateBookingStatus(ctx context.Context, id uint64, next model.BookingStatus) (*model.Booking, bool, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, false, err
	}

	var (
		booking model.Booking
		changed bool
	)
	err = r.observe(ctx, "update_status", "booking", commitRetryMaxElapsedTime, func() error {
		return r.withTx(ctx, func(tx *gorm.DB) error {
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("id = ? AND user_id = ?", id, tenantID).
				First(&booking).Error
			if err != nil {
				return checkConstraintViolation(err)
			}
			changed, err = booking.Transition(next)
			if err != nil || !changed {
				return err
			}
			booking.UpdatedAt = utils.Now()
			return checkConstraintViolation(tx.Model(&booking).Updates(map[string]interface{}{
				"status":     booking.Status,
				"updated_at": booking.UpdatedAt,
			}).Error)
		})
	})
	if err != nil {
		logger.FromContext(ctx).Warn("Booking status update failed",
			zap.Uint64("booking_id", id), zap.String("next", string(next)), zap.Error(err))
		return nil, false, err
	}
	return &booking, changed, nil
}

// SetBookingCalendarEventID links (or with "" unlinks) a calendar event.
func (r *PostgresRepo) SetBookingCalendarEventID(ctx context.Context, id uint64, eventID string) error {
	return r.updateBookingColumn(ctx, id, "calendar_event_id", eventID)
}

// SetBookingContractID links a generated contract.
func (r *PostgresRepo) SetBookingContractID(ctx context.Context, id uint64, contractID string) error {
	return r.updateBookingColumn(ctx, id, "contract_id", contractID)
}

func (r *PostgresRepo) updateBookingColumn(ctx context.Context, id uint64, column, value string) error {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return err
	}
	return r.observe(ctx, "update_"+column, "booking", commitRetryMaxElapsedTime, func() error {
		res := r.db.WithContext(ctx).Model(&model.Booking{}).
			Where("id = ? AND user_id = ?", id, tenantID).
			Updates(map[string]interface{}{column: value, "updated_at": utils.Now()})
		if res.Error != nil {
			return checkConstraintViolation(res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: booking %d", apperrors.ErrNotFound, id)
		}
		return nil
	})
}

// ListBookings returns the tenant's bookings ordered by event date.
func (r *PostgresRepo) ListBookings(ctx context.Context, filter BookingFilter) ([]model.Booking, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}

	var bookings []model.Booking
	err = r.observe(ctx, "list", "booking", readRetryMaxElapsedTime, func() error {
		q := r.db.WithContext(ctx).Where("user_id = ?", tenantID)
		if filter.Status != "" {
			q = q.Where("status = ?", filter.Status)
		}
		if !filter.From.IsZero() {
			q = q.Where("event_date >= ?", filter.From)
		}
		if !filter.To.IsZero() {
			q = q.Where("event_date <= ?", filter.To)
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit).Offset(filter.Offset)
		}
		return checkConstraintViolation(q.Order("event_date ASC").Find(&bookings).Error)
	})
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

// FindConfirmedBookingsBetween returns confirmed bookings of every tenant
// whose event date lies in [from, to], both ends inclusive.
func (r *PostgresRepo) FindConfirmedBookingsBetween(ctx context.Context, from, to time.Time) ([]model.Booking, error) {
	var bookings []model.Booking
	err := r.observe(ctx, "find_confirmed_window", "booking", readRetryMaxElapsedTime, func() error {
		return checkConstraintViolation(r.db.WithContext(ctx).
			Where("status = ? AND event_date BETWEEN ? AND ?", model.BookingConfirmed, from, to).
			Order("event_date ASC").
			Find(&bookings).Error)
	})
	if err != nil {
		return nil, err
	}
	return bookings, nil
}
