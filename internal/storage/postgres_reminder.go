package storage

import (
	"context"

	"gitlab.com/timkado/api/concierge-engine/pkg/utils"
)

// TryMarkReminder claims (bookingID, label). Only the first caller across
// all processes gets true.
func (r *PostgresRepo) TryMarkReminder(ctx context.Context, bookingID uint64, label string, userID uint64) (bool, error) {
	var claimed bool
	err := r.observe(ctx, "try_mark", "reminder_dispatch", commitRetryMaxElapsedTime, func() error {
		res := r.db.WithContext(ctx).Exec(
			"INSERT INTO reminder_dispatches (booking_id, interval_label, user_id, created_at) VALUES (?, ?, ?, ?) ON CONFLICT (booking_id, interval_label) DO NOTHING",
			bookingID, label, userID, utils.Now(),
		)
		if res.Error != nil {
			return checkConstraintViolation(res.Error)
		}
		claimed = res.RowsAffected == 1
		return nil
	})
	return claimed, err
}

// ReleaseReminder drops a claim so a later sweep can retry the dispatch.
func (r *PostgresRepo) ReleaseReminder(ctx context.Context, bookingID uint64, label string) error {
	return r.observe(ctx, "release", "reminder_dispatch", commitRetryMaxElapsedTime, func() error {
		return checkConstraintViolation(r.db.WithContext(ctx).Exec(
			"DELETE FROM reminder_dispatches WHERE booking_id = ? AND interval_label = ?",
			bookingID, label,
		).Error)
	})
}
