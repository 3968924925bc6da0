package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
	"gitlab.com/timkado/api/concierge-engine/pkg/logger"
)

// SaveExhaustedEvent stores a dead letter that ran out of retries.
func (r *PostgresRepo) SaveExhaustedEvent(ctx context.Context, event model.ExhaustedEvent) error {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return err
	}
	if event.UserID != tenantID {
		return fmt.Errorf("%w: exhausted event user %d does not match tenant %d", apperrors.ErrBadRequest, event.UserID, tenantID)
	}

	err = r.observe(ctx, "save", "exhausted_event", commitRetryMaxElapsedTime, func() error {
		return checkConstraintViolation(r.db.WithContext(ctx).Create(&event).Error)
	})
	if err != nil {
		logger.FromContext(ctx).Error("Failed to save exhausted event",
			zap.String("source_subject", event.SourceSubject), zap.Error(err))
		return err
	}
	return nil
}
