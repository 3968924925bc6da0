package usecase

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gitlab.com/timkado/api/concierge-engine/pkg/logger"
)

// handleRepositoryError classifies a repository failure for the ingestion
// ack policy: lookup and input failures are fatal, infrastructure failures
// are retryable.
func handleRepositoryError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}
	log := logger.FromContext(ctx)
	fields := []zap.Field{zap.String("operation", operation), zap.Error(err)}

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		log.Warn("Repository operation failed: not found", fields...)
		return apperrors.NewFatal(err, "%s failed: resource not found", operation)
	case errors.Is(err, apperrors.ErrDuplicate):
		log.Warn("Repository operation failed: duplicate resource", fields...)
		return apperrors.NewFatal(err, "%s failed: duplicate resource", operation)
	case errors.Is(err, apperrors.ErrBadRequest), errors.Is(err, apperrors.ErrValidation):
		log.Warn("Repository operation failed: bad request", fields...)
		return apperrors.NewFatal(err, "%s failed: bad request data", operation)
	case errors.Is(err, apperrors.ErrUnauthorized):
		log.Error("Repository operation failed: unauthorized", fields...)
		return apperrors.NewFatal(err, "%s failed: unauthorized", operation)
	case errors.Is(err, apperrors.ErrConflict):
		log.Warn("Repository operation failed: conflict", fields...)
		return apperrors.NewFatal(err, "%s failed: resource conflict", operation)
	case errors.Is(err, apperrors.ErrDatabase):
		log.Error("Repository operation failed: database error", fields...)
		return apperrors.NewRetryable(err, "%s failed: database error", operation)
	case errors.Is(err, apperrors.ErrTimeout):
		log.Warn("Repository operation failed: timeout", fields...)
		return apperrors.NewRetryable(err, "%s failed: operation timeout", operation)
	}

	log.Error("Repository operation failed: unexpected error", fields...)
	return apperrors.NewFatal(err, "%s failed: unexpected repository error", operation)
}
