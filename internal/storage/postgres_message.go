package storage

import (
	"context"
	"fmt"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
)

// SaveMessage appends msg to the tenant's conversation log and fills its ID.
func (r *PostgresRepo) SaveMessage(ctx context.Context, msg *model.Message) error {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return err
	}
	if msg.UserID != tenantID {
		return fmt.Errorf("%w: message user %d does not match tenant %d", apperrors.ErrBadRequest, msg.UserID, tenantID)
	}
	if msg.Type == "" {
		msg.Type = model.MessageText
	}

	return r.observe(ctx, "save", "message", commitRetryMaxElapsedTime, func() error {
		return checkConstraintViolation(r.db.WithContext(ctx).Create(msg).Error)
	})
}

// ListMessagesByContact returns the latest messages exchanged with a contact,
// newest first.
func (r *PostgresRepo) ListMessagesByContact(ctx context.Context, contactID uint64, limit int) ([]model.Message, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}

	var messages []model.Message
	err = r.observe(ctx, "list", "message", readRetryMaxElapsedTime, func() error {
		return checkConstraintViolation(r.db.WithContext(ctx).
			Where("user_id = ? AND contact_id = ?", tenantID, contactID).
			Order("created_at DESC").
			Limit(limit).
			Find(&messages).Error)
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}
