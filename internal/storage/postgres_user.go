package storage

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
	"gitlab.com/timkado/api/concierge-engine/pkg/utils"
)

// UpsertUserByExternalID creates or refreshes a tenant keyed by its
// identity-provider id. Quota and role are only set on insert.
func (r *PostgresRepo) UpsertUserByExternalID(ctx context.Context, user model.User) (*model.User, error) {
	if user.ExternalID == "" {
		return nil, fmt.Errorf("%w: external id is required", apperrors.ErrValidation)
	}
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	if user.InteractionQuota == 0 {
		user.InteractionQuota = model.DefaultInteractionQuota
	}
	user.UpdatedAt = utils.Now()

	var saved model.User
	err := r.observe(ctx, "upsert", "user", commitRetryMaxElapsedTime, func() error {
		return r.withTx(ctx, func(tx *gorm.DB) error {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "external_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"email", "name", "updated_at"}),
			}).Create(&user).Error
			if err != nil {
				return checkConstraintViolation(err)
			}
			if err := tx.Where("external_id = ?", user.ExternalID).First(&saved).Error; err != nil {
				return checkConstraintViolation(err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// FindUserByID loads a tenant.
func (r *PostgresRepo) FindUserByID(ctx context.Context, id uint64) (*model.User, error) {
	var user model.User
	err := r.observe(ctx, "find", "user", readRetryMaxElapsedTime, func() error {
		return checkConstraintViolation(r.db.WithContext(ctx).First(&user, "id = ?", id).Error)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ConsumeInteraction atomically takes one unit of the tenant's quota.
// It returns false when the quota is already exhausted.
func (r *PostgresRepo) ConsumeInteraction(ctx context.Context, userID uint64) (bool, error) {
	var consumed bool
	err := r.observe(ctx, "consume_quota", "user", commitRetryMaxElapsedTime, func() error {
		res := r.db.WithContext(ctx).Exec(
			"UPDATE users SET interaction_quota = interaction_quota - 1, updated_at = ? WHERE id = ? AND interaction_quota > 0",
			utils.Now(), userID,
		)
		if res.Error != nil {
			return checkConstraintViolation(res.Error)
		}
		consumed = res.RowsAffected == 1
		return nil
	})
	return consumed, err
}
