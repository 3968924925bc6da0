package storage

import (
	"context"

	"gorm.io/gorm/clause"

	"gitlab.com/timkado/api/concierge-engine/internal/model"
	"gitlab.com/timkado/api/concierge-engine/pkg/utils"
)

// FindSetting returns the tenant's stored credential row for key.
func (r *PostgresRepo) FindSetting(ctx context.Context, key string) (*model.APISetting, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	var setting model.APISetting
	err = r.observe(ctx, "find", "api_setting", readRetryMaxElapsedTime, func() error {
		return checkConstraintViolation(r.db.WithContext(ctx).
			Where("user_id = ? AND key = ?", tenantID, key).
			First(&setting).Error)
	})
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

// UpsertSetting writes a credential row keyed by (tenant, key).
func (r *PostgresRepo) UpsertSetting(ctx context.Context, setting model.APISetting) error {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return err
	}
	setting.UserID = tenantID
	setting.UpdatedAt = utils.Now()

	return r.observe(ctx, "upsert", "api_setting", commitRetryMaxElapsedTime, func() error {
		return checkConstraintViolation(r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "key"}},
			DoUpdates: clause.AssignmentColumns(model.SettingUpdateColumns()),
		}).Create(&setting).Error)
	})
}

// ListSettingsByCategory returns the tenant's rows in category ordered by key.
func (r *PostgresRepo) ListSettingsByCategory(ctx context.Context, category model.SettingCategory) ([]model.APISetting, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	var settings []model.APISetting
	err = r.observe(ctx, "list", "api_setting", readRetryMaxElapsedTime, func() error {
		return checkConstraintViolation(r.db.WithContext(ctx).
			Where("user_id = ? AND category = ?", tenantID, category).
			Order("key ASC").
			Find(&settings).Error)
	})
	if err != nil {
		return nil, err
	}
	return settings, nil
}

// DeleteSetting removes key; deleted is false when nothing was stored.
func (r *PostgresRepo) DeleteSetting(ctx context.Context, key string) (bool, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return false, err
	}
	var deleted bool
	err = r.observe(ctx, "delete", "api_setting", commitRetryMaxElapsedTime, func() error {
		res := r.db.WithContext(ctx).Where("user_id = ? AND key = ?", tenantID, key).Delete(&model.APISetting{})
		if res.Error != nil {
			return checkConstraintViolation(res.Error)
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	return deleted, err
}
