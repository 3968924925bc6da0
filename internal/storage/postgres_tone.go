package storage

import (
	"context"

	"gitlab.com/timkado/api/concierge-engine/internal/model"
)

// LatestToneConfig returns the tenant's newest persona configuration.
func (r *PostgresRepo) LatestToneConfig(ctx context.Context) (*model.ToneConfig, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	var cfg model.ToneConfig
	err = r.observe(ctx, "latest", "tone_config", readRetryMaxElapsedTime, func() error {
		return checkConstraintViolation(r.db.WithContext(ctx).
			Where("user_id = ?", tenantID).
			Order("created_at DESC, id DESC").
			First(&cfg).Error)
	})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveToneConfig appends a new persona version for the tenant.
func (r *PostgresRepo) SaveToneConfig(ctx context.Context, cfg *model.ToneConfig) error {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return err
	}
	cfg.UserID = tenantID
	return r.observe(ctx, "save", "tone_config", commitRetryMaxElapsedTime, func() error {
		return checkConstraintViolation(r.db.WithContext(ctx).Create(cfg).Error)
	})
}
