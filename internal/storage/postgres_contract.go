package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
)

// SaveContract inserts a generated contract.
func (r *PostgresRepo) SaveContract(ctx context.Context, contract *model.Contract) error {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return err
	}
	if contract.UserID != tenantID {
		return fmt.Errorf("%w: contract user %d does not match tenant %d", apperrors.ErrBadRequest, contract.UserID, tenantID)
	}
	return r.observe(ctx, "save", "contract", commitRetryMaxElapsedTime, func() error {
		return checkConstraintViolation(r.db.WithContext(ctx).Create(contract).Error)
	})
}

// FindContractByID loads one of the tenant's contracts.
func (r *PostgresRepo) FindContractByID(ctx context.Context, id string) (*model.Contract, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	var contract model.Contract
	err = r.observe(ctx, "find", "contract", readRetryMaxElapsedTime, func() error {
		return checkConstraintViolation(r.db.WithContext(ctx).
			Where("id = ? AND user_id = ?", id, tenantID).
			First(&contract).Error)
	})
	if err != nil {
		return nil, err
	}
	return &contract, nil
}

// UpdateContractStatus applies a contract transition under a row lock.
func (r *PostgresRepo) UpdateContractStatus(ctx context.Context, id string, next model.ContractStatus, at time.Time) (*model.Contract, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}

	var contract model.Contract
	err = r.observe(ctx, "update_status", "contract", commitRetryMaxElapsedTime, func() error {
		return r.withTx(ctx, func(tx *gorm.DB) error {
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("id = ? AND user_id = ?", id, tenantID).
				First(&contract).Error
			if err != nil {
				return checkConstraintViolation(err)
			}
			changed, err := contract.Transition(next, at)
			if err != nil || !changed {
				return err
			}
			return checkConstraintViolation(tx.Model(&contract).Updates(map[string]interface{}{
				"status":     contract.Status,
				"sent_at":    contract.SentAt,
				"signed_at":  contract.SignedAt,
				"paid_at":    contract.PaidAt,
				"updated_at": at,
			}).Error)
		})
	})
	if err != nil {
		return nil, err
	}
	return &contract, nil
}
