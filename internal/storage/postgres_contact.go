package storage

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm/clause"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
	"gitlab.com/timkado/api/concierge-engine/pkg/logger"
)

// FindContactByIdentifier returns the tenant's contact for identifier.
func (r *PostgresRepo) FindContactByIdentifier(ctx context.Context, identifier string) (*model.Contact, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}

	var contact model.Contact
	err = r.observe(ctx, "find", "contact", readRetryMaxElapsedTime, func() error {
		return checkConstraintViolation(r.db.WithContext(ctx).
			Where("user_id = ? AND identifier = ?", tenantID, identifier).
			First(&contact).Error)
	})
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

// CreateContactIfAbsent inserts contact unless the tenant already has one
// with the same identifier. Concurrent callers race on the unique index, so
// exactly one of them observes created=true.
func (r *PostgresRepo) CreateContactIfAbsent(ctx context.Context, contact *model.Contact) (bool, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return false, err
	}
	if contact.UserID == 0 {
		contact.UserID = tenantID
	}
	if contact.UserID != tenantID {
		return false, fmt.Errorf("%w: contact user %d does not match tenant %d", apperrors.ErrBadRequest, contact.UserID, tenantID)
	}
	if contact.Identifier == "" {
		return false, fmt.Errorf("%w: contact identifier is required", apperrors.ErrValidation)
	}
	contact.Tags = datatypes.NewJSONSlice(model.NormalizeTags(contact.Tags))

	var created bool
	err = r.observe(ctx, "create_if_absent", "contact", commitRetryMaxElapsedTime, func() error {
		res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "identifier"}},
			DoNothing: true,
		}).Create(contact)
		if res.Error != nil {
			return checkConstraintViolation(res.Error)
		}
		created = res.RowsAffected == 1
		return nil
	})
	if err != nil {
		logger.FromContext(ctx).Error("Failed to create contact", zap.String("identifier", contact.Identifier), zap.Error(err))
		return false, err
	}
	return created, nil
}

// ListContacts pages through the tenant's contacts, newest first.
func (r *PostgresRepo) ListContacts(ctx context.Context, status model.ContactStatus, limit, offset int) ([]model.Contact, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}

	var contacts []model.Contact
	err = r.observe(ctx, "list", "contact", readRetryMaxElapsedTime, func() error {
		q := r.db.WithContext(ctx).Where("user_id = ?", tenantID)
		if status != "" {
			q = q.Where("status = ?", status)
		}
		return checkConstraintViolation(q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&contacts).Error)
	})
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}
	return contacts, nil
}
