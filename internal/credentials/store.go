// Package credentials stores per-tenant integration secrets.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
	"gitlab.com/timkado/api/concierge-engine/internal/storage"
	"gitlab.com/timkado/api/concierge-engine/internal/tenant"
	"gitlab.com/timkado/api/concierge-engine/pkg/logger"
)

// SetInput describes one credential write.
type SetInput struct {
	Key         string                `json:"key" validate:"required,max=128"`
	Value       string                `json:"value" validate:"required"`
	Category    model.SettingCategory `json:"category" validate:"required"`
	Description string                `json:"description,omitempty"`
	Required    bool                  `json:"required"`
	Actor       string                `json:"-"`
}

// Reader is the read side used by integrations.
type Reader interface {
	Get(ctx context.Context, key string) (string, bool, error)
	GetAllByCategory(ctx context.Context, category model.SettingCategory) (map[string]string, error)
}

// ReadWriter adds writes for integrations that persist tokens.
type ReadWriter interface {
	Reader
	Set(ctx context.Context, in SetInput) error
}

var _ ReadWriter = (*Store)(nil)

// Store is the tenant-scoped credential store. A nil cipher stores plaintext.
type Store struct {
	repo   storage.SettingRepo
	cipher *Cipher
}

func NewStore(repo storage.SettingRepo, cipher *Cipher) *Store {
	if cipher == nil {
		logger.Log.Warn("credential master key not configured, secrets are stored in plaintext")
	}
	return &Store{repo: repo, cipher: cipher}
}

// Get returns the value for key; found is false when nothing is stored.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", apperrors.ErrUnauthorized, err)
	}
	row, err := s.repo.Find(ctx, key)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	value, err := s.open(ctx, tenantID, row.Key, row.Value)
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set upserts a credential keyed by (tenant, key).
func (s *Store) Set(ctx context.Context, in SetInput) error {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrUnauthorized, err)
	}
	if strings.TrimSpace(in.Key) == "" {
		return fmt.Errorf("%w: key is required", apperrors.ErrValidation)
	}
	if !in.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", apperrors.ErrValidation, in.Category)
	}

	stored := in.Value
	if s.cipher != nil {
		if stored, err = s.cipher.Seal(ctx, tenantID, in.Key, in.Value); err != nil {
			return fmt.Errorf("seal credential %s: %w", in.Key, err)
		}
	}

	err = s.repo.Upsert(ctx, model.APISetting{
		UserID:      tenantID,
		Key:         in.Key,
		Value:       stored,
		Category:    in.Category,
		Description: in.Description,
		Required:    in.Required,
		UpdatedBy:   in.Actor,
	})
	if err != nil {
		return err
	}
	logger.FromContext(ctx).Info("credential updated",
		zap.String("key", in.Key),
		zap.String("category", string(in.Category)),
		zap.String("actor", in.Actor),
		zap.Bool("encrypted", s.cipher != nil),
	)
	return nil
}

// GetAllByCategory returns key to value for every credential in category.
func (s *Store) GetAllByCategory(ctx context.Context, category model.SettingCategory) (map[string]string, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUnauthorized, err)
	}
	if !category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", apperrors.ErrValidation, category)
	}
	rows, err := s.repo.ListByCategory(ctx, category)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		value, err := s.open(ctx, tenantID, row.Key, row.Value)
		if err != nil {
			return nil, err
		}
		out[row.Key] = value
	}
	return out, nil
}

// Delete removes key; it reports false when nothing was stored.
func (s *Store) Delete(ctx context.Context, key, actor string) (bool, error) {
	deleted, err := s.repo.Delete(ctx, key)
	if err != nil {
		return false, err
	}
	logger.FromContext(ctx).Info("credential deleted",
		zap.String("key", key),
		zap.String("actor", actor),
		zap.Bool("existed", deleted),
	)
	return deleted, nil
}

func (s *Store) open(ctx context.Context, tenantID uint64, key, stored string) (string, error) {
	if s.cipher == nil {
		if strings.HasPrefix(stored, EnvelopePrefix) {
			return "", fmt.Errorf("%w: credential %s is encrypted but no master key is configured", apperrors.ErrConfiguration, key)
		}
		return stored, nil
	}
	return s.cipher.Open(ctx, tenantID, key, stored)
}

// Require returns the listed keys or ErrConfiguration naming the first missing one.
func Require(ctx context.Context, r Reader, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		value, found, err := r.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !found || value == "" {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrConfiguration, key)
		}
		out[key] = value
	}
	return out, nil
}
