package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
	"gitlab.com/timkado/api/concierge-engine/internal/storage"
	"gitlab.com/timkado/api/concierge-engine/internal/validator"
	"gitlab.com/timkado/api/concierge-engine/pkg/logger"
)

// Identity provider event types that create or refresh a tenant.
const (
	IdentityUserCreated = "user.created"
	IdentityUserUpdated = "user.updated"
)

// UserService mirrors identity-provider accounts into tenants.
type UserService struct {
	users storage.UserRepo
}

func NewUserService(users storage.UserRepo) *UserService {
	return &UserService{users: users}
}

// SyncIdentity upserts the tenant described by ev. Other event types are
// ignored and return nil, nil.
func (s *UserService) SyncIdentity(ctx context.Context, ev model.IdentityEvent) (*model.User, error) {
	log := logger.FromContext(ctx).With(zap.String("identity_event", ev.Type), zap.String("external_id", ev.Data.ID))
	if ev.Type != IdentityUserCreated && ev.Type != IdentityUserUpdated {
		log.Debug("Ignoring identity event")
		return nil, nil
	}
	if err := validator.Validate(ev); err != nil {
		return nil, err
	}

	role := model.Role(strings.ToLower(ev.Data.PublicMetadata.Role))
	if role == "" {
		role = model.RoleUser
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", apperrors.ErrValidation, role)
	}

	user, err := s.users.UpsertByExternalID(ctx, model.User{
		ExternalID:       ev.Data.ID,
		Email:            ev.Data.PrimaryEmail(),
		Name:             strings.TrimSpace(ev.Data.FirstName + " " + ev.Data.LastName),
		Role:             role,
		InteractionQuota: model.DefaultInteractionQuota,
	})
	if err != nil {
		return nil, err
	}
	log.Info("Tenant synchronised from identity provider", zap.Uint64("tenant_id", user.ID))
	return user, nil
}
