package ingestion

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
	"gitlab.com/timkado/api/concierge-engine/internal/tenant"
	"gitlab.com/timkado/api/concierge-engine/pkg/logger"
	"gitlab.com/timkado/api/concierge-engine/pkg/utils"
)

// EventHandler defines a function that processes events
type EventHandler func(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error

// Router routes events to the appropriate handler based on event type
type Router struct {
	handlers       map[model.EventType]EventHandler
	defaultHandler EventHandler
}

// NewRouter creates a new event router
func NewRouter() *Router {
	return &Router{
		handlers: make(map[model.EventType]EventHandler),
	}
}

// Register registers a handler for an exact event type
func (r *Router) Register(eventType model.EventType, handler EventHandler) {
	r.handlers[eventType] = handler
}

// RegisterDefault registers a default handler for unknown event types
func (r *Router) RegisterDefault(handler EventHandler) {
	r.defaultHandler = handler
}

// Route resolves the event type and tenant from the subject and calls the
// registered handler with the tenant in ctx.
func (r *Router) Route(ctx context.Context, metadata *model.MessageMetadata, rawEvent []byte) error {
	eventType, tenantToken, found := model.MapToBaseEventType(metadata.MessageSubject)
	if metadata.TenantID == "" {
		metadata.TenantID = tenantToken
	}

	log := logger.FromContext(ctx).With(
		zap.String("event_type", metadata.MessageSubject),
		zap.String("event_id", metadata.MessageID),
		zap.String("tenant", metadata.TenantID),
	)
	ctx = logger.WithLogger(ctx, log)

	tenantID, err := tenant.ParseID(metadata.TenantID)
	if err != nil {
		log.Warn("Event subject carries no valid tenant", zap.Error(err))
		return apperrors.NewFatal(apperrors.ErrBadRequest, "invalid tenant %q in subject %s", metadata.TenantID, metadata.MessageSubject)
	}
	ctx = tenant.WithTenantID(ctx, tenantID)

	if !found {
		log.Warn("Could not map subject to a known base event type", zap.String("subject", metadata.MessageSubject))
	}

	log.Info("Event received",
		zap.String("payload_size", utils.ByteCountSI(len(rawEvent))),
		zap.String("version", eventType.GetVersion()),
		zap.String("base_type", string(eventType.GetBaseType())),
	)

	handler, ok := r.handlers[eventType]
	if !ok && r.defaultHandler != nil {
		log.Warn("No specific handler for event type, using default")
		return r.defaultHandler(ctx, eventType, metadata, rawEvent)
	} else if !ok {
		log.Error("No handler registered for event type")
		return apperrors.NewFatal(fmt.Errorf("%w: no handler for %s", apperrors.ErrBadRequest, metadata.MessageSubject), "route")
	}

	return handler(ctx, eventType, metadata, rawEvent)
}
