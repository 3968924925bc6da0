package handler

import (
	"context"

	"gitlab.com/timkado/api/concierge-engine/internal/model"
)

// EventHandlerInterface defines the common interface for event handlers
type EventHandlerInterface interface {
	HandleEvent(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error
}

// InboundProcessor is implemented by the inbound message pipeline.
type InboundProcessor interface {
	HandleIncoming(ctx context.Context, tenantID uint64, ev model.InboundEvent) error
}

var _ EventHandlerInterface = (*WebhookHandler)(nil)
