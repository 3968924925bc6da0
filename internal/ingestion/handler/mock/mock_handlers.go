package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"gitlab.com/timkado/api/concierge-engine/internal/ingestion/handler"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
)

// MockWebhookHandler mocks handler.EventHandlerInterface
type MockWebhookHandler struct {
	mock.Mock
}

var _ handler.EventHandlerInterface = (*MockWebhookHandler)(nil)

func (m *MockWebhookHandler) HandleEvent(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	args := m.Called(ctx, eventType, metadata, rawEvent)
	return args.Error(0)
}

// MockInboundProcessor mocks handler.InboundProcessor
type MockInboundProcessor struct {
	mock.Mock
}

var _ handler.InboundProcessor = (*MockInboundProcessor)(nil)

func (m *MockInboundProcessor) HandleIncoming(ctx context.Context, tenantID uint64, ev model.InboundEvent) error {
	args := m.Called(ctx, tenantID, ev)
	return args.Error(0)
}
