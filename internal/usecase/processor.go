package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/concierge-engine/internal/config"
	"gitlab.com/timkado/api/concierge-engine/internal/ingestion"
	"gitlab.com/timkado/api/concierge-engine/internal/ingestion/handler"
	"gitlab.com/timkado/api/concierge-engine/internal/jetstream"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
	"gitlab.com/timkado/api/concierge-engine/pkg/logger"
)

// Processor wires the webhook consumer to the inbound pipeline.
type Processor struct {
	consumer    ingestion.ConsumerInterface
	eventRouter ingestion.RouterInterface
	webhooks    handler.EventHandlerInterface
}

// NewProcessor creates a processor consuming cfg.NATS.Webhooks and
// feeding every message to inbound.
func NewProcessor(inbound handler.InboundProcessor, jsClient jetstream.ClientInterface, cfg *config.Config) *Processor {
	router := ingestion.NewRouter()
	return &Processor{
		consumer:    ingestion.NewWebhookConsumer(jsClient, router, cfg.NATS.Webhooks, cfg.NATS.DLQSubject),
		eventRouter: router,
		webhooks:    handler.NewWebhookHandler(inbound),
	}
}

// newProcessorWith is used by tests to swap the consumer.
func newProcessorWith(consumer ingestion.ConsumerInterface, router ingestion.RouterInterface, webhooks handler.EventHandlerInterface) *Processor {
	return &Processor{consumer: consumer, eventRouter: router, webhooks: webhooks}
}

// GetRouter returns the processor's event router.
func (p *Processor) GetRouter() ingestion.RouterInterface {
	return p.eventRouter
}

// Setup registers the handlers and declares the stream and consumer.
func (p *Processor) Setup() error {
	p.eventRouter.Register(model.V1WebhookWhatsApp, p.webhooks.HandleEvent)
	p.eventRouter.Register(model.V1WebhookInstagram, p.webhooks.HandleEvent)

	p.eventRouter.RegisterDefault(func(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
		logger.FromContext(ctx).Warn("Unhandled event type",
			zap.String("type", string(eventType)),
			zap.String("subject", metadata.MessageSubject),
		)
		return nil
	})

	if err := p.consumer.Setup(); err != nil {
		return fmt.Errorf("failed to setup webhook consumer: %w", err)
	}
	logger.Log.Info("Processor setup complete")
	return nil
}

// Start subscribes the consumer.
func (p *Processor) Start() error {
	logger.Log.Info("Starting event processor...")
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("[panic] Recovered from panic in processor",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	if err := p.consumer.Start(); err != nil {
		return fmt.Errorf("failed to start webhook consumer: %w", err)
	}
	logger.Log.Info("Webhook consumer started")
	return nil
}

// Stop drains the consumer.
func (p *Processor) Stop() {
	logger.Log.Info("Stopping event processor...")
	p.consumer.Stop()
	logger.Log.Info("Event processor stopped")
}
