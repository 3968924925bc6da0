package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gitlab.com/timkado/api/concierge-engine/internal/config"
	"gitlab.com/timkado/api/concierge-engine/internal/jetstream"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
	"gitlab.com/timkado/api/concierge-engine/internal/observer"
	"gitlab.com/timkado/api/concierge-engine/pkg/logger"
	"gitlab.com/timkado/api/concierge-engine/pkg/utils"
)

// AckNakAction represents the decision made after processing a message
type AckNakAction int

const (
	ActionAck      AckNakAction = iota // processed, ACK
	ActionNak                          // DLQ failure, NAK immediately
	ActionNakDelay                     // retryable error, NAK with delay
	ActionDLQ                          // max retries or fatal error, publish to DLQ then ACK
)

const consumerTypeWebhook = "webhook"

// delivery is the acknowledgement surface of a JetStream message.
type delivery interface {
	Ack(opts ...nats.AckOpt) error
	Nak(opts ...nats.AckOpt) error
	NakWithDelay(delay time.Duration, opts ...nats.AckOpt) error
	Term(opts ...nats.AckOpt) error
}

var _ delivery = (*nats.Msg)(nil)

// baseConsumer holds shared components and logic for NATS consumers
type baseConsumer struct {
	client       jetstream.ClientInterface
	router       RouterInterface
	consumerType string
	ctx          context.Context
	cancel       context.CancelFunc
	maxDeliver   int
	dlqSubject   string // base, the tenant token is appended
	nakBaseDelay time.Duration
	nakMaxDelay  time.Duration
}

func newBaseConsumer(client jetstream.ClientInterface, router RouterInterface, consumerType string, maxDeliver int, dlqSubject string, nakBaseDelay, nakMaxDelay time.Duration) *baseConsumer {
	ctx, cancel := context.WithCancel(context.Background())
	ctx = logger.WithLogger(ctx, logger.Log.With(zap.String("consumer_type", consumerType)))

	return &baseConsumer{
		client:       client,
		router:       router,
		consumerType: consumerType,
		ctx:          ctx,
		cancel:       cancel,
		maxDeliver:   maxDeliver,
		dlqSubject:   dlqSubject,
		nakBaseDelay: nakBaseDelay,
		nakMaxDelay:  nakMaxDelay,
	}
}

// determineAckNakAction decides the fate of a message based on processing result and metadata.
func determineAckNakAction(
	processingErr error,
	metadata *nats.MsgMetadata,
	maxDeliver int,
	nakBaseDelay time.Duration,
	nakMaxDelay time.Duration,
) (action AckNakAction, delay time.Duration) {
	if processingErr == nil {
		return ActionAck, 0
	}

	isRetryable := apperrors.IsRetryable(processingErr)
	numDelivered := metadata.NumDelivered

	if numDelivered >= uint64(maxDeliver) || !isRetryable {
		return ActionDLQ, 0
	}

	delay = nakBaseDelay
	if numDelivered > 1 {
		delay = nakBaseDelay * (1 << (numDelivered - 1))
	}
	if delay > nakMaxDelay || delay <= 0 {
		delay = nakMaxDelay
	}
	return ActionNakDelay, delay
}

// handleMessage is the nats.MsgHandler of every consumer.
func (bc *baseConsumer) handleMessage(msg *nats.Msg) {
	var msgID string
	if msg.Header != nil {
		msgID = msg.Header.Get("Nats-Msg-Id")
	}
	metadata, err := msg.Metadata()
	if err != nil {
		logger.FromContext(bc.ctx).Error("Failed to read message metadata", zap.Error(err), zap.String("subject", msg.Subject))
		if nakErr := msg.Nak(); nakErr != nil {
			logger.FromContext(bc.ctx).Error("Failed to NAK message", zap.Error(nakErr))
		}
		observer.IncEventProcessingAction("", "", bc.consumerType, "nak_metadata_error", "metadata")
		return
	}
	bc.process(msg, msg.Subject, msg.Data, msgID, metadata)
}

// process routes one delivery and settles it.
func (bc *baseConsumer) process(d delivery, subject string, data []byte, msgID string, metadata *nats.MsgMetadata) {
	startTime := utils.Now()
	eventType, tenantToken, found := model.MapToBaseEventType(subject)
	log := logger.FromContext(bc.ctx)

	defer func() {
		observer.ObserveEventProcessingDuration(string(eventType), tenantToken, bc.consumerType, time.Since(startTime))

		if r := recover(); r != nil {
			log.Error("[panic] Recovered from panic in message handler",
				zap.Any("panic", r),
				zap.String("nats_message_id", msgID),
				zap.String("subject", subject),
				zap.Stack("stack"),
			)
			observer.IncEventsFailed(string(eventType), tenantToken, bc.consumerType)
			observer.IncEventProcessingAction(string(eventType), tenantToken, bc.consumerType, "panic_nak", "panic")
			if nakErr := d.Nak(); nakErr != nil {
				log.Error("Failed to NAK message after panic", zap.Error(nakErr))
			}
		}
	}()

	if !found {
		log.Warn("Unknown event type, terminating message", zap.String("subject", subject))
		if termErr := d.Term(); termErr != nil {
			log.Error("Failed to terminate message for unknown event type", zap.Error(termErr))
		}
		observer.IncEventProcessingAction("", tenantToken, bc.consumerType, "term_unknown_type", "unknown_event_type")
		return
	}

	if msgID == "" {
		msgID = fmt.Sprintf("msg-%d", metadata.Sequence.Stream)
	}
	internalMetadata := &model.MessageMetadata{
		StreamSequence:   metadata.Sequence.Stream,
		ConsumerSequence: metadata.Sequence.Consumer,
		NumDelivered:     metadata.NumDelivered,
		NumPending:       metadata.NumPending,
		Timestamp:        metadata.Timestamp,
		Stream:           metadata.Stream,
		Consumer:         metadata.Consumer,
		Domain:           metadata.Domain,
		MessageID:        msgID,
		MessageSubject:   subject,
		TenantID:         tenantToken,
	}

	observer.IncEventsReceived(string(eventType), tenantToken, bc.consumerType)

	msgCtx := logger.WithLogger(bc.ctx, log.With(
		zap.String("nats_message_id", msgID),
		zap.Uint64("stream_sequence", metadata.Sequence.Stream),
		zap.Uint64("consumer_sequence", metadata.Sequence.Consumer),
		zap.String("subject", subject),
		zap.String("tenant", tenantToken),
	))
	processingErr := bc.router.Route(msgCtx, internalMetadata, data)

	enhancedLog := logger.FromContext(msgCtx)
	action, nakDelay := determineAckNakAction(processingErr, metadata, bc.maxDeliver, bc.nakBaseDelay, bc.nakMaxDelay)

	errorType := "none"
	if processingErr != nil {
		errorType = observer.SanitizeErrorType(processingErr.Error())
	}

	switch action {
	case ActionAck:
		enhancedLog.Info("Successfully processed message", zap.Duration("duration", time.Since(startTime)))
		observer.IncEventsProcessed(string(eventType), tenantToken, bc.consumerType)
		observer.IncEventProcessingAction(string(eventType), tenantToken, bc.consumerType, "ack_success", errorType)
		if ackErr := d.Ack(); ackErr != nil {
			enhancedLog.Error("Failed to ACK message after successful processing", zap.Error(ackErr))
		}

	case ActionNakDelay:
		enhancedLog.Info("NAKing message with delay for redelivery (retryable error)",
			zap.Error(processingErr),
			zap.Uint64("num_delivered", metadata.NumDelivered),
			zap.Int("max_deliver", bc.maxDeliver),
			zap.Duration("nak_delay", nakDelay),
		)
		observer.IncEventsFailed(string(eventType), tenantToken, bc.consumerType)
		observer.IncEventProcessingAction(string(eventType), tenantToken, bc.consumerType, "nak_retry", errorType)
		if nakErr := d.NakWithDelay(nakDelay); nakErr != nil {
			enhancedLog.Error("Failed to NAK message with delay", zap.Error(nakErr))
		}

	case ActionDLQ:
		bc.deadLetter(enhancedLog, d, subject, tenantToken, string(eventType), msgID, data, metadata, processingErr, errorType)
	}
}

func (bc *baseConsumer) deadLetter(
	log *zap.Logger,
	d delivery,
	subject, tenantToken, eventType, msgID string,
	data []byte,
	metadata *nats.MsgMetadata,
	processingErr error,
	errorType string,
) {
	isRetryable := apperrors.IsRetryable(processingErr)
	reason := "fatal error encountered"
	errorTypeString := "fatal"
	if isRetryable {
		reason = "max delivery attempts reached"
		errorTypeString = "retryable"
	}
	log.Warn("Sending message to DLQ: "+reason,
		zap.Error(processingErr),
		zap.Uint64("num_delivered", metadata.NumDelivered),
		zap.Int("max_deliver", bc.maxDeliver),
	)
	observer.IncEventsFailed(eventType, tenantToken, bc.consumerType)

	original := json.RawMessage(data)
	if !json.Valid(data) {
		original, _ = json.Marshal(string(data))
	}
	dlqData, err := json.Marshal(model.DLQPayload{
		SourceSubject:   subject,
		TenantID:        tenantToken,
		OriginalPayload: original,
		Error:           processingErr.Error(),
		ErrorType:       errorTypeString,
		RetryCount:      metadata.NumDelivered,
		MaxRetry:        bc.maxDeliver,
		Timestamp:       utils.Now(),
	})
	if err != nil {
		log.Error("Failed to marshal DLQ payload, NAKing original message", zap.Error(err))
		observer.IncEventProcessingAction(eventType, tenantToken, bc.consumerType, "nak_dlq_marshal_fail", "dlq_marshal_fail")
		if nakErr := d.Nak(); nakErr != nil {
			log.Error("Failed to NAK message after DLQ marshal error", zap.Error(nakErr))
		}
		return
	}

	headers := map[string]string{}
	if msgID != "" {
		headers["Original-Nats-Msg-Id"] = msgID
	}
	dlqFullSubject := fmt.Sprintf("%s.%s", bc.dlqSubject, tenantToken)
	if err := bc.client.Publish(dlqFullSubject, dlqData, headers); err != nil {
		log.Error("Failed to publish message to DLQ, NAKing original message",
			zap.Error(err),
			zap.String("dlq_subject", dlqFullSubject),
		)
		observer.IncEventProcessingAction(eventType, tenantToken, bc.consumerType, "nak_dlq_publish_fail", "dlq_publish_fail")
		if nakErr := d.Nak(); nakErr != nil {
			log.Error("Failed to NAK message after DLQ publish error", zap.Error(nakErr))
		}
		return
	}

	log.Info("Message published to DLQ", zap.String("dlq_subject", dlqFullSubject))
	observer.IncEventProcessingAction(eventType, tenantToken, bc.consumerType, "dlq_published_ack_success", errorType)
	if ackErr := d.Ack(); ackErr != nil {
		log.Error("Failed to ACK message after successful DLQ publish", zap.Error(ackErr))
	}
}

// WebhookConsumer consumes webhook payloads of every tenant from one
// durable push consumer. The tenant is the last subject token.
type WebhookConsumer struct {
	base *baseConsumer
	cfg  config.ConsumerNatsConfig
	sub  *nats.Subscription
}

func NewWebhookConsumer(client jetstream.ClientInterface, router RouterInterface, cfg config.ConsumerNatsConfig, dlqSubject string) *WebhookConsumer {
	base := newBaseConsumer(client, router, consumerTypeWebhook, cfg.MaxDeliver, dlqSubject, cfg.NakBaseDelay, cfg.NakMaxDelay)
	return &WebhookConsumer{base: base, cfg: cfg}
}

// Setup configures the NATS stream and consumer for webhook events
func (c *WebhookConsumer) Setup() error {
	log := logger.FromContext(c.base.ctx)
	log.Info("Setting up WebhookConsumer...", zap.String("stream", c.cfg.Stream), zap.String("consumer", c.cfg.Consumer))

	streamCfg := &nats.StreamConfig{
		Name:      c.cfg.Stream,
		Subjects:  c.cfg.SubjectList,
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    time.Duration(c.cfg.MaxAge*24) * time.Hour,
	}
	if err := c.base.client.SetupStream(c.base.ctx, streamCfg); err != nil {
		log.Error("Failed to setup webhook stream", zap.Error(err), zap.String("stream", c.cfg.Stream))
		return fmt.Errorf("failed to setup webhook stream '%s': %w", c.cfg.Stream, err)
	}

	consumerCfg := &nats.ConsumerConfig{
		Durable:        c.cfg.Consumer,
		DeliverGroup:   c.cfg.QueueGroup,
		FilterSubjects: c.cfg.SubjectList,
		AckPolicy:      nats.AckExplicitPolicy,
		DeliverSubject: nats.NewInbox(),
		MaxDeliver:     c.cfg.MaxDeliver,
		AckWait:        30 * time.Second,
		MaxAckPending:  1000,
		ReplayPolicy:   nats.ReplayInstantPolicy,
		DeliverPolicy:  nats.DeliverAllPolicy,
	}
	if err := c.base.client.SetupConsumer(c.base.ctx, c.cfg.Stream, consumerCfg); err != nil {
		log.Error("Failed to setup webhook consumer", zap.Error(err), zap.String("consumer", c.cfg.Consumer))
		return fmt.Errorf("failed to setup webhook consumer '%s' for stream '%s': %w", c.cfg.Consumer, c.cfg.Stream, err)
	}

	log.Info("WebhookConsumer setup complete")
	return nil
}

// Start subscribes to the NATS stream
func (c *WebhookConsumer) Start() error {
	log := logger.FromContext(c.base.ctx)
	sub, err := c.base.client.SubscribePush("", c.cfg.Consumer, c.cfg.QueueGroup, c.cfg.Stream, c.base.handleMessage)
	if err != nil {
		log.Error("Failed to subscribe webhook consumer", zap.Error(err),
			zap.String("consumer", c.cfg.Consumer),
			zap.String("group", c.cfg.QueueGroup),
		)
		return fmt.Errorf("failed to subscribe webhook consumer '%s': %w", c.cfg.Consumer, err)
	}
	c.sub = sub
	log.Info("WebhookConsumer subscribed successfully")
	return nil
}

// Stop drains the subscription and cancels in-flight handlers.
func (c *WebhookConsumer) Stop() {
	log := logger.FromContext(c.base.ctx)
	log.Info("Stopping WebhookConsumer...")
	if c.sub != nil {
		if err := c.sub.Drain(); err != nil {
			log.Error("Error draining webhook subscription", zap.Error(err))
		}
	}
	if c.base.cancel != nil {
		c.base.cancel()
	}
	log.Info("WebhookConsumer stopped")
}
