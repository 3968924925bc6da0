// Package dlqworker replays dead-lettered webhook events with backoff and
// parks the ones that keep failing in the exhausted_events table.
package dlqworker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"gitlab.com/timkado/api/concierge-engine/internal/config"
	"gitlab.com/timkado/api/concierge-engine/internal/ingestion"
	internal_js "gitlab.com/timkado/api/concierge-engine/internal/jetstream"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
	"gitlab.com/timkado/api/concierge-engine/internal/observer"
	"gitlab.com/timkado/api/concierge-engine/internal/storage"
	"gitlab.com/timkado/api/concierge-engine/internal/tenant"
	"gitlab.com/timkado/api/concierge-engine/pkg/logger"
)

const (
	defaultMaxDeliver = 5
	defaultMsgChanCap = 100
	fetchBatchSize    = 10
	fetchMaxWait      = 5 * time.Second
	taskTimeout       = time.Minute
)

// delivery is the acknowledgement surface of a DLQ message.
type delivery interface {
	Ack(opts ...nats.AckOpt) error
	NakWithDelay(delay time.Duration, opts ...nats.AckOpt) error
	Term(opts ...nats.AckOpt) error
}

var _ delivery = (*nats.Msg)(nil)

// Worker handles processing messages from the DLQ.
type Worker struct {
	cfg    *config.Config
	logger *zap.Logger
	js     internal_js.ClientInterface
	pool   *ants.Pool
	router ingestion.RouterInterface
	store  storage.ExhaustedEventRepo
	msgCh  chan *nats.Msg
	stopWg sync.WaitGroup
	cancel context.CancelFunc
}

func durableName(dlqSubject string) string {
	return strings.ReplaceAll(dlqSubject, ".", "_") + "_worker_consumer"
}

// NewWorker creates the pool and the DLQ stream and durable pull consumer.
func NewWorker(cfg *config.Config, log *zap.Logger, jsClient internal_js.ClientInterface, router ingestion.RouterInterface, exhaustedRepo storage.ExhaustedEventRepo) (*Worker, error) {
	w, err := newWorker(cfg, log, jsClient, router, exhaustedRepo)
	if err != nil {
		return nil, err
	}

	setupCtx := context.Background()
	subject := cfg.NATS.DLQSubject + ".>"
	durable := durableName(cfg.NATS.DLQSubject)

	streamCfg := &nats.StreamConfig{
		Name:      cfg.NATS.DLQStream,
		Subjects:  []string{subject},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    time.Duration(cfg.NATS.DLQMaxAgeDays) * 24 * time.Hour,
	}
	if err := jsClient.SetupStream(setupCtx, streamCfg); err != nil {
		w.pool.Release()
		return nil, fmt.Errorf("failed to setup DLQ stream '%s': %w", cfg.NATS.DLQStream, err)
	}
	w.logger.Info("DLQ Stream setup complete", zap.String("stream", cfg.NATS.DLQStream))

	consumerCfg := &nats.ConsumerConfig{
		Durable:       durable,
		FilterSubject: subject,
		AckPolicy:     nats.AckExplicitPolicy,
		MaxDeliver:    w.maxDeliver(),
		AckWait:       cfg.NATS.DLQAckWait,
		MaxAckPending: cfg.NATS.DLQMaxAckPending,
		DeliverPolicy: nats.DeliverAllPolicy,
		ReplayPolicy:  nats.ReplayInstantPolicy,
	}
	if err := jsClient.SetupConsumer(setupCtx, cfg.NATS.DLQStream, consumerCfg); err != nil {
		w.pool.Release()
		return nil, fmt.Errorf("failed to setup DLQ consumer '%s' for stream '%s': %w", durable, cfg.NATS.DLQStream, err)
	}
	w.logger.Info("DLQ Consumer setup complete", zap.String("consumer", durable))

	w.logger.Info("DLQ Worker initialized", zap.Int("pool_size", cfg.NATS.DLQWorkers))
	return w, nil
}

func newWorker(cfg *config.Config, log *zap.Logger, jsClient internal_js.ClientInterface, router ingestion.RouterInterface, exhaustedRepo storage.ExhaustedEventRepo) (*Worker, error) {
	size := cfg.NATS.DLQWorkers
	if size <= 0 {
		size = 1
	}
	pool, err := ants.NewPool(size,
		ants.WithLogger(newAntsLoggerAdapter(log.Named("ants_pool"))),
		ants.WithPanicHandler(func(p interface{}) {
			observer.IncWorkerPanic("dlq")
			log.Error("Worker panic caught", zap.Any("error", p), zap.Stack("stack"))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ants pool: %w", err)
	}
	return &Worker{
		cfg:    cfg,
		logger: log.Named("dlq_worker"),
		js:     jsClient,
		pool:   pool,
		router: router,
		store:  exhaustedRepo,
		msgCh:  make(chan *nats.Msg, defaultMsgChanCap),
	}, nil
}

func (w *Worker) maxDeliver() int {
	if w.cfg.NATS.DLQMaxDeliver > 0 {
		return w.cfg.NATS.DLQMaxDeliver
	}
	return defaultMaxDeliver
}

// Start begins the fetch and dispatch loops and blocks until ctx is done.
func (w *Worker) Start(ctx context.Context) error {
	derivedCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	subject := w.cfg.NATS.DLQSubject + ".>"
	durable := durableName(w.cfg.NATS.DLQSubject)
	w.logger.Info("Attempting DLQ pull subscription",
		zap.String("stream", w.cfg.NATS.DLQStream),
		zap.String("subject", subject),
		zap.String("durable_name", durable),
	)

	sub, err := w.js.SubscribePull(w.cfg.NATS.DLQStream, subject, durable)
	if err != nil {
		w.logger.Error("Failed to create DLQ pull subscription", zap.Error(err))
		cancel()
		return fmt.Errorf("failed to create DLQ pull subscription: %w", err)
	}

	w.stopWg.Add(2)
	go w.fetchMessages(derivedCtx, sub)
	go w.dispatchMessages(derivedCtx)

	w.logger.Info("DLQ worker started successfully")
	<-derivedCtx.Done()
	w.logger.Info("DLQ worker context cancelled, initiating shutdown...")
	return nil
}

// Stop cancels the loops, waits for them and releases the pool.
func (w *Worker) Stop() {
	w.logger.Info("Stopping DLQ worker...")
	if w.cancel != nil {
		w.cancel()
	}
	w.stopWg.Wait()
	close(w.msgCh)
	w.pool.Release()
	w.logger.Info("DLQ worker stopped successfully")
}

func (w *Worker) fetchMessages(ctx context.Context, sub *nats.Subscription) {
	defer w.stopWg.Done()

	for {
		if ctx.Err() != nil {
			return
		}
		observer.IncDlqFetchRequest()
		msgs, err := sub.Fetch(fetchBatchSize, nats.MaxWait(fetchMaxWait))
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, nats.ErrTimeout) || errors.Is(err, nats.ErrConnectionClosed) {
				continue
			}
			observer.IncDlqFetchError()
			w.logger.Error("Fetcher loop error retrieving messages", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, msg := range msgs {
			select {
			case w.msgCh <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (w *Worker) dispatchMessages(ctx context.Context) {
	defer w.stopWg.Done()

	for {
		observer.SetDlqQueueLength(len(w.msgCh))
		observer.SetDlqWorkersActive(w.pool.Running())

		select {
		case <-ctx.Done():
			return
		case msg, ok := <-w.msgCh:
			if !ok {
				return
			}
			tenantLabel := peekTenant(msg.Data)
			err := w.pool.Submit(func() {
				taskCtx, taskCancel := context.WithTimeout(context.Background(), taskTimeout)
				defer taskCancel()
				w.handleMsg(taskCtx, msg)
			})
			if err != nil {
				w.logger.Error("Failed to submit task to ants pool", zap.Error(err))
				if nakErr := msg.NakWithDelay(5 * time.Second); nakErr != nil {
					w.logger.Error("Failed to NAK message after pool submission error", zap.Error(nakErr))
					observer.IncDlqAckFailure(tenantLabel)
				}
				continue
			}
			observer.IncDlqTasksSubmitted(tenantLabel)
		}
	}
}

func peekTenant(data []byte) string {
	var p struct {
		TenantID string `json:"tenant_id"`
	}
	_ = json.Unmarshal(data, &p)
	return p.TenantID
}

func (w *Worker) handleMsg(ctx context.Context, msg *nats.Msg) {
	meta, err := msg.Metadata()
	if err != nil {
		w.logger.Error("Failed to get message metadata", zap.Error(err))
		if termErr := msg.Term(); termErr != nil {
			w.logger.Error("Failed to terminate message after metadata error", zap.Error(termErr))
		}
		observer.IncDlqAckFailure("")
		return
	}
	w.handle(ctx, msg, msg.Subject, msg.Data, meta)
}

// handle replays one dead-lettered event through the router. A failure
// is NAKed with exponential backoff until the consumer's last delivery,
// when the event is persisted as exhausted and terminated.
func (w *Worker) handle(ctx context.Context, d delivery, subject string, data []byte, meta *nats.MsgMetadata) {
	start := time.Now()
	var tenantLabel string
	defer func() { observer.ObserveDlqProcessingDuration(tenantLabel, time.Since(start)) }()

	var payload model.DLQPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		w.logger.Error("Failed to unmarshal DLQ payload",
			zap.Error(err),
			zap.Uint64("sequence", meta.Sequence.Stream),
			zap.String("subject", subject),
		)
		if termErr := d.Term(); termErr != nil {
			w.logger.Error("Failed to terminate message after unmarshal error", zap.Error(termErr))
		}
		observer.IncDlqAckFailure(tenantLabel)
		return
	}
	tenantLabel = payload.TenantID

	log := w.logger.With(
		zap.String("source_subject", payload.SourceSubject),
		zap.String("tenant", payload.TenantID),
		zap.Uint64("num_delivered", meta.NumDelivered),
	)
	log.Info("Processing DLQ message", zap.Uint64("stream_sequence", meta.Sequence.Stream))

	routerMetadata := &model.MessageMetadata{
		MessageSubject:   payload.SourceSubject,
		TenantID:         payload.TenantID,
		StreamSequence:   meta.Sequence.Stream,
		ConsumerSequence: meta.Sequence.Consumer,
		Timestamp:        meta.Timestamp,
		NumDelivered:     meta.NumDelivered,
	}
	processingErr := w.router.Route(logger.WithLogger(ctx, log), routerMetadata, payload.OriginalPayload)
	if processingErr == nil {
		if ackErr := d.Ack(); ackErr != nil {
			log.Error("Failed to ACK successfully processed message", zap.Error(ackErr))
			observer.IncDlqAckFailure(tenantLabel)
			return
		}
		log.Info("Successfully processed event from DLQ")
		observer.IncDlqAckSuccess(tenantLabel)
		return
	}

	log.Warn("Failed to process event from DLQ", zap.Error(processingErr))

	if meta.NumDelivered >= uint64(w.maxDeliver()) {
		w.exhaust(ctx, log, d, payload, data, meta.NumDelivered, processingErr)
		return
	}

	delay := calculateBackoffDelay(int(meta.NumDelivered), w.cfg.NATS.DLQBaseDelayMinutes, w.cfg.NATS.DLQMaxDelayMinutes)
	if nakErr := d.NakWithDelay(delay); nakErr != nil {
		log.Error("Failed to NAK message with delay", zap.Error(nakErr))
		observer.IncDlqAckFailure(tenantLabel)
		return
	}
	log.Info("Retrying DLQ message with backoff", zap.Duration("delay", delay))
	observer.IncDlqTaskRetry(tenantLabel)
}

func (w *Worker) exhaust(ctx context.Context, log *zap.Logger, d delivery, payload model.DLQPayload, data []byte, attempts uint64, cause error) {
	log.Warn("Max deliveries reached, persisting exhausted event")

	userID, _ := tenant.ParseID(payload.TenantID)
	event := model.ExhaustedEvent{
		UserID:          userID,
		SourceSubject:   payload.SourceSubject,
		LastError:       cause.Error(),
		RetryCount:      int(attempts),
		EventTimestamp:  payload.Timestamp,
		DLQPayload:      datatypes.JSON(data),
		OriginalPayload: datatypes.JSON(payload.OriginalPayload),
	}
	if err := w.store.Save(ctx, event); err != nil {
		log.Error("Failed to save exhausted event, terminating message anyway", zap.Error(err))
	}

	if termErr := d.Term(); termErr != nil {
		log.Error("Failed to terminate exhausted message", zap.Error(termErr))
		observer.IncDlqAckFailure(payload.TenantID)
		return
	}
	observer.IncDlqTasksDropped(payload.TenantID)
}

// calculateBackoffDelay doubles the base delay per attempt up to max.
func calculateBackoffDelay(retryCount int, baseDelayMinutes, maxDelayMinutes int) time.Duration {
	baseDelay := time.Duration(baseDelayMinutes) * time.Minute
	maxDelay := time.Duration(maxDelayMinutes) * time.Minute

	if retryCount <= 1 {
		return baseDelay
	}
	if retryCount > 32 {
		return maxDelay
	}
	delay := baseDelay * time.Duration(1<<uint(retryCount-1))
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}
	return delay
}

type antsLoggerAdapter struct {
	logger *zap.Logger
}

func newAntsLoggerAdapter(logger *zap.Logger) *antsLoggerAdapter {
	return &antsLoggerAdapter{logger: logger}
}

func (a *antsLoggerAdapter) Printf(format string, args ...interface{}) {
	a.logger.Info(fmt.Sprintf(format, args...))
}
