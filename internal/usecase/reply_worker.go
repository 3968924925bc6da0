package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/concierge-engine/internal/config"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
	"gitlab.com/timkado/api/concierge-engine/internal/observer"
	"gitlab.com/timkado/api/concierge-engine/internal/tenant"
	"gitlab.com/timkado/api/concierge-engine/pkg/logger"
)

// ReplyTask is one inbound message awaiting an AI reply.
type ReplyTask struct {
	Ctx        context.Context // detached from the request that produced the task
	TenantID   uint64
	ContactID  uint64
	Platform   model.Platform
	To         string
	Text       string
	ReceivedAt time.Time
}

// ReplyGenerator is satisfied by Responder.
type ReplyGenerator interface {
	Respond(ctx context.Context, tenantID uint64, text string) (string, error)
}

// QuotaConsumer is the quota side of storage.UserRepo.
type QuotaConsumer interface {
	ConsumeInteraction(ctx context.Context, userID uint64) (bool, error)
}

// MessageSaver is the write side of storage.MessageRepo.
type MessageSaver interface {
	Save(ctx context.Context, msg *model.Message) error
}

// IReplyWorker defines the interface for the reply worker pool.
type IReplyWorker interface {
	SubmitTask(task ReplyTask) error
	Stop()
}

// ReplyWorker generates and delivers replies on an ants pool.
type ReplyWorker struct {
	pool       *ants.PoolWithFunc
	quota      QuotaConsumer
	responder  ReplyGenerator
	messages   MessageSaver
	sender     Sender
	cfg        config.WorkerPoolConfig
	baseLogger *zap.Logger
}

var _ IReplyWorker = (*ReplyWorker)(nil)

func NewReplyWorker(
	cfg config.WorkerPoolConfig,
	quota QuotaConsumer,
	responder ReplyGenerator,
	messages MessageSaver,
	sender Sender,
	baseLogger *zap.Logger,
) (*ReplyWorker, error) {
	worker := &ReplyWorker{
		quota:      quota,
		responder:  responder,
		messages:   messages,
		sender:     sender,
		cfg:        cfg,
		baseLogger: baseLogger.Named("reply_worker"),
	}

	pool, err := ants.NewPoolWithFunc(cfg.PoolSize, func(i interface{}) {
		task, ok := i.(ReplyTask)
		if !ok {
			worker.baseLogger.Error("Invalid task data type received", zap.Any("data", i))
			return
		}
		worker.processReplyTask(task)
	},
		ants.WithExpiryDuration(cfg.ExpiryTime),
		ants.WithNonblocking(false),
		ants.WithMaxBlockingTasks(cfg.QueueSize),
		ants.WithPanicHandler(func(p interface{}) {
			worker.baseLogger.Error("Panic recovered in reply worker", zap.Any("panic_error", p), zap.Stack("stack"))
			observer.IncWorkerPanic("reply")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reply worker pool: %w", err)
	}
	worker.pool = pool
	worker.baseLogger.Info("Reply worker pool initialized",
		zap.Int("pool_size", cfg.PoolSize),
		zap.Int("queue_size", cfg.QueueSize),
		zap.Duration("expiry_time", cfg.ExpiryTime),
	)
	return worker, nil
}

// SubmitTask queues task, blocking while the pool is saturated.
func (w *ReplyWorker) SubmitTask(task ReplyTask) error {
	tenantLabel := strconv.FormatUint(task.TenantID, 10)
	observer.IncReplyTasksSubmitted(tenantLabel)
	observer.SetReplyQueueLength(w.pool.Waiting())

	if task.Ctx == nil {
		task.Ctx = context.Background()
	}
	if err := w.pool.Invoke(task); err != nil {
		w.baseLogger.Warn("Failed to submit reply task to pool",
			zap.Uint64("tenant_id", task.TenantID),
			zap.Uint64("contact_id", task.ContactID),
			zap.Error(err),
		)
		observer.IncReplyTasksProcessed(tenantLabel, "submit_error")
		if errors.Is(err, ants.ErrPoolOverload) {
			return fmt.Errorf("reply pool overload: %w", err)
		}
		return fmt.Errorf("failed to invoke reply task: %w", err)
	}
	return nil
}

func (w *ReplyWorker) processReplyTask(task ReplyTask) {
	ctx := tenant.WithTenantID(task.Ctx, task.TenantID)
	log := logger.FromContextOr(ctx, w.baseLogger).With(
		zap.Uint64("task_tenant_id", task.TenantID),
		zap.Uint64("task_contact_id", task.ContactID),
		zap.String("platform", string(task.Platform)),
	)
	ctx = logger.WithLogger(ctx, log)

	start := time.Now()
	status := w.reply(ctx, log, task)

	tenantLabel := strconv.FormatUint(task.TenantID, 10)
	observer.ObserveReplyProcessingDuration(tenantLabel, time.Since(start))
	observer.IncReplyTasksProcessed(tenantLabel, status)
	log.Debug("Finished processing reply task", zap.String("final_status", status), zap.Duration("duration", time.Since(start)))
}

// reply runs one task and returns its metrics status.
func (w *ReplyWorker) reply(ctx context.Context, log *zap.Logger, task ReplyTask) string {
	allowed, err := w.quota.ConsumeInteraction(ctx, task.TenantID)
	if err != nil {
		log.Error("Failed to consume interaction quota", zap.Error(err))
		return "failure_quota"
	}
	if !allowed {
		log.Info("Interaction quota exhausted, not replying")
		return "skipped_quota_exhausted"
	}

	text, err := w.responder.Respond(ctx, task.TenantID, task.Text)
	if err != nil {
		log.Error("Responder failed", zap.Error(err))
		return "failure_responder"
	}
	if text == "" {
		return "skipped_empty_reply"
	}

	msg := &model.Message{
		UserID:         task.TenantID,
		Platform:       task.Platform,
		Direction:      model.DirectionOutbound,
		Type:           model.MessageText,
		Content:        text,
		RespondedBy:    model.RespondedByAI,
		ResponseTimeMs: time.Since(task.ReceivedAt).Milliseconds(),
	}
	if task.ContactID != 0 {
		contactID := task.ContactID
		msg.ContactID = &contactID
	}
	if err := w.messages.Save(ctx, msg); err != nil {
		log.Error("Failed to persist reply", zap.Error(err))
		return "failure_save"
	}

	externalID, err := w.sender.Send(ctx, task.TenantID, task.Platform, task.To, text)
	if err != nil {
		log.Warn("Reply persisted but delivery failed", zap.Uint64("message_id", msg.ID), zap.Error(err))
		return "delivery_failed"
	}
	log.Info("Reply delivered", zap.Uint64("message_id", msg.ID), zap.String("external_id", externalID))
	return "success"
}

// Stop releases the pool, waiting for running tasks.
func (w *ReplyWorker) Stop() {
	if w.pool != nil {
		w.baseLogger.Info("Releasing reply worker pool")
		start := time.Now()
		if err := w.pool.ReleaseTimeout(10 * time.Second); err != nil {
			w.baseLogger.Warn("Reply worker pool release timed out", zap.Error(err))
		}
		w.baseLogger.Info("Reply worker pool released", zap.Duration("duration", time.Since(start)))
	}
}
