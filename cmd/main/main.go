package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	svix "github.com/svix/svix-webhooks/go"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/concierge-engine/internal/auth"
	"gitlab.com/timkado/api/concierge-engine/internal/cache"
	"gitlab.com/timkado/api/concierge-engine/internal/calendar"
	"gitlab.com/timkado/api/concierge-engine/internal/config"
	"gitlab.com/timkado/api/concierge-engine/internal/credentials"
	"gitlab.com/timkado/api/concierge-engine/internal/dlqworker"
	"gitlab.com/timkado/api/concierge-engine/internal/healthcheck"
	"gitlab.com/timkado/api/concierge-engine/internal/httpapi"
	"gitlab.com/timkado/api/concierge-engine/internal/jetstream"
	"gitlab.com/timkado/api/concierge-engine/internal/llm"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
	"gitlab.com/timkado/api/concierge-engine/internal/notify"
	"gitlab.com/timkado/api/concierge-engine/internal/observer"
	"gitlab.com/timkado/api/concierge-engine/internal/reminder"
	"gitlab.com/timkado/api/concierge-engine/internal/session"
	"gitlab.com/timkado/api/concierge-engine/internal/storage"
	"gitlab.com/timkado/api/concierge-engine/internal/transport"
	"gitlab.com/timkado/api/concierge-engine/internal/usecase"
	"gitlab.com/timkado/api/concierge-engine/pkg/logger"
	"gitlab.com/timkado/api/concierge-engine/pkg/utils"
)

var version = "dev"

func main() {
	time.Local = time.UTC

	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	observer.InitMetrics(cfg.Metrics.Enabled)

	logger.Log.Info("Starting concierge engine",
		zap.String("version", version),
		zap.String("environment", cfg.Environment),
		zap.String("nats_url", cfg.NATS.URL),
	)

	postgresRepo, err := initPostgresRepo(cfg.Database.PostgresDSN, cfg.Database.PostgresAutoMigrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize Postgres repository", zap.Error(err))
	}
	repos := storage.NewRepositories(postgresRepo)

	jsClient, err := jetstream.NewClient(cfg.NATS.URL)
	if err != nil {
		logger.Log.Fatal("Failed to initialize JetStream client", zap.Error(err))
	}

	tokens, err := auth.NewTokens(cfg.Auth.JWTSecret)
	if err != nil {
		logger.Log.Fatal("Failed to initialize API tokens", zap.Error(err))
	}

	creds, err := initCredentials(cfg.Credentials.MasterKey, repos.Settings)
	if err != nil {
		logger.Log.Fatal("Failed to initialize credential store", zap.Error(err))
	}

	// Integrations read their per-tenant secrets from the credential store.
	provider := llm.NewProvider(creds, llm.Options{
		BaseURL:            cfg.LLM.BaseURL,
		Model:              cfg.LLM.Model,
		TranscriptionModel: cfg.LLM.TranscriptionModel,
		Timeout:            cfg.LLM.Timeout,
	})
	transcriber := llm.NewTranscriber(provider)
	metaGraph := notify.NewMetaGraph(creds, cfg.Meta.GraphBaseURL, nil)
	sms := notify.NewTwilioSMS(creds)
	email := notify.NewSendGridEmail(creds)
	calendarService := calendar.NewService(creds, tokens, calendar.Options{RedirectURL: googleRedirectURL(cfg)})

	// The registry needs the inbound pipeline and the pipeline needs the
	// registry to reply, so inbound messages are bound after construction.
	var inbound *usecase.InboundService
	gateway := transport.NewGateway(jsClient, cfg.NATS.Gateway.Prefix, cfg.NATS.Gateway.RequestTimeout)
	registry := session.NewRegistry(gateway, cfg.Sessions, func(ctx context.Context, tenantID uint64, ev model.InboundEvent) {
		if err := inbound.HandleIncoming(ctx, tenantID, ev); err != nil {
			logger.FromContext(ctx).Error("Failed to handle session message", zap.Error(err))
		}
	})

	replyWorker, err := usecase.NewReplyWorker(
		cfg.WorkerPools.Reply,
		repos.Users,
		usecase.NewResponder(repos.Tones, provider),
		repos.Messages,
		usecase.NewPlatformSender(registry, metaGraph),
		logger.Log,
	)
	if err != nil {
		logger.Log.Fatal("Failed to initialize reply worker pool", zap.Error(err))
	}

	inbound = usecase.NewInboundService(
		repos.Contacts,
		repos.Messages,
		cache.NewContactCache(100000, 0.01),
		transcriber,
		metaGraph,
		replyWorker,
		usecase.InboundOptions{TranscribeVoiceNotes: cfg.Features.TranscribeVoiceNotes},
	)
	bookings := usecase.NewBookingService(repos.Bookings, repos.Contracts, calendarService)

	processor := usecase.NewProcessor(inbound, jsClient, cfg)
	if err := processor.Setup(); err != nil {
		logger.Log.Fatal("Failed to set up processor", zap.Error(err))
	}

	dlqWorker, err := dlqworker.NewWorker(cfg, logger.Log, jsClient, processor.GetRouter(), repos.Exhausted)
	if err != nil {
		logger.Log.Fatal("Failed to initialize DLQ worker", zap.Error(err))
	}

	var scheduler *reminder.Scheduler
	if cfg.Reminders.Enabled {
		scheduler, err = reminder.NewScheduler(repos.Bookings, repos.Reminders,
			reminder.NewChannelNotifier(registry, sms, email), cfg.Reminders, nil)
		if err != nil {
			logger.Log.Fatal("Failed to initialize reminder scheduler", zap.Error(err))
		}
	}

	identityHook, err := initIdentityHook(cfg.Identity.WebhookSecret)
	if err != nil {
		logger.Log.Fatal("Failed to initialize identity webhook verifier", zap.Error(err))
	}

	httpServer := healthcheck.NewServer(strconv.Itoa(cfg.Server.Port), version, logger.Log)
	httpServer.AddCheck("postgres", postgresRepo.Ping)
	httpServer.AddCheck("nats", func(context.Context) error {
		if status := jsClient.NatsConn().Status(); status != nats.CONNECTED {
			return fmt.Errorf("nats status %s", status)
		}
		return nil
	})
	if cfg.Metrics.Enabled {
		httpServer.RegisterMetricsHandler(promhttp.Handler())
	}
	deps := httpapi.Deps{
		Tokens:      tokens,
		Sessions:    registry,
		Credentials: creds,
		Publisher:   jsClient,
		Identity:    usecase.NewUserService(repos.Users),
		Calendar:    calendarService,
		Bookings:    bookings,
		Transcriber: transcriber,
	}
	if identityHook != nil {
		deps.IdentityHook = identityHook
	}
	httpapi.Register(httpServer.Router(), deps)
	httpServer.Start()

	if err := processor.Start(); err != nil {
		logger.Log.Fatal("Failed to start processor", zap.Error(err))
	}

	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()
	sigChan := make(chan os.Signal, 1)

	var loops sync.WaitGroup
	loops.Add(1)
	utils.SafeGo("dlq worker", func() {
		defer loops.Done()
		if err := dlqWorker.Start(mainCtx); err != nil {
			logger.Log.Error("DLQ worker failed, initiating shutdown", zap.Error(err))
			select {
			case sigChan <- syscall.SIGTERM:
			default:
			}
		}
	}, nil)

	if scheduler != nil {
		loops.Add(1)
		utils.SafeGo("reminder scheduler", func() {
			defer loops.Done()
			scheduler.Run(mainCtx)
		}, nil)
	}

	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))
	mainCancel()

	shutdown(postgresRepo, jsClient, httpServer, processor, dlqWorker, replyWorker, registry, &loops)
}

type stopper struct {
	name string
	stop func(ctx context.Context) error
}

func shutdown(
	postgresRepo *storage.PostgresRepo,
	jsClient *jetstream.Client,
	httpServer *healthcheck.Server,
	processor *usecase.Processor,
	dlqWorker *dlqworker.Worker,
	replyWorker *usecase.ReplyWorker,
	registry *session.Registry,
	loops *sync.WaitGroup,
) {
	const timeout = 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	logger.Log.Info("Starting graceful shutdown", zap.Duration("timeout", timeout))

	// Intake stops first, then the workers drain, then connections close.
	stages := [][]stopper{
		{
			{"http server", httpServer.Stop},
			{"event processor", func(context.Context) error { processor.Stop(); return nil }},
		},
		{
			{"dlq worker", func(context.Context) error { dlqWorker.Stop(); return nil }},
			{"reply worker", func(context.Context) error { replyWorker.Stop(); return nil }},
			{"background loops", func(context.Context) error { loops.Wait(); return nil }},
			{"session registry", registry.Shutdown},
		},
		{
			{"postgres", postgresRepo.Close},
			{"jetstream", func(context.Context) error { jsClient.Close(); return nil }},
		},
	}

	for _, stage := range stages {
		var wg sync.WaitGroup
		for _, s := range stage {
			s := s
			wg.Add(1)
			utils.SafeGo("shutdown "+s.name, func() {
				defer wg.Done()
				start := time.Now()
				if err := s.stop(shutdownCtx); err != nil {
					logger.Log.Error("[shutdown] Failed to stop "+s.name, zap.Error(err))
					return
				}
				logger.Log.Info("[shutdown] Stopped "+s.name, zap.Duration("duration", time.Since(start)))
			}, func(r interface{}, stack []byte) {
				logger.Log.Error("[shutdown] Panic while stopping "+s.name, zap.Any("panic", r), zap.ByteString("stack", stack))
			})
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-shutdownCtx.Done():
			logger.Log.Warn("[shutdown] Graceful shutdown timed out, forcing exit")
			return
		}
	}
	logger.Log.Info("Concierge engine shutdown complete")
}

func initPostgresRepo(dsn string, autoMigrate bool) (*storage.PostgresRepo, error) {
	if dsn == "" {
		return nil, errors.New("postgres DSN is required")
	}
	repo, err := storage.NewPostgresRepo(dsn, autoMigrate)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres repository: %w", err)
	}
	logger.Log.Info("Initialized PostgreSQL repository")
	return repo, nil
}

func initCredentials(masterKey string, settings storage.SettingRepo) (*credentials.Store, error) {
	if masterKey == "" {
		return credentials.NewStore(settings, nil), nil
	}
	keys, err := credentials.NewStaticKeyProvider(masterKey)
	if err != nil {
		return nil, err
	}
	return credentials.NewStore(settings, credentials.NewCipher(keys)), nil
}

func initIdentityHook(secret string) (*svix.Webhook, error) {
	if secret == "" {
		logger.Log.Warn("Identity webhook secret not configured, /webhooks/identity is disabled")
		return nil, nil
	}
	return svix.NewWebhook(secret)
}

func googleRedirectURL(cfg *config.Config) string {
	if cfg.Google.RedirectURL != "" {
		return cfg.Google.RedirectURL
	}
	return strings.TrimRight(cfg.Server.PublicBaseURL, "/") + "/oauth/google/callback"
}
