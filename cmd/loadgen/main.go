package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/go-chi/chi/v5"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"gitlab.com/timkado/api/concierge-engine/internal/config"
	"gitlab.com/timkado/api/concierge-engine/internal/jetstream"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
	"gitlab.com/timkado/api/concierge-engine/internal/observer"
	"gitlab.com/timkado/api/concierge-engine/pkg/logger"
)

// publishTask is one synthetic webhook to publish.
type publishTask struct {
	EventType model.EventType
	TenantID  string
}

type batch struct {
	Tasks  []publishTask
	Client jetstream.ClientInterface
}

const defaultBatchSize = 50

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	natsURL := flag.String("url", cfg.NATS.URL, "NATS server URL")
	eventsStr := flag.String("events", "v1.webhooks.whatsapp,v1.webhooks.instagram", "Comma-separated webhook event types")
	ratePerSec := flag.Int("rate", 100, "Target messages per second (total)")
	duration := flag.Duration("duration", time.Minute, "Load test duration")
	concurrency := flag.Int("concurrency", 10, "Number of concurrent publishers")
	tenantsStr := flag.String("tenants", "1", "Comma-separated tenant IDs")
	batchSize := flag.Int("batch-size", defaultBatchSize, "Messages per publisher batch")
	metricsPort := flag.Int("metrics-port", 9091, "Port for Prometheus metrics endpoint")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Webhook load generator\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Publishes synthetic WhatsApp and Instagram webhooks to the ingestion stream.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *batchSize <= 0 {
		*batchSize = defaultBatchSize
	}
	if *ratePerSec <= 0 {
		fmt.Println("rate must be positive")
		os.Exit(1)
	}

	if err := logger.Initialize(*logLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	events, err := parseEvents(*eventsStr)
	if err != nil {
		logger.Log.Fatal("Invalid event types", zap.Error(err))
	}
	tenants := splitNonEmpty(*tenantsStr)
	if len(tenants) == 0 {
		logger.Log.Fatal("No tenant IDs provided")
	}

	observer.InitMetrics(true)
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	metricsServer := startMetricsServer(*metricsPort)

	logger.Log.Info("Starting webhook load generator",
		zap.String("nats_url", *natsURL),
		zap.Strings("events", eventNames(events)),
		zap.Int("rate_per_sec", *ratePerSec),
		zap.Duration("duration", *duration),
		zap.Int("concurrency", *concurrency),
		zap.Int("batch_size", *batchSize),
		zap.Strings("tenants", tenants),
	)

	client, err := jetstream.NewClient(*natsURL)
	if err != nil {
		logger.Log.Fatal("Failed to connect to NATS", zap.String("url", *natsURL), zap.Error(err))
	}
	defer client.Close()

	var wg sync.WaitGroup
	pool, err := ants.NewPoolWithFunc(*concurrency, func(data interface{}) {
		publishBatch(data.(batch), &wg)
	}, ants.WithPanicHandler(func(p interface{}) {
		logger.Log.Error("Panic recovered in publisher", zap.Any("panic_error", p), zap.Stack("stack"))
	}))
	if err != nil {
		logger.Log.Fatal("Failed to create worker pool", zap.Error(err))
	}
	defer pool.Release()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	limiter := rate.NewLimiter(rate.Limit(*ratePerSec), *batchSize)
	sent := runLoad(ctx, limiter, *batchSize, events, tenants, client, pool, &wg)

	logger.Log.Info("Waiting for publishers to finish")
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Metrics server shutdown error", zap.Error(err))
	}
	logger.Log.Info("Load generator finished", zap.Int("attempted", sent))
}

func eventNames(events []model.EventType) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = string(e)
	}
	return out
}

func parseEvents(raw string) ([]model.EventType, error) {
	var out []model.EventType
	for _, s := range splitNonEmpty(raw) {
		et := model.EventType(s)
		if !slices.Contains(model.KnownEventTypes, et) {
			return nil, fmt.Errorf("unsupported event type %q", s)
		}
		out = append(out, et)
	}
	if len(out) == 0 {
		return nil, errors.New("no event types provided")
	}
	return out, nil
}

func splitNonEmpty(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func startMetricsServer(port int) *http.Server {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return server
}

// runLoad paces message generation with limiter and hands full batches to
// the pool. It returns the number of attempted messages.
func runLoad(ctx context.Context, limiter *rate.Limiter, batchSize int, events []model.EventType, tenants []string, client jetstream.ClientInterface, pool *ants.PoolWithFunc, wg *sync.WaitGroup) int {
	current := make([]publishTask, 0, batchSize)
	submit := func(tasks []publishTask) {
		if len(tasks) == 0 {
			return
		}
		wg.Add(len(tasks))
		if err := pool.Invoke(batch{Tasks: tasks, Client: client}); err != nil {
			logger.Log.Warn("Failed to invoke worker pool", zap.Int("batch_task_count", len(tasks)), zap.Error(err))
			wg.Add(-len(tasks))
			for _, t := range tasks {
				observer.IncLoadgenPublishErrors(string(t.EventType), t.TenantID)
			}
		}
	}

	n := 0
	for {
		if err := limiter.Wait(ctx); err != nil {
			submit(current)
			return n
		}
		t := publishTask{
			EventType: events[n%len(events)],
			TenantID:  tenants[n%len(tenants)],
		}
		n++
		observer.IncLoadgenMessagesAttempted(string(t.EventType), t.TenantID)
		current = append(current, t)
		if len(current) >= batchSize {
			submit(current)
			current = make([]publishTask, 0, batchSize)
		}
	}
}

func payloadFor(et model.EventType) []byte {
	text := gofakeit.Sentence(gofakeit.Number(3, 12))
	if et == model.V1WebhookInstagram {
		return model.NewInstagramTextWebhook(gofakeit.Numerify("################"), text, false)
	}
	return model.NewWhatsAppCloudTextWebhook(gofakeit.Numerify("628##########"), text)
}

func publishBatch(b batch, wg *sync.WaitGroup) {
	for _, t := range b.Tasks {
		func() {
			defer wg.Done()
			subject := model.SubjectFor(t.EventType, t.TenantID)
			if err := b.Client.Publish(subject, payloadFor(t.EventType), nil); err != nil {
				logger.Log.Error("Failed to publish", zap.String("subject", subject), zap.Error(err))
				observer.IncLoadgenPublishErrors(string(t.EventType), t.TenantID)
				return
			}
			observer.IncLoadgenMessagesPublished(string(t.EventType), t.TenantID)
		}()
	}
}
