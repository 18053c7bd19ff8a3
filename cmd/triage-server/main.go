// cmd/triage-server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"helpdesk-triage/internal/api"
	"helpdesk-triage/internal/common/aws"
	"helpdesk-triage/internal/common/config"
	"helpdesk-triage/internal/common/database"
	"helpdesk-triage/internal/common/logger"
	"helpdesk-triage/internal/common/observability"
	"helpdesk-triage/internal/connector/zendesk"
	"helpdesk-triage/internal/engine/classify"
	"helpdesk-triage/internal/engine/invoke"
	"helpdesk-triage/internal/engine/retrieval"
	"helpdesk-triage/internal/engine/schema"
	"helpdesk-triage/internal/engine/sentiment"
	"helpdesk-triage/internal/notify"
	"helpdesk-triage/internal/store"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting triage server...")

	obs := observability.New("triage-server", cfg.Server.JaegerEndpoint)
	defer obs.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	triageStore := store.NewTriageStore(pg.DB, log)
	if err := triageStore.EnsureSchema(ctx); err != nil {
		zapLog.Fatal("schema migration failed", zap.Error(err))
	}

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Retrieval (optional) ---
	var retriever retrieval.Retriever = retrieval.Noop{}
	if cfg.Retrieval.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		zapLog.Info("Elasticsearch connected successfully")

		retriever = retrieval.NewESRetriever(
			esClient.Client,
			cfg.Retrieval.Index,
			cfg.Retrieval.TopK,
			config.GetDuration(cfg.Retrieval.Timeout),
			log,
		)
	}

	// --- Init Classification Engine ---
	completer := invoke.NewOllamaClient(cfg.Models.BaseURL, cfg.Engine.MaxTokens, log)
	rules := classify.RulesFromConfig(cfg.Fallback)
	classifier := classify.New(
		cfg.Models.Candidates,
		completer,
		retriever,
		rules,
		cfg.Engine.MaxConcurrent,
		log,
	)

	// --- Init Decision Event Publisher (optional) ---
	var publisher *store.Publisher
	if cfg.Events.Enabled {
		publisher = store.NewPublisher(cfg.Events.Brokers, cfg.Events.Topic, log)
		defer publisher.Close()
		zapLog.Info("Kafka decision events enabled", zap.String("topic", cfg.Events.Topic))
	}

	// --- Init Escalation Notifier (optional) ---
	var notifier *notify.Notifier
	if cfg.Escalation.Email.Enabled || cfg.Escalation.SMS.Enabled {
		var emailSender notify.EmailSender
		var smsSender notify.SMSSender

		if cfg.Escalation.Email.Enabled {
			sesClient, err := aws.NewSESClient(ctx, cfg.Escalation.AWS.Region)
			if err != nil {
				zapLog.Fatal("ses client failed", zap.Error(err))
			}
			emailSender = sesClient
		}
		if cfg.Escalation.SMS.Enabled {
			snsClient, err := aws.NewSNSClient(ctx, cfg.Escalation.AWS.Region)
			if err != nil {
				zapLog.Fatal("sns client failed", zap.Error(err))
			}
			smsSender = snsClient
		}

		notifier = notify.NewNotifier(cfg.Escalation, emailSender, smsSender, log)
		zapLog.Info("Escalation notifier enabled")
	}

	// --- Start Zendesk Poller ---
	if cfg.Helpdesk.Zendesk.Enabled {
		pollerOpts := zendesk.PollerOptions{
			Client:      zendesk.NewClient(cfg.Helpdesk.Zendesk),
			Classifier:  &observedClassifier{inner: classifier, obs: obs},
			Detector:    sentiment.NewDetector(),
			Seen:        redis,
			Records:     triageStore,
			Interval:    time.Duration(cfg.Helpdesk.Zendesk.PollInterval) * time.Second,
			PublicReply: cfg.Helpdesk.Zendesk.PublicReply,
			Logger:      log,
		}
		if publisher != nil {
			pollerOpts.Events = publisher
		}
		if notifier != nil {
			pollerOpts.Escalator = notifier
		}

		poller := zendesk.NewPoller(pollerOpts)
		go poller.Run(ctx)
		zapLog.Info("Zendesk poller started",
			zap.Int("pollIntervalSec", cfg.Helpdesk.Zendesk.PollInterval))
	}

	// --- Dashboard & Metrics Server ---
	mux := http.NewServeMux()
	api.NewServer(triageStore, log).Register(mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/pprof/", http.DefaultServeMux)

	httpServer := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: mux,
	}
	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}

	zapLog.Info("Triage server stopped gracefully")
}

// observedClassifier wraps the engine with a per-classification span and
// OpenTelemetry decision metrics.
type observedClassifier struct {
	inner *classify.Orchestrator
	obs   *observability.Observability
}

func (c *observedClassifier) Classify(ctx context.Context, ticket schema.TicketInput) schema.Decision {
	ctx, end := c.obs.StartSpan(ctx, "classify")
	defer end()

	start := time.Now()
	decision := c.inner.Classify(ctx, ticket)

	c.obs.RecordDecision(ctx, decision.ConfidenceSource)
	c.obs.RecordDecisionDuration(ctx, time.Since(start), decision.ConfidenceSource)
	return decision
}
