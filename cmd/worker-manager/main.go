// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"lending-workers/internal/common/auth"
	"lending-workers/internal/common/aws"
	"lending-workers/internal/common/camunda"
	"lending-workers/internal/common/config"
	"lending-workers/internal/common/database"
	"lending-workers/internal/common/logger"
	"lending-workers/internal/common/observability"
	"lending-workers/internal/lending/ledger"
	"lending-workers/internal/lending/limits"
	"lending-workers/internal/lending/notify"
	"lending-workers/internal/lending/origination"
	"lending-workers/internal/lending/providers"
	"lending-workers/internal/lending/reporting"
	"lending-workers/internal/lending/scoring"
	applicationreview "lending-workers/internal/workers/loans/application-review"
	manualcollection "lending-workers/internal/workers/payments/manual-collection"
	providerwebhook "lending-workers/internal/workers/payments/provider-webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("starting worker manager",
		zap.String("app", cfg.App.Name),
		zap.String("environment", cfg.App.Environment))

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	zeebeClient := connectZeebe(cfg, zapLog)
	defer zeebeClient.Close()

	pg := connectPostgres(cfg, zapLog)
	defer pg.Close()

	if err := database.Migrate(pg.DB, cfg.Database.Postgres.MigrationsPath); err != nil {
		zapLog.Fatal("failed to run migrations", zap.Error(err))
	}

	rdb := connectRedis(cfg, zapLog)
	defer rdb.Close()

	es := connectElasticsearch(cfg, zapLog)

	authorizer := buildAuthorizer(cfg, zapLog)
	notifier := buildNotifier(cfg, pg, zapLog, log)

	originationService := origination.NewService(pg.DB, cfg.Lending.LoanNumberPrefix, log)
	paymentLedger := ledger.NewService(pg.DB, log)
	limitGate := limits.NewGate(pg.DB, rdb.Client, log)
	providerConfigs := providers.NewStore(pg.DB, log)
	scores := scoring.NewClient(cfg.Scoring.BaseURL, cfg.Scoring.APIKey, config.GetDuration(cfg.Scoring.Timeout), log)
	indexer := reporting.NewIndexer(es.Client, cfg.Database.Elasticsearch.PaymentIndex, log)

	var workers []*camunda.Worker

	if wcfg := config.GetWorkerConfig(cfg, applicationreview.TaskType); wcfg.Enabled {
		handler := applicationreview.NewHandler(
			&applicationreview.Config{Timeout: config.GetDuration(wcfg.Timeout)},
			pg.DB, originationService, limitGate, authorizer, scores, notifier, log)
		workers = append(workers, camunda.NewWorker(zeebeClient, applicationreview.TaskType, wcfg, handler, zapLog))
	}

	if wcfg := config.GetWorkerConfig(cfg, providerwebhook.TaskType); wcfg.Enabled {
		handler := providerwebhook.NewHandler(
			&providerwebhook.Config{Timeout: config.GetDuration(wcfg.Timeout)},
			providerConfigs, paymentLedger, indexer, notifier, log)
		workers = append(workers, camunda.NewWorker(zeebeClient, providerwebhook.TaskType, wcfg, handler, zapLog))
	}

	if wcfg := config.GetWorkerConfig(cfg, manualcollection.TaskType); wcfg.Enabled {
		handler := manualcollection.NewHandler(
			&manualcollection.Config{Timeout: config.GetDuration(wcfg.Timeout)},
			paymentLedger, authorizer, notifier, log)
		workers = append(workers, camunda.NewWorker(zeebeClient, manualcollection.TaskType, wcfg, handler, zapLog))
	}

	if len(workers) == 0 {
		zapLog.Warn("no workers enabled, check the workers section of the configuration")
	}

	go startHTTPServer(pg, zapLog)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Stop(shutdownCtx)
	}

	zapLog.Info("worker manager stopped")
}

// retryWithBackoff retries operation with exponential backoff. Infrastructure
// often comes up after the workers in container environments, so startup
// tolerates a window of connection failures.
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, zapLog *zap.Logger, name string) error {
	delay := initialDelay
	var err error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err = operation(); err == nil {
			return nil
		}

		if attempt < maxRetries {
			zapLog.Warn("connection attempt failed, retrying",
				zap.String("target", name),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err))
			time.Sleep(delay)
			delay *= 2
			if delay > 30*time.Second {
				delay = 30 * time.Second
			}
		}
	}

	return fmt.Errorf("%s unavailable after %d attempts: %w", name, maxRetries, err)
}

func connectZeebe(cfg *config.Config, zapLog *zap.Logger) zbc.Client {
	var client zbc.Client

	err := retryWithBackoff(func() error {
		var err error
		client, err = zbc.NewClient(&zbc.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
		})
		return err
	}, 10, 2*time.Second, zapLog, "zeebe gateway")
	if err != nil {
		zapLog.Fatal("failed to connect to zeebe", zap.Error(err))
	}

	zapLog.Info("connected to zeebe", zap.String("gateway", cfg.Camunda.BrokerAddress))
	return client
}

func connectPostgres(cfg *config.Config, zapLog *zap.Logger) *database.PostgresClient {
	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		zapLog.Fatal("failed to open postgres", zap.Error(err))
	}

	err = retryWithBackoff(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "postgres")
	if err != nil {
		zapLog.Fatal("failed to connect to postgres", zap.Error(err))
	}

	zapLog.Info("connected to postgres",
		zap.String("host", cfg.Database.Postgres.Host),
		zap.String("database", cfg.Database.Postgres.Database))
	return pg
}

func connectRedis(cfg *config.Config, zapLog *zap.Logger) *database.RedisClient {
	rdb, err := database.NewRedis(cfg.Database.Redis)
	if err != nil {
		zapLog.Fatal("failed to open redis", zap.Error(err))
	}

	err = retryWithBackoff(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "redis")
	if err != nil {
		zapLog.Fatal("failed to connect to redis", zap.Error(err))
	}

	zapLog.Info("connected to redis", zap.String("address", cfg.Database.Redis.Address))
	return rdb
}

func connectElasticsearch(cfg *config.Config, zapLog *zap.Logger) *database.ElasticsearchClient {
	es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
	if err != nil {
		zapLog.Fatal("failed to open elasticsearch", zap.Error(err))
	}

	err = retryWithBackoff(func() error {
		return es.Ping()
	}, 15, 2*time.Second, zapLog, "elasticsearch")
	if err != nil {
		zapLog.Fatal("failed to connect to elasticsearch", zap.Error(err))
	}

	zapLog.Info("connected to elasticsearch",
		zap.Strings("addresses", cfg.Database.Elasticsearch.Addresses),
		zap.String("paymentIndex", cfg.Database.Elasticsearch.PaymentIndex))
	return es
}

// buildAuthorizer picks Keycloak when a realm is configured. Development
// environments without one fall back to granting everything.
func buildAuthorizer(cfg *config.Config, zapLog *zap.Logger) auth.Authorizer {
	kc := cfg.Auth.Keycloak
	if kc.URL == "" {
		zapLog.Warn("keycloak not configured, all actors are authorized")
		return auth.StaticAuthorizer{}
	}

	client := auth.NewKeycloakClient(kc.URL, kc.Realm, kc.ClientID, kc.ClientSecret)
	zapLog.Info("keycloak authorizer enabled",
		zap.String("url", kc.URL),
		zap.String("realm", kc.Realm))
	return auth.NewKeycloakAuthorizer(client)
}

// buildNotifier wires SES and SNS when enabled. Disabled channels keep a nil
// client; the notifier never touches a channel that is switched off.
func buildNotifier(cfg *config.Config, pg *database.PostgresClient, zapLog *zap.Logger, log logger.Logger) *notify.Notifier {
	notifyCfg := notify.Config{
		EmailEnabled: cfg.AWS.SES.Enabled,
		SMSEnabled:   cfg.AWS.SNS.Enabled,
		SenderEmail:  cfg.AWS.SES.SenderEmail,
		SenderID:     cfg.AWS.SNS.SenderID,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var sesClient notify.SESAPI
	if cfg.AWS.SES.Enabled {
		client, err := aws.NewSESClient(ctx, cfg.AWS.Region)
		if err != nil {
			zapLog.Warn("ses client unavailable, email notifications disabled", zap.Error(err))
			notifyCfg.EmailEnabled = false
		} else {
			sesClient = client
		}
	}

	var snsClient notify.SNSAPI
	if cfg.AWS.SNS.Enabled {
		client, err := aws.NewSNSClient(ctx, cfg.AWS.Region)
		if err != nil {
			zapLog.Warn("sns client unavailable, sms notifications disabled", zap.Error(err))
			notifyCfg.SMSEnabled = false
		} else {
			snsClient = client
		}
	}

	return notify.NewNotifier(pg.DB, sesClient, snsClient, notifyCfg, log)
}

func startHTTPServer(pg *database.PostgresClient, zapLog *zap.Logger) {
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})

	http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := pg.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"status": "ready",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})

	http.Handle("/metrics", promhttp.Handler())

	zapLog.Info("http server listening", zap.String("address", ":8080"))
	if err := http.ListenAndServe(":8080", nil); err != nil {
		zapLog.Error("http server stopped", zap.Error(err))
	}
}
