package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mohamedkhairy/strategy-alerts/internal/alert"
	"github.com/mohamedkhairy/strategy-alerts/internal/api"
	"github.com/mohamedkhairy/strategy-alerts/internal/auth"
	"github.com/mohamedkhairy/strategy-alerts/internal/config"
	"github.com/mohamedkhairy/strategy-alerts/internal/eventbus"
	"github.com/mohamedkhairy/strategy-alerts/internal/notification"
	"github.com/mohamedkhairy/strategy-alerts/internal/pubsub"
	"github.com/mohamedkhairy/strategy-alerts/internal/rules"
	"github.com/mohamedkhairy/strategy-alerts/internal/storage"
	"github.com/mohamedkhairy/strategy-alerts/internal/stream"
	"github.com/mohamedkhairy/strategy-alerts/internal/wsgateway"
	"github.com/mohamedkhairy/strategy-alerts/pkg/indicator"
	"github.com/mohamedkhairy/strategy-alerts/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	err = logger.InitWithFile(cfg.LogLevel, cfg.Environment, logger.FileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting strategy alerts service",
		logger.String("environment", cfg.Environment),
		logger.Int("port", cfg.API.Port),
		logger.String("strategy_store", cfg.Store.StrategyStoreType),
		logger.String("alert_store", cfg.Store.AlertStoreType),
	)

	health := api.NewHealthHandler()

	// Postgres, when any store uses it
	var db *sql.DB
	if cfg.NeedsDatabase() {
		db, err = storage.OpenPostgres(cfg.Database)
		if err != nil {
			logger.Fatal("Failed to connect to Postgres", logger.ErrorField(err))
		}
		defer db.Close()

		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = storage.Migrate(migrateCtx, db)
		cancel()
		if err != nil {
			logger.Fatal("Failed to migrate database", logger.ErrorField(err))
		}
		health.AddCheck("postgres", db.PingContext)
	}

	// Redis, when the strategy store, forwarding or candle stream uses it
	var redisClient storage.RedisClient
	if cfg.NeedsRedis() {
		redisClient, err = pubsub.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to initialize Redis client", logger.ErrorField(err))
		}
		defer redisClient.Close()
		health.AddCheck("redis", redisClient.Ping)
	}

	// Strategy registry
	var strategyStore rules.StrategyStore
	switch cfg.Store.StrategyStoreType {
	case "postgres":
		strategyStore = rules.NewDatabaseStrategyStore(db)
	case "redis":
		strategyStore, err = rules.NewRedisStrategyStore(redisClient, rules.DefaultRedisStrategyStoreConfig())
		if err != nil {
			logger.Fatal("Failed to initialize Redis strategy store", logger.ErrorField(err))
		}
	default:
		strategyStore = rules.NewInMemoryStrategyStore()
	}

	// Alert sink
	var alertStorage storage.AlertStorage
	switch cfg.Store.AlertStoreType {
	case "postgres":
		alertStorage = storage.NewPostgresAlertStorage(db)
	default:
		alertStorage = storage.NewInMemoryAlertStorage(cfg.Store.AlertLogSize)
	}

	// Notifications
	notifiers := []notification.Notifier{
		notification.NewLogNotifier(),
		notification.NewTelegramNotifier(
			cfg.Notification.TelegramToken,
			cfg.Notification.TelegramChatIDs,
			cfg.Notification.TelegramBaseURL,
			cfg.Notification.Timeout,
		),
	}
	if cfg.Notification.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.Notification.WebhookURL, cfg.Notification.Timeout))
	}
	dispatcherConfig := notification.DefaultDispatcherConfig()
	dispatcherConfig.QueueSize = cfg.Notification.QueueSize
	dispatcherConfig.Timeout = cfg.Notification.Timeout
	dispatcherConfig.MaxRetries = cfg.Notification.MaxRetries
	dispatcherConfig.RetryDelay = cfg.Notification.RetryDelay
	dispatcher := notification.NewDispatcher(dispatcherConfig, notifiers...)
	dispatcher.Start()

	// Stream core
	bus := eventbus.New(cfg.EventBus.HandlerTimeout)
	indicators := indicator.NewEngine(indicator.Config{
		WindowSize:      cfg.Stream.WindowSize,
		MACDHistorySize: cfg.Stream.MACDHistorySize,
		Warmup:          cfg.Stream.WarmupCloses,
	})
	orchestrator := stream.NewOrchestrator(indicators, rules.NewConfluenceEngine(), bus, alertStorage, dispatcher)

	syncCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	count, err := orchestrator.SyncFromStore(syncCtx, strategyStore)
	cancel()
	if err != nil {
		logger.Fatal("Failed to load strategies", logger.ErrorField(err))
	}
	logger.Info("Strategies registered", logger.Int("count", count))

	ingestor := stream.NewIngestor(stream.IngestorConfig{
		Workers:   cfg.Stream.Workers,
		QueueSize: cfg.Stream.QueueSize,
	}, orchestrator)
	if err := ingestor.Start(); err != nil {
		logger.Fatal("Failed to start candle ingestor", logger.ErrorField(err))
	}

	// Optional Redis alert forwarding
	var forwarder *alert.Forwarder
	if cfg.Forward.Enabled {
		forwarder = alert.NewForwarder(redisClient, cfg.Forward.Channel, cfg.Forward.StreamName, cfg.Forward.Timeout).
			WithDeduplicator(alert.NewDeduplicator(redisClient, alert.DefaultDedupeTTL))
		forwarder.Attach(bus)
		logger.Info("Forwarding alerts to Redis",
			logger.String("channel", cfg.Forward.Channel),
			logger.String("stream", cfg.Forward.StreamName),
		)
	}

	// Optional Redis stream candle source
	var consumer *pubsub.StreamConsumer
	if cfg.CandleStream.Enabled {
		consumerConfig := pubsub.DefaultStreamConsumerConfig(
			cfg.CandleStream.StreamName,
			cfg.CandleStream.ConsumerGroup,
			cfg.CandleStream.ConsumerName,
		)
		consumerConfig.Partitions = cfg.CandleStream.Partitions
		consumer = pubsub.NewStreamConsumer(redisClient, ingestor, consumerConfig)
		if err := consumer.Start(); err != nil {
			logger.Fatal("Failed to start candle stream consumer", logger.ErrorField(err))
		}
	}

	// WebSocket gateway
	hub := wsgateway.NewHub(cfg.WSGateway, bus, auth.NewTokenValidator(cfg.WSGateway.JWTSecret))
	if err := hub.Start(); err != nil {
		logger.Fatal("Failed to start WebSocket hub", logger.ErrorField(err))
	}

	health.AddStats("ingestor", func() interface{} {
		return map[string]interface{}{
			"running": ingestor.IsRunning(),
			"pending": ingestor.Pending(),
		}
	})
	health.AddStats("indicators", func() interface{} {
		return map[string]int{"series": indicators.SeriesCount()}
	})
	health.AddStats("notifications", func() interface{} {
		return map[string]int{"queued": dispatcher.QueueLen()}
	})
	health.AddStats("websocket", func() interface{} { return hub.GetStats() })
	if consumer != nil {
		health.AddStats("candle_stream", func() interface{} { return consumer.GetStats() })
	}

	// HTTP API
	router := api.NewRouter(api.Handlers{
		Strategies:  api.NewStrategyHandler(strategyStore, orchestrator),
		Alerts:      api.NewAlertHandler(alertStorage),
		Simulations: api.NewSimulationHandler(ingestor),
		Health:      health,
		Events:      hub,
	})

	middlewares := api.ChainMiddleware(
		api.CORSMiddleware(cfg.API.CORSOrigins),
		api.LoggingMiddleware(),
		api.ErrorHandlingMiddleware(),
		api.AuthMiddleware(auth.NewTokenValidator(cfg.API.JWTSecret)),
		api.RateLimitMiddleware(cfg.API.RateLimitRPS),
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           middlewares(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server",
			logger.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start HTTP server",
				logger.ErrorField(err),
			)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down strategy alerts service")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Error shutting down HTTP server",
			logger.ErrorField(err),
		)
	}

	// Stop producers before consumers
	if consumer != nil {
		consumer.Stop()
	}
	ingestor.Stop()
	hub.Stop()
	if forwarder != nil {
		forwarder.Detach()
	}
	dispatcher.Stop()

	logger.Info("Strategy alerts service stopped",
		logger.Int("series", indicators.SeriesCount()),
	)
}
