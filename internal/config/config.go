package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Common
	Environment string
	LogLevel    string
	Log         LogConfig

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Services
	API          APIConfig
	WSGateway    WSGatewayConfig
	Stream       StreamConfig
	EventBus     EventBusConfig
	Notification NotificationConfig
	Store        StoreConfig
	Forward      ForwardConfig
	CandleStream CandleStreamConfig
}

// LogConfig holds optional rotating file output settings
type LogConfig struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DatabaseConfig holds Postgres configuration
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int

	StreamMaxLen  int64         // approximate XADD trim length; 0 keeps everything
	ReadBatchSize int64         // entries per XREADGROUP call
	ReadBlock     time.Duration // XREADGROUP block timeout
	ClaimMinIdle  time.Duration // pending entries idle this long are claimed again
}

// APIConfig holds REST API configuration
type APIConfig struct {
	Port         int
	RateLimitRPS int
	CORSOrigins  []string
	JWTSecret    string // empty disables authentication
}

// WSGatewayConfig holds WebSocket gateway configuration
type WSGatewayConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	MaxConnections int
	JWTSecret      string // empty disables authentication
}

// StreamConfig holds indicator and ingest pipeline configuration
type StreamConfig struct {
	WindowSize      int
	MACDHistorySize int
	WarmupCloses    int
	Workers         int
	QueueSize       int
}

// EventBusConfig holds event bus configuration
type EventBusConfig struct {
	HandlerTimeout time.Duration
}

// NotificationConfig holds notifier configuration
type NotificationConfig struct {
	TelegramToken   string
	TelegramChatIDs []int64
	TelegramBaseURL string
	WebhookURL      string
	Timeout         time.Duration
	QueueSize       int
	MaxRetries      int
	RetryDelay      time.Duration
}

// StoreConfig selects the strategy and alert store backends
type StoreConfig struct {
	StrategyStoreType string // "memory", "redis" or "postgres"
	AlertStoreType    string // "memory" or "postgres"
	AlertLogSize      int
}

// ForwardConfig holds Redis alert forwarding configuration
type ForwardConfig struct {
	Enabled    bool
	Channel    string
	StreamName string
	Timeout    time.Duration
}

// CandleStreamConfig holds Redis stream candle ingestion configuration
type CandleStreamConfig struct {
	Enabled       bool
	StreamName    string
	ConsumerGroup string
	ConsumerName  string
	Partitions    int
}

// Load loads configuration from environment variables
// It automatically loads .env file if it exists in the current directory
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Log: LogConfig{
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 28),
			Compress:   getEnvAsBool("LOG_COMPRESS", false),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", "strategy_alerts"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxConnections:  getEnvAsInt("DB_MAX_CONNECTIONS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),

			StreamMaxLen:  int64(getEnvAsInt("REDIS_STREAM_MAXLEN", 10000)),
			ReadBatchSize: int64(getEnvAsInt("REDIS_READ_BATCH_SIZE", 10)),
			ReadBlock:     getEnvAsDuration("REDIS_READ_BLOCK", time.Second),
			ClaimMinIdle:  getEnvAsDuration("REDIS_CLAIM_MIN_IDLE", 30*time.Second),
		},
		API: APIConfig{
			Port:         getEnvAsInt("API_PORT", 8000),
			RateLimitRPS: getEnvAsInt("API_RATE_LIMIT_RPS", 100),
			CORSOrigins:  getEnvAsStringSlice("API_CORS_ORIGINS", []string{"*"}),
			JWTSecret:    getEnv("API_JWT_SECRET", ""),
		},
		WSGateway: WSGatewayConfig{
			ReadTimeout:    getEnvAsDuration("WS_READ_TIMEOUT", 60*time.Second),
			WriteTimeout:   getEnvAsDuration("WS_WRITE_TIMEOUT", 10*time.Second),
			PingInterval:   getEnvAsDuration("WS_PING_INTERVAL", 30*time.Second),
			MaxConnections: getEnvAsInt("WS_MAX_CONNECTIONS", 1000),
			JWTSecret:      getEnv("WS_JWT_SECRET", ""),
		},
		Stream: StreamConfig{
			WindowSize:      getEnvAsInt("STREAM_WINDOW_SIZE", 500),
			MACDHistorySize: getEnvAsInt("STREAM_MACD_HISTORY_SIZE", 60),
			WarmupCloses:    getEnvAsInt("STREAM_WARMUP_CLOSES", 30),
			Workers:         getEnvAsInt("STREAM_WORKERS", 4),
			QueueSize:       getEnvAsInt("STREAM_QUEUE_SIZE", 1024),
		},
		EventBus: EventBusConfig{
			HandlerTimeout: getEnvAsDuration("EVENTBUS_HANDLER_TIMEOUT", 5*time.Second),
		},
		Notification: NotificationConfig{
			TelegramToken:   getEnv("TELEGRAM_BOT_TOKEN", ""),
			TelegramChatIDs: getEnvAsInt64Slice("TELEGRAM_CHAT_IDS", []int64{}),
			TelegramBaseURL: getEnv("TELEGRAM_BASE_URL", "https://api.telegram.org"),
			WebhookURL:      getEnv("NOTIFY_WEBHOOK_URL", ""),
			Timeout:         getEnvAsDuration("NOTIFY_TIMEOUT", 5*time.Second),
			QueueSize:       getEnvAsInt("NOTIFY_QUEUE_SIZE", 256),
			MaxRetries:      getEnvAsInt("NOTIFY_MAX_RETRIES", 2),
			RetryDelay:      getEnvAsDuration("NOTIFY_RETRY_DELAY", 500*time.Millisecond),
		},
		Store: StoreConfig{
			StrategyStoreType: getEnv("STRATEGY_STORE_TYPE", "memory"),
			AlertStoreType:    getEnv("ALERT_STORE_TYPE", "memory"),
			AlertLogSize:      getEnvAsInt("ALERT_LOG_SIZE", 500),
		},
		Forward: ForwardConfig{
			Enabled:    getEnvAsBool("ALERT_FORWARD_ENABLED", false),
			Channel:    getEnv("ALERT_FORWARD_CHANNEL", "alerts"),
			StreamName: getEnv("ALERT_FORWARD_STREAM", "alerts.triggered"),
			Timeout:    getEnvAsDuration("ALERT_FORWARD_TIMEOUT", 2*time.Second),
		},
		CandleStream: CandleStreamConfig{
			Enabled:       getEnvAsBool("CANDLE_STREAM_ENABLED", false),
			StreamName:    getEnv("CANDLE_STREAM_NAME", "candles"),
			ConsumerGroup: getEnv("CANDLE_STREAM_GROUP", "strategy-alerts"),
			ConsumerName:  getEnv("CANDLE_STREAM_CONSUMER", "strategy-alerts-1"),
			Partitions:    getEnvAsInt("CANDLE_STREAM_PARTITIONS", 0),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// NeedsRedis reports whether any configured component talks to Redis
func (c *Config) NeedsRedis() bool {
	return c.Store.StrategyStoreType == "redis" || c.Forward.Enabled || c.CandleStream.Enabled
}

// NeedsDatabase reports whether any configured component talks to Postgres
func (c *Config) NeedsDatabase() bool {
	return c.Store.StrategyStoreType == "postgres" || c.Store.AlertStoreType == "postgres"
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Store.StrategyStoreType {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("STRATEGY_STORE_TYPE must be memory, redis or postgres, got %q", c.Store.StrategyStoreType)
	}
	switch c.Store.AlertStoreType {
	case "memory", "postgres":
	default:
		return fmt.Errorf("ALERT_STORE_TYPE must be memory or postgres, got %q", c.Store.AlertStoreType)
	}
	if c.NeedsDatabase() && c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.NeedsRedis() && c.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if c.Stream.WindowSize <= 0 {
		return fmt.Errorf("STREAM_WINDOW_SIZE must be positive")
	}
	if c.Stream.MACDHistorySize <= 0 {
		return fmt.Errorf("STREAM_MACD_HISTORY_SIZE must be positive")
	}
	if c.Stream.Workers <= 0 {
		return fmt.Errorf("STREAM_WORKERS must be positive")
	}
	if c.Notification.QueueSize <= 0 {
		return fmt.Errorf("NOTIFY_QUEUE_SIZE must be positive")
	}
	if c.Store.AlertLogSize <= 0 {
		return fmt.Errorf("ALERT_LOG_SIZE must be positive")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Split by comma and trim spaces
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}

// getEnvAsInt64Slice parses a comma separated list, skipping entries that are not integers
func getEnvAsInt64Slice(key string, defaultValue []int64) []int64 {
	parts := getEnvAsStringSlice(key, nil)
	if len(parts) == 0 {
		return defaultValue
	}
	result := make([]int64, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		result = append(result, n)
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
