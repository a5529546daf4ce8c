package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohamedkhairy/strategy-alerts/internal/config"
	"github.com/mohamedkhairy/strategy-alerts/pkg/logger"
)

var (
	// Metrics for Postgres operations
	dbQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_query_total",
			Help: "Total number of database operations",
		},
		[]string{"operation", "status"}, // status: "success" or "error"
	)

	dbQueryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_latency_seconds",
			Help:    "Database operation latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		},
		[]string{"operation"},
	)
)

// Schema holds the DDL for the tables this service owns
const Schema = `
CREATE TABLE IF NOT EXISTS strategies (
	id          BIGSERIAL PRIMARY KEY,
	name        TEXT NOT NULL,
	logic       TEXT NOT NULL,
	conditions  JSONB NOT NULL,
	symbols     JSONB NOT NULL,
	timeframe   TEXT NOT NULL,
	is_active   BOOLEAN NOT NULL DEFAULT TRUE,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS alerts (
	id                  BIGSERIAL PRIMARY KEY,
	strategy_id         BIGINT NOT NULL,
	symbol              TEXT NOT NULL,
	timeframe           TEXT NOT NULL,
	price               DOUBLE PRECISION NOT NULL,
	indicator_snapshot  JSONB NOT NULL,
	triggered_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	telegram_message_id TEXT
);

CREATE INDEX IF NOT EXISTS alerts_strategy_idx ON alerts (strategy_id, triggered_at DESC);
CREATE INDEX IF NOT EXISTS alerts_symbol_idx ON alerts (symbol, triggered_at DESC);
`

// OpenPostgres opens a pooled Postgres connection and verifies it with a ping
func OpenPostgres(dbConfig config.DatabaseConfig) (*sql.DB, error) {
	// Build connection string
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.User,
		dbConfig.Password,
		dbConfig.Database,
		dbConfig.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(dbConfig.MaxConnections)
	db.SetMaxIdleConns(dbConfig.MaxIdleConns)
	db.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to Postgres",
		logger.String("host", dbConfig.Host),
		logger.Int("port", dbConfig.Port),
		logger.String("database", dbConfig.Database),
	)

	return db, nil
}

// Migrate creates the service tables if they do not exist
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// ObserveQuery records latency and outcome of a database operation
func ObserveQuery(operation string, start time.Time, err error) {
	dbQueryLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil {
		status = "error"
	}
	dbQueryTotal.WithLabelValues(operation, status).Inc()
}
