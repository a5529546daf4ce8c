package storage

import (
	"context"
	"time"

	"github.com/mohamedkhairy/strategy-alerts/internal/models"
)

// AlertStorage defines the interface for alert storage operations
type AlertStorage interface {
	// Create records an alert, assigning its ID and trigger time
	Create(ctx context.Context, payload *models.AlertCreate) (*models.Alert, error)

	// List retrieves alerts newest first with filtering options
	List(ctx context.Context, filter AlertFilter) ([]*models.Alert, error)

	// Get retrieves a single alert by ID
	Get(ctx context.Context, id int64) (*models.Alert, error)

	// Close releases the storage
	Close() error
}

// AlertFilter defines filtering options for alert queries
type AlertFilter struct {
	StrategyID int64 // 0 matches all strategies
	Symbol     string
	Limit      int // 0 means no limit
}

// Matches reports whether the alert passes the filter
func (f AlertFilter) Matches(alert *models.Alert) bool {
	if f.StrategyID != 0 && alert.StrategyID != f.StrategyID {
		return false
	}
	if f.Symbol != "" && alert.Symbol != f.Symbol {
		return false
	}
	return true
}

// RedisClient defines the interface for Redis operations
type RedisClient interface {
	// Stream operations
	PublishToStream(ctx context.Context, stream string, key string, value interface{}) error
	ConsumeFromStream(ctx context.Context, stream string, group string, consumer string) (<-chan StreamMessage, error)
	AcknowledgeMessage(ctx context.Context, stream string, group string, id string) error

	// Key-value operations
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// SetNX stores value only when key is absent and reports whether it did
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	GetJSON(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Incr(ctx context.Context, key string) (int64, error)

	// Set operations
	SetAdd(ctx context.Context, key string, members ...string) error
	SetMembers(ctx context.Context, key string) ([]string, error)
	SetRemove(ctx context.Context, key string, members ...string) error

	// Pub/Sub operations
	Publish(ctx context.Context, channel string, message interface{}) error

	// Ping checks connectivity
	Ping(ctx context.Context) error

	// Close closes the Redis connection
	Close() error
}

// StreamMessage represents a message from a Redis stream
type StreamMessage struct {
	ID     string
	Stream string
	Values map[string]interface{}
}
