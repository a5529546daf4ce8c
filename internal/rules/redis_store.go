package rules

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/mohamedkhairy/strategy-alerts/internal/models"
	"github.com/mohamedkhairy/strategy-alerts/internal/storage"
	"github.com/mohamedkhairy/strategy-alerts/pkg/logger"
)

const (
	// DefaultRedisStrategyKeyPrefix is the default prefix for strategy keys in Redis
	DefaultRedisStrategyKeyPrefix = "strategies:"
	// DefaultRedisStrategySetKey is the default key for the set of all strategy IDs
	DefaultRedisStrategySetKey = "strategies:ids"
	// DefaultRedisStrategySeqKey is the default key for the strategy ID sequence
	DefaultRedisStrategySeqKey = "strategies:seq"
)

// RedisStrategyStoreConfig holds configuration for RedisStrategyStore
type RedisStrategyStoreConfig struct {
	KeyPrefix string        // Prefix for strategy keys (default: "strategies:")
	SetKey    string        // Key for the set of all strategy IDs (default: "strategies:ids")
	SeqKey    string        // Key of the ID counter (default: "strategies:seq")
	TTL       time.Duration // TTL for strategy keys (0 = no expiry)
}

// DefaultRedisStrategyStoreConfig returns default configuration
func DefaultRedisStrategyStoreConfig() RedisStrategyStoreConfig {
	return RedisStrategyStoreConfig{
		KeyPrefix: DefaultRedisStrategyKeyPrefix,
		SetKey:    DefaultRedisStrategySetKey,
		SeqKey:    DefaultRedisStrategySeqKey,
	}
}

// RedisStrategyStore is a Redis-backed implementation of StrategyStore.
// Strategies are stored as JSON under strategies:{id}; a Redis set holds all IDs
// for listing and INCR on strategies:seq allocates new IDs.
type RedisStrategyStore struct {
	redis  storage.RedisClient
	config RedisStrategyStoreConfig
	now    func() time.Time
}

// NewRedisStrategyStore creates a new Redis-backed strategy store
func NewRedisStrategyStore(redis storage.RedisClient, config RedisStrategyStoreConfig) (*RedisStrategyStore, error) {
	if redis == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultRedisStrategyKeyPrefix
	}
	if config.SetKey == "" {
		config.SetKey = DefaultRedisStrategySetKey
	}
	if config.SeqKey == "" {
		config.SeqKey = DefaultRedisStrategySeqKey
	}
	if config.TTL < 0 {
		config.TTL = 0
	}

	return &RedisStrategyStore{
		redis:  redis,
		config: config,
		now:    time.Now,
	}, nil
}

func (s *RedisStrategyStore) key(id int64) string {
	return s.config.KeyPrefix + strconv.FormatInt(id, 10)
}

// Create stores a new strategy under a freshly allocated ID
func (s *RedisStrategyStore) Create(ctx context.Context, payload *models.StrategyCreate) (*models.Strategy, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: payload cannot be nil", models.ErrInvalidStrategy)
	}

	strategy := payload.ToStrategy(s.now().UTC())
	if err := ValidateStrategy(strategy); err != nil {
		return nil, fmt.Errorf("invalid strategy: %w", err)
	}

	id, err := s.redis.Incr(ctx, s.config.SeqKey)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate strategy ID: %w", err)
	}
	strategy.ID = id

	key := s.key(id)
	if err := s.redis.Set(ctx, key, strategy, s.config.TTL); err != nil {
		return nil, fmt.Errorf("failed to store strategy in Redis: %w", err)
	}

	if err := s.redis.SetAdd(ctx, s.config.SetKey, strconv.FormatInt(id, 10)); err != nil {
		// Try to clean up the strategy key if set operation fails
		_ = s.redis.Delete(ctx, key)
		return nil, fmt.Errorf("failed to add strategy ID to set: %w", err)
	}

	logger.Debug("Added strategy to Redis",
		logger.Int64("strategy_id", id),
		logger.String("strategy_name", strategy.Name),
	)

	return strategy, nil
}

// Get retrieves a strategy by ID from Redis
func (s *RedisStrategyStore) Get(ctx context.Context, id int64) (*models.Strategy, error) {
	key := s.key(id)

	exists, err := s.redis.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check if strategy exists: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %d", models.ErrStrategyNotFound, id)
	}

	var strategy models.Strategy
	if err := s.redis.GetJSON(ctx, key, &strategy); err != nil {
		return nil, fmt.Errorf("failed to get strategy from Redis: %w", err)
	}

	if err := strategy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid strategy data in Redis: %w", err)
	}

	return &strategy, nil
}

// List retrieves all strategies from Redis
func (s *RedisStrategyStore) List(ctx context.Context) ([]*models.Strategy, error) {
	members, err := s.redis.SetMembers(ctx, s.config.SetKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get strategy IDs from Redis: %w", err)
	}

	strategies := make([]*models.Strategy, 0, len(members))
	for _, member := range members {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			logger.Warn("Skipping malformed strategy ID",
				logger.String("member", member),
			)
			continue
		}

		strategy, err := s.Get(ctx, id)
		if err != nil {
			logger.Warn("Failed to get strategy",
				logger.Int64("strategy_id", id),
				logger.ErrorField(err),
			)
			continue // Skip invalid or expired strategies
		}
		strategies = append(strategies, strategy)
	}
	sortByID(strategies)

	return strategies, nil
}

// Update applies a partial update to an existing strategy
func (s *RedisStrategyStore) Update(ctx context.Context, id int64, payload *models.StrategyUpdate) (*models.Strategy, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: payload cannot be nil", models.ErrInvalidStrategy)
	}

	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := payload.Apply(existing, s.now().UTC())
	if err := ValidateStrategy(updated); err != nil {
		return nil, fmt.Errorf("invalid strategy: %w", err)
	}

	if err := s.redis.Set(ctx, s.key(id), updated, s.config.TTL); err != nil {
		return nil, fmt.Errorf("failed to update strategy in Redis: %w", err)
	}

	logger.Debug("Updated strategy in Redis",
		logger.Int64("strategy_id", id),
		logger.String("strategy_name", updated.Name),
	)

	return updated, nil
}

// Delete deletes a strategy from Redis
func (s *RedisStrategyStore) Delete(ctx context.Context, id int64) error {
	key := s.key(id)

	exists, err := s.redis.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to check if strategy exists: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %d", models.ErrStrategyNotFound, id)
	}

	if err := s.redis.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete strategy from Redis: %w", err)
	}

	if err := s.redis.SetRemove(ctx, s.config.SetKey, strconv.FormatInt(id, 10)); err != nil {
		logger.Warn("Failed to remove strategy ID from set",
			logger.Int64("strategy_id", id),
			logger.ErrorField(err),
		)
		// Don't fail the operation if set removal fails
	}

	logger.Debug("Deleted strategy from Redis",
		logger.Int64("strategy_id", id),
	)

	return nil
}
