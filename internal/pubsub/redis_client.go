package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohamedkhairy/strategy-alerts/internal/config"
	"github.com/mohamedkhairy/strategy-alerts/internal/storage"
	"github.com/mohamedkhairy/strategy-alerts/pkg/logger"
)

const (
	groupCreateAttempts = 3
	consumeBuffer       = 100
)

// RedisClientImpl implements storage.RedisClient on top of go-redis
type RedisClientImpl struct {
	client    *redis.Client
	maxLen    int64
	batchSize int64
	block     time.Duration
	claimIdle time.Duration
}

// NewRedisClient connects to Redis and verifies the connection with a ping
func NewRedisClient(cfg config.RedisConfig) (storage.RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	logger.Info("Connected to Redis",
		logger.String("host", cfg.Host),
		logger.Int("port", cfg.Port),
		logger.Int("db", cfg.DB),
	)

	return newRedisClient(rdb, cfg), nil
}

func newRedisClient(rdb *redis.Client, cfg config.RedisConfig) *RedisClientImpl {
	c := &RedisClientImpl{
		client:    rdb,
		maxLen:    cfg.StreamMaxLen,
		batchSize: cfg.ReadBatchSize,
		block:     cfg.ReadBlock,
		claimIdle: cfg.ClaimMinIdle,
	}
	if c.batchSize <= 0 {
		c.batchSize = 10
	}
	if c.block <= 0 {
		c.block = time.Second
	}
	if c.claimIdle <= 0 {
		c.claimIdle = 30 * time.Second
	}
	return c
}

// PublishToStream appends value as JSON under field key, trimming the stream
// approximately to the configured length
func (r *RedisClientImpl) PublishToStream(ctx context.Context, stream string, key string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{key: string(payload)},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}

	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", stream, err)
	}
	return nil
}

// ConsumeFromStream reads new entries for the consumer group until ctx is
// cancelled. Entries left unacknowledged for longer than the claim idle time
// (by this or any other consumer) are claimed and delivered again, once at
// start and then every claim idle period. The returned channel is closed when
// reading stops.
func (r *RedisClientImpl) ConsumeFromStream(ctx context.Context, stream string, group string, consumer string) (<-chan storage.StreamMessage, error) {
	if err := r.ensureGroup(ctx, stream, group); err != nil {
		// the read loop recreates the group on NOGROUP
		logger.Error("Consumer group unavailable, continuing",
			logger.ErrorField(err),
			logger.String("stream", stream),
			logger.String("group", group),
		)
	}

	out := make(chan storage.StreamMessage, consumeBuffer)
	go func() {
		defer close(out)
		var lastClaim time.Time
		for ctx.Err() == nil {
			if claimDue(lastClaim, time.Now(), r.claimIdle) {
				lastClaim = time.Now()
				stale, err := r.claimStale(ctx, stream, group, consumer)
				if err != nil && ctx.Err() == nil {
					logger.Warn("Failed to claim pending entries",
						logger.ErrorField(err),
						logger.String("stream", stream),
					)
				}
				if !forward(ctx, out, stale) {
					return
				}
			}

			batch, err := r.readBatch(ctx, stream, group, consumer)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				r.handleReadError(ctx, err, stream, group)
				continue
			}
			if !forward(ctx, out, batch) {
				return
			}
		}
	}()

	return out, nil
}

// ensureGroup creates the group (and the stream) when missing
func (r *RedisClientImpl) ensureGroup(ctx context.Context, stream, group string) error {
	var lastErr error
	for attempt := 1; attempt <= groupCreateAttempts; attempt++ {
		err := r.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
		if err == nil || isBusyGroup(err) {
			logger.Debug("Consumer group ready",
				logger.String("stream", stream),
				logger.String("group", group),
			)
			return nil
		}
		lastErr = err
		logger.Warn("Failed to create consumer group, retrying",
			logger.ErrorField(err),
			logger.String("stream", stream),
			logger.Int("attempt", attempt),
		)
		if !sleepCtx(ctx, time.Duration(attempt)*time.Second) {
			return ctx.Err()
		}
	}
	return fmt.Errorf("create group %s on %s: %w", group, stream, lastErr)
}

func (r *RedisClientImpl) readBatch(ctx context.Context, stream, group, consumer string) ([]storage.StreamMessage, error) {
	streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    r.batchSize,
		Block:    r.block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var batch []storage.StreamMessage
	for _, s := range streams {
		batch = append(batch, toStreamMessages(s.Stream, s.Messages)...)
	}
	return batch, nil
}

// claimStale moves entries idle for at least claimIdle to consumer
func (r *RedisClientImpl) claimStale(ctx context.Context, stream, group, consumer string) ([]storage.StreamMessage, error) {
	var claimed []storage.StreamMessage
	start := "0-0"
	for {
		msgs, next, err := r.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   stream,
			Group:    group,
			Consumer: consumer,
			MinIdle:  r.claimIdle,
			Start:    start,
			Count:    r.batchSize,
		}).Result()
		if err != nil {
			return claimed, err
		}
		claimed = append(claimed, toStreamMessages(stream, msgs)...)
		if len(msgs) == 0 || next == "" || next == "0-0" {
			break
		}
		start = next
	}

	if len(claimed) > 0 {
		logger.Info("Claimed pending stream entries",
			logger.String("stream", stream),
			logger.Int("count", len(claimed)),
		)
	}
	return claimed, nil
}

func toStreamMessages(stream string, msgs []redis.XMessage) []storage.StreamMessage {
	out := make([]storage.StreamMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, storage.StreamMessage{ID: m.ID, Stream: stream, Values: m.Values})
	}
	return out
}

func claimDue(last, now time.Time, every time.Duration) bool {
	return last.IsZero() || now.Sub(last) >= every
}

// forward sends msgs to out and reports false once ctx is done
func forward(ctx context.Context, out chan<- storage.StreamMessage, msgs []storage.StreamMessage) bool {
	for _, msg := range msgs {
		select {
		case out <- msg:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

func (r *RedisClientImpl) handleReadError(ctx context.Context, err error, stream, group string) {
	if strings.Contains(err.Error(), "NOGROUP") {
		logger.Warn("Consumer group missing, recreating",
			logger.String("stream", stream),
			logger.String("group", group),
		)
		if createErr := r.client.XGroupCreateMkStream(ctx, stream, group, "0").Err(); createErr != nil && !isBusyGroup(createErr) {
			logger.Error("Failed to recreate consumer group",
				logger.ErrorField(createErr),
				logger.String("stream", stream),
			)
		}
		sleepCtx(ctx, 2*time.Second)
		return
	}

	logger.Error("Error reading from stream",
		logger.ErrorField(err),
		logger.String("stream", stream),
	)
	sleepCtx(ctx, time.Second)
}

// AcknowledgeMessage acknowledges a message in a Redis stream
func (r *RedisClientImpl) AcknowledgeMessage(ctx context.Context, stream string, group string, id string) error {
	return r.client.XAck(ctx, stream, group, id).Err()
}

// Set stores value as JSON with a TTL (0 means no expiry)
func (r *RedisClientImpl) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return r.client.Set(ctx, key, payload, ttl).Err()
}

// SetNX stores value as JSON only when key does not exist yet
func (r *RedisClientImpl) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("failed to marshal value: %w", err)
	}
	return r.client.SetNX(ctx, key, payload, ttl).Result()
}

// GetJSON decodes the value at key into dest. A missing key leaves dest untouched.
func (r *RedisClientImpl) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (r *RedisClientImpl) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisClientImpl) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	return n > 0, err
}

// Incr atomically increments a counter and returns the new value
func (r *RedisClientImpl) Incr(ctx context.Context, key string) (int64, error) {
	return r.client.Incr(ctx, key).Result()
}

func (r *RedisClientImpl) SetAdd(ctx context.Context, key string, members ...string) error {
	return r.client.SAdd(ctx, key, members).Err()
}

func (r *RedisClientImpl) SetMembers(ctx context.Context, key string) ([]string, error) {
	return r.client.SMembers(ctx, key).Result()
}

func (r *RedisClientImpl) SetRemove(ctx context.Context, key string, members ...string) error {
	return r.client.SRem(ctx, key, members).Err()
}

// Publish sends message as JSON on a pub/sub channel
func (r *RedisClientImpl) Publish(ctx context.Context, channel string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return r.client.Publish(ctx, channel, payload).Err()
}

func (r *RedisClientImpl) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisClientImpl) Close() error {
	return r.client.Close()
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// sleepCtx waits for d and reports false if ctx ended first
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
