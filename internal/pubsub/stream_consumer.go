package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mohamedkhairy/strategy-alerts/internal/models"
	"github.com/mohamedkhairy/strategy-alerts/internal/storage"
	"github.com/mohamedkhairy/strategy-alerts/pkg/logger"
)

// CandleField is the stream field holding the JSON encoded candle
const CandleField = "candle"

// StreamConsumerConfig holds configuration for the candle stream consumer
type StreamConsumerConfig struct {
	StreamName    string
	ConsumerGroup string
	ConsumerName  string
	Partitions    int // Number of partitions to consume from (0 = no partitioning)
	AckTimeout    time.Duration
}

// DefaultStreamConsumerConfig returns default configuration
func DefaultStreamConsumerConfig(streamName, consumerGroup, consumerName string) StreamConsumerConfig {
	return StreamConsumerConfig{
		StreamName:    streamName,
		ConsumerGroup: consumerGroup,
		ConsumerName:  consumerName,
		AckTimeout:    10 * time.Second,
	}
}

// CandleSink accepts validated candles; implemented by the stream ingestor
type CandleSink interface {
	Submit(ctx context.Context, candle models.CandleIn) error
}

// StreamConsumer consumes candles from Redis streams and hands them to a sink
type StreamConsumer struct {
	config  StreamConsumerConfig
	redis   storage.RedisClient
	sink    CandleSink
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool

	statsMu sync.RWMutex
	stats   ConsumerStats
}

// ConsumerStats holds statistics about the consumer
type ConsumerStats struct {
	MessagesProcessed int64
	MessagesAcked     int64
	MessagesRejected  int64 // malformed or invalid candles, acked and dropped
	MessagesFailed    int64 // sink errors, left pending for redelivery
	LastMessageTime   time.Time
}

// NewStreamConsumer creates a new stream consumer
func NewStreamConsumer(redis storage.RedisClient, sink CandleSink, config StreamConsumerConfig) *StreamConsumer {
	ctx, cancel := context.WithCancel(context.Background())
	if config.AckTimeout <= 0 {
		config.AckTimeout = 10 * time.Second
	}

	return &StreamConsumer{
		config: config,
		redis:  redis,
		sink:   sink,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start starts consuming from the stream
func (c *StreamConsumer) Start() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("consumer is already running")
	}
	if c.sink == nil {
		c.mu.Unlock()
		return fmt.Errorf("candle sink cannot be nil")
	}
	c.running = true
	c.mu.Unlock()

	streams := c.getStreams()

	logger.Info("Starting candle stream consumer",
		logger.String("stream", c.config.StreamName),
		logger.String("group", c.config.ConsumerGroup),
		logger.String("consumer", c.config.ConsumerName),
		logger.Int("stream_count", len(streams)),
	)

	for _, stream := range streams {
		messageChan, err := c.redis.ConsumeFromStream(c.ctx, stream, c.config.ConsumerGroup, c.config.ConsumerName)
		if err != nil {
			c.cancel()
			c.wg.Wait()
			c.mu.Lock()
			c.running = false
			c.mu.Unlock()
			return fmt.Errorf("failed to consume from stream %s: %w", stream, err)
		}
		c.wg.Add(1)
		go c.consumeStream(stream, messageChan)
	}

	return nil
}

// Stop stops the consumer
func (c *StreamConsumer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	logger.Info("Stopping candle stream consumer")
	c.cancel()
	c.wg.Wait()
	logger.Info("Candle stream consumer stopped")
}

func (c *StreamConsumer) getStreams() []string {
	if c.config.Partitions <= 0 {
		return []string{c.config.StreamName}
	}

	streams := make([]string, c.config.Partitions)
	for i := 0; i < c.config.Partitions; i++ {
		streams[i] = fmt.Sprintf("%s.p%d", c.config.StreamName, i)
	}
	return streams
}

func (c *StreamConsumer) consumeStream(stream string, messageChan <-chan storage.StreamMessage) {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-messageChan:
			if !ok {
				logger.Warn("Message channel closed",
					logger.String("stream", stream),
				)
				return
			}
			c.handleMessage(stream, msg)
		}
	}
}

func (c *StreamConsumer) handleMessage(stream string, msg storage.StreamMessage) {
	candle, err := c.deserializeCandle(msg)
	if err == nil {
		err = candle.Validate()
	}
	if err != nil {
		logger.Warn("Rejecting candle message",
			logger.ErrorField(err),
			logger.String("stream", stream),
			logger.String("message_id", msg.ID),
		)
		c.updateStats(func(s *ConsumerStats) { s.MessagesRejected++ })
		// redelivery cannot fix a malformed payload
		c.acknowledge(stream, msg.ID)
		return
	}

	if err := c.sink.Submit(c.ctx, *candle); err != nil {
		logger.Error("Failed to submit candle",
			logger.ErrorField(err),
			logger.String("symbol", candle.Symbol),
			logger.String("message_id", msg.ID),
		)
		c.updateStats(func(s *ConsumerStats) { s.MessagesFailed++ })
		return
	}

	c.updateStats(func(s *ConsumerStats) {
		s.MessagesProcessed++
		s.LastMessageTime = time.Now()
	})
	c.acknowledge(stream, msg.ID)
}

// deserializeCandle decodes the candle field of a stream message
func (c *StreamConsumer) deserializeCandle(msg storage.StreamMessage) (*models.CandleIn, error) {
	raw, ok := msg.Values[CandleField]
	if !ok {
		return nil, fmt.Errorf("no candle data found in message")
	}

	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return nil, fmt.Errorf("unexpected candle field type %T", raw)
	}

	var candle models.CandleIn
	if err := json.Unmarshal(data, &candle); err != nil {
		return nil, fmt.Errorf("failed to unmarshal candle: %w", err)
	}
	return &candle, nil
}

func (c *StreamConsumer) acknowledge(stream, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.AckTimeout)
	defer cancel()

	if err := c.redis.AcknowledgeMessage(ctx, stream, c.config.ConsumerGroup, id); err != nil {
		logger.Error("Failed to acknowledge message",
			logger.ErrorField(err),
			logger.String("stream", stream),
			logger.String("message_id", id),
		)
		return
	}
	c.updateStats(func(s *ConsumerStats) { s.MessagesAcked++ })
}

func (c *StreamConsumer) updateStats(fn func(*ConsumerStats)) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	fn(&c.stats)
}

// GetStats returns current consumer statistics
func (c *StreamConsumer) GetStats() ConsumerStats {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	return c.stats
}

// IsRunning returns whether the consumer is running
func (c *StreamConsumer) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}
