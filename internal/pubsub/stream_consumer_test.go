package pubsub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/strategy-alerts/internal/models"
	"github.com/mohamedkhairy/strategy-alerts/internal/storage"
)

type recordingSink struct {
	mu      sync.Mutex
	candles []models.CandleIn
	err     error
}

func (s *recordingSink) Submit(ctx context.Context, candle models.CandleIn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.candles = append(s.candles, candle)
	return nil
}

func (s *recordingSink) Candles() []models.CandleIn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.CandleIn(nil), s.candles...)
}

func sampleCandle(symbol string, close float64) models.CandleIn {
	return models.CandleIn{
		Symbol:    symbol,
		Timeframe: "M1",
		Open:      close,
		High:      close,
		Low:       close,
		Close:     close,
		Timestamp: time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC),
	}
}

func TestStreamConsumer_DeserializeCandle(t *testing.T) {
	consumer := NewStreamConsumer(storage.NewMockRedisClient(), &recordingSink{}, DefaultStreamConsumerConfig("candles", "g", "c"))

	msg := storage.StreamMessage{
		ID:     "1-0",
		Stream: "candles",
		Values: map[string]interface{}{
			CandleField: `{"symbol":"EURUSD","timeframe":"M1","open":1.1,"high":1.2,"low":1.0,"close":1.15,"volume":10,"timestamp":"2024-01-02T09:30:00Z"}`,
		},
	}

	candle, err := consumer.deserializeCandle(msg)
	require.NoError(t, err)
	assert.Equal(t, "EURUSD", candle.Symbol)
	assert.Equal(t, 1.15, candle.Close)

	_, err = consumer.deserializeCandle(storage.StreamMessage{Values: map[string]interface{}{"tick": "{}"}})
	assert.Error(t, err)

	_, err = consumer.deserializeCandle(storage.StreamMessage{Values: map[string]interface{}{CandleField: 42}})
	assert.Error(t, err)
}

func TestStreamConsumer_GetStreams(t *testing.T) {
	cfg := DefaultStreamConsumerConfig("candles", "g", "c")
	consumer := NewStreamConsumer(storage.NewMockRedisClient(), &recordingSink{}, cfg)
	assert.Equal(t, []string{"candles"}, consumer.getStreams())

	cfg.Partitions = 2
	consumer = NewStreamConsumer(storage.NewMockRedisClient(), &recordingSink{}, cfg)
	assert.Equal(t, []string{"candles.p0", "candles.p1"}, consumer.getStreams())
}

func TestStreamConsumer_SubmitsAndAcks(t *testing.T) {
	ctx := context.Background()
	redis := storage.NewMockRedisClient()
	require.NoError(t, redis.PublishToStream(ctx, "candles", CandleField, sampleCandle("EURUSD", 1.1)))
	require.NoError(t, redis.PublishToStream(ctx, "candles", CandleField, sampleCandle("GBPUSD", 1.3)))

	bad := sampleCandle("EURUSD", 1.1)
	bad.Close = -1
	require.NoError(t, redis.PublishToStream(ctx, "candles", CandleField, bad))
	require.NoError(t, redis.PublishToStream(ctx, "other", CandleField, sampleCandle("USDJPY", 150)))

	sink := &recordingSink{}
	consumer := NewStreamConsumer(redis, sink, DefaultStreamConsumerConfig("candles", "g", "c"))
	require.NoError(t, consumer.Start())
	assert.True(t, consumer.IsRunning())

	require.Eventually(t, func() bool {
		return consumer.GetStats().MessagesAcked == 3
	}, time.Second, time.Millisecond)
	consumer.Stop()

	candles := sink.Candles()
	require.Len(t, candles, 2)
	assert.Equal(t, "EURUSD", candles[0].Symbol)
	assert.Equal(t, "GBPUSD", candles[1].Symbol)

	stats := consumer.GetStats()
	assert.Equal(t, int64(2), stats.MessagesProcessed)
	assert.Equal(t, int64(1), stats.MessagesRejected)
	assert.Equal(t, int64(3), stats.MessagesAcked)
	assert.ElementsMatch(t, []string{"1-0", "2-0", "3-0"}, redis.Acked)
	assert.False(t, consumer.IsRunning())
}

func TestStreamConsumer_SinkFailureLeavesMessagePending(t *testing.T) {
	ctx := context.Background()
	redis := storage.NewMockRedisClient()
	require.NoError(t, redis.PublishToStream(ctx, "candles", CandleField, sampleCandle("EURUSD", 1.1)))

	sink := &recordingSink{err: errors.New("queue full")}
	consumer := NewStreamConsumer(redis, sink, DefaultStreamConsumerConfig("candles", "g", "c"))
	require.NoError(t, consumer.Start())
	require.Eventually(t, func() bool {
		return consumer.GetStats().MessagesFailed == 1
	}, time.Second, time.Millisecond)
	consumer.Stop()

	assert.Empty(t, redis.Acked)
}

func TestStreamConsumer_StartErrors(t *testing.T) {
	redis := storage.NewMockRedisClient()
	redis.ConsumeErr = errors.New("no stream")

	consumer := NewStreamConsumer(redis, &recordingSink{}, DefaultStreamConsumerConfig("candles", "g", "c"))
	assert.Error(t, consumer.Start())
	assert.False(t, consumer.IsRunning())

	consumer = NewStreamConsumer(storage.NewMockRedisClient(), nil, DefaultStreamConsumerConfig("candles", "g", "c"))
	assert.Error(t, consumer.Start())

	consumer = NewStreamConsumer(storage.NewMockRedisClient(), &recordingSink{}, DefaultStreamConsumerConfig("candles", "g", "c"))
	require.NoError(t, consumer.Start())
	assert.Error(t, consumer.Start())
	consumer.Stop()
}
