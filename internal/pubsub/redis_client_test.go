package pubsub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/mohamedkhairy/strategy-alerts/internal/config"
	"github.com/mohamedkhairy/strategy-alerts/internal/storage"
)

func TestNewRedisClient_Defaults(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer rdb.Close()

	c := newRedisClient(rdb, config.RedisConfig{})
	assert.Equal(t, int64(10), c.batchSize)
	assert.Equal(t, time.Second, c.block)
	assert.Equal(t, int64(0), c.maxLen)
	assert.Equal(t, 30*time.Second, c.claimIdle)

	c = newRedisClient(rdb, config.RedisConfig{
		StreamMaxLen:  500,
		ReadBatchSize: 3,
		ReadBlock:     50 * time.Millisecond,
		ClaimMinIdle:  time.Minute,
	})
	assert.Equal(t, int64(500), c.maxLen)
	assert.Equal(t, int64(3), c.batchSize)
	assert.Equal(t, 50*time.Millisecond, c.block)
	assert.Equal(t, time.Minute, c.claimIdle)
}

func TestClaimDue(t *testing.T) {
	now := time.Now()
	assert.True(t, claimDue(time.Time{}, now, time.Minute), "first pass claims at start")
	assert.False(t, claimDue(now.Add(-30*time.Second), now, time.Minute))
	assert.True(t, claimDue(now.Add(-time.Minute), now, time.Minute))
}

func TestToStreamMessages(t *testing.T) {
	msgs := toStreamMessages("candles", []redis.XMessage{
		{ID: "1-0", Values: map[string]interface{}{"candle": "{}"}},
		{ID: "2-0", Values: map[string]interface{}{"candle": "[]"}},
	})
	assert.Len(t, msgs, 2)
	assert.Equal(t, "candles", msgs[1].Stream)
	assert.Equal(t, "2-0", msgs[1].ID)
	assert.Equal(t, "[]", msgs[1].Values["candle"])
}

func TestForward(t *testing.T) {
	out := make(chan storage.StreamMessage, 2)
	assert.True(t, forward(context.Background(), out, []storage.StreamMessage{{ID: "1-0"}, {ID: "2-0"}}))
	assert.Len(t, out, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	full := make(chan storage.StreamMessage)
	assert.False(t, forward(ctx, full, []storage.StreamMessage{{ID: "3-0"}}))
}

func TestIsBusyGroup(t *testing.T) {
	assert.True(t, isBusyGroup(errors.New("BUSYGROUP Consumer Group name already exists")))
	assert.False(t, isBusyGroup(errors.New("NOGROUP No such key")))
	assert.False(t, isBusyGroup(nil))
}

func TestSleepCtx(t *testing.T) {
	assert.True(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleepCtx(ctx, time.Minute))
}
