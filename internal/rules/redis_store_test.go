package rules

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/strategy-alerts/internal/models"
	"github.com/mohamedkhairy/strategy-alerts/internal/storage"
)

func newRedisStore(t *testing.T) (*RedisStrategyStore, *storage.MockRedisClient) {
	t.Helper()
	mock := storage.NewMockRedisClient()
	store, err := NewRedisStrategyStore(mock, DefaultRedisStrategyStoreConfig())
	require.NoError(t, err)
	return store, mock
}

func TestNewRedisStrategyStore(t *testing.T) {
	_, err := NewRedisStrategyStore(nil, DefaultRedisStrategyStoreConfig())
	assert.Error(t, err)

	store, err := NewRedisStrategyStore(storage.NewMockRedisClient(), RedisStrategyStoreConfig{TTL: -1})
	require.NoError(t, err)
	assert.Equal(t, DefaultRedisStrategyKeyPrefix, store.config.KeyPrefix)
	assert.Equal(t, DefaultRedisStrategySetKey, store.config.SetKey)
	assert.Equal(t, DefaultRedisStrategySeqKey, store.config.SeqKey)
	assert.Zero(t, store.config.TTL)
}

func TestRedisStrategyStore_CRUD(t *testing.T) {
	ctx := context.Background()
	store, mock := newRedisStore(t)

	created, err := store.Create(ctx, rsiOversold())
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID)
	assert.Contains(t, mock.Data, "strategies:1")
	assert.Contains(t, mock.Sets["strategies:ids"], "1")

	_, err = store.Create(ctx, rsiOversold())
	require.NoError(t, err)

	got, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "RSI oversold", got.Name)
	require.Len(t, got.Conditions, 1)
	assert.Equal(t, 30.0, *got.Conditions[0].Right.Value)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(1), list[0].ID)
	assert.Equal(t, int64(2), list[1].ID)

	symbols := []string{"GBPUSD", "USDJPY"}
	updated, err := store.Update(ctx, 2, &models.StrategyUpdate{Symbols: &symbols})
	require.NoError(t, err)
	assert.Equal(t, symbols, updated.Symbols)

	got, err = store.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, symbols, got.Symbols)

	require.NoError(t, store.Delete(ctx, 1))
	assert.NotContains(t, mock.Data, "strategies:1")
	assert.NotContains(t, mock.Sets["strategies:ids"], "1")

	_, err = store.Get(ctx, 1)
	assert.True(t, errors.Is(err, models.ErrStrategyNotFound))
	assert.ErrorIs(t, store.Delete(ctx, 1), models.ErrStrategyNotFound)
}

func TestRedisStrategyStore_ListSkipsBrokenEntries(t *testing.T) {
	ctx := context.Background()
	store, mock := newRedisStore(t)

	_, err := store.Create(ctx, rsiOversold())
	require.NoError(t, err)

	// dangling ID and garbage member
	require.NoError(t, mock.SetAdd(ctx, "strategies:ids", "7", "not-a-number"))

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(1), list[0].ID)
}

func TestRedisStrategyStore_CreateFailures(t *testing.T) {
	ctx := context.Background()
	store, mock := newRedisStore(t)

	payload := rsiOversold()
	payload.Timeframe = "D1"
	_, err := store.Create(ctx, payload)
	assert.ErrorIs(t, err, models.ErrInvalidTimeframe)
	assert.Empty(t, mock.Counters, "invalid strategies must not consume an ID")

	mock.SetErr = errors.New("redis down")
	_, err = store.Create(ctx, rsiOversold())
	assert.Error(t, err)
	assert.Empty(t, mock.Data)
}

func TestRedisStrategyStore_UpdateNotFound(t *testing.T) {
	store, _ := newRedisStore(t)

	name := "x"
	_, err := store.Update(context.Background(), 5, &models.StrategyUpdate{Name: &name})
	assert.ErrorIs(t, err, models.ErrStrategyNotFound)
}
