package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/strategy-alerts/internal/models"
	"github.com/mohamedkhairy/strategy-alerts/pkg/indicator"
)

type orderRecorder struct {
	mu     sync.Mutex
	closes map[string][]float64
	seen   chan struct{}
	block  chan struct{}
}

func newOrderRecorder() *orderRecorder {
	return &orderRecorder{closes: make(map[string][]float64), seen: make(chan struct{}, 1024)}
}

func (r *orderRecorder) OnCandle(ctx context.Context, symbol, timeframe string, candle models.Candle) []*models.Alert {
	if r.block != nil {
		<-r.block
	}
	if candle.Close == 13 {
		panic("bad candle")
	}
	r.mu.Lock()
	key := indicator.SeriesKey(symbol, timeframe)
	r.closes[key] = append(r.closes[key], candle.Close)
	r.mu.Unlock()
	r.seen <- struct{}{}
	return nil
}

func (r *orderRecorder) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.seen:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d candles", i, n)
		}
	}
}

func candleIn(symbol string, close float64) models.CandleIn {
	return models.CandleIn{
		Symbol:    symbol,
		Timeframe: "M1",
		Open:      close,
		High:      close,
		Low:       close,
		Close:     close,
		Volume:    1,
		Timestamp: baseTime,
	}
}

func TestIngestor_PreservesPerSeriesOrder(t *testing.T) {
	rec := newOrderRecorder()
	ing := NewIngestor(IngestorConfig{Workers: 4, QueueSize: 16}, rec)
	require.NoError(t, ing.Start())
	defer ing.Stop()

	symbols := []string{"EURUSD", "GBPUSD", "USDJPY", "AUDUSD", "XAUUSD"}
	var wg sync.WaitGroup
	for _, sym := range symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			for i := 1; i <= 50; i++ {
				assert.NoError(t, ing.Submit(context.Background(), candleIn(sym, float64(i)+0.5)))
			}
		}(sym)
	}
	wg.Wait()
	rec.wait(t, len(symbols)*50)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, sym := range symbols {
		closes := rec.closes[indicator.SeriesKey(sym, "M1")]
		require.Len(t, closes, 50)
		for i, c := range closes {
			assert.Equal(t, float64(i+1)+0.5, c, "%s candle %d out of order", sym, i)
		}
	}
}

func TestIngestor_PartitionIsStable(t *testing.T) {
	ing := NewIngestor(IngestorConfig{Workers: 8}, newOrderRecorder())

	p := ing.Partition("EURUSD:M1")
	for i := 0; i < 10; i++ {
		assert.Equal(t, p, ing.Partition("EURUSD:M1"))
	}
	assert.GreaterOrEqual(t, p, 0)
	assert.Less(t, p, 8)
}

func TestIngestor_RejectsInvalidCandles(t *testing.T) {
	ing := NewIngestor(DefaultIngestorConfig(), newOrderRecorder())
	require.NoError(t, ing.Start())
	defer ing.Stop()

	bad := candleIn("EURUSD", 1.1)
	bad.Timeframe = "1m"
	assert.ErrorIs(t, ing.Submit(context.Background(), bad), models.ErrInvalidCandle)

	bad = candleIn("", 1.1)
	assert.ErrorIs(t, ing.Submit(context.Background(), bad), models.ErrInvalidCandle)
}

func TestIngestor_SubmitWhenStopped(t *testing.T) {
	ing := NewIngestor(DefaultIngestorConfig(), newOrderRecorder())
	assert.ErrorIs(t, ing.Submit(context.Background(), candleIn("EURUSD", 1.1)), ErrIngestorStopped)

	require.NoError(t, ing.Start())
	assert.Error(t, ing.Start())
	ing.Stop()
	ing.Stop()

	assert.False(t, ing.IsRunning())
	assert.ErrorIs(t, ing.Submit(context.Background(), candleIn("EURUSD", 1.1)), ErrIngestorStopped)
	assert.Error(t, ing.Start())
}

func TestIngestor_SubmitHonoursContextWhenFull(t *testing.T) {
	rec := newOrderRecorder()
	rec.block = make(chan struct{})
	ing := NewIngestor(IngestorConfig{Workers: 1, QueueSize: 1}, rec)
	require.NoError(t, ing.Start())

	// first candle is taken by the blocked worker, second fills the queue
	require.NoError(t, ing.Submit(context.Background(), candleIn("EURUSD", 1)))
	require.Eventually(t, func() bool { return ing.Pending() == 0 }, time.Second, time.Millisecond)
	require.NoError(t, ing.Submit(context.Background(), candleIn("EURUSD", 2)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := ing.Submit(ctx, candleIn("EURUSD", 3))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	close(rec.block)
	rec.wait(t, 2)
	ing.Stop()
}

func TestIngestor_RecoversFromProcessorPanic(t *testing.T) {
	rec := newOrderRecorder()
	ing := NewIngestor(IngestorConfig{Workers: 1, QueueSize: 4}, rec)
	require.NoError(t, ing.Start())
	defer ing.Stop()

	require.NoError(t, ing.Submit(context.Background(), candleIn("EURUSD", 13)))
	require.NoError(t, ing.Submit(context.Background(), candleIn("EURUSD", 14)))
	rec.wait(t, 1)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []float64{14}, rec.closes["EURUSD:M1"])
}

func TestIngestor_DrivesOrchestrator(t *testing.T) {
	h := newHarness(t)
	h.orchestrator.RegisterStrategy(alwaysTrue(1, "M1", true, "EURUSD"))

	ing := NewIngestor(IngestorConfig{Workers: 2, QueueSize: 8}, h.orchestrator)
	require.NoError(t, ing.Start())
	defer ing.Stop()

	require.NoError(t, ing.Submit(context.Background(), candleIn("EURUSD", 1.1)))
	require.Eventually(t, func() bool { return h.alerts.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
}
