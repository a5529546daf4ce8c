package indicator

import (
	"sync"
	"time"

	"github.com/mohamedkhairy/strategy-alerts/internal/models"
)

// seriesState holds the rolling history for a single (symbol, timeframe) series
type seriesState struct {
	key        string
	mu         sync.Mutex
	candles    *Window[models.Candle]
	macd       *Window[float64]
	lastUpdate time.Time
}

func newSeriesState(key string, windowSize, macdHistorySize int) *seriesState {
	return &seriesState{
		key:     key,
		candles: NewWindow[models.Candle](windowSize),
		macd:    NewWindow[float64](macdHistorySize),
	}
}

// update appends the candle and recomputes the snapshot; callers hold s.mu
func (s *seriesState) update(candle models.Candle, warmup int) Snapshot {
	s.candles.Push(candle)
	s.lastUpdate = candle.Timestamp

	if s.candles.Len() < warmup {
		return Snapshot{}
	}

	closes := s.closes()

	snap := Snapshot{
		EMAFast: opt(EMA(closes, 9)),
		EMASlow: opt(EMA(closes, 21)),
		RSI:     opt(RSI(closes, 14)),
	}

	fast, okFast := EMA(closes, 12)
	slow, okSlow := EMA(closes, 26)
	if okFast && okSlow {
		line := fast - slow
		s.macd.Push(line)
		snap.MACD = &line
	}
	snap.MACDSignal = opt(EMA(s.macd.Values(), 9))

	if bands, ok := Bollinger(closes, 20, 2); ok {
		snap.BBUpper = &bands.Upper
		snap.BBMiddle = &bands.Middle
		snap.BBLower = &bands.Lower
	}

	return snap
}

func (s *seriesState) closes() []float64 {
	candles := s.candles.Values()
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
