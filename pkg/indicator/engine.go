package indicator

import (
	"sync"

	"github.com/mohamedkhairy/strategy-alerts/internal/models"
	"github.com/mohamedkhairy/strategy-alerts/pkg/logger"
)

const (
	DefaultWindowSize      = 500
	DefaultMACDHistorySize = 60
	DefaultWarmup          = 30
)

// Config configures the engine's per-series buffers
type Config struct {
	WindowSize      int // Candles kept per series
	MACDHistorySize int // MACD line values kept per series for the signal line
	Warmup          int // Closes required before any indicator is computed
}

// DefaultConfig returns the standard engine configuration
func DefaultConfig() Config {
	return Config{
		WindowSize:      DefaultWindowSize,
		MACDHistorySize: DefaultMACDHistorySize,
		Warmup:          DefaultWarmup,
	}
}

// SeriesKey builds the identity of a rolling series
func SeriesKey(symbol, timeframe string) string {
	return symbol + ":" + timeframe
}

// Engine maintains rolling candle history per series key and produces snapshots.
// Updates to the same key are serialized; different keys update in parallel.
// Series are created lazily and live until Reset.
type Engine struct {
	config Config

	mu     sync.RWMutex
	series map[string]*seriesState
}

// NewEngine creates a new indicator engine
func NewEngine(config Config) *Engine {
	if config.WindowSize <= 0 {
		config.WindowSize = DefaultWindowSize
	}
	if config.MACDHistorySize <= 0 {
		config.MACDHistorySize = DefaultMACDHistorySize
	}
	if config.Warmup <= 0 {
		config.Warmup = DefaultWarmup
	}
	return &Engine{
		config: config,
		series: make(map[string]*seriesState),
	}
}

// Update appends the candle to the series for key and returns the resulting snapshot
func (e *Engine) Update(key string, candle models.Candle) Snapshot {
	s := e.getOrCreate(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.update(candle, e.config.Warmup)
}

func (e *Engine) getOrCreate(key string) *seriesState {
	e.mu.RLock()
	s, ok := e.series[key]
	e.mu.RUnlock()
	if ok {
		return s
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if s, ok = e.series[key]; ok {
		return s
	}
	s = newSeriesState(key, e.config.WindowSize, e.config.MACDHistorySize)
	e.series[key] = s
	logger.ActiveSeries.Set(float64(len(e.series)))
	logger.Debug("Created indicator series", logger.String("key", key))
	return s
}

// SeriesCount returns the number of series held
func (e *Engine) SeriesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.series)
}

// Len returns the number of candles held for key
func (e *Engine) Len(key string) int {
	e.mu.RLock()
	s, ok := e.series[key]
	e.mu.RUnlock()
	if !ok {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.candles.Len()
}

// Reset drops all series
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.series = make(map[string]*seriesState)
	logger.ActiveSeries.Set(0)
}
