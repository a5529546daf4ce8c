package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mohamedkhairy/strategy-alerts/internal/eventbus"
	"github.com/mohamedkhairy/strategy-alerts/internal/models"
	"github.com/mohamedkhairy/strategy-alerts/internal/rules"
	"github.com/mohamedkhairy/strategy-alerts/pkg/indicator"
	"github.com/mohamedkhairy/strategy-alerts/pkg/logger"
)

// AlertSink records triggered alerts
type AlertSink interface {
	Create(ctx context.Context, payload *models.AlertCreate) (*models.Alert, error)
}

// AlertDispatcher hands alerts to notifiers without blocking
type AlertDispatcher interface {
	Dispatch(alert *models.Alert) bool
}

// Orchestrator routes candles through the indicator and confluence engines
// and fans the results out through the event bus.
type Orchestrator struct {
	indicators *indicator.Engine
	confluence *rules.ConfluenceEngine
	bus        *eventbus.Bus
	alerts     AlertSink
	dispatcher AlertDispatcher

	mu        sync.RWMutex
	bySymbol  map[string][]*models.Strategy
	symbolsOf map[int64][]string
}

// NewOrchestrator creates a new orchestrator; dispatcher may be nil
func NewOrchestrator(
	indicators *indicator.Engine,
	confluence *rules.ConfluenceEngine,
	bus *eventbus.Bus,
	alerts AlertSink,
	dispatcher AlertDispatcher,
) *Orchestrator {
	if indicators == nil {
		panic("indicators cannot be nil")
	}
	if confluence == nil {
		panic("confluence cannot be nil")
	}
	if bus == nil {
		panic("bus cannot be nil")
	}
	if alerts == nil {
		panic("alerts cannot be nil")
	}

	return &Orchestrator{
		indicators: indicators,
		confluence: confluence,
		bus:        bus,
		alerts:     alerts,
		dispatcher: dispatcher,
		bySymbol:   make(map[string][]*models.Strategy),
		symbolsOf:  make(map[int64][]string),
	}
}

// RegisterStrategy adds the strategy to every symbol it lists.
// Registering an ID that is already present replaces the earlier entry,
// whatever symbols it was registered under.
func (o *Orchestrator) RegisterStrategy(strategy *models.Strategy) {
	if strategy == nil {
		return
	}
	s := strategy.Clone()

	o.mu.Lock()
	defer o.mu.Unlock()

	o.detachLocked(s.ID)
	for _, symbol := range s.Symbols {
		list := removeByID(o.bySymbol[symbol], s.ID)
		o.bySymbol[symbol] = append(list, s)
	}
	o.symbolsOf[s.ID] = append([]string(nil), s.Symbols...)

	logger.Debug("Registered strategy",
		logger.Int64("strategy_id", s.ID),
		logger.Int("symbols", len(s.Symbols)),
	)
}

// UnregisterStrategy removes the strategy's ID from every symbol it is
// registered under, regardless of the symbols on the version passed in
func (o *Orchestrator) UnregisterStrategy(strategy *models.Strategy) {
	if strategy == nil {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.detachLocked(strategy.ID)
}

// detachLocked drops id from the symbol index. Callers hold o.mu.
func (o *Orchestrator) detachLocked(id int64) {
	for _, symbol := range o.symbolsOf[id] {
		list, ok := o.bySymbol[symbol]
		if !ok {
			continue
		}
		list = removeByID(list, id)
		if len(list) == 0 {
			delete(o.bySymbol, symbol)
		} else {
			o.bySymbol[symbol] = list
		}
	}
	delete(o.symbolsOf, id)
}

// ReplaceStrategy swaps a registered strategy for its updated version
func (o *Orchestrator) ReplaceStrategy(previous, updated *models.Strategy) {
	o.UnregisterStrategy(previous)
	o.RegisterStrategy(updated)
}

// Strategies returns the strategies registered for symbol
func (o *Orchestrator) Strategies(symbol string) []*models.Strategy {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]*models.Strategy(nil), o.bySymbol[symbol]...)
}

// SyncFromStore replaces all registrations with the strategies in store
// and clears cross-over state
func (o *Orchestrator) SyncFromStore(ctx context.Context, store rules.StrategyStore) (int, error) {
	strategies, err := store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load strategies: %w", err)
	}

	o.mu.Lock()
	o.bySymbol = make(map[string][]*models.Strategy)
	o.symbolsOf = make(map[int64][]string)
	o.mu.Unlock()
	o.confluence.Reset()

	for _, s := range strategies {
		o.RegisterStrategy(s)
	}

	logger.Info("Loaded strategies into stream orchestrator",
		logger.Int("count", len(strategies)),
	)
	return len(strategies), nil
}

// OnCandle processes one candle and returns the alerts it triggered.
// Sink, notification and subscriber failures are logged, never returned.
func (o *Orchestrator) OnCandle(ctx context.Context, symbol, timeframe string, candle models.Candle) []*models.Alert {
	snapshot := o.indicators.Update(indicator.SeriesKey(symbol, timeframe), candle)
	if snapshot.Empty() {
		logger.Debug("Indicator series warming up",
			logger.String("symbol", symbol),
			logger.String("timeframe", timeframe),
		)
	}
	evalCtx := rules.EvaluationContext{
		Price:      candle.PriceMapping(),
		Indicators: snapshot.Mapping(),
	}
	logger.CandlesProcessed.WithLabelValues(timeframe).Inc()

	strategies := o.Strategies(symbol)

	o.bus.Publish(ctx, eventbus.Event{
		Type: eventbus.EventMarketTick,
		Payload: map[string]interface{}{
			"symbol":    symbol,
			"timeframe": timeframe,
			"price":     candle.Close,
			"timestamp": candle.Timestamp.UTC().Format(time.RFC3339Nano),
		},
	})

	var triggered []*models.Alert
	for _, strategy := range strategies {
		if strategy.Timeframe != timeframe || !strategy.IsActive {
			continue
		}

		logger.StrategiesEvaluated.Inc()
		if !o.confluence.Process(strategy, evalCtx) {
			continue
		}

		alert, err := o.alerts.Create(ctx, &models.AlertCreate{
			StrategyID:        strategy.ID,
			Symbol:            symbol,
			Timeframe:         timeframe,
			Price:             candle.Close,
			IndicatorSnapshot: evalCtx.Indicators,
		})
		if err != nil {
			logger.ErrorsTotal.WithLabelValues("stream", "alert_sink").Inc()
			logger.Error("Failed to record alert",
				logger.Int64("strategy_id", strategy.ID),
				logger.String("symbol", symbol),
				logger.ErrorField(err),
			)
			continue
		}

		logger.AlertsTriggered.WithLabelValues(symbol, timeframe).Inc()
		logger.Info("Strategy triggered",
			logger.Int64("strategy_id", strategy.ID),
			logger.Int64("alert_id", alert.ID),
			logger.String("symbol", symbol),
			logger.String("timeframe", timeframe),
			logger.Float64("price", candle.Close),
		)

		if o.dispatcher != nil {
			o.dispatcher.Dispatch(alert)
		}

		o.bus.Publish(ctx, eventbus.Event{
			Type: eventbus.EventAlertTriggered,
			Payload: map[string]interface{}{
				"alert":    alert,
				"strategy": strategy.Clone(),
			},
		})

		triggered = append(triggered, alert)
	}

	return triggered
}

// Forget drops the cross-over state of a deleted strategy
func (o *Orchestrator) Forget(strategyID int64) {
	o.confluence.Forget(strategyID)
}

func removeByID(list []*models.Strategy, id int64) []*models.Strategy {
	out := make([]*models.Strategy, 0, len(list))
	for _, s := range list {
		if s.ID != id {
			out = append(out, s)
		}
	}
	return out
}
