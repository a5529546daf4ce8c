package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mohamedkhairy/strategy-alerts/internal/eventbus"
	"github.com/mohamedkhairy/strategy-alerts/internal/models"
	"github.com/mohamedkhairy/strategy-alerts/internal/storage"
	"github.com/mohamedkhairy/strategy-alerts/pkg/logger"
)

// ForwardedAlert is the envelope written to the Redis channel and stream
type ForwardedAlert struct {
	TraceID     string           `json:"trace_id"`
	Type        string           `json:"type"`
	Alert       *models.Alert    `json:"alert"`
	Strategy    *models.Strategy `json:"strategy,omitempty"`
	ForwardedAt time.Time        `json:"forwarded_at"`
}

// Forwarder republishes triggered alerts to Redis for consumers outside this process
type Forwarder struct {
	redis          storage.RedisClient
	channel        string
	stream         string
	publishTimeout time.Duration
	dedupe         *Deduplicator
	subscription   eventbus.SubscriptionID
	bus            *eventbus.Bus
}

// NewForwarder creates a new alert forwarder. An empty channel or stream disables that target.
func NewForwarder(redis storage.RedisClient, channel, stream string, publishTimeout time.Duration) *Forwarder {
	if publishTimeout <= 0 {
		publishTimeout = 2 * time.Second
	}
	return &Forwarder{
		redis:          redis,
		channel:        channel,
		stream:         stream,
		publishTimeout: publishTimeout,
	}
}

// WithDeduplicator makes the forwarder skip alerts already forwarded by any instance
func (f *Forwarder) WithDeduplicator(d *Deduplicator) *Forwarder {
	f.dedupe = d
	return f
}

// Attach subscribes the forwarder to alert.triggered events
func (f *Forwarder) Attach(bus *eventbus.Bus) {
	f.bus = bus
	f.subscription = bus.Subscribe(eventbus.EventAlertTriggered, f.HandleEvent)
}

// Detach removes the bus subscription
func (f *Forwarder) Detach() {
	if f.bus != nil {
		f.bus.Unsubscribe(eventbus.EventAlertTriggered, f.subscription)
		f.bus = nil
	}
}

// HandleEvent is the alert.triggered bus handler
func (f *Forwarder) HandleEvent(ctx context.Context, event eventbus.Event) error {
	alert, ok := event.Payload["alert"].(*models.Alert)
	if !ok || alert == nil {
		return fmt.Errorf("alert.triggered payload has no alert")
	}
	strategy, _ := event.Payload["strategy"].(*models.Strategy)

	return f.Forward(ctx, alert, strategy)
}

// Forward publishes one alert to the configured channel and stream
func (f *Forwarder) Forward(ctx context.Context, alert *models.Alert, strategy *models.Strategy) error {
	forwardCtx, cancel := context.WithTimeout(ctx, f.publishTimeout)
	defer cancel()

	if f.dedupe != nil {
		dup, err := f.dedupe.IsDuplicate(forwardCtx, alert)
		if err != nil {
			logger.Warn("Deduplication check failed, forwarding anyway",
				logger.ErrorField(err),
				logger.Int64("alert_id", alert.ID),
			)
		} else if dup {
			return nil
		}
	}

	envelope := ForwardedAlert{
		TraceID:     uuid.New().String(),
		Type:        eventbus.EventAlertTriggered,
		Alert:       alert,
		Strategy:    strategy,
		ForwardedAt: time.Now().UTC(),
	}

	if f.channel != "" {
		if err := f.redis.Publish(forwardCtx, f.channel, envelope); err != nil {
			return fmt.Errorf("failed to publish alert to channel %s: %w", f.channel, err)
		}
	}

	if f.stream != "" {
		if err := f.redis.PublishToStream(forwardCtx, f.stream, "alert", envelope); err != nil {
			return fmt.Errorf("failed to publish alert to stream %s: %w", f.stream, err)
		}
	}

	logger.Debug("Forwarded alert",
		logger.String("trace_id", envelope.TraceID),
		logger.Int64("alert_id", alert.ID),
		logger.Int64("strategy_id", alert.StrategyID),
		logger.String("symbol", alert.Symbol),
	)

	return nil
}
