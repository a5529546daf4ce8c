package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mohamedkhairy/strategy-alerts/pkg/logger"
)

// Event types published by the stream orchestrator
const (
	EventMarketTick     = "market.tick"
	EventAlertTriggered = "alert.triggered"
)

// DefaultHandlerTimeout bounds a single handler invocation
const DefaultHandlerTimeout = 5 * time.Second

// Event is a typed message with a JSON-friendly payload
type Event struct {
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload"`
}

// Handler processes one event
type Handler func(ctx context.Context, event Event) error

// SubscriptionID identifies a subscription for Unsubscribe
type SubscriptionID uint64

type subscription struct {
	id      SubscriptionID
	handler Handler
}

// Bus is an in-process publish/subscribe dispatcher.
// Handlers run sequentially in subscription order; a failing or panicking
// handler is logged and does not stop delivery to the rest.
type Bus struct {
	mu             sync.RWMutex
	subscribers    map[string][]subscription
	nextID         SubscriptionID
	handlerTimeout time.Duration
}

// New creates a bus; a non-positive timeout falls back to DefaultHandlerTimeout
func New(handlerTimeout time.Duration) *Bus {
	if handlerTimeout <= 0 {
		handlerTimeout = DefaultHandlerTimeout
	}
	return &Bus{
		subscribers:    make(map[string][]subscription),
		handlerTimeout: handlerTimeout,
	}
}

// Subscribe registers handler for eventType
func (b *Bus) Subscribe(eventType string, handler Handler) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subscribers[eventType] = append(b.subscribers[eventType], subscription{id: id, handler: handler})
	return id
}

// Unsubscribe removes a subscription; unknown ids are ignored
func (b *Bus) Unsubscribe(eventType string, id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[eventType]
	for i, sub := range subs {
		if sub.id != id {
			continue
		}
		remaining := make([]subscription, 0, len(subs)-1)
		remaining = append(remaining, subs[:i]...)
		remaining = append(remaining, subs[i+1:]...)
		if len(remaining) == 0 {
			delete(b.subscribers, eventType)
		} else {
			b.subscribers[eventType] = remaining
		}
		return
	}
}

// SubscriberCount returns the number of handlers subscribed to eventType
func (b *Bus) SubscriberCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[eventType])
}

// Publish delivers event to the current subscribers of its type.
// It returns the number of handlers that failed.
func (b *Bus) Publish(ctx context.Context, event Event) int {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	failures := 0
	for _, sub := range subs {
		if err := b.deliver(ctx, sub, event); err != nil {
			failures++
			logger.EventHandlerFailures.WithLabelValues(event.Type).Inc()
			logger.Error("Event handler failed",
				logger.String("event_type", event.Type),
				logger.Any("subscription_id", sub.id),
				logger.ErrorField(err),
			)
		}
	}
	return failures
}

func (b *Bus) deliver(ctx context.Context, sub subscription, event Event) (err error) {
	handlerCtx, cancel := context.WithTimeout(ctx, b.handlerTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	return sub.handler(handlerCtx, event)
}
