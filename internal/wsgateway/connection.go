package wsgateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultSendBuffer is the number of outbound messages queued per connection
const DefaultSendBuffer = 256

// ErrSendBufferFull is returned when a slow client's outbound queue is full
var ErrSendBufferFull = errors.New("send buffer full")

// ErrConnectionClosed is returned when enqueueing to a closed connection
var ErrConnectionClosed = errors.New("connection closed")

// Connection represents a WebSocket connection with a client
type Connection struct {
	ID            string
	Subject       string
	Conn          *websocket.Conn
	Send          chan []byte
	Subscriptions map[string]bool // symbol -> subscribed
	mu            sync.RWMutex
	ctx           context.Context
	cancel        context.CancelFunc
	closeOnce     sync.Once
	lastPong      time.Time
	createdAt     time.Time
}

// NewConnection creates a new WebSocket connection
func NewConnection(id string, subject string, conn *websocket.Conn) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		ID:            id,
		Subject:       subject,
		Conn:          conn,
		Send:          make(chan []byte, DefaultSendBuffer),
		Subscriptions: make(map[string]bool),
		ctx:           ctx,
		cancel:        cancel,
		createdAt:     time.Now(),
		lastPong:      time.Now(),
	}
}

// Subscribe limits delivery to the given symbol (in addition to earlier subscriptions)
func (c *Connection) Subscribe(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Subscriptions[symbol] = true
}

// Unsubscribe removes a symbol subscription
func (c *Connection) Unsubscribe(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.Subscriptions, symbol)
}

// IsSubscribed checks if the connection is subscribed to a symbol
func (c *Connection) IsSubscribed(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Subscriptions[symbol]
}

// ShouldReceive reports whether an event for symbol is delivered to this connection.
// Connections without subscriptions receive everything, as do events without a symbol.
func (c *Connection) ShouldReceive(symbol string) bool {
	if symbol == "" {
		return true
	}
	c.mu.RLock()
	open := len(c.Subscriptions) == 0
	c.mu.RUnlock()

	return open || c.IsSubscribed(symbol)
}

// UpdateLastPong updates the last pong time
func (c *Connection) UpdateLastPong() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPong = time.Now()
}

// GetLastPong returns the last pong time
func (c *Connection) GetLastPong() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPong
}

// Done is closed once the connection is closed
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close closes the connection; safe to call more than once
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}

// Enqueue queues a message for the write pump without blocking
func (c *Connection) Enqueue(data []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.Send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// SendJSON marshals v and queues it
func (c *Connection) SendJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Enqueue(data)
}

// SendError sends an error message to the connection
func (c *Connection) SendError(code string, message string) error {
	return c.SendJSON(ServerMessage{
		Type:    "error",
		Code:    code,
		Message: message,
	})
}
