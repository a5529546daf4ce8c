package wsgateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mohamedkhairy/strategy-alerts/internal/auth"
	"github.com/mohamedkhairy/strategy-alerts/internal/config"
	"github.com/mohamedkhairy/strategy-alerts/internal/eventbus"
	"github.com/mohamedkhairy/strategy-alerts/pkg/logger"
)

const maxClientMessageSize = 4096

// Hub manages WebSocket connections and broadcasts bus events to them
type Hub struct {
	config    config.WSGatewayConfig
	registry  *ConnectionRegistry
	bus       *eventbus.Bus
	validator *auth.TokenValidator
	upgrader  websocket.Upgrader
	subs      map[string]eventbus.SubscriptionID
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool
	statsMu   sync.RWMutex
	stats     HubStats
}

// HubStats holds statistics about the hub
type HubStats struct {
	ConnectionsTotal  int64
	ConnectionsActive int64
	EventsReceived    int64
	MessagesSent      int64
	MessagesDropped   int64
	LastEventTime     time.Time
}

// NewHub creates a new WebSocket hub fed by bus
func NewHub(cfg config.WSGatewayConfig, bus *eventbus.Bus, validator *auth.TokenValidator) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if validator == nil {
		validator = auth.NewTokenValidator("")
	}
	return &Hub{
		config:    cfg,
		registry:  NewConnectionRegistry(),
		bus:       bus,
		validator: validator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		subs:   make(map[string]eventbus.SubscriptionID),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes the hub to market ticks and triggered alerts
func (h *Hub) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return nil
	}
	h.running = true

	for _, eventType := range []string{eventbus.EventMarketTick, eventbus.EventAlertTriggered} {
		h.subs[eventType] = h.bus.Subscribe(eventType, h.HandleEvent)
	}

	logger.Info("Starting WebSocket hub",
		logger.Int("max_connections", h.config.MaxConnections),
		logger.Bool("auth_enabled", h.validator.Enabled()),
	)

	h.wg.Add(1)
	go h.monitorConnections()

	return nil
}

// Stop unsubscribes from the bus and closes every connection
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	for eventType, id := range h.subs {
		h.bus.Unsubscribe(eventType, id)
		delete(h.subs, eventType)
	}
	h.mu.Unlock()

	logger.Info("Stopping WebSocket hub")
	h.cancel()
	for _, conn := range h.registry.GetAll() {
		h.Unregister(conn)
	}
	h.wg.Wait()
	logger.Info("WebSocket hub stopped")
}

// ServeHTTP authenticates and upgrades a client connection
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.IsRunning() {
		http.Error(w, "WebSocket hub is not running", http.StatusServiceUnavailable)
		return
	}
	if h.config.MaxConnections > 0 && h.registry.Count() >= h.config.MaxConnections {
		logger.Warn("Max connections reached, rejecting new connection",
			logger.Int("max_connections", h.config.MaxConnections),
		)
		http.Error(w, "Max connections reached", http.StatusServiceUnavailable)
		return
	}

	var token string
	if h.validator.Enabled() {
		header := r.Header.Get("Authorization")
		if header == "" {
			header = r.URL.Query().Get("token")
		}
		var err error
		token, err = auth.TokenFromHeader(header)
		if err != nil {
			http.Error(w, "Missing authentication token", http.StatusUnauthorized)
			return
		}
	}
	subject, err := h.validator.Validate(token)
	if err != nil {
		logger.Warn("Invalid token, rejecting connection", logger.ErrorField(err))
		http.Error(w, "Invalid authentication token", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Failed to upgrade connection", logger.ErrorField(err))
		return
	}

	conn := NewConnection(uuid.New().String(), subject, ws)
	h.Register(conn)

	logger.Info("WebSocket connection established",
		logger.String("connection_id", conn.ID),
		logger.String("subject", subject),
		logger.String("remote_addr", r.RemoteAddr),
		logger.Int("subject_connections", h.registry.CountBySubject(subject)),
	)
}

// Register registers a new connection and starts its pumps
func (h *Hub) Register(conn *Connection) {
	h.registry.Add(conn)
	logger.WebsocketConnections.Inc()

	h.statsMu.Lock()
	h.stats.ConnectionsTotal++
	h.statsMu.Unlock()

	h.wg.Add(2)
	go h.writePump(conn)
	go h.readPump(conn)
}

// Unregister removes and closes a connection; safe to call more than once
func (h *Hub) Unregister(conn *Connection) {
	if !h.registry.Remove(conn.ID) {
		return
	}
	logger.WebsocketConnections.Dec()
	conn.Close()

	logger.Info("Connection unregistered",
		logger.String("connection_id", conn.ID),
		logger.String("subject", conn.Subject),
		logger.Int("total_connections", h.registry.Count()),
	)
}

// HandleEvent is the bus handler broadcasting an event to interested connections.
// Slow clients lose messages; that is not reported as a handler failure.
func (h *Hub) HandleEvent(ctx context.Context, event eventbus.Event) error {
	data, err := EncodeEvent(event)
	if err != nil {
		return err
	}
	symbol := EventSymbol(event)

	sent, dropped := 0, 0
	for _, conn := range h.registry.GetAll() {
		if !conn.ShouldReceive(symbol) {
			continue
		}
		if err := conn.Enqueue(data); err != nil {
			dropped++
			logger.Debug("Dropped event for connection",
				logger.ErrorField(err),
				logger.String("connection_id", conn.ID),
				logger.String("event_type", event.Type),
			)
			continue
		}
		sent++
	}

	h.statsMu.Lock()
	h.stats.EventsReceived++
	h.stats.MessagesSent += int64(sent)
	h.stats.MessagesDropped += int64(dropped)
	h.stats.LastEventTime = time.Now()
	h.statsMu.Unlock()
	if dropped > 0 {
		logger.WebsocketMessagesDropped.Add(float64(dropped))
	}

	return nil
}

// writePump pumps messages from the hub to the WebSocket connection
func (h *Hub) writePump(conn *Connection) {
	defer h.wg.Done()
	defer h.Unregister(conn)

	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-conn.Done():
			conn.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads client control messages until the connection fails
func (h *Hub) readPump(conn *Connection) {
	defer h.wg.Done()
	defer h.Unregister(conn)

	conn.Conn.SetReadLimit(maxClientMessageSize)
	conn.Conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.UpdateLastPong()
		conn.Conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("WebSocket error",
					logger.ErrorField(err),
					logger.String("connection_id", conn.ID),
				)
			}
			return
		}
		conn.Conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))

		var clientMsg ClientMessage
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			conn.SendError("invalid_message", "failed to parse message")
			continue
		}

		if err := conn.HandleClientMessage(&clientMsg); err != nil {
			logger.Debug("Failed to handle client message",
				logger.ErrorField(err),
				logger.String("connection_id", conn.ID),
			)
		}
	}
}

// monitorConnections removes connections that stopped answering pings
func (h *Hub) monitorConnections() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case <-ticker.C:
			now := time.Now()
			staleThreshold := h.config.ReadTimeout * 2

			for _, conn := range h.registry.GetAll() {
				lastPong := conn.GetLastPong()
				if now.Sub(lastPong) > staleThreshold {
					logger.Info("Removing stale connection",
						logger.String("connection_id", conn.ID),
						logger.String("subject", conn.Subject),
						logger.Duration("idle_time", now.Sub(lastPong)),
					)
					h.Unregister(conn)
				}
			}
		}
	}
}

// IsRunning reports whether the hub accepts connections
func (h *Hub) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// ConnectionCount returns the number of open connections
func (h *Hub) ConnectionCount() int {
	return h.registry.Count()
}

// GetStats returns hub statistics
func (h *Hub) GetStats() HubStats {
	h.statsMu.RLock()
	defer h.statsMu.RUnlock()

	stats := h.stats
	stats.ConnectionsActive = int64(h.registry.Count())
	return stats
}
