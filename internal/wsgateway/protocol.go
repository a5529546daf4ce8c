package wsgateway

import (
	"encoding/json"
	"fmt"

	"github.com/mohamedkhairy/strategy-alerts/internal/eventbus"
	"github.com/mohamedkhairy/strategy-alerts/internal/models"
	"github.com/mohamedkhairy/strategy-alerts/pkg/logger"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypePing        MessageType = "ping"
	MessageTypePong        MessageType = "pong"
)

// ClientMessage represents a message from the client
type ClientMessage struct {
	Type    string   `json:"type"`
	Symbol  string   `json:"symbol,omitempty"`
	Symbols []string `json:"symbols,omitempty"`
}

// ServerMessage represents a control message to the client
type ServerMessage struct {
	Type    string      `json:"type"`
	Data    interface{} `json:"data,omitempty"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
}

func (m *ClientMessage) symbols() []string {
	if m.Symbol != "" {
		return []string{m.Symbol}
	}
	return m.Symbols
}

// HandleClientMessage handles a message from the client
func (c *Connection) HandleClientMessage(msg *ClientMessage) error {
	switch MessageType(msg.Type) {
	case MessageTypeSubscribe:
		symbols := msg.symbols()
		if len(symbols) == 0 {
			return c.SendError("invalid_request", "symbol or symbols field required")
		}
		for _, symbol := range symbols {
			c.Subscribe(symbol)
		}
		logger.Debug("Client subscribed to symbols",
			logger.String("connection_id", c.ID),
			logger.String("subject", c.Subject),
			logger.Int("count", len(symbols)),
		)
		return c.SendSuccess("subscribed", map[string]interface{}{"symbols": symbols})

	case MessageTypeUnsubscribe:
		symbols := msg.symbols()
		if len(symbols) == 0 {
			return c.SendError("invalid_request", "symbol or symbols field required")
		}
		for _, symbol := range symbols {
			c.Unsubscribe(symbol)
		}
		logger.Debug("Client unsubscribed from symbols",
			logger.String("connection_id", c.ID),
			logger.String("subject", c.Subject),
			logger.Int("count", len(symbols)),
		)
		return c.SendSuccess("unsubscribed", map[string]interface{}{"symbols": symbols})

	case MessageTypePing:
		return c.SendPong()

	default:
		return c.SendError("unknown_message_type", fmt.Sprintf("unknown message type: %s", msg.Type))
	}
}

// SendSuccess sends a success message to the client
func (c *Connection) SendSuccess(action string, data interface{}) error {
	return c.SendJSON(ServerMessage{
		Type: "success",
		Data: map[string]interface{}{
			"action": action,
			"data":   data,
		},
	})
}

// SendPong sends a pong message to the client
func (c *Connection) SendPong() error {
	return c.SendJSON(ServerMessage{Type: string(MessageTypePong)})
}

// EncodeEvent flattens a bus event into {"type": <event type>, ...payload}
func EncodeEvent(event eventbus.Event) ([]byte, error) {
	message := make(map[string]interface{}, len(event.Payload)+1)
	for k, v := range event.Payload {
		message[k] = v
	}
	message["type"] = event.Type

	data, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", event.Type, err)
	}
	return data, nil
}

// EventSymbol returns the symbol an event concerns, or "" when it has none
func EventSymbol(event eventbus.Event) string {
	if symbol, ok := event.Payload["symbol"].(string); ok {
		return symbol
	}
	if alert, ok := event.Payload["alert"].(*models.Alert); ok && alert != nil {
		return alert.Symbol
	}
	return ""
}
