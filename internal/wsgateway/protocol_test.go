package wsgateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/strategy-alerts/internal/eventbus"
	"github.com/mohamedkhairy/strategy-alerts/internal/models"
)

func readServerMessage(t *testing.T, conn *Connection) map[string]interface{} {
	t.Helper()
	select {
	case data := <-conn.Send:
		var msg map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	default:
		t.Fatal("Expected a queued message")
		return nil
	}
}

func TestHandleClientMessage_Subscribe(t *testing.T) {
	conn := NewConnection("conn-1", "trader-1", nil)

	require.NoError(t, conn.HandleClientMessage(&ClientMessage{Type: "subscribe", Symbol: "EURUSD"}))
	assert.True(t, conn.IsSubscribed("EURUSD"))
	msg := readServerMessage(t, conn)
	assert.Equal(t, "success", msg["type"])

	require.NoError(t, conn.HandleClientMessage(&ClientMessage{Type: "subscribe", Symbols: []string{"GBPUSD", "USDJPY"}}))
	assert.True(t, conn.IsSubscribed("GBPUSD"))
	assert.True(t, conn.IsSubscribed("USDJPY"))
	readServerMessage(t, conn)

	require.NoError(t, conn.HandleClientMessage(&ClientMessage{Type: "unsubscribe", Symbols: []string{"GBPUSD"}}))
	assert.False(t, conn.IsSubscribed("GBPUSD"))
	assert.True(t, conn.IsSubscribed("EURUSD"))
}

func TestHandleClientMessage_Errors(t *testing.T) {
	conn := NewConnection("conn-1", "trader-1", nil)

	require.NoError(t, conn.HandleClientMessage(&ClientMessage{Type: "subscribe"}))
	msg := readServerMessage(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "invalid_request", msg["code"])

	require.NoError(t, conn.HandleClientMessage(&ClientMessage{Type: "shout"}))
	msg = readServerMessage(t, conn)
	assert.Equal(t, "unknown_message_type", msg["code"])
}

func TestHandleClientMessage_Ping(t *testing.T) {
	conn := NewConnection("conn-1", "trader-1", nil)

	require.NoError(t, conn.HandleClientMessage(&ClientMessage{Type: "ping"}))
	assert.Equal(t, "pong", readServerMessage(t, conn)["type"])
}

func TestEncodeEvent_FlattensPayload(t *testing.T) {
	data, err := EncodeEvent(eventbus.Event{
		Type: eventbus.EventMarketTick,
		Payload: map[string]interface{}{
			"symbol":    "EURUSD",
			"timeframe": "M1",
			"price":     1.0845,
			"timestamp": "2024-01-02T09:30:00Z",
		},
	})
	require.NoError(t, err)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "market.tick", msg["type"])
	assert.Equal(t, "EURUSD", msg["symbol"])
	assert.Equal(t, 1.0845, msg["price"])
}

func TestEncodeEvent_TypeWinsOverPayload(t *testing.T) {
	data, err := EncodeEvent(eventbus.Event{
		Type:    eventbus.EventMarketTick,
		Payload: map[string]interface{}{"type": "spoofed"},
	})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"market.tick"`)
}

func TestEventSymbol(t *testing.T) {
	tick := eventbus.Event{Type: eventbus.EventMarketTick, Payload: map[string]interface{}{"symbol": "EURUSD"}}
	assert.Equal(t, "EURUSD", EventSymbol(tick))

	alert := eventbus.Event{Type: eventbus.EventAlertTriggered, Payload: map[string]interface{}{
		"alert": &models.Alert{ID: 1, Symbol: "GBPUSD", TriggeredAt: time.Now()},
	}}
	assert.Equal(t, "GBPUSD", EventSymbol(alert))

	assert.Equal(t, "", EventSymbol(eventbus.Event{Type: "other"}))
}
