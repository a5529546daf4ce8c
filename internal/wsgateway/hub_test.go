package wsgateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/strategy-alerts/internal/auth"
	"github.com/mohamedkhairy/strategy-alerts/internal/config"
	"github.com/mohamedkhairy/strategy-alerts/internal/eventbus"
	"github.com/mohamedkhairy/strategy-alerts/internal/models"
)

func testConfig() config.WSGatewayConfig {
	return config.WSGatewayConfig{
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   5 * time.Second,
		PingInterval:   time.Second,
		MaxConnections: 10,
	}
}

type hubFixture struct {
	bus    *eventbus.Bus
	hub    *Hub
	server *httptest.Server
}

func newHubFixture(t *testing.T, cfg config.WSGatewayConfig, validator *auth.TokenValidator) *hubFixture {
	t.Helper()
	bus := eventbus.New(time.Second)
	hub := NewHub(cfg, bus, validator)
	require.NoError(t, hub.Start())
	server := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Stop()
		server.Close()
	})
	return &hubFixture{bus: bus, hub: hub, server: server}
}

func (f *hubFixture) dial(t *testing.T, query string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/events" + query
	return websocket.DefaultDialer.Dial(url, nil)
}

func (f *hubFixture) connect(t *testing.T) *websocket.Conn {
	t.Helper()
	before := f.hub.ConnectionCount()
	client, _, err := f.dial(t, "")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	require.Eventually(t, func() bool {
		return f.hub.ConnectionCount() == before+1
	}, 2*time.Second, 10*time.Millisecond)
	return client
}

func readJSON(t *testing.T, client *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]interface{}
	require.NoError(t, client.ReadJSON(&msg))
	return msg
}

func tick(symbol string, price float64) eventbus.Event {
	return eventbus.Event{
		Type: eventbus.EventMarketTick,
		Payload: map[string]interface{}{
			"symbol":    symbol,
			"timeframe": "M1",
			"price":     price,
			"timestamp": "2024-01-02T09:30:00Z",
		},
	}
}

func TestHub_BroadcastsMarketTicks(t *testing.T) {
	f := newHubFixture(t, testConfig(), nil)
	first := f.connect(t)
	second := f.connect(t)

	failures := f.bus.Publish(context.Background(), tick("EURUSD", 1.0845))
	assert.Equal(t, 0, failures)

	for _, client := range []*websocket.Conn{first, second} {
		msg := readJSON(t, client)
		assert.Equal(t, "market.tick", msg["type"])
		assert.Equal(t, "EURUSD", msg["symbol"])
		assert.Equal(t, 1.0845, msg["price"])
	}
}

func TestHub_BroadcastsAlerts(t *testing.T) {
	f := newHubFixture(t, testConfig(), nil)
	client := f.connect(t)

	alert := &models.Alert{ID: 3, StrategyID: 1, Symbol: "EURUSD", Timeframe: "M1", Price: 1.09, TriggeredAt: time.Now().UTC()}
	strategy := &models.Strategy{ID: 1, Name: "EMA trend", Logic: models.LogicAll, Symbols: []string{"EURUSD"}, Timeframe: "M1", IsActive: true}
	f.bus.Publish(context.Background(), eventbus.Event{
		Type:    eventbus.EventAlertTriggered,
		Payload: map[string]interface{}{"alert": alert, "strategy": strategy},
	})

	msg := readJSON(t, client)
	assert.Equal(t, "alert.triggered", msg["type"])
	alertJSON, ok := msg["alert"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(3), alertJSON["id"])
	strategyJSON, ok := msg["strategy"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "EMA trend", strategyJSON["name"])
}

func TestHub_SymbolSubscription(t *testing.T) {
	f := newHubFixture(t, testConfig(), nil)
	client := f.connect(t)

	require.NoError(t, client.WriteJSON(ClientMessage{Type: "subscribe", Symbol: "GBPUSD"}))
	ack := readJSON(t, client)
	require.Equal(t, "success", ack["type"])

	f.bus.Publish(context.Background(), tick("EURUSD", 1.08))
	f.bus.Publish(context.Background(), tick("GBPUSD", 1.27))

	msg := readJSON(t, client)
	assert.Equal(t, "GBPUSD", msg["symbol"])
}

func TestHub_InvalidClientMessage(t *testing.T) {
	f := newHubFixture(t, testConfig(), nil)
	client := f.connect(t)

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("not json")))
	msg := readJSON(t, client)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "invalid_message", msg["code"])
}

func TestHub_MaxConnections(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnections = 1
	f := newHubFixture(t, cfg, nil)
	f.connect(t)

	_, resp, err := f.dial(t, "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHub_RequiresTokenWhenEnabled(t *testing.T) {
	f := newHubFixture(t, testConfig(), auth.NewTokenValidator("secret"))

	_, resp, err := f.dial(t, "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = f.dial(t, "?token=garbage")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "trader-1"})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	client, _, err := f.dial(t, "?token="+signed)
	require.NoError(t, err)
	defer client.Close()
	require.Eventually(t, func() bool {
		return f.hub.registry.CountBySubject("trader-1") == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	f := newHubFixture(t, testConfig(), nil)
	client := f.connect(t)

	client.Close()

	require.Eventually(t, func() bool {
		return f.hub.ConnectionCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHub_StopClosesConnectionsAndUnsubscribes(t *testing.T) {
	f := newHubFixture(t, testConfig(), nil)
	client := f.connect(t)
	require.Equal(t, 1, f.bus.SubscriberCount(eventbus.EventMarketTick))

	f.hub.Stop()

	assert.Equal(t, 0, f.hub.ConnectionCount())
	assert.Equal(t, 0, f.bus.SubscriberCount(eventbus.EventMarketTick))
	assert.Equal(t, 0, f.bus.SubscriberCount(eventbus.EventAlertTriggered))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := client.ReadMessage()
	assert.Error(t, err)

	_, resp, err := f.dial(t, "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHub_StatsCountDeliveries(t *testing.T) {
	f := newHubFixture(t, testConfig(), nil)
	client := f.connect(t)

	f.bus.Publish(context.Background(), tick("EURUSD", 1.08))
	readJSON(t, client)

	stats := f.hub.GetStats()
	assert.Equal(t, int64(1), stats.ConnectionsTotal)
	assert.Equal(t, int64(1), stats.ConnectionsActive)
	assert.Equal(t, int64(1), stats.EventsReceived)
	assert.Equal(t, int64(1), stats.MessagesSent)

	raw, err := json.Marshal(stats)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "MessagesDropped")
}
