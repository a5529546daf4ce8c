package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/strategy-alerts/internal/models"
)

func testAlert() *models.Alert {
	return &models.Alert{
		ID:          3,
		StrategyID:  7,
		Symbol:      "EURUSD",
		Timeframe:   "M1",
		Price:       1.23456,
		TriggeredAt: time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC),
	}
}

func TestFormatMessage(t *testing.T) {
	assert.Equal(t, "Strategy #7 triggered\nSymbol: EURUSD (M1)\nPrice: 1.23", FormatMessage(testAlert()))
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier()
	assert.Equal(t, "log", n.Name())
	assert.NoError(t, n.Send(context.Background(), testAlert()))
}

type telegramRequest struct {
	Path   string
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

func TestTelegramNotifier_SendsToEveryChat(t *testing.T) {
	var mu sync.Mutex
	var requests []telegramRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req telegramRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		req.Path = r.URL.Path
		mu.Lock()
		requests = append(requests, req)
		mu.Unlock()
		w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	}))
	defer server.Close()

	n := NewTelegramNotifier("TOKEN", []int64{100, -200}, server.URL+"/", time.Second)
	require.True(t, n.Configured())
	require.NoError(t, n.Send(context.Background(), testAlert()))

	require.Len(t, requests, 2)
	assert.Equal(t, "/botTOKEN/sendMessage", requests[0].Path)
	assert.Equal(t, int64(100), requests[0].ChatID)
	assert.Equal(t, int64(-200), requests[1].ChatID)
	assert.Equal(t, FormatMessage(testAlert()), requests[1].Text)
}

func TestTelegramNotifier_UnconfiguredSkips(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	n := NewTelegramNotifier("", []int64{1}, server.URL, time.Second)
	assert.False(t, n.Configured())
	assert.NoError(t, n.Send(context.Background(), testAlert()))

	n = NewTelegramNotifier("TOKEN", nil, server.URL, time.Second)
	assert.False(t, n.Configured())
	assert.NoError(t, n.Send(context.Background(), testAlert()))

	assert.False(t, called)
}

func TestTelegramNotifier_ReportsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer server.Close()

	n := NewTelegramNotifier("TOKEN", []int64{42}, server.URL, time.Second)
	err := n.Send(context.Background(), testAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "42")
}

func TestWebhookNotifier(t *testing.T) {
	var got webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL, time.Second)
	require.NoError(t, n.Send(context.Background(), testAlert()))
	assert.Equal(t, FormatMessage(testAlert()), got.Message)
	require.NotNil(t, got.Alert)
	assert.Equal(t, int64(7), got.Alert.StrategyID)
	assert.NotEmpty(t, got.SentAt)
}

func TestWebhookNotifier_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	assert.Error(t, NewWebhookNotifier(server.URL, time.Second).Send(context.Background(), testAlert()))
}

func TestTelegramNotifier_SendTo(t *testing.T) {
	var got []int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req telegramRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		got = append(got, req.ChatID)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	n := NewTelegramNotifier("TOKEN", []int64{100, -200}, server.URL, time.Second)
	assert.Equal(t, []string{"100", "-200"}, n.Recipients())

	require.NoError(t, n.SendTo(context.Background(), testAlert(), "-200"))
	assert.Equal(t, []int64{-200}, got)

	assert.Error(t, n.SendTo(context.Background(), testAlert(), "not-a-chat"))
}
