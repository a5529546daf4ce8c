package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mohamedkhairy/strategy-alerts/internal/models"
	"github.com/mohamedkhairy/strategy-alerts/pkg/logger"
)

// DefaultTelegramBaseURL is the Bot API endpoint
const DefaultTelegramBaseURL = "https://api.telegram.org"

// TelegramNotifier sends alerts through the Telegram Bot API to every configured chat
type TelegramNotifier struct {
	token   string
	chatIDs []int64
	baseURL string
	client  *http.Client
}

// NewTelegramNotifier creates a Telegram notifier.
// An empty token or chat list leaves it unconfigured; Send then logs and skips.
func NewTelegramNotifier(token string, chatIDs []int64, baseURL string, timeout time.Duration) *TelegramNotifier {
	if baseURL == "" {
		baseURL = DefaultTelegramBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TelegramNotifier{
		token:   token,
		chatIDs: append([]int64(nil), chatIDs...),
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (t *TelegramNotifier) Name() string { return "telegram" }

// Configured reports whether a token and at least one chat are set
func (t *TelegramNotifier) Configured() bool {
	return t.token != "" && len(t.chatIDs) > 0
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Recipients returns the configured chat IDs
func (t *TelegramNotifier) Recipients() []string {
	out := make([]string, len(t.chatIDs))
	for i, id := range t.chatIDs {
		out[i] = strconv.FormatInt(id, 10)
	}
	return out
}

// SendTo delivers the alert to a single chat
func (t *TelegramNotifier) SendTo(ctx context.Context, alert *models.Alert, recipient string) error {
	chatID, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q: %w", recipient, err)
	}
	return t.sendMessage(ctx, chatID, FormatMessage(alert))
}

// Send delivers the alert to every chat once, without retries
func (t *TelegramNotifier) Send(ctx context.Context, alert *models.Alert) error {
	message := FormatMessage(alert)
	if !t.Configured() {
		logger.Warn("Telegram not configured, message skipped",
			logger.String("message", message),
		)
		return nil
	}

	var failed []string
	for _, chatID := range t.chatIDs {
		if err := t.sendMessage(ctx, chatID, message); err != nil {
			logger.Warn("Telegram delivery failed",
				logger.Int64("chat_id", chatID),
				logger.ErrorField(err),
			)
			failed = append(failed, strconv.FormatInt(chatID, 10))
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("telegram: delivery failed for chats %s", strings.Join(failed, ","))
	}
	return nil
}

func (t *TelegramNotifier) sendMessage(ctx context.Context, chatID int64, text string) error {
	body, err := json.Marshal(map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	var result telegramResponse
	_ = json.NewDecoder(resp.Body).Decode(&result)

	if resp.StatusCode != http.StatusOK || !result.OK {
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, result.Description)
	}
	return nil
}
