// Package notification delivers triggered alerts to external channels.
package notification

import (
	"context"
	"fmt"

	"github.com/mohamedkhairy/strategy-alerts/internal/models"
	"github.com/mohamedkhairy/strategy-alerts/pkg/logger"
)

// Notifier is implemented by every delivery backend
type Notifier interface {
	// Name labels the backend in logs and metrics
	Name() string

	// Send delivers one alert
	Send(ctx context.Context, alert *models.Alert) error
}

// MultiRecipientNotifier delivers each alert to several independent recipients.
// The dispatcher retries recipients one by one, so a retry never repeats a delivered message.
type MultiRecipientNotifier interface {
	Notifier

	// Recipients lists the delivery targets
	Recipients() []string

	// SendTo delivers one alert to one recipient
	SendTo(ctx context.Context, alert *models.Alert, recipient string) error
}

// FormatMessage renders the human readable alert text
func FormatMessage(alert *models.Alert) string {
	return fmt.Sprintf("Strategy #%d triggered\nSymbol: %s (%s)\nPrice: %.2f",
		alert.StrategyID, alert.Symbol, alert.Timeframe, alert.Price)
}

// LogNotifier writes alerts to the application log
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Send(ctx context.Context, alert *models.Alert) error {
	logger.Info("Alert notification",
		logger.Int64("alert_id", alert.ID),
		logger.String("message", FormatMessage(alert)),
	)
	return nil
}
