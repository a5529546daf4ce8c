package models

import "time"

// Alert is the record created when a strategy triggers
type Alert struct {
	ID                int64              `json:"id"`
	StrategyID        int64              `json:"strategy_id"`
	Symbol            string             `json:"symbol"`
	Timeframe         string             `json:"timeframe"`
	Price             float64            `json:"price"`
	IndicatorSnapshot map[string]float64 `json:"indicator_snapshot"`
	TriggeredAt       time.Time          `json:"triggered_at"`
	TelegramMessageID *string            `json:"telegram_message_id"`
}

// AlertCreate is the payload for recording an alert; the sink assigns ID and TriggeredAt
type AlertCreate struct {
	StrategyID        int64              `json:"strategy_id"`
	Symbol            string             `json:"symbol" validate:"required"`
	Timeframe         string             `json:"timeframe" validate:"required"`
	Price             float64            `json:"price" validate:"gt=0"`
	IndicatorSnapshot map[string]float64 `json:"indicator_snapshot"`
	TelegramMessageID *string            `json:"telegram_message_id,omitempty"`
}

// Validate validates an AlertCreate
func (a *AlertCreate) Validate() error {
	return validateStruct(a, ErrInvalidAlert)
}

// ToAlert builds the stored record
func (a *AlertCreate) ToAlert(id int64, triggeredAt time.Time) *Alert {
	snapshot := make(map[string]float64, len(a.IndicatorSnapshot))
	for k, v := range a.IndicatorSnapshot {
		snapshot[k] = v
	}
	var msgID *string
	if a.TelegramMessageID != nil {
		v := *a.TelegramMessageID
		msgID = &v
	}
	return &Alert{
		ID:                id,
		StrategyID:        a.StrategyID,
		Symbol:            a.Symbol,
		Timeframe:         a.Timeframe,
		Price:             a.Price,
		IndicatorSnapshot: snapshot,
		TriggeredAt:       triggeredAt,
		TelegramMessageID: msgID,
	}
}
