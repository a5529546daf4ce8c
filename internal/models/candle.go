package models

import (
	"fmt"
	"time"
)

// Candle is one OHLCV bar for a series
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// CandleIn is the ingestion payload for a candle, as received from a transport
type CandleIn struct {
	Symbol    string    `json:"symbol" validate:"required"`
	Timeframe string    `json:"timeframe" validate:"required,timeframe"`
	Open      float64   `json:"open" validate:"gt=0"`
	High      float64   `json:"high" validate:"gt=0"`
	Low       float64   `json:"low" validate:"gt=0"`
	Close     float64   `json:"close" validate:"gt=0"`
	Volume    float64   `json:"volume" validate:"gte=0"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate validates a CandleIn
func (c *CandleIn) Validate() error {
	if err := validateStruct(c, ErrInvalidCandle); err != nil {
		return err
	}
	if c.Timestamp.IsZero() {
		return fmt.Errorf("%w: %v", ErrInvalidCandle, ErrInvalidTimestamp)
	}
	return nil
}

// Candle converts the payload into the bar consumed by the indicator engine
func (c *CandleIn) Candle() Candle {
	return Candle{
		Timestamp: c.Timestamp,
		Open:      c.Open,
		High:      c.High,
		Low:       c.Low,
		Close:     c.Close,
		Volume:    c.Volume,
	}
}

// PriceMapping returns the raw price fields addressable by "price" operands
func (c Candle) PriceMapping() map[string]float64 {
	return map[string]float64{
		"open":  c.Open,
		"high":  c.High,
		"low":   c.Low,
		"close": c.Close,
	}
}
