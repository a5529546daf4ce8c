package models

import "errors"

var (
	ErrInvalidSymbol     = errors.New("invalid symbol")
	ErrInvalidTimeframe  = errors.New("invalid timeframe")
	ErrInvalidPrice      = errors.New("invalid price")
	ErrInvalidTimestamp  = errors.New("invalid timestamp")
	ErrInvalidVolume     = errors.New("invalid volume")
	ErrInvalidCandle     = errors.New("invalid candle")
	ErrInvalidStrategy   = errors.New("invalid strategy")
	ErrInvalidStrategyID = errors.New("invalid strategy ID")
	ErrNoConditions      = errors.New("strategy must have at least one condition")
	ErrInvalidOperand    = errors.New("invalid operand")
	ErrInvalidOperator   = errors.New("invalid operator")
	ErrInvalidAlert      = errors.New("invalid alert")
	ErrStrategyNotFound  = errors.New("strategy not found")
	ErrAlertNotFound     = errors.New("alert not found")
)
