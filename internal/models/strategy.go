package models

import (
	"fmt"
	"time"
)

// Logic gates combining a strategy's conditions
const (
	LogicAll      = "ALL"
	LogicAny      = "ANY"
	LogicSequence = "SEQUENCE"
)

// Condition operators
const (
	OperatorGT           = "gt"
	OperatorLT           = "lt"
	OperatorGTE          = "gte"
	OperatorLTE          = "lte"
	OperatorEQ           = "eq"
	OperatorNEQ          = "neq"
	OperatorCrossesAbove = "crosses_above"
	OperatorCrossesBelow = "crosses_below"
)

// Operand sources
const (
	SourceIndicator = "indicator"
	SourcePrice     = "price"
	SourceNumber    = "number"
)

// Supported strategy timeframes
var StrategyTimeframes = []string{"M1", "M5", "M15"}

// Operand is one side of a condition
type Operand struct {
	Source string   `json:"source" validate:"oneof=indicator price number"`
	Path   string   `json:"path,omitempty"`  // e.g. "ema.close.9" or "close"
	Value  *float64 `json:"value,omitempty"` // required when Source is "number"
}

// Key identifies the operand for cross-state tracking: its path, or its source tag if it has none
func (o Operand) Key() string {
	if o.Path != "" {
		return o.Path
	}
	return o.Source
}

// Condition is a single comparison between two operands
type Condition struct {
	Left     Operand `json:"left"`
	Operator string  `json:"operator" validate:"oneof=gt lt gte lte eq neq crosses_above crosses_below"`
	Right    Operand `json:"right"`
}

// Strategy is a user-defined set of conditions evaluated on every candle of its symbols
type Strategy struct {
	ID         int64       `json:"id"`
	Name       string      `json:"name"`
	Logic      string      `json:"logic"`
	Conditions []Condition `json:"conditions"`
	Symbols    []string    `json:"symbols"`
	Timeframe  string      `json:"timeframe"`
	IsActive   bool        `json:"is_active"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Clone returns a deep copy of the strategy
func (s *Strategy) Clone() *Strategy {
	if s == nil {
		return nil
	}
	out := *s
	out.Conditions = make([]Condition, len(s.Conditions))
	for i, c := range s.Conditions {
		out.Conditions[i] = Condition{
			Left:     c.Left.clone(),
			Operator: c.Operator,
			Right:    c.Right.clone(),
		}
	}
	out.Symbols = append([]string(nil), s.Symbols...)
	return &out
}

func (o Operand) clone() Operand {
	if o.Value != nil {
		v := *o.Value
		o.Value = &v
	}
	return o
}

// Validate validates a Strategy
func (s *Strategy) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidStrategy)
	}
	switch s.Logic {
	case LogicAll, LogicAny, LogicSequence:
	default:
		return fmt.Errorf("%w: unknown logic %q", ErrInvalidStrategy, s.Logic)
	}
	if !validTimeframe(s.Timeframe) {
		return fmt.Errorf("%w: %w %q", ErrInvalidStrategy, ErrInvalidTimeframe, s.Timeframe)
	}
	return validateConditions(s.Conditions)
}

func validateConditions(conditions []Condition) error {
	if len(conditions) == 0 {
		return ErrNoConditions
	}
	for i := range conditions {
		c := &conditions[i]
		if err := validateStruct(c, ErrInvalidOperator); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
		for _, op := range []Operand{c.Left, c.Right} {
			if err := op.validate(); err != nil {
				return fmt.Errorf("condition %d: %w", i, err)
			}
		}
	}
	return nil
}

func (o Operand) validate() error {
	switch o.Source {
	case SourceNumber:
		if o.Value == nil {
			return fmt.Errorf("%w: number operand requires a value", ErrInvalidOperand)
		}
	case SourceIndicator, SourcePrice:
		if o.Path == "" {
			return fmt.Errorf("%w: %s operand requires a path", ErrInvalidOperand, o.Source)
		}
	default:
		return fmt.Errorf("%w: unknown source %q", ErrInvalidOperand, o.Source)
	}
	return nil
}

func validTimeframe(tf string) bool {
	for _, allowed := range StrategyTimeframes {
		if tf == allowed {
			return true
		}
	}
	return false
}

// StrategyCreate is the payload for registering a new strategy
type StrategyCreate struct {
	Name       string      `json:"name"`
	Logic      string      `json:"logic,omitempty"`
	Conditions []Condition `json:"conditions"`
	Symbols    []string    `json:"symbols"`
	Timeframe  string      `json:"timeframe,omitempty"`
	IsActive   *bool       `json:"is_active,omitempty"`
}

// ToStrategy builds an unsaved Strategy, applying defaults (ALL, M1, active, indicator operands)
func (p *StrategyCreate) ToStrategy(now time.Time) *Strategy {
	s := &Strategy{
		Name:       p.Name,
		Logic:      p.Logic,
		Conditions: defaultSources(p.Conditions),
		Symbols:    append([]string{}, p.Symbols...),
		Timeframe:  p.Timeframe,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if s.Logic == "" {
		s.Logic = LogicAll
	}
	if s.Timeframe == "" {
		s.Timeframe = "M1"
	}
	if p.IsActive != nil {
		s.IsActive = *p.IsActive
	}
	return s
}

// StrategyUpdate is a partial update; nil fields are left untouched
type StrategyUpdate struct {
	Name       *string      `json:"name,omitempty"`
	Logic      *string      `json:"logic,omitempty"`
	Conditions *[]Condition `json:"conditions,omitempty"`
	Symbols    *[]string    `json:"symbols,omitempty"`
	Timeframe  *string      `json:"timeframe,omitempty"`
	IsActive   *bool        `json:"is_active,omitempty"`
}

// Apply returns a copy of s with the provided fields replaced
func (u *StrategyUpdate) Apply(s *Strategy, now time.Time) *Strategy {
	out := s.Clone()
	if u.Name != nil {
		out.Name = *u.Name
	}
	if u.Logic != nil {
		out.Logic = *u.Logic
	}
	if u.Conditions != nil {
		out.Conditions = defaultSources(*u.Conditions)
	}
	if u.Symbols != nil {
		out.Symbols = append([]string{}, (*u.Symbols)...)
	}
	if u.Timeframe != nil {
		out.Timeframe = *u.Timeframe
	}
	if u.IsActive != nil {
		out.IsActive = *u.IsActive
	}
	out.UpdatedAt = now
	return out
}

// defaultSources copies conditions, defaulting empty operand sources to "indicator"
func defaultSources(conditions []Condition) []Condition {
	out := make([]Condition, len(conditions))
	for i, c := range conditions {
		c.Left = c.Left.clone()
		c.Right = c.Right.clone()
		if c.Left.Source == "" {
			c.Left.Source = SourceIndicator
		}
		if c.Right.Source == "" {
			c.Right.Source = SourceIndicator
		}
		out[i] = c
	}
	return out
}
