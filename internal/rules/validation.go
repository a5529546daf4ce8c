package rules

import (
	"fmt"
	"strings"

	"github.com/mohamedkhairy/strategy-alerts/internal/models"
	"github.com/mohamedkhairy/strategy-alerts/pkg/indicator"
)

var priceFields = map[string]bool{
	"open":  true,
	"high":  true,
	"low":   true,
	"close": true,
}

var indicatorNames = func() map[string]bool {
	m := make(map[string]bool)
	for _, name := range indicator.Names() {
		m[name] = true
	}
	return m
}()

// ValidateStrategy validates a strategy with registry-level checks on top of
// the model validation: operand paths must name a known price field or indicator
// and symbols must not be blank.
func ValidateStrategy(s *models.Strategy) error {
	if s == nil {
		return fmt.Errorf("%w: strategy cannot be nil", models.ErrInvalidStrategy)
	}
	if err := s.Validate(); err != nil {
		return err
	}

	for i, sym := range s.Symbols {
		if strings.TrimSpace(sym) == "" {
			return fmt.Errorf("%w: symbol %d is blank", models.ErrInvalidSymbol, i)
		}
	}

	for i, cond := range s.Conditions {
		if err := ValidateOperand(cond.Left); err != nil {
			return fmt.Errorf("condition %d left: %w", i, err)
		}
		if err := ValidateOperand(cond.Right); err != nil {
			return fmt.Errorf("condition %d right: %w", i, err)
		}
	}

	return nil
}

// ValidateOperand checks that an operand's path is resolvable
func ValidateOperand(op models.Operand) error {
	switch op.Source {
	case models.SourcePrice:
		if !priceFields[op.Path] {
			return fmt.Errorf("%w: unknown price field %q", models.ErrInvalidOperand, op.Path)
		}
	case models.SourceIndicator:
		if !indicatorNames[op.Path] {
			return fmt.Errorf("%w: unknown indicator %q", models.ErrInvalidOperand, op.Path)
		}
	}
	return nil
}
