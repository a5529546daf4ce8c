package rules

import (
	"sync"

	"github.com/mohamedkhairy/strategy-alerts/internal/models"
	"github.com/mohamedkhairy/strategy-alerts/pkg/logger"
)

// EvaluationContext carries the values operands resolve against
type EvaluationContext struct {
	Price      map[string]float64 // open, high, low, close
	Indicators map[string]float64 // snapshot mapping
}

// crossState remembers the last left-hand value per operand key for one strategy
type crossState struct {
	mu   sync.Mutex
	last map[string]float64
}

// ConfluenceEngine evaluates strategy conditions against an evaluation context.
// Cross detection state is kept per strategy ID; evaluations of the same
// strategy are serialized.
type ConfluenceEngine struct {
	mu     sync.Mutex
	states map[int64]*crossState
}

// NewConfluenceEngine creates a new confluence engine
func NewConfluenceEngine() *ConfluenceEngine {
	return &ConfluenceEngine{
		states: make(map[int64]*crossState),
	}
}

// Process evaluates every condition of the strategy and combines them with its logic gate.
// All conditions are evaluated so cross state advances for each of them.
func (e *ConfluenceEngine) Process(strategy *models.Strategy, ctx EvaluationContext) bool {
	if strategy == nil {
		return false
	}

	state := e.state(strategy.ID)
	state.mu.Lock()
	defer state.mu.Unlock()

	results := make([]bool, len(strategy.Conditions))
	for i, cond := range strategy.Conditions {
		results[i] = evaluateCondition(state, cond, ctx)
	}

	switch strategy.Logic {
	case models.LogicAny:
		return anyTrue(results)
	case models.LogicAll:
		return allTrue(results)
	case models.LogicSequence:
		// TODO: ordered satisfaction across candles is undecided; SEQUENCE behaves as ALL until then
		return allTrue(results)
	default:
		logger.Debug("Unknown logic gate, evaluating as ALL",
			logger.Int64("strategy_id", strategy.ID),
			logger.String("logic", strategy.Logic),
		)
		return allTrue(results)
	}
}

// Reset wipes cross state for all strategies
func (e *ConfluenceEngine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.states = make(map[int64]*crossState)
}

// Forget drops the cross state of a single strategy
func (e *ConfluenceEngine) Forget(strategyID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.states, strategyID)
}

func (e *ConfluenceEngine) state(strategyID int64) *crossState {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.states[strategyID]
	if !ok {
		st = &crossState{last: make(map[string]float64)}
		e.states[strategyID] = st
	}
	return st
}

func evaluateCondition(state *crossState, cond models.Condition, ctx EvaluationContext) bool {
	left, okLeft := resolveOperand(cond.Left, ctx)
	right, okRight := resolveOperand(cond.Right, ctx)
	if !okLeft || !okRight {
		return false
	}

	switch cond.Operator {
	case models.OperatorGT:
		return left > right
	case models.OperatorLT:
		return left < right
	case models.OperatorGTE:
		return left >= right
	case models.OperatorLTE:
		return left <= right
	case models.OperatorEQ:
		return left == right
	case models.OperatorNEQ:
		return left != right
	case models.OperatorCrossesAbove:
		prev, had := state.swap(cond.Left.Key(), left)
		return had && prev <= right && left > right
	case models.OperatorCrossesBelow:
		prev, had := state.swap(cond.Left.Key(), left)
		return had && prev >= right && left < right
	default:
		return false
	}
}

// swap stores current under key and returns the value it replaced
func (s *crossState) swap(key string, current float64) (float64, bool) {
	prev, had := s.last[key]
	s.last[key] = current
	return prev, had
}

func resolveOperand(op models.Operand, ctx EvaluationContext) (float64, bool) {
	switch op.Source {
	case models.SourceNumber:
		if op.Value == nil {
			return 0, false
		}
		return *op.Value, true
	case models.SourcePrice:
		if op.Path == "" {
			return 0, false
		}
		v, ok := ctx.Price[op.Path]
		return v, ok
	case models.SourceIndicator:
		if op.Path == "" {
			return 0, false
		}
		v, ok := ctx.Indicators[op.Path]
		return v, ok
	default:
		return 0, false
	}
}

func allTrue(results []bool) bool {
	for _, r := range results {
		if !r {
			return false
		}
	}
	return true
}

func anyTrue(results []bool) bool {
	for _, r := range results {
		if r {
			return true
		}
	}
	return false
}
