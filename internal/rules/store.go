package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mohamedkhairy/strategy-alerts/internal/models"
)

// StrategyStore is the strategy registry
type StrategyStore interface {
	// Create validates and persists a new strategy, assigning its ID
	Create(ctx context.Context, payload *models.StrategyCreate) (*models.Strategy, error)

	// Get retrieves a strategy by ID
	Get(ctx context.Context, id int64) (*models.Strategy, error)

	// List retrieves all strategies ordered by ID
	List(ctx context.Context) ([]*models.Strategy, error)

	// Update applies a partial update and returns the new version
	Update(ctx context.Context, id int64, payload *models.StrategyUpdate) (*models.Strategy, error)

	// Delete removes a strategy by ID
	Delete(ctx context.Context, id int64) error
}

// InMemoryStrategyStore is an in-memory implementation of StrategyStore
type InMemoryStrategyStore struct {
	mu         sync.RWMutex
	strategies map[int64]*models.Strategy
	nextID     int64
	now        func() time.Time
}

// NewInMemoryStrategyStore creates a new in-memory strategy store
func NewInMemoryStrategyStore() *InMemoryStrategyStore {
	return &InMemoryStrategyStore{
		strategies: make(map[int64]*models.Strategy),
		now:        time.Now,
	}
}

// Create adds a new strategy
func (s *InMemoryStrategyStore) Create(ctx context.Context, payload *models.StrategyCreate) (*models.Strategy, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: payload cannot be nil", models.ErrInvalidStrategy)
	}

	strategy := payload.ToStrategy(s.now().UTC())
	if err := ValidateStrategy(strategy); err != nil {
		return nil, fmt.Errorf("invalid strategy: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	strategy.ID = s.nextID
	s.strategies[strategy.ID] = strategy.Clone()

	return strategy, nil
}

// Get retrieves a strategy by ID
func (s *InMemoryStrategyStore) Get(ctx context.Context, id int64) (*models.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	strategy, exists := s.strategies[id]
	if !exists {
		return nil, fmt.Errorf("%w: %d", models.ErrStrategyNotFound, id)
	}

	// Return a copy to prevent external modifications
	return strategy.Clone(), nil
}

// List retrieves all strategies
func (s *InMemoryStrategyStore) List(ctx context.Context) ([]*models.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	strategies := make([]*models.Strategy, 0, len(s.strategies))
	for _, strategy := range s.strategies {
		strategies = append(strategies, strategy.Clone())
	}
	sortByID(strategies)

	return strategies, nil
}

// Update applies a partial update to an existing strategy
func (s *InMemoryStrategyStore) Update(ctx context.Context, id int64, payload *models.StrategyUpdate) (*models.Strategy, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: payload cannot be nil", models.ErrInvalidStrategy)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.strategies[id]
	if !exists {
		return nil, fmt.Errorf("%w: %d", models.ErrStrategyNotFound, id)
	}

	updated := payload.Apply(existing, s.now().UTC())
	if err := ValidateStrategy(updated); err != nil {
		return nil, fmt.Errorf("invalid strategy: %w", err)
	}

	s.strategies[id] = updated.Clone()
	return updated, nil
}

// Delete deletes a strategy by ID
func (s *InMemoryStrategyStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.strategies[id]; !exists {
		return fmt.Errorf("%w: %d", models.ErrStrategyNotFound, id)
	}

	delete(s.strategies, id)
	return nil
}

// Count returns the number of strategies in the store
func (s *InMemoryStrategyStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.strategies)
}

func sortByID(strategies []*models.Strategy) {
	sort.Slice(strategies, func(i, j int) bool {
		return strategies[i].ID < strategies[j].ID
	})
}
