package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mohamedkhairy/strategy-alerts/internal/models"
	"github.com/mohamedkhairy/strategy-alerts/internal/storage"
)

// DatabaseStrategyStore is a Postgres-backed implementation of StrategyStore
type DatabaseStrategyStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewDatabaseStrategyStore wraps an open database handle
func NewDatabaseStrategyStore(db *sql.DB) *DatabaseStrategyStore {
	return &DatabaseStrategyStore{db: db, now: time.Now}
}

const strategyColumns = `id, name, logic, conditions, symbols, timeframe, is_active, created_at, updated_at`

// Create inserts a new strategy; the database assigns the ID
func (s *DatabaseStrategyStore) Create(ctx context.Context, payload *models.StrategyCreate) (*models.Strategy, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: payload cannot be nil", models.ErrInvalidStrategy)
	}

	strategy := payload.ToStrategy(s.now().UTC())
	if err := ValidateStrategy(strategy); err != nil {
		return nil, fmt.Errorf("invalid strategy: %w", err)
	}

	conditionsJSON, symbolsJSON, err := marshalStrategyJSON(strategy)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO strategies (name, logic, conditions, symbols, timeframe, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	start := time.Now()
	err = s.db.QueryRowContext(ctx, query,
		strategy.Name,
		strategy.Logic,
		conditionsJSON,
		symbolsJSON,
		strategy.Timeframe,
		strategy.IsActive,
		strategy.CreatedAt,
		strategy.UpdatedAt,
	).Scan(&strategy.ID)
	storage.ObserveQuery("strategy_create", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to insert strategy: %w", err)
	}

	return strategy, nil
}

// Get retrieves a strategy by ID
func (s *DatabaseStrategyStore) Get(ctx context.Context, id int64) (*models.Strategy, error) {
	query := `SELECT ` + strategyColumns + ` FROM strategies WHERE id = $1`

	start := time.Now()
	strategy, err := scanStrategy(s.db.QueryRowContext(ctx, query, id))
	storage.ObserveQuery("strategy_get", start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", models.ErrStrategyNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	return strategy, nil
}

// List retrieves all strategies
func (s *DatabaseStrategyStore) List(ctx context.Context) ([]*models.Strategy, error) {
	query := `SELECT ` + strategyColumns + ` FROM strategies ORDER BY id`

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query)
	storage.ObserveQuery("strategy_list", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategies: %w", err)
	}
	defer rows.Close()

	strategies := make([]*models.Strategy, 0)
	for rows.Next() {
		strategy, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, strategy)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return strategies, nil
}

// Update applies a partial update to an existing strategy
func (s *DatabaseStrategyStore) Update(ctx context.Context, id int64, payload *models.StrategyUpdate) (*models.Strategy, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: payload cannot be nil", models.ErrInvalidStrategy)
	}

	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := payload.Apply(existing, s.now().UTC())
	if err := ValidateStrategy(updated); err != nil {
		return nil, fmt.Errorf("invalid strategy: %w", err)
	}

	conditionsJSON, symbolsJSON, err := marshalStrategyJSON(updated)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE strategies
		SET name = $2,
		    logic = $3,
		    conditions = $4,
		    symbols = $5,
		    timeframe = $6,
		    is_active = $7,
		    updated_at = $8
		WHERE id = $1
	`

	start := time.Now()
	result, err := s.db.ExecContext(ctx, query,
		id,
		updated.Name,
		updated.Logic,
		conditionsJSON,
		symbolsJSON,
		updated.Timeframe,
		updated.IsActive,
		updated.UpdatedAt,
	)
	storage.ObserveQuery("strategy_update", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to update strategy: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("%w: %d", models.ErrStrategyNotFound, id)
	}

	return updated, nil
}

// Delete deletes a strategy by ID
func (s *DatabaseStrategyStore) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM strategies WHERE id = $1`

	start := time.Now()
	result, err := s.db.ExecContext(ctx, query, id)
	storage.ObserveQuery("strategy_delete", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete strategy: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: %d", models.ErrStrategyNotFound, id)
	}

	return nil
}

// Close closes the database connection
func (s *DatabaseStrategyStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStrategy(row rowScanner) (*models.Strategy, error) {
	var strategy models.Strategy
	var conditionsJSON, symbolsJSON []byte

	if err := row.Scan(
		&strategy.ID,
		&strategy.Name,
		&strategy.Logic,
		&conditionsJSON,
		&symbolsJSON,
		&strategy.Timeframe,
		&strategy.IsActive,
		&strategy.CreatedAt,
		&strategy.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan strategy: %w", err)
	}

	if err := json.Unmarshal(conditionsJSON, &strategy.Conditions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conditions: %w", err)
	}
	if err := json.Unmarshal(symbolsJSON, &strategy.Symbols); err != nil {
		return nil, fmt.Errorf("failed to unmarshal symbols: %w", err)
	}

	return &strategy, nil
}

func marshalStrategyJSON(strategy *models.Strategy) ([]byte, []byte, error) {
	conditionsJSON, err := json.Marshal(strategy.Conditions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal conditions: %w", err)
	}
	symbols := strategy.Symbols
	if symbols == nil {
		symbols = []string{}
	}
	symbolsJSON, err := json.Marshal(symbols)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal symbols: %w", err)
	}
	return conditionsJSON, symbolsJSON, nil
}
