package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mohamedkhairy/strategy-alerts/internal/models"
	"github.com/mohamedkhairy/strategy-alerts/pkg/logger"
)

// PostgresAlertStorage implements AlertStorage on Postgres
type PostgresAlertStorage struct {
	db *sql.DB
}

// NewPostgresAlertStorage wraps an open database handle
func NewPostgresAlertStorage(db *sql.DB) *PostgresAlertStorage {
	return &PostgresAlertStorage{db: db}
}

// Create inserts an alert; the database assigns id and triggered_at
func (s *PostgresAlertStorage) Create(ctx context.Context, payload *models.AlertCreate) (*models.Alert, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: payload cannot be nil", models.ErrInvalidAlert)
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	snapshot := payload.IndicatorSnapshot
	if snapshot == nil {
		snapshot = map[string]float64{}
	}
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal indicator snapshot: %w", err)
	}

	query := `
		INSERT INTO alerts (strategy_id, symbol, timeframe, price, indicator_snapshot, telegram_message_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, triggered_at
	`

	start := time.Now()
	var id int64
	var triggeredAt time.Time
	err = s.db.QueryRowContext(ctx, query,
		payload.StrategyID,
		payload.Symbol,
		payload.Timeframe,
		payload.Price,
		snapshotJSON,
		nullString(payload.TelegramMessageID),
	).Scan(&id, &triggeredAt)
	ObserveQuery("alert_create", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to insert alert: %w", err)
	}

	return payload.ToAlert(id, triggeredAt.UTC()), nil
}

// List retrieves alerts with filtering options, newest first
func (s *PostgresAlertStorage) List(ctx context.Context, filter AlertFilter) ([]*models.Alert, error) {
	query := `
		SELECT id, strategy_id, symbol, timeframe, price, indicator_snapshot, triggered_at, telegram_message_id
		FROM alerts
		WHERE 1=1
	`
	args := []interface{}{}
	argIndex := 1

	if filter.StrategyID != 0 {
		query += fmt.Sprintf(" AND strategy_id = $%d", argIndex)
		args = append(args, filter.StrategyID)
		argIndex++
	}

	if filter.Symbol != "" {
		query += fmt.Sprintf(" AND symbol = $%d", argIndex)
		args = append(args, filter.Symbol)
		argIndex++
	}

	query += " ORDER BY triggered_at DESC, id DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filter.Limit)
	}

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	ObserveQuery("alert_list", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]*models.Alert, 0)
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return alerts, nil
}

// Get retrieves a single alert by ID
func (s *PostgresAlertStorage) Get(ctx context.Context, id int64) (*models.Alert, error) {
	query := `
		SELECT id, strategy_id, symbol, timeframe, price, indicator_snapshot, triggered_at, telegram_message_id
		FROM alerts
		WHERE id = $1
	`

	start := time.Now()
	alert, err := scanAlert(s.db.QueryRowContext(ctx, query, id))
	ObserveQuery("alert_get", start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", models.ErrAlertNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return alert, nil
}

// Close closes the database connection
func (s *PostgresAlertStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var alert models.Alert
	var snapshotJSON []byte
	var msgID sql.NullString

	if err := row.Scan(
		&alert.ID,
		&alert.StrategyID,
		&alert.Symbol,
		&alert.Timeframe,
		&alert.Price,
		&snapshotJSON,
		&alert.TriggeredAt,
		&msgID,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}

	alert.IndicatorSnapshot = map[string]float64{}
	if len(snapshotJSON) > 0 {
		if err := json.Unmarshal(snapshotJSON, &alert.IndicatorSnapshot); err != nil {
			logger.Warn("Failed to unmarshal indicator snapshot",
				logger.ErrorField(err),
				logger.Int64("alert_id", alert.ID),
			)
		}
	}
	if msgID.Valid {
		v := msgID.String
		alert.TelegramMessageID = &v
	}

	return &alert, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
