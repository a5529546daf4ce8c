package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/strategy-alerts/internal/models"
)

var alertColumns = []string{"id", "strategy_id", "symbol", "timeframe", "price", "indicator_snapshot", "triggered_at", "telegram_message_id"}

func TestPostgresAlertStorage_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	triggered := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO alerts")).
		WithArgs(int64(7), "EURUSD", "M1", 1.2345, sqlmock.AnyArg(), nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "triggered_at"}).AddRow(int64(42), triggered))

	s := NewPostgresAlertStorage(db)
	alert, err := s.Create(context.Background(), alertPayload(7, "EURUSD"))
	require.NoError(t, err)

	assert.Equal(t, int64(42), alert.ID)
	assert.Equal(t, int64(7), alert.StrategyID)
	assert.Equal(t, triggered, alert.TriggeredAt)
	assert.Nil(t, alert.TelegramMessageID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAlertStorage_CreateValidates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	bad := alertPayload(7, "")
	_, err = NewPostgresAlertStorage(db).Create(context.Background(), bad)
	assert.True(t, errors.Is(err, models.ErrInvalidAlert))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAlertStorage_ListWithFilter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(alertColumns).
		AddRow(int64(2), int64(7), "EURUSD", "M1", 1.3, []byte(`{"rsi.close.14":71.5}`), at.Add(time.Minute), "99").
		AddRow(int64(1), int64(7), "EURUSD", "M1", 1.2, []byte(`{}`), at, nil)

	mock.ExpectQuery(regexp.QuoteMeta("AND strategy_id = $1 AND symbol = $2 ORDER BY triggered_at DESC, id DESC LIMIT $3")).
		WithArgs(int64(7), "EURUSD", 10).
		WillReturnRows(rows)

	s := NewPostgresAlertStorage(db)
	alerts, err := s.List(context.Background(), AlertFilter{StrategyID: 7, Symbol: "EURUSD", Limit: 10})
	require.NoError(t, err)
	require.Len(t, alerts, 2)

	assert.Equal(t, int64(2), alerts[0].ID)
	assert.Equal(t, 71.5, alerts[0].IndicatorSnapshot["rsi.close.14"])
	require.NotNil(t, alerts[0].TelegramMessageID)
	assert.Equal(t, "99", *alerts[0].TelegramMessageID)
	assert.Nil(t, alerts[1].TelegramMessageID)
	assert.Empty(t, alerts[1].IndicatorSnapshot)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAlertStorage_GetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM alerts")).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(alertColumns))

	_, err = NewPostgresAlertStorage(db).Get(context.Background(), 5)
	assert.True(t, errors.Is(err, models.ErrAlertNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAlertStorage_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(alertColumns).
			AddRow(int64(3), int64(1), "GBPUSD", "M5", 1.27, []byte(`{"macd.line":0.01}`), at, nil))

	alert, err := NewPostgresAlertStorage(db).Get(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "GBPUSD", alert.Symbol)
	assert.Equal(t, "M5", alert.Timeframe)
	assert.Equal(t, 0.01, alert.IndicatorSnapshot["macd.line"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS strategies")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertFilter_Matches(t *testing.T) {
	a := &models.Alert{StrategyID: 3, Symbol: "EURUSD"}
	assert.True(t, AlertFilter{}.Matches(a))
	assert.True(t, AlertFilter{StrategyID: 3, Symbol: "EURUSD"}.Matches(a))
	assert.False(t, AlertFilter{StrategyID: 4}.Matches(a))
	assert.False(t, AlertFilter{Symbol: "GBPUSD"}.Matches(a))
}
