package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/mohamedkhairy/strategy-alerts/internal/models"
	"github.com/mohamedkhairy/strategy-alerts/internal/storage"
	"github.com/mohamedkhairy/strategy-alerts/pkg/logger"
)

// DefaultDedupeTTL is how long an idempotency key is remembered
const DefaultDedupeTTL = 10 * time.Minute

// Deduplicator handles alert deduplication using idempotency keys
type Deduplicator struct {
	redis storage.RedisClient
	ttl   time.Duration
}

// NewDeduplicator creates a new deduplicator
func NewDeduplicator(redis storage.RedisClient, ttl time.Duration) *Deduplicator {
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return &Deduplicator{
		redis: redis,
		ttl:   ttl,
	}
}

// GenerateIdempotencyKey identifies one recorded alert.
// Format: {strategy_id}:{symbol}:{timeframe}:{alert_id}:{triggered_at_unix_nano}
// The trigger time keeps keys distinct when a restarted in-memory sink reuses IDs.
func GenerateIdempotencyKey(alert *models.Alert) string {
	return fmt.Sprintf("%d:%s:%s:%d:%d",
		alert.StrategyID, alert.Symbol, alert.Timeframe, alert.ID, alert.TriggeredAt.UnixNano())
}

// IsDuplicate claims the alert's key with SET NX and reports true when it was already claimed
func (d *Deduplicator) IsDuplicate(ctx context.Context, alert *models.Alert) (bool, error) {
	key := GenerateIdempotencyKey(alert)

	claimed, err := d.redis.SetNX(ctx, "alert:dedupe:"+key, alert.ID, d.ttl)
	if err != nil {
		return false, fmt.Errorf("failed to check duplicate: %w", err)
	}
	if !claimed {
		logger.Debug("Duplicate alert detected",
			logger.Int64("alert_id", alert.ID),
			logger.Int64("strategy_id", alert.StrategyID),
			logger.String("symbol", alert.Symbol),
			logger.String("idempotency_key", key),
		)
		return true, nil
	}
	return false, nil
}
