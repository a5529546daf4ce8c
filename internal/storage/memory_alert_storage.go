package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mohamedkhairy/strategy-alerts/internal/models"
)

// DefaultAlertLogSize is the number of alerts kept by the in-memory log
const DefaultAlertLogSize = 500

// InMemoryAlertStorage keeps the most recent alerts in a bounded ring, newest first
type InMemoryAlertStorage struct {
	mu     sync.RWMutex
	ring   []*models.Alert
	head   int // index of the next write
	size   int
	nextID int64
	now    func() time.Time
}

// NewInMemoryAlertStorage creates an alert log holding at most capacity alerts
func NewInMemoryAlertStorage(capacity int) *InMemoryAlertStorage {
	if capacity <= 0 {
		capacity = DefaultAlertLogSize
	}
	return &InMemoryAlertStorage{
		ring: make([]*models.Alert, capacity),
		now:  time.Now,
	}
}

// Create records an alert, evicting the oldest when full
func (s *InMemoryAlertStorage) Create(ctx context.Context, payload *models.AlertCreate) (*models.Alert, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: payload cannot be nil", models.ErrInvalidAlert)
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	alert := payload.ToAlert(s.nextID, s.now().UTC())

	s.ring[s.head] = alert
	s.head = (s.head + 1) % len(s.ring)
	if s.size < len(s.ring) {
		s.size++
	}

	return copyAlert(alert), nil
}

// List returns alerts newest first
func (s *InMemoryAlertStorage) List(ctx context.Context, filter AlertFilter) ([]*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Alert, 0, s.size)
	for i := 0; i < s.size; i++ {
		idx := (s.head - 1 - i + len(s.ring)) % len(s.ring)
		alert := s.ring[idx]
		if !filter.Matches(alert) {
			continue
		}
		out = append(out, copyAlert(alert))
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Get retrieves an alert still held by the log
func (s *InMemoryAlertStorage) Get(ctx context.Context, id int64) (*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := 0; i < s.size; i++ {
		idx := (s.head - 1 - i + len(s.ring)) % len(s.ring)
		if s.ring[idx].ID == id {
			return copyAlert(s.ring[idx]), nil
		}
	}
	return nil, fmt.Errorf("%w: %d", models.ErrAlertNotFound, id)
}

// Len returns the number of alerts held
func (s *InMemoryAlertStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Close is a no-op
func (s *InMemoryAlertStorage) Close() error {
	return nil
}

func copyAlert(a *models.Alert) *models.Alert {
	out := *a
	out.IndicatorSnapshot = make(map[string]float64, len(a.IndicatorSnapshot))
	for k, v := range a.IndicatorSnapshot {
		out.IndicatorSnapshot[k] = v
	}
	if a.TelegramMessageID != nil {
		v := *a.TelegramMessageID
		out.TelegramMessageID = &v
	}
	return &out
}
