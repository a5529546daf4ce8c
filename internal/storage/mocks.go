package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mohamedkhairy/strategy-alerts/internal/models"
)

// PublishedMessage records a pub/sub publish made against MockRedisClient
type PublishedMessage struct {
	Channel string
	Payload string
}

// MockRedisClient is a mock implementation of RedisClient for testing
type MockRedisClient struct {
	mu         sync.Mutex
	Data       map[string]string
	Sets       map[string]map[string]struct{}
	Counters   map[string]int64
	StreamData []StreamMessage
	Published  []PublishedMessage
	Acked      []string
	PublishErr error
	GetErr     error
	SetErr     error
	ConsumeErr error
	PingErr    error
}

func NewMockRedisClient() *MockRedisClient {
	return &MockRedisClient{
		Data:     make(map[string]string),
		Sets:     make(map[string]map[string]struct{}),
		Counters: make(map[string]int64),
	}
}

func (m *MockRedisClient) PublishToStream(ctx context.Context, stream string, key string, value interface{}) error {
	if m.PublishErr != nil {
		return m.PublishErr
	}
	jsonData, err := json.Marshal(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.StreamData = append(m.StreamData, StreamMessage{
		ID:     fmt.Sprintf("%d-0", len(m.StreamData)+1),
		Stream: stream,
		Values: map[string]interface{}{key: string(jsonData)},
	})
	return nil
}

// ConsumeFromStream replays StreamData for the stream and closes the channel
func (m *MockRedisClient) ConsumeFromStream(ctx context.Context, stream string, group string, consumer string) (<-chan StreamMessage, error) {
	if m.ConsumeErr != nil {
		return nil, m.ConsumeErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan StreamMessage, len(m.StreamData))
	for _, msg := range m.StreamData {
		if msg.Stream == stream {
			ch <- msg
		}
	}
	close(ch)
	return ch, nil
}

func (m *MockRedisClient) AcknowledgeMessage(ctx context.Context, stream string, group string, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Acked = append(m.Acked, id)
	return nil
}

func (m *MockRedisClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.SetErr != nil {
		return m.SetErr
	}
	// Marshal to JSON like the real implementation
	jsonData, err := json.Marshal(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Data[key] = string(jsonData)
	return nil
}

func (m *MockRedisClient) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	if m.SetErr != nil {
		return false, m.SetErr
	}
	jsonData, err := json.Marshal(value)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.Data[key]; exists {
		return false, nil
	}
	m.Data[key] = string(jsonData)
	return true, nil
}

func (m *MockRedisClient) GetJSON(ctx context.Context, key string, dest interface{}) error {
	if m.GetErr != nil {
		return m.GetErr
	}

	m.mu.Lock()
	value, exists := m.Data[key]
	m.mu.Unlock()
	if !exists {
		return nil // Return nil if key doesn't exist (like real implementation)
	}
	return json.Unmarshal([]byte(value), dest)
}

func (m *MockRedisClient) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Data, key)
	return nil
}

func (m *MockRedisClient) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.Data[key]
	return exists, nil
}

func (m *MockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	if m.SetErr != nil {
		return 0, m.SetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Counters[key]++
	return m.Counters[key], nil
}

func (m *MockRedisClient) SetAdd(ctx context.Context, key string, members ...string) error {
	if m.SetErr != nil {
		return m.SetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.Sets[key]
	if !ok {
		set = make(map[string]struct{})
		m.Sets[key] = set
	}
	for _, member := range members {
		set[member] = struct{}{}
	}
	return nil
}

// SetMembers returns members sorted, for deterministic tests
func (m *MockRedisClient) SetMembers(ctx context.Context, key string) ([]string, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	members := make([]string, 0, len(m.Sets[key]))
	for member := range m.Sets[key] {
		members = append(members, member)
	}
	sort.Strings(members)
	return members, nil
}

func (m *MockRedisClient) SetRemove(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, member := range members {
		delete(m.Sets[key], member)
	}
	return nil
}

func (m *MockRedisClient) Publish(ctx context.Context, channel string, message interface{}) error {
	if m.PublishErr != nil {
		return m.PublishErr
	}
	jsonData, err := json.Marshal(message)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published = append(m.Published, PublishedMessage{Channel: channel, Payload: string(jsonData)})
	return nil
}

func (m *MockRedisClient) Ping(ctx context.Context) error {
	return m.PingErr
}

func (m *MockRedisClient) Close() error {
	return nil
}

// PublishedCount returns the number of pub/sub publishes
func (m *MockRedisClient) PublishedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Published)
}

// StreamCount returns the number of messages added to stream
func (m *MockRedisClient) StreamCount(stream string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.StreamData {
		if msg.Stream == stream {
			n++
		}
	}
	return n
}

// MockAlertStorage is a mock implementation of AlertStorage for testing
type MockAlertStorage struct {
	mu        sync.Mutex
	Alerts    []*models.Alert
	CreateErr error
	nextID    int64
}

func (m *MockAlertStorage) Create(ctx context.Context, payload *models.AlertCreate) (*models.Alert, error) {
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	alert := payload.ToAlert(m.nextID, time.Now().UTC())
	m.Alerts = append(m.Alerts, alert)
	return alert, nil
}

func (m *MockAlertStorage) List(ctx context.Context, filter AlertFilter) ([]*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Alert, 0, len(m.Alerts))
	for i := len(m.Alerts) - 1; i >= 0; i-- {
		if filter.Matches(m.Alerts[i]) {
			out = append(out, m.Alerts[i])
		}
	}
	return out, nil
}

func (m *MockAlertStorage) Get(ctx context.Context, id int64) (*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.Alerts {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, models.ErrAlertNotFound
}

func (m *MockAlertStorage) Close() error {
	return nil
}

// Count returns the number of stored alerts
func (m *MockAlertStorage) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Alerts)
}
