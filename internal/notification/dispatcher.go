package notification

import (
	"context"
	"sync"
	"time"

	"github.com/mohamedkhairy/strategy-alerts/internal/models"
	"github.com/mohamedkhairy/strategy-alerts/pkg/logger"
)

// DispatcherConfig holds configuration for the async notification dispatcher
type DispatcherConfig struct {
	QueueSize  int
	Workers    int
	Timeout    time.Duration // per send attempt
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultDispatcherConfig returns default configuration
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		QueueSize:  256,
		Workers:    2,
		Timeout:    5 * time.Second,
		MaxRetries: 2,
		RetryDelay: 500 * time.Millisecond,
	}
}

// configurable is implemented by notifiers that may be switched off
type configurable interface {
	Configured() bool
}

// Dispatcher fans alerts out to notifiers off the candle path.
// Alerts are queued without blocking; a full queue drops the alert.
type Dispatcher struct {
	config    DispatcherConfig
	notifiers []Notifier
	queue     chan *models.Alert

	mu      sync.RWMutex
	running bool
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher for the given notifiers
func NewDispatcher(config DispatcherConfig, notifiers ...Notifier) *Dispatcher {
	defaults := DefaultDispatcherConfig()
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		config:    config,
		notifiers: notifiers,
		queue:     make(chan *models.Alert, config.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the worker goroutines
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running || d.closed {
		return
	}
	d.running = true

	for i := 0; i < d.config.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}

	logger.Info("Notification dispatcher started",
		logger.Int("workers", d.config.Workers),
		logger.Int("notifiers", len(d.notifiers)),
	)
}

// Stop drains queued alerts and waits for the workers to exit
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	wasRunning := d.running
	d.running = false
	close(d.queue)
	d.mu.Unlock()

	if wasRunning {
		d.wg.Wait()
	}
	d.cancel()
	logger.Info("Notification dispatcher stopped")
}

// Dispatch queues an alert for delivery; it never blocks and reports whether the alert was queued
func (d *Dispatcher) Dispatch(alert *models.Alert) bool {
	if alert == nil {
		return false
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		logger.NotificationsTotal.WithLabelValues("dispatcher", "dropped").Inc()
		return false
	}

	select {
	case d.queue <- alert:
		return true
	default:
		logger.NotificationsTotal.WithLabelValues("dispatcher", "dropped").Inc()
		logger.Warn("Notification queue full, dropping alert",
			logger.Int64("alert_id", alert.ID),
			logger.Int64("strategy_id", alert.StrategyID),
		)
		return false
	}
}

// QueueLen returns the number of alerts waiting for delivery
func (d *Dispatcher) QueueLen() int {
	return len(d.queue)
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for alert := range d.queue {
		for _, n := range d.notifiers {
			d.deliver(n, alert)
		}
	}
}

func (d *Dispatcher) deliver(n Notifier, alert *models.Alert) {
	if c, ok := n.(configurable); ok && !c.Configured() {
		// Send still runs so the skipped message reaches the log
		_ = n.Send(d.ctx, alert)
		logger.NotificationsTotal.WithLabelValues(n.Name(), "skipped").Inc()
		return
	}

	if multi, ok := n.(MultiRecipientNotifier); ok {
		for _, recipient := range multi.Recipients() {
			d.deliverWithRetry(n.Name(), recipient, alert, func(ctx context.Context) error {
				return multi.SendTo(ctx, alert, recipient)
			})
		}
		return
	}

	d.deliverWithRetry(n.Name(), "", alert, func(ctx context.Context) error {
		return n.Send(ctx, alert)
	})
}

// deliverWithRetry runs send until it succeeds or the retries are used up
func (d *Dispatcher) deliverWithRetry(name, recipient string, alert *models.Alert, send func(ctx context.Context) error) {
	var err error
	for attempt := 0; attempt <= d.config.MaxRetries; attempt++ {
		if attempt > 0 && !d.sleep(d.config.RetryDelay) {
			break
		}

		ctx, cancel := context.WithTimeout(d.ctx, d.config.Timeout)
		err = send(ctx)
		cancel()
		if err == nil {
			logger.NotificationsTotal.WithLabelValues(name, "sent").Inc()
			return
		}

		logger.Debug("Notification attempt failed",
			logger.String("notifier", name),
			logger.String("recipient", recipient),
			logger.Int("attempt", attempt+1),
			logger.ErrorField(err),
		)
	}

	logger.NotificationsTotal.WithLabelValues(name, "failed").Inc()
	logger.Error("Notification failed",
		logger.String("notifier", name),
		logger.String("recipient", recipient),
		logger.Int64("alert_id", alert.ID),
		logger.ErrorField(err),
	)
}

func (d *Dispatcher) sleep(delay time.Duration) bool {
	if delay <= 0 {
		return true
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-d.ctx.Done():
		return false
	}
}
