package stream

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/mohamedkhairy/strategy-alerts/internal/models"
	"github.com/mohamedkhairy/strategy-alerts/pkg/indicator"
	"github.com/mohamedkhairy/strategy-alerts/pkg/logger"
)

// ErrIngestorStopped is returned by Submit when the ingestor is not running
var ErrIngestorStopped = errors.New("ingestor is not running")

// CandleProcessor handles one candle of a series
type CandleProcessor interface {
	OnCandle(ctx context.Context, symbol, timeframe string, candle models.Candle) []*models.Alert
}

// IngestorConfig holds configuration for the ingestor
type IngestorConfig struct {
	Workers   int // number of partitions, one goroutine each
	QueueSize int // buffered candles per partition
}

// DefaultIngestorConfig returns default configuration
func DefaultIngestorConfig() IngestorConfig {
	return IngestorConfig{
		Workers:   4,
		QueueSize: 1024,
	}
}

// Ingestor feeds candles to a CandleProcessor through partitioned queues.
// All candles of one series hash to the same partition and are processed
// in submission order by a single goroutine.
type Ingestor struct {
	config    IngestorConfig
	processor CandleProcessor
	queues    []chan models.CandleIn

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
}

// NewIngestor creates a new ingestor
func NewIngestor(config IngestorConfig, processor CandleProcessor) *Ingestor {
	if processor == nil {
		panic("processor cannot be nil")
	}
	defaults := DefaultIngestorConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}

	queues := make([]chan models.CandleIn, config.Workers)
	for i := range queues {
		queues[i] = make(chan models.CandleIn, config.QueueSize)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Ingestor{
		config:    config,
		processor: processor,
		queues:    queues,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start starts one worker per partition
func (i *Ingestor) Start() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.running {
		return fmt.Errorf("ingestor is already running")
	}
	if i.ctx.Err() != nil {
		return fmt.Errorf("ingestor was stopped and cannot be restarted")
	}
	i.running = true

	for p := range i.queues {
		i.wg.Add(1)
		go i.worker(p)
	}

	logger.Info("Starting candle ingestor",
		logger.Int("workers", i.config.Workers),
		logger.Int("queue_size", i.config.QueueSize),
	)
	return nil
}

// Stop stops the workers; candles still queued are discarded
func (i *Ingestor) Stop() {
	i.mu.Lock()
	if !i.running {
		i.mu.Unlock()
		return
	}
	i.running = false
	i.mu.Unlock()

	logger.Info("Stopping candle ingestor")
	i.cancel()
	i.wg.Wait()
	logger.Info("Candle ingestor stopped")
}

// IsRunning returns whether the ingestor is running
func (i *Ingestor) IsRunning() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.running
}

// Partition returns the partition a series key is assigned to
func (i *Ingestor) Partition(seriesKey string) int {
	h := fnv.New32a()
	h.Write([]byte(seriesKey))
	return int(h.Sum32() % uint32(len(i.queues)))
}

// Submit validates a candle and queues it on its series partition.
// It blocks while the partition queue is full until ctx is done.
func (i *Ingestor) Submit(ctx context.Context, in models.CandleIn) error {
	if err := in.Validate(); err != nil {
		return err
	}
	if !i.IsRunning() {
		return ErrIngestorStopped
	}

	queue := i.queues[i.Partition(indicator.SeriesKey(in.Symbol, in.Timeframe))]
	select {
	case queue <- in:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-i.ctx.Done():
		return ErrIngestorStopped
	}
}

// Pending returns the number of queued candles across all partitions
func (i *Ingestor) Pending() int {
	n := 0
	for _, q := range i.queues {
		n += len(q)
	}
	return n
}

func (i *Ingestor) worker(partition int) {
	defer i.wg.Done()
	queue := i.queues[partition]

	for {
		select {
		case <-i.ctx.Done():
			return
		case in := <-queue:
			i.process(in)
		}
	}
}

func (i *Ingestor) process(in models.CandleIn) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorsTotal.WithLabelValues("stream", "panic").Inc()
			logger.Error("Recovered from panic while processing candle",
				logger.String("symbol", in.Symbol),
				logger.String("timeframe", in.Timeframe),
				logger.Any("panic", r),
			)
		}
	}()

	i.processor.OnCandle(i.ctx, in.Symbol, in.Timeframe, in.Candle())
}
