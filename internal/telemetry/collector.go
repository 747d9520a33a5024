package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/peersearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/peersearch/pkg/metrics"
)

// Publisher is the part of kafka.Producer the collector uses.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector buffers events in a channel and publishes them in batches of up
// to batchSize or every flushInterval. A failed batch is logged and dropped.
type Collector struct {
	publisher     Publisher
	eventCh       chan QueryEvent
	batchSize     int
	flushInterval time.Duration
	metrics       *metrics.Metrics
	logger        *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewCollector creates a Collector; m may be nil.
func NewCollector(publisher Publisher, bufferSize, batchSize int, flushInterval time.Duration, m *metrics.Metrics) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	return &Collector{
		publisher:     publisher,
		eventCh:       make(chan QueryEvent, bufferSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		metrics:       m,
		logger:        slog.Default().With("component", "telemetry-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the publish loop. It runs until Close is called.
func (c *Collector) Start() {
	go c.run()
	c.logger.Info("telemetry collector started",
		"buffer_size", cap(c.eventCh),
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

func (c *Collector) run() {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()
	batch := make([]kafka.Event, 0, c.batchSize)
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				c.flush(batch)
				return
			}
			batch = append(batch, kafka.Event{Key: event.NodeID, Value: event})
			if len(batch) >= c.batchSize {
				c.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			c.flush(batch)
			batch = batch[:0]
		}
	}
}

func (c *Collector) flush(batch []kafka.Event) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("telemetry batch dropped", "batch_size", len(batch), "error", err)
		return
	}
	c.logger.Debug("telemetry batch flushed", "events", len(batch))
}

// Record enqueues event, dropping it when the buffer is full.
func (c *Collector) Record(event QueryEvent) {
	select {
	case c.eventCh <- event:
	default:
		if c.metrics != nil {
			c.metrics.TelemetryDroppedTotal.Inc()
		}
		c.logger.Debug("telemetry event dropped (buffer full)")
	}
}

// Close flushes buffered events and stops the loop. Record must not be
// called after Close.
func (c *Collector) Close() {
	c.closeOnce.Do(func() {
		close(c.eventCh)
	})
	<-c.done
}
