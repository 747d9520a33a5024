package replication

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/peersearch/pkg/metrics"
)

// Broadcaster is the part of Replicator the dispatcher drives.
type Broadcaster interface {
	Broadcast(ctx context.Context, intent Intent) []Outcome
}

// Dispatcher runs broadcasts on a fixed worker pool so request handlers can
// hand off an intent without waiting for any peer.
type Dispatcher struct {
	broadcaster Broadcaster
	queue       chan Intent
	metrics     *metrics.Metrics
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts workers goroutines consuming a queue of queueSize
// intents. m may be nil.
func NewDispatcher(b Broadcaster, workers, queueSize int, m *metrics.Metrics) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		broadcaster: b,
		queue:       make(chan Intent, queueSize),
		metrics:     m,
		logger:      slog.Default().With("component", "replication-dispatcher"),
		ctx:         ctx,
		cancel:      cancel,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for intent := range d.queue {
		d.broadcaster.Broadcast(d.ctx, intent)
	}
}

// Submit enqueues intent and returns immediately. It reports false when the
// queue is full or the dispatcher is closed; the intent is then dropped and
// every peer diverges for that write.
func (d *Dispatcher) Submit(intent Intent) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("dispatcher closed, intent dropped", "action", intent.Action, "doc_id", intent.DocID)
		return false
	}
	select {
	case d.queue <- intent:
		return true
	default:
		if d.metrics != nil {
			d.metrics.ReplicationDroppedTotal.Inc()
		}
		d.logger.Warn("replication queue full, intent dropped",
			"action", intent.Action,
			"doc_id", intent.DocID,
			"queue_size", cap(d.queue),
		)
		return false
	}
}

// Pending is the number of queued intents not yet picked up by a worker.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Close stops accepting intents and waits for queued ones to be delivered.
// If ctx ends first, in-flight deliveries are cancelled.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}
