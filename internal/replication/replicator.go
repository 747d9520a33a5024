package replication

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/peersearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/peersearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/peersearch/pkg/resilience"
	"golang.org/x/sync/errgroup"
)

const DefaultTimeout = 3 * time.Second

// Replicator fans intents out to every peer except itself.
type Replicator struct {
	selfID    string
	peers     []Peer
	transport Transport
	timeout   time.Duration
	breakers  map[string]*resilience.CircuitBreaker
	metrics   *metrics.Metrics
	onOutcome func(Outcome)
	logger    *slog.Logger

	breakerCfg resilience.CircuitBreakerConfig
}

type Option func(*Replicator)

// WithTimeout bounds each per-peer delivery.
func WithTimeout(d time.Duration) Option {
	return func(r *Replicator) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithBreaker skips a peer after failures consecutive failed deliveries
// until reset has elapsed.
func WithBreaker(failures int, reset time.Duration) Option {
	return func(r *Replicator) {
		r.breakerCfg.FailureThreshold = failures
		r.breakerCfg.ResetTimeout = reset
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Replicator) {
		r.metrics = m
	}
}

// WithOutcomeHook is called once per peer per intent with the terminal
// outcome, from the delivering goroutine.
func WithOutcomeHook(fn func(Outcome)) Option {
	return func(r *Replicator) {
		r.onOutcome = fn
	}
}

func New(selfID string, peers []Peer, transport Transport, opts ...Option) *Replicator {
	r := &Replicator{
		selfID:    selfID,
		transport: transport,
		timeout:   DefaultTimeout,
		breakers:  make(map[string]*resilience.CircuitBreaker),
		logger:    slog.Default().With("component", "replicator"),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.breakerCfg.OnStateChange = func(name string, _, to resilience.State) {
		if r.metrics != nil {
			r.metrics.PeerCircuitState.WithLabelValues(name).Set(float64(to))
		}
	}
	for _, p := range peers {
		if p.ID == selfID {
			continue
		}
		r.peers = append(r.peers, p)
		r.breakers[p.ID] = resilience.NewCircuitBreaker(p.ID, r.breakerCfg)
		if r.metrics != nil {
			r.metrics.PeerCircuitState.WithLabelValues(p.ID).Set(0)
		}
	}
	return r
}

func (r *Replicator) SelfID() string {
	return r.selfID
}

func (r *Replicator) Peers() []Peer {
	return append([]Peer(nil), r.peers...)
}

// PeerStates reports each peer's breaker state.
func (r *Replicator) PeerStates() map[string]resilience.State {
	out := make(map[string]resilience.State, len(r.breakers))
	for id, cb := range r.breakers {
		out[id] = cb.GetState()
	}
	return out
}

// Broadcast sends intent to every peer concurrently and waits for all
// attempts. A slow or failing peer never cancels its siblings. It is meant
// to run after the local write has been acknowledged.
func (r *Replicator) Broadcast(ctx context.Context, intent Intent) []Outcome {
	if intent.OriginNodeID == "" {
		intent.OriginNodeID = r.selfID
	}
	outcomes := make([]Outcome, len(r.peers))
	var g errgroup.Group
	for i, peer := range r.peers {
		g.Go(func() error {
			outcomes[i] = r.deliver(ctx, peer, intent)
			return nil
		})
	}
	g.Wait()
	return outcomes
}

func (r *Replicator) deliver(ctx context.Context, peer Peer, intent Intent) Outcome {
	out := Outcome{PeerID: peer.ID, Action: intent.Action, DocID: intent.DocID, State: StateSending}
	start := time.Now()
	err := r.breakers[peer.ID].Execute(func() error {
		return resilience.WithTimeout(ctx, r.timeout, "replicate to "+peer.ID, func(ctx context.Context) error {
			return r.transport.Send(ctx, peer, intent)
		})
	})
	out.Duration = time.Since(start)
	if err != nil {
		out.State = StateFailed
		out.Err = fmt.Errorf("%w: %w", apperrors.ErrReplicationDelivery, err)
		r.logger.Warn("replication delivery failed",
			"peer_id", peer.ID,
			"action", intent.Action,
			"doc_id", intent.DocID,
			"skipped", errors.Is(err, resilience.ErrCircuitOpen),
			"error", err,
		)
	} else {
		out.State = StateDelivered
		r.logger.Debug("replication delivered",
			"peer_id", peer.ID,
			"action", intent.Action,
			"doc_id", intent.DocID,
			"duration", out.Duration,
		)
	}
	if r.metrics != nil {
		r.metrics.ReplicationDeliveriesTotal.WithLabelValues(peer.ID, out.State.String()).Inc()
	}
	if r.onOutcome != nil {
		r.onOutcome(out)
	}
	return out
}
