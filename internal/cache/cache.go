// Package cache is the read-through result cache that sits in front of the
// index. Keys carry a generation number; InvalidateAll bumps it, so a result
// computed against the index before a write can never be served after it,
// whatever the backend does with the old keys.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/peersearch/pkg/errors"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "search:"

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Hits          int64  `json:"hits"`
	Misses        int64  `json:"misses"`
	Errors        int64  `json:"errors"`
	Invalidations int64  `json:"invalidations"`
	Entries       int    `json:"entries"`
	Generation    uint64 `json:"generation"`
}

// QueryCache maps fingerprints to result sets of type T.
type QueryCache[T any] struct {
	backend    Backend
	namespace  string
	ttl        time.Duration
	generation atomic.Uint64
	group      singleflight.Group
	logger     *slog.Logger

	hits          atomic.Int64
	misses        atomic.Int64
	errs          atomic.Int64
	invalidations atomic.Int64
}

// New creates a cache whose keys live under "search:<nodeID>:". The node id
// keeps nodes that share one Redis from serving each other's results.
func New[T any](backend Backend, nodeID string, ttl time.Duration) *QueryCache[T] {
	return &QueryCache[T]{
		backend:   backend,
		namespace: Namespace(nodeID),
		ttl:       ttl,
		logger:    slog.Default().With("component", "query-cache"),
	}
}

// Namespace is the key prefix owned by nodeID.
func Namespace(nodeID string) string {
	return keyPrefix + nodeID + ":"
}

func (c *QueryCache[T]) key(gen uint64, fingerprint string) string {
	return c.namespace + strconv.FormatUint(gen, 10) + ":" + fingerprint
}

// Generation reports the current generation.
func (c *QueryCache[T]) Generation() uint64 {
	return c.generation.Load()
}

// Get looks fingerprint up in the current generation. Backend and decode
// failures are returned wrapped in ErrCache.
func (c *QueryCache[T]) Get(ctx context.Context, fingerprint string) (T, bool, error) {
	return c.get(ctx, c.key(c.generation.Load(), fingerprint))
}

func (c *QueryCache[T]) get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	data, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.errs.Add(1)
		return zero, false, fmt.Errorf("%w: get: %w", apperrors.ErrCache, err)
	}
	if !ok {
		c.misses.Add(1)
		return zero, false, nil
	}
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		c.errs.Add(1)
		return zero, false, fmt.Errorf("%w: decoding %s: %w", apperrors.ErrCache, key, err)
	}
	c.hits.Add(1)
	return value, true, nil
}

// Put stores value for fingerprint if gen is still current. A value
// computed before an invalidation is dropped.
func (c *QueryCache[T]) Put(ctx context.Context, gen uint64, fingerprint string, value T) error {
	if gen != c.generation.Load() {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: encoding: %w", apperrors.ErrCache, err)
	}
	if err := c.backend.Set(ctx, c.key(gen, fingerprint), data, c.ttl); err != nil {
		c.errs.Add(1)
		return fmt.Errorf("%w: set: %w", apperrors.ErrCache, err)
	}
	return nil
}

// InvalidateAll retires every cached result. The generation bump alone makes
// old entries unreachable; the backend flush only reclaims their space, so
// its failure is logged and returned but does not undo the invalidation.
func (c *QueryCache[T]) InvalidateAll(ctx context.Context) error {
	gen := c.generation.Add(1)
	c.invalidations.Add(1)
	deleted, err := c.backend.FlushPrefix(ctx, c.namespace)
	if err != nil {
		c.errs.Add(1)
		c.logger.Warn("cache flush failed", "generation", gen, "error", err)
		return fmt.Errorf("%w: flush: %w", apperrors.ErrCache, err)
	}
	c.logger.Debug("cache invalidated", "generation", gen, "keys_deleted", deleted)
	return nil
}

// GetOrCompute returns the cached value for fingerprint or computes, stores,
// and returns it. Concurrent misses on the same key share one computation.
// Cache failures never fail the call: they are logged and the value is
// computed directly.
func (c *QueryCache[T]) GetOrCompute(ctx context.Context, fingerprint string, compute func(ctx context.Context) (T, error)) (value T, hit bool, err error) {
	gen := c.generation.Load()
	key := c.key(gen, fingerprint)
	value, hit, err = c.get(ctx, key)
	if err != nil {
		c.logger.Warn("cache unavailable, querying index directly", "error", err)
		value, err = compute(ctx)
		return value, false, err
	}
	if hit {
		return value, true, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		v, err := compute(ctx)
		if err != nil {
			return v, err
		}
		if perr := c.Put(ctx, gen, fingerprint, v); perr != nil {
			c.logger.Warn("cache store failed", "error", perr)
		}
		return v, nil
	})
	select {
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			// The flight leader's own context ended; we are still live.
			if isContextErr(res.Err) && ctx.Err() == nil {
				value, err = compute(ctx)
				return value, false, err
			}
			var zero T
			return zero, false, res.Err
		}
		return res.Val.(T), false, nil
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Stats reports counters and the backend's live entry count. A failing
// backend reports -1 entries.
func (c *QueryCache[T]) Stats(ctx context.Context) Stats {
	entries, err := c.backend.Len(ctx)
	if err != nil {
		entries = -1
	}
	return Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Errors:        c.errs.Load(),
		Invalidations: c.invalidations.Load(),
		Entries:       entries,
		Generation:    c.generation.Load(),
	}
}
