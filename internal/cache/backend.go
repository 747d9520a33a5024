package cache

import (
	"context"
	"time"
)

// Backend stores encoded result sets. Implementations report a missing or
// expired key as ok=false with a nil error; any non-nil error means the
// backend itself failed.
type Backend interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// FlushPrefix removes every key beginning with prefix.
	FlushPrefix(ctx context.Context, prefix string) (int64, error)
	Len(ctx context.Context) (int, error)
}
