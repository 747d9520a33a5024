package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const memoryShards = 16

type memoryEntry struct {
	value      []byte
	insertedAt time.Time
	ttl        time.Duration
}

func (e memoryEntry) live(now time.Time) bool {
	return e.ttl <= 0 || now.Sub(e.insertedAt) < e.ttl
}

type memoryShard struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

// MemoryBackend is an in-process Backend. Keys spread over shards by xxhash
// so concurrent searches rarely contend on one lock. Expiry is checked
// lazily on Get; a full shard first drops expired entries, then its oldest.
type MemoryBackend struct {
	shards      [memoryShards]*memoryShard
	maxPerShard int
	now         func() time.Time
}

// NewMemoryBackend bounds the backend to roughly maxEntries keys; zero or
// negative means unbounded.
func NewMemoryBackend(maxEntries int) *MemoryBackend {
	b := &MemoryBackend{now: time.Now}
	if maxEntries > 0 {
		b.maxPerShard = max(1, maxEntries/memoryShards)
	}
	for i := range b.shards {
		b.shards[i] = &memoryShard{entries: make(map[string]memoryEntry)}
	}
	return b
}

func (b *MemoryBackend) shard(key string) *memoryShard {
	return b.shards[xxhash.Sum64String(key)%memoryShards]
}

func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	s := b.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.live(b.now()) {
		delete(s.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (b *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s := b.shard(key)
	now := b.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[key]; !exists && b.maxPerShard > 0 && len(s.entries) >= b.maxPerShard {
		s.evictLocked(now)
	}
	s.entries[key] = memoryEntry{value: value, insertedAt: now, ttl: ttl}
	return nil
}

func (s *memoryShard) evictLocked(now time.Time) {
	var oldestKey string
	var oldest time.Time
	evicted := false
	for k, e := range s.entries {
		if !e.live(now) {
			delete(s.entries, k)
			evicted = true
			continue
		}
		if oldestKey == "" || e.insertedAt.Before(oldest) {
			oldestKey, oldest = k, e.insertedAt
		}
	}
	if !evicted && oldestKey != "" {
		delete(s.entries, oldestKey)
	}
}

func (b *MemoryBackend) FlushPrefix(_ context.Context, prefix string) (int64, error) {
	var n int64
	for _, s := range b.shards {
		s.mu.Lock()
		for k := range s.entries {
			if strings.HasPrefix(k, prefix) {
				delete(s.entries, k)
				n++
			}
		}
		s.mu.Unlock()
	}
	return n, nil
}

// Len counts live entries.
func (b *MemoryBackend) Len(context.Context) (int, error) {
	now := b.now()
	n := 0
	for _, s := range b.shards {
		s.mu.Lock()
		for _, e := range s.entries {
			if e.live(now) {
				n++
			}
		}
		s.mu.Unlock()
	}
	return n, nil
}
