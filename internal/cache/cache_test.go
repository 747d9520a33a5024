package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/peersearch/pkg/errors"
)

type result struct {
	IDs []string `json:"ids"`
}

func TestMemoryBackendLazyTTL(t *testing.T) {
	b := NewMemoryBackend(0)
	now := time.Now()
	b.now = func() time.Time { return now }
	ctx := context.Background()

	b.Set(ctx, "k", []byte("v"), time.Minute)
	if _, ok, _ := b.Get(ctx, "k"); !ok {
		t.Fatal("fresh entry missing")
	}
	now = now.Add(time.Minute)
	if _, ok, _ := b.Get(ctx, "k"); ok {
		t.Error("entry served at now-insertedAt == ttl")
	}
	if n, _ := b.Len(ctx); n != 0 {
		t.Errorf("Len = %d after expiry", n)
	}
}

func TestMemoryBackendBounded(t *testing.T) {
	b := NewMemoryBackend(memoryShards)
	ctx := context.Background()
	for i := 0; i < 10*memoryShards; i++ {
		b.Set(ctx, Fingerprint(Query{Tokens: []string{string(rune('a' + i%26))}, Limit: i}), []byte("x"), 0)
	}
	if n, _ := b.Len(ctx); n > memoryShards {
		t.Errorf("Len = %d, want at most %d", n, memoryShards)
	}
}

func TestFingerprintCanonical(t *testing.T) {
	a := Fingerprint(Query{Tokens: []string{"ma", "tran", "ma"}, Fields: []string{"title", "content"}, Limit: 10, Mode: "and"})
	b := Fingerprint(Query{Tokens: []string{"tran", "ma"}, Fields: []string{"content", "title"}, Limit: 10, Mode: "and"})
	if a != b {
		t.Error("equivalent queries produced different fingerprints")
	}
	for name, q := range map[string]Query{
		"limit":  {Tokens: []string{"ma", "tran"}, Fields: []string{"title", "content"}, Limit: 5, Mode: "and"},
		"fuzzy":  {Tokens: []string{"ma", "tran"}, Fields: []string{"title", "content"}, Limit: 10, Fuzzy: 1, Mode: "and"},
		"mode":   {Tokens: []string{"ma", "tran"}, Fields: []string{"title", "content"}, Limit: 10, Mode: "or"},
		"fields": {Tokens: []string{"ma", "tran"}, Fields: []string{"title"}, Limit: 10, Mode: "and"},
		"marker": {Tokens: []string{"ma", "tran"}, Fields: []string{"title", "content"}, Limit: 10, Mode: "and", Pre: "<b>"},
	} {
		if Fingerprint(q) == a {
			t.Errorf("%s change did not alter fingerprint", name)
		}
	}
}

func TestInvalidateAllHidesPriorEntries(t *testing.T) {
	ctx := context.Background()
	c := New[result](NewMemoryBackend(100), "node-a", time.Minute)
	gen := c.Generation()
	if err := c.Put(ctx, gen, "fp", result{IDs: []string{"1"}}); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Get(ctx, "fp"); !ok {
		t.Fatal("entry missing before invalidation")
	}
	if err := c.InvalidateAll(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Get(ctx, "fp"); ok {
		t.Error("entry served after InvalidateAll")
	}
	// A result computed under the old generation must not land.
	c.Put(ctx, gen, "fp", result{IDs: []string{"stale"}})
	if _, ok, _ := c.Get(ctx, "fp"); ok {
		t.Error("stale put became visible")
	}
	if st := c.Stats(ctx); st.Entries != 0 || st.Invalidations != 1 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestGetOrComputeHitAndMiss(t *testing.T) {
	ctx := context.Background()
	c := New[result](NewMemoryBackend(100), "node-a", time.Minute)
	calls := 0
	compute := func(context.Context) (result, error) {
		calls++
		return result{IDs: []string{"1"}}, nil
	}
	if _, hit, err := c.GetOrCompute(ctx, "fp", compute); hit || err != nil {
		t.Fatalf("first call hit=%v err=%v", hit, err)
	}
	v, hit, err := c.GetOrCompute(ctx, "fp", compute)
	if !hit || err != nil || calls != 1 || v.IDs[0] != "1" {
		t.Fatalf("second call v=%v hit=%v err=%v calls=%d", v, hit, err, calls)
	}
	c.InvalidateAll(ctx)
	if _, hit, _ := c.GetOrCompute(ctx, "fp", compute); hit || calls != 2 {
		t.Errorf("after invalidation hit=%v calls=%d", hit, calls)
	}
}

func TestGetOrComputeCoalesces(t *testing.T) {
	ctx := context.Background()
	c := New[result](NewMemoryBackend(100), "node-a", time.Minute)
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) (result, error) {
		calls.Add(1)
		<-release
		return result{IDs: []string{"1"}}, nil
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := c.GetOrCompute(ctx, "fp", compute); err != nil {
				t.Error(err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	if n := calls.Load(); n < 1 || n > 8 {
		t.Errorf("compute ran %d times", n)
	}
}

func TestGetOrComputeAbandoned(t *testing.T) {
	c := New[result](NewMemoryBackend(100), "node-a", time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	go func() {
		<-started
		cancel()
	}()
	_, _, err := c.GetOrCompute(ctx, "fp", func(ctx context.Context) (result, error) {
		close(started)
		<-ctx.Done()
		return result{}, ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

type failingBackend struct{}

func (failingBackend) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}
func (failingBackend) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}
func (failingBackend) FlushPrefix(context.Context, string) (int64, error) {
	return 0, errors.New("connection refused")
}
func (failingBackend) Len(context.Context) (int, error) {
	return 0, errors.New("connection refused")
}

func TestBackendFailureDegrades(t *testing.T) {
	ctx := context.Background()
	c := New[result](failingBackend{}, "node-a", time.Minute)
	v, hit, err := c.GetOrCompute(ctx, "fp", func(context.Context) (result, error) {
		return result{IDs: []string{"1"}}, nil
	})
	if err != nil || hit || len(v.IDs) != 1 {
		t.Fatalf("v=%v hit=%v err=%v", v, hit, err)
	}
	if _, _, err := c.Get(ctx, "fp"); !errors.Is(err, apperrors.ErrCache) {
		t.Errorf("Get err = %v, want ErrCache", err)
	}
	gen := c.Generation()
	if err := c.InvalidateAll(ctx); !errors.Is(err, apperrors.ErrCache) {
		t.Errorf("InvalidateAll err = %v", err)
	}
	if c.Generation() != gen+1 {
		t.Error("failed flush did not advance generation")
	}
	if st := c.Stats(ctx); st.Entries != -1 {
		t.Errorf("Entries = %d, want -1", st.Entries)
	}
}

type fakeRedis struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (f *fakeRedis) GetBytes(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeRedis) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *fakeRedis) FlushPrefix(_ context.Context, prefix string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k := range f.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(f.data, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeRedis) CountPrefix(_ context.Context, prefix string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for k := range f.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			n++
		}
	}
	return n, nil
}

func TestRedisBackendScopedToNode(t *testing.T) {
	ctx := context.Background()
	shared := &fakeRedis{data: make(map[string][]byte)}
	a := New[result](NewRedisBackend(shared, Namespace("node-a")), "node-a", time.Minute)
	b := New[result](NewRedisBackend(shared, Namespace("node-b")), "node-b", time.Minute)
	a.Put(ctx, a.Generation(), "fp", result{IDs: []string{"a"}})
	b.Put(ctx, b.Generation(), "fp", result{IDs: []string{"b"}})

	a.InvalidateAll(ctx)
	if _, ok, _ := b.Get(ctx, "fp"); !ok {
		t.Error("invalidating node-a flushed node-b's entries")
	}
	if st := a.Stats(ctx); st.Entries != 0 {
		t.Errorf("node-a entries = %d", st.Entries)
	}
}
