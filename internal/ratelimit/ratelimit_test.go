package ratelimit

import (
	"testing"
	"time"
)

func TestAllowBurstThenDeny(t *testing.T) {
	l := New(1, 3, time.Minute)
	defer l.Close()
	clock := time.Unix(1000, 0)
	l.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("request %d denied within burst", i+1)
		}
	}
	if l.Allow("10.0.0.1") {
		t.Error("request beyond burst allowed")
	}
	if !l.Allow("10.0.0.2") {
		t.Error("separate key should have its own bucket")
	}

	clock = clock.Add(time.Second)
	if !l.Allow("10.0.0.1") {
		t.Error("token not refilled after one second")
	}
}

func TestEvictIdle(t *testing.T) {
	l := New(10, 10, time.Minute)
	defer l.Close()
	clock := time.Unix(1000, 0)
	l.now = func() time.Time { return clock }

	l.Allow("old")
	clock = clock.Add(2 * time.Minute)
	l.Allow("fresh")
	if n := l.evictIdle(); n != 1 {
		t.Errorf("evictIdle() = %d, want 1", n)
	}
	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}
	l.Reset("fresh")
	if l.Len() != 0 {
		t.Errorf("Len() after Reset = %d", l.Len())
	}
}
