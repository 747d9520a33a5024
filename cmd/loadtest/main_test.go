package main

import (
	"slices"
	"testing"
	"time"
)

func TestPercentile(t *testing.T) {
	var lat []time.Duration
	for i := 1; i <= 100; i++ {
		lat = append(lat, time.Duration(i)*time.Millisecond)
	}
	tests := map[float64]time.Duration{
		50:  50 * time.Millisecond,
		99:  99 * time.Millisecond,
		100: 100 * time.Millisecond,
		0:   time.Millisecond,
	}
	for p, want := range tests {
		if got := percentile(lat, p); got != want {
			t.Errorf("percentile(%v) = %v, want %v", p, got, want)
		}
	}
	if percentile(nil, 50) != 0 {
		t.Error("percentile of empty slice should be 0")
	}
}

func TestSplitURLs(t *testing.T) {
	got := splitURLs(" http://a:8080/, ,http://b:8081")
	if !slices.Equal(got, []string{"http://a:8080", "http://b:8081"}) {
		t.Errorf("splitURLs() = %v", got)
	}
}
