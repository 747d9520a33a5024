// Package telemetry records what users search for. Events leave the request
// path through a bounded buffer and are published to Kafka in batches; an
// optional aggregator consumes them back into top-query statistics. Losing
// events is acceptable, delaying a search is not.
package telemetry

import "time"

// QueryEvent describes one answered search.
type QueryEvent struct {
	Query     string    `json:"query"`
	Tokens    []string  `json:"tokens,omitempty"`
	Results   int       `json:"results"`
	CacheHit  bool      `json:"cache_hit"`
	LatencyUs int64     `json:"latency_us"`
	NodeID    string    `json:"node_id"`
	Origin    string    `json:"origin,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Recorder accepts events without blocking.
type Recorder interface {
	Record(event QueryEvent)
}

// Recorders fans one event out to several recorders.
type Recorders []Recorder

func (rs Recorders) Record(event QueryEvent) {
	for _, r := range rs {
		r.Record(event)
	}
}
