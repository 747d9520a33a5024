// Command loadtest drives concurrent searches, and optionally writes, against
// one or more search nodes and reports latency percentiles and the cache-hit
// ratio seen by clients.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	Nodes       []string
	Concurrency int
	Duration    time.Duration
	Fuzzy       int
	WriteRatio  float64
	Queries     []string
}

type Stats struct {
	searches    atomic.Int64
	writes      atomic.Int64
	errorCount  atomic.Int64
	cacheHits   atomic.Int64
	latencies   []time.Duration
	latenciesMu sync.Mutex
	statusCodes sync.Map // int -> *atomic.Int64
}

func NewStats() *Stats {
	return &Stats{latencies: make([]time.Duration, 0, 100000)}
}

func (s *Stats) recordStatus(code int) {
	v, _ := s.statusCodes.LoadOrStore(code, &atomic.Int64{})
	v.(*atomic.Int64).Add(1)
}

func (s *Stats) RecordSearch(d time.Duration, code int, cached bool, err error) {
	s.searches.Add(1)
	if err != nil {
		s.errorCount.Add(1)
		return
	}
	s.recordStatus(code)
	if code != http.StatusOK {
		s.errorCount.Add(1)
		return
	}
	if cached {
		s.cacheHits.Add(1)
	}
	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, d)
	s.latenciesMu.Unlock()
}

func (s *Stats) RecordWrite(code int, err error) {
	s.writes.Add(1)
	if err != nil || code != http.StatusCreated {
		s.errorCount.Add(1)
	}
	if err == nil {
		s.recordStatus(code)
	}
}

func main() {
	nodes := flag.String("urls", "http://localhost:8080", "comma-separated base URLs of search nodes")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	fuzzy := flag.Int("fuzzy", 0, "fuzzy edit distance sent with every query")
	writeRatio := flag.Float64("writes", 0, "fraction of operations that create a document (0-1)")
	flag.Parse()

	cfg := Config{
		Nodes:       splitURLs(*nodes),
		Concurrency: *concurrency,
		Duration:    *duration,
		Fuzzy:       *fuzzy,
		WriteRatio:  *writeRatio,
		Queries: []string{
			"ma tran",
			"matrix",
			"khoa hoc",
			"vien tuong",
			"giac mo",
			"inception dreams",
			"hacker simulation",
			"ho den",
			"thief secrets",
			"phim",
			"hanh tinh",
			"reality",
		},
	}
	if len(cfg.Nodes) == 0 {
		fmt.Fprintln(os.Stderr, "no node URLs given")
		os.Exit(2)
	}

	fmt.Println("=== Search Node Load Test ===")
	fmt.Printf("Targets:     %s\n", strings.Join(cfg.Nodes, ", "))
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Fuzzy:       %d\n", cfg.Fuzzy)
	fmt.Printf("Write ratio: %.2f\n", cfg.WriteRatio)
	fmt.Println()

	stats := runLoadTest(cfg)
	printReport(stats, cfg.Duration)
}

func splitURLs(s string) []string {
	var out []string
	for _, u := range strings.Split(s, ",") {
		if u = strings.TrimRight(strings.TrimSpace(u), "/"); u != "" {
			out = append(out, u)
		}
	}
	return out
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := workerID; ctx.Err() == nil; i++ {
				node := cfg.Nodes[i%len(cfg.Nodes)]
				if cfg.WriteRatio > 0 && rand.Float64() < cfg.WriteRatio {
					code, err := create(ctx, client, node, workerID, i)
					if ctx.Err() == nil {
						stats.RecordWrite(code, err)
					}
					continue
				}
				query := cfg.Queries[i%len(cfg.Queries)]
				start := time.Now()
				code, cached, err := searchOnce(ctx, client, node, query, cfg.Fuzzy)
				if ctx.Err() != nil {
					return
				}
				stats.RecordSearch(time.Since(start), code, cached, err)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func searchOnce(ctx context.Context, client *http.Client, node, query string, fuzzy int) (int, bool, error) {
	q := url.Values{"q": {query}, "limit": {"10"}}
	if fuzzy > 0 {
		q.Set("fuzzy", fmt.Sprint(fuzzy))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, node+"/search?"+q.Encode(), nil)
	if err != nil {
		return 0, false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()
	var body struct {
		Cached bool `json:"cached"`
	}
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return resp.StatusCode, false, err
		}
	}
	return resp.StatusCode, body.Cached, nil
}

func create(ctx context.Context, client *http.Client, node string, worker, seq int) (int, error) {
	payload, _ := json.Marshal(map[string]string{
		"title":   fmt.Sprintf("loadtest %d-%d", worker, seq),
		"content": "generated document for cache invalidation pressure",
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, node+"/api/documents", bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func printReport(stats *Stats, duration time.Duration) {
	searches := stats.searches.Load()
	writes := stats.writes.Load()
	errs := stats.errorCount.Load()
	total := searches + writes

	fmt.Println("=== Results ===")
	fmt.Printf("Searches:        %d\n", searches)
	fmt.Printf("Writes:          %d\n", writes)
	fmt.Printf("Errors:          %d\n", errs)
	if total > 0 {
		fmt.Printf("Error Rate:      %.2f%%\n", float64(errs)/float64(total)*100)
		fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	stats.latenciesMu.Lock()
	latencies := slices.Clone(stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		slices.Sort(latencies)
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))
		fmt.Printf("Cache Hit Ratio: %.2f%%\n", float64(stats.cacheHits.Load())/float64(len(latencies))*100)

		fmt.Println()
		fmt.Println("=== Search Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	var codes []int
	stats.statusCodes.Range(func(k, _ any) bool {
		codes = append(codes, k.(int))
		return true
	})
	slices.Sort(codes)
	for _, code := range codes {
		v, _ := stats.statusCodes.Load(code)
		fmt.Printf("  %d: %d\n", code, v.(*atomic.Int64).Load())
	}

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the node running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
