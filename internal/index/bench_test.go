package index

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/analyzer"
	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/document"
)

// BenchmarkIndexAdd measures per-document insert throughput.
func BenchmarkIndexAdd(b *testing.B) {
	ix := New(analyzer.New())
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ix.Add(document.Document{
			ID:     fmt.Sprintf("doc-%d", i),
			Fields: map[string]string{"title": "benchmark title", "content": "a benchmark document with several terms for testing indexing"},
		})
	}
}

func seeded(b *testing.B, n int) *Index {
	b.Helper()
	ix := New(analyzer.New())
	for i := 0; i < n; i++ {
		ix.Add(document.Document{
			ID:     fmt.Sprintf("doc-%d", i),
			Fields: map[string]string{"title": "distributed search", "content": fmt.Sprintf("search engine node %d with replicated indexing", i)},
		})
	}
	return ix
}

// BenchmarkIndexSearch measures a two-term AND query over 10 000 documents.
func BenchmarkIndexSearch(b *testing.B) {
	ix := seeded(b, 10000)
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ix.Search(ctx, "distributed search", SearchOptions{Limit: 10})
	}
}

// BenchmarkIndexSearchFuzzy measures edit-distance expansion cost.
func BenchmarkIndexSearchFuzzy(b *testing.B) {
	ix := seeded(b, 10000)
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ix.Search(ctx, "replcated", SearchOptions{Limit: 10, Fuzzy: 2})
	}
}

// BenchmarkIndexSearchParallel measures concurrent read throughput.
func BenchmarkIndexSearchParallel(b *testing.B) {
	ix := seeded(b, 10000)
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			ix.Search(ctx, "search", SearchOptions{Limit: 10})
		}
	})
}
