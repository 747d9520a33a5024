package index

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/analyzer"
	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/peersearch/pkg/errors"
)

func newTestIndex(opts ...analyzer.Option) *Index {
	return New(analyzer.New(append([]analyzer.Option{analyzer.WithDiacriticFolding(true)}, opts...)...))
}

func doc(id, title, content string) document.Document {
	return document.Document{ID: id, Fields: map[string]string{"title": title, "content": content}}
}

func search(t *testing.T, ix *Index, q string, opts SearchOptions) []Hit {
	t.Helper()
	hits, err := ix.Search(context.Background(), q, opts)
	if err != nil {
		t.Fatalf("Search(%q) error: %v", q, err)
	}
	return hits
}

func referencesDoc(ix *Index, id string) bool {
	for _, entry := range ix.Snapshot() {
		for _, p := range entry.Postings {
			if p.DocID == id {
				return true
			}
		}
	}
	return false
}

func TestAddThenRemoveLeavesNoPostings(t *testing.T) {
	ix := newTestIndex()
	if err := ix.Add(doc("1", "Distributed search", "search engines index documents")); err != nil {
		t.Fatal(err)
	}
	if err := ix.Add(doc("2", "Other", "search elsewhere")); err != nil {
		t.Fatal(err)
	}
	if err := ix.Remove("1"); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if referencesDoc(ix, "1") {
		t.Error("index retains postings for removed document")
	}
	if got := ix.Postings("distributed"); len(got) != 0 {
		t.Errorf("term only used by removed doc still present: %v", got)
	}
	if st := ix.Stats(); st.Documents != 1 {
		t.Errorf("Stats().Documents = %d, want 1", st.Documents)
	}
}

func TestRemoveTwiceReturnsNotFound(t *testing.T) {
	ix := newTestIndex()
	if err := ix.Add(doc("1", "alpha", "beta")); err != nil {
		t.Fatal(err)
	}
	if err := ix.Add(doc("2", "alpha", "gamma")); err != nil {
		t.Fatal(err)
	}
	if err := ix.Remove("1"); err != nil {
		t.Fatal(err)
	}
	before := ix.Stats()
	err := ix.Remove("1")
	if !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Fatalf("second Remove() = %v, want ErrDocumentNotFound", err)
	}
	if after := ix.Stats(); after != before {
		t.Errorf("failed Remove changed index: %+v -> %+v", before, after)
	}
}

func TestAddDuplicateFails(t *testing.T) {
	ix := newTestIndex()
	if err := ix.Add(doc("1", "alpha", "")); err != nil {
		t.Fatal(err)
	}
	if err := ix.Add(doc("1", "beta", "")); !errors.Is(err, apperrors.ErrDocumentExists) {
		t.Fatalf("Add(duplicate) = %v, want ErrDocumentExists", err)
	}
	if len(ix.Postings("beta")) != 0 {
		t.Error("rejected duplicate left postings behind")
	}
}

func TestUpdateReplacesPostings(t *testing.T) {
	ix := newTestIndex()
	if err := ix.Add(doc("1", "old title", "shared words")); err != nil {
		t.Fatal(err)
	}
	if err := ix.Update(doc("1", "new title", "shared words")); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if got := ix.Postings("old"); len(got) != 0 {
		t.Errorf("stale postings survive update: %v", got)
	}
	if got := ix.Postings("new"); len(got) != 1 {
		t.Errorf("postings for new content = %v, want exactly one", got)
	}
	if got := ix.Postings("shared"); len(got) != 1 {
		t.Errorf("unchanged term has %d postings, want 1 (no duplicates)", len(got))
	}
	if err := ix.Update(doc("missing", "x", "y")); !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Errorf("Update(unknown) = %v, want ErrDocumentNotFound", err)
	}
}

func TestAnalyzerErrorSkipsDocument(t *testing.T) {
	ix := newTestIndex()
	bad := document.Document{ID: "1", Fields: map[string]string{"title": "fine", "content": string([]byte{0xff, 'x'})}}
	if err := ix.Add(bad); !errors.Is(err, apperrors.ErrAnalyzer) {
		t.Fatalf("Add(bad utf8) = %v, want ErrAnalyzer", err)
	}
	if ix.Contains("1") || len(ix.Postings("fine")) != 0 {
		t.Error("partially indexed document after analyzer error")
	}
}

func TestRoundTripTitleSearch(t *testing.T) {
	ix := newTestIndex()
	if err := ix.Add(doc("7", "Inverted index internals", "postings and tokens")); err != nil {
		t.Fatal(err)
	}
	hits := search(t, ix, "Inverted index internals", SearchOptions{Limit: 10})
	if len(hits) != 1 || hits[0].DocID != "7" || hits[0].Score <= 0 {
		t.Fatalf("hits = %+v, want doc 7 with positive score", hits)
	}
}

func TestScoringBoostAndTermFrequency(t *testing.T) {
	ix := newTestIndex()
	d1 := document.Document{
		ID:      "a",
		Fields:  map[string]string{"title": "go", "content": "go go"},
		Weights: map[string]float64{"title": 3},
	}
	d2 := doc("b", "", "go")
	for _, d := range []document.Document{d1, d2} {
		if err := ix.Add(d); err != nil {
			t.Fatal(err)
		}
	}
	hits := search(t, ix, "go", SearchOptions{})
	if len(hits) != 2 {
		t.Fatalf("hits = %+v", hits)
	}
	// a: title 1*3 + content 2*1 = 5; b: content 1*1 = 1
	if hits[0].DocID != "a" || hits[0].Score != 5 || hits[1].Score != 1 {
		t.Errorf("hits = %+v, want a=5 then b=1", hits)
	}
	titleOnly := search(t, ix, "go", SearchOptions{Fields: []string{"title"}})
	if len(titleOnly) != 1 || titleOnly[0].Score != 3 {
		t.Errorf("title-only hits = %+v, want a=3", titleOnly)
	}
}

func TestTieBreakByDocID(t *testing.T) {
	ix := newTestIndex()
	for _, id := range []string{"c", "a", "b"} {
		if err := ix.Add(doc(id, "same", "")); err != nil {
			t.Fatal(err)
		}
	}
	hits := search(t, ix, "same", SearchOptions{Limit: 2})
	if len(hits) != 2 || hits[0].DocID != "a" || hits[1].DocID != "b" {
		t.Errorf("hits = %+v, want a, b", hits)
	}
}

func TestMatchModes(t *testing.T) {
	ix := newTestIndex()
	if err := ix.Add(doc("1", "red apple", "")); err != nil {
		t.Fatal(err)
	}
	if err := ix.Add(doc("2", "red car", "")); err != nil {
		t.Fatal(err)
	}
	and := search(t, ix, "red apple", SearchOptions{Mode: MatchAnd})
	if len(and) != 1 || and[0].DocID != "1" {
		t.Errorf("AND hits = %+v, want only 1", and)
	}
	or := search(t, ix, "red apple", SearchOptions{Mode: MatchOr})
	if len(or) != 2 || or[0].DocID != "1" {
		t.Errorf("OR hits = %+v, want 1 then 2", or)
	}
}

func TestFuzzyExpansion(t *testing.T) {
	ix := newTestIndex()
	if err := ix.Add(doc("1", "distributed", "")); err != nil {
		t.Fatal(err)
	}
	if hits := search(t, ix, "distribted", SearchOptions{}); len(hits) != 0 {
		t.Errorf("exact search matched a typo: %+v", hits)
	}
	hits := search(t, ix, "distribted", SearchOptions{Fuzzy: 1})
	if len(hits) != 1 || hits[0].Terms[0] != "distributed" {
		t.Errorf("fuzzy hits = %+v", hits)
	}
	if hits := search(t, ix, "xistributed", SearchOptions{Fuzzy: 1}); len(hits) != 0 {
		t.Errorf("expansion crossed first-rune partition: %+v", hits)
	}
}

// Diacritics are folded at index and query time, so the unaccented query
// matches without spending the fuzzy budget.
func TestDiacriticFoldingScenario(t *testing.T) {
	ix := newTestIndex()
	if err := ix.Add(doc("1", "Ma Trận", "Ma Trận là phim khoa học viễn tưởng")); err != nil {
		t.Fatal(err)
	}
	for _, fuzzy := range []int{0, 1} {
		hits := search(t, ix, "ma tran", SearchOptions{Fuzzy: fuzzy})
		if len(hits) != 1 || hits[0].DocID != "1" {
			t.Errorf("fuzzy=%d hits = %+v, want doc 1", fuzzy, hits)
		}
	}
}

func TestWithoutFoldingDiacriticsDoNotMatch(t *testing.T) {
	ix := New(analyzer.New(analyzer.WithDiacriticFolding(false)))
	if err := ix.Add(doc("1", "Ma Trận", "")); err != nil {
		t.Fatal(err)
	}
	if hits := search(t, ix, "ma tran", SearchOptions{}); len(hits) != 0 {
		t.Errorf("hits = %+v, want none", hits)
	}
}

func TestPrefixModeTypeahead(t *testing.T) {
	ix := newTestIndex(analyzer.WithMode(analyzer.Prefix))
	if err := ix.Add(doc("1", "khoa học", "")); err != nil {
		t.Fatal(err)
	}
	hits := search(t, ix, "kho", SearchOptions{})
	if len(hits) != 1 {
		t.Fatalf("prefix hits = %+v", hits)
	}
	if err := ix.Remove("1"); err != nil {
		t.Fatal(err)
	}
	if st := ix.Stats(); st.Terms != 0 || st.Postings != 0 {
		t.Errorf("Stats after remove = %+v, want empty", st)
	}
}

func TestEmptyQuery(t *testing.T) {
	ix := newTestIndex()
	if err := ix.Add(doc("1", "the", "")); err != nil {
		t.Fatal(err)
	}
	if hits := search(t, ix, "the", SearchOptions{}); len(hits) != 0 {
		t.Errorf("stop-word query hits = %+v", hits)
	}
}

func TestSearchCancelled(t *testing.T) {
	ix := newTestIndex()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ix.Search(ctx, "anything", SearchOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Search(cancelled) = %v", err)
	}
}

func TestClear(t *testing.T) {
	ix := newTestIndex()
	if err := ix.Add(doc("1", "alpha", "")); err != nil {
		t.Fatal(err)
	}
	ix.Clear()
	if st := ix.Stats(); st != (Stats{}) {
		t.Errorf("Stats after Clear = %+v", st)
	}
	if err := ix.Add(doc("1", "alpha", "")); err != nil {
		t.Errorf("Add after Clear = %v", err)
	}
}

func TestConcurrentReadersSeeCompleteUpdates(t *testing.T) {
	ix := newTestIndex()
	if err := ix.Add(doc("1", "alpha beta", "")); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				hits, err := ix.Search(context.Background(), "alpha beta", SearchOptions{Mode: MatchOr})
				if err != nil {
					t.Error(err)
					return
				}
				// Either version has exactly one matching term set; a
				// half-applied update would yield zero hits.
				if len(hits) != 1 {
					t.Errorf("observed half-applied update: %+v", hits)
					return
				}
			}
		}()
	}
	for i := 0; i < 200; i++ {
		title := "alpha"
		if i%2 == 0 {
			title = "beta"
		}
		if err := ix.Update(doc("1", title, fmt.Sprint(i))); err != nil {
			t.Fatal(err)
		}
	}
	close(stop)
	wg.Wait()
}

func TestBoundedLevenshtein(t *testing.T) {
	tests := []struct {
		a, b      string
		threshold int
		want      int
	}{
		{"kitten", "sitting", 3, 3},
		{"kitten", "sitting", 2, 3},
		{"trận", "tran", 1, 1},
		{"same", "same", 0, 0},
		{"ab", "abcd", 1, 2},
	}
	for _, tt := range tests {
		if got := boundedLevenshtein([]rune(tt.a), []rune(tt.b), tt.threshold); got != tt.want {
			t.Errorf("boundedLevenshtein(%q, %q, %d) = %d, want %d", tt.a, tt.b, tt.threshold, got, tt.want)
		}
	}
}
