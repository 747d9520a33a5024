// Package index implements the in-memory inverted index. Tokens map to
// per-field postings; the vocabulary is partitioned by first rune so fuzzy
// expansion only scans tokens that could plausibly match.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/analyzer"
	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/peersearch/pkg/errors"
)

// MatchMode decides how multiple query tokens combine.
type MatchMode int

const (
	MatchAnd MatchMode = iota
	MatchOr
)

func (m MatchMode) String() string {
	if m == MatchOr {
		return "or"
	}
	return "and"
}

// ParseMatchMode accepts "and"/"or" in any case; empty means AND.
func ParseMatchMode(s string) (MatchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "and":
		return MatchAnd, nil
	case "or":
		return MatchOr, nil
	default:
		return MatchAnd, fmt.Errorf("%w: match mode %q must be and or or", apperrors.ErrInvalidInput, s)
	}
}

// SearchOptions restricts and shapes a query. Zero Limit means unlimited.
type SearchOptions struct {
	Fields []string
	Limit  int
	Fuzzy  int
	Mode   MatchMode
}

// Index is safe for concurrent use. Mutations hold the write lock for the
// whole remove-then-insert so readers never see a half-updated document.
type Index struct {
	mu       sync.RWMutex
	analyzer *analyzer.Analyzer
	boosts   map[string]float64
	postings map[string]map[string][]Posting
	docTerms map[string][]string
	vocab    map[rune]map[string]struct{}
	size     int
	logger   *slog.Logger
}

// Option configures an Index.
type Option func(*Index)

// WithFieldBoosts sets boosts used for fields a document does not weight itself.
func WithFieldBoosts(boosts map[string]float64) Option {
	return func(ix *Index) {
		ix.boosts = boosts
	}
}

func New(a *analyzer.Analyzer, opts ...Option) *Index {
	ix := &Index{
		analyzer: a,
		postings: make(map[string]map[string][]Posting),
		docTerms: make(map[string][]string),
		vocab:    make(map[rune]map[string]struct{}),
		logger:   slog.Default().With("component", "index"),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Add indexes a new document. It fails with ErrDocumentExists if the id is
// already indexed and with ErrAnalyzer if any field cannot be tokenized.
func (ix *Index) Add(doc document.Document) error {
	termData, err := ix.analyze(doc)
	if err != nil {
		return err
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, exists := ix.docTerms[doc.ID]; exists {
		return fmt.Errorf("indexing %s: %w", doc.ID, apperrors.ErrDocumentExists)
	}
	ix.insertLocked(doc.ID, termData)
	ix.logger.Debug("document indexed", "doc_id", doc.ID, "terms", len(termData))
	return nil
}

// Update replaces every posting of an indexed document with postings derived
// from doc. Unknown ids fail with ErrDocumentNotFound.
func (ix *Index) Update(doc document.Document) error {
	termData, err := ix.analyze(doc)
	if err != nil {
		return err
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, exists := ix.docTerms[doc.ID]; !exists {
		return fmt.Errorf("updating %s: %w", doc.ID, apperrors.ErrDocumentNotFound)
	}
	ix.removeLocked(doc.ID)
	ix.insertLocked(doc.ID, termData)
	ix.logger.Debug("document reindexed", "doc_id", doc.ID, "terms", len(termData))
	return nil
}

// Put indexes doc whether or not it is already present. Replicated writes and
// rebuilds use it because a peer's view of existence may differ from ours.
func (ix *Index) Put(doc document.Document) error {
	termData, err := ix.analyze(doc)
	if err != nil {
		return err
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, exists := ix.docTerms[doc.ID]; exists {
		ix.removeLocked(doc.ID)
	}
	ix.insertLocked(doc.ID, termData)
	return nil
}

// Remove deletes every posting that references id.
func (ix *Index) Remove(id string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, exists := ix.docTerms[id]; !exists {
		return fmt.Errorf("removing %s: %w", id, apperrors.ErrDocumentNotFound)
	}
	ix.removeLocked(id)
	ix.logger.Debug("document removed from index", "doc_id", id)
	return nil
}

// Clear drops all postings ahead of a wholesale rebuild.
func (ix *Index) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.postings = make(map[string]map[string][]Posting)
	ix.docTerms = make(map[string][]string)
	ix.vocab = make(map[rune]map[string]struct{})
	ix.size = 0
	ix.logger.Info("index cleared")
}

func (ix *Index) Contains(id string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.docTerms[id]
	return ok
}

// Search ranks documents against query. Scores sum termFrequency*fieldBoost
// over every matched (expanded) token; ties break on ascending document id.
func (ix *Index) Search(ctx context.Context, query string, opts SearchOptions) ([]Hit, error) {
	queryTokens := dedupe(analyzer.Collect(ix.analyzer.QueryTokens(query)))
	if len(queryTokens) == 0 {
		return []Hit{}, nil
	}
	var fieldSet map[string]struct{}
	if len(opts.Fields) > 0 {
		fieldSet = make(map[string]struct{}, len(opts.Fields))
		for _, f := range opts.Fields {
			fieldSet[f] = struct{}{}
		}
	}

	type docMatch struct {
		score   float64
		matched map[int]struct{}
		terms   map[string]struct{}
	}
	matches := make(map[string]*docMatch)

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	for qi, qt := range queryTokens {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, term := range ix.expandLocked(qt, opts.Fuzzy) {
			for docID, postings := range ix.postings[term] {
				for _, p := range postings {
					if fieldSet != nil {
						if _, ok := fieldSet[p.Field]; !ok {
							continue
						}
					}
					m, ok := matches[docID]
					if !ok {
						m = &docMatch{matched: make(map[int]struct{}), terms: make(map[string]struct{})}
						matches[docID] = m
					}
					m.score += float64(p.TermFrequency) * p.FieldBoost
					m.matched[qi] = struct{}{}
					m.terms[term] = struct{}{}
				}
			}
		}
	}

	hits := make([]Hit, 0, len(matches))
	for docID, m := range matches {
		if opts.Mode == MatchAnd && len(m.matched) != len(queryTokens) {
			continue
		}
		terms := make([]string, 0, len(m.terms))
		for t := range m.terms {
			terms = append(terms, t)
		}
		sort.Strings(terms)
		hits = append(hits, Hit{
			DocID: docID,
			Score: math.Round(m.score*10000) / 10000,
			Terms: terms,
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].DocID < hits[j].DocID
	})
	if opts.Limit > 0 && len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}
	return hits, nil
}

// Postings returns a copy of the postings for term sorted by document id and
// field.
func (ix *Index) Postings(term string) PostingList {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return collectPostings(ix.postings[term])
}

// Snapshot returns every term with its postings in term order.
func (ix *Index) Snapshot() []TermEntry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	entries := make([]TermEntry, 0, len(ix.postings))
	for term, docs := range ix.postings {
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: collectPostings(docs),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries
}

func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return Stats{
		Documents: len(ix.docTerms),
		Terms:     len(ix.postings),
		Postings:  ix.size,
	}
}

// analyze tokenizes every field outside the lock. Term frequency counts
// occurrences of the token within one field.
func (ix *Index) analyze(doc document.Document) (map[string][]Posting, error) {
	if strings.TrimSpace(doc.ID) == "" {
		return nil, fmt.Errorf("%w: document id is required", apperrors.ErrInvalidInput)
	}
	termData := make(map[string][]Posting)
	for _, field := range doc.FieldNames() {
		text := doc.Fields[field]
		if err := ix.analyzer.Validate(text); err != nil {
			return nil, fmt.Errorf("field %q of %s: %w", field, doc.ID, err)
		}
		boost := ix.boost(doc, field)
		counts := make(map[string]int)
		for tok := range ix.analyzer.Tokens(text) {
			counts[tok]++
		}
		for tok, n := range counts {
			termData[tok] = append(termData[tok], Posting{
				DocID:         doc.ID,
				Field:         field,
				TermFrequency: n,
				FieldBoost:    boost,
			})
		}
	}
	return termData, nil
}

func (ix *Index) boost(doc document.Document, field string) float64 {
	if w, ok := doc.Weights[field]; ok && w > 0 {
		return w
	}
	if w, ok := ix.boosts[field]; ok && w > 0 {
		return w
	}
	return 1
}

func (ix *Index) insertLocked(docID string, termData map[string][]Posting) {
	terms := make([]string, 0, len(termData))
	for term, postings := range termData {
		docs, ok := ix.postings[term]
		if !ok {
			docs = make(map[string][]Posting)
			ix.postings[term] = docs
			bucket := firstRune(term)
			if ix.vocab[bucket] == nil {
				ix.vocab[bucket] = make(map[string]struct{})
			}
			ix.vocab[bucket][term] = struct{}{}
		}
		docs[docID] = postings
		ix.size += len(postings)
		terms = append(terms, term)
	}
	ix.docTerms[docID] = terms
}

func (ix *Index) removeLocked(docID string) {
	for _, term := range ix.docTerms[docID] {
		docs := ix.postings[term]
		ix.size -= len(docs[docID])
		delete(docs, docID)
		if len(docs) == 0 {
			delete(ix.postings, term)
			bucket := firstRune(term)
			delete(ix.vocab[bucket], term)
			if len(ix.vocab[bucket]) == 0 {
				delete(ix.vocab, bucket)
			}
		}
	}
	delete(ix.docTerms, docID)
}

// expandLocked returns the indexed tokens within fuzzy edits of token that
// share its first rune, in sorted order.
func (ix *Index) expandLocked(token string, fuzzy int) []string {
	if fuzzy <= 0 {
		if _, ok := ix.postings[token]; ok {
			return []string{token}
		}
		return nil
	}
	target := []rune(token)
	var out []string
	for term := range ix.vocab[firstRune(token)] {
		if boundedLevenshtein(target, []rune(term), fuzzy) <= fuzzy {
			out = append(out, term)
		}
	}
	slices.Sort(out)
	return out
}

func collectPostings(docs map[string][]Posting) PostingList {
	result := make(PostingList, 0, len(docs))
	for _, postings := range docs {
		result = append(result, postings...)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].DocID != result[j].DocID {
			return result[i].DocID < result[j].DocID
		}
		return result[i].Field < result[j].Field
	})
	return result
}

func dedupe(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
