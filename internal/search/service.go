// Package search is the composition point of a node. Reads go cache, then
// index, then store; writes go store, then index, then cache invalidation,
// and are handed to the replication dispatcher after they are committed
// locally.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/analyzer"
	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/document"
	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/replication"
	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/store"
	"github.com/Adithya-Monish-Kumar-K/peersearch/internal/telemetry"
	"github.com/Adithya-Monish-Kumar-K/peersearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/peersearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/peersearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/peersearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/peersearch/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/peersearch/pkg/tracing"
)

// Result is one ranked document with its highlighted fields.
type Result struct {
	Document   document.Document `json:"document"`
	Score      float64           `json:"score"`
	Highlights map[string]string `json:"highlights,omitempty"`
}

// Response answers one search.
type Response struct {
	Query   string   `json:"query"`
	Cached  bool     `json:"cached"`
	Total   int      `json:"total"`
	Results []Result `json:"results"`
}

// Dispatcher accepts committed intents for background broadcast.
type Dispatcher interface {
	Submit(intent replication.Intent) bool
	Pending() int
}

// Cluster reports peer membership and health.
type Cluster interface {
	Peers() []replication.Peer
	PeerStates() map[string]resilience.State
}

// Deps wires a Service. Dispatcher, Cluster and Telemetry may be nil for a
// single-node setup; a nil Metrics gets a private registry.
type Deps struct {
	NodeID     string
	Analyzer   *analyzer.Analyzer
	Index      *index.Index
	Store      store.Store
	Cache      *cache.QueryCache[[]Result]
	Dispatcher Dispatcher
	Cluster    Cluster
	Telemetry  telemetry.Recorder
	Metrics    *metrics.Metrics
	Limits     config.SearchConfig
}

type Service struct {
	nodeID     string
	analyzer   *analyzer.Analyzer
	index      *index.Index
	store      store.Store
	cache      *cache.QueryCache[[]Result]
	dispatcher Dispatcher
	cluster    Cluster
	telemetry  telemetry.Recorder
	metrics    *metrics.Metrics
	limits     config.SearchConfig
	started    time.Time
	logger     *slog.Logger

	// writeMu orders store and index mutations so the index always
	// reflects the store's latest version of each document.
	writeMu sync.Mutex
}

func New(d Deps) *Service {
	if d.Metrics == nil {
		d.Metrics = metrics.NewNop()
	}
	return &Service{
		nodeID:     d.NodeID,
		analyzer:   d.Analyzer,
		index:      d.Index,
		store:      d.Store,
		cache:      d.Cache,
		dispatcher: d.Dispatcher,
		cluster:    d.Cluster,
		telemetry:  d.Telemetry,
		metrics:    d.Metrics,
		limits:     d.Limits,
		started:    time.Now(),
		logger:     slog.Default().With("component", "search-service"),
	}
}

func (s *Service) NodeID() string {
	return s.nodeID
}

type originKey struct{}

// WithOrigin records the client address for telemetry.
func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, originKey{}, origin)
}

// Search answers opts from the cache or, on a miss, from the index. An
// empty query returns no results without tokenizing or touching the cache.
func (s *Service) Search(ctx context.Context, opts Options) (Response, error) {
	if opts.Query == "" {
		return Response{Query: "", Results: []Result{}}, nil
	}
	if opts.Limit <= 0 {
		opts.Limit = s.limits.DefaultLimit
	}
	start := time.Now()
	ctx, root := tracing.StartSpan(ctx, "search", logger.RequestID(ctx))
	defer root.End()
	root.SetAttr("query", opts.Query)

	tokens := analyzer.Collect(s.analyzer.QueryTokens(opts.Query))
	if len(tokens) == 0 {
		return Response{Query: opts.Query, Results: []Result{}}, nil
	}
	fp := cache.Fingerprint(cache.Query{
		Tokens: tokens,
		Fields: opts.Fields,
		Limit:  opts.Limit,
		Fuzzy:  opts.Fuzzy,
		Mode:   opts.Mode.String(),
		Pre:    opts.Pre,
		Post:   opts.Post,
	})

	lookupCtx, lookup := tracing.StartChildSpan(ctx, "cache.lookup")
	results, hit, err := s.cache.GetOrCompute(lookupCtx, fp, func(ctx context.Context) ([]Result, error) {
		return s.compute(ctx, opts)
	})
	lookup.SetAttr("hit", hit)
	lookup.End()

	elapsed := time.Since(start)
	status := "miss"
	if hit {
		status = "hit"
	}
	if err != nil {
		s.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
		return Response{}, fmt.Errorf("searching %q: %w", opts.Query, err)
	}
	resultType := status
	if len(results) == 0 {
		resultType = "zero_result"
	}
	s.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	s.metrics.SearchLatency.WithLabelValues(status).Observe(elapsed.Seconds())
	s.metrics.SearchResultsCount.Observe(float64(len(results)))
	if hit {
		s.metrics.CacheHitsTotal.Inc()
	} else {
		s.metrics.CacheMissesTotal.Inc()
	}

	if s.telemetry != nil {
		origin, _ := ctx.Value(originKey{}).(string)
		s.telemetry.Record(telemetry.QueryEvent{
			Query:     opts.Query,
			Tokens:    tokens,
			Results:   len(results),
			CacheHit:  hit,
			LatencyUs: elapsed.Microseconds(),
			NodeID:    s.nodeID,
			Origin:    origin,
			RequestID: logger.RequestID(ctx),
			Timestamp: start.UTC(),
		})
	}

	return Response{
		Query:   opts.Query,
		Cached:  hit,
		Total:   len(results),
		Results: results,
	}, nil
}

func (s *Service) compute(ctx context.Context, opts Options) ([]Result, error) {
	idxCtx, span := tracing.StartChildSpan(ctx, "index.search")
	hits, err := s.index.Search(idxCtx, opts.Query, index.SearchOptions{
		Fields: opts.Fields,
		Limit:  opts.Limit,
		Fuzzy:  opts.Fuzzy,
		Mode:   opts.Mode,
	})
	span.SetAttr("hits", len(hits))
	span.End()
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return []Result{}, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.DocID
	}
	storeCtx, span := tracing.StartChildSpan(ctx, "store.resolve")
	docs, err := s.store.FindByIDs(storeCtx, ids)
	span.End()
	if err != nil {
		return nil, err
	}

	_, span = tracing.StartChildSpan(ctx, "highlight")
	defer span.End()
	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		doc, ok := docs[h.DocID]
		if !ok {
			// Deleted between the index read and the store read.
			continue
		}
		res := Result{Document: doc, Score: h.Score}
		for _, field := range doc.FieldNames() {
			if len(opts.Fields) > 0 && !slices.Contains(opts.Fields, field) {
				continue
			}
			if marked, ok := Highlight(s.analyzer, doc.Fields[field], h.Terms, opts.Pre, opts.Post); ok {
				if res.Highlights == nil {
					res.Highlights = make(map[string]string)
				}
				res.Highlights[field] = marked
			}
		}
		results = append(results, res)
	}
	return results, nil
}

// List returns every stored document.
func (s *Service) List(ctx context.Context) ([]document.Document, error) {
	return s.store.FindAll(ctx)
}

// Write applies one local mutation: create uses doc, update merges doc onto
// the document with id, delete removes id.
func (s *Service) Write(ctx context.Context, action replication.Action, id string, doc document.Document) (document.Document, error) {
	switch action {
	case replication.ActionCreate:
		return s.Create(ctx, doc)
	case replication.ActionUpdate:
		return s.Update(ctx, id, doc)
	case replication.ActionDelete:
		return s.Delete(ctx, id)
	default:
		return document.Document{}, fmt.Errorf("%w: unknown action %q", apperrors.ErrInvalidInput, action)
	}
}

// Create stores and indexes doc, then schedules its broadcast. If indexing
// fails the stored copy is removed again.
func (s *Service) Create(ctx context.Context, doc document.Document) (document.Document, error) {
	if err := s.validate(doc); err != nil {
		return document.Document{}, err
	}
	s.writeMu.Lock()
	created, err := s.store.Insert(ctx, doc)
	if err != nil {
		s.writeMu.Unlock()
		return document.Document{}, err
	}
	if err := s.index.Add(created); err != nil {
		if _, rbErr := s.store.FindByIDAndDelete(context.WithoutCancel(ctx), created.ID); rbErr != nil {
			s.logger.Error("rollback of unindexed document failed", "doc_id", created.ID, "error", rbErr)
		}
		s.writeMu.Unlock()
		return document.Document{}, err
	}
	s.afterMutation(ctx, replication.ActionCreate, "local")
	s.writeMu.Unlock()

	s.broadcast(replication.ActionCreate, &created, created.ID)
	return created, nil
}

// Update merges patch onto the stored document and reindexes the result.
func (s *Service) Update(ctx context.Context, id string, patch document.Document) (document.Document, error) {
	if err := s.validate(patch); err != nil {
		return document.Document{}, err
	}
	s.writeMu.Lock()
	prev, err := s.store.FindByIDs(ctx, []string{id})
	if err != nil {
		s.writeMu.Unlock()
		return document.Document{}, err
	}
	if _, ok := prev[id]; !ok {
		s.writeMu.Unlock()
		return document.Document{}, fmt.Errorf("updating %s: %w", id, apperrors.ErrDocumentNotFound)
	}
	updated, err := s.store.FindByIDAndUpdate(ctx, id, patch)
	if err != nil {
		s.writeMu.Unlock()
		return document.Document{}, err
	}
	if err := s.reindex(updated); err != nil {
		if rbErr := s.store.Put(context.WithoutCancel(ctx), prev[id]); rbErr != nil {
			s.logger.Error("rollback of unindexed update failed", "doc_id", id, "error", rbErr)
		}
		s.writeMu.Unlock()
		return document.Document{}, err
	}
	s.afterMutation(ctx, replication.ActionUpdate, "local")
	s.writeMu.Unlock()

	s.broadcast(replication.ActionUpdate, &updated, id)
	return updated, nil
}

// Delete removes id from the store and the index.
func (s *Service) Delete(ctx context.Context, id string) (document.Document, error) {
	s.writeMu.Lock()
	deleted, err := s.store.FindByIDAndDelete(ctx, id)
	if err != nil {
		s.writeMu.Unlock()
		return document.Document{}, err
	}
	s.unindex(id)
	s.afterMutation(ctx, replication.ActionDelete, "local")
	s.writeMu.Unlock()

	s.broadcast(replication.ActionDelete, nil, id)
	return deleted, nil
}

// ApplyIntent applies a peer's mutation locally. Intents that originated
// here are ignored, and applied intents are never forwarded.
func (s *Service) ApplyIntent(ctx context.Context, intent replication.Intent) error {
	if err := intent.Validate(); err != nil {
		s.metrics.ReplicationReceivedTotal.WithLabelValues("invalid").Inc()
		return err
	}
	log := logger.FromContext(ctx).With("origin", intent.OriginNodeID, "action", intent.Action, "doc_id", intent.DocID)
	if intent.OriginNodeID == s.nodeID {
		s.metrics.ReplicationReceivedTotal.WithLabelValues("loop").Inc()
		log.Debug("ignoring intent that originated here")
		return nil
	}
	if intent.Document != nil {
		if err := s.validate(*intent.Document); err != nil {
			s.metrics.ReplicationReceivedTotal.WithLabelValues("invalid").Inc()
			return err
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	var err error
	switch intent.Action {
	case replication.ActionCreate, replication.ActionUpdate:
		err = s.applyPut(ctx, *intent.Document)
	case replication.ActionDelete:
		_, err = s.store.FindByIDAndDelete(ctx, intent.DocID)
		if errors.Is(err, apperrors.ErrDocumentNotFound) {
			log.Debug("replicated delete of unknown document")
			err = nil
		}
		if err == nil {
			s.unindex(intent.DocID)
		}
	}
	if err != nil {
		s.metrics.ReplicationReceivedTotal.WithLabelValues("error").Inc()
		log.Warn("failed to apply replicated intent", "error", err)
		return err
	}
	s.afterMutation(ctx, intent.Action, "replica")
	s.metrics.ReplicationReceivedTotal.WithLabelValues("applied").Inc()
	log.Debug("replicated intent applied")
	return nil
}

func (s *Service) applyPut(ctx context.Context, doc document.Document) error {
	prev, err := s.store.FindByIDs(ctx, []string{doc.ID})
	if err != nil {
		return err
	}
	if err := s.store.Put(ctx, doc); err != nil {
		return err
	}
	if err := s.index.Put(doc); err != nil {
		rbCtx := context.WithoutCancel(ctx)
		var rbErr error
		if old, ok := prev[doc.ID]; ok {
			rbErr = s.store.Put(rbCtx, old)
		} else {
			_, rbErr = s.store.FindByIDAndDelete(rbCtx, doc.ID)
		}
		if rbErr != nil {
			s.logger.Error("rollback of unindexed replica write failed", "doc_id", doc.ID, "error", rbErr)
		}
		return err
	}
	return nil
}

// reindex replaces the postings of doc. An index that lost the document
// takes it back in.
func (s *Service) reindex(doc document.Document) error {
	err := s.index.Update(doc)
	if errors.Is(err, apperrors.ErrDocumentNotFound) {
		s.logger.Warn("index was missing stored document, reinserting", "doc_id", doc.ID)
		return s.index.Put(doc)
	}
	return err
}

func (s *Service) unindex(id string) {
	if err := s.index.Remove(id); err != nil {
		s.logger.Warn("index was missing deleted document", "doc_id", id, "error", err)
	}
}

// afterMutation invalidates the cache before the write returns. A failed
// backend flush still leaves every earlier entry unreachable.
func (s *Service) afterMutation(ctx context.Context, action replication.Action, source string) {
	s.cache.InvalidateAll(context.WithoutCancel(ctx))
	s.metrics.CacheInvalidationsTotal.Inc()
	s.metrics.IndexMutationsTotal.WithLabelValues(string(action), source).Inc()
	st := s.index.Stats()
	s.metrics.IndexDocuments.Set(float64(st.Documents))
	s.metrics.IndexTerms.Set(float64(st.Terms))
}

func (s *Service) broadcast(action replication.Action, doc *document.Document, id string) {
	if s.dispatcher == nil {
		return
	}
	if doc != nil {
		c := doc.Clone()
		doc = &c
	}
	s.dispatcher.Submit(replication.NewIntent(action, doc, id, s.nodeID))
}

func (s *Service) validate(doc document.Document) error {
	for _, field := range doc.FieldNames() {
		if err := s.analyzer.Validate(doc.Fields[field]); err != nil {
			return fmt.Errorf("field %q: %w", field, err)
		}
	}
	return nil
}

// Rebuild replaces the index with the store's current contents. Transient
// store unavailability is retried; documents the analyzer rejects are
// skipped and logged.
func (s *Service) Rebuild(ctx context.Context) (int, error) {
	start := time.Now()
	// Held across the drain so no write lands between the read and Clear.
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	var docs []document.Document
	err := resilience.Retry(ctx, "store-drain", resilience.RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Retryable: func(err error) bool {
			return errors.Is(err, apperrors.ErrStoreUnavailable)
		},
	}, func(ctx context.Context) error {
		var err error
		docs, err = s.store.FindAll(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("draining document store: %w", err)
	}

	s.index.Clear()
	indexed := 0
	for _, doc := range docs {
		if err := s.index.Add(doc); err != nil {
			s.logger.Warn("skipping document during rebuild", "doc_id", doc.ID, "error", err)
			continue
		}
		indexed++
	}
	s.afterMutation(ctx, "rebuild", "store")
	s.logger.Info("index rebuilt",
		"documents", indexed,
		"skipped", len(docs)-indexed,
		"duration", time.Since(start),
	)
	return indexed, nil
}

// InvalidateCache drops every cached result.
func (s *Service) InvalidateCache(ctx context.Context) error {
	s.metrics.CacheInvalidationsTotal.Inc()
	return s.cache.InvalidateAll(ctx)
}

// PeerStatus is one peer as seen from this node.
type PeerStatus struct {
	ID      string `json:"id"`
	Addr    string `json:"addr"`
	Circuit string `json:"circuit"`
}

// Stats is a counts-only snapshot of the node.
type Stats struct {
	NodeID             string       `json:"node_id"`
	TotalDocs          int          `json:"total_docs"`
	IndexDocs          int          `json:"index_docs"`
	IndexTerms         int          `json:"index_terms"`
	IndexPostings      int          `json:"index_postings"`
	CacheSize          int          `json:"cache_size"`
	CacheHits          int64        `json:"cache_hits"`
	CacheMisses        int64        `json:"cache_misses"`
	CacheGeneration    uint64       `json:"cache_generation"`
	PendingReplication int          `json:"pending_replication"`
	UptimeSec          float64      `json:"uptime_sec"`
	MemoryMB           float64      `json:"memory_mb"`
	Peers              []PeerStatus `json:"peers"`
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	total, err := s.store.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	idx := s.index.Stats()
	cs := s.cache.Stats(ctx)
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	st := Stats{
		NodeID:          s.nodeID,
		TotalDocs:       total,
		IndexDocs:       idx.Documents,
		IndexTerms:      idx.Terms,
		IndexPostings:   idx.Postings,
		CacheSize:       cs.Entries,
		CacheHits:       cs.Hits,
		CacheMisses:     cs.Misses,
		CacheGeneration: cs.Generation,
		UptimeSec:       float64(time.Since(s.started).Round(100*time.Millisecond)) / float64(time.Second),
		MemoryMB:        float64(mem.HeapAlloc) / (1 << 20),
		Peers:           []PeerStatus{},
	}
	if s.dispatcher != nil {
		st.PendingReplication = s.dispatcher.Pending()
	}
	if s.cluster != nil {
		states := s.cluster.PeerStates()
		for _, p := range s.cluster.Peers() {
			st.Peers = append(st.Peers, PeerStatus{ID: p.ID, Addr: p.Addr, Circuit: states[p.ID].String()})
		}
	}
	return st, nil
}
