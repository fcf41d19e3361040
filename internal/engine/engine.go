// Package engine exposes the product search engine as an explicit owned
// instance: constructed once per process with injected settings and passed
// by handle to every call site. The document store and inverted index are
// guarded by a single read-write lock so a put spanning both appears
// atomic to any concurrent search.
package engine

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopscout/searchcore/internal/catalog"
	"github.com/shopscout/searchcore/internal/history"
	"github.com/shopscout/searchcore/internal/index"
	"github.com/shopscout/searchcore/internal/index/tokenizer"
	"github.com/shopscout/searchcore/internal/search"
	"github.com/shopscout/searchcore/internal/search/cache"
	"github.com/shopscout/searchcore/pkg/config"
	"github.com/shopscout/searchcore/pkg/metrics"
)

const indexVersion = "1"

// Metadata describes the current index state.
type Metadata struct {
	Version       string               `json:"version"`
	CreatedAt     time.Time            `json:"created_at"`
	LastUpdatedAt time.Time            `json:"last_updated_at"`
	DocumentCount int                  `json:"document_count"`
	SizeBytes     int64                `json:"size_bytes"`
	Settings      config.IndexSettings `json:"settings"`
}

// RecordError reports one rejected record from an ingest batch.
type RecordError struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// IngestReport summarises one ingest batch. Rejected records never abort
// the rest of the batch.
type IngestReport struct {
	Ingested         int                     `json:"ingested"`
	Rejected         []RecordError           `json:"rejected,omitempty"`
	Evicted          []string                `json:"evicted,omitempty"`
	CapacityExceeded bool                    `json:"capacity_exceeded,omitempty"`
	Accepted         []catalog.ProductRecord `json:"-"`
}

// Engine is the unified search engine instance.
type Engine struct {
	mu sync.RWMutex

	settings config.IndexSettings
	eviction config.EvictionConfig
	searchCf config.SearchConfig

	tok      *tokenizer.Tokenizer
	builder  *index.Builder
	store    *index.Store
	inverted *index.Inverted
	searcher *search.Searcher
	cache    *cache.QueryCache
	recorder *history.Recorder
	metrics  *metrics.Metrics

	createdAt   time.Time
	lastUpdated time.Time
	now         func() time.Time
	logger      *slog.Logger
}

// New constructs an Engine from immutable settings. qcache and recorder
// are owned by the caller so their sinks and tiers can be wired first;
// m may be nil in tests.
func New(cfg *config.Config, qcache *cache.QueryCache, recorder *history.Recorder, m *metrics.Metrics) *Engine {
	tok := tokenizer.New(cfg.Index)
	store := index.NewStore()
	inverted := index.NewInverted()
	now := time.Now
	e := &Engine{
		settings:    cfg.Index,
		eviction:    cfg.Eviction,
		searchCf:    cfg.Search,
		tok:         tok,
		builder:     index.NewBuilder(tok),
		store:       store,
		inverted:    inverted,
		searcher:    search.NewSearcher(store, inverted, tok, cfg.Index, cfg.Search.MaxSuggestions),
		cache:       qcache,
		recorder:    recorder,
		metrics:     m,
		createdAt:   now(),
		lastUpdated: now(),
		now:         now,
		logger:      slog.Default().With("component", "engine"),
	}
	return e
}

// WithClock overrides every internal clock. Test hook.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	e.builder.WithClock(now)
	e.searcher.WithClock(now)
	return e
}

// IngestBatch builds and indexes a batch of records. Invalid records are
// rejected individually; the batch proceeds. When the corpus exceeds the
// size budget the lowest-value documents are evicted, preferring existing
// documents over ones ingested in this call. If the budget cannot hold the
// batch even after maximal eviction, the lowest-value incoming records are
// shed and the report flags capacity exhaustion.
func (e *Engine) IngestBatch(ctx context.Context, records []catalog.ProductRecord) *IngestReport {
	report := &IngestReport{}
	docs := make([]index.Document, 0, len(records))
	for _, record := range records {
		doc, err := e.builder.Build(record)
		if err != nil {
			report.Rejected = append(report.Rejected, RecordError{ID: record.ID, Reason: err.Error()})
			if e.metrics != nil {
				e.metrics.DocsRejectedTotal.Inc()
			}
			continue
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return report
	}

	e.mu.Lock()
	protected := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		protected[doc.ID()] = struct{}{}
	}
	for _, doc := range docs {
		// Full re-post: stale postings for an updated ID are removed
		// inside Post before the new ones are added.
		e.inverted.Post(doc.ID(), doc.AllTokens())
		e.store.Put(doc)
	}
	evicted, shed := e.evictLocked(protected)
	e.lastUpdated = e.now()
	e.mu.Unlock()

	// Invalidate before returning so no caller observes a cache entry
	// computed against the pre-mutation corpus.
	e.cache.InvalidateAll(ctx)

	shedSet := make(map[string]struct{}, len(shed))
	for _, id := range shed {
		shedSet[id] = struct{}{}
		report.Rejected = append(report.Rejected, RecordError{ID: id, Reason: "index capacity exceeded"})
		report.CapacityExceeded = true
	}
	for _, doc := range docs {
		if _, wasShed := shedSet[doc.ID()]; wasShed {
			continue
		}
		report.Ingested++
		report.Accepted = append(report.Accepted, doc.Record)
	}
	report.Evicted = evicted

	if e.metrics != nil {
		e.metrics.DocsIngestedTotal.Add(float64(report.Ingested))
		e.metrics.DocsEvictedTotal.WithLabelValues("budget").Add(float64(len(evicted)))
		e.publishGauges()
	}
	if report.CapacityExceeded {
		e.logger.Warn("ingest shed low-value records", "shed", len(shed), "budget_bytes", e.eviction.BudgetBytes)
	}
	return report
}

// Restore rebuilds the in-memory structures from persisted records at
// startup. Derived fields are regenerated so current settings apply.
func (e *Engine) Restore(records []catalog.ProductRecord) int {
	restored := 0
	e.mu.Lock()
	for _, record := range records {
		doc, err := e.builder.Build(record)
		if err != nil {
			e.logger.Error("skipping unrestorable record", "id", record.ID, "error", err)
			continue
		}
		e.inverted.Post(doc.ID(), doc.AllTokens())
		e.store.Put(doc)
		restored++
	}
	e.evictLocked(nil)
	e.mu.Unlock()
	if e.metrics != nil {
		e.publishGauges()
	}
	return restored
}

// Remove deletes a document by ID, reporting whether it existed.
func (e *Engine) Remove(ctx context.Context, id string) bool {
	e.mu.Lock()
	_, existed := e.store.Get(id)
	if existed {
		e.inverted.Unpost(id)
		e.store.Remove(id)
		e.lastUpdated = e.now()
	}
	e.mu.Unlock()
	if existed {
		e.cache.InvalidateAll(ctx)
		if e.metrics != nil {
			e.metrics.DocsEvictedTotal.WithLabelValues("explicit").Inc()
			e.publishGauges()
		}
	}
	return existed
}

// RemoveOlderThan deletes every document ingested before cutoff. Used by
// the max-age sweep. Returns the removed IDs.
func (e *Engine) RemoveOlderThan(ctx context.Context, cutoff time.Time) []string {
	e.mu.Lock()
	var removed []string
	for _, doc := range e.store.All() {
		if doc.Record.IngestedTime().Before(cutoff) {
			e.inverted.Unpost(doc.ID())
			e.store.Remove(doc.ID())
			removed = append(removed, doc.ID())
		}
	}
	if len(removed) > 0 {
		e.lastUpdated = e.now()
	}
	e.mu.Unlock()
	if len(removed) > 0 {
		e.cache.InvalidateAll(ctx)
		if e.metrics != nil {
			e.metrics.DocsEvictedTotal.WithLabelValues("max_age").Add(float64(len(removed)))
			e.publishGauges()
		}
	}
	return removed
}

// EvictIfOverBudget applies the budget eviction policy outside an ingest,
// returning the evicted IDs.
func (e *Engine) EvictIfOverBudget(ctx context.Context) []string {
	e.mu.Lock()
	evicted, _ := e.evictLocked(nil)
	if len(evicted) > 0 {
		e.lastUpdated = e.now()
	}
	e.mu.Unlock()
	if len(evicted) > 0 {
		e.cache.InvalidateAll(ctx)
		if e.metrics != nil {
			e.metrics.DocsEvictedTotal.WithLabelValues("budget").Add(float64(len(evicted)))
			e.publishGauges()
		}
	}
	return evicted
}

// evictLocked removes lowest-value documents until the corpus fits the
// trigger threshold. Documents in protected are ingested by the current
// call and are only evicted when no alternatives remain; those removals
// are returned separately as shed. Caller holds the write lock.
func (e *Engine) evictLocked(protected map[string]struct{}) (evicted []string, shed []string) {
	budget := e.eviction.BudgetBytes
	if budget <= 0 {
		return nil, nil
	}
	fraction := e.eviction.TriggerFraction
	if fraction <= 0 || fraction > 1 {
		fraction = 0.9
	}
	threshold := int64(float64(budget) * fraction)
	if e.store.SizeBytes() <= threshold {
		return nil, nil
	}

	type scored struct {
		id        string
		score     float64
		protected bool
	}
	now := e.now()
	candidates := make([]scored, 0, e.store.Count())
	for _, doc := range e.store.All() {
		_, prot := protected[doc.ID()]
		days := now.Sub(doc.Record.IngestedTime()).Hours() / 24
		candidates = append(candidates, scored{
			id: doc.ID(),
			// Stale, unpopular documents go first.
			score:     doc.Popularity - days,
			protected: prot,
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		// Unprotected before protected, then lowest removal score first.
		if candidates[i].protected != candidates[j].protected {
			return !candidates[i].protected
		}
		if candidates[i].score != candidates[j].score {
			return candidates[i].score < candidates[j].score
		}
		return candidates[i].id < candidates[j].id
	})

	for _, cand := range candidates {
		if e.store.SizeBytes() <= threshold {
			break
		}
		e.inverted.Unpost(cand.id)
		e.store.Remove(cand.id)
		if cand.protected {
			shed = append(shed, cand.id)
		} else {
			evicted = append(evicted, cand.id)
		}
	}
	return evicted, shed
}

// Search serves a query through the cache. It applies pagination defaults,
// records the search in the history log, and returns whether the result
// came from cache.
func (e *Engine) Search(ctx context.Context, req search.Request) (*search.Result, bool, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.Limit == 0 {
		req.Limit = e.searchCf.DefaultLimit
	}
	if e.searchCf.MaxLimit > 0 && req.Limit > e.searchCf.MaxLimit {
		req.Limit = e.searchCf.MaxLimit
	}
	if err := req.Validate(); err != nil {
		return nil, false, err
	}

	start := e.now()
	result, cacheHit, err := e.cache.GetOrCompute(ctx, req.CacheKey(), func() (*search.Result, error) {
		e.mu.RLock()
		defer e.mu.RUnlock()
		return e.searcher.Search(req)
	})
	if err != nil {
		if e.metrics != nil {
			e.metrics.SearchesTotal.WithLabelValues("error").Inc()
		}
		return nil, false, err
	}

	e.recorder.Record(req.Text, req.Filters, result.Total)

	if e.metrics != nil {
		resultType := "hit"
		if result.Total == 0 {
			resultType = "zero_result"
		}
		cacheStatus := "miss"
		if cacheHit {
			cacheStatus = "hit"
			e.metrics.CacheHitsTotal.Inc()
		} else {
			e.metrics.CacheMissesTotal.Inc()
		}
		e.metrics.SearchesTotal.WithLabelValues(resultType).Inc()
		e.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
		e.metrics.SearchResultsCount.Observe(float64(len(result.Documents)))
	}
	return result, cacheHit, nil
}

// Metadata returns the current index metadata.
func (e *Engine) Metadata() Metadata {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Metadata{
		Version:       indexVersion,
		CreatedAt:     e.createdAt,
		LastUpdatedAt: e.lastUpdated,
		DocumentCount: e.store.Count(),
		SizeBytes:     e.store.SizeBytes(),
		Settings:      e.settings,
	}
}

// PopularQueries returns the most frequent recorded queries.
func (e *Engine) PopularQueries(limit int) []history.QueryCount {
	return e.recorder.PopularQueries(limit)
}

// DocumentCount returns the number of indexed documents.
func (e *Engine) DocumentCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Count()
}

// SizeBytes returns the approximate corpus byte size.
func (e *Engine) SizeBytes() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.SizeBytes()
}

// Lookup returns the IDs posted under a normalised token. Diagnostic
// surface used by tests and the admin endpoint.
func (e *Engine) Lookup(token string) []string {
	e.mu.RLock()
	set := e.inverted.Lookup(token)
	e.mu.RUnlock()
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (e *Engine) publishGauges() {
	e.mu.RLock()
	count := e.store.Count()
	size := e.store.SizeBytes()
	e.mu.RUnlock()
	e.metrics.DocumentCount.Set(float64(count))
	e.metrics.IndexSizeBytes.Set(float64(size))
}
