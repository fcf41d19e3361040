// Package history keeps the append-only search log used to derive popular
// queries. Entries are immutable once recorded and only removed by the
// age-based retention sweep.
package history

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shopscout/searchcore/internal/search"
)

// Entry is one recorded search. The filter snapshot is kept for offline
// analysis and is never joined back into ranking.
type Entry struct {
	ID          string         `json:"id"`
	Query       string         `json:"query"`
	Filters     search.Filters `json:"filters"`
	ResultCount int            `json:"result_count"`
	RecordedAt  time.Time      `json:"recorded_at"`
}

// QueryCount is one row of the popular-queries ranking.
type QueryCount struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

// Sink receives each recorded entry, typically for durable storage. Sinks
// are invoked outside the recorder's lock and must not block on the
// caller's behalf.
type Sink func(Entry)

// Recorder is the in-memory append-only log.
type Recorder struct {
	mu      sync.RWMutex
	entries []Entry
	counts  map[string]int
	sink    Sink
	now     func() time.Time
}

// NewRecorder creates an empty Recorder. sink may be nil.
func NewRecorder(sink Sink) *Recorder {
	return &Recorder{
		counts: make(map[string]int),
		sink:   sink,
		now:    time.Now,
	}
}

// WithClock overrides the recorder's clock. Test hook.
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.now = now
	return r
}

// SetSink installs the durable sink after construction, which breaks the
// construction cycle between the recorder and the lifecycle manager.
func (r *Recorder) SetSink(sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = sink
}

// Record appends one search to the log. Empty queries are not recorded.
func (r *Recorder) Record(query string, filters search.Filters, resultCount int) {
	if query == "" {
		return
	}
	entry := Entry{
		ID:          uuid.NewString(),
		Query:       query,
		Filters:     filters,
		ResultCount: resultCount,
		RecordedAt:  r.now(),
	}
	r.mu.Lock()
	r.entries = append(r.entries, entry)
	// Grouping is exact string match, deliberately case-sensitive: folding
	// case here would silently change the observable popular-query ranking.
	r.counts[query]++
	sink := r.sink
	r.mu.Unlock()

	if sink != nil {
		sink(entry)
	}
}

// PopularQueries returns up to limit queries ranked by frequency
// descending, ties broken lexicographically.
func (r *Recorder) PopularQueries(limit int) []QueryCount {
	r.mu.RLock()
	out := make([]QueryCount, 0, len(r.counts))
	for query, count := range r.counts {
		out = append(out, QueryCount{Query: query, Count: count})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Query < out[j].Query
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Len returns the number of log entries.
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Prune drops entries older than maxAge and rebuilds the frequency table.
// Returns the number of entries removed.
func (r *Recorder) Prune(maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}
	cutoff := r.now().Add(-maxAge)
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.entries[:0]
	removed := 0
	counts := make(map[string]int, len(r.counts))
	for _, entry := range r.entries {
		if entry.RecordedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, entry)
		counts[entry.Query]++
	}
	r.entries = kept
	r.counts = counts
	return removed
}

// Load replaces the log with previously persisted entries, used at
// startup recovery.
func (r *Recorder) Load(entries []Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append([]Entry(nil), entries...)
	r.counts = make(map[string]int, len(entries))
	for _, entry := range entries {
		r.counts[entry.Query]++
	}
}
