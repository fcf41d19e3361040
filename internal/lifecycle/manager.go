// Package lifecycle orchestrates ingestion batching, durable persistence,
// and the periodic sweeps that keep the index inside its size and age
// budgets. Durable writes are fire-and-forget relative to the read path: a
// search never waits on PostgreSQL.
package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopscout/searchcore/internal/catalog"
	"github.com/shopscout/searchcore/internal/engine"
	"github.com/shopscout/searchcore/internal/history"
	"github.com/shopscout/searchcore/internal/search/cache"
	"github.com/shopscout/searchcore/internal/storage"
	"github.com/shopscout/searchcore/pkg/config"
	"github.com/shopscout/searchcore/pkg/metrics"
	"github.com/shopscout/searchcore/pkg/resilience"
)

// Manager wraps the engine with batched ingestion, startup recovery, and
// the recurring sweep. persist may be nil, in which case the corpus is
// memory-only and sweeps skip their durable phases.
type Manager struct {
	engine   *engine.Engine
	cache    *cache.QueryCache
	recorder *history.Recorder
	persist  *storage.Store
	breaker  *resilience.CircuitBreaker
	cfg      config.EvictionConfig
	history  config.HistoryConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a Manager.
func New(eng *engine.Engine, qcache *cache.QueryCache, recorder *history.Recorder, persist *storage.Store, cfg config.EvictionConfig, historyCfg config.HistoryConfig, m *metrics.Metrics) *Manager {
	return &Manager{
		engine:   eng,
		cache:    qcache,
		recorder: recorder,
		persist:  persist,
		breaker:  resilience.NewCircuitBreaker("storage", resilience.CircuitBreakerConfig{}),
		cfg:      cfg,
		history:  historyCfg,
		metrics:  m,
		logger:   slog.Default().With("component", "lifecycle"),
	}
}

// persistWrite funnels every background storage write through the circuit
// breaker and a retry loop, so a down database trips fast instead of
// piling up blocked goroutines.
func (m *Manager) persistWrite(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return m.breaker.Execute(func() error {
		return resilience.Retry(ctx, name, resilience.RetryConfig{}, func() error {
			return fn(ctx)
		})
	})
}

// Ingest indexes records in fixed-size batches and schedules the durable
// writes. Batching is purely a throughput measure; the final state matches
// writing records one at a time.
func (m *Manager) Ingest(ctx context.Context, records []catalog.ProductRecord) *engine.IngestReport {
	batchSize := m.cfg.IngestBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	total := &engine.IngestReport{}
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		report := m.engine.IngestBatch(ctx, records[start:end])
		total.Ingested += report.Ingested
		total.Rejected = append(total.Rejected, report.Rejected...)
		total.Evicted = append(total.Evicted, report.Evicted...)
		total.Accepted = append(total.Accepted, report.Accepted...)
		if report.CapacityExceeded {
			total.CapacityExceeded = true
		}

		if m.persist != nil {
			accepted := report.Accepted
			evicted := report.Evicted
			go m.persistBatch(accepted, evicted)
		}
	}
	m.logger.Info("ingest complete",
		"records", len(records),
		"ingested", total.Ingested,
		"rejected", len(total.Rejected),
		"evicted", len(total.Evicted),
	)
	return total
}

func (m *Manager) persistBatch(accepted []catalog.ProductRecord, evicted []string) {
	ctx := context.Background()
	if len(accepted) > 0 {
		err := resilience.WithTimeout(ctx, 30*time.Second, "persist-records", func(ctx context.Context) error {
			return m.persistWrite(ctx, "persist-records", func(ctx context.Context) error {
				return m.persist.SaveRecords(ctx, accepted)
			})
		})
		if err != nil {
			m.logger.Error("durable record write failed", "count", len(accepted), "error", err)
		}
	}
	if len(evicted) > 0 {
		err := resilience.WithTimeout(ctx, 30*time.Second, "persist-evictions", func(ctx context.Context) error {
			return m.persistWrite(ctx, "persist-evictions", func(ctx context.Context) error {
				return m.persist.DeleteDocuments(ctx, evicted, "budget-eviction")
			})
		})
		if err != nil {
			m.logger.Error("durable eviction delete failed", "count", len(evicted), "error", err)
		}
	}
}

// Remove deletes one document from the index and storage.
func (m *Manager) Remove(ctx context.Context, id string) bool {
	existed := m.engine.Remove(ctx, id)
	if existed && m.persist != nil {
		go func() {
			err := resilience.WithTimeout(context.Background(), 10*time.Second, "persist-removal", func(ctx context.Context) error {
				return m.persistWrite(ctx, "persist-removal", func(ctx context.Context) error {
					return m.persist.DeleteDocuments(ctx, []string{id}, "explicit-removal")
				})
			})
			if err != nil {
				m.logger.Error("durable removal failed", "id", id, "error", err)
			}
		}()
	}
	return existed
}

// Restore rebuilds the in-memory corpus and history log from storage at
// startup.
func (m *Manager) Restore(ctx context.Context) error {
	if m.persist == nil {
		return nil
	}
	records, err := m.persist.LoadRecords(ctx)
	if err != nil {
		return err
	}
	restored := m.engine.Restore(records)
	m.logger.Info("corpus restored", "records", len(records), "indexed", restored)

	cutoff := time.Now().Add(-m.history.MaxAge)
	entries, err := m.persist.LoadHistory(ctx, cutoff)
	if err != nil {
		m.logger.Error("history restore failed, continuing with empty log", "error", err)
		return nil
	}
	m.recorder.Load(entries)
	m.logger.Info("history restored", "entries", len(entries))
	return nil
}

// HistorySink returns the sink that persists each recorded search entry in
// the background.
func (m *Manager) HistorySink() history.Sink {
	if m.persist == nil {
		return nil
	}
	return func(entry history.Entry) {
		go func() {
			err := resilience.WithTimeout(context.Background(), 10*time.Second, "persist-history", func(ctx context.Context) error {
				return m.persistWrite(ctx, "persist-history", func(ctx context.Context) error {
					return m.persist.AppendHistory(ctx, entry)
				})
			})
			if err != nil {
				m.logger.Error("durable history write failed", "id", entry.ID, "error", err)
			}
		}()
	}
}

// SweepExpired removes documents past the max age, expired cache entries,
// and stale history, both in memory and in storage. A storage failure is
// logged and retried on the next scheduled tick; the query path keeps
// serving from memory.
func (m *Manager) SweepExpired(ctx context.Context) {
	status := "ok"
	cutoff := time.Now().Add(-m.cfg.MaxDocumentAge)
	removed := m.engine.RemoveOlderThan(ctx, cutoff)
	evicted := m.engine.EvictIfOverBudget(ctx)
	sweptMem := m.cache.Sweep()
	prunedHistory := m.recorder.Prune(m.history.MaxAge)

	if m.persist != nil {
		if len(removed) > 0 {
			if err := m.persist.DeleteDocuments(ctx, removed, "max-age-sweep"); err != nil {
				m.logger.Error("sweep document delete failed", "error", err)
				status = "storage_error"
			}
		}
		if len(evicted) > 0 {
			if err := m.persist.DeleteDocuments(ctx, evicted, "budget-eviction"); err != nil {
				m.logger.Error("sweep eviction delete failed", "error", err)
				status = "storage_error"
			}
		}
		if _, err := m.persist.SweepExpiredCache(ctx); err != nil {
			m.logger.Error("cache table sweep failed", "error", err)
			status = "storage_error"
		}
		if _, err := m.persist.DeleteHistoryBefore(ctx, time.Now().Add(-m.history.MaxAge)); err != nil {
			m.logger.Error("history prune failed", "error", err)
			status = "storage_error"
		}
	}

	if m.metrics != nil {
		m.metrics.SweepRunsTotal.WithLabelValues(status).Inc()
	}
	m.logger.Info("sweep complete",
		"docs_removed", len(removed),
		"docs_evicted", len(evicted),
		"cache_entries_removed", sweptMem,
		"history_pruned", prunedHistory,
		"status", status,
	)
}

// Start runs one sweep immediately and then on the configured interval
// until ctx is cancelled. Sweeps are idempotent and safe to abort between
// documents.
func (m *Manager) Start(ctx context.Context) {
	interval := m.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		m.SweepExpired(ctx)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.SweepExpired(ctx)
			}
		}
	}()
}
