package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopscout/searchcore/internal/catalog"
	"github.com/shopscout/searchcore/internal/engine"
	"github.com/shopscout/searchcore/internal/history"
	"github.com/shopscout/searchcore/internal/search"
	"github.com/shopscout/searchcore/internal/search/cache"
	"github.com/shopscout/searchcore/pkg/config"
)

var mgrNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	manager  *Manager
	engine   *engine.Engine
	recorder *history.Recorder
}

func newFixture(t *testing.T, batchSize int) *fixture {
	t.Helper()
	cfg := &config.Config{
		Index: config.DefaultIndexSettings(),
		Cache: config.CacheConfig{TTL: time.Minute, MaxEntries: 64},
		Eviction: config.EvictionConfig{
			BudgetBytes:     1 << 20,
			TriggerFraction: 0.9,
			MaxDocumentAge:  30 * 24 * time.Hour,
			SweepInterval:   time.Hour,
			IngestBatchSize: batchSize,
		},
		Search:  config.SearchConfig{DefaultLimit: 20, MaxLimit: 100, MaxSuggestions: 5},
		History: config.HistoryConfig{MaxAge: 90 * 24 * time.Hour},
	}
	qcache := cache.New(cfg.Cache, nil)
	recorder := history.NewRecorder(nil).WithClock(func() time.Time { return mgrNow })
	eng := engine.New(cfg, qcache, recorder, nil).WithClock(func() time.Time { return mgrNow })
	manager := New(eng, qcache, recorder, nil, cfg.Eviction, cfg.History, nil)
	return &fixture{manager: manager, engine: eng, recorder: recorder}
}

func managedRecord(id string, ingested time.Time) catalog.ProductRecord {
	return catalog.ProductRecord{
		ID:         id,
		Title:      "Product " + id,
		Source:     catalog.SourceOzon,
		IngestedAt: ingested.UnixMilli(),
	}
}

func TestIngestBatchingMatchesSingleShot(t *testing.T) {
	f := newFixture(t, 2)
	records := []catalog.ProductRecord{
		managedRecord("1", mgrNow),
		managedRecord("2", mgrNow),
		managedRecord("3", mgrNow),
		managedRecord("4", mgrNow),
		managedRecord("5", mgrNow),
	}

	report := f.manager.Ingest(context.Background(), records)
	require.Equal(t, 5, report.Ingested)
	assert.Empty(t, report.Rejected)
	assert.Equal(t, 5, f.engine.DocumentCount())
}

func TestIngestAggregatesRejections(t *testing.T) {
	f := newFixture(t, 2)
	records := []catalog.ProductRecord{
		managedRecord("1", mgrNow),
		{Title: "no id"},
		managedRecord("3", mgrNow),
		{ID: "4", Price: -1},
	}

	report := f.manager.Ingest(context.Background(), records)
	assert.Equal(t, 2, report.Ingested)
	assert.Len(t, report.Rejected, 2)
}

func TestRemoveWithoutStorage(t *testing.T) {
	f := newFixture(t, 100)
	f.manager.Ingest(context.Background(), []catalog.ProductRecord{managedRecord("1", mgrNow)})

	assert.True(t, f.manager.Remove(context.Background(), "1"))
	assert.False(t, f.manager.Remove(context.Background(), "1"))
	assert.Equal(t, 0, f.engine.DocumentCount())
}

func TestRestoreWithoutStorageIsNoOp(t *testing.T) {
	f := newFixture(t, 100)
	require.NoError(t, f.manager.Restore(context.Background()))
	assert.Equal(t, 0, f.engine.DocumentCount())
}

func TestHistorySinkNilWithoutStorage(t *testing.T) {
	f := newFixture(t, 100)
	assert.Nil(t, f.manager.HistorySink())
}

func TestSweepExpiredRemovesOldDocumentsAndHistory(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	f.manager.Ingest(ctx, []catalog.ProductRecord{
		managedRecord("stale", time.Now().Add(-40*24*time.Hour)),
		managedRecord("fresh", time.Now().Add(-time.Hour)),
	})
	f.recorder.Load([]history.Entry{
		{ID: "e1", Query: "ancient", RecordedAt: mgrNow.Add(-100 * 24 * time.Hour)},
		{ID: "e2", Query: "recent", RecordedAt: mgrNow.Add(-time.Hour)},
	})

	f.manager.SweepExpired(ctx)

	assert.Equal(t, 1, f.engine.DocumentCount(), "stale document must be swept")
	assert.Equal(t, 1, f.recorder.Len(), "stale history entry must be pruned")
	popular := f.recorder.PopularQueries(10)
	require.Len(t, popular, 1)
	assert.Equal(t, "recent", popular[0].Query)
}

func TestSweepKeepsSearchConsistent(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	f.manager.Ingest(ctx, []catalog.ProductRecord{
		managedRecord("stale", time.Now().Add(-40*24*time.Hour)),
	})

	// Warm the cache, then sweep; the cached pre-sweep result must not
	// survive.
	before, _, err := f.engine.Search(ctx, search.Request{})
	require.NoError(t, err)
	require.Equal(t, 1, before.Total)

	f.manager.SweepExpired(ctx)

	after, hit, err := f.engine.Search(ctx, search.Request{})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 0, after.Total)
}
