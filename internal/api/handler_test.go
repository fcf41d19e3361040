package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopscout/searchcore/internal/catalog"
	"github.com/shopscout/searchcore/internal/engine"
	"github.com/shopscout/searchcore/internal/history"
	"github.com/shopscout/searchcore/internal/lifecycle"
	"github.com/shopscout/searchcore/internal/search"
	"github.com/shopscout/searchcore/internal/search/cache"
	"github.com/shopscout/searchcore/pkg/config"
)

func newTestServer(t *testing.T) (*httptest.Server, *engine.Engine) {
	t.Helper()
	cfg := &config.Config{
		Index: config.DefaultIndexSettings(),
		Cache: config.CacheConfig{TTL: time.Minute, MaxEntries: 64},
		Eviction: config.EvictionConfig{
			BudgetBytes:     1 << 20,
			TriggerFraction: 0.9,
			MaxDocumentAge:  30 * 24 * time.Hour,
			IngestBatchSize: 100,
		},
		Search:  config.SearchConfig{DefaultLimit: 20, MaxLimit: 100, MaxSuggestions: 5},
		History: config.HistoryConfig{MaxAge: 90 * 24 * time.Hour},
	}
	qcache := cache.New(cfg.Cache, nil)
	recorder := history.NewRecorder(nil)
	eng := engine.New(cfg, qcache, recorder, nil)
	manager := lifecycle.New(eng, qcache, recorder, nil, cfg.Eviction, cfg.History, nil)

	mux := http.NewServeMux()
	New(eng, manager).Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, eng
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestIngestAndSearchRoundTrip(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/v1/records", []catalog.ProductRecord{
		{ID: "1", Title: "Samsung Galaxy S24", Source: catalog.SourceOzon, Price: 75000},
		{ID: "2", Title: "Apple iPhone 15", Source: catalog.SourceWildberries, Price: 120000},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	report := decodeBody[engine.IngestReport](t, resp)
	assert.Equal(t, 2, report.Ingested)

	resp = postJSON(t, server.URL+"/api/v1/search", search.Request{Text: "samsung"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decodeBody[search.Result](t, resp)
	assert.Equal(t, 1, result.Total)
	require.Len(t, result.Documents, 1)
	assert.Equal(t, "1", result.Documents[0].ID)
}

func TestIngestRejectsMalformedBody(t *testing.T) {
	server, _ := newTestServer(t)
	resp, err := http.Post(server.URL+"/api/v1/records", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearchRejectsInvalidQuery(t *testing.T) {
	server, _ := newTestServer(t)
	resp := postJSON(t, server.URL+"/api/v1/search", search.Request{Page: -1})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRemoveRecord(t *testing.T) {
	server, eng := newTestServer(t)
	postJSON(t, server.URL+"/api/v1/records", []catalog.ProductRecord{
		{ID: "1", Title: "Widget", Source: catalog.SourceOzon},
	}).Body.Close()

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/api/v1/records/1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, eng.DocumentCount())

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetadataEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	postJSON(t, server.URL+"/api/v1/records", []catalog.ProductRecord{
		{ID: "1", Title: "Widget", Source: catalog.SourceOzon},
	}).Body.Close()

	resp, err := http.Get(server.URL + "/api/v1/metadata")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	meta := decodeBody[engine.Metadata](t, resp)
	assert.Equal(t, "1", meta.Version)
	assert.Equal(t, 1, meta.DocumentCount)
}

func TestPopularQueriesEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	postJSON(t, server.URL+"/api/v1/records", []catalog.ProductRecord{
		{ID: "1", Title: "Gaming laptop", Source: catalog.SourceOzon},
	}).Body.Close()
	postJSON(t, server.URL+"/api/v1/search", search.Request{Text: "laptop"}).Body.Close()
	postJSON(t, server.URL+"/api/v1/search", search.Request{Text: "laptop"}).Body.Close()

	resp, err := http.Get(server.URL + "/api/v1/popular?limit=5")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	payload := decodeBody[map[string][]history.QueryCount](t, resp)
	queries := payload["queries"]
	require.NotEmpty(t, queries)
	assert.Equal(t, "laptop", queries[0].Query)
	assert.Equal(t, 2, queries[0].Count)

	resp, err = http.Get(server.URL + "/api/v1/popular?limit=zero")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
