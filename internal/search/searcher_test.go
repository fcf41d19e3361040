package search

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/shopscout/searchcore/internal/catalog"
	"github.com/shopscout/searchcore/internal/index"
	"github.com/shopscout/searchcore/internal/index/tokenizer"
	"github.com/shopscout/searchcore/pkg/config"
	apperrors "github.com/shopscout/searchcore/pkg/errors"
)

var searchNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func fixtureRecords() []catalog.ProductRecord {
	return []catalog.ProductRecord{
		{
			ID:          "1",
			Title:       "Samsung Galaxy S24 flagship smartphone",
			Category:    "Electronics",
			Brand:       "Samsung",
			Price:       75000,
			Rating:      ptr(4.5),
			ReviewCount: 200,
			Source:      catalog.SourceOzon,
			Available:   true,
			IngestedAt:  searchNow.Add(-time.Hour).UnixMilli(),
		},
		{
			ID:          "2",
			Title:       "Apple iPhone 15 Pro",
			Description: "Apple flagship phone with titanium design",
			Category:    "Electronics",
			Brand:       "Apple",
			Price:       120000,
			Rating:      ptr(4.8),
			ReviewCount: 500,
			Source:      catalog.SourceWildberries,
			Available:   true,
			IngestedAt:  searchNow.Add(-2 * 24 * time.Hour).UnixMilli(),
		},
		{
			ID:          "3",
			Title:       "Xiaomi Redmi Note 13",
			Category:    "Electronics",
			Brand:       "Xiaomi",
			Price:       20000,
			Rating:      ptr(4.2),
			ReviewCount: 80,
			Source:      catalog.SourceAliExpress,
			Available:   false,
			Attributes:  map[string]string{"color": "blue"},
			IngestedAt:  searchNow.Add(-10 * 24 * time.Hour).UnixMilli(),
		},
	}
}

func newTestSearcher(t *testing.T) *Searcher {
	t.Helper()
	settings := config.DefaultIndexSettings()
	tok := tokenizer.New(settings)
	builder := index.NewBuilder(tok).WithClock(func() time.Time { return searchNow })
	store := index.NewStore()
	inverted := index.NewInverted()
	for _, record := range fixtureRecords() {
		doc, err := builder.Build(record)
		if err != nil {
			t.Fatalf("building fixture %q: %v", record.ID, err)
		}
		inverted.Post(doc.ID(), doc.AllTokens())
		store.Put(doc)
	}
	return NewSearcher(store, inverted, tok, settings, 5).
		WithClock(func() time.Time { return searchNow })
}

func mustSearch(t *testing.T, s *Searcher, req Request) *Result {
	t.Helper()
	if req.Page == 0 {
		req.Page = 1
	}
	if req.Limit == 0 {
		req.Limit = 20
	}
	result, err := s.Search(req)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	return result
}

func TestSearchTextFiltersNonMatches(t *testing.T) {
	s := newTestSearcher(t)
	result := mustSearch(t, s, Request{Text: "samsung"})

	if got := result.IDs(); !reflect.DeepEqual(got, []string{"1"}) {
		t.Errorf("IDs = %v, want [1]", got)
	}
	if result.Total != 1 {
		t.Errorf("Total = %d, want 1", result.Total)
	}
	if result.Documents[0].Score <= 0 {
		t.Errorf("Score = %v, want positive", result.Documents[0].Score)
	}
}

func TestSearchRelevanceOrdering(t *testing.T) {
	s := newTestSearcher(t)
	// "flagship" appears in doc 1's title and doc 2's description; the
	// title boost must rank doc 1 first.
	result := mustSearch(t, s, Request{Text: "flagship"})

	if got := result.IDs(); !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Errorf("IDs = %v, want [1 2]", got)
	}
	if result.Documents[0].Score <= result.Documents[1].Score {
		t.Errorf("scores not descending: %v, %v",
			result.Documents[0].Score, result.Documents[1].Score)
	}
}

func TestSearchSynonymMatch(t *testing.T) {
	s := newTestSearcher(t)
	// Doc 1 never contains the literal token "phone", but its title has the
	// configured synonym "smartphone"; doc 2 has "phone" in its description.
	result := mustSearch(t, s, Request{Text: "phone"})

	if got := result.IDs(); !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Errorf("IDs = %v, want [1 2]", got)
	}
}

func TestSearchDefaultSortIsDateWithoutText(t *testing.T) {
	s := newTestSearcher(t)
	result := mustSearch(t, s, Request{})

	if got := result.IDs(); !reflect.DeepEqual(got, []string{"1", "2", "3"}) {
		t.Errorf("IDs = %v, want newest first [1 2 3]", got)
	}
}

func TestSearchSortFields(t *testing.T) {
	s := newTestSearcher(t)
	tests := []struct {
		name string
		req  Request
		want []string
	}{
		{"price defaults ascending", Request{Sort: SortPrice}, []string{"3", "1", "2"}},
		{"price descending", Request{Sort: SortPrice, Order: OrderDesc}, []string{"2", "1", "3"}},
		{"rating descending", Request{Sort: SortRating}, []string{"2", "1", "3"}},
		{"popularity descending", Request{Sort: SortPopularity}, []string{"2", "1", "3"}},
		{"date ascending", Request{Sort: SortDate, Order: OrderAsc}, []string{"3", "2", "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := mustSearch(t, s, tt.req)
			if got := result.IDs(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("IDs = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSearchFilters(t *testing.T) {
	s := newTestSearcher(t)
	tests := []struct {
		name    string
		filters Filters
		want    []string
	}{
		{"source", Filters{Sources: []catalog.Source{catalog.SourceOzon}}, []string{"1"}},
		{"category case-insensitive", Filters{Categories: []string{"electronics"}}, []string{"1", "2", "3"}},
		{"price min", Filters{Price: &PriceRange{Min: ptr(50000.0)}}, []string{"1", "2"}},
		{"price max", Filters{Price: &PriceRange{Max: ptr(80000.0)}}, []string{"1", "3"}},
		{"rating min", Filters{Rating: &RatingRange{Min: ptr(4.4)}}, []string{"1", "2"}},
		{"available", Filters{Available: ptr(true)}, []string{"1", "2"}},
		{"unavailable", Filters{Available: ptr(false)}, []string{"3"}},
		{"attribute equality", Filters{Attributes: map[string]string{"color": "blue"}}, []string{"3"}},
		{"attribute mismatch", Filters{Attributes: map[string]string{"color": "red"}}, nil},
		{
			"date from",
			Filters{Dates: &DateRange{From: ptr(searchNow.Add(-3 * 24 * time.Hour).UnixMilli())}},
			[]string{"1", "2"},
		},
		{
			"conjunction of filters",
			Filters{Categories: []string{"Electronics"}, Available: ptr(true), Price: &PriceRange{Max: ptr(100000.0)}},
			[]string{"1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := mustSearch(t, s, Request{Filters: tt.filters})
			got := result.IDs()
			if len(tt.want) == 0 {
				if len(got) != 0 {
					t.Errorf("IDs = %v, want empty", got)
				}
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("IDs = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSearchPagination(t *testing.T) {
	s := newTestSearcher(t)

	page1 := mustSearch(t, s, Request{Page: 1, Limit: 2})
	if got := page1.IDs(); !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Errorf("page 1 IDs = %v, want [1 2]", got)
	}
	if page1.Total != 3 || page1.TotalPages != 2 {
		t.Errorf("Total=%d TotalPages=%d, want 3/2", page1.Total, page1.TotalPages)
	}

	page2 := mustSearch(t, s, Request{Page: 2, Limit: 2})
	if got := page2.IDs(); !reflect.DeepEqual(got, []string{"3"}) {
		t.Errorf("page 2 IDs = %v, want [3]", got)
	}

	// Total reflects the filtered set even past the last page.
	beyond := mustSearch(t, s, Request{Page: 5, Limit: 2})
	if len(beyond.Documents) != 0 || beyond.Total != 3 {
		t.Errorf("beyond-last page: docs=%d total=%d, want 0/3", len(beyond.Documents), beyond.Total)
	}
}

func TestSearchZeroMatchesIsNotAnError(t *testing.T) {
	s := newTestSearcher(t)
	result := mustSearch(t, s, Request{Text: "nonexistent"})
	if result.Total != 0 || len(result.Documents) != 0 {
		t.Errorf("Total=%d docs=%d, want 0/0", result.Total, len(result.Documents))
	}
}

func TestSearchValidatesRequest(t *testing.T) {
	s := newTestSearcher(t)
	_, err := s.Search(Request{Page: 0, Limit: 20})
	if !errors.Is(err, apperrors.ErrInvalidQuery) {
		t.Errorf("Search = %v, want ErrInvalidQuery", err)
	}
}

func TestSearchFacets(t *testing.T) {
	s := newTestSearcher(t)
	result := mustSearch(t, s, Request{WithFacets: true})
	if result.Facets == nil {
		t.Fatal("Facets is nil")
	}

	counts := func(buckets []Bucket) map[string]int {
		m := make(map[string]int, len(buckets))
		for _, b := range buckets {
			m[b.Key] = b.Count
		}
		return m
	}

	if got := counts(result.Facets.Sources); got["ozon"] != 1 || got["wildberries"] != 1 || got["aliexpress"] != 1 {
		t.Errorf("source facets = %v", got)
	}
	if got := counts(result.Facets.Categories); got["Electronics"] != 3 {
		t.Errorf("category facets = %v", got)
	}
	if got := counts(result.Facets.Availability); got["available"] != 2 || got["unavailable"] != 1 {
		t.Errorf("availability facets = %v", got)
	}
	if got := counts(result.Facets.DateRanges); got[index.RecencyToday] != 1 || got[index.RecencyWeek] != 1 || got[index.RecencyMonth] != 1 {
		t.Errorf("date facets = %v", got)
	}

	// Facets cover the filtered set, not the whole corpus.
	filtered := mustSearch(t, s, Request{
		Filters:    Filters{Available: ptr(true)},
		WithFacets: true,
	})
	if got := counts(filtered.Facets.Availability); got["available"] != 2 || got["unavailable"] != 0 {
		t.Errorf("filtered availability facets = %v", got)
	}
}

func TestSearchSuggestions(t *testing.T) {
	s := newTestSearcher(t)

	// A prefix with no exact matches still yields completions.
	result := mustSearch(t, s, Request{Text: "sams", WithSuggestions: true})
	if result.Total != 0 {
		t.Errorf("Total = %d, want 0", result.Total)
	}
	if !reflect.DeepEqual(result.Suggestions, []string{"samsung"}) {
		t.Errorf("Suggestions = %v, want [samsung]", result.Suggestions)
	}

	// Only the last fragment is completed; the leading words are kept.
	multi := mustSearch(t, s, Request{Text: "galaxy smartph", WithSuggestions: true})
	if !reflect.DeepEqual(multi.Suggestions, []string{"galaxy smartphone"}) {
		t.Errorf("Suggestions = %v, want [galaxy smartphone]", multi.Suggestions)
	}

	// No suggestions unless requested.
	plain := mustSearch(t, s, Request{Text: "sams"})
	if plain.Suggestions != nil {
		t.Errorf("Suggestions = %v, want nil", plain.Suggestions)
	}
}

func TestSearchMarketplaceScenario(t *testing.T) {
	settings := config.DefaultIndexSettings()
	tok := tokenizer.New(settings)
	builder := index.NewBuilder(tok).WithClock(func() time.Time { return searchNow })
	store := index.NewStore()
	inverted := index.NewInverted()
	records := []catalog.ProductRecord{
		{ID: "1", Title: "Samsung Galaxy S24", Price: 85000, Source: catalog.SourceWildberries, Rating: ptr(4.8), IngestedAt: searchNow.UnixMilli()},
		{ID: "2", Title: "iPhone 15 Pro", Price: 120000, Source: catalog.SourceOzon, Rating: ptr(4.9), IngestedAt: searchNow.UnixMilli()},
		{ID: "3", Title: "Xiaomi Redmi Note 13", Price: 35000, Source: catalog.SourceWildberries, Rating: ptr(4.6), IngestedAt: searchNow.UnixMilli()},
	}
	for _, record := range records {
		doc, err := builder.Build(record)
		if err != nil {
			t.Fatal(err)
		}
		inverted.Post(doc.ID(), doc.AllTokens())
		store.Put(doc)
	}
	s := NewSearcher(store, inverted, tok, settings, 5).
		WithClock(func() time.Time { return searchNow })

	byText := mustSearch(t, s, Request{Text: "samsung"})
	if got := byText.IDs(); !reflect.DeepEqual(got, []string{"1"}) {
		t.Errorf(`search "samsung" = %v, want [1]`, got)
	}

	bySource := mustSearch(t, s, Request{
		Filters: Filters{Sources: []catalog.Source{catalog.SourceWildberries}},
		Sort:    SortPrice,
		Order:   OrderAsc,
	})
	if got := bySource.IDs(); !reflect.DeepEqual(got, []string{"3", "1"}) {
		t.Errorf("wildberries by price asc = %v, want [3 1]", got)
	}
	if bySource.Total != 2 {
		t.Errorf("Total = %d, want 2", bySource.Total)
	}

	byPrice := mustSearch(t, s, Request{Filters: Filters{Price: &PriceRange{Max: ptr(50000.0)}}})
	if got := byPrice.IDs(); !reflect.DeepEqual(got, []string{"3"}) {
		t.Errorf("price<=50000 = %v, want [3]", got)
	}
}

func BenchmarkSearch(b *testing.B) {
	settings := config.DefaultIndexSettings()
	tok := tokenizer.New(settings)
	builder := index.NewBuilder(tok)
	store := index.NewStore()
	inverted := index.NewInverted()
	for _, record := range fixtureRecords() {
		doc, err := builder.Build(record)
		if err != nil {
			b.Fatal(err)
		}
		inverted.Post(doc.ID(), doc.AllTokens())
		store.Put(doc)
	}
	s := NewSearcher(store, inverted, tok, settings, 5)
	req := Request{Text: "flagship smartphone", Page: 1, Limit: 20, WithFacets: true}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Search(req); err != nil {
			b.Fatal(err)
		}
	}
}
