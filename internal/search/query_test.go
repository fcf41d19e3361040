package search

import (
	"errors"
	"testing"

	"github.com/shopscout/searchcore/internal/catalog"
	apperrors "github.com/shopscout/searchcore/pkg/errors"
)

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"valid", Request{Page: 1, Limit: 20}, false},
		{"valid with sort", Request{Page: 2, Limit: 10, Sort: SortPrice, Order: OrderAsc}, false},
		{"zero page", Request{Page: 0, Limit: 20}, true},
		{"negative page", Request{Page: -1, Limit: 20}, true},
		{"zero limit", Request{Page: 1, Limit: 0}, true},
		{"unknown sort", Request{Page: 1, Limit: 20, Sort: "magic"}, true},
		{"unknown order", Request{Page: 1, Limit: 20, Order: "sideways"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				if !errors.Is(err, apperrors.ErrInvalidQuery) {
					t.Errorf("Validate = %v, want ErrInvalidQuery", err)
				}
			} else if err != nil {
				t.Errorf("Validate = %v, want nil", err)
			}
		})
	}
}

func TestEffectiveSortAndOrder(t *testing.T) {
	tests := []struct {
		name      string
		req       Request
		wantSort  SortField
		wantOrder SortOrder
	}{
		{"text defaults to relevance desc", Request{Text: "phone"}, SortRelevance, OrderDesc},
		{"no text defaults to date desc", Request{}, SortDate, OrderDesc},
		{"whitespace text is no text", Request{Text: "   "}, SortDate, OrderDesc},
		{"price defaults ascending", Request{Sort: SortPrice}, SortPrice, OrderAsc},
		{"explicit order wins", Request{Sort: SortPrice, Order: OrderDesc}, SortPrice, OrderDesc},
		{"rating defaults descending", Request{Sort: SortRating}, SortRating, OrderDesc},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.EffectiveSort(); got != tt.wantSort {
				t.Errorf("EffectiveSort = %q, want %q", got, tt.wantSort)
			}
			if got := tt.req.EffectiveOrder(); got != tt.wantOrder {
				t.Errorf("EffectiveOrder = %q, want %q", got, tt.wantOrder)
			}
		})
	}
}

func TestCacheKeyDeterministic(t *testing.T) {
	available := true
	req := Request{
		Text: "Gaming Laptop",
		Filters: Filters{
			Sources:    []catalog.Source{catalog.SourceOzon, catalog.SourceWildberries},
			Categories: []string{"Electronics", "Computers"},
			Available:  &available,
			Attributes: map[string]string{"color": "black", "ram": "32gb"},
		},
		Page:  1,
		Limit: 20,
	}

	first := req.CacheKey()
	for i := 0; i < 5; i++ {
		if got := req.CacheKey(); got != first {
			t.Fatalf("CacheKey not deterministic: %q vs %q", got, first)
		}
	}

	// Filter list order must not change the key.
	reordered := req
	reordered.Filters.Sources = []catalog.Source{catalog.SourceWildberries, catalog.SourceOzon}
	reordered.Filters.Categories = []string{"Computers", "Electronics"}
	if reordered.CacheKey() != first {
		t.Error("CacheKey depends on filter list order")
	}
}

func TestCacheKeySensitivity(t *testing.T) {
	base := Request{Text: "phone", Page: 1, Limit: 20}
	baseKey := base.CacheKey()

	variants := []Request{
		{Text: "laptop", Page: 1, Limit: 20},
		{Text: "phone", Page: 2, Limit: 20},
		{Text: "phone", Page: 1, Limit: 50},
		{Text: "phone", Page: 1, Limit: 20, Sort: SortPrice},
		{Text: "phone", Page: 1, Limit: 20, WithFacets: true},
		{Text: "phone", Page: 1, Limit: 20, Filters: Filters{Categories: []string{"Electronics"}}},
	}
	for i, variant := range variants {
		if variant.CacheKey() == baseKey {
			t.Errorf("variant %d produced the same cache key as the base request", i)
		}
	}
}
