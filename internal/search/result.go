package search

import "github.com/shopscout/searchcore/internal/catalog"

// Hit is one result row: the original product record plus the derived
// fields the UI renders. RecencyBucket is computed at query time.
type Hit struct {
	catalog.ProductRecord
	Score         float64 `json:"score,omitempty"`
	Popularity    float64 `json:"popularity"`
	PriceBucket   string  `json:"price_bucket"`
	RatingBucket  string  `json:"rating_bucket"`
	RecencyBucket string  `json:"recency_bucket"`
}

// Result is the full query response. Total counts the pre-pagination
// filtered set, not the page size.
type Result struct {
	Documents    []Hit    `json:"documents"`
	Total        int      `json:"total"`
	Page         int      `json:"page"`
	Limit        int      `json:"limit"`
	TotalPages   int      `json:"total_pages"`
	Facets       *Facets  `json:"facets,omitempty"`
	Suggestions  []string `json:"suggestions,omitempty"`
	SearchTimeMs int64    `json:"search_time_ms"`
}

// IDs returns the document IDs in result order. Test helper.
func (r *Result) IDs() []string {
	ids := make([]string, len(r.Documents))
	for i, hit := range r.Documents {
		ids[i] = hit.ID
	}
	return ids
}
