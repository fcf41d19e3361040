package search

import (
	"sort"
	"time"

	"github.com/shopscout/searchcore/internal/index"
)

// Bucket is one (key, count) pair of a facet dimension.
type Bucket struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Facets is the count-by-category breakdown of a result set. It is a pure
// read-time aggregate and is never persisted.
type Facets struct {
	Sources      []Bucket `json:"sources"`
	Categories   []Bucket `json:"categories"`
	PriceRanges  []Bucket `json:"price_ranges"`
	RatingRanges []Bucket `json:"rating_ranges"`
	Availability []Bucket `json:"availability"`
	DateRanges   []Bucket `json:"date_ranges"`
}

// ComputeFacets aggregates every facet dimension over the given documents
// in a single O(n) pass. Buckets are sorted by count descending, then key
// ascending for determinism.
func ComputeFacets(docs []index.Document, now time.Time) *Facets {
	sources := make(map[string]int)
	categories := make(map[string]int)
	prices := make(map[string]int)
	ratings := make(map[string]int)
	availability := make(map[string]int)
	dates := make(map[string]int)

	for _, doc := range docs {
		sources[string(doc.Record.Source)]++
		if doc.Record.Category != "" {
			categories[doc.Record.Category]++
		}
		prices[doc.PriceBucket]++
		ratings[doc.RatingBucket]++
		if doc.Record.Available {
			availability["available"]++
		} else {
			availability["unavailable"]++
		}
		dates[index.RecencyBucketAt(doc.Record.IngestedTime(), now)]++
	}

	return &Facets{
		Sources:      sortBuckets(sources),
		Categories:   sortBuckets(categories),
		PriceRanges:  sortBuckets(prices),
		RatingRanges: sortBuckets(ratings),
		Availability: sortBuckets(availability),
		DateRanges:   sortBuckets(dates),
	}
}

func sortBuckets(counts map[string]int) []Bucket {
	out := make([]Bucket, 0, len(counts))
	for key, count := range counts {
		out = append(out, Bucket{Key: key, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}
