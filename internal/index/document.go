// Package index holds the indexed document model, the document builder, the
// inverted index, and the authoritative document store. None of the
// structures in this package synchronise internally: the owning engine
// guards the store and inverted index with a single read-write lock so a
// put spanning both appears atomic to concurrent searches.
package index

import (
	"time"

	"github.com/shopscout/searchcore/internal/catalog"
)

// Price bucket labels, in ascending threshold order.
const (
	PriceBucket0to1k     = "0-1000"
	PriceBucket1kTo5k    = "1000-5000"
	PriceBucket5kTo20k   = "5000-20000"
	PriceBucket20kTo100k = "20000-100000"
	PriceBucket100kPlus  = "100000+"
)

// Rating bucket labels.
const (
	RatingBucketNone = "no-rating"
	RatingBucket0to3 = "0-3"
	RatingBucket3to4 = "3-4"
	RatingBucket4to5 = "4-5"
)

// Recency bucket labels. Recency is recomputed relative to query time, not
// stored, so it never goes stale.
const (
	RecencyToday   = "today"
	RecencyWeek    = "week"
	RecencyMonth   = "month"
	RecencyQuarter = "quarter"
	RecencyOld     = "old"
)

// Document is the indexed form of a product record: the record itself plus
// derived token sets, bucket labels, and a popularity score. Derived fields
// are regenerated atomically on every re-ingestion, never patched in place.
type Document struct {
	Record catalog.ProductRecord

	TitleTokens       []string
	DescriptionTokens []string
	CategoryTokens    []string
	BrandTokens       []string

	PriceBucket  string
	RatingBucket string
	Popularity   float64

	// SizeBytes is the approximate in-memory footprint used by the
	// eviction budget.
	SizeBytes int64
}

// ID returns the record identifier.
func (d Document) ID() string {
	return d.Record.ID
}

// AllTokens returns the union of every token set, de-duplicated. Used for
// posting into the inverted index.
func (d Document) AllTokens() []string {
	seen := make(map[string]struct{}, len(d.TitleTokens)+len(d.DescriptionTokens)+len(d.CategoryTokens)+len(d.BrandTokens))
	out := make([]string, 0, len(seen))
	for _, set := range [][]string{d.TitleTokens, d.CategoryTokens, d.BrandTokens, d.DescriptionTokens} {
		for _, tok := range set {
			if _, dup := seen[tok]; dup {
				continue
			}
			seen[tok] = struct{}{}
			out = append(out, tok)
		}
	}
	return out
}

// PriceBucketFor maps a price to its discrete bucket label.
func PriceBucketFor(price float64) string {
	switch {
	case price < 1000:
		return PriceBucket0to1k
	case price < 5000:
		return PriceBucket1kTo5k
	case price < 20000:
		return PriceBucket5kTo20k
	case price < 100000:
		return PriceBucket20kTo100k
	default:
		return PriceBucket100kPlus
	}
}

// RatingBucketFor maps an optional rating to its bucket label.
func RatingBucketFor(rating *float64) string {
	if rating == nil {
		return RatingBucketNone
	}
	switch {
	case *rating < 3:
		return RatingBucket0to3
	case *rating < 4:
		return RatingBucket3to4
	default:
		return RatingBucket4to5
	}
}

// RecencyBucketAt maps an ingestion time to its bucket label relative to now.
func RecencyBucketAt(ingested time.Time, now time.Time) string {
	age := now.Sub(ingested)
	switch {
	case age < 24*time.Hour:
		return RecencyToday
	case age < 7*24*time.Hour:
		return RecencyWeek
	case age < 30*24*time.Hour:
		return RecencyMonth
	case age < 90*24*time.Hour:
		return RecencyQuarter
	default:
		return RecencyOld
	}
}
