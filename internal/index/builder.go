package index

import (
	"time"

	"github.com/shopscout/searchcore/internal/catalog"
	"github.com/shopscout/searchcore/internal/index/tokenizer"
)

// Popularity score weights. Rating contributes up to 50 points, clipped
// review volume up to 50, and a recency bonus that decays in four tiers.
const (
	ratingWeight    = 10.0
	reviewCountCap  = 500
	reviewDivisor   = 10.0
	recencyBonusDay = 25.0
	recencyBonus7d  = 15.0
	recencyBonus30d = 8.0
	recencyBonus90d = 3.0
)

// Fixed per-document overhead added to the byte-size estimate for struct
// headers, map entries, and postings.
const docSizeOverhead = 160

// Builder converts raw product records into indexed documents.
type Builder struct {
	tok *tokenizer.Tokenizer
	now func() time.Time
}

// NewBuilder creates a Builder using the given tokenizer. The clock is
// replaceable in tests via WithClock.
func NewBuilder(tok *tokenizer.Tokenizer) *Builder {
	return &Builder{tok: tok, now: time.Now}
}

// WithClock overrides the builder's clock. Test hook.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the record and derives every indexed field. Missing
// optional fields degrade gracefully: no rating means the "no-rating"
// bucket and a zero rating contribution to popularity.
func (b *Builder) Build(record catalog.ProductRecord) (Document, error) {
	if err := catalog.Validate(record); err != nil {
		return Document{}, err
	}
	record.Source = record.Source.Normalize()
	if record.IngestedAt == 0 {
		record.IngestedAt = b.now().UnixMilli()
	}

	doc := Document{
		Record:            record,
		TitleTokens:       b.tok.Tokenize(record.Title),
		DescriptionTokens: b.tok.Tokenize(record.Description),
		CategoryTokens:    b.tok.Tokenize(record.Category),
		BrandTokens:       b.tok.Tokenize(record.Brand),
		PriceBucket:       PriceBucketFor(record.Price),
		RatingBucket:      RatingBucketFor(record.Rating),
	}
	doc.Popularity = b.popularity(record)
	doc.SizeBytes = estimateSize(doc)
	return doc, nil
}

func (b *Builder) popularity(record catalog.ProductRecord) float64 {
	var score float64
	if record.Rating != nil {
		score += *record.Rating * ratingWeight
	}
	reviews := record.ReviewCount
	if reviews > reviewCountCap {
		reviews = reviewCountCap
	}
	score += float64(reviews) / reviewDivisor
	score += recencyBonus(record.IngestedTime(), b.now())
	return score
}

func recencyBonus(ingested time.Time, now time.Time) float64 {
	age := now.Sub(ingested)
	switch {
	case age < 24*time.Hour:
		return recencyBonusDay
	case age < 7*24*time.Hour:
		return recencyBonus7d
	case age < 30*24*time.Hour:
		return recencyBonus30d
	case age < 90*24*time.Hour:
		return recencyBonus90d
	default:
		return 0
	}
}

func estimateSize(doc Document) int64 {
	r := doc.Record
	size := int64(len(r.ID) + len(r.Title) + len(r.Description) + len(r.Category) +
		len(r.Brand) + len(r.Currency) + len(r.ImageURL) + len(r.URL) + len(r.Source))
	for k, v := range r.Attributes {
		size += int64(len(k) + len(v) + 16)
	}
	for _, set := range [][]string{doc.TitleTokens, doc.DescriptionTokens, doc.CategoryTokens, doc.BrandTokens} {
		for _, tok := range set {
			size += int64(len(tok) + 16)
		}
	}
	return size + docSizeOverhead
}
