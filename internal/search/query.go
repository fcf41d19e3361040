// Package search implements the query engine: structural filtering, text
// relevance scoring, sorting, pagination, facet aggregation, and query
// completion over the document store and inverted index.
package search

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/shopscout/searchcore/internal/catalog"
	apperrors "github.com/shopscout/searchcore/pkg/errors"
)

// SortField selects the ranking dimension for results.
type SortField string

const (
	SortRelevance  SortField = "relevance"
	SortPrice      SortField = "price"
	SortRating     SortField = "rating"
	SortDate       SortField = "date"
	SortPopularity SortField = "popularity"
)

// SortOrder is the direction of the sort. When unspecified, every field
// defaults to descending except price, which defaults to ascending; that
// asymmetry mirrors shopping intent.
type SortOrder string

const (
	OrderUnspecified SortOrder = ""
	OrderAsc         SortOrder = "asc"
	OrderDesc        SortOrder = "desc"
)

// PriceRange bounds a price filter. Nil ends are open.
type PriceRange struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// RatingRange bounds a rating filter. Nil ends are open.
type RatingRange struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// DateRange bounds an ingestion-timestamp filter in ms since epoch.
type DateRange struct {
	From *int64 `json:"from,omitempty"`
	To   *int64 `json:"to,omitempty"`
}

// Filters are pure predicates composed with logical AND.
type Filters struct {
	Sources    []catalog.Source  `json:"sources,omitempty"`
	Categories []string          `json:"categories,omitempty"`
	Price      *PriceRange       `json:"price,omitempty"`
	Rating     *RatingRange      `json:"rating,omitempty"`
	Available  *bool             `json:"available,omitempty"`
	Dates      *DateRange        `json:"dates,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Request is one search invocation.
type Request struct {
	Text            string    `json:"text,omitempty"`
	Filters         Filters   `json:"filters"`
	Sort            SortField `json:"sort,omitempty"`
	Order           SortOrder `json:"order,omitempty"`
	Page            int       `json:"page"`
	Limit           int       `json:"limit"`
	WithFacets      bool      `json:"with_facets,omitempty"`
	WithSuggestions bool      `json:"with_suggestions,omitempty"`
}

// Validate rejects non-positive pagination and unknown sort fields.
func (r Request) Validate() error {
	if r.Page <= 0 {
		return apperrors.Newf(apperrors.ErrInvalidQuery, 400, "page must be positive, got %d", r.Page)
	}
	if r.Limit <= 0 {
		return apperrors.Newf(apperrors.ErrInvalidQuery, 400, "limit must be positive, got %d", r.Limit)
	}
	switch r.Sort {
	case "", SortRelevance, SortPrice, SortRating, SortDate, SortPopularity:
	default:
		return apperrors.Newf(apperrors.ErrInvalidQuery, 400, "unknown sort field %q", r.Sort)
	}
	switch r.Order {
	case OrderUnspecified, OrderAsc, OrderDesc:
	default:
		return apperrors.Newf(apperrors.ErrInvalidQuery, 400, "unknown sort order %q", r.Order)
	}
	return nil
}

// EffectiveSort resolves the default sort field: relevance when text is
// present, ingestion date otherwise.
func (r Request) EffectiveSort() SortField {
	if r.Sort != "" {
		return r.Sort
	}
	if strings.TrimSpace(r.Text) != "" {
		return SortRelevance
	}
	return SortDate
}

// EffectiveOrder resolves the default direction for the effective sort.
func (r Request) EffectiveOrder() SortOrder {
	if r.Order != OrderUnspecified {
		return r.Order
	}
	if r.EffectiveSort() == SortPrice {
		return OrderAsc
	}
	return OrderDesc
}

// CacheKey returns a deterministic hash of the full request shape. Two
// requests produce the same key iff every observable parameter matches.
func (r Request) CacheKey() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.TrimSpace(r.Text)))
	b.WriteString("|sort=")
	b.WriteString(string(r.EffectiveSort()))
	b.WriteString("|order=")
	b.WriteString(string(r.EffectiveOrder()))
	fmt.Fprintf(&b, "|page=%d|limit=%d|facets=%t|suggest=%t", r.Page, r.Limit, r.WithFacets, r.WithSuggestions)

	sources := make([]string, 0, len(r.Filters.Sources))
	for _, s := range r.Filters.Sources {
		sources = append(sources, string(s))
	}
	sort.Strings(sources)
	b.WriteString("|src=" + strings.Join(sources, ","))

	categories := append([]string(nil), r.Filters.Categories...)
	sort.Strings(categories)
	b.WriteString("|cat=" + strings.Join(categories, ","))

	if p := r.Filters.Price; p != nil {
		fmt.Fprintf(&b, "|price=%s..%s", floatKey(p.Min), floatKey(p.Max))
	}
	if rr := r.Filters.Rating; rr != nil {
		fmt.Fprintf(&b, "|rating=%s..%s", floatKey(rr.Min), floatKey(rr.Max))
	}
	if r.Filters.Available != nil {
		fmt.Fprintf(&b, "|avail=%t", *r.Filters.Available)
	}
	if d := r.Filters.Dates; d != nil {
		fmt.Fprintf(&b, "|dates=%s..%s", intKey(d.From), intKey(d.To))
	}
	if len(r.Filters.Attributes) > 0 {
		keys := make([]string, 0, len(r.Filters.Attributes))
		for k := range r.Filters.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "|attr:%s=%s", k, r.Filters.Attributes[k])
		}
	}

	hash := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%x", hash[:16])
}

func floatKey(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%g", *v)
}

func intKey(v *int64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%d", *v)
}
