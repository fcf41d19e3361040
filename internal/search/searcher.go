package search

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopscout/searchcore/internal/catalog"
	"github.com/shopscout/searchcore/internal/index"
	"github.com/shopscout/searchcore/internal/index/tokenizer"
	"github.com/shopscout/searchcore/pkg/config"
)

// Searcher executes queries over the document store and inverted index.
// It performs no locking itself: the owning engine holds its read lock for
// the duration of a call.
type Searcher struct {
	store          *index.Store
	inverted       *index.Inverted
	tok            *tokenizer.Tokenizer
	boosts         config.BoostSettings
	maxSuggestions int
	now            func() time.Time
	logger         *slog.Logger
}

// NewSearcher wires a Searcher over the given structures.
func NewSearcher(store *index.Store, inverted *index.Inverted, tok *tokenizer.Tokenizer, settings config.IndexSettings, maxSuggestions int) *Searcher {
	if maxSuggestions <= 0 {
		maxSuggestions = 5
	}
	return &Searcher{
		store:          store,
		inverted:       inverted,
		tok:            tok,
		boosts:         settings.Boosts,
		maxSuggestions: maxSuggestions,
		now:            time.Now,
		logger:         slog.Default().With("component", "searcher"),
	}
}

// WithClock overrides the query-time clock. Test hook.
func (s *Searcher) WithClock(now func() time.Time) *Searcher {
	s.now = now
	return s
}

// Search runs the full pipeline: structural filters, text scoring, sort,
// pagination, and optional facets and suggestions. No matches is not an
// error; it returns an empty document list with Total zero.
func (s *Searcher) Search(req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := s.now()

	filtered := s.filter(s.store.All(), req.Filters)

	text := strings.TrimSpace(req.Text)
	scores := map[string]float64{}
	if text != "" {
		queryTokens := s.tok.Tokenize(text)
		matched := make([]index.Document, 0, len(filtered))
		for _, doc := range filtered {
			score := s.relevance(doc, queryTokens)
			if score <= 0 {
				// A text query is a filter, not just a sort key.
				continue
			}
			scores[doc.ID()] = score
			matched = append(matched, doc)
		}
		filtered = matched
	}

	s.sortDocs(filtered, req.EffectiveSort(), req.EffectiveOrder(), scores)

	total := len(filtered)
	totalPages := (total + req.Limit - 1) / req.Limit
	offset := (req.Page - 1) * req.Limit
	page := []index.Document{}
	if offset < total {
		end := offset + req.Limit
		if end > total {
			end = total
		}
		page = filtered[offset:end]
	}

	now := s.now()
	result := &Result{
		Documents:  make([]Hit, 0, len(page)),
		Total:      total,
		Page:       req.Page,
		Limit:      req.Limit,
		TotalPages: totalPages,
	}
	for _, doc := range page {
		result.Documents = append(result.Documents, Hit{
			ProductRecord: doc.Record,
			Score:         scores[doc.ID()],
			Popularity:    doc.Popularity,
			PriceBucket:   doc.PriceBucket,
			RatingBucket:  doc.RatingBucket,
			RecencyBucket: index.RecencyBucketAt(doc.Record.IngestedTime(), now),
		})
	}

	if req.WithFacets {
		result.Facets = ComputeFacets(filtered, now)
	}
	if req.WithSuggestions && text != "" {
		result.Suggestions = s.suggest(text)
	}
	result.SearchTimeMs = time.Since(start).Milliseconds()
	return result, nil
}

// filter applies every structural predicate with logical AND.
func (s *Searcher) filter(docs []index.Document, f Filters) []index.Document {
	out := make([]index.Document, 0, len(docs))
	for _, doc := range docs {
		if matchesFilters(doc, f) {
			out = append(out, doc)
		}
	}
	return out
}

func matchesFilters(doc index.Document, f Filters) bool {
	r := doc.Record
	if len(f.Sources) > 0 {
		found := false
		for _, src := range f.Sources {
			if r.Source == src.Normalize() {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Categories) > 0 {
		found := false
		for _, cat := range f.Categories {
			if strings.EqualFold(r.Category, cat) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Price != nil {
		if f.Price.Min != nil && r.Price < *f.Price.Min {
			return false
		}
		if f.Price.Max != nil && r.Price > *f.Price.Max {
			return false
		}
	}
	if f.Rating != nil {
		// Missing rating filters as zero, matching its sort behaviour.
		rating := 0.0
		if r.Rating != nil {
			rating = *r.Rating
		}
		if f.Rating.Min != nil && rating < *f.Rating.Min {
			return false
		}
		if f.Rating.Max != nil && rating > *f.Rating.Max {
			return false
		}
	}
	if f.Available != nil && r.Available != *f.Available {
		return false
	}
	if f.Dates != nil {
		if f.Dates.From != nil && r.IngestedAt < *f.Dates.From {
			return false
		}
		if f.Dates.To != nil && r.IngestedAt > *f.Dates.To {
			return false
		}
	}
	for key, want := range f.Attributes {
		if r.Attributes[key] != want {
			return false
		}
	}
	return true
}

// relevance sums the per-field boosts over the query tokens, plus a
// smaller bonus when a configured synonym of a token appears in the title
// or category.
func (s *Searcher) relevance(doc index.Document, queryTokens []string) float64 {
	var score float64
	for _, tok := range queryTokens {
		if containsToken(doc.TitleTokens, tok) {
			score += s.boosts.Title
		}
		if containsToken(doc.CategoryTokens, tok) {
			score += s.boosts.Category
		}
		if containsToken(doc.BrandTokens, tok) {
			score += s.boosts.Brand
		}
		if containsToken(doc.DescriptionTokens, tok) {
			score += s.boosts.Description
		}
		for _, syn := range s.tok.Synonyms(tok) {
			if containsToken(doc.TitleTokens, syn) || containsToken(doc.CategoryTokens, syn) {
				score += s.boosts.Synonym
				break
			}
		}
	}
	return score
}

func containsToken(tokens []string, tok string) bool {
	for _, t := range tokens {
		if t == tok {
			return true
		}
	}
	return false
}

// sortDocs orders documents by the requested field with a document-ID tie
// break, so ranking is deterministic across runs.
func (s *Searcher) sortDocs(docs []index.Document, field SortField, order SortOrder, scores map[string]float64) {
	asc := order == OrderAsc
	less := func(a, b index.Document) bool {
		var av, bv float64
		switch field {
		case SortRelevance:
			av, bv = scores[a.ID()], scores[b.ID()]
		case SortPrice:
			av, bv = a.Record.Price, b.Record.Price
		case SortRating:
			av, bv = ratingOrZero(a.Record), ratingOrZero(b.Record)
		case SortDate:
			av, bv = float64(a.Record.IngestedAt), float64(b.Record.IngestedAt)
		case SortPopularity:
			av, bv = a.Popularity, b.Popularity
		}
		if av != bv {
			if asc {
				return av < bv
			}
			return av > bv
		}
		return a.ID() < b.ID()
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return less(docs[i], docs[j])
	})
}

func ratingOrZero(r catalog.ProductRecord) float64 {
	if r.Rating == nil {
		return 0
	}
	return *r.Rating
}

// suggest completes the last whitespace-delimited fragment of the query
// against the inverted-index vocabulary and substitutes it back into the
// query, returning up to maxSuggestions completions.
func (s *Searcher) suggest(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) == 0 {
		return nil
	}
	fragment := fields[len(fields)-1]
	prefix := strings.Join(fields[:len(fields)-1], " ")
	completions := s.inverted.CompleteToken(fragment, s.maxSuggestions)
	out := make([]string, 0, len(completions))
	for _, completion := range completions {
		if prefix == "" {
			out = append(out, completion)
		} else {
			out = append(out, prefix+" "+completion)
		}
	}
	return out
}
