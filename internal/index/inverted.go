package index

import "sort"

// Inverted maps tokens to the set of document IDs containing them. A doc
// ID is present under token T iff T appears in the document's token sets
// at indexing time. Updates are full re-posts: Unpost removes every stale
// posting before Post adds the new ones, which keeps the structure simple
// at the corpus sizes bounded by the eviction budget.
type Inverted struct {
	postings map[string]map[string]struct{}
	// byDoc tracks the tokens posted per document so Unpost needs no scan
	// of the whole vocabulary.
	byDoc map[string][]string
}

// NewInverted creates an empty inverted index.
func NewInverted() *Inverted {
	return &Inverted{
		postings: make(map[string]map[string]struct{}),
		byDoc:    make(map[string][]string),
	}
}

// Post records docID under every token. Any previous postings for docID
// are removed first, so re-posting never leaves stale entries.
func (inv *Inverted) Post(docID string, tokens []string) {
	inv.Unpost(docID)
	posted := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		set, ok := inv.postings[tok]
		if !ok {
			set = make(map[string]struct{})
			inv.postings[tok] = set
		}
		if _, dup := set[docID]; dup {
			continue
		}
		set[docID] = struct{}{}
		posted = append(posted, tok)
	}
	if len(posted) > 0 {
		inv.byDoc[docID] = posted
	}
}

// Unpost removes every posting for docID. Unknown IDs are a no-op.
func (inv *Inverted) Unpost(docID string) {
	tokens, ok := inv.byDoc[docID]
	if !ok {
		return
	}
	for _, tok := range tokens {
		set := inv.postings[tok]
		delete(set, docID)
		if len(set) == 0 {
			delete(inv.postings, tok)
		}
	}
	delete(inv.byDoc, docID)
}

// Lookup returns the set of document IDs posted under token. An unknown
// token yields an empty set, not an error.
func (inv *Inverted) Lookup(token string) map[string]struct{} {
	set, ok := inv.postings[token]
	if !ok {
		return map[string]struct{}{}
	}
	out := make(map[string]struct{}, len(set))
	for id := range set {
		out[id] = struct{}{}
	}
	return out
}

// Contains reports whether docID is posted under token without copying.
func (inv *Inverted) Contains(token, docID string) bool {
	set, ok := inv.postings[token]
	if !ok {
		return false
	}
	_, present := set[docID]
	return present
}

// CompleteToken scans the vocabulary for tokens with the given prefix and
// returns up to limit completions sorted by posting count descending, then
// lexicographically for determinism.
func (inv *Inverted) CompleteToken(prefix string, limit int) []string {
	if prefix == "" || limit <= 0 {
		return nil
	}
	type candidate struct {
		token string
		count int
	}
	candidates := make([]candidate, 0, 16)
	for tok, set := range inv.postings {
		if len(tok) >= len(prefix) && tok[:len(prefix)] == prefix {
			candidates = append(candidates, candidate{token: tok, count: len(set)})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].count != candidates[j].count {
			return candidates[i].count > candidates[j].count
		}
		return candidates[i].token < candidates[j].token
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.token
	}
	return out
}

// VocabularySize returns the number of distinct tokens.
func (inv *Inverted) VocabularySize() int {
	return len(inv.postings)
}
