package index

import "sort"

// Store is the authoritative map from document ID to indexed document. It
// is the source of truth for all facet and filter computation, and tracks
// the approximate corpus byte size for the eviction budget.
type Store struct {
	docs      map[string]Document
	sizeBytes int64
}

// NewStore creates an empty document store.
func NewStore() *Store {
	return &Store{docs: make(map[string]Document)}
}

// Put inserts or overwrites the document under its record ID.
func (s *Store) Put(doc Document) {
	if prev, ok := s.docs[doc.ID()]; ok {
		s.sizeBytes -= prev.SizeBytes
	}
	s.docs[doc.ID()] = doc
	s.sizeBytes += doc.SizeBytes
}

// Get returns the document for id and whether it exists.
func (s *Store) Get(id string) (Document, bool) {
	doc, ok := s.docs[id]
	return doc, ok
}

// Remove deletes the document for id. Unknown IDs are a no-op.
func (s *Store) Remove(id string) {
	if prev, ok := s.docs[id]; ok {
		s.sizeBytes -= prev.SizeBytes
		delete(s.docs, id)
	}
}

// All returns every document, ordered by ID for determinism.
func (s *Store) All() []Document {
	out := make([]Document, 0, len(s.docs))
	for _, doc := range s.docs {
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID() < out[j].ID()
	})
	return out
}

// Count returns the number of stored documents.
func (s *Store) Count() int {
	return len(s.docs)
}

// SizeBytes returns the approximate corpus byte size.
func (s *Store) SizeBytes() int64 {
	return s.sizeBytes
}
